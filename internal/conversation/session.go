// Package conversation owns the chat history and the single in-flight
// exchange with the backend.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/buddy/internal/gateway"
	"github.com/kalambet/buddy/internal/observe"
	"github.com/kalambet/buddy/internal/store"
)

// DefaultSystemPrompt is used until the user saves their own.
const DefaultSystemPrompt = "You are Buddy, Monique's personal AI assistant for administrative and logistics work. Be friendly, professional, and focus on practical solutions that help Monique efficiently manage her tasks."

// DefaultContextWindow is how many history entries accompany each request.
const DefaultContextWindow = 10

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrBusy            = errors.New("a message is already being sent")
	ErrNothingToClear  = errors.New("no conversation to clear")
	ErrNothingToExport = errors.New("no conversation to export")
	ErrNotConfirmed    = errors.New("not confirmed")
)

// ChatGateway is the slice of the backend the session needs.
type ChatGateway interface {
	Chat(ctx context.Context, req gateway.ChatRequest) (gateway.ChatResponse, error)
}

// HistoryStore persists string records by key.
type HistoryStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a plain function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// EventKind identifies what changed in the session.
type EventKind int

const (
	// EventReplayed carries the full history after Initialize.
	EventReplayed EventKind = iota
	// EventMessage carries one newly appended message.
	EventMessage
	// EventSending marks the start of an exchange; LoadingID names the placeholder.
	EventSending
	// EventReplyDiscarded means a reply arrived after a stop request and was dropped.
	EventReplyDiscarded
	// EventIdle marks the end of an exchange, whatever its outcome.
	EventIdle
	// EventCleared means history was emptied and the welcome state is showing.
	EventCleared
	// EventSettings means the prompt, model or RAG flag changed.
	EventSettings
)

// Event is published on the session's hub.
type Event struct {
	Kind      EventKind
	Message   Message
	History   []Message
	LoadingID string
}

// Flags is a copy of the transient send state.
type Flags struct {
	IsSending       bool
	StopRequested   bool
	ActiveLoadingID string
}

// Settings are the per-request knobs.
type Settings struct {
	UseRAG       bool
	SystemPrompt string
	Model        string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

// WithClock overrides time.Now for message timestamps.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// WithContextWindow sets how many history entries are sent as context.
func WithContextWindow(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithRAG sets the initial knowledge-base toggle.
func WithRAG(on bool) Option { return func(s *Session) { s.settings.UseRAG = on } }

// Session is the conversation state machine:
// Idle -> Sending -> {reply, error entry, discarded} -> Idle.
type Session struct {
	gw     ChatGateway
	st     HistoryStore
	log    *slog.Logger
	now    func() time.Time
	window int
	events observe.Hub[Event]

	mu       sync.Mutex
	history  []Message
	flags    Flags
	settings Settings
	welcome  bool
}

// New creates a Session. Call Initialize before use.
func New(gw ChatGateway, st HistoryStore, opts ...Option) *Session {
	s := &Session{
		gw:       gw,
		st:       st,
		log:      slog.Default(),
		now:      time.Now,
		window:   DefaultContextWindow,
		settings: Settings{SystemPrompt: DefaultSystemPrompt},
		welcome:  true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn for session events.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.events.Subscribe(fn)
}

// Initialize loads history and saved settings. Unreadable records fall back
// to defaults and are only logged.
func (s *Session) Initialize(ctx context.Context) {
	history := s.loadHistory(ctx)

	prompt, hasPrompt := s.read(ctx, store.KeySystemPrompt)
	model, _ := s.read(ctx, store.KeySelectedModel)

	s.mu.Lock()
	s.history = history
	s.welcome = len(history) == 0
	if hasPrompt {
		s.settings.SystemPrompt = prompt
	}
	s.settings.Model = model
	snapshot := s.copyHistory()
	s.mu.Unlock()

	s.events.Publish(Event{Kind: EventReplayed, History: snapshot})
}

func (s *Session) loadHistory(ctx context.Context) []Message {
	raw, ok := s.read(ctx, store.KeyConversation)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var history []Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		s.log.WarnContext(ctx, "discarding unreadable conversation history", "error", err)
		return nil
	}
	return history
}

func (s *Session) read(ctx context.Context, key string) (string, bool) {
	v, err := s.st.Get(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.WarnContext(ctx, "reading local record", "key", key, "error", err)
		}
		return "", false
	}
	return v, true
}

// History returns a copy of the conversation.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyHistory()
}

// Flags returns a copy of the transient send state.
func (s *Session) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// Welcome reports whether the empty-conversation welcome state is showing.
func (s *Session) Welcome() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcome
}

// Settings returns the current request settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetUseRAG toggles retrieval for subsequent sends. The flag itself is kept
// in config, not in the local store.
func (s *Session) SetUseRAG(on bool) {
	s.mu.Lock()
	s.settings.UseRAG = on
	s.mu.Unlock()
	s.events.Publish(Event{Kind: EventSettings})
}

// SetSystemPrompt stores the prompt sent with each request.
func (s *Session) SetSystemPrompt(prompt string) error {
	s.mu.Lock()
	s.settings.SystemPrompt = prompt
	s.mu.Unlock()
	s.events.Publish(Event{Kind: EventSettings})

	if err := s.st.Set(store.KeySystemPrompt, prompt); err != nil {
		return fmt.Errorf("saving system prompt: %w", err)
	}
	return nil
}

// SetModel stores the model sent with each request. Empty means the
// backend default.
func (s *Session) SetModel(model string) error {
	s.mu.Lock()
	s.settings.Model = model
	s.mu.Unlock()
	s.events.Publish(Event{Kind: EventSettings})

	if err := s.st.Set(store.KeySelectedModel, model); err != nil {
		return fmt.Errorf("saving selected model: %w", err)
	}
	return nil
}

// Send runs one exchange. Rejected sends return ErrEmptyMessage or ErrBusy
// and change nothing. Accepted sends return nil: backend and transport
// failures are recorded in the history as assistant messages.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.flags.IsSending {
		s.mu.Unlock()
		return ErrBusy
	}
	userMsg := newMessage(text, RoleUser, nil, s.now())
	s.history = append(s.history, userMsg)
	s.welcome = false
	s.flags = Flags{IsSending: true, ActiveLoadingID: uuid.NewString()}
	req := s.buildRequest(text)
	loadingID := s.flags.ActiveLoadingID
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.events.Publish(Event{Kind: EventMessage, Message: userMsg})
	s.events.Publish(Event{Kind: EventSending, LoadingID: loadingID})

	resp, err := s.gw.Chat(ctx, req)

	s.mu.Lock()
	stopped := s.flags.StopRequested
	var reply Message
	if !stopped {
		reply = s.replyMessage(ctx, resp, err)
		s.history = append(s.history, reply)
		s.persistLocked(ctx)
	}
	s.flags = Flags{}
	s.mu.Unlock()

	if stopped {
		s.log.InfoContext(ctx, "reply discarded after stop request", "loading_id", loadingID)
		s.events.Publish(Event{Kind: EventReplyDiscarded, LoadingID: loadingID})
	} else {
		s.events.Publish(Event{Kind: EventMessage, Message: reply})
	}
	s.events.Publish(Event{Kind: EventIdle, LoadingID: loadingID})
	return nil
}

// buildRequest must be called with s.mu held, after the user message has
// been appended.
func (s *Session) buildRequest(text string) gateway.ChatRequest {
	start := len(s.history) - s.window
	if start < 0 {
		start = 0
	}
	ctxEntries := make([]gateway.HistoryEntry, 0, len(s.history)-start)
	for _, m := range s.history[start:] {
		ctxEntries = append(ctxEntries, m.entry())
	}

	req := gateway.ChatRequest{
		Message:             text,
		UseRAG:              s.settings.UseRAG,
		ConversationHistory: ctxEntries,
	}
	if p := strings.TrimSpace(s.settings.SystemPrompt); p != "" {
		req.SystemPrompt = &p
	}
	if m := s.settings.Model; m != "" {
		req.Model = &m
	}
	return req
}

func (s *Session) replyMessage(ctx context.Context, resp gateway.ChatResponse, err error) Message {
	now := s.now()
	if err == nil {
		return newMessage(resp.Response, RoleAssistant, resp.Sources, now)
	}

	s.log.WarnContext(ctx, "chat exchange failed", "error", err)
	if gateway.IsTransport(err) {
		return newMessage("Connection error: "+gateway.Reason(err), RoleAssistant, nil, now)
	}
	detail := gateway.Reason(err)
	if detail == "" {
		detail = "Unknown error"
	}
	return newMessage("Error: "+detail, RoleAssistant, nil, now)
}

// RequestStop asks the in-flight exchange to drop its reply. The request
// itself still runs to completion. No-op when idle.
func (s *Session) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags.IsSending {
		s.flags.StopRequested = true
	}
}

// Clear empties the history after c approves.
func (s *Session) Clear(ctx context.Context, c Confirmer) error {
	s.mu.Lock()
	switch {
	case s.flags.IsSending:
		s.mu.Unlock()
		return ErrBusy
	case len(s.history) == 0:
		s.mu.Unlock()
		return ErrNothingToClear
	}
	s.mu.Unlock()

	if c == nil || !c.Confirm("Are you sure you want to clear the entire conversation history? This cannot be undone.") {
		return ErrNotConfirmed
	}

	s.mu.Lock()
	if s.flags.IsSending {
		s.mu.Unlock()
		return ErrBusy
	}
	s.history = nil
	s.welcome = true
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.events.Publish(Event{Kind: EventCleared})
	return nil
}

// Snapshot is the export shape of a conversation.
type Snapshot struct {
	ExportDate   string    `json:"exportDate" yaml:"exportDate"`
	MessageCount int       `json:"messageCount" yaml:"messageCount"`
	Conversation []Message `json:"conversation" yaml:"conversation"`
}

// Export captures the current history.
func (s *Session) Export() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Snapshot{}, ErrNothingToExport
	}
	conv := s.copyHistory()
	return Snapshot{
		ExportDate:   s.now().UTC().Format(timestampLayout),
		MessageCount: len(conv),
		Conversation: conv,
	}, nil
}

// persistLocked writes the full history. Write failures are logged; the
// in-memory history stays authoritative for the running process.
func (s *Session) persistLocked(ctx context.Context) {
	history := s.history
	if history == nil {
		history = []Message{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		s.log.ErrorContext(ctx, "encoding conversation history", "error", err)
		return
	}
	if err := s.st.Set(store.KeyConversation, string(data)); err != nil {
		s.log.WarnContext(ctx, "saving conversation history", "error", err)
	}
}

func (s *Session) copyHistory() []Message {
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}
