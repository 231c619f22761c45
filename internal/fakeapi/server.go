// Package fakeapi is an in-memory stand-in for the assistant backend. Tests
// across the module run the real gateway against it.
package fakeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/buddy/internal/gateway"
)

const maxUploadSize = 20 << 20

var allowedExtensions = []string{".pdf", ".docx", ".doc", ".txt"}

// Request is a recorded inbound request.
type Request struct {
	Method string
	Path   string
	Body   string
}

type failure struct {
	status    int
	detail    string
	transport bool
}

// Backend serves the REST surface from memory.
type Backend struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []Request
	failures map[string]failure
	notes    map[int]gateway.Note
	nextID   int
	docs     []gateway.Document

	chat    func(req gateway.ChatRequest) gateway.ChatResponse
	health  gateway.HealthStatus
	models  gateway.ModelList
	weather gateway.Weather

	chatHold chan struct{}
}

// NewServer starts a Backend on a loopback httptest server.
func NewServer() *Backend {
	b := &Backend{
		failures: make(map[string]failure),
		notes:    make(map[int]gateway.Note),
		nextID:   1,
		chat: func(req gateway.ChatRequest) gateway.ChatResponse {
			return gateway.ChatResponse{Response: "echo: " + req.Message, Sources: []string{}}
		},
		health: gateway.HealthStatus{
			OllamaStatus:   "running",
			ModelAvailable: true,
			CurrentModel:   "phi3:3.8b",
		},
		models: gateway.ModelList{
			Models:       []string{"phi3:3.8b", "llama3:8b"},
			CurrentModel: "phi3:3.8b",
		},
		weather: gateway.Weather{Temperature: 21.5, Icon: "sunny"},
	}
	b.server = httptest.NewServer(b.routes())
	return b
}

// URL is the base URL to hand to gateway.New.
func (b *Backend) URL() string { return b.server.URL }

// Client returns an http.Client wired to the server.
func (b *Backend) Client() *http.Client { return b.server.Client() }

// Close shuts the server down. Later calls fail as transport errors.
func (b *Backend) Close() { b.server.Close() }

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)

	r.Get("/api/health", b.handleHealth)
	r.Get("/api/models", b.handleModels)
	r.Post("/api/chat", b.handleChat)
	r.Get("/api/documents", b.handleListDocuments)
	r.Post("/api/upload", b.handleUpload)
	r.Delete("/api/documents/{name}", b.handleDeleteDocument)
	r.Get("/api/sticky-notes", b.handleListNotes)
	r.Post("/api/sticky-notes", b.handleCreateNote)
	r.Put("/api/sticky-notes/{id}", b.handleUpdateNote)
	r.Delete("/api/sticky-notes/{id}", b.handleDeleteNote)
	r.Get("/api/weather", b.handleWeather)

	return r
}

// record logs the request and applies any injected failure.
func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		if r.Body != nil {
			body.ReadFrom(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body.Bytes()))
		}

		key := r.Method + " " + r.URL.Path
		b.mu.Lock()
		b.requests = append(b.requests, Request{Method: r.Method, Path: r.URL.RequestURI(), Body: body.String()})
		f, failing := b.failures[key]
		b.mu.Unlock()

		if failing {
			if f.transport {
				dropConnection(w)
				return
			}
			httpError(w, f.status, "%s", f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Fail makes every "METHOD path" request answer status with detail.
func (b *Backend) Fail(method, path string, status int, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = failure{status: status, detail: detail}
}

// FailTransport makes every "METHOD path" request drop its connection.
func (b *Backend) FailTransport(method, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = failure{transport: true}
}

// Recover removes an injected failure.
func (b *Backend) Recover(method, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, method+" "+path)
}

// HoldChat blocks chat replies until the returned release func is called.
func (b *Backend) HoldChat() (release func()) {
	hold := make(chan struct{})
	b.mu.Lock()
	b.chatHold = hold
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(hold)
			b.mu.Lock()
			if b.chatHold == hold {
				b.chatHold = nil
			}
			b.mu.Unlock()
		})
	}
}

// SetChat replaces the reply function for POST /api/chat. The default
// echoes the message.
func (b *Backend) SetChat(fn func(req gateway.ChatRequest) gateway.ChatResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chat = fn
}

// SetHealth sets the GET /api/health payload.
func (b *Backend) SetHealth(h gateway.HealthStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health = h
}

// SetModels sets the GET /api/models payload.
func (b *Backend) SetModels(m gateway.ModelList) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.models = m
}

// SetWeather sets the GET /api/weather payload.
func (b *Backend) SetWeather(w gateway.Weather) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.weather = w
}

// Requests returns a copy of every recorded request.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Count returns how many recorded requests match method and path exactly.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// SeedNote stores a note directly and returns its id.
func (b *Backend) SeedNote(content, color string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.notes[id] = gateway.Note{ID: id, Content: content, Color: color}
	return id
}

// Note returns the stored note with id.
func (b *Backend) Note(id int) (gateway.Note, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.notes[id]
	return n, ok
}

// Documents returns the stored documents.
func (b *Backend) Documents() []gateway.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]gateway.Document, len(b.docs))
	copy(out, b.docs)
	return out
}

func (b *Backend) handleHealth(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	h := b.health
	b.mu.Unlock()
	writeJSON(w, h)
}

func (b *Backend) handleModels(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	m := b.models
	b.mu.Unlock()
	writeJSON(w, m)
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req gateway.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusUnprocessableEntity, "invalid request body: %v", err)
		return
	}

	b.mu.Lock()
	hold := b.chatHold
	chat := b.chat
	b.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, chat(req))
}

func (b *Backend) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"documents": b.Documents()})
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing file: %v", err)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowed(ext) {
		httpError(w, http.StatusBadRequest, "File type %s not supported. Allowed: %v", ext, allowedExtensions)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "reading upload: %v", err)
		return
	}

	chunks := (len(data) + 999) / 1000
	if chunks == 0 {
		chunks = 1
	}

	b.mu.Lock()
	b.docs = append(b.docs, gateway.Document{
		Filename:   header.Filename,
		StoredName: uuid.NewString() + "_" + header.Filename,
		Size:       int64(len(data)),
	})
	b.mu.Unlock()

	writeJSON(w, gateway.UploadResult{
		Message:       fmt.Sprintf("Successfully processed %s", header.Filename),
		ChunksCreated: chunks,
	})
}

func (b *Backend) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, d := range b.docs {
		if d.StoredName == name {
			b.docs = append(b.docs[:i], b.docs[i+1:]...)
			writeJSON(w, map[string]string{"message": "Successfully deleted " + name})
			return
		}
	}
	httpError(w, http.StatusNotFound, "Document not found")
}

func (b *Backend) handleListNotes(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	notes := make([]gateway.Note, 0, len(b.notes))
	for _, n := range b.notes {
		notes = append(notes, n)
	}
	b.mu.Unlock()

	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	writeJSON(w, notes)
}

func (b *Backend) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var in gateway.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpError(w, http.StatusUnprocessableEntity, "invalid request body: %v", err)
		return
	}
	id := b.SeedNote(in.Content, in.Color)
	n, _ := b.Note(id)
	writeJSON(w, n)
}

func (b *Backend) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid note id")
		return
	}
	var in gateway.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpError(w, http.StatusUnprocessableEntity, "invalid request body: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.notes[id]; !ok {
		httpError(w, http.StatusNotFound, "Note not found")
		return
	}
	b.notes[id] = gateway.Note{ID: id, Content: in.Content, Color: in.Color}
	writeJSON(w, b.notes[id])
}

func (b *Backend) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid note id")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.notes[id]; !ok {
		httpError(w, http.StatusNotFound, "Note not found")
		return
	}
	delete(b.notes, id)
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (b *Backend) handleWeather(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	wx := b.weather
	b.mu.Unlock()
	writeJSON(w, wx)
}

func allowed(ext string) bool {
	for _, a := range allowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// httpError writes a FastAPI-style {"detail": ...} error body.
func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"detail": fmt.Sprintf(format, args...)})
}

// dropConnection closes the TCP connection without a response.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("fakeapi: response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}
