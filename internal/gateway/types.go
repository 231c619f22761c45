package gateway

// HistoryEntry is one prior message sent as conversational context.
type HistoryEntry struct {
	Content   string   `json:"content"`
	Role      string   `json:"role"`
	Sources   []string `json:"sources"`
	Timestamp string   `json:"timestamp"`
}

// ChatRequest is the JSON body for POST /api/chat. Nil SystemPrompt and Model
// are sent as null so the backend applies its own defaults.
type ChatRequest struct {
	Message             string         `json:"message"`
	UseRAG              bool           `json:"use_rag"`
	SystemPrompt        *string        `json:"system_prompt"`
	Model               *string        `json:"model"`
	ConversationHistory []HistoryEntry `json:"conversation_history"`
}

// ChatResponse is the JSON returned by POST /api/chat.
type ChatResponse struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
}

// HealthStatus mirrors GET /api/health.
type HealthStatus struct {
	OllamaStatus    string   `json:"ollama_status"`
	ModelAvailable  bool     `json:"model_available"`
	CurrentModel    string   `json:"current_model"`
	AvailableModels []string `json:"available_models,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// ModelList mirrors GET /api/models.
type ModelList struct {
	Models       []string `json:"models"`
	CurrentModel string   `json:"current_model"`
	Error        string   `json:"error,omitempty"`
}

// Document is one entry of GET /api/documents.
type Document struct {
	Filename   string `json:"filename"`
	StoredName string `json:"stored_name"`
	Size       int64  `json:"size"`
}

type documentList struct {
	Documents []Document `json:"documents"`
}

// UploadResult mirrors the success body of POST /api/upload.
type UploadResult struct {
	Message       string `json:"message,omitempty"`
	ChunksCreated int    `json:"chunks_created"`
}

// Note is a sticky note as stored by the backend.
type Note struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Color   string `json:"color"`
}

// NoteInput is the body of note create and update calls.
type NoteInput struct {
	Content string `json:"content"`
	Color   string `json:"color"`
}

// Weather mirrors GET /api/weather.
type Weather struct {
	Temperature float64 `json:"temperature"`
	Icon        string  `json:"icon"`
	Error       string  `json:"error,omitempty"`
}
