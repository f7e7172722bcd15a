package ollama

// ChatMessage is one entry of the conversation replayed to Ollama
type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatRequest represents the request body for the Ollama chat API
type ChatRequest struct {
	Model    string         `json:"model"`
	Messages []ChatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ChatResponse represents one newline-delimited JSON object of the
// Ollama chat stream
type ChatResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done         bool  `json:"done"`
	EvalCount    int64 `json:"eval_count"`
	EvalDuration int64 `json:"eval_duration"` // nanoseconds
}

// TagsResponse represents the response from Ollama /api/tags endpoint
type TagsResponse struct {
	Models []Model `json:"models"`
}

// Model represents a single model in the Ollama tags response
type Model struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// Metadata summarizes a completed stream; it is appended to the
// content stream behind MetadataMarker so text-only consumers can
// ignore it.
type Metadata struct {
	TPS       float64 `json:"tps"`
	Tokens    int64   `json:"tokens"`
	DurationS float64 `json:"duration_s"`
}

// MetadataMarker prefixes the trailing performance fragment of a
// completed stream.
const MetadataMarker = "__METADATA__"

// Chunk is one decoded unit of streamed output. A non-nil Err is
// always the terminal chunk of its stream.
type Chunk struct {
	Content string
	Err     error
}
