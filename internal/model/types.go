package model

// Request represents a model inference request.
type Request struct {
	System      string       `json:"system,omitempty"`
	Prompt      string       `json:"prompt"`
	Images      []Attachment `json:"-"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	JSON        bool         `json:"json,omitempty"` // Request JSON output
}

// Attachment is an inline image sent alongside the prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Response represents a model inference response.
type Response struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	DurationMs int64  `json:"duration_ms"`
}

// ModelStatus represents the status of a model.
type ModelStatus struct {
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
	Breaker   string `json:"breaker,omitempty"`
	Error     string `json:"error,omitempty"`
}
