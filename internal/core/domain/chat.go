package domain

type ChatRole string

const (
	RoleSystem ChatRole = "system"
	RoleUser   ChatRole = "user"
)

// ChatImage is an inline image attached to a user message.
type ChatImage struct {
	MediaType string
	Data      []byte
}

type ChatMessage struct {
	Role    ChatRole
	Content string
	Images  []ChatImage
}

type ChatRequest struct {
	Messages []ChatMessage
	// JSON asks the provider for a JSON-only response when it supports it.
	JSON        bool
	Vision      bool
	Temperature *float64
}

type ChatResponse struct {
	Text  string
	Model string
}
