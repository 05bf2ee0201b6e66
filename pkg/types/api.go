package types

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	// Model identifier known to the upstream daemon.
	// example: llama3
	Model string `json:"model" example:"llama3"`
	// Prompt text to generate a completion for.
	// example: Why is the sky blue?
	Prompt string `json:"prompt" example:"Why is the sky blue?"`
	// Optional images (base64) for multimodal models, forwarded in order.
	Images []string `json:"images,omitempty"`
}

// DeleteRequest is the body of POST /api/delete.
type DeleteRequest struct {
	// Name of the model to remove from the upstream daemon.
	// example: llama3:latest
	Name string `json:"name" example:"llama3:latest"`
}

// DeleteResponse acknowledges a successful delete.
type DeleteResponse struct {
	// example: success
	Status string `json:"status" example:"success"`
	// example: Model llama3:latest deleted.
	Message string `json:"message" example:"Model llama3:latest deleted."`
}

// ErrorResponse is the single error payload shape returned by every route.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
}
