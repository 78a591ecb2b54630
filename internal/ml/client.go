package ml

import "context"

// EmbeddingClient turns text into dense vectors.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatClient sends a conversation to a generative model and returns the
// assistant's raw reply.
type ChatClient interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)
