// Package llm defines the completion-model contract the rest of the tool
// programs against: an ordered sequence of role/content pairs in, either one
// complete text or a stream of incremental deltas out.
package llm

import (
	"context"
	"time"
)

// Message is one role/content pair in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one completion call. MaxTokens of zero leaves the cap to
// the provider; a nil Temperature uses the provider default.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// Handler is the core interface a completion provider implements.
type Handler interface {
	// CreateMessage dispatches the request and returns a stream of
	// incremental chunks, terminated by channel close.
	CreateMessage(ctx context.Context, req Request) (ApiStream, error)

	// Complete dispatches the request as a single blocking call and
	// returns the full reply text.
	Complete(ctx context.Context, req Request) (string, error)
}

// Validator is implemented by providers that can cheaply check their
// credentials and endpoint before a session starts.
type Validator interface {
	Validate(ctx context.Context) error
}

// HandlerOptions configures a provider handler.
type HandlerOptions struct {
	APIKey         string
	BaseURL        string
	ModelID        string
	RequestTimeout time.Duration
}

// Float returns a pointer to v, for optional request fields.
func Float(v float64) *float64 { return &v }
