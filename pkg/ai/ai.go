// Package ai talks to hosted language models. Every backend streams; the
// conversation layer never waits for a whole reply.
package ai

import (
	"context"
	"strings"
)

// Roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons reported by streams.
const (
	FinishReasonStop   = "stop"
	FinishReasonLength = "length"
)

// Message is one turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one streamed completion. A zero Model, Temperature or
// MaxTokens falls back to the backend's configured value.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Stream yields reply fragments in generation order. Delta is valid after
// Next returned true. FinishReason and Err are valid once Next returned false.
type Stream interface {
	Next() bool
	Delta() string
	FinishReason() string
	Err() error
	Close() error
}

// Provider opens completion streams against one backend.
type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// NormalizeFinishReason maps vendor stop reasons onto FinishReasonStop and
// FinishReasonLength. An empty reason stays empty.
func NormalizeFinishReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "":
		return ""
	case "length", "max_tokens":
		return FinishReasonLength
	default:
		return FinishReasonStop
	}
}
