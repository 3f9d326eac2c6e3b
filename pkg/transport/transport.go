// Package transport turns a conversation history into an ordered stream of
// reply fragments, either by calling a model provider directly or by posting
// to a running chat endpoint.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/config"

	"github.com/samber/lo"
)

// Message is one visible turn of the conversation. Only role and content
// ever travel upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Event is a single item of a reply stream. The last event on a channel has
// Done set; Err is non-nil when the stream failed.
type Event struct {
	Delta        string
	Err          error
	Done         bool
	FinishReason string
}

// Client opens reply streams.
//
// Stream returns an error only when the request fails before any fragment
// could be produced. Otherwise the channel yields fragments in generation
// order followed by exactly one terminal event, and is then closed. When ctx
// is cancelled the producer stops without blocking and closes the channel,
// possibly without a terminal event.
type Client interface {
	Stream(ctx context.Context, history []Message) (<-chan Event, error)
}

// New builds the Client selected by cfg.Transport.
func New(cfg config.Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case config.TransportEndpoint:
		timeout := time.Duration(cfg.Endpoint.TimeoutSeconds) * time.Second
		return NewHTTPClient(cfg.Endpoint.URL, timeout, nil)
	case "", config.TransportDirect:
		provider, err := ai.FromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewProviderClient(provider, SettingsFromConfig(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// emit delivers ev unless ctx is done first.
func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func toAIMessages(history []Message) []ai.Message {
	return lo.Map(history, func(m Message, _ int) ai.Message {
		return ai.Message{Role: m.Role, Content: m.Content}
	})
}
