package transport

import (
	"cmp"
	"context"
	"log/slog"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/config"
	"goon_chat/pkg/logging"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// Settings are the generation parameters applied to every exchange.
type Settings struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// SettingsFromConfig reads the active provider's settings and fills in the
// Goon persona and policy defaults where the config leaves them unset.
func SettingsFromConfig(cfg config.Config) Settings {
	active := cfg.Active()
	s := Settings{
		Model:        active.Model,
		Temperature:  active.Temperature,
		MaxTokens:    active.MaxTokens,
		SystemPrompt: ai.GoonSystemPrompt,
	}
	return s.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.Temperature <= 0 {
		s.Temperature = DefaultTemperature
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	return s
}

// ProviderClient streams replies straight from an ai.Provider.
type ProviderClient struct {
	provider ai.Provider
	settings Settings
	logger   *slog.Logger
}

// NewProviderClient wraps provider.
func NewProviderClient(provider ai.Provider, settings Settings) *ProviderClient {
	return &ProviderClient{
		provider: provider,
		settings: settings.withDefaults(),
		logger:   slog.Default(),
	}
}

// Stream prepends the system prompt to history and streams the reply.
func (c *ProviderClient) Stream(ctx context.Context, history []Message) (<-chan Event, error) {
	msgs := ai.WithSystemPrompt(c.settings.SystemPrompt, toAIMessages(history))

	if c.logger.Enabled(ctx, logging.LevelTrace) {
		c.logger.Log(ctx, logging.LevelTrace, "transport_stream_prompt",
			"model", c.settings.Model,
			"message_count", len(msgs),
			"messages_full", ai.DumpMessages(msgs),
		)
	}

	req := ai.Request{
		Model:       c.settings.Model,
		Messages:    msgs,
		Temperature: c.settings.Temperature,
		MaxTokens:   c.settings.MaxTokens,
	}

	c.logger.Info("transport_stream_start",
		"model", c.settings.Model,
		"history_messages", len(history),
	)
	stream, err := c.provider.Stream(ctx, req)
	if err != nil {
		c.logger.Error("transport_stream_create_error", "error", err)
		return nil, err
	}

	ch := make(chan Event, 8)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			delta := stream.Delta()
			if delta == "" {
				continue
			}
			if !emit(ctx, ch, Event{Delta: delta}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			c.logger.Error("transport_stream_error", "error", err)
			emit(ctx, ch, Event{Err: err, Done: true})
			return
		}

		reason := cmp.Or(ai.NormalizeFinishReason(stream.FinishReason()), ai.FinishReasonStop)
		if reason == ai.FinishReasonLength {
			c.logger.Warn("transport_stream_token_cap", "max_tokens", req.MaxTokens)
		}
		c.logger.Info("transport_stream_done", "finish_reason", reason)
		emit(ctx, ch, Event{Done: true, FinishReason: reason})
	}()

	return ch, nil
}
