package providers

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/config"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAIDefaultURL   = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-mini"
)

func init() {
	ai.Register(ai.Backend{
		Type:        ai.ProviderOpenAI,
		Name:        "OpenAI",
		Description: "OpenAI chat completions (default gpt-4o-mini)",
		Auth:        ai.AuthAPIKey,
		New: func(cfg config.Config) (ai.Provider, error) {
			return newOpenAI(cfg.Providers.OpenAI, nil)
		},
	})
	ai.Register(ai.Backend{
		Type:        ai.ProviderOpenRouter,
		Name:        "OpenRouter",
		Description: "Hosted models from many vendors through OpenRouter",
		Auth:        ai.AuthAPIKey,
		New: func(cfg config.Config) (ai.Provider, error) {
			return newOpenRouter(cfg.Providers.OpenRouter, nil)
		},
	})
}

// chatCompletions streams from an OpenAI-compatible chat completions API.
type chatCompletions struct {
	name     string
	client   openai.Client
	settings settings
}

func newOpenAI(pc config.ProviderConfig, httpClient *http.Client) (*chatCompletions, error) {
	key := strings.TrimSpace(pc.APIKey)
	if key == "" {
		return nil, errors.New("openai api_key is required")
	}
	s := settingsFrom(pc, openAIDefaultModel)
	baseURL := cmp.Or(strings.TrimSpace(pc.APIURL), openAIDefaultURL)

	slog.Debug("openai_backend_ready", "api_url", baseURL, "model", s.model, "timeout", s.timeout)
	return &chatCompletions{
		name: config.ProviderOpenAI,
		client: openai.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(s.httpClient(httpClient)),
		),
		settings: s,
	}, nil
}

func newOpenRouter(oc config.OpenRouterConfig, httpClient *http.Client) (*chatCompletions, error) {
	switch {
	case strings.TrimSpace(oc.APIKey) == "":
		return nil, errors.New("openrouter api_key is required")
	case strings.TrimSpace(oc.APIURL) == "":
		return nil, errors.New("openrouter api_url is required")
	case strings.TrimSpace(oc.Model) == "":
		return nil, errors.New("openrouter model is required")
	case oc.APITimeoutSeconds <= 0:
		return nil, errors.New("openrouter api_timeout_seconds must be positive")
	}

	s := settingsFrom(config.ProviderConfig{
		Model:             oc.Model,
		Temperature:       oc.Temperature,
		MaxTokens:         oc.MaxTokens,
		APITimeoutSeconds: oc.APITimeoutSeconds,
	}, "")
	opts := []option.RequestOption{
		option.WithAPIKey(oc.APIKey),
		option.WithBaseURL(oc.APIURL),
		option.WithHTTPClient(s.httpClient(httpClient)),
	}
	if ref := strings.TrimSpace(oc.HTTPReferer); ref != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", ref))
	}
	if title := strings.TrimSpace(oc.XTitle); title != "" {
		opts = append(opts, option.WithHeader("X-Title", title))
	}

	slog.Debug("openrouter_backend_ready", "api_url", oc.APIURL, "model", s.model, "timeout", s.timeout)
	return &chatCompletions{
		name:     config.ProviderOpenRouter,
		client:   openai.NewClient(opts...),
		settings: s,
	}, nil
}

func (p *chatCompletions) Stream(ctx context.Context, req ai.Request) (ai.Stream, error) {
	req, err := p.settings.complete(req)
	if err != nil {
		return nil, err
	}
	params, err := completionParams(req)
	if err != nil {
		return nil, err
	}

	slog.Debug("chat_completions_stream",
		"backend", p.name,
		"model", req.Model,
		"messages", len(req.Messages),
		"temperature", req.Temperature,
		"max_tokens", req.MaxTokens,
	)
	sse := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := sse.Err(); err != nil {
		return nil, err
	}

	pull := func() (chunk, bool) {
		if !sse.Next() {
			return chunk{err: sse.Err()}, false
		}
		cur := sse.Current()
		if len(cur.Choices) == 0 {
			return chunk{}, true
		}
		choice := cur.Choices[0]
		return chunk{delta: choice.Delta.Content, finish: string(choice.FinishReason)}, true
	}
	return newPullStream(pull, sse.Close), nil
}

func completionParams(req ai.Request) (openai.ChatCompletionNewParams, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case ai.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "developer":
			msgs = append(msgs, openai.DeveloperMessage(m.Content))
		case ai.RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case ai.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported role: %s", m.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params, nil
}
