package providers

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/config"
)

const (
	anthropicDefaultURL       = "https://api.anthropic.com/v1"
	anthropicDefaultModel     = "claude-3-5-haiku-latest"
	anthropicDefaultMaxTokens = 1000
	anthropicVersion          = "2023-06-01"

	// greetingPrefix introduces a folded opening assistant turn in the system
	// prompt.
	greetingPrefix = "Your previous greeting to the user was:\n"
)

func init() {
	ai.Register(ai.Backend{
		Type:        ai.ProviderAnthropic,
		Name:        "Anthropic",
		Description: "Claude through the Anthropic messages API",
		Auth:        ai.AuthAPIKey,
		New: func(cfg config.Config) (ai.Provider, error) {
			return newAnthropic(cfg.Providers.Anthropic, nil)
		},
	})
}

// anthropic talks to the messages API directly over HTTP and SSE.
type anthropic struct {
	key      string
	baseURL  string
	client   *http.Client
	settings settings
}

func newAnthropic(pc config.ProviderConfig, httpClient *http.Client) (*anthropic, error) {
	key := strings.TrimSpace(pc.APIKey)
	if key == "" {
		return nil, errors.New("anthropic api_key is required")
	}
	s := settingsFrom(pc, anthropicDefaultModel)
	return &anthropic{
		key:      key,
		baseURL:  cmp.Or(strings.TrimRight(strings.TrimSpace(pc.APIURL), "/"), anthropicDefaultURL),
		client:   s.httpClient(httpClient),
		settings: s,
	}, nil
}

type messagesBody struct {
	Model       string       `json:"model"`
	System      string       `json:"system,omitempty"`
	Messages    []ai.Message `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature,omitempty"`
	Stream      bool         `json:"stream"`
}

// messagesBodyFor maps a request onto the messages API. The API requires the
// dialogue to open with a user turn, and a Goon conversation always opens
// with the welcome greeting, so a leading assistant turn moves into the
// system prompt.
func messagesBodyFor(req ai.Request) (messagesBody, error) {
	system, turns := splitSystem(req.Messages)
	if len(turns) > 0 && turns[0].Role == ai.RoleAssistant {
		greeting := greetingPrefix + turns[0].Content
		system = strings.TrimSpace(strings.Join([]string{system, greeting}, "\n\n"))
		turns = turns[1:]
	}
	if len(turns) == 0 {
		return messagesBody{}, errors.New("at least one user message is required")
	}
	return messagesBody{
		Model:       req.Model,
		System:      system,
		Messages:    turns,
		MaxTokens:   cmp.Or(req.MaxTokens, anthropicDefaultMaxTokens),
		Temperature: req.Temperature,
		Stream:      true,
	}, nil
}

func (p *anthropic) Stream(ctx context.Context, req ai.Request) (ai.Stream, error) {
	req, err := p.settings.complete(req)
	if err != nil {
		return nil, err
	}
	body, err := messagesBodyFor(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", p.key)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	slog.Debug("anthropic_stream", "model", body.Model, "messages", len(body.Messages), "max_tokens", body.MaxTokens)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	events := newSSEReader(resp.Body)
	return newPullStream(func() (chunk, bool) { return nextAnthropicChunk(events) }, resp.Body.Close), nil
}

// anthropicEvent holds the fields of the SSE payloads Goon acts on.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func nextAnthropicChunk(events *sseReader) (chunk, bool) {
	for {
		data, err := events.next()
		if errors.Is(err, io.EOF) {
			return chunk{}, false
		}
		if err != nil {
			return chunk{err: err}, false
		}

		var ev anthropicEvent
		if json.Unmarshal([]byte(data), &ev) != nil {
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" {
				return chunk{delta: ev.Delta.Text}, true
			}
		case "message_delta":
			return chunk{finish: ev.Delta.StopReason}, true
		case "message_stop":
			return chunk{}, false
		case "error":
			return chunk{err: fmt.Errorf("anthropic stream error (%s): %s", ev.Error.Type, ev.Error.Message)}, false
		}
	}
}

// sseReader yields the data payload of each server-sent event. Multi-line
// data fields are joined with newlines.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseReader{scanner: sc}
}

func (r *sseReader) next() (string, error) {
	var data []string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	return "", io.EOF
}
