package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"goon_chat/pkg/datastream"
	"goon_chat/pkg/logging"
)

// ChatPath is the path of the streaming chat endpoint.
const ChatPath = "/api/chat"

const maxErrorBody = 64 << 10

// ChatRequest is the body posted to the chat endpoint.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// ErrorResponse is the JSON body of a failed chat request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HTTPClient streams replies from a chat endpoint.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient returns a client for the endpoint at baseURL. A nil
// httpClient gets one with the given timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, httpClient *http.Client) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid endpoint url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		endpoint:   base + ChatPath,
		httpClient: httpClient,
		logger:     slog.Default(),
	}, nil
}

// Stream posts history and decodes the data stream response.
func (c *HTTPClient) Stream(ctx context.Context, history []Message) (<-chan Event, error) {
	body, err := json.Marshal(ChatRequest{Messages: history})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.logger.Enabled(ctx, logging.LevelTrace) {
		c.logger.Log(ctx, logging.LevelTrace, "transport_http_request",
			"endpoint", c.endpoint,
			"body", string(body),
		)
	}
	c.logger.Info("transport_http_stream_start",
		"endpoint", c.endpoint,
		"history_messages", len(history),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("transport_http_request_error", "error", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		statusErr := decodeStatusError(resp)
		c.logger.Error("transport_http_status_error",
			"status", resp.StatusCode,
			"error", statusErr.Message,
		)
		return nil, statusErr
	}

	ch := make(chan Event, 8)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		reader := datastream.NewReader(resp.Body)
		for {
			part, err := reader.Next()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				c.logger.Error("transport_http_decode_error", "error", err)
				emit(ctx, ch, Event{Err: fmt.Errorf("decode chat stream: %w", err), Done: true})
				return
			}

			switch part.Type {
			case datastream.TypeText:
				if part.Text == "" {
					continue
				}
				if !emit(ctx, ch, Event{Delta: part.Text}) {
					return
				}
			case datastream.TypeError:
				c.logger.Error("transport_http_stream_error", "error", part.Error)
				emit(ctx, ch, Event{Err: &StreamError{Message: part.Error}, Done: true})
				return
			case datastream.TypeFinish:
				c.logger.Info("transport_http_stream_done", "finish_reason", part.FinishReason)
				emit(ctx, ch, Event{Done: true, FinishReason: part.FinishReason})
				return
			}
		}
	}()

	return ch, nil
}

func decodeStatusError(resp *http.Response) *StatusError {
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return statusErr
	}

	var payload ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		statusErr.Message = payload.Error
		statusErr.Details = payload.Details
		return statusErr
	}
	statusErr.Message = strings.TrimSpace(string(data))
	return statusErr
}
