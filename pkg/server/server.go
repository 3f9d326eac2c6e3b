// Package server exposes a model provider as the streaming chat endpoint
// consumed by transport.HTTPClient.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/datastream"
	"goon_chat/pkg/transport"
	"goon_chat/pkg/version"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	maxRequestBytes = 1 << 20

	errInvalidRequest = "Invalid chat request"
	errChatFailed     = "Failed to process chat request"
	// errStreamMasked replaces mid-stream failure text outside development.
	errStreamMasked = "An error occurred."
)

var validate = validator.New()

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"max=32000"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages" validate:"required,min=1,max=200,dive"`
}

// Options configures a Handler.
type Options struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	// Development adds error details to failure responses.
	Development bool
	Logger      *slog.Logger
}

// Handler serves POST /api/chat and GET /healthz.
type Handler struct {
	client *transport.ProviderClient
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler returns a handler streaming replies from provider.
func NewHandler(provider ai.Provider, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		client: transport.NewProviderClient(provider, transport.Settings{
			Model:        opts.Model,
			Temperature:  opts.Temperature,
			MaxTokens:    opts.MaxTokens,
			SystemPrompt: opts.SystemPrompt,
		}),
		opts:   opts,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("POST "+transport.ChatPath, h.handleChat)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("server_chat_bad_request", "error", err)
		h.writeError(w, http.StatusBadRequest, errInvalidRequest, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.logger.Warn("server_chat_invalid_request", "error", err)
		h.writeError(w, http.StatusBadRequest, errInvalidRequest, err)
		return
	}

	lang, confidence := detectLanguage(req.Messages)
	h.logger.Info("server_chat_request",
		"messages", len(req.Messages),
		"lang", lang,
		"lang_confidence", confidence,
		"remote", r.RemoteAddr,
	)

	history := lo.Map(req.Messages, func(m chatMessage, _ int) transport.Message {
		return transport.Message{Role: m.Role, Content: m.Content}
	})
	events, err := h.client.Stream(r.Context(), history)
	if err != nil {
		h.logger.Error("server_chat_stream_error", "error", err)
		h.writeError(w, http.StatusInternalServerError, errChatFailed, err)
		return
	}

	w.Header().Set("Content-Type", datastream.ContentType)
	w.Header().Set(datastream.HeaderName, datastream.HeaderValue)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	dw := datastream.NewWriter(w)
	fragments := 0
	for ev := range events {
		if ev.Delta != "" {
			fragments++
			if err := dw.WriteText(ev.Delta); err != nil {
				h.logger.Info("server_chat_client_gone", "error", err)
				return
			}
		}
		if !ev.Done {
			continue
		}
		if ev.Err != nil {
			_ = dw.WriteError(h.streamErrorMessage(ev.Err))
			return
		}
		_ = dw.WriteFinish(ev.FinishReason)
		h.logger.Info("server_chat_done",
			"fragments", fragments,
			"finish_reason", ev.FinishReason,
		)
		return
	}
	h.logger.Info("server_chat_cancelled", "fragments", fragments, "error", r.Context().Err())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Summary(),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, err error) {
	body := transport.ErrorResponse{Error: message}
	if h.opts.Development && err != nil {
		body.Details = err.Error()
	}
	writeJSON(w, status, body)
}

func (h *Handler) streamErrorMessage(err error) string {
	if h.opts.Development {
		return err.Error()
	}
	return errStreamMasked
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// detectLanguage guesses the language of the latest user turn.
func detectLanguage(msgs []chatMessage) (string, float64) {
	last, _, ok := lo.FindLastIndexOf(msgs, func(m chatMessage) bool {
		return m.Role == "user" && strings.TrimSpace(m.Content) != ""
	})
	if !ok {
		return "", 0
	}
	info := whatlanggo.Detect(last.Content)
	return info.Lang.Iso6391(), info.Confidence
}
