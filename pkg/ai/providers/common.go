// Package providers registers the LLM backends Goon can talk to. Import it
// for side effects.
package providers

import (
	"cmp"
	"errors"
	"net/http"
	"strings"
	"time"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/config"
)

const defaultTimeout = 60 * time.Second

// settings are a backend's configured fallbacks for a request.
type settings struct {
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

func settingsFrom(pc config.ProviderConfig, defaultModel string) settings {
	s := settings{
		model:       cmp.Or(strings.TrimSpace(pc.Model), defaultModel),
		temperature: pc.Temperature,
		maxTokens:   pc.MaxTokens,
		timeout:     defaultTimeout,
	}
	if pc.APITimeoutSeconds > 0 {
		s.timeout = time.Duration(pc.APITimeoutSeconds) * time.Second
	}
	return s
}

// complete fills the zero fields of req from s and rejects requests no
// backend can serve.
func (s settings) complete(req ai.Request) (ai.Request, error) {
	req.Model = cmp.Or(strings.TrimSpace(req.Model), s.model)
	if req.Model == "" {
		return req, errors.New("model is required")
	}
	if len(req.Messages) == 0 {
		return req, errors.New("messages are required")
	}
	if req.Temperature <= 0 {
		req.Temperature = s.temperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = s.maxTokens
	}
	return req, nil
}

func (s settings) httpClient(override *http.Client) *http.Client {
	if override != nil {
		return override
	}
	return &http.Client{Timeout: s.timeout}
}

// splitSystem pulls system and developer turns out of msgs. Every other role
// that is not assistant is treated as user.
func splitSystem(msgs []ai.Message) (string, []ai.Message) {
	var system []string
	turns := make([]ai.Message, 0, len(msgs))
	for _, msg := range msgs {
		switch role := strings.ToLower(strings.TrimSpace(msg.Role)); role {
		case ai.RoleSystem, "developer":
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, text)
			}
		case ai.RoleAssistant:
			turns = append(turns, ai.Message{Role: ai.RoleAssistant, Content: msg.Content})
		default:
			turns = append(turns, ai.Message{Role: ai.RoleUser, Content: msg.Content})
		}
	}
	return strings.Join(system, "\n\n"), turns
}
