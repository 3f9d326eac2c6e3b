package providers

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/config"

	"google.golang.org/genai"
)

const googleDefaultModel = "gemini-2.5-flash"

func init() {
	ai.Register(ai.Backend{
		Type:        ai.ProviderGoogle,
		Name:        "Google",
		Description: "Gemini models through the Gemini API",
		Auth:        ai.AuthAPIKey,
		New: func(cfg config.Config) (ai.Provider, error) {
			return newGemini(context.Background(), cfg.Providers.Google)
		},
	})
}

// contentStreamer is the slice of genai.Models Goon uses.
type contentStreamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

var dialGemini = func(ctx context.Context, key string) (contentStreamer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

type gemini struct {
	models   contentStreamer
	settings settings
}

func newGemini(ctx context.Context, pc config.ProviderConfig) (*gemini, error) {
	key := strings.TrimSpace(pc.APIKey)
	if key == "" {
		return nil, errors.New("google api_key is required")
	}
	models, err := dialGemini(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	s := settingsFrom(pc, googleDefaultModel)
	slog.Debug("google_backend_ready", "model", s.model, "timeout", s.timeout)
	return &gemini{models: models, settings: s}, nil
}

// generateParams converts a request into Gemini contents and config.
// Thinking is disabled so replies start streaming immediately.
func generateParams(req ai.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, turns := splitSystem(req.Messages)
	if len(turns) == 0 {
		return nil, nil, errors.New("at least one user or assistant message is required")
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := genai.Role(genai.RoleUser)
		if turn.Role == ai.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(0)),
		},
	}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, "")
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	return contents, gc, nil
}

func (p *gemini) Stream(ctx context.Context, req ai.Request) (ai.Stream, error) {
	req, err := p.settings.complete(req)
	if err != nil {
		return nil, err
	}
	contents, gc, err := generateParams(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		callCtx, cancel = context.WithTimeout(ctx, p.settings.timeout)
	}

	slog.Debug("google_stream", "model", req.Model, "contents", len(contents))
	next, stop := iter.Pull2(p.models.GenerateContentStream(callCtx, req.Model, contents, gc))

	// Some responses repeat the text so far instead of sending only the new
	// part; seen tracks what has been emitted.
	var seen string
	pull := func() (chunk, bool) {
		resp, err, ok := next()
		if !ok {
			return chunk{}, false
		}
		if err != nil {
			return chunk{err: err}, false
		}
		c := chunk{finish: finishReasonOf(resp)}
		text := visibleText(resp)
		if rest, cumulative := strings.CutPrefix(text, seen); cumulative && seen != "" {
			text = rest
		}
		seen += text
		c.delta = text
		return c, true
	}
	closer := func() error {
		stop()
		cancel()
		return nil
	}
	return newPullStream(pull, closer), nil
}

func finishReasonOf(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return ""
	}
	return string(resp.Candidates[0].FinishReason)
}

// visibleText joins the text parts of the first candidate, skipping thoughts.
func visibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
