package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/config"

	copilot "github.com/github/copilot-sdk/go"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func sseResponse(req *http.Request, status int, events ...string) *http.Response {
	var body bytes.Buffer
	for _, ev := range events {
		fmt.Fprintf(&body, "data: %s\n\n", ev)
	}
	resp := &http.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(&body),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "text/event-stream")
	return resp
}

func drain(t *testing.T, s ai.Stream) string {
	t.Helper()
	defer s.Close()
	var out strings.Builder
	for s.Next() {
		out.WriteString(s.Delta())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return out.String()
}

func userTurn(text string) []ai.Message {
	return []ai.Message{{Role: ai.RoleUser, Content: text}}
}

func TestPullStream(t *testing.T) {
	chunks := []chunk{{delta: "Hel"}, {}, {delta: "lo", finish: "MAX_TOKENS"}}
	closed := false
	s := newPullStream(func() (chunk, bool) {
		if len(chunks) == 0 {
			return chunk{}, false
		}
		c := chunks[0]
		chunks = chunks[1:]
		return c, true
	}, func() error { closed = true; return nil })

	if got := drain(t, s); got != "Hello" {
		t.Errorf("text = %q, want %q", got, "Hello")
	}
	if got := s.FinishReason(); got != ai.FinishReasonLength {
		t.Errorf("FinishReason() = %q, want %q", got, ai.FinishReasonLength)
	}
	if !closed {
		t.Error("expected closer to run")
	}
	if s.Next() {
		t.Error("Next() after Close should be false")
	}
}

func TestPullStream_DefaultsToStopAndKeepsErrors(t *testing.T) {
	empty := newPullStream(func() (chunk, bool) { return chunk{}, false }, nil)
	if empty.Next() {
		t.Fatal("expected no deltas")
	}
	if got := empty.FinishReason(); got != ai.FinishReasonStop {
		t.Errorf("FinishReason() = %q, want stop", got)
	}

	boom := errors.New("boom")
	failing := newPullStream(func() (chunk, bool) { return chunk{err: boom}, false }, nil)
	if failing.Next() {
		t.Fatal("expected no deltas")
	}
	if !errors.Is(failing.Err(), boom) {
		t.Errorf("Err() = %v, want %v", failing.Err(), boom)
	}
	if got := failing.FinishReason(); got != "" {
		t.Errorf("FinishReason() = %q, want empty on error", got)
	}
}

func TestSettingsComplete(t *testing.T) {
	s := settingsFrom(config.ProviderConfig{Temperature: 0.7, MaxTokens: 300, APITimeoutSeconds: 5}, "fallback-model")
	if s.timeout.Seconds() != 5 {
		t.Errorf("timeout = %v, want 5s", s.timeout)
	}

	got, err := s.complete(ai.Request{Messages: userTurn("hi")})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Model != "fallback-model" || got.Temperature != 0.7 || got.MaxTokens != 300 {
		t.Errorf("defaults not applied: %+v", got)
	}

	got, err = s.complete(ai.Request{Model: " custom ", Temperature: 0.1, MaxTokens: 10, Messages: userTurn("hi")})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Model != "custom" || got.Temperature != 0.1 || got.MaxTokens != 10 {
		t.Errorf("request values overridden: %+v", got)
	}

	if _, err := s.complete(ai.Request{}); err == nil || !strings.Contains(err.Error(), "messages are required") {
		t.Errorf("expected messages error, got %v", err)
	}
	if _, err := (settings{}).complete(ai.Request{Messages: userTurn("hi")}); err == nil || !strings.Contains(err.Error(), "model is required") {
		t.Errorf("expected model error, got %v", err)
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]ai.Message{
		{Role: "system", Content: " You are Goon. "},
		{Role: "assistant", Content: "Hey!"},
		{Role: "developer", Content: "Be brief."},
		{Role: "system", Content: "  "},
		{Role: "tool", Content: "42"},
		{Role: "USER", Content: "Hi"},
	})

	if system != "You are Goon.\n\nBe brief." {
		t.Errorf("system = %q", system)
	}
	want := []ai.Message{
		{Role: ai.RoleAssistant, Content: "Hey!"},
		{Role: ai.RoleUser, Content: "42"},
		{Role: ai.RoleUser, Content: "Hi"},
	}
	if len(turns) != len(want) {
		t.Fatalf("turns = %+v, want %+v", turns, want)
	}
	for i := range want {
		if turns[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, turns[i], want[i])
		}
	}
}

func openRouterConfig() config.OpenRouterConfig {
	return config.OpenRouterConfig{
		APIKey:            "or-key",
		APIURL:            "https://openrouter.example/api/v1",
		HTTPReferer:       "https://goon.example",
		XTitle:            "Goon Chat",
		Model:             "openai/gpt-4o-mini",
		Temperature:       0.7,
		MaxTokens:         500,
		APITimeoutSeconds: 30,
	}
}

func TestOpenRouter_Stream(t *testing.T) {
	var gotPath, gotAuth, gotReferer, gotTitle string
	var gotPayload map[string]any
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		gotAuth = req.Header.Get("Authorization")
		gotReferer = req.Header.Get("HTTP-Referer")
		gotTitle = req.Header.Get("X-Title")
		if err := json.NewDecoder(req.Body).Decode(&gotPayload); err != nil {
			return nil, err
		}
		return sseResponse(req, http.StatusOK,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"length"}]}`,
			`[DONE]`,
		), nil
	})}

	p, err := newOpenRouter(openRouterConfig(), client)
	if err != nil {
		t.Fatalf("newOpenRouter: %v", err)
	}
	s, err := p.Stream(context.Background(), ai.Request{
		Messages: []ai.Message{{Role: ai.RoleSystem, Content: "You are Goon."}, {Role: ai.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if got := drain(t, s); got != "Hello" {
		t.Errorf("text = %q, want %q", got, "Hello")
	}
	if got := s.FinishReason(); got != ai.FinishReasonLength {
		t.Errorf("FinishReason() = %q, want length", got)
	}
	if gotPath != "/api/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer or-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReferer != "https://goon.example" || gotTitle != "Goon Chat" {
		t.Errorf("attribution headers = %q, %q", gotReferer, gotTitle)
	}
	if gotPayload["model"] != "openai/gpt-4o-mini" {
		t.Errorf("model = %v", gotPayload["model"])
	}
	if gotPayload["temperature"] != 0.7 {
		t.Errorf("temperature = %v", gotPayload["temperature"])
	}
	if gotPayload["max_tokens"] != float64(500) {
		t.Errorf("max_tokens = %v", gotPayload["max_tokens"])
	}
	if gotPayload["stream"] != true {
		t.Errorf("stream = %v", gotPayload["stream"])
	}
	if msgs, _ := gotPayload["messages"].([]any); len(msgs) != 2 {
		t.Errorf("messages = %v", gotPayload["messages"])
	}
}

func TestOpenRouter_RejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.OpenRouterConfig)
		want   string
	}{
		{"no key", func(c *config.OpenRouterConfig) { c.APIKey = " " }, "api_key is required"},
		{"no url", func(c *config.OpenRouterConfig) { c.APIURL = "" }, "api_url is required"},
		{"no model", func(c *config.OpenRouterConfig) { c.Model = "" }, "model is required"},
		{"no timeout", func(c *config.OpenRouterConfig) { c.APITimeoutSeconds = 0 }, "api_timeout_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := openRouterConfig()
			tt.mutate(&cfg)
			if _, err := newOpenRouter(cfg, nil); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestOpenAI_StreamDefaults(t *testing.T) {
	var gotURL string
	var gotPayload map[string]any
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		if err := json.NewDecoder(req.Body).Decode(&gotPayload); err != nil {
			return nil, err
		}
		return sseResponse(req, http.StatusOK,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"Sure."},"finish_reason":"stop"}]}`,
			`[DONE]`,
		), nil
	})}

	if _, err := newOpenAI(config.ProviderConfig{}, client); err == nil {
		t.Fatal("expected error without api key")
	}
	p, err := newOpenAI(config.ProviderConfig{APIKey: "sk-test"}, client)
	if err != nil {
		t.Fatalf("newOpenAI: %v", err)
	}
	s, err := p.Stream(context.Background(), ai.Request{Messages: userTurn("Hi")})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if got := drain(t, s); got != "Sure." {
		t.Errorf("text = %q", got)
	}
	if got := s.FinishReason(); got != ai.FinishReasonStop {
		t.Errorf("FinishReason() = %q, want stop", got)
	}
	if gotURL != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("url = %q", gotURL)
	}
	if gotPayload["model"] != openAIDefaultModel {
		t.Errorf("model = %v", gotPayload["model"])
	}
	if _, ok := gotPayload["temperature"]; ok {
		t.Errorf("zero temperature should be omitted, got %v", gotPayload["temperature"])
	}
}

func TestCompletionParams_RejectsUnknownRole(t *testing.T) {
	_, err := completionParams(ai.Request{Model: "m", Messages: []ai.Message{{Role: "tool", Content: "x"}}})
	if err == nil || !strings.Contains(err.Error(), "unsupported role") {
		t.Errorf("error = %v", err)
	}
}

func TestAnthropic_Stream(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody messagesBody
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		gotKey = req.Header.Get("x-api-key")
		gotVersion = req.Header.Get("anthropic-version")
		if err := json.NewDecoder(req.Body).Decode(&gotBody); err != nil {
			return nil, err
		}
		return sseResponse(req, http.StatusOK,
			`{"type":"message_start","message":{"id":"msg_1"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hey "}}`,
			`{"type":"ping"}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"there"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`,
			`{"type":"message_stop"}`,
		), nil
	})}

	p, err := newAnthropic(config.ProviderConfig{APIKey: "ak", Temperature: 0.5}, client)
	if err != nil {
		t.Fatalf("newAnthropic: %v", err)
	}
	s, err := p.Stream(context.Background(), ai.Request{Messages: []ai.Message{
		{Role: ai.RoleSystem, Content: "You are Goon."},
		{Role: ai.RoleAssistant, Content: "Hey, I'm Goon!"},
		{Role: ai.RoleUser, Content: "Hi"},
	}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if got := drain(t, s); got != "Hey there" {
		t.Errorf("text = %q", got)
	}
	if got := s.FinishReason(); got != ai.FinishReasonLength {
		t.Errorf("FinishReason() = %q, want length", got)
	}
	if gotPath != "/v1/messages" || gotKey != "ak" || gotVersion != anthropicVersion {
		t.Errorf("request = %q key=%q version=%q", gotPath, gotKey, gotVersion)
	}
	if gotBody.Model != anthropicDefaultModel || gotBody.MaxTokens != anthropicDefaultMaxTokens || !gotBody.Stream {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.System != "You are Goon.\n\n"+greetingPrefix+"Hey, I'm Goon!" {
		t.Errorf("system = %q", gotBody.System)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != ai.RoleUser {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
}

func TestAnthropic_Errors(t *testing.T) {
	if _, err := newAnthropic(config.ProviderConfig{}, nil); err == nil {
		t.Fatal("expected error without api key")
	}

	status := http.StatusUnauthorized
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if status != http.StatusOK {
			resp := sseResponse(req, status)
			resp.Body = io.NopCloser(strings.NewReader(`{"error":{"message":"bad key"}}`))
			return resp, nil
		}
		return sseResponse(req, status,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Par"}}`,
			`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		), nil
	})}
	p, err := newAnthropic(config.ProviderConfig{APIKey: "ak"}, client)
	if err != nil {
		t.Fatalf("newAnthropic: %v", err)
	}

	_, err = p.Stream(context.Background(), ai.Request{Messages: userTurn("Hi")})
	if err == nil || !strings.Contains(err.Error(), "status 401") || !strings.Contains(err.Error(), "bad key") {
		t.Errorf("status error = %v", err)
	}

	status = http.StatusOK
	s, err := p.Stream(context.Background(), ai.Request{Messages: userTurn("Hi")})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()
	if !s.Next() || s.Delta() != "Par" {
		t.Fatalf("expected first delta, got %q", s.Delta())
	}
	if s.Next() {
		t.Fatal("expected stream to stop on error event")
	}
	if s.Err() == nil || !strings.Contains(s.Err().Error(), "Overloaded") {
		t.Errorf("Err() = %v", s.Err())
	}

	if _, err := messagesBodyFor(ai.Request{Messages: []ai.Message{{Role: ai.RoleAssistant, Content: "Hey"}}}); err == nil {
		t.Error("expected error when only the greeting is present")
	}
}

func TestSSEReader(t *testing.T) {
	r := newSSEReader(strings.NewReader("event: a\ndata: one\n\n: comment\ndata: two\ndata:three\n\ndata: tail"))
	for _, want := range []string{"one", "two\nthree", "tail"} {
		got, err := r.next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Errorf("next() = %q, want %q", got, want)
		}
	}
	if _, err := r.next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestCopilotPrompt(t *testing.T) {
	system, prompt, err := copilotPrompt([]ai.Message{
		{Role: ai.RoleSystem, Content: "You are Goon."},
		{Role: ai.RoleAssistant, Content: "Hey!"},
		{Role: ai.RoleUser, Content: "  "},
		{Role: ai.RoleUser, Content: "How do I start?"},
	})
	if err != nil {
		t.Fatalf("copilotPrompt: %v", err)
	}
	if system != "You are Goon." {
		t.Errorf("system = %q", system)
	}
	if prompt != "Assistant: Hey!\n\nUser: How do I start?" {
		t.Errorf("prompt = %q", prompt)
	}

	if _, _, err := copilotPrompt([]ai.Message{{Role: ai.RoleSystem, Content: "x"}}); err == nil {
		t.Error("expected error without dialogue")
	}
}

type fakeCopilotClient struct {
	status   *copilot.GetAuthStatusResponse
	session  copilotSession
	created  *copilot.SessionConfig
	started  int
	stopped  int
	startErr error
}

func (c *fakeCopilotClient) Start() error { c.started++; return c.startErr }

func (c *fakeCopilotClient) Stop() []error { c.stopped++; return nil }

func (c *fakeCopilotClient) GetAuthStatus() (*copilot.GetAuthStatusResponse, error) {
	return c.status, nil
}

func (c *fakeCopilotClient) CreateSession(sc *copilot.SessionConfig) (copilotSession, error) {
	c.created = sc
	return c.session, nil
}

type fakeCopilotSession struct{}

func (fakeCopilotSession) Send(copilot.MessageOptions) (string, error) { return "id", nil }

func (fakeCopilotSession) On(copilot.SessionEventHandler) func() { return func() {} }

func (fakeCopilotSession) Abort() error { return nil }

func (fakeCopilotSession) Destroy() error { return nil }

func TestOpenCopilotSession(t *testing.T) {
	msg := "Run `copilot auth login` first"
	signedOut := &fakeCopilotClient{status: &copilot.GetAuthStatusResponse{StatusMessage: &msg}}
	if _, err := openCopilotSession(signedOut, "gpt-4o", ""); err == nil || err.Error() != msg {
		t.Errorf("error = %v, want %q", err, msg)
	}
	if signedOut.stopped != 1 {
		t.Errorf("client should be stopped after auth failure, stopped=%d", signedOut.stopped)
	}

	client := &fakeCopilotClient{
		status:  &copilot.GetAuthStatusResponse{IsAuthenticated: true},
		session: fakeCopilotSession{},
	}
	if _, err := openCopilotSession(client, "gpt-4o", " You are Goon. "); err != nil {
		t.Fatalf("openCopilotSession: %v", err)
	}
	if client.created == nil || client.created.Model != "gpt-4o" || !client.created.Streaming {
		t.Fatalf("session config = %+v", client.created)
	}
	if sm := client.created.SystemMessage; sm == nil || sm.Mode != "append" || sm.Content != "You are Goon." {
		t.Errorf("system message = %+v", sm)
	}
}

func TestCopilotFeed(t *testing.T) {
	feed := newCopilotFeed()
	go func() {
		feed.push(copilotEvent{chunk: chunk{delta: "Hi "}})
		feed.push(copilotEvent{chunk: chunk{delta: "there"}})
		feed.push(copilotEvent{chunk: chunk{finish: ai.FinishReasonStop}, last: true})
	}()

	s := newPullStream(feed.pull, func() error { feed.close(); return nil })
	if got := drain(t, s); got != "Hi there" {
		t.Errorf("text = %q", got)
	}
	if got := s.FinishReason(); got != ai.FinishReasonStop {
		t.Errorf("FinishReason() = %q", got)
	}

	// A push after close must not block.
	feed.push(copilotEvent{chunk: chunk{delta: "late"}})
}
