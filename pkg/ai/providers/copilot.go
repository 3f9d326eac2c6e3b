package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/config"

	copilot "github.com/github/copilot-sdk/go"
)

const copilotDefaultModel = "gpt-4o"

func init() {
	ai.Register(ai.Backend{
		Type:        ai.ProviderCopilot,
		Name:        "GitHub Copilot",
		Description: "Copilot SDK session, signed in through the Copilot CLI",
		Auth:        ai.AuthCopilotCLI,
		New: func(cfg config.Config) (ai.Provider, error) {
			return newCopilot(cfg.Providers.Copilot), nil
		},
	})
}

// copilotClient and copilotSession are the parts of the SDK Goon drives.
type copilotClient interface {
	Start() error
	Stop() []error
	GetAuthStatus() (*copilot.GetAuthStatusResponse, error)
	CreateSession(config *copilot.SessionConfig) (copilotSession, error)
}

type copilotSession interface {
	Send(options copilot.MessageOptions) (string, error)
	On(handler copilot.SessionEventHandler) func()
	Abort() error
	Destroy() error
}

type sdkClient struct{ *copilot.Client }

func (c sdkClient) CreateSession(config *copilot.SessionConfig) (copilotSession, error) {
	session, err := c.Client.CreateSession(config)
	if err != nil {
		return nil, err
	}
	return session, nil
}

var dialCopilot = func() copilotClient {
	return sdkClient{copilot.NewClient(nil)}
}

// copilotBackend runs one Copilot session per reply. A session takes a single
// prompt, so the dialogue is flattened into labelled turns and the system
// prompt is appended to Copilot's own.
type copilotBackend struct {
	settings settings
}

func newCopilot(pc config.ProviderConfig) *copilotBackend {
	s := settingsFrom(pc, copilotDefaultModel)
	slog.Debug("copilot_backend_ready", "model", s.model, "timeout", s.timeout)
	return &copilotBackend{settings: s}
}

// copilotPrompt returns the system text and the flattened dialogue.
func copilotPrompt(msgs []ai.Message) (string, string, error) {
	system, turns := splitSystem(msgs)
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Content)
		if text == "" {
			continue
		}
		label := "User"
		if turn.Role == ai.RoleAssistant {
			label = "Assistant"
		}
		lines = append(lines, label+": "+text)
	}
	if len(lines) == 0 {
		return "", "", errors.New("messages are required")
	}
	return system, strings.Join(lines, "\n\n"), nil
}

func (p *copilotBackend) Stream(ctx context.Context, req ai.Request) (ai.Stream, error) {
	req, err := p.settings.complete(req)
	if err != nil {
		return nil, err
	}
	system, prompt, err := copilotPrompt(req.Messages)
	if err != nil {
		return nil, err
	}

	client := dialCopilot()
	session, err := openCopilotSession(client, req.Model, system)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		callCtx, cancel = context.WithTimeout(ctx, p.settings.timeout)
	}

	feed := newCopilotFeed()
	unsubscribe := session.On(feed.handle)
	stopWatch := context.AfterFunc(callCtx, func() {
		slog.Debug("copilot_session_abort", "reason", callCtx.Err())
		_ = session.Abort()
		feed.push(copilotEvent{chunk: chunk{err: callCtx.Err()}, last: true})
	})

	go func() {
		slog.Debug("copilot_send", "model", req.Model, "prompt_chars", len(prompt))
		if _, err := session.Send(copilot.MessageOptions{Prompt: prompt}); err != nil {
			feed.push(copilotEvent{chunk: chunk{err: err}, last: true})
		}
	}()

	closer := func() error {
		feed.close()
		stopWatch()
		cancel()
		unsubscribe()
		_ = session.Destroy()
		stopCopilot(client)
		return nil
	}
	return newPullStream(feed.pull, closer), nil
}

// openCopilotSession starts client, checks that the CLI is signed in and
// opens a streaming session. The client is stopped again on failure.
func openCopilotSession(client copilotClient, model, system string) (copilotSession, error) {
	if err := client.Start(); err != nil {
		return nil, fmt.Errorf("copilot client start: %w", err)
	}
	if err := copilotSignedIn(client); err != nil {
		stopCopilot(client)
		return nil, err
	}

	sc := &copilot.SessionConfig{Model: model, Streaming: true}
	if system = strings.TrimSpace(system); system != "" {
		sc.SystemMessage = &copilot.SystemMessageConfig{Mode: "append", Content: system}
	}
	session, err := client.CreateSession(sc)
	if err != nil {
		stopCopilot(client)
		return nil, fmt.Errorf("copilot session create: %w", err)
	}
	return session, nil
}

func copilotSignedIn(client copilotClient) error {
	status, err := client.GetAuthStatus()
	if err != nil {
		return fmt.Errorf("copilot auth status: %w", err)
	}
	if status != nil && status.IsAuthenticated {
		return nil
	}
	if status != nil && status.StatusMessage != nil {
		if msg := strings.TrimSpace(*status.StatusMessage); msg != "" {
			return errors.New(msg)
		}
	}
	return errors.New("Copilot CLI is not authenticated")
}

func stopCopilot(client copilotClient) {
	for _, err := range client.Stop() {
		if err != nil {
			slog.Debug("copilot_client_stop_error", "error", err)
		}
	}
}

type copilotEvent struct {
	chunk
	last bool
}

// copilotFeed carries session events to the reader. The SDK calls handle
// from its own goroutine; push gives up once the reader has closed.
type copilotFeed struct {
	events chan copilotEvent
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	streamed bool
}

func newCopilotFeed() *copilotFeed {
	return &copilotFeed{
		events: make(chan copilotEvent, 64),
		done:   make(chan struct{}),
	}
}

func (f *copilotFeed) handle(ev copilot.SessionEvent) {
	switch ev.Type {
	case copilot.AssistantMessageDelta:
		if ev.Data.DeltaContent != nil {
			f.mu.Lock()
			f.streamed = true
			f.mu.Unlock()
			f.push(copilotEvent{chunk: chunk{delta: *ev.Data.DeltaContent}})
		}
	case copilot.AssistantMessage:
		// The full message only matters when no deltas arrived.
		f.mu.Lock()
		streamed := f.streamed
		f.mu.Unlock()
		if !streamed && ev.Data.Content != nil {
			f.push(copilotEvent{chunk: chunk{delta: *ev.Data.Content}})
		}
	case copilot.SessionError:
		msg := "copilot session error"
		if ev.Data.Message != nil {
			msg = *ev.Data.Message
		}
		slog.Debug("copilot_session_error", "message", msg)
		f.push(copilotEvent{chunk: chunk{err: errors.New(msg)}, last: true})
	case copilot.SessionIdle:
		f.push(copilotEvent{chunk: chunk{finish: ai.FinishReasonStop}, last: true})
	}
}

func (f *copilotFeed) push(ev copilotEvent) {
	select {
	case f.events <- ev:
	case <-f.done:
	}
}

func (f *copilotFeed) pull() (chunk, bool) {
	select {
	case ev := <-f.events:
		return ev.chunk, !ev.last
	case <-f.done:
		return chunk{}, false
	}
}

func (f *copilotFeed) close() {
	f.once.Do(func() { close(f.done) })
}

var _ copilotClient = sdkClient{}
