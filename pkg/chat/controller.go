package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/speech"
	"goon_chat/pkg/transport"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Option configures a Controller.
type Option func(*Controller)

// WithSpeech enables voice input through adapter.
func WithSpeech(adapter *speech.Adapter) Option {
	return func(c *Controller) { c.speech = adapter }
}

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithExchangeTimeout bounds each exchange by a wall-clock timeout. Zero
// disables it.
func WithExchangeTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// Controller is the only writer of its Store. It runs at most one exchange
// at a time: a send is accepted only while idle, the user message is
// appended and the lock taken before the request goes out, and the lock is
// released when the reply stream ends in any way.
//
// Store observers are notified while the controller lock is held and must
// not call back into the controller.
type Controller struct {
	store   *Store
	client  transport.Client
	speech  *speech.Adapter
	logger  *slog.Logger
	timeout time.Duration

	mu        sync.Mutex
	state     ExchangeState
	current   *Exchange
	lastErr   error
	listening bool
	closed    bool
}

// NewController returns an idle controller over store.
func NewController(store *Store, client transport.Client, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.speech == nil {
		c.speech = speech.NewAdapter(nil)
	}
	return c
}

// Store returns the controlled store.
func (c *Controller) Store() *Store { return c.store }

// State returns the state of the current exchange.
func (c *Controller) State() ExchangeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight reports whether the exchange lock is held.
func (c *Controller) InFlight() bool {
	return c.State() != StateIdle
}

// Listening reports whether a voice attempt is waiting for a transcript.
func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// SpeechSupported reports whether voice input is available.
func (c *Controller) SpeechSupported() bool {
	return c.speech.Supported()
}

// Err returns the last transport or speech failure. It is cleared by the
// next accepted send and by Clear.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SendText appends content as a user message and starts streaming the reply.
// Blank content and sends during an exchange are rejected with ErrEmptyInput
// and ErrExchangeInFlight without touching the store.
func (c *Controller) SendText(content string) (*Exchange, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.state != StateIdle {
		c.logger.Debug("chat_send_rejected", "reason", "in_flight")
		return nil, ErrExchangeInFlight
	}

	user := c.store.Append(RoleUser, content)
	history := toHistory(c.store.Messages())

	var ctx context.Context
	var cancel context.CancelFunc
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	ex := newExchange(uuid.NewString(), user, cancel)
	c.current = ex
	c.state = StateSending
	c.lastErr = nil

	c.logger.Info("chat_exchange_start",
		"exchange", ex.id,
		"history_messages", len(history),
		"content_chars", len(content),
	)
	go c.run(ctx, ex, history)
	return ex, nil
}

// TriggerQuickAction sends a canned query exactly like SendText.
func (c *Controller) TriggerQuickAction(query string) (*Exchange, error) {
	return c.SendText(query)
}

// SendVoice listens for one utterance and sends its transcript. Speech
// failures are recorded in Err and returned; the store is not touched.
func (c *Controller) SendVoice(ctx context.Context) (*Exchange, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, ErrClosed
	case c.state != StateIdle:
		c.mu.Unlock()
		return nil, ErrExchangeInFlight
	case c.listening:
		c.mu.Unlock()
		return nil, speech.ErrAlreadyListening
	}
	c.listening = true
	c.mu.Unlock()

	transcript, err := c.speech.Listen(ctx)

	c.mu.Lock()
	c.listening = false
	if err != nil && !errors.Is(err, speech.ErrCancelled) {
		c.lastErr = fmt.Errorf("voice input: %w", err)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Info("chat_voice_failed", "error", err)
		return nil, fmt.Errorf("voice input: %w", err)
	}
	return c.SendText(transcript)
}

// CancelVoice abandons a pending voice attempt.
func (c *Controller) CancelVoice() {
	c.speech.Cancel()
}

// Clear resets the store to the welcome message. It is refused while an
// exchange is running.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return ErrExchangeInFlight
	}
	c.store.Reset()
	c.lastErr = nil
	c.logger.Info("chat_cleared")
	return nil
}

// Close tears the controller down. A running exchange is cancelled and
// nothing it receives afterwards reaches the store. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ex := c.current
	c.current = nil
	c.state = StateIdle
	if ex != nil {
		c.store.FinishStreaming()
	}
	c.mu.Unlock()

	c.speech.Cancel()
	if ex != nil {
		c.logger.Info("chat_exchange_cancelled", "exchange", ex.id)
		ex.complete(OutcomeCancelled, nil, "")
	}
}

func (c *Controller) run(ctx context.Context, ex *Exchange, history []transport.Message) {
	events, err := c.client.Stream(ctx, history)
	if err != nil {
		c.finish(ex, err, "")
		return
	}

	for ev := range events {
		if ev.Delta != "" {
			if err := c.applyDelta(ex, ev.Delta); err != nil {
				if !errors.Is(err, errStale) {
					c.finish(ex, err, "")
				}
				return
			}
		}
		if ev.Done {
			c.finish(ex, ev.Err, ev.FinishReason)
			return
		}
	}

	// Closed without a terminal event: cancelled or timed out.
	err = ctx.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	c.finish(ex, err, "")
}

var errStale = errors.New("exchange is no longer current")

// applyDelta appends delta to the reply of ex. It returns errStale once ex
// is no longer the current exchange.
func (c *Controller) applyDelta(ex *Exchange, delta string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.current != ex {
		return errStale
	}

	if ex.AssistantMessageID() == "" {
		msg, err := c.store.BeginStreaming(delta)
		if err != nil {
			return fmt.Errorf("begin reply: %w", err)
		}
		ex.setAssistantID(msg.ID)
		c.state = StateStreaming
		return nil
	}
	if _, err := c.store.AppendChunk(delta); err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	return nil
}

type replyMetadata struct {
	FinishReason string `json:"finish_reason"`
}

func (c *Controller) finish(ex *Exchange, err error, finishReason string) {
	c.mu.Lock()
	if c.closed || c.current != ex {
		c.mu.Unlock()
		return
	}

	assistantID := ex.AssistantMessageID()
	if assistantID != "" {
		c.store.FinishStreaming()
		if finishReason == ai.FinishReasonLength {
			meta, _ := json.Marshal(replyMetadata{FinishReason: finishReason})
			_ = c.store.SetMetadata(assistantID, meta)
		}
	}
	c.current = nil
	c.state = StateIdle
	outcome := OutcomeCompleted
	if err != nil {
		outcome = OutcomeFailed
		c.lastErr = err
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("chat_exchange_failed",
			"exchange", ex.id,
			"partial", assistantID != "",
			"error", err,
		)
	} else {
		c.logger.Info("chat_exchange_done",
			"exchange", ex.id,
			"finish_reason", finishReason,
		)
	}
	ex.complete(outcome, err, finishReason)
}

func toHistory(msgs []Message) []transport.Message {
	return lo.Map(msgs, func(m Message, _ int) transport.Message {
		return transport.Message{Role: string(m.Role), Content: m.Content}
	})
}
