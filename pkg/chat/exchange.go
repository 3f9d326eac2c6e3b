package chat

import (
	"context"
	"sync"
)

// ExchangeState is the controller's position in the current exchange.
type ExchangeState int

const (
	StateIdle ExchangeState = iota
	StateSending
	StateStreaming
)

func (s ExchangeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Outcome is how an exchange ended.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCompleted
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Exchange is one user turn and the reply streamed for it.
type Exchange struct {
	id     string
	user   Message
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	assistantID  string
	outcome      Outcome
	err          error
	finishReason string
}

func newExchange(id string, user Message, cancel context.CancelFunc) *Exchange {
	return &Exchange{
		id:     id,
		user:   user,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID identifies the exchange in logs.
func (e *Exchange) ID() string { return e.id }

// UserMessage returns the message that started the exchange.
func (e *Exchange) UserMessage() Message { return e.user }

// Done is closed once the exchange has ended.
func (e *Exchange) Done() <-chan struct{} { return e.done }

// Wait blocks until the exchange ends or ctx is done. It returns the
// exchange error, which is nil for completed and cancelled exchanges.
func (e *Exchange) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome returns the outcome, OutcomePending while running.
func (e *Exchange) Outcome() Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// Err returns the failure of a failed exchange.
func (e *Exchange) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// FinishReason returns why generation stopped, e.g. "stop" or "length".
func (e *Exchange) FinishReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finishReason
}

// AssistantMessageID returns the id of the reply message, or "" when no
// fragment has arrived.
func (e *Exchange) AssistantMessageID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assistantID
}

func (e *Exchange) setAssistantID(id string) {
	e.mu.Lock()
	e.assistantID = id
	e.mu.Unlock()
}

func (e *Exchange) complete(outcome Outcome, err error, finishReason string) {
	e.mu.Lock()
	e.outcome = outcome
	e.err = err
	e.finishReason = finishReason
	e.mu.Unlock()
	e.cancel()
	close(e.done)
}
