// Package speech turns a single-shot speech recognizer into a blocking
// Listen call that yields one final transcript or an error.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// State is the adapter's recognition state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
)

// Recognition error reasons.
const (
	ReasonNoSpeech     = "no-speech"
	ReasonNotAllowed   = "not-allowed"
	ReasonNetwork      = "network"
	ReasonAudioCapture = "audio-capture"
	ReasonAborted      = "aborted"
)

var (
	ErrNotSupported     = errors.New("speech recognition is not supported")
	ErrAlreadyListening = errors.New("speech recognition is already listening")
	ErrCancelled        = errors.New("speech recognition cancelled")
)

// RecognitionError is a failure reported by the recognizer.
type RecognitionError struct {
	Reason string
}

func (e *RecognitionError) Error() string {
	return "speech recognition failed: " + e.Reason
}

// Callbacks are the four event slots of a recognizer.
type Callbacks struct {
	OnStart  func()
	OnResult func(transcript string)
	OnError  func(reason string)
	OnEnd    func()
}

// Recognizer captures exactly one utterance per Start and then ends on its
// own. Callbacks may be invoked from any goroutine.
type Recognizer interface {
	SetCallbacks(cb Callbacks)
	Start() error
	Stop()
}

type result struct {
	transcript string
	err        error
}

// Adapter runs at most one recognition session at a time.
type Adapter struct {
	rec    Recognizer
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	results    chan result
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// NewAdapter wraps rec. A nil rec yields an adapter that reports
// ErrNotSupported.
func NewAdapter(rec Recognizer, opts ...Option) *Adapter {
	a := &Adapter{
		rec:    rec,
		logger: slog.Default(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Supported reports whether a recognizer is available.
func (a *Adapter) Supported() bool {
	return a != nil && a.rec != nil
}

// State returns the current state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Listen starts a recognition session and blocks until it yields a
// transcript, fails, is cancelled or ctx ends.
func (a *Adapter) Listen(ctx context.Context) (string, error) {
	if !a.Supported() {
		return "", ErrNotSupported
	}

	a.mu.Lock()
	if a.state == StateListening {
		a.mu.Unlock()
		return "", ErrAlreadyListening
	}
	a.generation++
	gen := a.generation
	results := make(chan result, 1)
	a.results = results
	a.state = StateListening
	a.mu.Unlock()

	a.rec.SetCallbacks(Callbacks{
		OnStart: func() {
			a.logger.Debug("speech_listen_start", "session", gen)
		},
		OnResult: func(transcript string) {
			a.resolve(gen, result{transcript: transcript})
		},
		OnError: func(reason string) {
			a.resolve(gen, result{err: &RecognitionError{Reason: reason}})
		},
		OnEnd: func() {
			a.resolve(gen, result{err: &RecognitionError{Reason: ReasonNoSpeech}})
		},
	})

	if err := a.rec.Start(); err != nil {
		a.resolve(gen, result{err: fmt.Errorf("start recognizer: %w", err)})
	}

	select {
	case r := <-results:
		return a.finish(gen, r)
	case <-ctx.Done():
		a.cancel(gen)
		return a.finish(gen, <-results)
	}
}

// Cancel stops the active session, if any, without producing a result.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	gen := a.generation
	a.mu.Unlock()
	a.cancel(gen)
}

func (a *Adapter) cancel(gen uint64) {
	a.mu.Lock()
	if a.state != StateListening || a.generation != gen {
		a.mu.Unlock()
		return
	}
	a.state = StateIdle
	a.generation++
	results := a.results
	a.mu.Unlock()

	a.rec.Stop()
	results <- result{err: ErrCancelled}
}

// resolve delivers r for session gen. Events of a superseded or already
// resolved session are dropped.
func (a *Adapter) resolve(gen uint64, r result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.generation || a.state != StateListening {
		return
	}
	if r.err == nil && strings.TrimSpace(r.transcript) == "" {
		r.err = &RecognitionError{Reason: ReasonNoSpeech}
	}
	a.state = StateIdle
	a.results <- r
}

func (a *Adapter) finish(gen uint64, r result) (string, error) {
	if r.err != nil {
		a.logger.Info("speech_listen_failed", "session", gen, "error", r.err)
		return "", r.err
	}
	transcript := strings.TrimSpace(r.transcript)
	a.logger.Info("speech_listen_done", "session", gen, "transcript_chars", len(transcript))
	return transcript, nil
}

// Describe turns a speech failure into a short notice for the user.
func Describe(err error) string {
	var recErr *RecognitionError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotSupported):
		return "Speech recognition is not supported here. Try typing instead."
	case errors.Is(err, ErrCancelled):
		return "Voice input cancelled."
	case errors.As(err, &recErr):
		switch recErr.Reason {
		case ReasonNoSpeech:
			return "No speech was detected. Please try again."
		case ReasonNotAllowed:
			return "Microphone access was denied."
		case ReasonAudioCapture:
			return "No usable audio was captured."
		case ReasonNetwork:
			return "Speech service could not be reached."
		}
		return "Speech recognition error: " + recErr.Reason
	default:
		return "Speech recognition error: " + err.Error()
	}
}
