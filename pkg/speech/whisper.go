package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultWhisperModel    = "whisper-1"
	DefaultWhisperLanguage = "en"

	// maxAudioBytes is the upload limit of the transcription API.
	maxAudioBytes = 25 << 20
)

// ErrNotAudio is reported when the captured payload is not an audio file.
var ErrNotAudio = errors.New("payload is not audio")

var errCapture = errors.New("audio capture failed")

// AudioSource yields one recorded utterance.
type AudioSource interface {
	Open(ctx context.Context) (io.ReadCloser, string, error)
}

// FileSource reads the utterance from a file on disk.
type FileSource string

// Open implements AudioSource.
func (f FileSource) Open(ctx context.Context) (io.ReadCloser, string, error) {
	file, err := os.Open(string(f))
	if err != nil {
		return nil, "", err
	}
	return file, filepath.Base(string(f)), nil
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error)
}

// OpenAITranscriber uses the OpenAI audio transcription API.
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	language string
}

// TranscriberConfig configures an OpenAITranscriber.
type TranscriberConfig struct {
	APIKey   string
	APIURL   string
	Model    string
	Language string
	Timeout  time.Duration
}

// NewOpenAITranscriber builds a transcriber. A nil httpClient gets one with
// cfg.Timeout.
func NewOpenAITranscriber(cfg TranscriberConfig, httpClient *http.Client) (*OpenAITranscriber, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("speech api_key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.APIURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultWhisperModel
	}
	language := cfg.Language
	if language == "" {
		language = DefaultWhisperLanguage
	}
	return &OpenAITranscriber{
		client:   openai.NewClient(opts...),
		model:    model,
		language: language,
	}, nil
}

// Transcribe implements Transcriber.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error) {
	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(audio, filename, contentType),
		Model:    openai.AudioModel(t.model),
		Language: openai.String(t.language),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// WhisperRecognizer is a Recognizer that transcribes one recorded utterance
// per Start.
type WhisperRecognizer struct {
	source      AudioSource
	transcriber Transcriber
	logger      *slog.Logger

	mu        sync.Mutex
	callbacks Callbacks
	cancel    context.CancelFunc
	session   uint64
}

// NewWhisperRecognizer returns a recognizer reading from source.
func NewWhisperRecognizer(source AudioSource, transcriber Transcriber) *WhisperRecognizer {
	return &WhisperRecognizer{
		source:      source,
		transcriber: transcriber,
		logger:      slog.Default(),
	}
}

// SetCallbacks implements Recognizer.
func (r *WhisperRecognizer) SetCallbacks(cb Callbacks) {
	r.mu.Lock()
	r.callbacks = cb
	r.mu.Unlock()
}

// Start implements Recognizer. Events are delivered from a new goroutine.
// A stopped or finished session never blocks the next Start, even while its
// goroutine is still unwinding.
func (r *WhisperRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("recognizer already started")
	}
	r.session++
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.run(ctx, cancel, r.session, r.callbacks)
	return nil
}

// Stop implements Recognizer.
func (r *WhisperRecognizer) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// release frees the recognizer for the next Start if session still owns it.
func (r *WhisperRecognizer) release(session uint64) {
	r.mu.Lock()
	if r.session == session {
		r.cancel = nil
	}
	r.mu.Unlock()
}

func (r *WhisperRecognizer) run(ctx context.Context, cancel context.CancelFunc, session uint64, cb Callbacks) {
	defer call(cb.OnEnd)
	defer cancel()
	call(cb.OnStart)

	transcript, err := r.recognize(ctx)
	r.release(session)
	if err != nil {
		reason := failureReason(ctx, err)
		r.logger.Debug("speech_whisper_error", "reason", reason, "error", err)
		if cb.OnError != nil {
			cb.OnError(reason)
		}
		return
	}
	if cb.OnResult != nil {
		cb.OnResult(transcript)
	}
}

func (r *WhisperRecognizer) recognize(ctx context.Context) (string, error) {
	rc, name, err := r.source.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errCapture, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxAudioBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errCapture, err)
	}
	if len(data) > maxAudioBytes {
		return "", fmt.Errorf("%w: recording exceeds %d bytes", errCapture, maxAudioBytes)
	}

	mtype := mimetype.Detect(data)
	if !isAudio(mtype) {
		return "", fmt.Errorf("%w: detected %s", ErrNotAudio, mtype.String())
	}
	if name == "" {
		name = "speech" + mtype.Extension()
	}

	r.logger.Debug("speech_whisper_transcribe",
		"file", name,
		"mime", mtype.String(),
		"bytes", len(data),
	)
	return r.transcriber.Transcribe(ctx, bytes.NewReader(data), name, mtype.String())
}

func isAudio(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true
		}
	}
	// Whisper accepts both containers as recordings.
	return mtype.Is("video/mp4") || mtype.Is("video/webm")
}

func failureReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return ReasonAborted
	case errors.Is(err, errCapture), errors.Is(err, ErrNotAudio):
		return ReasonAudioCapture
	default:
		return ReasonNetwork
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
