// Package datastream encodes and decodes the line-oriented stream the chat
// endpoint sends back to clients. Each part is one line of the form
// "<type>:<json>\n".
package datastream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const (
	// ContentType is the response content type of a data stream.
	ContentType = "text/plain; charset=utf-8"
	// HeaderName and HeaderValue mark a response body as a data stream.
	HeaderName  = "X-Vercel-AI-Data-Stream"
	HeaderValue = "v1"
)

// Part types.
const (
	TypeText   = "0"
	TypeError  = "3"
	TypeFinish = "d"
)

const maxLineSize = 1 << 20

// ErrMalformedPart is returned for a line that is not "<type>:<json>".
var ErrMalformedPart = errors.New("malformed data stream part")

// Part is one decoded line of the stream.
type Part struct {
	Type         string
	Text         string
	Error        string
	FinishReason string
}

type finishPayload struct {
	FinishReason string `json:"finishReason"`
}

// Writer writes parts to an underlying writer. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewWriter returns a Writer on w. When w implements http.Flusher every part
// is flushed as soon as it is written.
func NewWriter(w io.Writer) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// WriteText writes a text fragment.
func (w *Writer) WriteText(text string) error {
	return w.writePart(TypeText, text)
}

// WriteError writes an error part.
func (w *Writer) WriteError(message string) error {
	return w.writePart(TypeError, message)
}

// WriteFinish writes the finish part that ends a successful stream.
func (w *Writer) WriteFinish(reason string) error {
	if reason == "" {
		reason = "stop"
	}
	return w.writePart(TypeFinish, finishPayload{FinishReason: reason})
}

func (w *Writer) writePart(partType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s part: %w", partType, err)
	}

	var line bytes.Buffer
	line.Grow(len(partType) + len(data) + 2)
	line.WriteString(partType)
	line.WriteByte(':')
	line.Write(data)
	line.WriteByte('\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line.Bytes()); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Reader decodes parts from a stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next known part. Blank lines and unknown part types are
// skipped. It returns io.EOF once the stream is exhausted.
func (r *Reader) Next() (Part, error) {
	for r.scanner.Scan() {
		line := bytes.TrimRight(r.scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		part, known, err := decodeLine(line)
		if err != nil {
			return Part{}, err
		}
		if known {
			return part, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Part{}, err
	}
	return Part{}, io.EOF
}

func decodeLine(line []byte) (Part, bool, error) {
	partType, payload, ok := bytes.Cut(line, []byte{':'})
	if !ok || len(partType) == 0 {
		return Part{}, false, fmt.Errorf("%w: %q", ErrMalformedPart, truncate(line))
	}

	part := Part{Type: string(partType)}
	switch part.Type {
	case TypeText:
		if err := json.Unmarshal(payload, &part.Text); err != nil {
			return Part{}, false, fmt.Errorf("%w: text: %v", ErrMalformedPart, err)
		}
	case TypeError:
		if err := json.Unmarshal(payload, &part.Error); err != nil {
			return Part{}, false, fmt.Errorf("%w: error: %v", ErrMalformedPart, err)
		}
	case TypeFinish:
		var finish finishPayload
		if err := json.Unmarshal(payload, &finish); err != nil {
			return Part{}, false, fmt.Errorf("%w: finish: %v", ErrMalformedPart, err)
		}
		part.FinishReason = finish.FinishReason
	default:
		return Part{}, false, nil
	}
	return part, true, nil
}

func truncate(line []byte) []byte {
	if len(line) > 64 {
		return line[:64]
	}
	return line
}
