package chat

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeKind describes what a store mutation did.
type ChangeKind int

const (
	ChangeAppended ChangeKind = iota
	ChangeUpdated
	ChangeReset
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAppended:
		return "appended"
	case ChangeUpdated:
		return "updated"
	case ChangeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change is delivered to observers after every successful mutation. Message
// is the message that was appended or updated, or the welcome message after a
// reset. Len is the number of messages after the mutation.
type Change struct {
	Kind    ChangeKind
	Message Message
	Len     int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) { s.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) StoreOption {
	return func(s *Store) { s.now = fn }
}

// WithWelcome replaces the welcome text.
func WithWelcome(text string) StoreOption {
	return func(s *Store) { s.welcome = text }
}

// Store is the ordered message history of one session.
//
// Observers registered with Subscribe run synchronously after each mutation,
// in mutation order, without the store lock held. They may read the store but
// must not mutate it.
type Store struct {
	mu        sync.Mutex
	session   Session
	streaming int
	newID     func() string
	now       func() time.Time
	welcome   string

	notifyMu     sync.Mutex
	observers    map[int]func(Change)
	nextObserver int
}

// NewStore returns a store seeded with the welcome message.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		streaming: -1,
		newID:     uuid.NewString,
		now:       time.Now,
		welcome:   WelcomeText,
		observers: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.now()
	s.session = Session{
		ID:        s.newID(),
		Title:     "Goon Chat",
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []Message{{
			ID:        WelcomeMessageID,
			Role:      RoleAssistant,
			Content:   s.welcome,
			Timestamp: now,
		}},
	}
	return s
}

// Messages returns a copy of the history, oldest first.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.session.Messages)
}

// Session returns a copy of the whole session.
func (s *Store) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.session
	session.Messages = cloneMessages(s.session.Messages)
	return session
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.session.Messages)
}

// Streaming reports whether an assistant message is in progress.
func (s *Store) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming >= 0
}

// Append adds a finished message.
func (s *Store) Append(role Role, content string) Message {
	var msg Message
	_ = s.mutate(func() (Change, error) {
		msg = s.appendLocked(role, content)
		return Change{Kind: ChangeAppended, Message: msg, Len: len(s.session.Messages)}, nil
	})
	return msg
}

// BeginStreaming appends an assistant message seeded with chunk that further
// chunks are concatenated to until FinishStreaming.
func (s *Store) BeginStreaming(chunk string) (Message, error) {
	var msg Message
	err := s.mutate(func() (Change, error) {
		if s.streaming >= 0 {
			return Change{}, ErrStreamingActive
		}
		msg = s.appendLocked(RoleAssistant, chunk)
		s.streaming = len(s.session.Messages) - 1
		return Change{Kind: ChangeAppended, Message: msg, Len: len(s.session.Messages)}, nil
	})
	return msg, err
}

// AppendChunk concatenates chunk to the streaming message.
func (s *Store) AppendChunk(chunk string) (Message, error) {
	var msg Message
	err := s.mutate(func() (Change, error) {
		if s.streaming < 0 {
			return Change{}, ErrNoStreamingMessage
		}
		s.session.Messages[s.streaming].Content += chunk
		s.session.UpdatedAt = s.now()
		msg = s.session.Messages[s.streaming].clone()
		return Change{Kind: ChangeUpdated, Message: msg, Len: len(s.session.Messages)}, nil
	})
	return msg, err
}

// FinishStreaming freezes the streaming message, if any.
func (s *Store) FinishStreaming() {
	s.mu.Lock()
	s.streaming = -1
	s.mu.Unlock()
}

// SetMetadata replaces the metadata of the message with the given id.
func (s *Store) SetMetadata(id string, metadata json.RawMessage) error {
	return s.mutate(func() (Change, error) {
		for i := range s.session.Messages {
			if s.session.Messages[i].ID != id {
				continue
			}
			s.session.Messages[i].Metadata = json.RawMessage(bytes.Clone(metadata))
			s.session.UpdatedAt = s.now()
			msg := s.session.Messages[i].clone()
			return Change{Kind: ChangeUpdated, Message: msg, Len: len(s.session.Messages)}, nil
		}
		return Change{}, ErrMessageNotFound
	})
}

// Reset drops the history and re-seeds the welcome message under a new id.
func (s *Store) Reset() {
	_ = s.mutate(func() (Change, error) {
		now := s.now()
		welcome := Message{
			ID:        s.newID(),
			Role:      RoleAssistant,
			Content:   s.welcome,
			Timestamp: now,
		}
		s.session.Messages = []Message{welcome}
		s.session.UpdatedAt = now
		s.streaming = -1
		return Change{Kind: ChangeReset, Message: welcome, Len: 1}, nil
	})
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) appendLocked(role Role, content string) Message {
	now := s.now()
	msg := Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	s.session.Messages = append(s.session.Messages, msg)
	s.session.UpdatedAt = now
	return msg
}

// mutate runs fn under the store lock and then notifies observers. notifyMu
// keeps notifications in the same order as the mutations.
func (s *Store) mutate(fn func() (Change, error)) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	change, err := fn()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	observers := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, observer := range observers {
		observer(change)
	}
	return nil
}
