package providers

import "goon_chat/pkg/ai"

// chunk is one decoded piece of a vendor stream. Any field may be empty.
type chunk struct {
	delta  string
	finish string
	err    error
}

// pullStream adapts a vendor pull function to ai.Stream. pull returns false
// once the vendor stream is exhausted; the chunk returned with false is still
// inspected for a finish reason and an error.
type pullStream struct {
	pull   func() (chunk, bool)
	closer func() error

	delta  string
	finish string
	err    error
	done   bool
	closed bool
}

func newPullStream(pull func() (chunk, bool), closer func() error) *pullStream {
	return &pullStream{pull: pull, closer: closer}
}

func (s *pullStream) Next() bool {
	for !s.done {
		c, more := s.pull()
		if reason := ai.NormalizeFinishReason(c.finish); reason != "" {
			s.finish = reason
		}
		if c.err != nil {
			s.err = c.err
			s.done = true
			return false
		}
		if !more {
			s.done = true
			return false
		}
		if c.delta != "" {
			s.delta = c.delta
			return true
		}
	}
	return false
}

func (s *pullStream) Delta() string { return s.delta }

func (s *pullStream) FinishReason() string {
	if s.finish == "" && s.done && s.err == nil {
		return ai.FinishReasonStop
	}
	return s.finish
}

func (s *pullStream) Err() error { return s.err }

func (s *pullStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
