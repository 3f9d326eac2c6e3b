package chat

import "errors"

var (
	// ErrEmptyInput rejects a send whose content is blank.
	ErrEmptyInput = errors.New("chat: empty input")
	// ErrExchangeInFlight rejects sends and clears while a reply is pending.
	ErrExchangeInFlight = errors.New("chat: exchange in flight")
	// ErrClosed is returned by a controller after Close.
	ErrClosed = errors.New("chat: controller closed")

	ErrStreamingActive    = errors.New("chat: an assistant message is already streaming")
	ErrNoStreamingMessage = errors.New("chat: no assistant message is streaming")
	ErrMessageNotFound    = errors.New("chat: message not found")
)
