// Package chat holds the conversation state of a Goon session and the
// controller that runs one exchange at a time against a reply stream.
package chat

import (
	"bytes"
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// WelcomeMessageID is the id of the message a new session is seeded with.
const WelcomeMessageID = "welcome"

// WelcomeText greets the user in every new or cleared session.
const WelcomeText = "Hi! I'm Goon, your personal AI assistant for recovery and lifestyle planning. " +
	"I'm here to support you on your journey to build better habits, connect with others, " +
	"and create meaningful experiences. How can I help you today?"

// Message is one entry of the conversation. Metadata is opaque to the
// session and never sent upstream.
type Message struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Session is a snapshot of the conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m Message) clone() Message {
	if m.Metadata != nil {
		m.Metadata = json.RawMessage(bytes.Clone(m.Metadata))
	}
	return m
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.clone()
	}
	return out
}
