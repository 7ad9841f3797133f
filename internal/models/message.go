package models

import "time"

// Message represents an individual entry within a conversation. It carries the participant's role,
// the raw (unformatted) text, the time it was created and, for assistant replies, how far the reply
// has streamed in.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time

	StreamingState StreamingState
}

// Role represents the role of a message participant.
type Role string

// StreamingState tracks the lifecycle of an assistant reply.
type StreamingState string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a reply produced by the engine, or the fixed error text when the engine
	// failed.
	RoleAssistant Role = "assistant"
	// RoleSystem represents the greeting that seeds every conversation. System messages are sent to the
	// engine but are never displayed.
	RoleSystem Role = "system"

	// StreamingStateLoading marks a reply placeholder that has no text yet.
	StreamingStateLoading StreamingState = "loading"
	// StreamingStateStreaming marks a reply that has received some, but not all, of its text.
	StreamingStateStreaming StreamingState = "streaming"
	// StreamingStateEnded marks a message whose content is final.
	StreamingStateEnded StreamingState = "ended"
)

const (
	// GreetingText is the default system message every conversation starts with.
	GreetingText = "Hello! How can I assist you today?"
	// ErrorReplyText replaces the reply whenever the engine call fails.
	ErrorReplyText = "⚠️ Error: Could not get a response."
)

// Visible reports whether the message is shown in the conversation view.
func (m Message) Visible() bool {
	return m.Role != RoleSystem
}

// Pending reports whether the message is an assistant reply that is still being produced.
func (m Message) Pending() bool {
	return m.Role == RoleAssistant && m.StreamingState != StreamingStateEnded
}

// VisibleMessages filters out the messages that are not displayed, keeping the original order.
func VisibleMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Visible() {
			out = append(out, m)
		}
	}
	return out
}
