package models

import "time"

// Conversation is the container for the messages of a single page session. It is held in memory only
// and is discarded once it has been idle for long enough.
type Conversation struct {
	ID        string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
