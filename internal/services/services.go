// Package services contains the engines a conversation can be sent to and the in-memory conversation
// store.
package services

import (
	"context"
	"errors"
	"iter"

	"github.com/OmChillure/localchat/internal/models"
)

// Engine is implemented by every model runtime adapter in this package. Chat receives the whole history,
// system greeting included, and yields the reply in chunks. An empty model selects the adapter's
// configured default.
type Engine interface {
	Chat(ctx context.Context, model string, messages []models.Message) iter.Seq2[string, error]
}

// Parameters holds optional sampling parameters. Nil fields are left to the engine's defaults.
type Parameters struct {
	Temperature *float32 `yaml:"temperature"`
	TopP        *float32 `yaml:"topP"`
	Seed        *int     `yaml:"seed"`
	MaxTokens   *int     `yaml:"maxTokens"`
	Stop        []string `yaml:"stop"`
}

var (
	// ErrConversationNotFound is returned when a conversation ID is unknown or has expired.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound is returned when a message ID is unknown within its conversation.
	ErrMessageNotFound = errors.New("message not found")
	// ErrPingUnsupported is returned by wrappers whose engine cannot report whether it is reachable.
	ErrPingUnsupported = errors.New("engine does not support ping")
	// ErrEmptyReply reports a reply that finished without any text.
	ErrEmptyReply = errors.New("engine returned an empty reply")
)

func pickModel(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
