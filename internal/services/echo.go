package services

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/OmChillure/localchat/internal/models"
)

// Echo is an offline engine that answers by repeating the last user message. It streams the reply word
// by word so the page behaves as it would with a real model, which makes it useful for demos and when no
// runtime is reachable.
type Echo struct {
	model string
	delay time.Duration
}

// NewEcho creates an Echo engine that waits delay between words.
func NewEcho(model string, delay time.Duration) Echo {
	return Echo{model: model, delay: delay}
}

// Chat yields "(demo:<model>) you said: <last user message>" one word at a time.
func (e Echo) Chat(ctx context.Context, model string, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var prompt string
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == models.RoleUser {
				prompt = messages[i].Content
				break
			}
		}
		if prompt == "" {
			yield("", fmt.Errorf("no user message to echo"))
			return
		}

		reply := fmt.Sprintf("(demo:%s) you said: %s", pickModel(model, e.model), prompt)
		words := strings.SplitAfter(reply, " ")
		for _, w := range words {
			if e.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.delay):
				}
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}

// Ping always succeeds.
func (e Echo) Ping(context.Context) error {
	return nil
}
