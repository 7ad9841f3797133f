package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/OmChillure/localchat/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama provides an implementation of the Engine interface for models served by a local Ollama
// instance. It manages the connection to the server and handles streaming chat completions.
type Ollama struct {
	host   string
	model  string
	params Parameters

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and default model name. The host
// parameter should be a valid URL pointing to an Ollama server.
func NewOllama(host, model string, params Parameters, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		host:   host,
		model:  model,
		params: params,
		client: api.NewClient(u, &http.Client{}),
		logger: logger.With(slog.String("module", "ollama")),
	}, nil
}

// Chat implements the Engine interface by streaming responses from the Ollama model. The response is
// yielded incrementally as the server produces it. Stopping the iteration cancels the request.
func (o Ollama) Chat(ctx context.Context, model string, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]api.Message, len(messages))
		for i, msg := range messages {
			msgs[i] = api.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		t := true
		req := api.ChatRequest{
			Model:    pickModel(model, o.model),
			Messages: msgs,
			Stream:   &t,
			Options:  o.options(),
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		o.logger.Debug("Chat request", slog.String("model", req.Model), slog.Int("messages", len(msgs)))

		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if res.Message.Content == "" {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				cancel()
			}
			return nil
		}); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}

// Ping reports whether the Ollama server answers.
func (o Ollama) Ping(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama at %s is not reachable: %w", o.host, err)
	}
	return nil
}

// Models lists the models installed on the Ollama server.
func (o Ollama) Models(ctx context.Context) ([]string, error) {
	res, err := o.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}
	names := make([]string, len(res.Models))
	for i, m := range res.Models {
		names[i] = m.Name
	}
	return names, nil
}

func (o Ollama) options() map[string]any {
	opts := map[string]any{}
	if o.params.Temperature != nil {
		opts["temperature"] = *o.params.Temperature
	}
	if o.params.TopP != nil {
		opts["top_p"] = *o.params.TopP
	}
	if o.params.Seed != nil {
		opts["seed"] = *o.params.Seed
	}
	if o.params.MaxTokens != nil {
		opts["num_predict"] = *o.params.MaxTokens
	}
	if len(o.params.Stop) > 0 {
		opts["stop"] = o.params.Stop
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}
