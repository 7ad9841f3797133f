package services

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/OmChillure/localchat/internal/models"
	"golang.org/x/time/rate"
)

// RateLimited wraps an Engine so that calls to it are spaced out. A local runtime serves one generation
// at a time; the limiter keeps a burst of sends from queueing work the user will never read.
type RateLimited struct {
	engine  Engine
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute calls per minute with the given burst. A perMinute of zero or less
// disables limiting.
func NewRateLimited(engine Engine, perMinute, burst int) RateLimited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return RateLimited{
		engine:  engine,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Chat waits for the limiter before delegating to the wrapped engine.
func (r RateLimited) Chat(ctx context.Context, model string, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := r.limiter.Wait(ctx); err != nil {
			yield("", fmt.Errorf("rate limit: %w", err))
			return
		}
		for chunk, err := range r.engine.Chat(ctx, model, messages) {
			if !yield(chunk, err) {
				return
			}
		}
	}
}

// Ping delegates to the wrapped engine, or returns ErrPingUnsupported when the engine has no Ping.
func (r RateLimited) Ping(ctx context.Context) error {
	if p, ok := r.engine.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return ErrPingUnsupported
}

// Models delegates to the wrapped engine when it can list its models, and returns nil otherwise.
func (r RateLimited) Models(ctx context.Context) ([]string, error) {
	if l, ok := r.engine.(interface {
		Models(context.Context) ([]string, error)
	}); ok {
		return l.Models(ctx)
	}
	return nil, nil
}
