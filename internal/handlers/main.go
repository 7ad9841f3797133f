package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/OmChillure/localchat"
	"github.com/OmChillure/localchat/internal/markdown"
	"github.com/OmChillure/localchat/internal/models"
	"github.com/OmChillure/localchat/internal/services"
	"github.com/tmaxmax/go-sse"
)

// LLM represents a large language model interface that provides chat functionality. It accepts a context,
// the model to use and the whole conversation history, returning an iterator that yields response chunks
// and potential errors.
type LLM interface {
	Chat(ctx context.Context, model string, messages []models.Message) iter.Seq2[string, error]
}

// Pinger is implemented by engines that can report whether their runtime is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store defines the interface for managing conversations and their messages. Messages of a conversation
// are kept in the order they were added; the only mutation allowed on a message is replacing it in place
// while its reply streams in.
type Store interface {
	AddConversation(ctx context.Context, conv models.Conversation) (string, error)
	Conversation(ctx context.Context, id string) (models.Conversation, error)
	UpdateConversation(ctx context.Context, conv models.Conversation) error

	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	Message(ctx context.Context, conversationID, messageID string) (models.Message, error)
	AddMessage(ctx context.Context, conversationID string, message models.Message) (string, error)
	UpdateMessage(ctx context.Context, conversationID string, message models.Message) error
}

// Config holds the page settings that don't belong to the engine or the store.
type Config struct {
	// Models is the list offered by the model selector. The first entry is the default for new
	// conversations. An empty list accepts any model and leaves the choice to the engine.
	Models []string
	// SystemPrompt seeds every new conversation. Empty means models.GreetingText.
	SystemPrompt string
	// EngineTimeout bounds a single engine call. Zero means no timeout.
	EngineTimeout time.Duration
}

// Main handles the core functionality of the chat application, managing server-sent events,
// HTML templates, and interactions between the LLM and Store components.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	llm      LLM
	store    Store
	renderer markdown.Renderer

	replies *replies
	// sendMu makes the pending-reply check and the append of a new exchange one step.
	sendMu *sync.Mutex

	closing   chan struct{}
	closeOnce *sync.Once

	models        []string
	systemPrompt  string
	engineTimeout time.Duration

	logger *slog.Logger
}

const (
	errLoggerKey = "error"

	conversationIDParam = "conversation_id"
	messageIDParam      = "message_id"
)

// NewMain creates a new Main instance with the provided LLM, Store and Renderer implementations. It
// initializes the SSE server used for conversation events and parses the required HTML templates from
// the embedded filesystem.
func NewMain(llm LLM, store Store, renderer markdown.Renderer, cfg Config, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		localchat.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("error parsing templates: %w", err)
	}

	if renderer == nil {
		renderer = markdown.NewSubset(markdown.Options{})
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = models.GreetingText
	}

	logger = logger.With(slog.String("module", "handlers"))

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(w http.ResponseWriter, r *http.Request) ([]string, bool) {
				conversationID := r.URL.Query().Get(conversationIDParam)
				if conversationID == "" {
					http.Error(w, "conversation_id is required", http.StatusBadRequest)
					return nil, false
				}
				// Every client also listens on the default topic, which carries closeChat on shutdown.
				return []string{sse.DefaultTopic, conversationTopic(conversationID)}, true
			},
			Logger: func(*http.Request) *slog.Logger {
				return logger.With(slog.String("module", "sse"))
			},
		},
		templates:     tmpl,
		llm:           llm,
		store:         store,
		renderer:      renderer,
		replies:       newReplies(),
		sendMu:        &sync.Mutex{},
		closing:       make(chan struct{}),
		closeOnce:     &sync.Once{},
		models:        cfg.Models,
		systemPrompt:  systemPrompt,
		engineTimeout: cfg.EngineTimeout,
		logger:        logger,
	}, nil
}

func conversationTopic(conversationID string) string {
	return fmt.Sprintf("conversation-%s", conversationID)
}

// HandleHealth reports that the server is up and, when the engine can tell, whether the engine is
// reachable.
func (m Main) HandleHealth(w http.ResponseWriter, r *http.Request) {
	engine := "unknown"
	if p, ok := m.llm.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		switch err := p.Ping(ctx); {
		case err == nil:
			engine = "reachable"
		case errors.Is(err, services.ErrPingUnsupported):
		default:
			m.logger.Warn("Engine is not reachable", slog.String(errLoggerKey, err.Error()))
			engine = "unreachable"
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ok\nengine: %s\n", engine)
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to all
// connected clients, ends every open reply stream and waits up to 5 seconds for connections to
// terminate. After the timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.closeOnce.Do(func() { close(m.closing) })

	e := &sse.Message{Type: sse.Type("closeChat")}
	// Event streams drop events without data.
	e.AppendData("bye")

	// Publishing fails when nobody ever subscribed, which is fine while shutting down.
	if err := m.sseSrv.Publish(e); err != nil && !errors.Is(err, sse.ErrProviderClosed) {
		m.logger.Debug("Failed to publish closeChat", slog.String(errLoggerKey, err.Error()))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
