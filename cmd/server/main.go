package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/OmChillure/localchat"
	"github.com/OmChillure/localchat/internal/handlers"
	"github.com/OmChillure/localchat/internal/markdown"
	"github.com/OmChillure/localchat/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfgFilePath := flag.String("config", "", "path to the config file (default <user config dir>/localchat/config.yaml)")
	port := flag.String("port", "", "port to listen on, overrides the config file")
	flag.Parse()

	if *cfgFilePath == "" {
		p, err := defaultConfigPath()
		if err != nil {
			log.Fatal(err)
		}
		*cfgFilePath = p
	}

	cfg, err := loadConfig(*cfgFilePath)
	if err != nil {
		log.Fatal(err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	logger, logCloser, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatal(err)
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped", slog.String("error", err.Error()))
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	llm, err := cfg.engine(logger)
	if err != nil {
		return err
	}
	checkEngine(llm, cfg.Models, logger)

	renderer, err := markdown.New(cfg.Markdown.Renderer, markdown.Options{AllowRawHTML: cfg.Markdown.AllowRawHTML})
	if err != nil {
		return err
	}

	store := services.NewMemoryStore(cfg.SessionTTL)
	defer store.Close()

	m, err := handlers.NewMain(llm, store, renderer, handlers.Config{
		Models:        cfg.Models,
		SystemPrompt:  cfg.SystemPrompt,
		EngineTimeout: cfg.EngineTimeout,
	}, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(m, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("error", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			slog.String("port", cfg.Port),
			slog.String("provider", cfg.LLM.base().Provider),
			slog.Any("models", cfg.Models))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("error", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("error", err.Error()))
			}
		}
	}

	return nil
}

func newRouter(m handlers.Main, logger *slog.Logger) http.Handler {
	// Serve static files
	staticFS, err := fs.Sub(localchat.StaticFS, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.AccessLog(logger))
	r.Use(handlers.Recoverer(logger))

	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	r.Get("/", m.HandleHome)
	r.Post("/chats", m.HandleChats)
	r.Get("/sse/messages", m.HandleMessageStream)
	r.Get("/sse/conversation", m.HandleConversationEvents)
	r.Get("/healthz", m.HandleHealth)

	return r
}

// checkEngine warns early about an unreachable engine or configured models it does not have. Neither
// stops the server: the engine may come up later, and each failed reply is reported in the chat.
func checkEngine(llm handlers.LLM, models []string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if p, ok := llm.(handlers.Pinger); ok {
		if err := p.Ping(ctx); err != nil && !errors.Is(err, services.ErrPingUnsupported) {
			logger.Warn("Engine is not reachable", slog.String("error", err.Error()))
			return
		}
	}

	lister, ok := llm.(interface {
		Models(ctx context.Context) ([]string, error)
	})
	if !ok {
		return
	}
	available, err := lister.Models(ctx)
	if err != nil {
		logger.Warn("Failed to list engine models", slog.String("error", err.Error()))
		return
	}
	if available == nil {
		return
	}
	for _, model := range models {
		if !slices.Contains(available, model) {
			logger.Warn("Configured model is not available on the engine", slog.String("model", model))
		}
	}
}
