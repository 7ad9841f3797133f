package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/OmChillure/localchat/internal/handlers"
	"github.com/OmChillure/localchat/internal/markdown"
	"github.com/OmChillure/localchat/internal/services"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	base() BaseLLMConfig
	llm(logger *slog.Logger) (handlers.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// settings holds everything in the config file except the llm block, which needs its own decoding.
type settings struct {
	Port          string          `yaml:"port"`
	SystemPrompt  string          `yaml:"systemPrompt"`
	Models        []string        `yaml:"models"`
	LogLevel      string          `yaml:"logLevel"`
	LogFile       string          `yaml:"logFile"`
	SessionTTL    time.Duration   `yaml:"sessionTTL"`
	EngineTimeout time.Duration   `yaml:"engineTimeout"`
	RateLimit     rateLimitConfig `yaml:"rateLimit"`
	Markdown      markdownConfig  `yaml:"markdown"`
}

type config struct {
	settings `yaml:",inline"`
	LLM      llmConfig `yaml:"llm"`
}

type rateLimitConfig struct {
	PerMinute int `yaml:"perMinute"`
	Burst     int `yaml:"burst"`
}

type markdownConfig struct {
	Renderer     string `yaml:"renderer"`
	AllowRawHTML bool   `yaml:"allowRawHTML"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string              `yaml:"host"`
	Parameters    services.Parameters `yaml:"parameters"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string              `yaml:"apiKey"`
	BaseURL       string              `yaml:"baseURL"`
	Parameters    services.Parameters `yaml:"parameters"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	Endpoint      string `yaml:"endpoint"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	Endpoint      string `yaml:"endpoint"`
}

type echoConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Delay         time.Duration `yaml:"delay"`
}

const (
	defaultModel      = "llama3.2:1b"
	defaultOllamaHost = "http://localhost:11434"
)

var defaultModels = []string{"llama3.2:1b", "llama3.2:3b"}

func defaultConfig() config {
	return config{
		settings: settings{
			Port:       "8080",
			LogLevel:   "info",
			SessionTTL: 2 * time.Hour,
			RateLimit:  rateLimitConfig{Burst: 1},
			Markdown:   markdownConfig{Renderer: markdown.EngineSubset},
		},
		LLM: &ollamaConfig{
			BaseLLMConfig: BaseLLMConfig{Provider: "ollama", Model: defaultModel},
		},
	}
}

// defaultConfigPath returns <UserConfigDir>/localchat/config.yaml, creating the directory if needed.
func defaultConfigPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	cfgPath := filepath.Join(cfgDir, "localchat")
	if err := os.MkdirAll(cfgPath, 0o755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}
	return filepath.Join(cfgPath, "config.yaml"), nil
}

// loadConfig reads the config file at path on top of the defaults. A missing file is not an error.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	cfgFile, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.fillModels()
			return cfg, nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer cfgFile.Close()

	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		// An empty file decodes to io.EOF and means defaults.
		if !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	cfg.fillModels()

	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	rawConfig := struct {
		settings `yaml:",inline"`
		LLM      yaml.Node `yaml:"llm"`
	}{settings: c.settings}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.settings = rawConfig.settings

	if rawConfig.LLM.IsZero() {
		return nil
	}

	var base BaseLLMConfig
	if err := rawConfig.LLM.Decode(&base); err != nil {
		return err
	}

	var llm llmConfig
	switch base.Provider {
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	case "echo":
		llm = &echoConfig{}
	case "":
		return fmt.Errorf("llm provider is required")
	default:
		return fmt.Errorf("unknown llm provider: %s", base.Provider)
	}

	if err := rawConfig.LLM.Decode(llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func (c config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("sessionTTL must not be negative")
	}
	if c.EngineTimeout < 0 {
		return fmt.Errorf("engineTimeout must not be negative")
	}
	if c.RateLimit.PerMinute < 0 {
		return fmt.Errorf("rateLimit.perMinute must not be negative")
	}
	switch c.Markdown.Renderer {
	case "", markdown.EngineSubset, markdown.EngineCommonMark:
	default:
		return fmt.Errorf("unknown markdown renderer: %s", c.Markdown.Renderer)
	}
	return nil
}

// fillModels offers the configured model when no model list is given. The stock Ollama model keeps
// the stock list.
func (c *config) fillModels() {
	if len(c.Models) > 0 {
		return
	}
	model := c.LLM.base().Model
	if model == "" || slices.Contains(defaultModels, model) {
		c.Models = slices.Clone(defaultModels)
		return
	}
	c.Models = []string{model}
}

// engine builds the configured engine, rate limited when rateLimit.perMinute is set.
func (c config) engine(logger *slog.Logger) (handlers.LLM, error) {
	llm, err := c.LLM.llm(logger)
	if err != nil {
		return nil, fmt.Errorf("error creating %s engine: %w", c.LLM.base().Provider, err)
	}
	if c.RateLimit.PerMinute > 0 {
		return services.NewRateLimited(llm, c.RateLimit.PerMinute, c.RateLimit.Burst), nil
	}
	return llm, nil
}

func (b BaseLLMConfig) base() BaseLLMConfig {
	return b
}

func (o ollamaConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = defaultOllamaHost
	}
	// OLLAMA_HOST is commonly set without a scheme.
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return services.NewOllama(host, o.Model, o.Parameters, logger)
}

func (o openAIConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && o.BaseURL == "" {
		return nil, fmt.Errorf("apiKey is required for api.openai.com")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, o.Parameters, logger), nil
}

func (a anthropicConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("maxTokens is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(apiKey, a.Endpoint, a.Model, a.MaxTokens, logger), nil
}

func (o openRouterConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return services.NewOpenRouter(apiKey, o.Endpoint, o.Model, logger), nil
}

func (e echoConfig) llm(*slog.Logger) (handlers.LLM, error) {
	model := e.Model
	if model == "" {
		model = "echo"
	}
	return services.NewEcho(model, e.Delay), nil
}
