package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGoogle     = "google"
	ProviderAnthropic  = "anthropic"
	ProviderCopilot    = "copilot"

	TransportDirect   = "direct"
	TransportEndpoint = "endpoint"
)

// Config represents the application configuration
type Config struct {
	LLMProvider            string          `json:"llm_provider"`
	Transport              string          `json:"transport"`
	Endpoint               EndpointConfig  `json:"endpoint"`
	Providers              ProvidersConfig `json:"providers"`
	Speech                 SpeechConfig    `json:"speech"`
	ExchangeTimeoutSeconds int             `json:"exchange_timeout_seconds"`
	LogLevel               string          `json:"log_level"`
	LogFile                string          `json:"log_file"`
	LogFormat              string          `json:"log_format"`
}

// ProvidersConfig holds per-provider settings. Only the provider named by
// LLMProvider is used at runtime.
type ProvidersConfig struct {
	OpenAI     ProviderConfig   `json:"openai"`
	OpenRouter OpenRouterConfig `json:"openrouter"`
	Google     ProviderConfig   `json:"google"`
	Anthropic  ProviderConfig   `json:"anthropic"`
	Copilot    ProviderConfig   `json:"copilot"`
}

// ProviderConfig holds the settings shared by every LLM provider.
type ProviderConfig struct {
	APIKey            string  `json:"api_key"`
	APIURL            string  `json:"api_url,omitempty"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	APITimeoutSeconds int     `json:"api_timeout_seconds"`
}

// OpenRouterConfig holds the OpenRouter API configuration
type OpenRouterConfig struct {
	APIKey            string  `json:"api_key"`
	APIURL            string  `json:"api_url"`
	HTTPReferer       string  `json:"http_referer,omitempty"`
	XTitle            string  `json:"x_title,omitempty"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	APITimeoutSeconds int     `json:"api_timeout_seconds"`
}

// EndpointConfig points the client at a running goon-server.
type EndpointConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SpeechConfig configures audio transcription for voice input.
type SpeechConfig struct {
	Model    string `json:"model"`
	Language string `json:"language"`
	// APIKey falls back to providers.openai.api_key when empty.
	APIKey string `json:"api_key,omitempty"`
}

// Default returns a configuration with default values
func Default() Config {
	return Config{
		LLMProvider: ProviderOpenAI,
		Transport:   TransportDirect,
		Endpoint: EndpointConfig{
			URL:            "http://localhost:3000",
			TimeoutSeconds: 120,
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIURL:            "https://api.openai.com/v1",
				Model:             "gpt-4o-mini",
				Temperature:       0.7,
				MaxTokens:         1000,
				APITimeoutSeconds: 60,
			},
			OpenRouter: OpenRouterConfig{
				APIURL:            "https://openrouter.ai/api/v1",
				Model:             "openai/gpt-4o-mini",
				XTitle:            "goon-chat",
				Temperature:       0.7,
				MaxTokens:         1000,
				APITimeoutSeconds: 60,
			},
			Google: ProviderConfig{
				Model:             "gemini-2.5-flash",
				Temperature:       0.7,
				MaxTokens:         1000,
				APITimeoutSeconds: 60,
			},
			Anthropic: ProviderConfig{
				APIURL:            "https://api.anthropic.com/v1",
				Model:             "claude-3-5-haiku-latest",
				Temperature:       0.7,
				MaxTokens:         1000,
				APITimeoutSeconds: 60,
			},
			Copilot: ProviderConfig{
				Model:             "gpt-4o",
				Temperature:       0.7,
				MaxTokens:         1000,
				APITimeoutSeconds: 60,
			},
		},
		Speech: SpeechConfig{
			Model:    "whisper-1",
			Language: "en",
		},
		ExchangeTimeoutSeconds: 120,
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

// Load loads configuration from the specified path.
// If the file doesn't exist, creates one with default values.
// Fields missing from an existing file keep their defaults.
func Load(configPath string) (Config, error) {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return Config{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(configPath, cfg); err != nil {
				return Config{}, fmt.Errorf("failed to create default config: %w", err)
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to the specified path
func Save(configPath string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Active returns the settings of the provider selected by LLMProvider.
func (c Config) Active() ProviderConfig {
	switch strings.ToLower(strings.TrimSpace(c.LLMProvider)) {
	case ProviderOpenRouter:
		or := c.Providers.OpenRouter
		return ProviderConfig{
			APIKey:            or.APIKey,
			APIURL:            or.APIURL,
			Model:             or.Model,
			Temperature:       or.Temperature,
			MaxTokens:         or.MaxTokens,
			APITimeoutSeconds: or.APITimeoutSeconds,
		}
	case ProviderGoogle:
		return c.Providers.Google
	case ProviderAnthropic:
		return c.Providers.Anthropic
	case ProviderCopilot:
		return c.Providers.Copilot
	default:
		return c.Providers.OpenAI
	}
}

// SpeechAPIKey returns the key used for transcription requests.
func (c Config) SpeechAPIKey() string {
	if key := strings.TrimSpace(c.Speech.APIKey); key != "" {
		return key
	}
	return strings.TrimSpace(c.Providers.OpenAI.APIKey)
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	switch c.Transport {
	case TransportDirect:
		if err := c.validateProvider(); err != nil {
			return err
		}
	case TransportEndpoint:
		if err := validateHTTPURL("endpoint url", c.Endpoint.URL); err != nil {
			return err
		}
		if c.Endpoint.TimeoutSeconds <= 0 {
			return fmt.Errorf("endpoint timeout_seconds must be positive, got: %d", c.Endpoint.TimeoutSeconds)
		}
	default:
		return fmt.Errorf("unsupported transport: %q", c.Transport)
	}

	if c.ExchangeTimeoutSeconds < 0 {
		return fmt.Errorf("exchange_timeout_seconds must not be negative, got: %d", c.ExchangeTimeoutSeconds)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format: %q", c.LogFormat)
	}

	return nil
}

// ValidateProvider checks only the settings of the active provider. The
// server binary uses it since it never reads the transport section.
func (c Config) ValidateProvider() error {
	return c.validateProvider()
}

func (c Config) validateProvider() error {
	provider := strings.ToLower(strings.TrimSpace(c.LLMProvider))
	switch provider {
	case ProviderOpenAI, ProviderOpenRouter, ProviderGoogle, ProviderAnthropic, ProviderCopilot:
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}

	active := c.Active()
	if provider != ProviderCopilot && strings.TrimSpace(active.APIKey) == "" {
		return fmt.Errorf("%s api_key is required (set in config file or environment)", provider)
	}
	if active.APIURL != "" {
		if err := validateHTTPURL(provider+" api_url", active.APIURL); err != nil {
			return err
		}
	}
	if active.Temperature < 0 || active.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got: %f", active.Temperature)
	}
	if active.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got: %d", active.MaxTokens)
	}
	if active.APITimeoutSeconds <= 0 {
		return fmt.Errorf("api_timeout_seconds must be positive, got: %d", active.APITimeoutSeconds)
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%s must be an http(s) URL, got: %q", name, raw)
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".goon_chat", "config.json")
	}
	return filepath.Join(homeDir, ".goon_chat", "config.json")
}

// DataDir returns the directory holding logs and caches.
func DataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(homeDir) == "" {
		return ".goon_chat"
	}
	return filepath.Join(homeDir, ".goon_chat")
}
