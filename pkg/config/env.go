package config

import (
	"fmt"
	"strings"

	env "github.com/Netflix/go-env"
)

// envOverrides lists the environment variables that take precedence over
// the config file. Unset variables leave the pointer nil.
type envOverrides struct {
	LLMProvider   *string `env:"GOON_LLM_PROVIDER"`
	Transport     *string `env:"GOON_TRANSPORT"`
	EndpointURL   *string `env:"GOON_ENDPOINT_URL"`
	Model         *string `env:"GOON_MODEL"`
	LogLevel      *string `env:"GOON_LOG_LEVEL"`
	LogFile       *string `env:"GOON_LOG_FILE"`
	OpenAIKey     *string `env:"GOON_OPENAI_API_KEY,OPENAI_API_KEY"`
	OpenRouterKey *string `env:"GOON_OPENROUTER_API_KEY,OPENROUTER_API_KEY"`
	GoogleKey     *string `env:"GOON_GOOGLE_API_KEY,GEMINI_API_KEY"`
	AnthropicKey  *string `env:"GOON_ANTHROPIC_API_KEY,ANTHROPIC_API_KEY"`
}

// ApplyEnv returns cfg with environment overrides applied.
func ApplyEnv(cfg Config) (Config, error) {
	var o envOverrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return cfg, fmt.Errorf("failed to read environment: %w", err)
	}
	return o.apply(cfg), nil
}

func (o envOverrides) apply(cfg Config) Config {
	set := func(dst *string, src *string) {
		if src != nil && strings.TrimSpace(*src) != "" {
			*dst = strings.TrimSpace(*src)
		}
	}

	set(&cfg.LLMProvider, o.LLMProvider)
	set(&cfg.Transport, o.Transport)
	set(&cfg.Endpoint.URL, o.EndpointURL)
	set(&cfg.LogLevel, o.LogLevel)
	set(&cfg.LogFile, o.LogFile)
	set(&cfg.Providers.OpenAI.APIKey, o.OpenAIKey)
	set(&cfg.Providers.OpenRouter.APIKey, o.OpenRouterKey)
	set(&cfg.Providers.Google.APIKey, o.GoogleKey)
	set(&cfg.Providers.Anthropic.APIKey, o.AnthropicKey)

	if o.Model != nil && strings.TrimSpace(*o.Model) != "" {
		cfg.setActiveModel(strings.TrimSpace(*o.Model))
	}
	return cfg
}

func (c *Config) setActiveModel(model string) {
	switch strings.ToLower(strings.TrimSpace(c.LLMProvider)) {
	case ProviderOpenRouter:
		c.Providers.OpenRouter.Model = model
	case ProviderGoogle:
		c.Providers.Google.Model = model
	case ProviderAnthropic:
		c.Providers.Anthropic.Model = model
	case ProviderCopilot:
		c.Providers.Copilot.Model = model
	default:
		c.Providers.OpenAI.Model = model
	}
}
