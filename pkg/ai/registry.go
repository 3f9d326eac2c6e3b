package ai

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"goon_chat/pkg/config"
)

// ProviderType names a backend in the config file.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = config.ProviderOpenAI
	ProviderOpenRouter ProviderType = config.ProviderOpenRouter
	ProviderGoogle     ProviderType = config.ProviderGoogle
	ProviderAnthropic  ProviderType = config.ProviderAnthropic
	ProviderCopilot    ProviderType = config.ProviderCopilot
)

// Auth methods shown by `goon providers`.
const (
	AuthAPIKey     = "api_key"
	AuthCopilotCLI = "copilot_cli"
)

// Backend describes a registered provider implementation.
type Backend struct {
	Type        ProviderType
	Name        string
	Description string
	Auth        string
	New         func(cfg config.Config) (Provider, error)
}

var (
	backendsMu sync.RWMutex
	backends   = map[ProviderType]Backend{}
)

// Register makes a backend available to FromConfig. Backends register
// themselves from init functions in the providers package; a later
// registration of the same type replaces the earlier one.
func Register(b Backend) {
	if b.New == nil {
		panic(fmt.Sprintf("ai: backend %q registered without a constructor", b.Type))
	}
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b.Type] = b
}

// Backends returns the registered backends sorted by type.
func Backends() []Backend {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// LookupBackend returns the backend registered for t.
func LookupBackend(t ProviderType) (Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[t]
	return b, ok
}

// FromConfig builds the provider selected by cfg.LLMProvider.
func FromConfig(cfg config.Config) (Provider, error) {
	t := ProviderType(strings.ToLower(strings.TrimSpace(cfg.LLMProvider)))
	b, ok := LookupBackend(t)
	if !ok {
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.LLMProvider)
	}
	p, err := b.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", t, err)
	}
	return p, nil
}
