package llmclient

import (
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ProviderGroupConfig is one entry of config.json's "llm" block,
// ported from the teacher's pkg/llm/registry.go ProviderGroupConfig.
type ProviderGroupConfig struct {
	Type                string            `json:"type"`
	APIKeys             []string          `json:"api_keys,omitempty"`
	Models              []string          `json:"models"`
	BaseURL             string            `json:"base_url,omitempty"`
	UseThoughtSignature bool              `json:"use_thought_signature,omitempty"`
	Options             map[string]string `json:"options,omitempty"`
}

// ProviderFactory constructs an LLMClient from a group config. Each provider
// subpackage registers one via RegisterProvider in its init().
type ProviderFactory interface {
	New(cfg ProviderGroupConfig) (LLMClient, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ProviderFactory)
)

// RegisterProvider adds factory under name, called from provider package
// init() functions.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// GetProviderFactory looks up a previously registered factory.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// ErrUnknownProvider is returned by NewFromConfig for an unregistered type.
type ErrUnknownProvider struct{ Type string }

func (e ErrUnknownProvider) Error() string {
	return fmt.Sprintf("llmclient: unknown provider type %q (autoload package not imported?)", e.Type)
}
