package ollama

import (
	"fmt"

	"easypath/internal/llmclient"
)

type factory struct{}

func (factory) New(cfg llmclient.ProviderGroupConfig) (llmclient.LLMClient, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("ollama: provider group has no models configured")
	}
	opts := make(map[string]any, len(cfg.Options))
	for k, v := range cfg.Options {
		opts[k] = v
	}
	return New(cfg.Models[0], cfg.BaseURL, opts)
}

func init() {
	llmclient.RegisterProvider("ollama", factory{})
}
