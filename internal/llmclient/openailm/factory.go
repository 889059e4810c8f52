package openailm

import (
	"fmt"

	"easypath/internal/llmclient"
)

type factory struct{}

func (factory) New(cfg llmclient.ProviderGroupConfig) (llmclient.LLMClient, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("openailm: provider group has no models configured")
	}
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("openailm: provider group has no api_keys configured")
	}
	return New(cfg.APIKeys[0], cfg.Models[0], cfg.BaseURL)
}

func init() {
	llmclient.RegisterProvider("openai", factory{})
}
