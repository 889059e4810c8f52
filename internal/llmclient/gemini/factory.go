package gemini

import (
	"context"
	"fmt"

	"easypath/internal/llmclient"
)

type factory struct{}

func (factory) New(cfg llmclient.ProviderGroupConfig) (llmclient.LLMClient, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("gemini: provider group has no models configured")
	}
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("gemini: provider group has no api_keys configured")
	}
	return New(context.Background(), cfg.APIKeys[0], cfg.Models[0])
}

func init() {
	llmclient.RegisterProvider("gemini", factory{})
}
