// Package autoload blank-imports every llmclient provider package so its
// init() runs RegisterProvider before NewFromConfig looks a type up. The
// teacher's main.go references an equivalent genesis/pkg/llm/autoload
// package that is absent from its tree; this package actually exists.
package autoload

import (
	_ "easypath/internal/llmclient/gemini"
	_ "easypath/internal/llmclient/ollama"
	_ "easypath/internal/llmclient/openailm"
)
