package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/anotherai-dev/anotherai/pkg/provider"
)

// modelEntry is one row of GET /v1/models. Prices are USD per million
// tokens, matching the catalog.
type modelEntry struct {
	ID              string   `json:"id"`
	Object          string   `json:"object"`
	DisplayName     string   `json:"display_name"`
	Providers       []string `json:"providers"`
	ContextWindow   int      `json:"context_window"`
	PromptPrice     float64  `json:"prompt_price_per_million_usd"`
	CompletionPrice float64  `json:"completion_price_per_million_usd"`
	SupportsReason  bool     `json:"supports_reasoning"`
}

func (s *Server) listModelsHandler(c *echo.Context) error {
	infos := provider.Models()
	entries := make([]modelEntry, 0, len(infos))
	for _, info := range infos {
		providers := make([]string, len(info.Providers))
		for i, p := range info.Providers {
			providers[i] = string(p)
		}
		entries = append(entries, modelEntry{
			ID:              info.ID,
			Object:          "model",
			DisplayName:     info.DisplayName,
			Providers:       providers,
			ContextWindow:   info.ContextWindow,
			PromptPrice:     info.PromptPrice,
			CompletionPrice: info.CompletionPrice,
			SupportsReason:  info.Reasoning != nil,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"object": "list", "data": entries})
}
