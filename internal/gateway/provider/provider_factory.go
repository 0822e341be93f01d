package provider

import (
	"fmt"
	"strings"
	"time"

	"quorum/internal/config"
	"quorum/internal/logger"
)

// BuildProvidersFromConfig 按配置构建启用的 ModelProvider 列表，key 为 backend id。
func BuildProvidersFromConfig(backends []config.BackendConfig) map[string]ModelProvider {
	out := make(map[string]ModelProvider, len(backends))
	for _, b := range backends {
		if !b.Enabled {
			continue
		}
		id := strings.TrimSpace(b.ID)
		if id == "" {
			base := strings.TrimSpace(b.Provider)
			if base == "" {
				base = "provider"
			}
			id = fmt.Sprintf("%s:%s", base, strings.TrimSpace(b.Model))
			logger.Warnf("ai.backends 缺少 id，已为 %q 生成 ID: %s", b.Provider, id)
		}
		client := &OpenAIChatClient{
			BaseURL:      b.APIURL,
			APIKey:       b.APIKey,
			Model:        b.Model,
			Timeout:      time.Duration(b.TimeoutSeconds) * time.Second,
			ExtraHeaders: b.Headers,
		}
		out[id] = NewOpenAIModelProvider(id, true, client)
	}
	return out
}
