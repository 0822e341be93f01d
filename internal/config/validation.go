package config

import (
	"fmt"
	"strings"
)

// validate 拦截配置型错误：缺模型、缺密钥等属于 fail-fast，不进入重试。
func validate(cfg *Config) error {
	enabled := 0
	seen := map[string]bool{}
	for i, b := range cfg.AI.Backends {
		id := strings.TrimSpace(b.ID)
		if id == "" {
			return fmt.Errorf("ai.backends[%d]: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("ai.backends[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		if !b.Enabled {
			continue
		}
		enabled++
		if strings.TrimSpace(b.Model) == "" {
			return fmt.Errorf("ai.backends[%s]: model is required", id)
		}
		if b.Priority < 0 {
			return fmt.Errorf("ai.backends[%s]: priority must be >= 0", id)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("ai.backends: at least one enabled backend is required")
	}
	if pin := strings.TrimSpace(cfg.AI.PinnedBackend); pin != "" && !seen[pin] {
		return fmt.Errorf("ai.pinned_backend: unknown backend %q", pin)
	}
	if arb := strings.TrimSpace(cfg.Arbiter.BackendID); arb != "" && !seen[arb] {
		return fmt.Errorf("arbiter.backend_id: unknown backend %q", arb)
	}
	if cfg.Risk.MinPositionPct > cfg.Risk.MaxPositionPct {
		return fmt.Errorf("risk: min_position_pct (%.2f) exceeds max_position_pct (%.2f)",
			cfg.Risk.MinPositionPct, cfg.Risk.MaxPositionPct)
	}
	for m, pct := range cfg.Risk.MethodologySLPct {
		if pct <= 0 {
			return fmt.Errorf("risk.methodology_sl_pct[%s]: must be > 0", m)
		}
	}
	return nil
}
