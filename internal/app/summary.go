package app

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	qcfg "quorum/internal/config"
)

// StartupSummary 启动时打印一次生效配置，密钥字段先脱敏。
type StartupSummary struct {
	Symbol    string           `yaml:"symbol"`
	Interval  int              `yaml:"interval_seconds"`
	HTTPAddr  string           `yaml:"http_addr"`
	DryRun    bool             `yaml:"dry_run"`
	Debate    bool             `yaml:"debate_enabled"`
	Arbiter   string           `yaml:"arbiter_backend"`
	Backends  []backendSummary `yaml:"backends"`
	StorePath string           `yaml:"store_path,omitempty"`
}

type backendSummary struct {
	ID       string `yaml:"id"`
	Model    string `yaml:"model"`
	Priority int    `yaml:"priority"`
	APIKey   string `yaml:"api_key"`
}

func newStartupSummary(cfg *qcfg.Config) StartupSummary {
	s := StartupSummary{
		Symbol:    cfg.Engine.Symbol,
		Interval:  cfg.Engine.IntervalSeconds,
		HTTPAddr:  cfg.App.HTTPAddr,
		DryRun:    cfg.Exchange.DryRun,
		Debate:    cfg.Debate.Enabled,
		Arbiter:   cfg.Arbiter.BackendID,
		StorePath: cfg.Store.Path,
	}
	for _, b := range cfg.AI.Backends {
		if !b.Enabled {
			continue
		}
		s.Backends = append(s.Backends, backendSummary{
			ID:       b.ID,
			Model:    b.Model,
			Priority: b.Priority,
			APIKey:   maskSecret(b.APIKey),
		})
	}
	return s
}

func (s StartupSummary) Print() {
	out, err := yaml.Marshal(s)
	if err != nil {
		return
	}
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Print(string(out))
	fmt.Println(strings.Repeat("=", 60))
}

func maskSecret(s string) string {
	if len(s) <= 6 {
		if s == "" {
			return ""
		}
		return "***"
	}
	return s[:3] + "***" + s[len(s)-3:]
}
