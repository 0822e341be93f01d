package app

import (
	"fmt"
	"sort"
	"time"

	"quorum/internal/analyst"
	"quorum/internal/arbiter"
	qcfg "quorum/internal/config"
	"quorum/internal/debate"
	"quorum/internal/engine"
	"quorum/internal/gateway/exchange"
	"quorum/internal/gateway/market"
	"quorum/internal/gateway/provider"
	"quorum/internal/logger"
	"quorum/internal/modelpool"
	"quorum/internal/pkg/circuit"
	"quorum/internal/risk"
	"quorum/internal/store"
	"quorum/internal/store/sqlite"
	transporthttp "quorum/internal/transport/http"
)

// AppBuilder 把配置翻译成完整的依赖图。每个 build 步骤都可以在
// 测试里被替换。
type AppBuilder struct {
	cfg *qcfg.Config

	providersFn func([]qcfg.BackendConfig) map[string]provider.ModelProvider
	marketFn    func(qcfg.ExchangeConfig) market.Source
	exchangeFn  func(qcfg.ExchangeConfig) exchange.Client
	storeFn     func(qcfg.StoreConfig) (store.Store, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *qcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		providersFn: provider.BuildProvidersFromConfig,
		marketFn:    buildMarketSource,
		exchangeFn:  buildExchangeClient,
		storeFn:     buildStore,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithMarketSource 替换行情来源（测试/回放用）。
func WithMarketSource(s market.Source) AppBuilderOption {
	return func(b *AppBuilder) { b.marketFn = func(qcfg.ExchangeConfig) market.Source { return s } }
}

// WithExchangeClient 替换交易所客户端。
func WithExchangeClient(c exchange.Client) AppBuilderOption {
	return func(b *AppBuilder) { b.exchangeFn = func(qcfg.ExchangeConfig) exchange.Client { return c } }
}

func buildMarketSource(cfg qcfg.ExchangeConfig) market.Source {
	return market.NewBinanceSource(market.BinanceConfig{
		RESTBaseURL: cfg.RESTBaseURL,
		APIKey:      cfg.APIKey,
		APISecret:   cfg.APISecret,
		HTTPTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
}

func buildExchangeClient(cfg qcfg.ExchangeConfig) exchange.Client {
	return exchange.NewBinance(exchange.BinanceConfig{
		RESTBaseURL: cfg.RESTBaseURL,
		APIKey:      cfg.APIKey,
		APISecret:   cfg.APISecret,
		HTTPTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		DryRun:      cfg.DryRun,
	})
}

func buildStore(cfg qcfg.StoreConfig) (store.Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	return sqlite.NewSqliteStore(cfg.Path)
}

func (b *AppBuilder) Build() (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	providers := b.providersFn(cfg.AI.Backends)
	if len(providers) == 0 {
		return nil, fmt.Errorf("no enabled inference backends")
	}

	backends, err := poolBackends(cfg.AI, providers)
	if err != nil {
		return nil, err
	}
	pool, err := modelpool.New(modelpool.Config{
		FailureThreshold: cfg.AI.FailureThreshold,
		ResetInterval:    time.Duration(cfg.AI.FailureResetSeconds) * time.Second,
		MaxTracked:       cfg.AI.MaxTrackedFailures,
		Pinned:           cfg.AI.PinnedBackend,
	}, backends)
	if err != nil {
		return nil, fmt.Errorf("build model pool: %w", err)
	}

	registry, err := analyst.NewRegistry(cfg.Agents.PersonaPath)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}

	runner := analyst.NewRunner(pool, registry, analyst.RunnerConfig{
		MaxRetries: cfg.AI.MaxRetries,
		Backoff:    time.Duration(cfg.AI.RetryBackoffMs) * time.Millisecond,
	})
	orch := analyst.NewOrchestrator(runner, pool, analyst.OrchestratorConfig{
		BatchSize:  cfg.Agents.BatchSize,
		BatchDelay: time.Duration(cfg.Agents.BatchDelayMs) * time.Millisecond,
	})

	debater := debate.NewEngine(debate.Config{
		TurnsPerSide:     cfg.Debate.TurnsPerSide,
		MaxQuarterfinals: cfg.Debate.MaxQuarterfinals,
		Concurrent:       cfg.Debate.ConcurrentMatches,
	}, debate.NewModelTurnGenerator(pool, 0))

	judgeProvider, err := pickJudgeProvider(cfg.Arbiter.BackendID, backends, providers)
	if err != nil {
		return nil, err
	}
	judge := arbiter.New(arbiter.Config{
		MaxRetries: cfg.Arbiter.MaxRetries,
		Weights:    cfg.Arbiter.Weights,
	}, judgeProvider)

	breaker := circuit.NewBreaker(circuit.BreakerConfig{
		Name:       "trading",
		YellowAt:   cfg.Circuit.YellowAt,
		OrangeAt:   cfg.Circuit.OrangeAt,
		RedAt:      cfg.Circuit.RedAt,
		DecayAfter: time.Duration(cfg.Circuit.DecayAfterMinutes) * time.Minute,
	})

	ex := b.exchangeFn(cfg.Exchange)
	synth := risk.New(cfg.Risk, ex)

	audit, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	eng := engine.New(engine.Config{
		Symbol:         cfg.Engine.Symbol,
		Interval:       time.Duration(cfg.Engine.IntervalSeconds) * time.Second,
		RunImmediately: cfg.Engine.RunImmediately,
		DebateEnabled:  cfg.Debate.Enabled,
	}, engine.Deps{
		Source:   b.marketFn(cfg.Exchange),
		Registry: registry,
		Orch:     orch,
		Debater:  debater,
		Judge:    judge,
		Synth:    synth,
		Breaker:  breaker,
		Pool:     pool,
		Exchange: ex,
		Audit:    audit,
	})

	httpSrv, err := transporthttp.NewServer(transporthttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Engine:  eng,
		Pool:    pool,
		Breaker: breaker,
	})
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		engine:   eng,
		httpSrv:  httpSrv,
		registry: registry,
		audit:    audit,
	}, nil
}

// poolBackends 把启用的后端配置接到已构建的 provider 上，按优先级升序。
func poolBackends(ai qcfg.AIConfig, providers map[string]provider.ModelProvider) ([]modelpool.Backend, error) {
	var out []modelpool.Backend
	for _, bc := range ai.Backends {
		if !bc.Enabled {
			continue
		}
		p, ok := providers[bc.ID]
		if !ok {
			return nil, fmt.Errorf("no provider constructed for backend %q", bc.ID)
		}
		timeout := time.Duration(bc.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = time.Duration(ai.TimeoutSeconds) * time.Second
		}
		out = append(out, modelpool.Backend{
			ID:          bc.ID,
			Priority:    bc.Priority,
			Timeout:     timeout,
			TokenBudget: bc.TokenBudget,
			Provider:    p,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// pickJudgeProvider 裁决固定走配置指定的后端；未指定时用优先级最高者。
func pickJudgeProvider(backendID string, backends []modelpool.Backend, providers map[string]provider.ModelProvider) (provider.ModelProvider, error) {
	if backendID != "" {
		p, ok := providers[backendID]
		if !ok {
			return nil, fmt.Errorf("arbiter backend %q is not an enabled backend", backendID)
		}
		return p, nil
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no backends available for arbiter")
	}
	logger.Warnf("arbiter.backend_id 未配置，使用优先级最高的后端 %s", backends[0].ID)
	return backends[0].Provider, nil
}
