package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"quorum/internal/analyst"
	qcfg "quorum/internal/config"
	"quorum/internal/engine"
	"quorum/internal/logger"
	"quorum/internal/store"
	transporthttp "quorum/internal/transport/http"
)

// App 负责应用级编排：加载配置 → 初始化依赖 → 启动决策引擎与 HTTP 服务。
type App struct {
	cfg      *qcfg.Config
	engine   *engine.Engine
	httpSrv  *transporthttp.Server
	registry *analyst.Registry
	audit    store.Store
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *qcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(cfg)
}

// Run 启动决策引擎与 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	newStartupSummary(a.cfg).Print()
	logger.Infof("quorum 启动 symbol=%s interval=%ds http=%s",
		a.cfg.Engine.Symbol, a.cfg.Engine.IntervalSeconds, a.httpSrv.Addr())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return a.engine.Run(ctx)
	})
	return group.Wait()
}

// Engine exposes the decision engine (for testing/replay harnesses).
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

func (a *App) close() {
	if a.registry != nil {
		_ = a.registry.Close()
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			logger.Warnf("close audit store: %v", err)
		}
	}
}
