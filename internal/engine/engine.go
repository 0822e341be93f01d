package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"quorum/internal/analyst"
	"quorum/internal/arbiter"
	"quorum/internal/debate"
	"quorum/internal/gateway/exchange"
	"quorum/internal/gateway/market"
	"quorum/internal/logger"
	"quorum/internal/modelpool"
	"quorum/internal/pkg/circuit"
	"quorum/internal/risk"
	"quorum/internal/store"
)

// CycleResult 一个完整决策周期的产物。构造后不再修改。
type CycleResult struct {
	CycleID     string                     `json:"cycle_id"`
	Symbol      string                     `json:"symbol"`
	Price       float64                    `json:"price"`
	StartedAt   time.Time                  `json:"started_at"`
	FinishedAt  time.Time                  `json:"finished_at"`
	Opinions    map[string]analyst.Opinion `json:"opinions"`
	AgentErrors []analyst.AgentError       `json:"agent_errors,omitempty"`
	Bracket     debate.Bracket             `json:"bracket"`
	Decision    arbiter.Decision           `json:"decision"`
	Order       *exchange.Order            `json:"order,omitempty"`
	Receipt     *exchange.Receipt          `json:"receipt,omitempty"`
	Warnings    []string                   `json:"warnings,omitempty"`
}

type Config struct {
	Symbol         string
	Interval       time.Duration
	RunImmediately bool
	DebateEnabled  bool
}

// Engine 串起整条决策管线:行情上下文 → 并发分析 → 锦标赛辩论 →
// 裁决 → 风控归一化 → 下单与审计。每个周期都持有池的运行中计数，
// 挡住中途的破坏性重置。
type Engine struct {
	cfg      Config
	source   market.Source
	registry *analyst.Registry
	orch     *analyst.Orchestrator
	debater  *debate.Engine
	judge    *arbiter.Arbiter
	synth    *risk.Synthesizer
	breaker  *circuit.Breaker
	pool     *modelpool.Pool
	exchange exchange.Client
	audit    store.Store

	mu   sync.RWMutex
	last *CycleResult
}

type Deps struct {
	Source   market.Source
	Registry *analyst.Registry
	Orch     *analyst.Orchestrator
	Debater  *debate.Engine
	Judge    *arbiter.Arbiter
	Synth    *risk.Synthesizer
	Breaker  *circuit.Breaker
	Pool     *modelpool.Pool
	Exchange exchange.Client
	Audit    store.Store
}

func New(cfg Config, d Deps) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Engine{
		cfg:      cfg,
		source:   d.Source,
		registry: d.Registry,
		orch:     d.Orch,
		debater:  d.Debater,
		judge:    d.Judge,
		synth:    d.Synth,
		breaker:  d.Breaker,
		pool:     d.Pool,
		exchange: d.Exchange,
		audit:    d.Audit,
	}
}

// Run 周期性驱动 RunCycle 直到 ctx 取消。单周期失败只记日志，
// 不中断调度。
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.RunImmediately {
		if _, err := e.RunCycle(ctx); err != nil {
			logger.Errorf("decision cycle failed: %v", err)
		}
	}
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.RunCycle(ctx); err != nil {
				logger.Errorf("decision cycle failed: %v", err)
			}
		}
	}
}

// RunCycle 执行一个完整决策周期。只有调用方级错误（上下文构建失败、
// 无可用分析师）才返回 error；管线内部的失败都被吸收为保守决策。
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	done := e.pool.BeginOperation()
	defer done()

	started := time.Now()
	tctx, err := e.source.BuildContext(ctx, e.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("build trading context: %w", err)
	}

	agentIDs := e.registry.AgentIDs()
	res, err := e.orch.RunAll(ctx, tctx, agentIDs)
	if err != nil {
		return nil, err
	}

	cr := &CycleResult{
		CycleID:     res.CycleID,
		Symbol:      tctx.Symbol,
		Price:       tctx.Snapshot.Price,
		StartedAt:   started,
		Opinions:    res.Opinions,
		AgentErrors: res.Errors,
	}
	for _, ae := range res.Errors {
		cr.Warnings = append(cr.Warnings, fmt.Sprintf("agent %s: %s", ae.AgentID, ae.Reason))
	}

	opinions := make([]analyst.Opinion, 0, len(res.Opinions))
	for _, op := range res.Opinions {
		opinions = append(opinions, op)
	}
	if e.cfg.DebateEnabled {
		cr.Bracket = e.debater.Run(ctx, opinions)
	} else {
		cr.Bracket = debate.Bracket{State: debate.StateResolved}
	}

	cr.Decision = e.judge.Arbitrate(ctx, res.Opinions, cr.Bracket)
	cr.Warnings = append(cr.Warnings, cr.Decision.Warnings...)

	status := e.breaker.CheckStatus()
	caps := risk.Caps{
		MaxLeverage: e.breaker.MaxLeverage(status.Level),
		CloseOnly:   status.Level == circuit.LevelRed,
	}
	if status.Level > circuit.LevelNone {
		cr.Warnings = append(cr.Warnings, fmt.Sprintf("circuit breaker %s: %s", status.Level, status.Reason))
	}

	rr, err := e.synth.Synthesize(ctx, cr.Decision, tctx, caps)
	cr.Warnings = append(cr.Warnings, rr.Warnings...)
	if err != nil {
		// 风控拒单只终止下单，审计照常落库
		cr.Warnings = append(cr.Warnings, fmt.Sprintf("order construction aborted: %v", err))
		logger.Warnf("cycle %s: %v", cr.CycleID, err)
	} else if rr.Order != nil {
		cr.Order = rr.Order
		receipt, perr := e.exchange.PlaceOrder(ctx, *rr.Order)
		if perr != nil {
			cr.Warnings = append(cr.Warnings, fmt.Sprintf("order placement failed: %v", perr))
			e.breaker.RecordFailure("order placement failed")
		} else {
			cr.Receipt = &receipt
		}
	}

	cr.FinishedAt = time.Now()
	e.persist(ctx, tctx, cr)

	e.mu.Lock()
	e.last = cr
	e.mu.Unlock()

	logger.Infof("cycle %s done in %s: action=%s winner=%s order=%v",
		cr.CycleID, cr.FinishedAt.Sub(cr.StartedAt).Round(time.Millisecond),
		cr.Decision.FinalAction, cr.Decision.WinnerAgentID, cr.Order != nil)
	return cr, nil
}

// persist best-effort 审计落库，失败只打日志。
func (e *Engine) persist(ctx context.Context, tctx market.TradingContext, cr *CycleResult) {
	if e.audit == nil {
		return
	}
	mustJSON := func(v any) []byte {
		b, err := json.Marshal(v)
		if err != nil {
			return []byte("null")
		}
		return b
	}
	rec := store.CycleRecord{
		CycleID:  cr.CycleID,
		Symbol:   cr.Symbol,
		Price:    cr.Price,
		Opinions: mustJSON(cr.Opinions),
		Bracket:  mustJSON(cr.Bracket),
		Decision: mustJSON(cr.Decision),
		Warnings: mustJSON(cr.Warnings),
	}
	if err := e.audit.SaveCycle(ctx, rec); err != nil {
		logger.Warnf("audit: save cycle %s failed: %v", cr.CycleID, err)
	}
	e.persistStages(ctx, tctx, cr, mustJSON)
	if cr.Order != nil {
		status := "SYNTHESIZED"
		if cr.Receipt != nil {
			status = cr.Receipt.Status
		}
		orec := store.OrderRecord{
			CycleID:       cr.CycleID,
			ClientOrderID: cr.Order.ClientOrderID,
			Symbol:        cr.Order.Symbol,
			Side:          cr.Order.Side,
			Size:          cr.Order.Size,
			Price:         cr.Order.Price,
			TakeProfit:    cr.Order.TakeProfit,
			StopLoss:      cr.Order.StopLoss,
			Leverage:      cr.Order.Leverage,
			Status:        status,
		}
		if err := e.audit.SaveOrder(ctx, orec); err != nil {
			logger.Warnf("audit: save order %s failed: %v", cr.Order.ClientOrderID, err)
		}
	}
}

// persistStages 按阶段逐行落审计：每位分析师一行（记下池子分配的后端）、
// 辩论一行、裁决一行。任一行失败不影响其余行。
func (e *Engine) persistStages(ctx context.Context, tctx market.TradingContext, cr *CycleResult, mustJSON func(any) []byte) {
	logStage := func(l store.StageLog) {
		l.CycleID = cr.CycleID
		if err := e.audit.LogStage(ctx, l); err != nil {
			logger.Warnf("audit: log stage %s failed: %v", l.Stage, err)
		}
	}

	input := string(mustJSON(tctx.Snapshot))
	asg := e.pool.LastAssignment()
	for _, id := range sortedOpinionIDs(cr.Opinions) {
		op := cr.Opinions[id]
		model := ""
		if b, ok := asg.For(id); ok {
			model = b.ID
		}
		logStage(store.StageLog{
			Stage:       "analysis",
			Model:       model,
			Input:       input,
			Output:      string(mustJSON(op)),
			Explanation: op.Summary,
		})
	}

	if e.cfg.DebateEnabled {
		expl := "no champion"
		if cr.Bracket.Champion != nil {
			expl = "champion " + cr.Bracket.Champion.AgentID
		}
		logStage(store.StageLog{
			Stage:       "debate",
			Output:      string(mustJSON(cr.Bracket)),
			Explanation: expl,
		})
	}

	logStage(store.StageLog{
		Stage:       "arbitration",
		Model:       e.judge.Backend(),
		Input:       input,
		Output:      string(mustJSON(cr.Decision)),
		Explanation: fmt.Sprintf("%s by %s", cr.Decision.FinalAction, cr.Decision.WinnerAgentID),
	})
}

func sortedOpinionIDs(opinions map[string]analyst.Opinion) []string {
	ids := make([]string, 0, len(opinions))
	for id := range opinions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LatestCycle 返回最近完成的周期结果。
func (e *Engine) LatestCycle() (*CycleResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.last != nil
}
