package analyst

import (
	"context"
	"fmt"
	"time"

	"quorum/internal/gateway/market"
	"quorum/internal/logger"
	"quorum/internal/modelpool"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// AgentError 记录单个 agent 的失败原因（连同缺席的 opinion 一起上报）。
type AgentError struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

// Result：每个请求的 agentID 恰好出现在 Opinions 或 Errors 之一。
type Result struct {
	CycleID  string
	Opinions map[string]Opinion
	Errors   []AgentError
}

type OrchestratorConfig struct {
	BatchSize  int
	BatchDelay time.Duration
}

// Orchestrator 将 Runner 并发扇出到全部分析师：固定批次 + 批间延迟以
// 尊重上游限流，单个失败只产生错误条目，从不中止整批。
type Orchestrator struct {
	runner *Runner
	pool   *modelpool.Pool
	cfg    OrchestratorConfig
}

func NewOrchestrator(runner *Runner, pool *modelpool.Pool, cfg OrchestratorConfig) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 500 * time.Millisecond
	}
	return &Orchestrator{runner: runner, pool: pool, cfg: cfg}
}

// RunAll 只对调用方错误（空列表、无效上下文)返回 error；模型侧失败一律
// 吸收进 Result.Errors。
func (o *Orchestrator) RunAll(ctx context.Context, tctx market.TradingContext, agentIDs []string) (Result, error) {
	if len(agentIDs) == 0 {
		return Result{}, fmt.Errorf("orchestrator: agent list is empty")
	}
	if tctx.Symbol == "" || tctx.Snapshot.Price <= 0 {
		return Result{}, fmt.Errorf("orchestrator: invalid trading context (symbol=%q price=%.4f)", tctx.Symbol, tctx.Snapshot.Price)
	}
	ids := dedupe(agentIDs)

	cycleID := uuid.NewString()
	asg := o.pool.AssignForCycle(cycleID, ids)
	logger.Infof("cycle %s: dispatching %d analyst(s) in batches of %d", cycleID, len(ids), o.cfg.BatchSize)

	slots := make([]slot, len(ids))

	for start := 0; start < len(ids); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		eg, egCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			eg.Go(func() error {
				op, err := o.runner.Run(egCtx, ids[i], asg, tctx)
				slots[i] = slot{opinion: op, err: err}
				return nil // 失败隔离：不向 errgroup 传播
			})
		}
		_ = eg.Wait()
		if end < len(ids) {
			select {
			case <-time.After(o.cfg.BatchDelay):
			case <-ctx.Done():
				// 剩余批次标记为取消，维持成员确定性
				for i := end; i < len(ids); i++ {
					slots[i] = slot{err: ctx.Err()}
				}
				return collect(cycleID, ids, slots), nil
			}
		}
	}
	return collect(cycleID, ids, slots), nil
}

type slot struct {
	opinion Opinion
	err     error
}

func collect(cycleID string, ids []string, slots []slot) Result {
	res := Result{CycleID: cycleID, Opinions: make(map[string]Opinion, len(ids))}
	for i, id := range ids {
		if slots[i].err != nil {
			res.Errors = append(res.Errors, AgentError{AgentID: id, Reason: slots[i].err.Error()})
			continue
		}
		res.Opinions[id] = slots[i].opinion
	}
	return res
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
