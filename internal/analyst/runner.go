package analyst

import (
	"context"
	"fmt"
	"time"

	"quorum/internal/gateway/market"
	"quorum/internal/gateway/provider"
	"quorum/internal/logger"
	"quorum/internal/modelpool"
)

// AgentFailure：单个 agent 在本周期内的终态失败。编排器吸收它并继续，
// 不会让整批中止。
type AgentFailure struct {
	AgentID   string
	BackendID string
	Err       error
}

func (e *AgentFailure) Error() string {
	return fmt.Sprintf("agent %s failed on backend %s: %v", e.AgentID, e.BackendID, e.Err)
}

func (e *AgentFailure) Unwrap() error { return e.Err }

// retryState 以值的形式携带重试进度，线性退避；不存为可变字段，
// 每次推进都产生新值。
type retryState struct {
	attempt int
	base    time.Duration
	lastErr error
}

func newRetryState(base time.Duration) retryState {
	if base <= 0 {
		base = 800 * time.Millisecond
	}
	return retryState{base: base}
}

func (s retryState) next(err error) retryState {
	return retryState{attempt: s.attempt + 1, base: s.base, lastErr: err}
}

func (s retryState) exhausted(max int) bool { return s.attempt > max }

// backoff 线性退避：base, 2*base, 3*base ...
func (s retryState) backoff() time.Duration {
	return time.Duration(s.attempt) * s.base
}

func (s retryState) wait(ctx context.Context) error {
	select {
	case <-time.After(s.backoff()):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type RunnerConfig struct {
	MaxRetries int // 每个后端上的重试上限
	Backoff    time.Duration
}

// Runner 调用单个分析师：拼提示词 → schema 约束生成 → 解析归一化，
// 失败时线性退避重试并向 Model Pool 申请回退后端。
type Runner struct {
	pool     *modelpool.Pool
	registry *Registry
	cfg      RunnerConfig
}

func NewRunner(pool *modelpool.Pool, registry *Registry, cfg RunnerConfig) *Runner {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &Runner{pool: pool, registry: registry, cfg: cfg}
}

// Run 只读取周期分配，不改写 Model Pool 状态（回退申请除外，那是池自身的写入）。
func (r *Runner) Run(ctx context.Context, agentID string, asg modelpool.Assignment, tctx market.TradingContext) (Opinion, error) {
	persona, ok := r.registry.Lookup(agentID)
	if !ok {
		return Opinion{}, fmt.Errorf("analyst: unknown agent %q", agentID)
	}
	backend, ok := asg.For(agentID)
	if !ok {
		return Opinion{}, fmt.Errorf("analyst: no backend assigned for agent %q in cycle %s", agentID, asg.CycleID)
	}

	system := buildSystemPrompt(persona)
	user := buildUserPrompt(tctx)
	req := provider.GenRequest{System: system, User: user, Schema: OpinionSchema(), MaxTokens: backend.TokenBudget}

	state := newRetryState(r.cfg.Backoff)
	for {
		op, err := r.attempt(ctx, agentID, persona, backend, req)
		if err == nil {
			return op, nil
		}
		state = state.next(err)
		logger.Warnf("analyst %s attempt=%d backend=%s err=%v", agentID, state.attempt, backend.ID, err)
		if !state.exhausted(r.cfg.MaxRetries) {
			if werr := state.wait(ctx); werr != nil {
				return Opinion{}, &AgentFailure{AgentID: agentID, BackendID: backend.ID, Err: werr}
			}
			continue
		}
		fb, ok := r.pool.FallbackFor(backend.ID)
		if !ok {
			return Opinion{}, &AgentFailure{AgentID: agentID, BackendID: backend.ID, Err: state.lastErr}
		}
		logger.Infof("analyst %s falling back %s -> %s", agentID, backend.ID, fb.ID)
		backend = fb
		req.MaxTokens = backend.TokenBudget
		state = newRetryState(r.cfg.Backoff)
	}
}

func (r *Runner) attempt(ctx context.Context, agentID string, persona Persona, backend modelpool.Backend, req provider.GenRequest) (Opinion, error) {
	if backend.Provider == nil {
		return Opinion{}, &provider.TransportError{Backend: backend.ID, Err: fmt.Errorf("backend has no provider")}
	}
	callCtx := ctx
	if backend.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, backend.Timeout)
		defer cancel()
	}
	logger.LogLLMRequest("analyst", backend.ID, agentID, req.System, req.User)
	res, err := backend.Provider.Generate(callCtx, req)
	if err != nil {
		return Opinion{}, err
	}
	logger.LogLLMResponse("analyst", backend.ID, agentID, res.Text)
	return ParseOpinion(agentID, persona.Methodology, res.Text)
}
