package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/analyst"
	"quorum/internal/arbiter"
	"quorum/internal/config"
	"quorum/internal/debate"
	"quorum/internal/gateway/exchange"
	"quorum/internal/gateway/market"
	"quorum/internal/gateway/provider"
	"quorum/internal/modelpool"
	"quorum/internal/pkg/circuit"
	"quorum/internal/risk"
	"quorum/internal/store"
)

// pipelineProvider 按请求形态分流：分析师出结构化观点，辩论出自由
// 文本，裁决出决策 JSON。观点方向由 system 提示词里的人设名决定。
type pipelineProvider struct {
	id string
}

func (p *pipelineProvider) ID() string    { return p.id }
func (p *pipelineProvider) Enabled() bool { return true }

func (p *pipelineProvider) Generate(_ context.Context, req provider.GenRequest) (provider.GenResult, error) {
	switch {
	case len(req.Schema) == 0:
		return provider.GenResult{
			Text:         "Volume rose 35% above the 20-day average, therefore the breakout toward $115 holds. Downside risk is capped by the invalidation level.",
			FinishReason: "stop",
		}, nil
	case strings.Contains(string(req.Schema), "winner_agent_id"):
		return provider.GenResult{
			Text:         `{"winner_agent_id": "momentum-max", "final_action": "BUY", "reasoning": "bull case survived the bracket"}`,
			FinishReason: "stop",
		}, nil
	default:
		rec := "hold"
		if strings.Contains(req.System, "Max") {
			rec = "buy"
		} else if strings.Contains(req.System, "Carl") {
			rec = "sell"
		}
		return provider.GenResult{
			Text: fmt.Sprintf(`{"recommendation": %q, "confidence": 70, "price_target": {"bull": 115, "base": 106, "bear": 97},
				"position_size": 5, "risk_level": "medium", "summary": "structured thesis"}`, rec),
			FinishReason: "stop",
		}, nil
	}
}

type fakeSource struct {
	tctx market.TradingContext
}

func (f *fakeSource) BuildContext(_ context.Context, _ string) (market.TradingContext, error) {
	return f.tctx, nil
}

type fakeExchange struct {
	placed []exchange.Order
}

func (f *fakeExchange) RoundToTickSize(_ context.Context, price float64, _ string) (string, error) {
	return fmt.Sprintf("%.2f", price), nil
}

func (f *fakeExchange) RoundToStepSize(_ context.Context, size float64, _ string) (string, error) {
	return fmt.Sprintf("%.4f", size), nil
}

func (f *fakeExchange) MinOrderSize(_ context.Context, _ string) (float64, error) {
	return 0.001, nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, o exchange.Order) (exchange.Receipt, error) {
	f.placed = append(f.placed, o)
	return exchange.Receipt{OrderID: int64(len(f.placed)), ClientOrderID: o.ClientOrderID, Status: "NEW"}, nil
}

type memStore struct {
	cycles []store.CycleRecord
	stages []store.StageLog
	orders []store.OrderRecord
}

func (m *memStore) SaveCycle(_ context.Context, rec store.CycleRecord) error {
	m.cycles = append(m.cycles, rec)
	return nil
}

func (m *memStore) LogStage(_ context.Context, l store.StageLog) error {
	m.stages = append(m.stages, l)
	return nil
}

func (m *memStore) SaveOrder(_ context.Context, rec store.OrderRecord) error {
	m.orders = append(m.orders, rec)
	return nil
}

func (m *memStore) Close() error { return nil }

func writePersonas(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	content := `analysts:
  momentum-max:
    name: "Momentum Max"
    methodology: "momentum trading"
  value-vera:
    name: "Value Vera"
    methodology: "value investing"
  contrarian-carl:
    name: "Contrarian Carl"
    methodology: "contrarian sentiment"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestEngine(t *testing.T, breaker *circuit.Breaker, ex *fakeExchange, audit store.Store) *Engine {
	t.Helper()
	p := &pipelineProvider{id: "b0"}
	pool, err := modelpool.New(modelpool.Config{FailureThreshold: 3}, []modelpool.Backend{
		{ID: "b0", Priority: 0, Timeout: time.Second, Provider: p},
		{ID: "b1", Priority: 1, Timeout: time.Second, Provider: &pipelineProvider{id: "b1"}},
	})
	require.NoError(t, err)

	registry, err := analyst.NewRegistry(writePersonas(t))
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	runner := analyst.NewRunner(pool, registry, analyst.RunnerConfig{MaxRetries: 1, Backoff: time.Millisecond})
	orch := analyst.NewOrchestrator(runner, pool, analyst.OrchestratorConfig{BatchSize: 4, BatchDelay: time.Millisecond})
	debater := debate.NewEngine(debate.Config{TurnsPerSide: 1}, debate.NewModelTurnGenerator(pool, 0))
	judge := arbiter.New(arbiter.Config{MaxRetries: 1, Backoff: time.Millisecond}, p)
	synth := risk.New(riskConfig(), ex)

	source := &fakeSource{tctx: market.TradingContext{
		Symbol:   "BTCUSDT",
		Balance:  1000,
		Snapshot: market.Snapshot{Symbol: "BTCUSDT", Price: 100},
	}}

	return New(Config{Symbol: "BTCUSDT", DebateEnabled: true}, Deps{
		Source:   source,
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
}

func riskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionPct:   20,
		MinPositionPct:   2,
		MaxLeverage:      10,
		FallbackTPPct:    5,
		FallbackSLPct:    3,
		MaxTPDistancePct: 20,
		MaxSLDistancePct: 15,
		DefaultMaxSLPct:  5,
	}
}

func TestRunCycleEndToEnd(t *testing.T) {
	ex := &fakeExchange{}
	audit := &memStore{}
	breaker := circuit.NewBreaker(circuit.BreakerConfig{Name: "test"})
	eng := newTestEngine(t, breaker, ex, audit)

	cr, err := eng.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, cr.Opinions, 3)
	assert.Empty(t, cr.AgentErrors)
	assert.Equal(t, debate.StateResolved, cr.Bracket.State)
	assert.Equal(t, "momentum-max", cr.Decision.WinnerAgentID)
	assert.Equal(t, arbiter.ActionBuy, cr.Decision.FinalAction)
	require.NotNil(t, cr.Order)
	assert.Equal(t, "BUY", cr.Order.Side)
	require.NotNil(t, cr.Receipt)
	assert.Equal(t, "NEW", cr.Receipt.Status)

	// 审计落库
	require.Len(t, audit.cycles, 1)
	assert.Equal(t, cr.CycleID, audit.cycles[0].CycleID)
	require.Len(t, audit.orders, 1)
	assert.Equal(t, cr.Order.ClientOrderID, audit.orders[0].ClientOrderID)

	// 逐阶段审计：每位分析师一行 + 辩论 + 裁决
	require.Len(t, audit.stages, 5)
	byStage := map[string]int{}
	for _, l := range audit.stages {
		assert.Equal(t, cr.CycleID, l.CycleID)
		byStage[l.Stage]++
		switch l.Stage {
		case "analysis":
			assert.NotEmpty(t, l.Model) // 池子分配的后端要记账
			assert.Contains(t, l.Output, "recommendation")
		case "debate":
			assert.Contains(t, l.Explanation, "champion")
		case "arbitration":
			assert.Equal(t, "b0", l.Model)
			assert.Contains(t, l.Output, "winner_agent_id")
		}
	}
	assert.Equal(t, map[string]int{"analysis": 3, "debate": 1, "arbitration": 1}, byStage)

	// 最近周期缓存
	last, ok := eng.LatestCycle()
	require.True(t, ok)
	assert.Equal(t, cr.CycleID, last.CycleID)
}

func TestRunCycleRedBreakerSuppressesNewPosition(t *testing.T) {
	ex := &fakeExchange{}
	breaker := circuit.NewBreaker(circuit.BreakerConfig{Name: "test", YellowAt: 1, OrangeAt: 2, RedAt: 3})
	for i := 0; i < 3; i++ {
		breaker.RecordFailure("losing trade")
	}
	eng := newTestEngine(t, breaker, ex, nil)

	cr, err := eng.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Nil(t, cr.Order)
	assert.Empty(t, ex.placed)
	joined := strings.Join(cr.Warnings, "\n")
	assert.Contains(t, joined, "close-only")
}
