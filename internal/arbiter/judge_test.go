package arbiter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/analyst"
	"quorum/internal/debate"
	"quorum/internal/gateway/provider"
)

type fakeProvider struct {
	outputs []string
	err     error
	calls   int
}

func (f *fakeProvider) ID() string    { return "judge-backend" }
func (f *fakeProvider) Enabled() bool { return true }

func (f *fakeProvider) Generate(_ context.Context, _ provider.GenRequest) (provider.GenResult, error) {
	f.calls++
	if f.err != nil {
		return provider.GenResult{}, f.err
	}
	i := f.calls - 1
	if i >= len(f.outputs) {
		i = len(f.outputs) - 1
	}
	return provider.GenResult{Text: f.outputs[i], FinishReason: "stop"}, nil
}

func testOpinions() map[string]analyst.Opinion {
	return map[string]analyst.Opinion{
		"momentum-max": {
			AgentID:        "momentum-max",
			Methodology:    "momentum trading",
			Recommendation: analyst.Buy,
			Confidence:     78,
			PriceTarget:    analyst.PriceTarget{Bear: 95, Base: 105, Bull: 120},
			PositionSize:   6,
			RiskLevel:      analyst.RiskMedium,
			Summary:        "breakout with volume confirmation",
		},
		"value-vera": {
			AgentID:        "value-vera",
			Methodology:    "value investing",
			Recommendation: analyst.Hold,
			Confidence:     55,
			PriceTarget:    analyst.PriceTarget{Bear: 90, Base: 100, Bull: 110},
			PositionSize:   3,
			RiskLevel:      analyst.RiskLow,
			Summary:        "fairly valued at current levels",
		},
	}
}

func newTestArbiter(p provider.ModelProvider) *Arbiter {
	return New(Config{MaxRetries: 2, Backoff: time.Millisecond}, p)
}

func TestArbitratePicksWinner(t *testing.T) {
	p := &fakeProvider{outputs: []string{
		`{"winner_agent_id": "momentum-max", "final_action": "BUY", "reasoning": "strongest thesis", "adjustments": {"leverage": 3}}`,
	}}
	d := newTestArbiter(p).Arbitrate(context.Background(), testOpinions(), debate.Bracket{})

	assert.Equal(t, "momentum-max", d.WinnerAgentID)
	assert.Equal(t, ActionBuy, d.FinalAction)
	require.NotNil(t, d.FinalRecommendation)
	assert.Equal(t, analyst.Buy, d.FinalRecommendation.Recommendation)
	require.NotNil(t, d.Adjustments)
	require.NotNil(t, d.Adjustments.Leverage)
	assert.Equal(t, 3.0, *d.Adjustments.Leverage)
}

func TestArbitrateDegradesToHoldOnMalformedOutput(t *testing.T) {
	p := &fakeProvider{outputs: []string{"sorry, I cannot produce JSON today"}}
	d := newTestArbiter(p).Arbitrate(context.Background(), testOpinions(), debate.Bracket{})

	assert.Equal(t, WinnerNone, d.WinnerAgentID)
	assert.Equal(t, ActionHold, d.FinalAction)
	require.NotEmpty(t, d.Warnings)
	assert.Contains(t, d.Warnings[0], "degraded to HOLD")
	assert.Equal(t, 3, p.calls) // 首次 + 两次重试
}

func TestArbitrateDegradesToHoldOnTransportFailure(t *testing.T) {
	p := &fakeProvider{err: &provider.TransportError{Backend: "judge-backend", Err: errors.New("timeout")}}
	d := newTestArbiter(p).Arbitrate(context.Background(), testOpinions(), debate.Bracket{})

	assert.Equal(t, WinnerNone, d.WinnerAgentID)
	assert.Equal(t, ActionHold, d.FinalAction)
	assert.NotEmpty(t, d.Warnings)
}

func TestArbitrateRetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{outputs: []string{
		"garbage",
		`{"winner_agent_id": "value-vera", "final_action": "HOLD", "reasoning": "no edge"}`,
	}}
	d := newTestArbiter(p).Arbitrate(context.Background(), testOpinions(), debate.Bracket{})

	assert.Equal(t, "value-vera", d.WinnerAgentID)
	assert.Equal(t, ActionHold, d.FinalAction)
	assert.Equal(t, 2, p.calls)
}

func TestArbitrateForcesHoldWithoutWinner(t *testing.T) {
	p := &fakeProvider{outputs: []string{
		`{"winner_agent_id": "NONE", "final_action": "BUY", "reasoning": "gut feeling"}`,
	}}
	d := newTestArbiter(p).Arbitrate(context.Background(), testOpinions(), debate.Bracket{})

	assert.Equal(t, WinnerNone, d.WinnerAgentID)
	assert.Equal(t, ActionHold, d.FinalAction)
	assert.Nil(t, d.FinalRecommendation)
	assert.Nil(t, d.Adjustments)
	assert.Contains(t, d.Warnings, "no winner selected, forcing HOLD")
}

func TestArbitrateRejectsUnknownWinner(t *testing.T) {
	p := &fakeProvider{outputs: []string{
		`{"winner_agent_id": "ghost-agent", "final_action": "SELL", "reasoning": "whoever that is"}`,
	}}
	d := newTestArbiter(p).Arbitrate(context.Background(), testOpinions(), debate.Bracket{})

	assert.Equal(t, WinnerNone, d.WinnerAgentID)
	assert.Equal(t, ActionHold, d.FinalAction)
	assert.NotEmpty(t, d.Warnings)
}

func TestArbitrateEmergencyWithoutRecommendationForcedHold(t *testing.T) {
	p := &fakeProvider{outputs: []string{
		`{"winner_agent_id": "NONE", "final_action": "CLOSE", "reasoning": "panic"}`,
	}}
	d := newTestArbiter(p).Arbitrate(context.Background(), testOpinions(), debate.Bracket{})

	assert.Equal(t, ActionHold, d.FinalAction)
	assert.NotEmpty(t, d.Warnings)
}

func TestArbitrateEmptyOpinions(t *testing.T) {
	p := &fakeProvider{outputs: []string{`{}`}}
	d := newTestArbiter(p).Arbitrate(context.Background(), nil, debate.Bracket{})

	assert.Equal(t, WinnerNone, d.WinnerAgentID)
	assert.Equal(t, ActionHold, d.FinalAction)
	assert.Zero(t, p.calls)
}

func TestDecisionWarningsCappedEvictsOldest(t *testing.T) {
	var d Decision
	for i := 0; i < maxWarnings+5; i++ {
		d.addWarning(fmt.Sprintf("warning %d", i))
	}
	assert.Len(t, d.Warnings, maxWarnings)
	assert.Equal(t, "warning 5", d.Warnings[0]) // 最旧的 5 条被逐出
	assert.Equal(t, fmt.Sprintf("warning %d", maxWarnings+4), d.Warnings[maxWarnings-1])
}
