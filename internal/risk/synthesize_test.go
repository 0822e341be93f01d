package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/analyst"
	"quorum/internal/arbiter"
	"quorum/internal/config"
	"quorum/internal/gateway/exchange"
	"quorum/internal/gateway/market"
)

type fakeExchange struct {
	minSize float64
}

func (f *fakeExchange) RoundToTickSize(_ context.Context, price float64, _ string) (string, error) {
	return fmt.Sprintf("%.2f", price), nil
}

func (f *fakeExchange) RoundToStepSize(_ context.Context, size float64, _ string) (string, error) {
	return fmt.Sprintf("%.4f", size), nil
}

func (f *fakeExchange) MinOrderSize(_ context.Context, _ string) (float64, error) {
	return f.minSize, nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, o exchange.Order) (exchange.Receipt, error) {
	return exchange.Receipt{OrderID: 1, ClientOrderID: o.ClientOrderID, Status: "NEW"}, nil
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionPct:   20,
		MinPositionPct:   2,
		MaxLeverage:      10,
		FallbackTPPct:    5,
		FallbackSLPct:    3,
		MaxTPDistancePct: 20,
		MaxSLDistancePct: 15,
		DefaultMaxSLPct:  5,
		MethodologySLPct: map[string]float64{"momentum trading": 2},
	}
}

func testRec(methodology string) analyst.Opinion {
	return analyst.Opinion{
		AgentID:        "momentum-max",
		Methodology:    methodology,
		Recommendation: analyst.Buy,
		Confidence:     60,
		PriceTarget:    analyst.PriceTarget{Bear: 96, Base: 104, Bull: 112},
		PositionSize:   5,
		RiskLevel:      analyst.RiskMedium,
		Summary:        "thesis",
	}
}

func buyDecision(rec analyst.Opinion) arbiter.Decision {
	return arbiter.Decision{
		WinnerAgentID:       rec.AgentID,
		FinalAction:         arbiter.ActionBuy,
		FinalRecommendation: &rec,
	}
}

func testContext(balance float64) market.TradingContext {
	return market.TradingContext{
		Symbol:   "BTCUSDT",
		Balance:  balance,
		Snapshot: market.Snapshot{Symbol: "BTCUSDT", Price: 100},
	}
}

func newSynth() *Synthesizer {
	return New(testRiskConfig(), &fakeExchange{minSize: 0.001})
}

func TestSynthesizeLongOrder(t *testing.T) {
	res, err := newSynth().Synthesize(context.Background(), buyDecision(testRec("value investing")), testContext(1000), Caps{})
	require.NoError(t, err)
	require.NotNil(t, res.Order)

	o := res.Order
	assert.Equal(t, "BUY", o.Side)
	assert.Equal(t, 100.0, o.Price)
	assert.Equal(t, 104.0, o.TakeProfit) // long: TP = base
	assert.Equal(t, 96.0, o.StopLoss)    // long: SL = bear
	assert.Equal(t, 4.0, o.Leverage)     // medium 档
	assert.InDelta(t, 1.0, o.Size, 1e-9) // 1000 * 10% / 100
	assert.NotEmpty(t, o.ClientOrderID)
}

func TestLeverageNeverExceedsExternalCap(t *testing.T) {
	rec := testRec("value investing")
	rec.RiskLevel = analyst.RiskLow // 档位本身给 5x
	d := buyDecision(rec)
	big := 50.0
	d.Adjustments = &arbiter.Adjustments{Leverage: &big} // 裁决还想加到 50x

	res, err := newSynth().Synthesize(context.Background(), d, testContext(1000), Caps{MaxLeverage: 2})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.LessOrEqual(t, res.Order.Leverage, 2.0)
}

func TestZeroBalanceBuyIsRiskError(t *testing.T) {
	_, err := newSynth().Synthesize(context.Background(), buyDecision(testRec("value investing")), testContext(0), Caps{})
	require.Error(t, err)
	var re *RiskError
	assert.True(t, errors.As(err, &re))
}

func TestUnusablePriceIsRiskError(t *testing.T) {
	tctx := testContext(1000)
	tctx.Snapshot.Price = 0
	_, err := newSynth().Synthesize(context.Background(), buyDecision(testRec("value investing")), tctx, Caps{})
	var re *RiskError
	assert.True(t, errors.As(err, &re))
}

func TestNonPositiveLeverageIsRiskError(t *testing.T) {
	d := buyDecision(testRec("value investing"))
	zero := 0.0
	d.Adjustments = &arbiter.Adjustments{Leverage: &zero}
	_, err := newSynth().Synthesize(context.Background(), d, testContext(1000), Caps{})
	var re *RiskError
	assert.True(t, errors.As(err, &re))
}

func TestHoldEmitsNoOrder(t *testing.T) {
	d := arbiter.Decision{WinnerAgentID: arbiter.WinnerNone, FinalAction: arbiter.ActionHold}
	res, err := newSynth().Synthesize(context.Background(), d, testContext(1000), Caps{})
	require.NoError(t, err)
	assert.Nil(t, res.Order)
}

func TestCloseOnlySuppressesNewPosition(t *testing.T) {
	res, err := newSynth().Synthesize(context.Background(), buyDecision(testRec("value investing")), testContext(1000), Caps{CloseOnly: true})
	require.NoError(t, err)
	assert.Nil(t, res.Order)
	assert.NotEmpty(t, res.Warnings)
}

func TestWrongSideTakeProfitFallsBack(t *testing.T) {
	rec := testRec("value investing")
	rec.PriceTarget = analyst.PriceTarget{Bear: 90, Base: 95, Bull: 98} // base 在价格下方
	res, err := newSynth().Synthesize(context.Background(), buyDecision(rec), testContext(1000), Caps{})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, 105.0, res.Order.TakeProfit) // 5% fallback
}

func TestMethodologyStopLossCapWins(t *testing.T) {
	rec := testRec("momentum trading") // 配了 2% 的更紧上限
	rec.PriceTarget = analyst.PriceTarget{Bear: 90, Base: 104, Bull: 112}
	res, err := newSynth().Synthesize(context.Background(), buyDecision(rec), testContext(1000), Caps{})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, 98.0, res.Order.StopLoss) // 10% 的 bear 目标被拉回 2%
}

func TestMissingMethodologyCapWarnsAndUsesDefault(t *testing.T) {
	rec := testRec("astrology")
	rec.PriceTarget = analyst.PriceTarget{Bear: 80, Base: 104, Bull: 112}
	res, err := newSynth().Synthesize(context.Background(), buyDecision(rec), testContext(1000), Caps{})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, 95.0, res.Order.StopLoss) // 全局默认 5%
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "no stop-loss cap") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSizeRaisedToExchangeMinimum(t *testing.T) {
	s := New(testRiskConfig(), &fakeExchange{minSize: 0.5})
	res, err := s.Synthesize(context.Background(), buyDecision(testRec("value investing")), testContext(100), Caps{})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.GreaterOrEqual(t, res.Order.Size, 0.5)
}

func TestCloseFlattensOpenPosition(t *testing.T) {
	tctx := testContext(1000)
	tctx.Positions = []market.PositionSnapshot{{Symbol: "BTCUSDT", Side: "long", Quantity: 2, Leverage: 3}}
	d := arbiter.Decision{WinnerAgentID: arbiter.WinnerNone, FinalAction: arbiter.ActionClose}

	res, err := newSynth().Synthesize(context.Background(), d, tctx, Caps{})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, "SELL", res.Order.Side)
	assert.InDelta(t, 2.0, res.Order.Size, 1e-9)
}

// 行情侧把空头记成 side=short + 正数量，平空必须反向买回。
func TestCloseBuysBackShortPosition(t *testing.T) {
	tctx := testContext(1000)
	tctx.Positions = []market.PositionSnapshot{{Symbol: "BTCUSDT", Side: "short", Quantity: 4, Leverage: 2}}
	d := arbiter.Decision{WinnerAgentID: arbiter.WinnerNone, FinalAction: arbiter.ActionClose}

	res, err := newSynth().Synthesize(context.Background(), d, tctx, Caps{})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, "BUY", res.Order.Side)
	assert.InDelta(t, 4.0, res.Order.Size, 1e-9)
}

func TestReduceHalvesPosition(t *testing.T) {
	tctx := testContext(1000)
	tctx.Positions = []market.PositionSnapshot{{Symbol: "BTCUSDT", Side: "SHORT", Quantity: -4, Leverage: 2}}
	d := arbiter.Decision{WinnerAgentID: arbiter.WinnerNone, FinalAction: arbiter.ActionReduce}

	res, err := newSynth().Synthesize(context.Background(), d, tctx, Caps{})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, "BUY", res.Order.Side)
	assert.InDelta(t, 2.0, res.Order.Size, 1e-9)
}

func TestCloseWithoutPositionEmitsNoOrder(t *testing.T) {
	d := arbiter.Decision{WinnerAgentID: arbiter.WinnerNone, FinalAction: arbiter.ActionClose}
	res, err := newSynth().Synthesize(context.Background(), d, testContext(1000), Caps{})
	require.NoError(t, err)
	assert.Nil(t, res.Order)
	assert.NotEmpty(t, res.Warnings)
}
