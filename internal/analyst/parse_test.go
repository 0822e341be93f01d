package analyst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodResponse = `Here is my take:
{
  "recommendation": "Strong Buy",
  "confidence": 140,
  "price_target": {"bull": 80, "base": 120, "bear": 100},
  "position_size": 14,
  "bull_case": ["a", "b", "c", "d", "e", "f", "g"],
  "bear_case": ["x"],
  "catalysts": ["c1", "c2", "c3", "c4"],
  "risk_level": "VERY-HIGH",
  "summary": "Looks strong."
}`

func TestParseOpinionNormalizes(t *testing.T) {
	op, err := ParseOpinion("momentum-max", "momentum", goodResponse)
	require.NoError(t, err)

	assert.Equal(t, StrongBuy, op.Recommendation)
	assert.Equal(t, 100.0, op.Confidence, "confidence clamped to 100")
	assert.Equal(t, 10, op.PositionSize, "position size clamped to 10")
	assert.Equal(t, RiskVeryHigh, op.RiskLevel)

	// price targets repaired into bear <= base <= bull
	assert.Equal(t, 80.0, op.PriceTarget.Bear)
	assert.Equal(t, 100.0, op.PriceTarget.Base)
	assert.Equal(t, 120.0, op.PriceTarget.Bull)

	assert.Len(t, op.BullCase, 5)
	assert.Len(t, op.Catalysts, 3)
	assert.Equal(t, "momentum", op.Methodology)
}

func TestParseOpinionTargetOrderingInvariant(t *testing.T) {
	cases := []string{
		`{"recommendation":"buy","confidence":50,"price_target":{"bull":1,"base":2,"bear":3},"position_size":5,"risk_level":"low","summary":"s"}`,
		`{"recommendation":"buy","confidence":50,"price_target":{"bull":2,"base":1,"bear":3},"position_size":5,"risk_level":"low","summary":"s"}`,
		`{"recommendation":"buy","confidence":50,"price_target":{"bull":3,"base":2,"bear":1},"position_size":5,"risk_level":"low","summary":"s"}`,
	}
	for _, raw := range cases {
		op, err := ParseOpinion("a", "m", raw)
		require.NoError(t, err)
		assert.LessOrEqual(t, op.PriceTarget.Bear, op.PriceTarget.Base)
		assert.LessOrEqual(t, op.PriceTarget.Base, op.PriceTarget.Bull)
	}
}

func TestParseOpinionRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"no json":          "nothing here",
		"malformed":        `{"recommendation": "buy",`,
		"missing required": `{"recommendation":"buy","summary":"s"}`,
		"bad enum":         `{"recommendation":"yolo","confidence":50,"price_target":{"bull":3,"base":2,"bear":1},"position_size":5,"risk_level":"low","summary":"s"}`,
		"bad risk":         `{"recommendation":"buy","confidence":50,"price_target":{"bull":3,"base":2,"bear":1},"position_size":5,"risk_level":"extreme","summary":"s"}`,
		"zero target":      `{"recommendation":"buy","confidence":50,"price_target":{"bull":3,"base":0,"bear":1},"position_size":5,"risk_level":"low","summary":"s"}`,
		"empty summary":    `{"recommendation":"buy","confidence":50,"price_target":{"bull":3,"base":2,"bear":1},"position_size":5,"risk_level":"low","summary":"  "}`,
	} {
		_, err := ParseOpinion("a", "m", raw)
		assert.Error(t, err, name)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, name)
	}
}

func TestNormalizeRecommendation(t *testing.T) {
	for in, want := range map[string]Recommendation{
		"BUY":         Buy,
		" Strong Buy": StrongBuy,
		"strong-sell": StrongSell,
		"wait":        Hold,
		"neutral":     Hold,
	} {
		got, err := NormalizeRecommendation(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := NormalizeRecommendation("moon")
	assert.Error(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	payload, ok := ExtractJSONObject(`prefix {"a": {"b": "}"}} suffix`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": "}"}}`, payload)

	_, ok = ExtractJSONObject("no braces")
	assert.False(t, ok)
}
