package analyst

import (
	"fmt"
	"sort"
	"strings"
)

// Recommendation 的五档取值，统一小写。
type Recommendation string

const (
	StrongBuy  Recommendation = "strong_buy"
	Buy        Recommendation = "buy"
	Hold       Recommendation = "hold"
	Sell       Recommendation = "sell"
	StrongSell Recommendation = "strong_sell"
)

func (r Recommendation) Bullish() bool { return r == StrongBuy || r == Buy }
func (r Recommendation) Bearish() bool { return r == StrongSell || r == Sell }

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// PriceTarget 三档目标价，归一化后恒有 Bear <= Base <= Bull。
type PriceTarget struct {
	Bull float64 `json:"bull"`
	Base float64 `json:"base"`
	Bear float64 `json:"bear"`
}

const (
	maxCaseItems     = 5
	maxCatalystItems = 3
)

// Opinion 是一个分析师对当前上下文的结构化观点。创建后不可变，
// 由编排器在单个决策周期内持有。
type Opinion struct {
	AgentID        string         `json:"agent_id"`
	Methodology    string         `json:"methodology"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
	PriceTarget    PriceTarget    `json:"price_target"`
	PositionSize   int            `json:"position_size"`
	BullCase       []string       `json:"bull_case,omitempty"`
	BearCase       []string       `json:"bear_case,omitempty"`
	Catalysts      []string       `json:"catalysts,omitempty"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Summary        string         `json:"summary"`
}

// NormalizeRecommendation 大小写不敏感地映射到规范小写枚举；wait 视为 hold。
func NormalizeRecommendation(s string) (Recommendation, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, " ", "_")
	v = strings.ReplaceAll(v, "-", "_")
	if v == "wait" || v == "neutral" {
		v = "hold"
	}
	switch Recommendation(v) {
	case StrongBuy, Buy, Hold, Sell, StrongSell:
		return Recommendation(v), nil
	}
	return "", fmt.Errorf("unknown recommendation %q", s)
}

func normalizeRiskLevel(s string) (RiskLevel, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, " ", "_")
	v = strings.ReplaceAll(v, "-", "_")
	switch RiskLevel(v) {
	case RiskLow, RiskMedium, RiskHigh, RiskVeryHigh:
		return RiskLevel(v), nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sortTargets 修复乱序目标价：排序后低者为 bear、中为 base、高为 bull。
func sortTargets(t PriceTarget) PriceTarget {
	v := []float64{t.Bull, t.Base, t.Bear}
	sort.Float64s(v)
	return PriceTarget{Bear: v[0], Base: v[1], Bull: v[2]}
}

func truncateList(items []string, max int) []string {
	out := make([]string, 0, max)
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}
