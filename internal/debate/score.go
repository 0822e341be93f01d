package debate

import (
	"regexp"
	"strings"

	"quorum/internal/analyst"
)

// 发言强度打分纯粹基于文本内容信号，完全确定性，不再过一次模型。

var (
	percentRe   = regexp.MustCompile(`\d+(\.\d+)?\s*%`)
	currencyRe  = regexp.MustCompile(`[$¥€£]\s?\d|(\d+(\.\d+)?[kKmMbB]?\s*(USD|USDT|usd|usdt))`)
	ratioRe     = regexp.MustCompile(`\d+(\.\d+)?\s*[xX倍]|\d+\s*:\s*\d+|P/E|p/e|RSI|rsi`)
	timeframeRe = regexp.MustCompile(`(?i)\b(q[1-4]|h[12]|\d+\s*(day|week|month|year|hour|d|h)s?|202\d|intraday|daily|weekly)\b`)
	volumeRe    = regexp.MustCompile(`(?i)\b(volume|open interest|funding|inflow|outflow|liquidation)s?\b`)
	compareRe   = regexp.MustCompile(`(?i)\b(versus|vs\.?|compared to|relative to|above|below|higher than|lower than)\b`)

	causalWords   = []string{"because", "therefore", "driven by", "due to", "as a result", "which means", "implies", "leads to", "however", "despite"}
	riskWords     = []string{"risk", "downside", "drawdown", "invalidat", "stop", "worst case", "liquidation", "volatil"}
	catalystWords = []string{"catalyst", "earnings", "upgrade", "listing", "launch", "unlock", "halving", "etf", "announcement", "upcoming", "next week", "next month"}
	hedgingWords  = []string{"might", "could be", "possibly", "perhaps", "hard to say", "uncertain", "maybe", "it depends"}
)

// 方法论关键词：发言贴合自家分析框架时加分。
var methodologyKeywords = map[string][]string{
	"momentum":     {"trend", "breakout", "moving average", "rsi", "macd", "volume", "momentum"},
	"value":        {"valuation", "fundamentals", "undervalued", "overvalued", "intrinsic", "revenue", "adoption"},
	"contrarian":   {"crowded", "sentiment", "extreme", "capitulation", "euphoria", "positioning", "consensus"},
	"technical":    {"support", "resistance", "fibonacci", "pattern", "divergence", "candle"},
	"macro":        {"fed", "rates", "inflation", "liquidity", "dollar", "macro", "cpi"},
	"quantitative": {"backtest", "sharpe", "correlation", "z-score", "std", "distribution"},
}

var dataPointProbes = []struct {
	name string
	re   *regexp.Regexp
}{
	{"percentage", percentRe},
	{"currency", currencyRe},
	{"ratio", ratioRe},
	{"timeframe", timeframeRe},
	{"volume", volumeRe},
	{"comparison", compareRe},
}

// scoreTurn 给一次发言打强度分并记录引用的数据类别。空发言恒为零分。
func scoreTurn(text, methodology string) (float64, []string) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	lower := strings.ToLower(text)
	strength := 30.0
	var points []string

	for _, p := range dataPointProbes {
		if p.re.MatchString(text) {
			points = append(points, p.name)
		}
	}
	// 数据引用是强度主来源
	strength += float64(len(points)) * 9

	if containsAny(lower, causalWords) {
		strength += 8
	}
	if containsAny(lower, riskWords) {
		strength += 8
	}
	if containsAny(lower, catalystWords) {
		strength += 8
	}
	for key, words := range methodologyKeywords {
		if strings.Contains(strings.ToLower(methodology), key) && containsAny(lower, words) {
			strength += 6
			break
		}
	}

	// 过短或纯含糊其辞要扣分
	if len(text) < 80 {
		strength -= 15
	}
	if containsAny(lower, hedgingWords) && !strings.ContainsAny(text, "0123456789") {
		strength -= 10
	}

	if strength < 0 {
		strength = 0
	}
	if strength > 100 {
		strength = 100
	}
	return strength, points
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// scoreSide 聚合一方全部发言与其静态观点字段。
func scoreSide(op analyst.Opinion, turns []Turn) ScoreBreakdown {
	var sum float64
	categories := map[string]bool{}
	riskHits, catalystHits := 0, 0
	for _, t := range turns {
		sum += t.Strength
		for _, c := range t.DataPoints {
			categories[c] = true
		}
		lower := strings.ToLower(t.Text)
		if containsAny(lower, riskWords) {
			riskHits++
		}
		if containsAny(lower, catalystWords) {
			catalystHits++
		}
	}
	b := ScoreBreakdown{Confidence: op.Confidence}
	if len(turns) > 0 {
		b.AvgStrength = sum / float64(len(turns))
		b.DataQuality = float64(len(categories)) / float64(len(dataPointProbes)) * 100
		b.RiskAck = clamp100(float64(riskHits)/float64(len(turns))*60 + float64(len(op.BearCase))*8)
		b.Catalyst = clamp100(float64(catalystHits)/float64(len(turns))*60 + float64(len(op.Catalysts))*13)
	} else {
		b.RiskAck = clamp100(float64(len(op.BearCase)) * 8)
		b.Catalyst = clamp100(float64(len(op.Catalysts)) * 13)
	}
	b.Total = 0.45*b.AvgStrength + 0.2*b.DataQuality + 0.2*b.Confidence + 0.075*b.RiskAck + 0.075*b.Catalyst
	return b
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// decideWinner 选出胜者，绝不产出平局:总分相同时比较
// 置信度+数据质量之和，再相同则判多方胜。
func decideWinner(bull, bear ScoreBreakdown) Side {
	if bull.Total > bear.Total {
		return SideBull
	}
	if bear.Total > bull.Total {
		return SideBear
	}
	if bull.Confidence+bull.DataQuality >= bear.Confidence+bear.DataQuality {
		return SideBull
	}
	return SideBear
}
