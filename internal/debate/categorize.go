package debate

import (
	"sort"

	"quorum/internal/analyst"
)

// categorize 按观点分营：多空直接归队，hold 逐个补到人少的一侧，
// 两侧相等时补多头。保证两营人数差不超过 1（在 hold 足够时）。
func categorize(opinions []analyst.Opinion) (bulls, bears []analyst.Opinion) {
	var holds []analyst.Opinion
	for _, op := range opinions {
		switch {
		case op.Recommendation.Bullish():
			bulls = append(bulls, op)
		case op.Recommendation.Bearish():
			bears = append(bears, op)
		default:
			holds = append(holds, op)
		}
	}
	for _, op := range holds {
		if len(bears) < len(bulls) {
			bears = append(bears, op)
		} else if len(bulls) < len(bears) {
			bulls = append(bulls, op)
		} else {
			bulls = append(bulls, op)
		}
	}
	sortByConfidence(bulls)
	sortByConfidence(bears)
	return bulls, bears
}

// sortByConfidence 置信度降序，同分按 AgentID 升序保证确定性。
func sortByConfidence(ops []analyst.Opinion) {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Confidence != ops[j].Confidence {
			return ops[i].Confidence > ops[j].Confidence
		}
		return ops[i].AgentID < ops[j].AgentID
	})
}

// pairMatch 为一对观点定方向：天然多头打多方、天然空头打空方；
// 同营相遇时排名靠前者执多方。
func pairMatch(a, b analyst.Opinion) (bull, bear analyst.Opinion) {
	if a.Recommendation.Bearish() && !b.Recommendation.Bearish() {
		return b, a
	}
	if b.Recommendation.Bullish() && !a.Recommendation.Bullish() {
		return b, a
	}
	return a, b
}
