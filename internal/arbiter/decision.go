package arbiter

import (
	"quorum/internal/analyst"
)

// Action 是裁决后的最终动作。
type Action string

const (
	ActionBuy    Action = "BUY"
	ActionSell   Action = "SELL"
	ActionHold   Action = "HOLD"
	ActionClose  Action = "CLOSE"
	ActionReduce Action = "REDUCE"
)

// WinnerNone 表示裁决未选出任何获胜观点。
const WinnerNone = "NONE"

const maxWarnings = 20

// Adjustments 裁决对冠军数值参数的覆盖，字段为空表示不动。
type Adjustments struct {
	Leverage   *float64 `json:"leverage,omitempty"`
	Allocation *float64 `json:"allocation,omitempty"`
	StopLoss   *float64 `json:"sl,omitempty"`
	TakeProfit *float64 `json:"tp,omitempty"`
}

// Decision 每周期产出一次，由风险归一化器消费一次。
type Decision struct {
	WinnerAgentID       string           `json:"winner_agent_id"`
	FinalAction         Action           `json:"final_action"`
	Adjustments         *Adjustments     `json:"adjustments,omitempty"`
	Warnings            []string         `json:"warnings,omitempty"`
	FinalRecommendation *analyst.Opinion `json:"final_recommendation,omitempty"`
}

// addWarning 封顶后逐出最旧一条，最新的警告永远保得住。
func (d *Decision) addWarning(w string) {
	if len(d.Warnings) >= maxWarnings {
		copy(d.Warnings, d.Warnings[1:])
		d.Warnings[len(d.Warnings)-1] = w
		return
	}
	d.Warnings = append(d.Warnings, w)
}

// Emergency CLOSE/REDUCE 属于应急动作，可以在无胜者时保留。
func (a Action) Emergency() bool { return a == ActionClose || a == ActionReduce }

func parseAction(s string) (Action, bool) {
	switch Action(normalizeToken(s)) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	case ActionHold:
		return ActionHold, true
	case ActionClose:
		return ActionClose, true
	case ActionReduce:
		return ActionReduce, true
	}
	return "", false
}

// normalize 收敛裁决输出：无胜者且非应急动作时强制 HOLD 并丢弃
// 随行的推荐载荷；有胜者但缺动作时按空仓对待同样回 HOLD。
func (d *Decision) normalize(opinions map[string]analyst.Opinion) {
	if d.WinnerAgentID == "" {
		d.WinnerAgentID = WinnerNone
	}
	if d.WinnerAgentID != WinnerNone {
		op, ok := opinions[d.WinnerAgentID]
		if !ok {
			d.addWarning("judge selected unknown winner " + d.WinnerAgentID + ", treating as no winner")
			d.WinnerAgentID = WinnerNone
		} else {
			d.FinalRecommendation = &op
		}
	}
	if d.WinnerAgentID == WinnerNone && !d.FinalAction.Emergency() {
		if d.FinalAction != ActionHold {
			d.addWarning("no winner selected, forcing HOLD")
		}
		d.FinalAction = ActionHold
		d.FinalRecommendation = nil
		d.Adjustments = nil
	}
	if d.WinnerAgentID == WinnerNone && d.FinalAction.Emergency() && d.FinalRecommendation == nil {
		// 无具体推荐支撑的应急动作不可信
		d.addWarning("emergency action without a concrete recommendation, forcing HOLD")
		d.FinalAction = ActionHold
		d.Adjustments = nil
	}
}
