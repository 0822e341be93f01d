package debate

import (
	"context"

	"quorum/internal/analyst"
)

type Side string

const (
	SideBull Side = "bull"
	SideBear Side = "bear"
)

func (s Side) Opposite() Side {
	if s == SideBull {
		return SideBear
	}
	return SideBull
}

type Round string

const (
	RoundQuarterfinal Round = "quarterfinal"
	RoundSemifinal    Round = "semifinal"
	RoundFinal        Round = "final"
)

// State 描述对阵表推进状态。
type State string

const (
	StateEmpty         State = "EMPTY"
	StateQuarterfinals State = "QUARTERFINALS"
	StateSemifinals    State = "SEMIFINALS"
	StateFinal         State = "FINAL"
	StateResolved      State = "RESOLVED"
)

// Turn 是一场辩论中的一次发言，序列内严格交替、只追加。
type Turn struct {
	SpeakerAgentID string   `json:"speaker_agent_id"`
	Side           Side     `json:"side"`
	Text           string   `json:"text"`
	DataPoints     []string `json:"data_points"` // 引用到的数据类别
	Strength       float64  `json:"strength"`    // [0,100]
}

// ScoreBreakdown 单方的得分构成。
type ScoreBreakdown struct {
	AvgStrength float64 `json:"avg_strength"`
	DataQuality float64 `json:"data_quality"`
	Confidence  float64 `json:"confidence"`
	RiskAck     float64 `json:"risk_ack"`
	Catalyst    float64 `json:"catalyst"`
	Total       float64 `json:"total"`
}

// Match 计分后不可变；胜者必属 {bull, bear}，不允许平局收场。
type Match struct {
	MatchID   string          `json:"match_id"`
	Round     Round           `json:"round"`
	Bull      analyst.Opinion `json:"bull"`
	Bear      analyst.Opinion `json:"bear"`
	Turns     []Turn          `json:"turns"`
	BullScore ScoreBreakdown  `json:"bull_score"`
	BearScore ScoreBreakdown  `json:"bear_score"`
	Winner    Side            `json:"winner"`
}

func (m Match) WinnerOpinion() analyst.Opinion {
	if m.Winner == SideBear {
		return m.Bear
	}
	return m.Bull
}

func (m Match) maxScore() float64 {
	if m.BullScore.Total > m.BearScore.Total {
		return m.BullScore.Total
	}
	return m.BearScore.Total
}

// Bracket 逐轮增量构建；Champion 只在终局敲定后写入一次。
type Bracket struct {
	State            State            `json:"state"`
	Quarterfinals    []Match          `json:"quarterfinals"`
	Semifinals       []Match          `json:"semifinals"`
	Final            *Match           `json:"final"`
	Champion         *analyst.Opinion `json:"champion"`
	WinningArguments []string         `json:"winning_arguments,omitempty"`
}

// TurnRequest 携带生成一次发言所需的上下文：发言人、对手与此前的交锋。
type TurnRequest struct {
	Speaker    analyst.Opinion
	Opponent   analyst.Opinion
	Side       Side
	Round      Round
	TurnIndex  int
	PriorTurns []Turn
}

// TurnGenerator 生成一次辩论发言。生产实现走推理后端，测试用脚本替身。
type TurnGenerator interface {
	GenerateTurn(ctx context.Context, req TurnRequest) (string, error)
}
