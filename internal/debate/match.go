package debate

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"quorum/internal/analyst"
	"quorum/internal/logger"
)

// runMatch 按多方先手、严格交替的次序推进一场辩论并计分。
// 发言生成失败不终止比赛，该次发言按空文本零分处理。
func (e *Engine) runMatch(ctx context.Context, round Round, bull, bear analyst.Opinion) Match {
	m := Match{
		MatchID: uuid.NewString(),
		Round:   round,
		Bull:    bull,
		Bear:    bear,
	}

	total := e.cfg.TurnsPerSide * 2
	for i := 0; i < total; i++ {
		side := SideBull
		speaker, opponent := bull, bear
		if i%2 == 1 {
			side = SideBear
			speaker, opponent = bear, bull
		}
		text, err := e.gen.GenerateTurn(ctx, TurnRequest{
			Speaker:    speaker,
			Opponent:   opponent,
			Side:       side,
			Round:      round,
			TurnIndex:  i,
			PriorTurns: m.Turns,
		})
		if err != nil {
			logger.Warnf("辩论发言生成失败 match=%s turn=%d agent=%s: %v", m.MatchID, i, speaker.AgentID, err)
			text = ""
		}
		strength, points := scoreTurn(text, speaker.Methodology)
		m.Turns = append(m.Turns, Turn{
			SpeakerAgentID: speaker.AgentID,
			Side:           side,
			Text:           text,
			DataPoints:     points,
			Strength:       strength,
		})
	}

	m.BullScore = scoreSide(bull, sideTurns(m.Turns, SideBull))
	m.BearScore = scoreSide(bear, sideTurns(m.Turns, SideBear))
	m.Winner = decideWinner(m.BullScore, m.BearScore)

	logger.Infof("辩论结束 round=%s %s(bull %.1f) vs %s(bear %.1f) winner=%s",
		round, bull.AgentID, m.BullScore.Total, bear.AgentID, m.BearScore.Total, m.Winner)
	return m
}

func sideTurns(turns []Turn, side Side) []Turn {
	out := make([]Turn, 0, len(turns)/2+1)
	for _, t := range turns {
		if t.Side == side {
			out = append(out, t)
		}
	}
	return out
}

// Label 用于日志与审计落库。
func (m Match) Label() string {
	return fmt.Sprintf("%s:%s-vs-%s", m.Round, m.Bull.AgentID, m.Bear.AgentID)
}
