package debate

import (
	"context"
	"fmt"
	"strings"

	"quorum/internal/gateway/provider"
	"quorum/internal/logger"
	"quorum/internal/modelpool"
)

// ModelTurnGenerator 用发言人在本周期分到的推理后端生成辩论发言。
// 后端解析失败时退回目录里的任意可用后端。
type ModelTurnGenerator struct {
	pool      *modelpool.Pool
	maxTokens int
}

func NewModelTurnGenerator(pool *modelpool.Pool, maxTokens int) *ModelTurnGenerator {
	if maxTokens <= 0 {
		maxTokens = 600
	}
	return &ModelTurnGenerator{pool: pool, maxTokens: maxTokens}
}

func (g *ModelTurnGenerator) GenerateTurn(ctx context.Context, req TurnRequest) (string, error) {
	backend, ok := g.pool.LastAssignment().For(req.Speaker.AgentID)
	if !ok {
		return "", fmt.Errorf("no backend assigned to agent %s", req.Speaker.AgentID)
	}

	system := debateSystemPrompt(req)
	user := debateUserPrompt(req)
	logger.LogLLMRequest("debate", backend.ID, string(req.Round), system, user)

	gctx := ctx
	if backend.Timeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, backend.Timeout)
		defer cancel()
	}
	res, err := backend.Provider.Generate(gctx, provider.GenRequest{
		System:    system,
		User:      user,
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", err
	}
	logger.LogLLMResponse("debate", backend.ID, string(req.Round), res.Text)
	return strings.TrimSpace(res.Text), nil
}

func debateSystemPrompt(req TurnRequest) string {
	stance := "bullish"
	if req.Side == SideBear {
		stance = "bearish"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("You are %s, a %s analyst arguing the %s side of a structured debate.\n",
		req.Speaker.AgentID, req.Speaker.Methodology, stance))
	b.WriteString("Make one concise argument grounded in concrete numbers from your analysis. ")
	b.WriteString("Address your opponent's last point if there is one. Plain text, no JSON, under 150 words.\n")
	return b.String()
}

func debateUserPrompt(req TurnRequest) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Debate round: %s, turn %d\n", req.Round, req.TurnIndex+1))
	b.WriteString(fmt.Sprintf("Your recommendation: %s (confidence %.0f)\n", req.Speaker.Recommendation, req.Speaker.Confidence))
	b.WriteString(fmt.Sprintf("Your summary: %s\n", req.Speaker.Summary))
	b.WriteString(fmt.Sprintf("Opponent (%s) recommends %s: %s\n",
		req.Opponent.AgentID, req.Opponent.Recommendation, req.Opponent.Summary))
	if len(req.PriorTurns) > 0 {
		b.WriteString("Transcript so far:\n")
		for _, t := range req.PriorTurns {
			b.WriteString(fmt.Sprintf("[%s/%s] %s\n", t.Side, t.SpeakerAgentID, t.Text))
		}
	}
	b.WriteString("Respond with your next argument.\n")
	return b.String()
}
