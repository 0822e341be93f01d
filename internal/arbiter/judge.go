package arbiter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"quorum/internal/analyst"
	"quorum/internal/debate"
	"quorum/internal/gateway/provider"
	"quorum/internal/logger"
)

// judgeSchema 只拦截结构性缺陷，语义收敛交给 normalize。
const judgeSchema = `{
  "type": "object",
  "required": ["winner_agent_id", "final_action", "reasoning"],
  "properties": {
    "winner_agent_id": {"type": "string"},
    "final_action": {"type": "string"},
    "reasoning": {"type": "string"},
    "adjustments": {
      "type": "object",
      "properties": {
        "leverage": {"type": "number"},
        "allocation": {"type": "number"},
        "sl": {"type": "number"},
        "tp": {"type": "number"}
      }
    },
    "final_recommendation": {"type": "object"}
  }
}`

var compiledJudgeSchema = mustCompile("judge.json", judgeSchema)

func mustCompile(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(err)
	}
	return c.MustCompile(name)
}

type Config struct {
	MaxRetries int
	Backoff    time.Duration
	// Weights 外部供给的 agent 历史表现权重，缺省按 1.0 对待。
	Weights map[string]float64
}

// Arbiter 把全部观点加上锦标赛结果交给固定后端做一次 schema 约束的合成裁决。
// 裁决失败从不向上抛错，退化为保守的 HOLD。
type Arbiter struct {
	cfg      Config
	provider provider.ModelProvider
}

// Backend 返回裁决所用固定后端的 id，供审计落库记账。
func (a *Arbiter) Backend() string { return a.provider.ID() }

func New(cfg Config, p provider.ModelProvider) *Arbiter {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	return &Arbiter{cfg: cfg, provider: p}
}

type rawDecision struct {
	WinnerAgentID       string          `json:"winner_agent_id"`
	FinalAction         string          `json:"final_action"`
	Reasoning           string          `json:"reasoning"`
	Adjustments         *Adjustments    `json:"adjustments"`
	FinalRecommendation json.RawMessage `json:"final_recommendation"`
}

// Arbitrate 请求一次合成裁决并收敛其输出。重试耗尽后返回
// {winner: NONE, action: HOLD} 外加解释性 warning，绝不报错。
func (a *Arbiter) Arbitrate(ctx context.Context, opinions map[string]analyst.Opinion, bracket debate.Bracket) Decision {
	if len(opinions) == 0 {
		return Decision{
			WinnerAgentID: WinnerNone,
			FinalAction:   ActionHold,
			Warnings:      []string{"no opinions to arbitrate"},
		}
	}

	system := a.systemPrompt()
	user := a.userPrompt(opinions, bracket)
	var lastErr error

	for attempt := 1; attempt <= a.cfg.MaxRetries+1; attempt++ {
		logger.LogLLMRequest("judge", a.provider.ID(), "arbitrate", system, user)
		res, err := a.provider.Generate(ctx, provider.GenRequest{
			System:    system,
			User:      user,
			Schema:    json.RawMessage(judgeSchema),
			MaxTokens: 1200,
		})
		if err == nil {
			logger.LogLLMResponse("judge", a.provider.ID(), "arbitrate", res.Text)
			d, perr := a.parse(res.Text, opinions)
			if perr == nil {
				d.normalize(opinions)
				return d
			}
			err = perr
		}
		lastErr = err
		logger.Warnf("裁决第 %d 次尝试失败: %v", attempt, err)
		if attempt <= a.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				attempt = a.cfg.MaxRetries + 1
			case <-time.After(a.cfg.Backoff):
			}
		}
	}

	return Decision{
		WinnerAgentID: WinnerNone,
		FinalAction:   ActionHold,
		Warnings:      []string{fmt.Sprintf("arbitration degraded to HOLD: %v", lastErr)},
	}
}

func (a *Arbiter) parse(raw string, opinions map[string]analyst.Opinion) (Decision, error) {
	payload, ok := analyst.ExtractJSONObject(raw)
	if !ok {
		return Decision{}, fmt.Errorf("no JSON object in judge response")
	}
	if !gjson.Valid(payload) {
		return Decision{}, fmt.Errorf("malformed judge JSON")
	}
	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return Decision{}, err
	}
	if err := compiledJudgeSchema.Validate(doc); err != nil {
		return Decision{}, fmt.Errorf("judge schema: %w", err)
	}

	var r rawDecision
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return Decision{}, err
	}
	action, ok := parseAction(r.FinalAction)
	if !ok {
		return Decision{}, fmt.Errorf("unknown final action %q", r.FinalAction)
	}

	d := Decision{
		WinnerAgentID: normalizeToken(r.WinnerAgentID),
		FinalAction:   action,
		Adjustments:   r.Adjustments,
	}
	if d.WinnerAgentID != WinnerNone {
		// 裁决输出的 agent id 原样保留大小写再查表
		d.WinnerAgentID = strings.TrimSpace(r.WinnerAgentID)
	}

	// 无胜者的应急动作要求裁决自带一份完整推荐
	if d.WinnerAgentID == WinnerNone && action.Emergency() && len(r.FinalRecommendation) > 0 {
		if op, err := analyst.ParseOpinion("judge", "arbitration", string(r.FinalRecommendation)); err == nil {
			d.FinalRecommendation = &op
		} else {
			d.addWarning(fmt.Sprintf("discarding judge recommendation: %v", err))
		}
	}
	return d, nil
}

func normalizeToken(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (a *Arbiter) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are the head of a trading committee. Several analysts have submitted structured opinions ")
	b.WriteString("and debated them in an elimination bracket. Weigh every opinion, prefer analysts with higher ")
	b.WriteString("performance weight, and issue one final decision as a single JSON object with fields: ")
	b.WriteString(`winner_agent_id (an agent id or "NONE"), final_action (BUY/SELL/HOLD/CLOSE/REDUCE), `)
	b.WriteString("reasoning (string), and optional adjustments {leverage, allocation, sl, tp}.\n")
	return b.String()
}

func (a *Arbiter) userPrompt(opinions map[string]analyst.Opinion, bracket debate.Bracket) string {
	ids := make([]string, 0, len(opinions))
	for id := range opinions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("# Analyst opinions\n")
	for _, id := range ids {
		op := opinions[id]
		w := 1.0
		if v, ok := a.cfg.Weights[id]; ok {
			w = v
		}
		b.WriteString(fmt.Sprintf("- %s (weight %.2f, %s): %s, confidence %.0f, size %d/10, risk %s, targets bear=%.4f base=%.4f bull=%.4f\n  %s\n",
			id, w, op.Methodology, op.Recommendation, op.Confidence, op.PositionSize, op.RiskLevel,
			op.PriceTarget.Bear, op.PriceTarget.Base, op.PriceTarget.Bull, op.Summary))
	}

	b.WriteString("# Tournament outcome\n")
	if bracket.Champion != nil {
		b.WriteString(fmt.Sprintf("champion: %s (%s)\n", bracket.Champion.AgentID, bracket.Champion.Recommendation))
	} else {
		b.WriteString("champion: none\n")
	}
	for _, arg := range bracket.WinningArguments {
		b.WriteString("- winning argument: " + arg + "\n")
	}
	if bracket.Final != nil {
		b.WriteString(fmt.Sprintf("final match: %s, scores bull=%.1f bear=%.1f\n",
			bracket.Final.Label(), bracket.Final.BullScore.Total, bracket.Final.BearScore.Total))
	}
	b.WriteString("Respond with the decision JSON only.\n")
	return b.String()
}
