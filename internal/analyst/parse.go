package analyst

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ValidationError：模型输出语法合法但语义不合格（schema 不过、枚举非法、
// 目标价非正等）。可在同一或回退后端上重试，重试耗尽后按 agent 级失败处理。
type ValidationError struct {
	AgentID string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agent %s: invalid opinion: %s", e.AgentID, e.Reason)
}

type rawOpinion struct {
	Recommendation string      `json:"recommendation"`
	Confidence     float64     `json:"confidence"`
	PriceTarget    PriceTarget `json:"price_target"`
	PositionSize   float64     `json:"position_size"`
	BullCase       []string    `json:"bull_case"`
	BearCase       []string    `json:"bear_case"`
	Catalysts      []string    `json:"catalysts"`
	RiskLevel      string      `json:"risk_level"`
	Summary        string      `json:"summary"`
}

// ExtractJSONObject 提取首个配平的 JSON 对象（模型时常在 JSON 外包裹说明文字）。
func ExtractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1]), true
			}
		}
	}
	return "", false
}

// ParseOpinion 将原始模型文本转为归一化 Opinion：
// 提取 JSON → schema 校验 → 解码 → 枚举归一 / 数值 clamp / 目标价排序 / 数组截断。
func ParseOpinion(agentID, methodology, raw string) (Opinion, error) {
	payload, ok := ExtractJSONObject(raw)
	if !ok {
		return Opinion{}, &ValidationError{AgentID: agentID, Reason: "no JSON object in response"}
	}
	if !gjson.Valid(payload) {
		return Opinion{}, &ValidationError{AgentID: agentID, Reason: "malformed JSON"}
	}

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return Opinion{}, &ValidationError{AgentID: agentID, Reason: err.Error()}
	}
	if err := validateOpinionJSON(doc); err != nil {
		return Opinion{}, &ValidationError{AgentID: agentID, Reason: fmt.Sprintf("schema: %v", err)}
	}

	var r rawOpinion
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return Opinion{}, &ValidationError{AgentID: agentID, Reason: err.Error()}
	}

	rec, err := NormalizeRecommendation(r.Recommendation)
	if err != nil {
		return Opinion{}, &ValidationError{AgentID: agentID, Reason: err.Error()}
	}
	risk, err := normalizeRiskLevel(r.RiskLevel)
	if err != nil {
		return Opinion{}, &ValidationError{AgentID: agentID, Reason: err.Error()}
	}
	if r.PriceTarget.Bull <= 0 || r.PriceTarget.Base <= 0 || r.PriceTarget.Bear <= 0 {
		return Opinion{}, &ValidationError{AgentID: agentID, Reason: "price targets must be positive"}
	}
	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		return Opinion{}, &ValidationError{AgentID: agentID, Reason: "empty summary"}
	}

	return Opinion{
		AgentID:        agentID,
		Methodology:    methodology,
		Recommendation: rec,
		Confidence:     clampF(r.Confidence, 0, 100),
		PriceTarget:    sortTargets(r.PriceTarget),
		PositionSize:   clampI(int(r.PositionSize), 1, 10),
		BullCase:       truncateList(r.BullCase, maxCaseItems),
		BearCase:       truncateList(r.BearCase, maxCaseItems),
		Catalysts:      truncateList(r.Catalysts, maxCatalystItems),
		RiskLevel:      risk,
		Summary:        summary,
	}, nil
}
