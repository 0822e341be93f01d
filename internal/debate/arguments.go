package debate

import (
	"sort"

	"quorum/internal/analyst"
	"quorum/internal/pkg/text"
)

const (
	maxWinningArguments = 3
	argumentMaxLen      = 250
)

// extractWinningArguments 从冠军本人的发言里挑出最硬的几条论据，
// 供裁决阶段引用。按强度与数据引用密度排序，截断到句子边界。
func extractWinningArguments(b Bracket, champ analyst.Opinion) []string {
	var turns []Turn
	collect := func(matches []Match) {
		for _, m := range matches {
			for _, t := range m.Turns {
				if t.SpeakerAgentID == champ.AgentID && t.Text != "" {
					turns = append(turns, t)
				}
			}
		}
	}
	collect(b.Quarterfinals)
	collect(b.Semifinals)
	if b.Final != nil {
		collect([]Match{*b.Final})
	}
	if len(turns) == 0 {
		return nil
	}

	sort.SliceStable(turns, func(i, j int) bool {
		return composite(turns[i]) > composite(turns[j])
	})

	n := min(maxWinningArguments, len(turns))
	out := make([]string, 0, n)
	for _, t := range turns[:n] {
		out = append(out, text.TruncateAtSentence(t.Text, argumentMaxLen))
	}
	return out
}

func composite(t Turn) float64 {
	return t.Strength + float64(len(t.DataPoints))*10
}
