package debate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"quorum/internal/analyst"
	"quorum/internal/logger"
)

type Config struct {
	TurnsPerSide     int  // 每方发言次数
	MaxQuarterfinals int  // 四分之一决赛场次上限
	Concurrent       bool // 同轮比赛是否并发推进
}

// Engine 把一组分析师观点组织成淘汰赛:归营、配对、逐轮辩论直到产生冠军。
// 同一场比赛内发言严格串行，轮与轮之间有聚合屏障。
type Engine struct {
	cfg Config
	gen TurnGenerator
}

func NewEngine(cfg Config, gen TurnGenerator) *Engine {
	if cfg.TurnsPerSide <= 0 {
		cfg.TurnsPerSide = 2
	}
	if cfg.MaxQuarterfinals <= 0 || cfg.MaxQuarterfinals > 4 {
		cfg.MaxQuarterfinals = 4
	}
	return &Engine{cfg: cfg, gen: gen}
}

// Run 驱动完整赛程。任何输入下都返回 RESOLVED 状态的对阵表，
// 观点不足以开赛时冠军可能为空。
func (e *Engine) Run(ctx context.Context, opinions []analyst.Opinion) Bracket {
	b := Bracket{State: StateEmpty}

	switch len(opinions) {
	case 0:
		b.State = StateResolved
		return b
	case 1:
		champ := opinions[0]
		b.Champion = &champ
		b.State = StateResolved
		return b
	}

	bulls, bears := categorize(opinions)
	nPairs := min(min(len(bulls), len(bears)), e.cfg.MaxQuarterfinals)
	if nPairs == 0 {
		// 全员同向，没法开赛,直接取置信度最高者
		all := append(append([]analyst.Opinion{}, bulls...), bears...)
		sortByConfidence(all)
		champ := all[0]
		b.Champion = &champ
		b.State = StateResolved
		b.WinningArguments = nil
		return b
	}

	b.State = StateQuarterfinals
	pairs := make([][2]analyst.Opinion, nPairs)
	for i := 0; i < nPairs; i++ {
		pairs[i] = [2]analyst.Opinion{bulls[i], bears[i]}
	}
	b.Quarterfinals = e.runRound(ctx, RoundQuarterfinal, pairs)

	winners := roundWinners(b.Quarterfinals)
	if len(winners) == 1 {
		champ := winners[0]
		b.Champion = &champ
		b.State = StateResolved
		b.WinningArguments = extractWinningArguments(b, champ)
		return b
	}

	finalists := winners
	if len(winners) > 2 {
		b.State = StateSemifinals
		sfPairs, bye := semifinalPairs(winners)
		b.Semifinals = e.runRound(ctx, RoundSemifinal, sfPairs)
		finalists = roundWinners(b.Semifinals)
		if bye != nil {
			finalists = append(finalists, *bye)
		}
	}

	if len(finalists) < 2 {
		// 决赛凑不齐两人时，取四分之一决赛里单方最高分的胜者
		champ := bestByMaxScore(b.Quarterfinals)
		b.Champion = &champ
		b.State = StateResolved
		b.WinningArguments = extractWinningArguments(b, champ)
		return b
	}

	sortByConfidence(finalists)
	b.State = StateFinal
	fb, fr := pairMatch(finalists[0], finalists[1])
	final := e.runMatch(ctx, RoundFinal, fb, fr)
	b.Final = &final

	champ := final.WinnerOpinion()
	b.Champion = &champ
	b.State = StateResolved
	b.WinningArguments = extractWinningArguments(b, champ)
	logger.Infof("锦标赛收官 champion=%s (%s)", champ.AgentID, champ.Recommendation)
	return b
}

// runRound 跑完一整轮；Concurrent 时各场并发，但在此处聚合后才进入下一轮。
func (e *Engine) runRound(ctx context.Context, round Round, pairs [][2]analyst.Opinion) []Match {
	matches := make([]Match, len(pairs))
	if e.cfg.Concurrent && len(pairs) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, p := range pairs {
			i, p := i, p
			g.Go(func() error {
				bull, bear := pairMatch(p[0], p[1])
				matches[i] = e.runMatch(gctx, round, bull, bear)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, p := range pairs {
			bull, bear := pairMatch(p[0], p[1])
			matches[i] = e.runMatch(ctx, round, bull, bear)
		}
	}
	return matches
}

func roundWinners(matches []Match) []analyst.Opinion {
	out := make([]analyst.Opinion, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.WinnerOpinion())
	}
	return out
}

// semifinalPairs 给四分之一决赛胜者配半决赛对阵。能按多空两营
// 均衡配对就按营配，否则退化成置信度首尾配对；人数为奇时
// 中间一位轮空直接晋级。
func semifinalPairs(winners []analyst.Opinion) ([][2]analyst.Opinion, *analyst.Opinion) {
	bulls, bears := categorize(winners)
	if len(bulls) == len(bears) {
		pairs := make([][2]analyst.Opinion, len(bulls))
		for i := range bulls {
			pairs[i] = [2]analyst.Opinion{bulls[i], bears[i]}
		}
		return pairs, nil
	}

	sorted := append([]analyst.Opinion{}, winners...)
	sortByConfidence(sorted)
	var pairs [][2]analyst.Opinion
	i, j := 0, len(sorted)-1
	for i < j {
		pairs = append(pairs, [2]analyst.Opinion{sorted[i], sorted[j]})
		i++
		j--
	}
	if i == j {
		bye := sorted[i]
		return pairs, &bye
	}
	return pairs, nil
}

func bestByMaxScore(matches []Match) analyst.Opinion {
	best := matches[0]
	for _, m := range matches[1:] {
		if m.maxScore() > best.maxScore() {
			best = m
		}
	}
	return best.WinnerOpinion()
}
