package modelpool

import (
	"math/rand"

	"quorum/internal/logger"
)

// Assignment 是一个决策周期的 agent → backend 映射，整体替换、从不局部修改。
type Assignment struct {
	CycleID  string
	Backends map[string]Backend
}

func (a Assignment) For(agentID string) (Backend, bool) {
	b, ok := a.Backends[agentID]
	return b, ok
}

// AssignForCycle 为一个周期分配后端：对合格后端做无偏洗牌，按下标取模映射。
// 合格后端少于 agent 数时重置全部计数并使用完整目录——可用性优先于故障隔离。
func (p *Pool) AssignForCycle(cycleID string, agentIDs []string) Assignment {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maybeAutoResetLocked()

	asg := Assignment{CycleID: cycleID, Backends: make(map[string]Backend, len(agentIDs))}

	if p.cfg.Pinned != "" {
		pinned := p.byID[p.cfg.Pinned]
		for _, id := range agentIDs {
			asg.Backends[id] = pinned
		}
		p.lastAsg = asg
		return asg
	}

	eligible := p.eligibleLocked()
	if len(eligible) < len(agentIDs) && len(eligible) < len(p.catalog) {
		logger.Warnf("model pool: %d eligible backend(s) for %d agent(s), resetting counters", len(eligible), len(agentIDs))
		p.resetLocked()
		eligible = p.eligibleLocked()
	}
	if len(eligible) == 0 {
		// 目录非空时不可能为 0（上面已重置），保底用完整目录
		eligible = append(eligible, p.catalog...)
	}

	shuffled := make([]Backend, len(eligible))
	copy(shuffled, eligible)
	p.shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	for i, id := range agentIDs {
		asg.Backends[id] = shuffled[i%len(shuffled)]
	}
	p.lastAsg = asg
	return asg
}

// LastAssignment returns the assignment of the most recent cycle.
func (p *Pool) LastAssignment() Assignment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAsg
}

// fisherYates 就地无偏洗牌。
func fisherYates(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		swap(i, j)
	}
}
