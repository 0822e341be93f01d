package modelpool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"quorum/internal/gateway/provider"
	"quorum/internal/logger"
)

// Backend 是模型目录中的一个可互换推理后端。
type Backend struct {
	ID          string
	Priority    int // 0 = 最可靠
	Timeout     time.Duration
	TokenBudget int
	Provider    provider.ModelProvider
}

type Config struct {
	FailureThreshold int
	ResetInterval    time.Duration
	MaxTracked       int
	Pinned           string // 非空时所有 agent 固定使用该 backend
}

// Pool owns the only mutable shared state in the pipeline: failure counters
// and the last cycle assignment. All writes happen here, behind one mutex.
type Pool struct {
	mu        sync.Mutex
	cfg       Config
	catalog   []Backend // priority ascending
	byID      map[string]Backend
	failures  map[string]int
	failKeys  []string // insertion order, oldest evicted first
	lastAsg   Assignment
	inFlight  int
	lastReset time.Time
	shuffle   func(n int, swap func(i, j int)) // injectable for tests
}

func New(cfg Config, backends []Backend) (*Pool, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("model pool requires at least one backend")
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetInterval <= 0 {
		cfg.ResetInterval = 30 * time.Minute
	}
	if cfg.MaxTracked <= 0 {
		cfg.MaxTracked = 64
	}
	catalog := make([]Backend, len(backends))
	copy(catalog, backends)
	sort.SliceStable(catalog, func(i, j int) bool { return catalog[i].Priority < catalog[j].Priority })
	byID := make(map[string]Backend, len(catalog))
	for _, b := range catalog {
		if _, dup := byID[b.ID]; dup {
			return nil, fmt.Errorf("model pool: duplicate backend id %q", b.ID)
		}
		byID[b.ID] = b
	}
	if cfg.Pinned != "" {
		if _, ok := byID[cfg.Pinned]; !ok {
			return nil, fmt.Errorf("model pool: pinned backend %q not in catalog", cfg.Pinned)
		}
	}
	return &Pool{
		cfg:       cfg,
		catalog:   catalog,
		byID:      byID,
		failures:  make(map[string]int),
		lastReset: time.Now(),
		shuffle:   fisherYates,
	}, nil
}

// Lookup returns the catalog entry for an id.
func (p *Pool) Lookup(id string) (Backend, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.byID[id]
	return b, ok
}

// FallbackFor returns the best alternative to a failed backend. Two phases:
// only when an eligible alternative exists does the failed backend's counter
// get incremented, so a dead-end failure keeps its true cause visible.
func (p *Pool) FallbackFor(failedID string) (Backend, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maybeAutoResetLocked()

	var best *Backend
	for i := range p.catalog {
		b := p.catalog[i]
		if b.ID == failedID {
			continue
		}
		if p.failures[b.ID] >= p.cfg.FailureThreshold {
			continue
		}
		best = &p.catalog[i] // catalog 已按 priority 升序
		break
	}
	if best == nil {
		return Backend{}, false
	}
	p.recordFailureLocked(failedID)
	return *best, true
}

// ResetFailures clears all counters. Refused while a pipeline run is in
// flight unless forced. Idempotent.
func (p *Pool) ResetFailures(force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight > 0 && !force {
		return fmt.Errorf("model pool: %d operation(s) in flight, reset refused (use force)", p.inFlight)
	}
	p.resetLocked()
	return nil
}

// BeginOperation 计入一次进行中的流水线运行；返回的函数在结束时调用。
func (p *Pool) BeginOperation() func() {
	p.mu.Lock()
	p.inFlight++
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.inFlight > 0 {
				p.inFlight--
			}
			p.mu.Unlock()
		})
	}
}

type BackendState struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
	Failures int    `json:"failures"`
	Eligible bool   `json:"eligible"`
}

type State struct {
	Backends []BackendState `json:"backends"`
	InFlight int            `json:"in_flight"`
	Pinned   string         `json:"pinned,omitempty"`
}

func (p *Pool) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := State{InFlight: p.inFlight, Pinned: p.cfg.Pinned}
	for _, b := range p.catalog {
		st.Backends = append(st.Backends, BackendState{
			ID:       b.ID,
			Priority: b.Priority,
			Failures: p.failures[b.ID],
			Eligible: p.failures[b.ID] < p.cfg.FailureThreshold,
		})
	}
	return st
}

func (p *Pool) resetLocked() {
	if len(p.failures) > 0 {
		logger.Infof("model pool: failure counters reset (%d tracked)", len(p.failures))
	}
	p.failures = make(map[string]int)
	p.failKeys = p.failKeys[:0]
	p.lastReset = time.Now()
}

func (p *Pool) maybeAutoResetLocked() {
	if time.Since(p.lastReset) >= p.cfg.ResetInterval {
		p.resetLocked()
	}
}

// recordFailureLocked bumps a counter, evicting the oldest tracked key when
// the bounded map is full. Unknown ids are tracked too but cannot grow the
// map without bound.
func (p *Pool) recordFailureLocked(id string) {
	if _, tracked := p.failures[id]; !tracked {
		if len(p.failKeys) >= p.cfg.MaxTracked {
			oldest := p.failKeys[0]
			p.failKeys = p.failKeys[1:]
			delete(p.failures, oldest)
		}
		p.failKeys = append(p.failKeys, id)
	}
	p.failures[id]++
}

func (p *Pool) eligibleLocked() []Backend {
	out := make([]Backend, 0, len(p.catalog))
	for _, b := range p.catalog {
		if p.failures[b.ID] < p.cfg.FailureThreshold {
			out = append(out, b)
		}
	}
	return out
}
