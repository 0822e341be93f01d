package circuit

import (
	"strings"
	"sync"
	"time"

	"quorum/internal/logger"
)

// Level 表示风控熔断级别，级别越高可用杠杆越低。
type Level int

const (
	LevelNone Level = iota
	LevelYellow
	LevelOrange
	LevelRed
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelYellow:
		return "YELLOW"
	case LevelOrange:
		return "ORANGE"
	case LevelRed:
		return "RED"
	default:
		return "UNKNOWN"
	}
}

func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YELLOW":
		return LevelYellow
	case "ORANGE":
		return LevelOrange
	case "RED":
		return LevelRed
	default:
		return LevelNone
	}
}

// Status is what the risk layer consumes each cycle.
type Status struct {
	Level  Level
	Reason string
}

// Breaker escalates through YELLOW/ORANGE/RED as failures accumulate and
// decays one level after a quiet period. RED means emergency close-only.
type Breaker struct {
	mu            sync.Mutex
	level         Level
	failures      int
	yellowAt      int
	orangeAt      int
	redAt         int
	decayAfter    time.Duration
	lastFailure   time.Time
	reason        string
	maxLeverage   map[Level]float64
	onLevelChange func(from, to Level, reason string)
	name          string
}

type BreakerConfig struct {
	Name        string
	YellowAt    int
	OrangeAt    int
	RedAt       int
	DecayAfter  time.Duration
	MaxLeverage map[Level]float64
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.YellowAt <= 0 {
		cfg.YellowAt = 3
	}
	if cfg.OrangeAt <= cfg.YellowAt {
		cfg.OrangeAt = cfg.YellowAt + 2
	}
	if cfg.RedAt <= cfg.OrangeAt {
		cfg.RedAt = cfg.OrangeAt + 2
	}
	if cfg.DecayAfter <= 0 {
		cfg.DecayAfter = 10 * time.Minute
	}
	lv := cfg.MaxLeverage
	if lv == nil {
		lv = map[Level]float64{
			LevelNone:   0, // 0 = no breaker cap
			LevelYellow: 3,
			LevelOrange: 2,
			LevelRed:    1,
		}
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "risk"
	}
	return &Breaker{
		name:        name,
		yellowAt:    cfg.YellowAt,
		orangeAt:    cfg.OrangeAt,
		redAt:       cfg.RedAt,
		decayAfter:  cfg.DecayAfter,
		maxLeverage: lv,
	}
}

func (b *Breaker) SetLevelChangeHandler(h func(from, to Level, reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onLevelChange = h
}

// CheckStatus returns the current level, decaying first when the quiet
// period since the last recorded failure has elapsed.
func (b *Breaker) CheckStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.level > LevelNone && !b.lastFailure.IsZero() && time.Since(b.lastFailure) > b.decayAfter {
		b.failures = 0
		b.lastFailure = time.Now()
		b.transition(b.level-1, "quiet period elapsed")
	}
	return Status{Level: b.level, Reason: b.reason}
}

// MaxLeverage returns the leverage ceiling for a level; 0 means the breaker
// imposes no cap at that level.
func (b *Breaker) MaxLeverage(level Level) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxLeverage[level]
}

// RecordFailure feeds a risk event (losing trade, rejected order, exchange
// error) into the escalation counters.
func (b *Breaker) RecordFailure(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	next := b.level
	switch {
	case b.failures >= b.redAt:
		next = LevelRed
	case b.failures >= b.orangeAt:
		next = LevelOrange
	case b.failures >= b.yellowAt:
		next = LevelYellow
	}
	if next != b.level {
		b.transition(next, reason)
	} else if reason != "" {
		b.reason = reason
	}
}

// Reset clears counters and returns to NONE.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.level != LevelNone {
		b.transition(LevelNone, "manual reset")
	}
	b.reason = ""
}

func (b *Breaker) transition(to Level, reason string) {
	from := b.level
	b.level = to
	b.reason = reason
	if b.onLevelChange != nil {
		go b.onLevelChange(from, to, reason)
		return
	}
	logger.Warnf("circuit %s level change: %s -> %s (failures=%d, reason=%s)",
		b.name, from, to, b.failures, reason)
}
