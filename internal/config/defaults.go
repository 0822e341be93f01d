package config

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9980"
	}

	if c.AI.FailureThreshold <= 0 {
		c.AI.FailureThreshold = 3
	}
	if c.AI.FailureResetSeconds <= 0 {
		c.AI.FailureResetSeconds = 1800
	}
	if c.AI.MaxTrackedFailures <= 0 {
		c.AI.MaxTrackedFailures = 64
	}
	if c.AI.MaxRetries <= 0 {
		c.AI.MaxRetries = 2
	}
	if c.AI.RetryBackoffMs <= 0 {
		c.AI.RetryBackoffMs = 800
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = 120
	}
	for i := range c.AI.Backends {
		if c.AI.Backends[i].TimeoutSeconds <= 0 {
			c.AI.Backends[i].TimeoutSeconds = c.AI.TimeoutSeconds
		}
		if c.AI.Backends[i].TokenBudget <= 0 {
			c.AI.Backends[i].TokenBudget = 4000
		}
	}

	if c.Agents.PersonaPath == "" {
		c.Agents.PersonaPath = "configs/personas.yaml"
	}
	if c.Agents.BatchSize <= 0 {
		c.Agents.BatchSize = 4
	}
	if c.Agents.BatchDelayMs <= 0 {
		c.Agents.BatchDelayMs = 500
	}

	if c.Debate.TurnsPerSide <= 0 {
		c.Debate.TurnsPerSide = 2
	}
	if c.Debate.MaxQuarterfinals <= 0 || c.Debate.MaxQuarterfinals > 4 {
		c.Debate.MaxQuarterfinals = 4
	}

	if c.Arbiter.MaxRetries <= 0 {
		c.Arbiter.MaxRetries = 2
	}

	if c.Risk.MaxPositionPct <= 0 {
		c.Risk.MaxPositionPct = 20
	}
	if c.Risk.MinPositionPct <= 0 {
		c.Risk.MinPositionPct = 1
	}
	if c.Risk.MaxLeverage <= 0 {
		c.Risk.MaxLeverage = 5
	}
	if c.Risk.FallbackTPPct <= 0 {
		c.Risk.FallbackTPPct = 4
	}
	if c.Risk.FallbackSLPct <= 0 {
		c.Risk.FallbackSLPct = 2
	}
	if c.Risk.MaxTPDistancePct <= 0 {
		c.Risk.MaxTPDistancePct = 15
	}
	if c.Risk.MaxSLDistancePct <= 0 {
		c.Risk.MaxSLDistancePct = 8
	}
	if c.Risk.DefaultMaxSLPct <= 0 {
		c.Risk.DefaultMaxSLPct = 5
	}

	if c.Circuit.YellowAt <= 0 {
		c.Circuit.YellowAt = 3
	}
	if c.Circuit.OrangeAt <= c.Circuit.YellowAt {
		c.Circuit.OrangeAt = c.Circuit.YellowAt + 2
	}
	if c.Circuit.RedAt <= c.Circuit.OrangeAt {
		c.Circuit.RedAt = c.Circuit.OrangeAt + 2
	}
	if c.Circuit.DecayAfterMinutes <= 0 {
		c.Circuit.DecayAfterMinutes = 30
	}

	if c.Exchange.TimeoutSeconds <= 0 {
		c.Exchange.TimeoutSeconds = 10
	}

	if c.Store.Path == "" {
		c.Store.Path = "data/quorum.db"
	}

	if c.Engine.Symbol == "" {
		c.Engine.Symbol = "BTCUSDT"
	}
	if c.Engine.IntervalSeconds <= 0 {
		c.Engine.IntervalSeconds = 900
	}
}
