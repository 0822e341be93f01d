package config

// Config 是 quorum 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	AI       AIConfig       `toml:"ai"`
	Agents   AgentsConfig   `toml:"agents"`
	Debate   DebateConfig   `toml:"debate"`
	Arbiter  ArbiterConfig  `toml:"arbiter"`
	Risk     RiskConfig     `toml:"risk"`
	Circuit  CircuitConfig  `toml:"circuit"`
	Exchange ExchangeConfig `toml:"exchange"`
	Store    StoreConfig    `toml:"store"`
	Engine   EngineConfig   `toml:"engine"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// BackendConfig 描述一个可互换的推理后端。
type BackendConfig struct {
	ID             string            `toml:"id"`
	Provider       string            `toml:"provider"`
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	Model          string            `toml:"model"`
	Priority       int               `toml:"priority"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	TokenBudget    int               `toml:"token_budget"`
	Enabled        bool              `toml:"enabled"`
	Headers        map[string]string `toml:"headers"`
}

type AIConfig struct {
	Backends            []BackendConfig `toml:"backends"`
	PinnedBackend       string          `toml:"pinned_backend"`
	FailureThreshold    int             `toml:"failure_threshold"`
	FailureResetSeconds int             `toml:"failure_reset_seconds"`
	MaxTrackedFailures  int             `toml:"max_tracked_failures"`
	MaxRetries          int             `toml:"max_retries"`
	RetryBackoffMs      int             `toml:"retry_backoff_ms"`
	TimeoutSeconds      int             `toml:"timeout_seconds"`
}

type AgentsConfig struct {
	PersonaPath  string `toml:"persona_path"`
	BatchSize    int    `toml:"batch_size"`
	BatchDelayMs int    `toml:"batch_delay_ms"`
}

type DebateConfig struct {
	Enabled           bool `toml:"enabled"`
	TurnsPerSide      int  `toml:"turns_per_side"`
	MaxQuarterfinals  int  `toml:"max_quarterfinals"`
	ConcurrentMatches bool `toml:"concurrent_matches"`
}

type ArbiterConfig struct {
	BackendID  string             `toml:"backend_id"`
	MaxRetries int                `toml:"max_retries"`
	Weights    map[string]float64 `toml:"weights"`
}

type RiskConfig struct {
	MaxPositionPct   float64            `toml:"max_position_pct"`
	MinPositionPct   float64            `toml:"min_position_pct"`
	MaxLeverage      float64            `toml:"max_leverage"`
	FallbackTPPct    float64            `toml:"fallback_tp_pct"`
	FallbackSLPct    float64            `toml:"fallback_sl_pct"`
	MaxTPDistancePct float64            `toml:"max_tp_distance_pct"`
	MaxSLDistancePct float64            `toml:"max_sl_distance_pct"`
	DefaultMaxSLPct  float64            `toml:"default_max_sl_pct"`
	MethodologySLPct map[string]float64 `toml:"methodology_sl_pct"`
}

type CircuitConfig struct {
	YellowAt          int `toml:"yellow_at"`
	OrangeAt          int `toml:"orange_at"`
	RedAt             int `toml:"red_at"`
	DecayAfterMinutes int `toml:"decay_after_minutes"`
}

type ExchangeConfig struct {
	RESTBaseURL    string `toml:"rest_base_url"`
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DryRun         bool   `toml:"dry_run"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type EngineConfig struct {
	Symbol          string `toml:"symbol"`
	IntervalSeconds int    `toml:"interval_seconds"`
	RunImmediately  bool   `toml:"run_immediately"`
}
