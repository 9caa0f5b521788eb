package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"spendguard-agent/internal/signals"
)

// Config captures all tunable settings for the SpendGuard agent.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Browser      BrowserConfig      `yaml:"browser"`
	Backend      BackendConfig      `yaml:"backend"`
	Reasoning    ReasoningConfig    `yaml:"reasoning"`
	Decision     DecisionConfig     `yaml:"decision"`
	Intervention InterventionConfig `yaml:"intervention"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	MCP          MCPConfig          `yaml:"mcp"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
	// Path to the JSON key-value state file (user id, active flag, daily stats).
	StateFile string `yaml:"state_file"`
	// Directory for rotating decision trace files.
	TraceDir string `yaml:"trace_dir"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome in detached mode.
	Launch []string `yaml:"launch"`
	// AutoStart controls whether the agent launches/attaches to Chrome at startup.
	AutoStart bool `yaml:"auto_start"`
	// Headless controls whether Chrome runs in headless mode (default: false for a watching agent).
	Headless *bool `yaml:"headless"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// How often the in-page event buffer is drained (e.g., "300ms").
	EventPollInterval string `yaml:"event_poll_interval"`
}

// BackendConfig points at the wellness backend that serves the user state snapshot
// and receives outcome / transaction records.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// Bearer token; SPENDGUARD_AUTH_TOKEN from the environment wins when set.
	AuthToken string `yaml:"auth_token"`
	// Request timeout for the dashboard fetch (e.g., "5s").
	RequestTimeout string `yaml:"request_timeout"`
	// How long a fetched state snapshot stays fresh (e.g., "30s").
	StateCacheTTL string `yaml:"state_cache_ttl"`
}

// ReasoningConfig configures the external natural-language reasoning service.
type ReasoningConfig struct {
	URL         string  `yaml:"url"`
	Model       string  `yaml:"model"`
	Timeout     string  `yaml:"timeout"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
}

// DecisionConfig holds the rule-based fallback thresholds.
type DecisionConfig struct {
	// Amounts at or above these escalate rule-based risk.
	HighAmountThreshold   float64 `yaml:"high_amount_threshold"`
	MediumAmountThreshold float64 `yaml:"medium_amount_threshold"`
	// Interventions already shown today at which risk escalates to high regardless of amount.
	DailyInterventionLimit int    `yaml:"daily_intervention_limit"`
	Currency               string `yaml:"currency"`
}

// InterventionConfig controls overlay timing.
type InterventionConfig struct {
	// Countdown default when the decision carries none (minutes).
	DefaultDelayMinutes int `yaml:"default_delay_minutes"`
	// How long a suppressed click waits for a decision before failing open (e.g., "8s").
	FailOpenTimeout string `yaml:"fail_open_timeout"`
	// Grace after countdown expiry before the session auto-expires (e.g., "5m").
	ExpiryGrace string `yaml:"expiry_grace"`
}

// MonitorConfig controls ambient page scanning.
type MonitorConfig struct {
	// Minimum interval between ambient re-evaluations of the same tab (e.g., "2m").
	AmbientCheckInterval string `yaml:"ambient_check_interval"`
	// Rolling click history size used for behavior signals.
	ClickHistorySize int `yaml:"click_history_size"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	headless := false
	return Config{
		Server: ServerConfig{
			Name:      "spendguard-agent",
			Version:   "0.1.0",
			LogFile:   "spendguard-agent.log",
			StateFile: "spendguard-state.json",
			TraceDir:  "data/traces",
		},
		Browser: BrowserConfig{
			AutoStart:                true,
			Headless:                 &headless,
			DefaultNavigationTimeout: "15s",
			EventPollInterval:        "300ms",
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000/api/v1",
			RequestTimeout: "5s",
			StateCacheTTL:  "30s",
		},
		Reasoning: ReasoningConfig{
			URL:         "http://localhost:11434/api/generate",
			Model:       "gpt-oss:20b-cloud",
			Timeout:     "30s",
			Temperature: 0.3,
			TopP:        0.9,
		},
		Decision: DecisionConfig{
			HighAmountThreshold:    10000,
			MediumAmountThreshold:  2000,
			DailyInterventionLimit: 3,
			Currency:               "INR",
		},
		Intervention: InterventionConfig{
			DefaultDelayMinutes: 3,
			FailOpenTimeout:     "8s",
			ExpiryGrace:         "5m",
		},
		Monitor: MonitorConfig{
			AmbientCheckInterval: "2m",
			ClickHistorySize:     signals.ClickWindowSize,
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9109,
		},
	}
}

// Load reads YAML config from disk, overlays defaults, then applies .env overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv layers secrets from the environment (.env if present) over yaml values.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("SPENDGUARD_AUTH_TOKEN"); v != "" {
		c.Backend.AuthToken = v
	}
	if v := os.Getenv("SPENDGUARD_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("SPENDGUARD_REASONING_URL"); v != "" {
		c.Reasoning.URL = v
	}
}

// Validate ensures required fields exist so the agent can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.AutoStart {
		if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
			return errors.New("browser.debugger_url or browser.launch must be provided")
		}
	}
	if c.Decision.MediumAmountThreshold > c.Decision.HighAmountThreshold {
		return errors.New("decision.medium_amount_threshold must not exceed the high threshold")
	}
	return nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return parseDurationOr(b.DefaultNavigationTimeout, 15*time.Second)
}

// PollInterval returns the parsed event poll interval with a sane default.
func (b BrowserConfig) PollInterval() time.Duration {
	return parseDurationOr(b.EventPollInterval, 300*time.Millisecond)
}

// IsHeadless returns whether Chrome should run in headless mode (default: false).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return false
	}
	return *b.Headless
}

// Timeout returns the dashboard request timeout with a sane default.
func (b BackendConfig) Timeout() time.Duration {
	return parseDurationOr(b.RequestTimeout, 5*time.Second)
}

// CacheTTL returns the state snapshot TTL with a sane default.
func (b BackendConfig) CacheTTL() time.Duration {
	return parseDurationOr(b.StateCacheTTL, 30*time.Second)
}

// CallTimeout returns the reasoning request timeout with a sane default.
func (r ReasoningConfig) CallTimeout() time.Duration {
	return parseDurationOr(r.Timeout, 30*time.Second)
}

// FailOpenDeadline returns how long a suppressed click may wait for a decision.
func (i InterventionConfig) FailOpenDeadline() time.Duration {
	return parseDurationOr(i.FailOpenTimeout, 8*time.Second)
}

// ExpiryGraceDuration returns the post-countdown grace before auto-expiry.
func (i InterventionConfig) ExpiryGraceDuration() time.Duration {
	return parseDurationOr(i.ExpiryGrace, 5*time.Minute)
}

// DelayMinutes returns the default countdown length with a sane default.
func (i InterventionConfig) DelayMinutes() int {
	if i.DefaultDelayMinutes <= 0 {
		return 3
	}
	return i.DefaultDelayMinutes
}

// CheckInterval returns the ambient per-tab throttle with a sane default.
func (m MonitorConfig) CheckInterval() time.Duration {
	return parseDurationOr(m.AmbientCheckInterval, 2*time.Minute)
}

// HistorySize returns the click history size, defaulting to the window
// the behavior detector is calibrated for.
func (m MonitorConfig) HistorySize() int {
	if m.ClickHistorySize <= 0 {
		return signals.ClickWindowSize
	}
	return m.ClickHistorySize
}
