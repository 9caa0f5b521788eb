package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"spendguard-agent/internal/signals"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Name != "spendguard-agent" {
		t.Errorf("expected server name 'spendguard-agent', got %q", cfg.Server.Name)
	}
	if cfg.Server.StateFile != "spendguard-state.json" {
		t.Errorf("expected state file 'spendguard-state.json', got %q", cfg.Server.StateFile)
	}
	if cfg.Server.TraceDir != "data/traces" {
		t.Errorf("expected trace dir 'data/traces', got %q", cfg.Server.TraceDir)
	}

	if !cfg.Browser.AutoStart {
		t.Error("expected AutoStart to be true")
	}
	if cfg.Browser.DefaultNavigationTimeout != "15s" {
		t.Errorf("expected navigation timeout '15s', got %q", cfg.Browser.DefaultNavigationTimeout)
	}
	if cfg.Browser.EventPollInterval != "300ms" {
		t.Errorf("expected event poll interval '300ms', got %q", cfg.Browser.EventPollInterval)
	}
	if cfg.Browser.IsHeadless() {
		t.Error("expected headless to default to false")
	}

	if cfg.Backend.BaseURL != "http://localhost:8000/api/v1" {
		t.Errorf("unexpected backend base url %q", cfg.Backend.BaseURL)
	}
	if cfg.Reasoning.Temperature != 0.3 {
		t.Errorf("expected reasoning temperature 0.3, got %v", cfg.Reasoning.Temperature)
	}
	if cfg.Reasoning.CallTimeout() != 30*time.Second {
		t.Errorf("expected reasoning timeout 30s, got %v", cfg.Reasoning.CallTimeout())
	}

	if cfg.Decision.HighAmountThreshold != 10000 {
		t.Errorf("expected high amount threshold 10000, got %v", cfg.Decision.HighAmountThreshold)
	}
	if cfg.Decision.MediumAmountThreshold != 2000 {
		t.Errorf("expected medium amount threshold 2000, got %v", cfg.Decision.MediumAmountThreshold)
	}
	if cfg.Decision.DailyInterventionLimit != 3 {
		t.Errorf("expected daily intervention limit 3, got %d", cfg.Decision.DailyInterventionLimit)
	}

	if cfg.Monitor.CheckInterval() != 2*time.Minute {
		t.Errorf("expected ambient check interval 2m, got %v", cfg.Monitor.CheckInterval())
	}
	if cfg.Monitor.HistorySize() != signals.ClickWindowSize {
		t.Errorf("expected click history size %d, got %d", signals.ClickWindowSize, cfg.Monitor.HistorySize())
	}
}

func TestHistorySizeDefaultsToDetectorWindow(t *testing.T) {
	var m MonitorConfig
	if m.HistorySize() != signals.ClickWindowSize {
		t.Errorf("expected default history size %d, got %d", signals.ClickWindowSize, m.HistorySize())
	}
	m.ClickHistorySize = 25
	if m.HistorySize() != 25 {
		t.Errorf("expected explicit history size 25, got %d", m.HistorySize())
	}
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Error("expected error for empty path")
	}
	if err.Error() != "config path is required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  name: "test-agent"
  version: "1.0.0"
  log_file: "test.log"
  state_file: "state.json"

browser:
  debugger_url: "ws://localhost:9222"
  auto_start: true
  headless: true
  default_navigation_timeout: "20s"
  event_poll_interval: "250ms"

backend:
  base_url: "http://localhost:9000/api/v1"
  state_cache_ttl: "10s"

reasoning:
  model: "test-model"
  timeout: "5s"
  temperature: 0.1

decision:
  high_amount_threshold: 50000
  medium_amount_threshold: 5000
  daily_intervention_limit: 2

intervention:
  default_delay_minutes: 10
  fail_open_timeout: "4s"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Name != "test-agent" {
		t.Errorf("expected server name 'test-agent', got %q", cfg.Server.Name)
	}
	if cfg.Browser.DebuggerURL != "ws://localhost:9222" {
		t.Errorf("expected debugger URL 'ws://localhost:9222', got %q", cfg.Browser.DebuggerURL)
	}
	if !cfg.Browser.IsHeadless() {
		t.Error("expected headless true")
	}
	if cfg.Browser.PollInterval() != 250*time.Millisecond {
		t.Errorf("expected poll interval 250ms, got %v", cfg.Browser.PollInterval())
	}
	if cfg.Backend.BaseURL != "http://localhost:9000/api/v1" {
		t.Errorf("unexpected backend base url %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.CacheTTL() != 10*time.Second {
		t.Errorf("expected cache TTL 10s, got %v", cfg.Backend.CacheTTL())
	}
	if cfg.Reasoning.Model != "test-model" {
		t.Errorf("expected reasoning model 'test-model', got %q", cfg.Reasoning.Model)
	}
	if cfg.Decision.HighAmountThreshold != 50000 {
		t.Errorf("expected high threshold 50000, got %v", cfg.Decision.HighAmountThreshold)
	}
	if cfg.Intervention.DelayMinutes() != 10 {
		t.Errorf("expected delay minutes 10, got %d", cfg.Intervention.DelayMinutes())
	}
	if cfg.Intervention.FailOpenDeadline() != 4*time.Second {
		t.Errorf("expected fail-open deadline 4s, got %v", cfg.Intervention.FailOpenDeadline())
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty server name",
			cfg:     Config{Server: ServerConfig{Name: ""}},
			wantErr: true,
			errMsg:  "server.name is required",
		},
		{
			name: "auto_start without debugger_url or launch",
			cfg: Config{
				Server:  ServerConfig{Name: "test"},
				Browser: BrowserConfig{AutoStart: true},
			},
			wantErr: true,
			errMsg:  "browser.debugger_url or browser.launch must be provided",
		},
		{
			name: "auto_start with debugger_url",
			cfg: Config{
				Server:  ServerConfig{Name: "test"},
				Browser: BrowserConfig{AutoStart: true, DebuggerURL: "ws://localhost:9222"},
			},
			wantErr: false,
		},
		{
			name: "auto_start with launch",
			cfg: Config{
				Server:  ServerConfig{Name: "test"},
				Browser: BrowserConfig{AutoStart: true, Launch: []string{"chrome"}},
			},
			wantErr: false,
		},
		{
			name: "inverted amount thresholds",
			cfg: Config{
				Server: ServerConfig{Name: "test"},
				Decision: DecisionConfig{
					HighAmountThreshold:   100,
					MediumAmountThreshold: 500,
				},
			},
			wantErr: true,
			errMsg:  "decision.medium_amount_threshold must not exceed the high threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				} else if err.Error() != tt.errMsg {
					t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		fallback time.Duration
		expected time.Duration
	}{
		{"empty string", "", 15 * time.Second, 15 * time.Second},
		{"valid duration", "20s", 15 * time.Second, 20 * time.Second},
		{"invalid duration", "invalid", 15 * time.Second, 15 * time.Second},
		{"milliseconds", "500ms", 15 * time.Second, 500 * time.Millisecond},
		{"minutes", "2m", 15 * time.Second, 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseDurationOr(tt.raw, tt.fallback)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}
