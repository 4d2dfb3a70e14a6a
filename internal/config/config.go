package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Store        StoreConfig        `koanf:"store"`
	Intent       IntentConfig       `koanf:"intent"`
	Reputation   ReputationConfig   `koanf:"reputation"`
	Presence     PresenceConfig     `koanf:"presence"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Scheduler    SchedulerConfig    `koanf:"scheduler"`
	Adapters     AdaptersConfig     `koanf:"adapters"`
	Daemon       DaemonConfig       `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
	AllowAllOrigins bool   `koanf:"allow_all_origins"`
}

type StoreConfig struct {
	Path        string `koanf:"path"`
	LockTimeout string `koanf:"lock_timeout"`
	LockRetry   string `koanf:"lock_retry"`
	InboxSize   int    `koanf:"inbox_size"`
}

type IntentConfig struct {
	MinPurposeLength   int     `koanf:"min_purpose_length"`
	MaxDurationMinutes int     `koanf:"max_duration_minutes"`
	BaseThreshold      float64 `koanf:"base_threshold"`
	AdmissionSlope     float64 `koanf:"admission_slope"`
	MinThreshold       float64 `koanf:"min_threshold"`
	MaxThreshold       float64 `koanf:"max_threshold"`
}

type ReputationConfig struct {
	Window          int     `koanf:"window"`
	VarianceEpsilon float64 `koanf:"variance_epsilon"`
	MinCredibility  float64 `koanf:"min_credibility"`
	MaxCredibility  float64 `koanf:"max_credibility"`
}

type PresenceConfig struct {
	AdapterTimeout string `koanf:"adapter_timeout"`
	CacheTTL       string `koanf:"cache_ttl"`
}

type OrchestratorConfig struct {
	Timeout      string `koanf:"timeout"`
	RetryBackoff string `koanf:"retry_backoff"`
	MaxRetries   int    `koanf:"max_retries"`
}

type SchedulerConfig struct {
	Enabled     bool   `koanf:"enabled"`
	RefreshSpec string `koanf:"refresh_spec"`
}

type AdaptersConfig struct {
	Slack    SlackConfig             `koanf:"slack"`
	Telegram TelegramConfig          `koanf:"telegram"`
	Webhooks []WebhookPlatformConfig `koanf:"webhooks"`
	Static   StaticConfig            `koanf:"static"`
}

type SlackConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BotToken string `koanf:"bot_token"`
}

type TelegramConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BotToken string `koanf:"bot_token"`
}

// WebhookPlatformConfig configures one generic conference platform (zoom,
// teams, meet, ...) reachable over a small HTTP contract.
type WebhookPlatformConfig struct {
	Platform  string `koanf:"platform"`
	BaseURL   string `koanf:"base_url"`
	AuthToken string `koanf:"auth_token"`
	Timeout   string `koanf:"timeout"`
}

type StaticConfig struct {
	Enabled bool `koanf:"enabled"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
}

const (
	DefaultServerPort            = 8080
	DefaultServerLogLevel        = "info"
	DefaultServerReadTimeout     = "10s"
	DefaultServerWriteTimeout    = "10s"
	DefaultServerIdleTimeout     = "60s"
	DefaultServerShutdownTimeout = "5s"

	DefaultStoreLockTimeout = "30s"
	DefaultStoreLockRetry   = "100ms"
	DefaultStoreInboxSize   = 100

	DefaultIntentMinPurposeLength   = 12
	DefaultIntentMaxDurationMinutes = 240
	DefaultIntentBaseThreshold      = 0.5
	DefaultIntentAdmissionSlope     = 0.2
	DefaultIntentMinThreshold       = 0.3
	DefaultIntentMaxThreshold       = 0.9

	DefaultReputationWindow          = 10
	DefaultReputationVarianceEpsilon = 0.01
	DefaultReputationMinCredibility  = 0.1
	DefaultReputationMaxCredibility  = 2.0

	DefaultPresenceAdapterTimeout = "2s"
	DefaultPresenceCacheTTL       = "30s"

	DefaultOrchestratorTimeout      = "10s"
	DefaultOrchestratorRetryBackoff = "500ms"
	DefaultOrchestratorMaxRetries   = 1

	DefaultSchedulerRefreshSpec = "@every 1m"

	DefaultDaemonShutdownTimeout        = "30s"
	DefaultDaemonStartupShutdownTimeout = "10s"
	DefaultDaemonHealthCheckInterval    = "30s"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":                     DefaultServerPort,
		"server.log_level":                DefaultServerLogLevel,
		"server.read_timeout":             DefaultServerReadTimeout,
		"server.write_timeout":            DefaultServerWriteTimeout,
		"server.idle_timeout":             DefaultServerIdleTimeout,
		"server.shutdown_timeout":         DefaultServerShutdownTimeout,
		"server.allow_all_origins":        false,
		"store.path":                      filepath.Join(os.Getenv("HOME"), ".kairos", "data"),
		"store.lock_timeout":              DefaultStoreLockTimeout,
		"store.lock_retry":                DefaultStoreLockRetry,
		"store.inbox_size":                DefaultStoreInboxSize,
		"intent.min_purpose_length":       DefaultIntentMinPurposeLength,
		"intent.max_duration_minutes":     DefaultIntentMaxDurationMinutes,
		"intent.base_threshold":           DefaultIntentBaseThreshold,
		"intent.admission_slope":          DefaultIntentAdmissionSlope,
		"intent.min_threshold":            DefaultIntentMinThreshold,
		"intent.max_threshold":            DefaultIntentMaxThreshold,
		"reputation.window":               DefaultReputationWindow,
		"reputation.variance_epsilon":     DefaultReputationVarianceEpsilon,
		"reputation.min_credibility":      DefaultReputationMinCredibility,
		"reputation.max_credibility":      DefaultReputationMaxCredibility,
		"presence.adapter_timeout":        DefaultPresenceAdapterTimeout,
		"presence.cache_ttl":              DefaultPresenceCacheTTL,
		"orchestrator.timeout":            DefaultOrchestratorTimeout,
		"orchestrator.retry_backoff":      DefaultOrchestratorRetryBackoff,
		"orchestrator.max_retries":        DefaultOrchestratorMaxRetries,
		"scheduler.enabled":               true,
		"scheduler.refresh_spec":          DefaultSchedulerRefreshSpec,
		"adapters.static.enabled":         true,
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	// Config file (optional)
	configPath := configFilePath(cmd)
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, err
			}
			slog.Debug("Config file loaded", "path", configPath)
		}
	}

	// Environment (KAIROS_SERVER_PORT -> server.port)
	if err := k.Load(env.Provider("KAIROS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KAIROS_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	// Flags win over everything
	if cmd != nil {
		if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func configFilePath(cmd *cobra.Command) string {
	if cmd != nil {
		if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
			return v
		}
	}
	if v := os.Getenv("KAIROS_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(os.Getenv("HOME"), ".kairos", "config.yaml")
}
