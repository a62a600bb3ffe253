// Package config provides orchestration configuration loading and
// validation. The file is YAML; its validated shape is enforced twice, by
// an embedded JSON schema and by typed bounds checks, so an out-of-range
// setting can never reach the runner.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/finsight/etl-orchestrator/internal/security"
)

// NotificationEndpoints is the closed set of notification targets.
var NotificationEndpoints = []string{"console", "email", "slack", "webhook"}

// Config holds all orchestration settings. It is loaded once and read-only
// for the lifetime of a run.
type Config struct {
	ProjectRoot string `yaml:"project_root" json:"project_root"`
	LogDir      string `yaml:"log_dir" json:"log_dir"`

	MaxParallelStages  int  `yaml:"max_parallel_stages" json:"max_parallel_stages"`
	RetryAttempts      int  `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelaySeconds  int  `yaml:"retry_delay_seconds" json:"retry_delay_seconds"`
	TimeoutMinutes     int  `yaml:"timeout_minutes" json:"timeout_minutes"`
	CheckpointInterval int  `yaml:"checkpoint_interval" json:"checkpoint_interval"`
	FailFast           bool `yaml:"fail_fast" json:"fail_fast"`
	ContinueOnWarnings bool `yaml:"continue_on_warnings" json:"continue_on_warnings"`
	SavePartialResults bool `yaml:"save_partial_results" json:"save_partial_results"`

	NotificationEndpoints []string      `yaml:"notification_endpoints" json:"notification_endpoints"`
	Notifications         Notifications `yaml:"notifications" json:"notifications"`

	// StatusPort enables the local /healthz and /metrics listener when >0.
	StatusPort int `yaml:"status_port" json:"status_port"`

	Redis         Redis         `yaml:"redis" json:"redis"`
	ArtifactStore ArtifactStore `yaml:"artifact_store" json:"artifact_store"`
}

// Notifications holds per-endpoint delivery targets.
type Notifications struct {
	SlackWebhookURL string   `yaml:"slack_webhook_url" json:"slack_webhook_url"`
	WebhookURL      string   `yaml:"webhook_url" json:"webhook_url"`
	SMTPAddr        string   `yaml:"smtp_addr" json:"smtp_addr"`
	EmailFrom       string   `yaml:"email_from" json:"email_from"`
	EmailTo         []string `yaml:"email_to" json:"email_to"`
}

// Redis configures the optional event mirror consumed by the dashboards.
type Redis struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Channel string `yaml:"channel" json:"channel"`
}

// ArtifactStore configures optional S3/MinIO archival of stage artifacts.
type ArtifactStore struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl" json:"use_ssl"`
	Prefix          string `yaml:"prefix" json:"prefix"`
}

// Default returns the baseline configuration. Load applies the file on top
// of these values.
func Default() *Config {
	return &Config{
		ProjectRoot:           ".",
		LogDir:                "logs",
		MaxParallelStages:     4,
		RetryAttempts:         1,
		RetryDelaySeconds:     5,
		TimeoutMinutes:        30,
		CheckpointInterval:    10,
		FailFast:              false,
		ContinueOnWarnings:    true,
		SavePartialResults:    true,
		NotificationEndpoints: []string{"console"},
		Redis:                 Redis{Channel: "orchestrator:events"},
	}
}

// Load reads and validates the YAML config at path. An empty path returns
// the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the config shape: schema first, then typed bounds.
func (c *Config) Validate() error {
	doc, err := toDocument(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return err
	}

	checks := []error{
		security.NonEmpty("project_root", c.ProjectRoot),
		security.NonEmpty("log_dir", c.LogDir),
		security.IntInRange("max_parallel_stages", c.MaxParallelStages, 1, 10),
		security.IntMin("retry_attempts", c.RetryAttempts, 0),
		security.IntMin("retry_delay_seconds", c.RetryDelaySeconds, 1),
		security.IntInRange("timeout_minutes", c.TimeoutMinutes, 1, 1440),
		security.IntMin("checkpoint_interval", c.CheckpointInterval, 1),
		security.IntInRange("status_port", c.StatusPort, 0, 65535),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	for _, ep := range c.NotificationEndpoints {
		if err := security.OneOf("notification_endpoints", ep, NotificationEndpoints); err != nil {
			return err
		}
	}
	if c.Redis.Enabled {
		if err := security.NonEmpty("redis.addr", c.Redis.Addr); err != nil {
			return err
		}
	}
	if c.ArtifactStore.Enabled {
		if err := security.NonEmpty("artifact_store.bucket", c.ArtifactStore.Bucket); err != nil {
			return err
		}
	}
	return nil
}

// RetryDelay returns the constant backoff between stage retry attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// StageTimeout returns the per-attempt stage timeout.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// toDocument converts the config into the generic form the schema
// validator consumes.
func toDocument(c *Config) (any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
