package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	dberrors "git.home.luguber.info/inful/latexbuilder/internal/errors"
)

// Config represents the application configuration
type Config struct {
	ConfigSource ConfigSourceConfig `yaml:"config_source"`
	Compile      CompileConfig      `yaml:"compile"`
	Engine       EngineConfig       `yaml:"engine"`
	Storage      StorageConfig      `yaml:"storage"`
	Trigger      TriggerConfig      `yaml:"trigger"`
	Daemon       DaemonConfig       `yaml:"daemon,omitempty"`
	History      HistoryConfig      `yaml:"history,omitempty"`
}

// ConfigSourceConfig locates the node list and per-node content trees on the content host.
type ConfigSourceConfig struct {
	APIURL    string      `yaml:"api_url,omitempty"`
	Owner     string      `yaml:"owner"`
	Repo      string      `yaml:"repo"`
	Ref       string      `yaml:"ref,omitempty"`
	NodesPath string      `yaml:"nodes_path,omitempty"` // node list inside owner/repo
	TreePath  string      `yaml:"tree_path,omitempty"`  // content tree inside each node's repository
	Token     string      `yaml:"token,omitempty"`
	Timeout   string      `yaml:"timeout,omitempty"`
	Retry     RetryConfig `yaml:"retry,omitempty"` // transient API failures; zero disables
}

// CompileConfig holds request defaults and fan-out limits for the compile stage.
type CompileConfig struct {
	RepoHost    string `yaml:"repo_host,omitempty"`
	Branch      string `yaml:"branch,omitempty"`
	Command     string `yaml:"command,omitempty"`
	Workdir     string `yaml:"workdir,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"` // 0 = unbounded
	Timeout     string `yaml:"timeout,omitempty"`
}

// EngineConfig configures the in-process LaTeX engine.
type EngineConfig struct {
	DownloadsDir string      `yaml:"downloads_dir,omitempty"`
	StorageDir   string      `yaml:"storage_dir,omitempty"`
	CacheSize    int         `yaml:"cache_size,omitempty"`
	ShallowDepth int         `yaml:"shallow_depth,omitempty"`
	Retry        RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig configures retries for repository downloads and content host requests.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff,omitempty"`
	InitialDelay string           `yaml:"initial_delay,omitempty"`
	MaxDelay     string           `yaml:"max_delay,omitempty"`
	MaxRetries   int              `yaml:"max_retries,omitempty"`
}

// StorageConfig describes where compiled PDFs are uploaded. Path is only used
// by the dir backend.
type StorageConfig struct {
	Type      StorageType `yaml:"type,omitempty"`
	Endpoint  string      `yaml:"endpoint"`
	Region    string      `yaml:"region,omitempty"`
	AccessKey string      `yaml:"access_key,omitempty"`
	SecretKey string      `yaml:"secret_key,omitempty"`
	Bucket    string      `yaml:"bucket"`
	UseSSL    bool        `yaml:"use_ssl,omitempty"`
	Path      string      `yaml:"path,omitempty"`
	Timeout   string      `yaml:"timeout,omitempty"`
}

// StorageType selects the upload backend.
type StorageType string

const (
	StorageS3 StorageType = "s3"
	// StorageDir mirrors artifacts into a local directory tree.
	StorageDir StorageType = "dir"
)

// TriggerType selects the downstream signal transport.
type TriggerType string

const (
	TriggerHTTP TriggerType = "http"
	TriggerNATS TriggerType = "nats"
)

// TriggerPolicy decides whether the trigger fires after partial upload failure.
type TriggerPolicy string

const (
	// TriggerBestEffort always fires once uploads settle.
	TriggerBestEffort TriggerPolicy = "best_effort"
	// TriggerFailFast fires only when every upload succeeded.
	TriggerFailFast TriggerPolicy = "fail_fast"
)

// TriggerConfig configures the downstream rebuild signal.
type TriggerConfig struct {
	Type    TriggerType   `yaml:"type,omitempty"`
	URL     string        `yaml:"url,omitempty"`
	Method  string        `yaml:"method,omitempty"`
	NATSURL string        `yaml:"nats_url,omitempty"`
	Subject string        `yaml:"subject,omitempty"`
	Policy  TriggerPolicy `yaml:"policy,omitempty"`
	Timeout string        `yaml:"timeout,omitempty"`
}

// Enabled reports whether a destination is configured for the selected transport.
func (t TriggerConfig) Enabled() bool {
	switch t.Type {
	case TriggerNATS:
		return t.NATSURL != "" && t.Subject != ""
	default:
		return t.URL != ""
	}
}

// DaemonConfig configures periodic runs.
type DaemonConfig struct {
	Interval    string `yaml:"interval,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	WatchConfig bool   `yaml:"watch_config,omitempty"`
}

// HistoryConfig configures the run history store; empty Path disables it.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, dberrors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, dberrors.ConfigError("failed to read config file").WithCause(err).WithContext("path", configPath).Build()
	}
	return Parse(data)
}

// Parse expands environment variables in raw YAML, unmarshals it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, dberrors.ConfigError("failed to unmarshal config").WithCause(err).Build()
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		ConfigSource: ConfigSourceConfig{
			Owner:     "example-org",
			Repo:      "build-config",
			Ref:       "master",
			NodesPath: "nodes.json",
			TreePath:  "content.json",
			Token:     "${GITHUB_TOKEN}",
		},
		Compile: CompileConfig{
			Branch:  "master",
			Command: "pdflatex",
			Timeout: "10m",
		},
		Engine: EngineConfig{
			DownloadsDir: "/tmp/downloads",
			StorageDir:   "/tmp/storage",
		},
		Storage: StorageConfig{
			Type:      StorageS3,
			Endpoint:  "s3.amazonaws.com",
			Region:    "us-east-1",
			AccessKey: "${S3_ACCESS_KEY_ID}",
			SecretKey: "${S3_SECRET_ACCESS_KEY}",
			Bucket:    "compiled-documents",
			UseSSL:    true,
		},
		Trigger: TriggerConfig{
			Type:   TriggerHTTP,
			URL:    "${REBUILD_HOOK_URL}",
			Policy: TriggerBestEffort,
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// duration parses a configured duration string, falling back when empty or invalid.
func duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// TimeoutDuration returns the per-request timeout for config fetches.
func (c ConfigSourceConfig) TimeoutDuration() time.Duration { return duration(c.Timeout, 30*time.Second) }

// TimeoutDuration returns the per-unit compile deadline.
func (c CompileConfig) TimeoutDuration() time.Duration { return duration(c.Timeout, 10*time.Minute) }

// TimeoutDuration returns the per-upload deadline.
func (c StorageConfig) TimeoutDuration() time.Duration { return duration(c.Timeout, 5*time.Minute) }

// TimeoutDuration returns the trigger call deadline.
func (t TriggerConfig) TimeoutDuration() time.Duration { return duration(t.Timeout, 30*time.Second) }

// IntervalDuration returns the daemon run interval.
func (d DaemonConfig) IntervalDuration() time.Duration { return duration(d.Interval, time.Hour) }

// InitialDelayDuration returns the first retry delay.
func (r RetryConfig) InitialDelayDuration() time.Duration { return duration(r.InitialDelay, 0) }

// MaxDelayDuration returns the retry delay cap.
func (r RetryConfig) MaxDelayDuration() time.Duration { return duration(r.MaxDelay, 0) }
