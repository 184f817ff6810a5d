package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Limiter strategies.
const (
	StrategyFixedWindow = "fixed_window"
	StrategyTokenBucket = "token_bucket"
)

// Provider kinds.
const (
	KindSimulated = "mock"
	KindSMTP      = "smtp"
)

// Config is the complete process configuration.
type Config struct {
	Listen          string        `yaml:"listen"`
	HealthListen    string        `yaml:"health_listen"`
	APIPrefix       string        `yaml:"api_prefix"`
	AllowNetworks   []string      `yaml:"allow_networks"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Sender          string        `yaml:"sender"`
	Hostname        string        `yaml:"hostname"`

	TLS      TLSConfig      `yaml:"tls"`
	Log      LogConfig      `yaml:"log"`
	Limiter  LimiterConfig  `yaml:"limiter"`
	Retry    RetryConfig    `yaml:"retry"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Queue    QueueConfig    `yaml:"queue"`
	Journal  JournalConfig  `yaml:"journal"`
	DKIM     DKIMConfig     `yaml:"dkim"`
	Primary  ProviderConfig `yaml:"primary"`
	Fallback ProviderConfig `yaml:"fallback"`
}

// TLSConfig names the API certificate and key. Both empty serves plain HTTP.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// LimiterConfig sizes the admission budget: Limit attempts per Window.
type LimiterConfig struct {
	Strategy string        `yaml:"strategy"`
	Limit    int           `yaml:"limit"`
	Window   time.Duration `yaml:"window"`
}

// RetryConfig bounds each attempt: MaxRetries tries with the wait doubling
// from InitialBackoff.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// BreakerConfig configures the circuit breakers. When Shared is set the
// primary and fallback providers share one failure domain.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Timeout   time.Duration `yaml:"timeout"`
	Shared    bool          `yaml:"shared"`
}

// QueueConfig controls replay of deferred attempts.
type QueueConfig struct {
	// DrainSchedule is a cron spec ("@every 1m", "*/5 * * * *"). Empty disables
	// scheduled draining; POST /process-queue always works.
	DrainSchedule string `yaml:"drain_schedule"`
}

// JournalConfig enables the outcome journal when Dir is set.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// DKIMConfig configures signing for the SMTP provider. The key comes from
// PrivateKey or, if that is empty, from KeyPath.
type DKIMConfig struct {
	Selector   string `yaml:"selector"`
	Domain     string `yaml:"domain"`
	KeyPath    string `yaml:"key_path"`
	PrivateKey string `yaml:"private_key"`
}

// Enabled reports whether any DKIM setting is present.
func (d DKIMConfig) Enabled() bool {
	return d.Selector != "" || d.KeyPath != "" || d.PrivateKey != "" || d.Domain != ""
}

// ProviderConfig describes one delivery capability. FailureRate and Latency
// apply to the simulated kind; SMTPPort and DialTimeout to the smtp kind.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind"`
	FailureRate float64       `yaml:"failure_rate"`
	Latency     time.Duration `yaml:"latency"`
	SMTPPort    string        `yaml:"smtp_port"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:          ":3000",
		HealthListen:    ":8080",
		APIPrefix:       "/api/email",
		ShutdownTimeout: 10 * time.Second,
		Sender:          "courier@localhost",
		Log:             LogConfig{Level: "info", Format: "console"},
		Limiter:         LimiterConfig{Strategy: StrategyFixedWindow, Limit: 10, Window: time.Minute},
		Retry:           RetryConfig{MaxRetries: 3, InitialBackoff: time.Second},
		Breaker:         BreakerConfig{Threshold: 5, Timeout: 30 * time.Second},
		Primary: ProviderConfig{
			Name:        "Primary",
			Kind:        KindSimulated,
			FailureRate: 0.3,
			Latency:     100 * time.Millisecond,
			SMTPPort:    "25",
			DialTimeout: 30 * time.Second,
		},
		Fallback: ProviderConfig{
			Name:        "Fallback",
			Kind:        KindSimulated,
			FailureRate: 0.1,
			Latency:     100 * time.Millisecond,
			SMTPPort:    "25",
			DialTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and COURIER_* environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := String("PORT", ""); port != "" {
		cfg.Listen = ":" + strings.TrimPrefix(port, ":")
	}
	cfg.Listen = String("COURIER_LISTEN", cfg.Listen)
	cfg.HealthListen = String("COURIER_HEALTH_LISTEN", cfg.HealthListen)
	cfg.APIPrefix = String("COURIER_API_PREFIX", cfg.APIPrefix)
	cfg.AllowNetworks = List("COURIER_ALLOW_NETWORKS", cfg.AllowNetworks)
	cfg.Sender = String("COURIER_SENDER", cfg.Sender)
	cfg.Hostname = String("COURIER_HOSTNAME", cfg.Hostname)

	cfg.TLS.CertFile = String("COURIER_TLS_CERT", cfg.TLS.CertFile)
	cfg.TLS.KeyFile = String("COURIER_TLS_KEY", cfg.TLS.KeyFile)

	cfg.Log.Level = String("COURIER_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = String("COURIER_LOG_FORMAT", cfg.Log.Format)

	cfg.Limiter.Strategy = String("COURIER_LIMITER_STRATEGY", cfg.Limiter.Strategy)
	cfg.Limiter.Limit = Int("COURIER_RATE_LIMIT", cfg.Limiter.Limit)
	cfg.Limiter.Window = Duration("COURIER_RATE_WINDOW", cfg.Limiter.Window)

	cfg.Retry.MaxRetries = Int("COURIER_MAX_RETRIES", cfg.Retry.MaxRetries)
	cfg.Retry.InitialBackoff = Duration("COURIER_INITIAL_BACKOFF", cfg.Retry.InitialBackoff)

	cfg.Breaker.Threshold = Int("COURIER_BREAKER_THRESHOLD", cfg.Breaker.Threshold)
	cfg.Breaker.Timeout = Duration("COURIER_BREAKER_TIMEOUT", cfg.Breaker.Timeout)
	cfg.Breaker.Shared = Bool("COURIER_BREAKER_SHARED", cfg.Breaker.Shared)

	cfg.Queue.DrainSchedule = String("COURIER_DRAIN_SCHEDULE", cfg.Queue.DrainSchedule)
	cfg.Journal.Dir = String("COURIER_JOURNAL_DIR", cfg.Journal.Dir)

	cfg.DKIM.Selector = String("COURIER_DKIM_SELECTOR", cfg.DKIM.Selector)
	cfg.DKIM.Domain = String("COURIER_DKIM_DOMAIN", cfg.DKIM.Domain)
	cfg.DKIM.KeyPath = String("COURIER_DKIM_KEY_PATH", cfg.DKIM.KeyPath)
	if key := os.Getenv("COURIER_DKIM_PRIVATE_KEY"); key != "" {
		cfg.DKIM.PrivateKey = key
	}

	cfg.Primary.Kind = String("COURIER_PRIMARY_KIND", cfg.Primary.Kind)
	cfg.Primary.FailureRate = Float("COURIER_PRIMARY_FAILURE_RATE", cfg.Primary.FailureRate)
	cfg.Fallback.Kind = String("COURIER_FALLBACK_KIND", cfg.Fallback.Kind)
	cfg.Fallback.FailureRate = Float("COURIER_FALLBACK_FAILURE_RATE", cfg.Fallback.FailureRate)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Limiter.Limit < 1 {
		errs = append(errs, fmt.Errorf("limiter.limit must be positive, got %d", c.Limiter.Limit))
	}
	if c.Limiter.Window <= 0 {
		errs = append(errs, fmt.Errorf("limiter.window must be positive, got %v", c.Limiter.Window))
	}
	switch c.Limiter.Strategy {
	case StrategyFixedWindow, StrategyTokenBucket:
	default:
		errs = append(errs, fmt.Errorf("limiter.strategy %q is not supported", c.Limiter.Strategy))
	}
	if c.Retry.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("retry.max_retries must be positive, got %d", c.Retry.MaxRetries))
	}
	if c.Retry.InitialBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry.initial_backoff must not be negative"))
	}
	if c.Breaker.Threshold < 1 {
		errs = append(errs, fmt.Errorf("breaker.threshold must be positive, got %d", c.Breaker.Threshold))
	}
	if c.Breaker.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("breaker.timeout must be positive"))
	}
	for _, p := range []ProviderConfig{c.Primary, c.Fallback} {
		switch p.Kind {
		case KindSimulated, KindSMTP:
		default:
			errs = append(errs, fmt.Errorf("provider %q: kind %q is not supported", p.Name, p.Kind))
		}
		if p.FailureRate < 0 || p.FailureRate > 1 {
			errs = append(errs, fmt.Errorf("provider %q: failure_rate must be within [0,1]", p.Name))
		}
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
