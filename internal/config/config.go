package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFileName = "smsgate.yaml"
	DefaultHTTPAddr       = "localhost:8080"
	DefaultNATSURL        = "nats://localhost:4222"
	DefaultRedisAddr      = "localhost:6379"

	DefaultWorkerConcurrency = 10
	DefaultJobTimeout        = 5 * time.Second
	DefaultMaxDeliver        = 5
	DefaultReportRetention   = 24 * time.Hour
)

type GatewayConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Fake     bool   `yaml:"fake"`
}

type CallbackConfig struct {
	BaseURL string `yaml:"base_url"`
	Path    string `yaml:"path"`
	Token   string `yaml:"token"`
}

type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
	MaxDeliver  int           `yaml:"max_deliver"`
}

type Config struct {
	HTTPAddr           string         `yaml:"http_addr"`
	DatabaseURL        string         `yaml:"database_url"`
	NATSURL            string         `yaml:"nats_url"`
	RedisAddr          string         `yaml:"redis_addr"`
	RedisPassword      string         `yaml:"redis_password"`
	RedisDB            int            `yaml:"redis_db"`
	Gateway            GatewayConfig  `yaml:"gateway"`
	Callback           CallbackConfig `yaml:"callback"`
	Worker             WorkerConfig   `yaml:"worker"`
	IntermediateReport bool           `yaml:"intermediate_report"`
	ReportRetention    time.Duration  `yaml:"report_retention"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:  DefaultHTTPAddr,
		NATSURL:   DefaultNATSURL,
		RedisAddr: DefaultRedisAddr,
		Callback: CallbackConfig{
			Path: "/sms-deliveries",
		},
		Worker: WorkerConfig{
			Concurrency: DefaultWorkerConcurrency,
			JobTimeout:  DefaultJobTimeout,
			MaxDeliver:  DefaultMaxDeliver,
		},
		ReportRetention: DefaultReportRetention,
	}
}

func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if !c.Gateway.Fake {
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("gateway.base_url is required unless gateway.fake is set")
		}
		if c.Gateway.Username == "" || c.Gateway.Password == "" {
			return fmt.Errorf("gateway credentials are required unless gateway.fake is set")
		}
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker.job_timeout must be positive")
	}
	return nil
}

// Load reads configuration from a YAML file, then applies SMSGATE_* env
// overrides. A missing file is not an error, defaults still apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SMSGATE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SMSGATE_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SMSGATE_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("SMSGATE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("SMSGATE_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SMSGATE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = db
		}
	}
	if v := os.Getenv("SMSGATE_GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("SMSGATE_GATEWAY_USERNAME"); v != "" {
		cfg.Gateway.Username = v
	}
	if v := os.Getenv("SMSGATE_GATEWAY_PASSWORD"); v != "" {
		cfg.Gateway.Password = v
	}
	if v := os.Getenv("SMSGATE_GATEWAY_FAKE"); v != "" {
		if fake, err := strconv.ParseBool(v); err == nil {
			cfg.Gateway.Fake = fake
		}
	}
	if v := os.Getenv("SMSGATE_CALLBACK_BASE_URL"); v != "" {
		cfg.Callback.BaseURL = v
	}
	if v := os.Getenv("SMSGATE_CALLBACK_TOKEN"); v != "" {
		cfg.Callback.Token = v
	}
	if v := os.Getenv("SMSGATE_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("SMSGATE_WORKER_JOB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.JobTimeout = d
		}
	}
}
