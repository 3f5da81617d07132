package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		LogLevel:  "INFO",
		Region:    "us-east-1",
		Partition: "aws",
		Queue: QueueConfig{
			Backend:     BackendSQS,
			BatchSize:   10,
			WaitSeconds: 20,
			RabbitMQ:    *models.DefaultRabbitMQConfig(),
		},
		Fetch: FetchConfig{
			Workers:       5,
			CallTimeout:   "30s",
			MaxAttempts:   1,
			Language:      "en",
			SupportRegion: "us-east-1",
		},
	}
}

// Load builds the configuration from an optional YAML file, an optional .env
// file in the working directory and the process environment, in that order.
// An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, formatYAMLError(path, err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Region, "AWS_REGION")
	setString(&cfg.Partition, "AWS_PARTITION")
	setString(&cfg.Store.Bucket, "S3_BUCKET_NAME")
	setString(&cfg.Store.Prefix, "S3_PREFIX_PATH")
	setString(&cfg.Queue.URL, "FETCH_TRUSTED_ADVISOR_ACCOUNTS_QUEUE_URL")
	setString(&cfg.Queue.Backend, "QUEUE_BACKEND")
	setString(&cfg.Queue.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&cfg.Queue.RabbitMQ.QueueName, "RABBITMQ_QUEUE")
	setString(&cfg.Roles.Admin, "ASSUME_ROLE_ADMIN_NAME")
	setString(&cfg.Roles.Member, "ASSUME_ROLE_MEMBER_NAME")
	setString(&cfg.Fetch.CallTimeout, "API_CALL_TIMEOUT")
	setString(&cfg.Fetch.SupportRegion, "SUPPORT_REGION")
	setString(&cfg.LedgerPath, "LEDGER_PATH")

	if v := os.Getenv("ACCOUNT_IDS"); v != "" {
		cfg.Accounts = splitList(v)
	}
	if err := setInt(&cfg.Fetch.Workers, "FETCH_WORKERS"); err != nil {
		return err
	}
	if err := setInt(&cfg.Fetch.MaxAttempts, "API_MAX_ATTEMPTS"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return models.NewError(models.ConfigInvalid, "env "+key, fmt.Errorf("%q is not an integer", v))
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validate(cfg *Config) error {
	invalid := func(format string, args ...any) error {
		return models.NewError(models.ConfigInvalid, "validate", fmt.Errorf(format, args...))
	}

	switch cfg.Queue.Backend {
	case BackendSQS, BackendRabbitMQ:
	default:
		return invalid("unknown queue backend %q, must be one of: sqs, rabbitmq", cfg.Queue.Backend)
	}
	if cfg.Queue.BatchSize < 1 || cfg.Queue.BatchSize > 10 {
		return invalid("queue batch_size must be between 1 and 10, got %d", cfg.Queue.BatchSize)
	}
	if cfg.Fetch.Workers < 1 {
		return invalid("fetch workers must be at least 1, got %d", cfg.Fetch.Workers)
	}
	if cfg.Fetch.MaxAttempts < 1 {
		return invalid("fetch max_attempts must be at least 1, got %d", cfg.Fetch.MaxAttempts)
	}
	if _, err := time.ParseDuration(cfg.Fetch.CallTimeout); err != nil {
		return invalid("fetch call_timeout %q: %v", cfg.Fetch.CallTimeout, err)
	}
	for i, acct := range cfg.Accounts {
		if strings.TrimSpace(acct) == "" {
			return invalid("account #%d is empty", i+1)
		}
	}
	return nil
}

func formatYAMLError(path string, err error) error {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) || strings.Contains(err.Error(), "line") {
		return fmt.Errorf("syntax error in %s: %s", path, err)
	}
	return fmt.Errorf("failed to parse %s: %s", path, err)
}
