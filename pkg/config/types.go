package config

import (
	"time"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// Queue backends.
const (
	BackendSQS      = "sqs"
	BackendRabbitMQ = "rabbitmq"
)

// Config is the top-level configuration shared by the dispatcher and the collector.
type Config struct {
	LogLevel  string   `yaml:"log_level"`
	Region    string   `yaml:"region"`
	Partition string   `yaml:"partition"`
	Accounts  []string `yaml:"accounts"`

	Queue      QueueConfig `yaml:"queue"`
	Store      StoreConfig `yaml:"store"`
	Roles      RolesConfig `yaml:"roles"`
	Fetch      FetchConfig `yaml:"fetch"`
	LedgerPath string      `yaml:"ledger_path"`
}

// QueueConfig selects and configures the account work queue.
type QueueConfig struct {
	Backend   string `yaml:"backend"`    // "sqs" or "rabbitmq"
	URL       string `yaml:"url"`        // SQS queue URL; empty disables dispatch
	BatchSize int    `yaml:"batch_size"` // entries per submission, at most 10

	// Long-poll wait of the SQS consumer, in seconds
	WaitSeconds int `yaml:"wait_seconds"`

	RabbitMQ models.RabbitMQConfig `yaml:"rabbitmq"`
}

// StoreConfig is where output documents are written.
type StoreConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// RolesConfig names the two roles of the delegation chain.
type RolesConfig struct {
	Admin  string `yaml:"admin"`  // assumed in the collector's own account
	Member string `yaml:"member"` // assumed in each target account
}

// FetchConfig tunes the per-account check collection.
type FetchConfig struct {
	Workers       int    `yaml:"workers"`
	CallTimeout   string `yaml:"call_timeout"`
	MaxAttempts   int    `yaml:"max_attempts"`
	Language      string `yaml:"language"`
	SupportRegion string `yaml:"support_region"`
}

// ParsedCallTimeout returns the per-call timeout as a time.Duration.
func (f FetchConfig) ParsedCallTimeout() time.Duration {
	d, err := time.ParseDuration(f.CallTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// DispatchEnabled reports whether a destination queue is configured.
func (c *Config) DispatchEnabled() bool {
	switch c.Queue.Backend {
	case BackendRabbitMQ:
		return c.Queue.RabbitMQ.URL != ""
	default:
		return c.Queue.URL != ""
	}
}
