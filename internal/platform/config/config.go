package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SnapshotBackendMemory   = "memory"
	SnapshotBackendFile     = "file"
	SnapshotBackendPostgres = "postgres"
	SnapshotBackendRedis    = "redis"

	MessagingDriverInProcess = "inprocess"
	MessagingDriverKafka     = "kafka"
)

// Config is centralized process configuration.
// Values come from defaults, then an optional YAML file named by CONFIG_FILE,
// then environment variables.
type Config struct {
	ServiceName string `yaml:"service_name"`
	HTTPPort    string `yaml:"http_port"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	RegisterShards     int `yaml:"register_shards"`
	RegisterQueueDepth int `yaml:"register_queue_depth"`

	SnapshotBackend    string        `yaml:"snapshot_backend"`
	SnapshotPath       string        `yaml:"snapshot_path"`
	PostgresDSN        string        `yaml:"postgres_dsn"`
	RedisURL           string        `yaml:"redis_url"`
	SnapshotRedisKey   string        `yaml:"snapshot_redis_key"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	DedupPurgeInterval time.Duration `yaml:"dedup_purge_interval"`

	MessagingDriver    string        `yaml:"messaging_driver"`
	KafkaBrokers       []string      `yaml:"kafka_brokers"`
	KafkaVotesTopic    string        `yaml:"kafka_votes_topic"`
	KafkaEventsTopic   string        `yaml:"kafka_events_topic"`
	KafkaConsumerGroup string        `yaml:"kafka_consumer_group"`
	EnableOutboxRelay  bool          `yaml:"enable_outbox_relay"`
	EnableVoteIngest   bool          `yaml:"enable_vote_ingest"`
	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
}

func Default() Config {
	return Config{
		ServiceName: "istruecaller",
		HTTPPort:    "8080",
		LogLevel:    "info",
		LogFormat:   "json",

		RegisterShards:     16,
		RegisterQueueDepth: 64,

		SnapshotBackend:    SnapshotBackendMemory,
		SnapshotPath:       "data/register.cbor",
		SnapshotRedisKey:   "istruecaller:register:snapshot",
		CheckpointInterval: 30 * time.Second,
		DedupPurgeInterval: time.Hour,

		MessagingDriver:    MessagingDriverInProcess,
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaVotesTopic:    "call.votes.submitted",
		KafkaEventsTopic:   "call.register.events",
		KafkaConsumerGroup: "call-vote-register-ingest-cg",
		EnableOutboxRelay:  true,
		EnableVoteIngest:   false,
		OutboxPollInterval: 2 * time.Second,
	}
}

func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.ServiceName = envString("SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPPort = envString("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("LOG_FORMAT", cfg.LogFormat)

	cfg.RegisterShards = envInt("REGISTER_SHARDS", cfg.RegisterShards)
	cfg.RegisterQueueDepth = envInt("REGISTER_QUEUE_DEPTH", cfg.RegisterQueueDepth)

	cfg.SnapshotBackend = strings.ToLower(envString("SNAPSHOT_BACKEND", cfg.SnapshotBackend))
	cfg.SnapshotPath = envString("SNAPSHOT_PATH", cfg.SnapshotPath)
	cfg.PostgresDSN = envString("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisURL = envString("REDIS_URL", cfg.RedisURL)
	cfg.SnapshotRedisKey = envString("SNAPSHOT_REDIS_KEY", cfg.SnapshotRedisKey)
	cfg.CheckpointInterval = envDuration("CHECKPOINT_INTERVAL", cfg.CheckpointInterval)
	cfg.DedupPurgeInterval = envDuration("DEDUP_PURGE_INTERVAL", cfg.DedupPurgeInterval)

	cfg.MessagingDriver = strings.ToLower(envString("MESSAGING_DRIVER", cfg.MessagingDriver))
	cfg.KafkaBrokers = envList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaVotesTopic = envString("KAFKA_VOTES_TOPIC", cfg.KafkaVotesTopic)
	cfg.KafkaEventsTopic = envString("KAFKA_EVENTS_TOPIC", cfg.KafkaEventsTopic)
	cfg.KafkaConsumerGroup = envString("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.EnableOutboxRelay = envBool("ENABLE_OUTBOX_RELAY", cfg.EnableOutboxRelay)
	cfg.EnableVoteIngest = envBool("ENABLE_VOTE_INGEST", cfg.EnableVoteIngest)
	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.SnapshotBackend {
	case SnapshotBackendMemory, SnapshotBackendFile, SnapshotBackendPostgres, SnapshotBackendRedis:
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND %q is not one of memory, file, postgres, redis", c.SnapshotBackend)
	}
	switch c.MessagingDriver {
	case MessagingDriverInProcess, MessagingDriverKafka:
	default:
		return fmt.Errorf("MESSAGING_DRIVER %q is not one of inprocess, kafka", c.MessagingDriver)
	}
	if c.SnapshotBackend == SnapshotBackendPostgres && strings.TrimSpace(c.PostgresDSN) == "" {
		return fmt.Errorf("POSTGRES_DSN is required for the postgres snapshot backend")
	}
	if c.SnapshotBackend == SnapshotBackendRedis && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required for the redis snapshot backend")
	}
	if c.SnapshotBackend == SnapshotBackendFile && strings.TrimSpace(c.SnapshotPath) == "" {
		return fmt.Errorf("SNAPSHOT_PATH is required for the file snapshot backend")
	}
	if c.MessagingDriver == MessagingDriverKafka && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required for the kafka messaging driver")
	}
	if c.RegisterShards <= 0 {
		return fmt.Errorf("REGISTER_SHARDS must be positive, got %d", c.RegisterShards)
	}
	if c.RegisterQueueDepth <= 0 {
		return fmt.Errorf("REGISTER_QUEUE_DEPTH must be positive, got %d", c.RegisterQueueDepth)
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("CHECKPOINT_INTERVAL must be positive, got %s", c.CheckpointInterval)
	}
	if c.DedupPurgeInterval <= 0 {
		return fmt.Errorf("DEDUP_PURGE_INTERVAL must be positive, got %s", c.DedupPurgeInterval)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", c.OutboxPollInterval)
	}
	return nil
}

func envString(name string, fallback string) string {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		return raw
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envList(name string, fallback []string) []string {
	var items []string
	for _, value := range strings.Split(os.Getenv(name), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			items = append(items, value)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
