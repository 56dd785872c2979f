package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment  string             `yaml:"environment" default:"development" validate:"required"`
	Log          LogConfig          `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Engine       EngineConfig       `yaml:"engine"`
	Evaluator    EvaluatorConfig    `yaml:"evaluator"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	History      HistoryConfig      `yaml:"history"`
	Notification NotificationConfig `yaml:"notification"`
	Redis        RedisConfig        `yaml:"redis"`
	Queue        QueueConfig        `yaml:"queue"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	ClickHouse   ClickHouseConfig   `yaml:"clickhouse"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout" validate:"required"`
	// Error logs are aggregated and shipped to kafka.topics.logs when Kafka is enabled.
	CollectInterval  time.Duration `yaml:"collect_interval" default:"30s"`
	CollectThreshold int           `yaml:"collect_threshold" default:"100"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	// Per client IP; zero disables throttling.
	RatePerSec float64 `yaml:"rate_per_sec" default:"0" validate:"gte=0"`
	RateBurst  int     `yaml:"rate_burst" default:"20" validate:"gte=1"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type EngineConfig struct {
	MinConfidence    float64       `yaml:"min_confidence" default:"0.5" validate:"gte=0,lte=1"`
	SignalExpiry     time.Duration `yaml:"signal_expiry" default:"24h" validate:"gt=0"`
	RulesFile        string        `yaml:"rules_file"`
	LoadDefaultRules bool          `yaml:"load_default_rules" default:"true"`
}

type EvaluatorConfig struct {
	Weights WeightsConfig `yaml:"weights"`
}

type WeightsConfig struct {
	Strength      float64 `yaml:"strength" default:"0.4" validate:"gte=0,lte=1"`
	Confidence    float64 `yaml:"confidence" default:"0.3" validate:"gte=0,lte=1"`
	AIAnalysis    float64 `yaml:"ai_analysis" default:"0.2" validate:"gte=0,lte=1"`
	MarketContext float64 `yaml:"market_context" default:"0.1" validate:"gte=0,lte=1"`
}

type ClassifierConfig struct {
	StrengthThresholds   StrengthThresholds   `yaml:"strength_thresholds"`
	ConfidenceThresholds ConfidenceThresholds `yaml:"confidence_thresholds"`
}

// Ordering of the bands is checked by the classifier itself.
type StrengthThresholds struct {
	Extreme int `yaml:"extreme" default:"9" validate:"gte=0,lte=10"`
	Strong  int `yaml:"strong" default:"7" validate:"gte=0,lte=10"`
	Medium  int `yaml:"medium" default:"5" validate:"gte=0,lte=10"`
	Weak    int `yaml:"weak" default:"3" validate:"gte=0,lte=10"`
}

type ConfidenceThresholds struct {
	High   float64 `yaml:"high" default:"0.8" validate:"gte=0,lte=1"`
	Medium float64 `yaml:"medium" default:"0.5" validate:"gte=0,lte=1"`
	Low    float64 `yaml:"low" default:"0.3" validate:"gte=0,lte=1"`
}

type HistoryConfig struct {
	MaxSize           int    `yaml:"max_size" default:"10000" validate:"gte=0"`
	ExpirySchedule    string `yaml:"expiry_schedule" default:"@every 1m"`
	RetentionDays     int    `yaml:"retention_days" default:"0" validate:"gte=0"`
	RetentionSchedule string `yaml:"retention_schedule" default:"@daily"`
}

type NotificationConfig struct {
	Enabled           bool           `yaml:"enabled" default:"true"`
	DefaultThresholds map[string]int `yaml:"default_thresholds"`
	ChannelTimeout    time.Duration  `yaml:"channel_timeout" default:"5s" validate:"gt=0"`
	HistoryLimit      int            `yaml:"history_limit" default:"1000" validate:"gte=1"`
	UserRatePerSec    float64        `yaml:"user_rate_per_sec" default:"0" validate:"gte=0"`
	UserBurst         int            `yaml:"user_burst" default:"5" validate:"gte=1"`
	Webhook           WebhookConfig  `yaml:"webhook"`
}

type WebhookConfig struct {
	Timeout         time.Duration `yaml:"timeout" default:"5s"`
	BreakerFailures uint32        `yaml:"breaker_failures" default:"5" validate:"gte=1"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" default:"30s"`
	// Secret signs webhook bodies (X-Signature). Empty disables signing.
	Secret    string `yaml:"secret"`
	UserAgent string `yaml:"user_agent" default:"signalengine-webhook"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host" default:"localhost"`
	Port     int           `yaml:"port" default:"6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix" default:"signalengine"`
	PoolSize int           `yaml:"pool_size" default:"10"`
	LockTTL  time.Duration `yaml:"lock_ttl" default:"5s"`
	// L1 lifetime of the in-process layer in front of Redis.
	LocalTTL time.Duration `yaml:"local_ttl" default:"30s"`
}

type QueueConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
	RetryLimit int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
	// MaxRetryDelay caps the exponential backoff between attempts.
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" default:"5m"`
	PollInterval  time.Duration `yaml:"poll_interval" default:"1s"`
	// Reclaim requeues jobs a crashed instance left in flight. Enable it only
	// when one instance consumes the queue.
	Reclaim bool `yaml:"reclaim"`
}

type KafkaConfig struct {
	Enabled      bool           `yaml:"enabled"`
	Brokers      []string       `yaml:"brokers" validate:"required_if=Enabled true"`
	RequiredAcks int            `yaml:"required_acks" default:"-1"`
	Compression  string         `yaml:"compression" default:"snappy"`
	Topics       TopicsConfig   `yaml:"topics"`
	Producer     ProducerConfig `yaml:"producer"`
	Consumer     ConsumerConfig `yaml:"consumer"`
}

type TopicsConfig struct {
	AIAnalysis    string `yaml:"ai_analysis" default:"signalengine.ai_analysis"`
	Outcomes      string `yaml:"outcomes" default:"signalengine.outcomes"`
	Signals       string `yaml:"signals" default:"signalengine.signals"`
	Notifications string `yaml:"notifications" default:"signalengine.notifications"`
	Logs          string `yaml:"logs" default:"signalengine.logs"`
}

type ProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"5"`
	Linger       time.Duration `yaml:"linger" default:"10ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

type ConsumerConfig struct {
	GroupID string `yaml:"group_id" default:"signalengine"`
	// StartOffset is used by a group with no committed offset.
	StartOffset string        `yaml:"start_offset" default:"earliest" validate:"oneof=earliest latest"`
	Workers     int           `yaml:"workers" default:"4" validate:"gte=1"`
	BufferSize  int           `yaml:"buffer_size" default:"256"`
	RetryMax    int           `yaml:"retry_max" default:"3"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"200ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic    string        `yaml:"dlq_topic" default:"signalengine.dlq"`
	MinBytes    int           `yaml:"min_bytes" default:"1"`
	MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"signalengine"`
	Table            string        `yaml:"table" default:"signal_history"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert" default:"true"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

var validate = validator.New()

// Default returns a configuration holding only default values.
func Default() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return c
}

// Load reads and parses a YAML configuration file. Missing keys take their
// default values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("SIGNALENGINE_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, err := splitHostPort(v, c.Redis.Port)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR: %w", err)
		}
		c.Redis.Host, c.Redis.Port = host, port
		c.Redis.Enabled = true
	}
	if v := getenv("WEBHOOK_SECRET"); v != "" {
		c.Notification.Webhook.Secret = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	return nil
}

func splitHostPort(addr string, defPort int) (string, int, error) {
	host, portStr, found := strings.Cut(addr, ":")
	if !found {
		return host, defPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// Validate checks struct tags, then the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	w := c.Evaluator.Weights
	if sum := w.Strength + w.Confidence + w.AIAnalysis + w.MarketContext; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("evaluator.weights must sum to 1, got %.4f", sum)
	}
	for typ, v := range c.Notification.DefaultThresholds {
		if v < 0 || v > 10 {
			return fmt.Errorf("notification.default_thresholds.%s must be within [0,10], got %d", typ, v)
		}
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue.enabled requires redis.enabled")
	}
	return nil
}
