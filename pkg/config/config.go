package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"MempoolOracle/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string          `yaml:"environment" default:"development" validate:"required"`
	Log         logger.Config   `yaml:"log"`
	Server      ServerConfig    `yaml:"server"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Feed        FeedConfig      `yaml:"feed"`
	Filter      FilterConfig    `yaml:"filter"`
	Pricing     PricingConfig   `yaml:"pricing"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	Broadcast   BroadcastConfig `yaml:"broadcast"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	Redis       RedisConfig     `yaml:"redis"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s" validate:"gt=0"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms"`
	CORS            *bool         `yaml:"cors" default:"true"`
}

type MetricsConfig struct {
	Enabled *bool `yaml:"enabled" default:"true"`
}

type FeedConfig struct {
	Type           string        `yaml:"type" default:"zmq" validate:"oneof=zmq kafka"`
	Endpoint       string        `yaml:"endpoint" default:"tcp://127.0.0.1:28332"`
	Topic          string        `yaml:"topic" default:"rawtx" validate:"required"`
	GroupID        string        `yaml:"group_id" default:"mempool-oracle"`
	Network        string        `yaml:"network" default:"mainnet" validate:"oneof=mainnet testnet testnet3 regtest signet"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"60s" validate:"gt=0"`
	BackoffInitial time.Duration `yaml:"backoff_initial" default:"1s" validate:"gt=0"`
	BackoffMax     time.Duration `yaml:"backoff_max" default:"30s" validate:"gtefield=BackoffInitial"`
	FailThreshold  int           `yaml:"fail_threshold" default:"5" validate:"min=1"`
	Buffer         int           `yaml:"buffer" default:"1024" validate:"min=1"`
	Addresses      bool          `yaml:"addresses"`
}

type FilterConfig struct {
	MinInputs int     `yaml:"min_inputs" default:"1" validate:"min=1"`
	MaxInputs int     `yaml:"max_inputs" default:"5" validate:"gtefield=MinInputs"`
	Outputs   int     `yaml:"outputs" default:"2" validate:"min=1"`
	MinBTC    float64 `yaml:"min_btc" default:"0.00001" validate:"gt=0"`
	MaxBTC    float64 `yaml:"max_btc" default:"100000" validate:"gtfield=MinBTC"`
}

// StencilPeak overrides one entry of the round-amount table.
type StencilPeak struct {
	USD    float64 `yaml:"usd" validate:"gt=0"`
	Weight float64 `yaml:"weight" validate:"gt=0,lte=1"`
}

type PricingConfig struct {
	Window          time.Duration `yaml:"window" default:"3h" validate:"gt=0"`
	MinObservations int           `yaml:"min_observations" default:"50" validate:"min=1"`
	MinRate         float64       `yaml:"min_rate" default:"1000" validate:"gt=0"`
	MaxRate         float64       `yaml:"max_rate" default:"1000000" validate:"gtfield=MinRate"`
	SmoothWeight    float64       `yaml:"smooth_weight" default:"0.02" validate:"gte=0,lte=1"`
	MinSharpness    float64       `yaml:"min_sharpness" default:"0.6" validate:"gte=0,lt=1"`
	Stencil         []StencilPeak `yaml:"stencil" validate:"dive"`
}

type PipelineConfig struct {
	BufferSize int    `yaml:"buffer_size" default:"4096" validate:"min=1"`
	Policy     string `yaml:"policy" default:"drop_oldest" validate:"oneof=drop_oldest block"`
}

type BroadcastConfig struct {
	Interval            time.Duration `yaml:"interval" default:"500ms"`
	ClientQueue         int           `yaml:"client_queue" default:"16" validate:"min=1"`
	WriteTimeout        time.Duration `yaml:"write_timeout" default:"5s" validate:"gt=0"`
	PongWait            time.Duration `yaml:"pong_wait" default:"60s" validate:"gt=0"`
	PingPeriod          time.Duration `yaml:"ping_period" default:"54s" validate:"gt=0,ltfield=PongWait"`
	EvictAfterDrops     int           `yaml:"evict_after_drops" default:"32" validate:"min=0"`
	ConnectBurst        float64       `yaml:"connect_burst" default:"10" validate:"gte=1"`
	ConnectRefillPerSec float64       `yaml:"connect_refill_per_sec" default:"1" validate:"gte=0"`
}

type KafkaConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Brokers        []string      `yaml:"brokers"`
	EstimatesTopic string        `yaml:"estimates_topic" default:"btc.price.estimates"`
	LogsTopic      string        `yaml:"logs_topic"`
	RequiredAcks   int           `yaml:"required_acks" default:"1" validate:"oneof=-1 0 1"`
	Compression    string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts    int           `yaml:"max_attempts" default:"3" validate:"min=1"`
	BatchSize      int           `yaml:"batch_size" default:"1" validate:"min=1"`
	BatchTimeout   time.Duration `yaml:"batch_timeout" default:"10ms"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"5s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"5s"`
	Async          bool          `yaml:"async"`
	LogInterval    time.Duration `yaml:"log_interval" default:"30s"`
	LogMaxEntries  int           `yaml:"log_max_entries" default:"200" validate:"min=1"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host" default:"127.0.0.1"`
	Port     int           `yaml:"port" default:"6379" validate:"min=1,max=65535"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"min=0"`
	Prefix   string        `yaml:"prefix" default:"mempool-oracle"`
	TTL      time.Duration `yaml:"ttl"`
}

// MinBroadcastInterval mirrors the orchestrator's floor so a bad value is
// refused before anything starts.
const MinBroadcastInterval = 500 * time.Millisecond

var validate = validator.New()

// Load reads a YAML file, fills defaults and validates. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

func read(path string) (*Config, error) {
	var c Config
	if path == "" {
		return &c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = c.Pricing.Window
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// LoadWithEnv loads .env (when present), then the YAML file, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FEED_ENDPOINT"); v != "" {
		c.Feed.Endpoint = v
	}
	if v := os.Getenv("FEED_TYPE"); v != "" {
		c.Feed.Type = v
	}
	if v := os.Getenv("FEED_TOPIC"); v != "" {
		c.Feed.Topic = v
	}
	if v := os.Getenv("BITCOIN_NETWORK"); v != "" {
		c.Feed.Network = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_ESTIMATES_TOPIC"); v != "" {
		c.Kafka.EstimatesTopic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR: bad port %q", port)
			}
			c.Redis.Port = p
		}
		c.Redis.Host = host
		c.Redis.Enabled = true
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate runs tag validation plus the checks that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Broadcast.Interval < MinBroadcastInterval {
		return fmt.Errorf("broadcast.interval %s is below the %s minimum", c.Broadcast.Interval, MinBroadcastInterval)
	}
	if c.Feed.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("feed.type kafka requires kafka.brokers")
	}
	if c.Feed.Type == "zmq" && !strings.HasPrefix(c.Feed.Endpoint, "tcp://") && !strings.HasPrefix(c.Feed.Endpoint, "ipc://") {
		return fmt.Errorf("feed.endpoint must be a tcp:// or ipc:// address, got %q", c.Feed.Endpoint)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.EstimatesTopic == "" {
			return fmt.Errorf("kafka.estimates_topic is required when kafka is enabled")
		}
	}
	seen := make(map[float64]bool, len(c.Pricing.Stencil))
	for _, p := range c.Pricing.Stencil {
		if seen[p.USD] {
			return fmt.Errorf("pricing.stencil: duplicate usd %v", p.USD)
		}
		seen[p.USD] = true
	}
	return nil
}

// Addr returns host:port for the Redis section.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
