package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LogConfig         `yaml:"log"`
	HTTP     HTTPConfig        `yaml:"http"`
	Store    StoreConfig       `yaml:"store"`
	Database DatabaseConfig    `yaml:"database"`
	RabbitMQ RabbitMQConfig    `yaml:"rabbitmq"`
	Kafka    KafkaConfig       `yaml:"kafka"`
	Redis    RedisConfig       `yaml:"redis"`
	Events   EventsConfig      `yaml:"events"`
	Sync     SyncConfig        `yaml:"sync"`
	Policy   PolicyConfig      `yaml:"policy"`
	Zones    map[string]string `yaml:"zones"`

	policy *domain.Policy
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type StoreConfig struct {
	// Kind is "postgres" or "memory".
	Kind string `yaml:"kind"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	// Pool settings; zero keeps the pgxpool default.
	MaxConns          int32         `yaml:"max_conns"`
	MinConns          int32         `yaml:"min_conns"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type EventsConfig struct {
	// Bus is "none", "rabbitmq" or "kafka".
	Bus            string        `yaml:"bus"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	QueueSize      int           `yaml:"subscriber_queue_size"`
}

type SyncConfig struct {
	ConnectedInterval    time.Duration `yaml:"connected_interval"`
	DisconnectedInterval time.Duration `yaml:"disconnected_interval"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	FailureThreshold     int           `yaml:"failure_threshold"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
}

type PolicyConfig struct {
	// Roles overrides the default role → allowed statuses table.
	Roles map[string][]string `yaml:"roles"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration for a single in-memory instance.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 3000
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.Store.Kind == "" {
		c.Store.Kind = "memory"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = 5 * time.Second
	}
	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "order-events"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 2 * time.Second
	}
	if c.Events.Bus == "" {
		c.Events.Bus = "none"
	}
	if c.Events.PublishTimeout == 0 {
		c.Events.PublishTimeout = 5 * time.Second
	}
	if c.Events.QueueSize == 0 {
		c.Events.QueueSize = 64
	}
	if c.Sync.ConnectedInterval == 0 {
		c.Sync.ConnectedInterval = 3 * time.Second
	}
	if c.Sync.DisconnectedInterval == 0 {
		c.Sync.DisconnectedInterval = 8 * time.Second
	}
	if c.Sync.ReconnectDelay == 0 {
		c.Sync.ReconnectDelay = 5 * time.Second
	}
	if c.Sync.FailureThreshold == 0 {
		c.Sync.FailureThreshold = 3
	}
	if c.Sync.RequestTimeout == 0 {
		c.Sync.RequestTimeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	switch c.Store.Kind {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}

	switch c.Events.Bus {
	case "none", "rabbitmq":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("events.bus is kafka but kafka.brokers is empty")
		}
	default:
		return fmt.Errorf("unknown events bus %q", c.Events.Bus)
	}

	if c.Database.MinConns > 0 && c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns %d exceeds database.max_conns %d", c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis is enabled but redis.addr is empty")
	}

	policy, err := c.buildPolicy()
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	c.policy = policy
	return nil
}

func (c *Config) buildPolicy() (*domain.Policy, error) {
	if len(c.Policy.Roles) == 0 {
		return domain.DefaultPolicy(), nil
	}

	table := make(map[domain.Role][]domain.Status, len(c.Policy.Roles))
	for roleName, statuses := range c.Policy.Roles {
		role := domain.Role(strings.ToUpper(roleName))
		for _, s := range statuses {
			st, err := domain.ParseStatus(s)
			if err != nil {
				return nil, err
			}
			table[role] = append(table[role], st)
		}
	}
	return domain.NewPolicy(table)
}

// TransitionPolicy is the role permission table validated at load time.
func (c *Config) TransitionPolicy() *domain.Policy {
	return c.policy
}

func (c *Config) ZoneMap() domain.ZoneMap {
	return domain.ZoneMap(c.Zones)
}
