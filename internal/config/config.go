package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/cb3tech/moshcast-live/pkg/config"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Session   SessionConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Sync      SyncConfig
	Transport TransportConfig
	Library   LibraryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// SessionConfig selects the relay's session store backend.
type SessionConfig struct {
	Store string // "memory" or "redis"
	TTL   time.Duration
}

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string `mapstructure:"key_prefix"`
}

// KafkaConfig configures the optional chat audit pipeline.
type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type AuthConfig struct {
	Secret        string
	TokenDuration time.Duration `mapstructure:"token_duration"`
	Issuer        string
}

// SyncConfig holds the tunable protocol constants. The defaults are
// empirical, not contractual; operators may adjust them.
type SyncConfig struct {
	PublishThrottle time.Duration `mapstructure:"publish_throttle"`
	SnapshotEvery   time.Duration `mapstructure:"snapshot_every"`
	DriftThreshold  float64       `mapstructure:"drift_threshold"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	MaxListeners    int           `mapstructure:"max_listeners"`
}

type TransportConfig struct {
	ReconnectMin time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

type LibraryConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	v.BindEnv("server.port", "PORT")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("auth.secret", "AUTH_SECRET")
	v.BindEnv("library.base_url", "LIBRARY_BASE_URL")
	v.BindEnv("library.token", "LIBRARY_TOKEN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Session.TTL = parseDuration(v, "session.ttl", 30*time.Second)
	cfg.Auth.TokenDuration = parseDuration(v, "auth.token_duration", 24*time.Hour)
	cfg.Sync.PublishThrottle = parseDuration(v, "sync.publish_throttle", 500*time.Millisecond)
	cfg.Sync.SnapshotEvery = parseDuration(v, "sync.snapshot_every", 10*time.Second)
	cfg.Sync.TickInterval = parseDuration(v, "sync.tick_interval", time.Second)
	cfg.Transport.ReconnectMin = parseDuration(v, "transport.reconnect_min", time.Second)
	cfg.Transport.ReconnectMax = parseDuration(v, "transport.reconnect_max", 30*time.Second)
	cfg.Transport.DialTimeout = parseDuration(v, "transport.dial_timeout", 10*time.Second)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", "30s")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "moshcast:session:")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "moshcast-chat")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_duration", "24h")
	v.SetDefault("auth.issuer", "moshcast")
	v.SetDefault("sync.publish_throttle", "500ms")
	v.SetDefault("sync.snapshot_every", "10s")
	v.SetDefault("sync.drift_threshold", 2.0)
	v.SetDefault("sync.tick_interval", "1s")
	v.SetDefault("sync.max_listeners", 50)
	v.SetDefault("transport.reconnect_min", "1s")
	v.SetDefault("transport.reconnect_max", "30s")
	v.SetDefault("transport.dial_timeout", "10s")
	v.SetDefault("library.base_url", "http://localhost:8080/api")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
