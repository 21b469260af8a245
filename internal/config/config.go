package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for a board-server process:
// the board itself, its HTTP/WS surface, the Redis-backed remote
// transport, metrics, and auth.
type Config struct {
	Server   ServerConfig
	Board    BoardConfig
	Redis    RedisConfig
	Remote   RemoteConfig
	Metrics  MetricsConfig
	Auth     AuthConfig
	LogLevel string
}

// ServerConfig configures the HTTP/WS listener.
type ServerConfig struct {
	Host         string
	Port         int
	AdminPort    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// BoardConfig configures the scheduler itself (spec.md §4.8 board_create,
// §6 tunables).
type BoardConfig struct {
	SecondaryCount          int
	MaxConcurrentTasks      int
	WatchdogProgressTimeout time.Duration
}

// RedisConfig configures the Redis client shared by the remote transport
// and the leaked-envelope ledger.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RemoteConfig configures the Redis Streams transport between the board
// and an external adapter process (spec.md §4.5, §4.6).
type RemoteConfig struct {
	OutboundStream string
	InboundStream  string
	ConsumerGroup  string
	Consumer       string
	BlockTimeout   time.Duration
	Concurrency    int
}

// MetricsConfig configures the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// AuthConfig configures JWT/API-key auth on the admin surface.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

// Load reads configuration from (in priority order) environment variables
// prefixed TBOARD_, a config.yaml in the working directory, ./config, or
// /etc/tboard, falling back to the defaults below.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/tboard")

	setDefaults()

	viper.SetEnvPrefix("TBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.adminport", 8081)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 50)

	viper.SetDefault("board.secondarycount", 4)
	viper.SetDefault("board.maxconcurrenttasks", 65536)
	viper.SetDefault("board.watchdogprogresstimeout", 10*time.Second)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 100)
	viper.SetDefault("redis.minidleconns", 10)
	viper.SetDefault("redis.maxretries", 3)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	viper.SetDefault("remote.outboundstream", "tboard:remote:outbound")
	viper.SetDefault("remote.inboundstream", "tboard:remote:inbound")
	viper.SetDefault("remote.consumergroup", "tboard")
	viper.SetDefault("remote.consumer", "board-server")
	viper.SetDefault("remote.blocktimeout", 5*time.Second)
	viper.SetDefault("remote.concurrency", 16)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	viper.SetDefault("loglevel", "info")
}
