package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RateLimit struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type Mongo struct {
	URI                string `mapstructure:"uri"`
	Database           string `mapstructure:"database"`
	RoomsCollection    string `mapstructure:"rooms_collection"`
	UsersCollection    string `mapstructure:"users_collection"`
	MessagesCollection string `mapstructure:"messages_collection"`
}

type Auth struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	LogLevel     string        `mapstructure:"log_level"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	SlowConsumer string        `mapstructure:"slow_consumer"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	ShutdownWait time.Duration `mapstructure:"shutdown_wait"`
	RateLimit    RateLimit     `mapstructure:"rate_limit"`
	Mongo        Mongo         `mapstructure:"mongo"`
	Auth         Auth          `mapstructure:"auth"`
	ICEServers   []ICEServer   `mapstructure:"ice_servers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("slow_consumer", "kick")
	v.SetDefault("store_timeout", "5s")
	v.SetDefault("shutdown_wait", "10s")
	v.SetDefault("rate_limit.messages", 20)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongo.database", "relay")
	v.SetDefault("mongo.rooms_collection", "rooms")
	v.SetDefault("mongo.users_collection", "users")
	v.SetDefault("mongo.messages_collection", "messages")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev when unset) and lets
// RELAY_* environment variables override any key, e.g. RELAY_MONGO_URI.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("slow_consumer", cfg.SlowConsumer).
		Str("database", cfg.Mongo.Database).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.SlowConsumer {
	case "kick", "drop":
	default:
		return fmt.Errorf("slow_consumer must be kick or drop, got %q", c.SlowConsumer)
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)", c.PingPeriod, c.PongWait)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	return nil
}
