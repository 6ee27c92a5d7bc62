package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	ICEServers []string      `mapstructure:"ice_servers"`

	Auth      AuthConfig      `mapstructure:"auth"`
	Rooms     RoomsConfig     `mapstructure:"rooms"`
	Round     RoundConfig     `mapstructure:"round"`
	JoinLimit JoinLimitConfig `mapstructure:"join_limit"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Store     StoreConfig     `mapstructure:"store"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Liveness  LivenessConfig  `mapstructure:"liveness"`
}

type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret"`
	AllowAnonymous bool   `mapstructure:"allow_anonymous"`
	// EvictDuplicates keeps one live connection per user: a new one closes the rest.
	EvictDuplicates bool `mapstructure:"evict_duplicates"`
}

type RoomsConfig struct {
	// AutoCreate lets a join create a room the durable store does not know about.
	AutoCreate bool `mapstructure:"auto_create"`
}

type RoundConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Duration time.Duration `mapstructure:"duration"`
	Total    int           `mapstructure:"total"`
}

type JoinLimitConfig struct {
	Count  int           `mapstructure:"count"`
	Window time.Duration `mapstructure:"window"`
}

type DispatchConfig struct {
	Workers int           `mapstructure:"workers"`
	Queue   int           `mapstructure:"queue"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	RedisAddr string `mapstructure:"redis_addr"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LivenessConfig struct {
	// IdleAfter is how long an in-room client may send nothing before it is
	// asked to restart ICE. Zero disables the sweep.
	IdleAfter time.Duration `mapstructure:"idle_after"`
}

var (
	ErrInvalidRound    = errors.New("round settings must be positive")
	ErrInvalidDispatch = errors.New("dispatch workers and queue must be positive")
	ErrUnknownDriver   = errors.New("unknown store driver")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("log_level", "info")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("auth.allow_anonymous", false)
	v.SetDefault("auth.evict_duplicates", true)
	v.SetDefault("rooms.auto_create", false)

	v.SetDefault("round.interval", "1s")
	v.SetDefault("round.duration", "30s")
	v.SetDefault("round.total", 5)

	v.SetDefault("join_limit.count", 5)
	v.SetDefault("join_limit.window", "10s")

	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.queue", 256)
	v.SetDefault("dispatch.timeout", "3s")

	v.SetDefault("store.driver", "memory")

	v.SetDefault("nats.subject_prefix", "yogasync")

	v.SetDefault("liveness.idle_after", "45s")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of defaults.
// YOGASYNC_* environment variables override both.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("YOGASYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Store: %s\n", cfg.Mode, cfg.Port, cfg.Store.Driver)
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Round.Interval <= 0 || c.Round.Duration <= 0 || c.Round.Total <= 0 {
		return ErrInvalidRound
	}
	if c.Dispatch.Workers <= 0 || c.Dispatch.Queue <= 0 {
		return ErrInvalidDispatch
	}
	switch c.Store.Driver {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Store.Driver)
	}
	return nil
}
