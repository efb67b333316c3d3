// Package config loads the service configuration from an optional
// config.yaml, defaults and LOTTERY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/logger"
	"github.com/spf13/viper"

	"ticketlottery/internal/models"
	"ticketlottery/internal/random"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Store     StoreConfig      `mapstructure:"store"`
	RateLimit RateLimitConfig  `mapstructure:"rate_limit"`
	Tickets   TicketsConfig    `mapstructure:"tickets"`
	Draw      DrawConfig       `mapstructure:"draw"`
	Events    EventsConfig     `mapstructure:"events"`
	Campaigns []CampaignConfig `mapstructure:"campaigns"`
	Log       LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // memory | mysql
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RateLimitConfig struct {
	Backend       string        `mapstructure:"backend"` // memory | redis
	Window        time.Duration `mapstructure:"window"`
	MaxPerWindow  int           `mapstructure:"max_per_window"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type TicketsConfig struct {
	NumberWidth       int `mapstructure:"number_width"`
	MaxNumberAttempts int `mapstructure:"max_number_attempts"`
}

type DrawConfig struct {
	// RequireDrawDate refuses drawings before the lottery's draw date.
	RequireDrawDate bool `mapstructure:"require_draw_date"`
	// AutoSchedule is a cron spec; empty disables automatic drawings.
	AutoSchedule string `mapstructure:"auto_schedule"`
}

type EventsConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig enables the Kafka publisher when Brokers is not empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type CampaignConfig struct {
	ID              string `mapstructure:"id"`
	LotteryEligible bool   `mapstructure:"lottery_eligible"`
	Status          string `mapstructure:"status"`
	EndDate         string `mapstructure:"end_date"` // RFC 3339
}

type LogConfig struct {
	Verbose bool   `mapstructure:"verbose"`
	File    string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.auto_migrate", true)

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.window", 5*time.Minute)
	v.SetDefault("rate_limit.max_per_window", 100)
	v.SetDefault("rate_limit.prune_interval", time.Minute)
	v.SetDefault("rate_limit.redis.addr", "localhost:6379")
	v.SetDefault("rate_limit.redis.password", "")
	v.SetDefault("rate_limit.redis.db", 0)
	v.SetDefault("rate_limit.redis.key_prefix", "lottery:")

	v.SetDefault("tickets.number_width", random.DefaultNumberWidth)
	v.SetDefault("tickets.max_number_attempts", 16)

	v.SetDefault("draw.require_draw_date", true)
	v.SetDefault("draw.auto_schedule", "")

	v.SetDefault("events.kafka.brokers", []string{})
	v.SetDefault("events.kafka.topic", "lottery-events")

	v.SetDefault("log.verbose", false)
	v.SetDefault("log.file", "")
}

// Load reads config.yaml from dir if it exists. Environment variables such
// as LOTTERY_RATE_LIMIT_MAX_PER_WINDOW override file values.
func Load(dir string) (*Config, error) {
	v, err := newViper(dir)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch reloads config.yaml from dir on every change and hands each valid
// result to onChange. Invalid edits are logged and skipped.
func Watch(dir string, onChange func(*Config)) error {
	v, err := newViper(dir)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return ErrNoConfigFile
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			logger.Errorf("Ignoring config change in %s: %v", e.Name, err)
			return
		}
		logger.Infof("Config reloaded from %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// ErrNoConfigFile is returned by Watch when dir holds no config.yaml.
var ErrNoConfigFile = errors.New("config: no config file to watch")

func newViper(dir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("LOTTERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "mysql":
		if c.Store.DSN == "" {
			return errors.New("config: store.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown rate_limit.backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxPerWindow <= 0 {
		return errors.New("config: rate_limit.window and rate_limit.max_per_window must be positive")
	}
	if c.RateLimit.PruneInterval <= 0 {
		return errors.New("config: rate_limit.prune_interval must be positive")
	}

	if c.Tickets.NumberWidth < 1 || c.Tickets.NumberWidth > random.MaxNumberWidth {
		return fmt.Errorf("config: tickets.number_width must be between 1 and %d", random.MaxNumberWidth)
	}

	_, err := c.CampaignList()
	return err
}

// CampaignList converts the configured campaigns.
func (c *Config) CampaignList() ([]models.Campaign, error) {
	out := make([]models.Campaign, 0, len(c.Campaigns))
	for _, cc := range c.Campaigns {
		if cc.ID == "" {
			return nil, errors.New("config: campaign without id")
		}
		end, err := time.Parse(time.RFC3339, cc.EndDate)
		if err != nil {
			return nil, fmt.Errorf("config: campaign %s end_date: %w", cc.ID, err)
		}
		status := cc.Status
		if status == "" {
			status = models.CampaignStatusActive
		}
		out = append(out, models.Campaign{
			ID:              cc.ID,
			LotteryEligible: cc.LotteryEligible,
			Status:          strings.ToUpper(status),
			EndDate:         end,
		})
	}
	return out, nil
}
