package config

import (
	"fmt"
	"strings"
	"time"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

type Config struct {
	Log        Logger     `mapstructure:"logger"`
	DB         Database   `mapstructure:"database"`
	API        API        `mapstructure:"api"`
	Redis      Redis      `mapstructure:"redis"`
	Queue      Queue      `mapstructure:"queue"`
	Worker     Worker     `mapstructure:"worker"`
	Catalog    Catalog    `mapstructure:"catalog"`
	Validation Validation `mapstructure:"validation"`
	Storage    Storage    `mapstructure:"storage"`
	Cache      Cache      `mapstructure:"cache"`
	Reaper     Reaper     `mapstructure:"reaper"`
}

type Logger struct {
	Level           string `mapstructure:"level"`
	Encoding        string `mapstructure:"encoding"`
	AlertWebhookURL string `mapstructure:"alert_webhook_url"`
}

type Database struct {
	Driver          string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	Path            string `mapstructure:"path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type API struct {
	Port              int     `mapstructure:"port"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Queue struct {
	Driver     string        `mapstructure:"driver" validate:"oneof=redis memory"`
	Name       string        `mapstructure:"name"`
	TTL        time.Duration `mapstructure:"ttl"`
	FailureTTL time.Duration `mapstructure:"failure_ttl"`
}

type Worker struct {
	MaxConcurrency int           `mapstructure:"max_concurrency" validate:"gte=1"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
}

type Catalog struct {
	BaseURL          string        `mapstructure:"base_url"`
	SiteURL          string        `mapstructure:"site_url"`
	APIToken         string        `mapstructure:"api_token"`
	BaseTimeout      time.Duration `mapstructure:"base_timeout"`
	MaxRequestPerMin int           `mapstructure:"max_request_per_min"`
}

type Validation struct {
	Formats             []string               `mapstructure:"formats"`
	DefaultOptions      map[string]interface{} `mapstructure:"default_validation_options"`
	DefaultCreateMode   string                 `mapstructure:"default_create_mode" validate:"oneof=sync async"`
	DefaultUpdateMode   string                 `mapstructure:"default_update_mode" validate:"oneof=sync async"`
	PassAuthHeader      bool                   `mapstructure:"pass_auth_header"`
	PassAuthHeaderValue string                 `mapstructure:"pass_auth_header_value"`
	DownloadProxy       string                 `mapstructure:"download_proxy"`
	SchemaTimeout       time.Duration          `mapstructure:"schema_timeout"`
	SourceTimeout       time.Duration          `mapstructure:"source_timeout"`
}

type Storage struct {
	Driver     string        `mapstructure:"driver" validate:"oneof=local s3"`
	Path       string        `mapstructure:"path"`
	Bucket     string        `mapstructure:"bucket"`
	Region     string        `mapstructure:"region"`
	Prefix     string        `mapstructure:"prefix"`
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type Reaper struct {
	Enabled        bool          `mapstructure:"enabled"`
	Schedule       string        `mapstructure:"schedule"`
	RunningTimeout time.Duration `mapstructure:"running_timeout"`
	CreatedTimeout time.Duration `mapstructure:"created_timeout"`
	BatchSize      int           `mapstructure:"batch_size"`
}

// DefaultFormats are the resource formats validated when none are configured.
var DefaultFormats = []string{"csv", "xls", "xlsx"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "validation.db")
	v.SetDefault("database.log_level", "Warn")

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.requests_per_second", 10)
	v.SetDefault("api.burst", 30)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("queue.driver", "redis")
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.ttl", 24*time.Hour)
	v.SetDefault("queue.failure_ttl", 24*time.Hour)

	v.SetDefault("worker.max_concurrency", 4)
	v.SetDefault("worker.poll_timeout", 5*time.Second)
	v.SetDefault("worker.job_timeout", 30*time.Minute)

	v.SetDefault("catalog.base_url", "http://localhost:5000")
	v.SetDefault("catalog.base_timeout", 30*time.Second)
	v.SetDefault("catalog.max_request_per_min", 600)

	v.SetDefault("validation.formats", DefaultFormats)
	v.SetDefault("validation.default_create_mode", ModeAsync)
	v.SetDefault("validation.default_update_mode", ModeAsync)
	v.SetDefault("validation.pass_auth_header", true)
	v.SetDefault("validation.schema_timeout", 30*time.Second)
	v.SetDefault("validation.source_timeout", 5*time.Minute)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.path", "/var/lib/ckan")
	v.SetDefault("storage.presign_ttl", 15*time.Minute)

	v.SetDefault("cache.default_expiration", 5*time.Minute)
	v.SetDefault("cache.cleanup_interval", 10*time.Minute)

	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.schedule", "*/5 * * * *")
	v.SetDefault("reaper.running_timeout", 2*time.Hour)
	v.SetDefault("reaper.created_timeout", 25*time.Hour)
	v.SetDefault("reaper.batch_size", 100)
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the enum-like settings.
func (c *Config) Validate() error {
	if err := goValidator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SupportedFormats returns the configured formats lower-cased, falling back to DefaultFormats.
func (v Validation) SupportedFormats() []string {
	if len(v.Formats) == 0 {
		return DefaultFormats
	}
	out := make([]string, 0, len(v.Formats))
	for _, f := range v.Formats {
		out = append(out, strings.ToLower(strings.TrimSpace(f)))
	}
	return out
}
