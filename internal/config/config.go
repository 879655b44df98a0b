package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Video    VideoConfig    `mapstructure:"video"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	S3       S3Config       `mapstructure:"s3"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	// BaseURL prefixes room links handed to clients.
	BaseURL string `mapstructure:"base_url"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds the secret used to verify tokens issued by the host application.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Env    string `mapstructure:"env"` // "production" or "development"
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

type ScheduleConfig struct {
	// Timezone is the trainer-local wall clock all dates and "HH:MM" times are read in.
	Timezone  string `mapstructure:"timezone"`
	ResetCron string `mapstructure:"reset_cron"`
}

type VideoConfig struct {
	JoinLeadTime time.Duration `mapstructure:"join_lead_time"`
	BasePath     string        `mapstructure:"base_path"`
}

type NotifyConfig struct {
	Queue       string `mapstructure:"queue"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxRetry    int    `mapstructure:"max_retry"`
}

type SendGridConfig struct {
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Location resolves the configured schedule timezone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "fitness_sessions")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("schedule.reset_cron", "0 0 * * 1") // Monday 00:00
	v.SetDefault("video.join_lead_time", "10m")
	v.SetDefault("video.base_path", "/video-call")
	v.SetDefault("notify.queue", "notifications")
	v.SetDefault("notify.concurrency", 5)
	v.SetDefault("notify.max_retry", 5)
	v.SetDefault("sendgrid.from_name", "Fitness App")
	v.SetDefault("s3.use_ssl", true)
}

// LoadConfig reads configuration from config.yaml under path and environment variables.
// Nested keys map to env names with "_" (video.join_lead_time -> VIDEO_JOIN_LEAD_TIME).
func LoadConfig(path string) (Config, error) {
	var config Config
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine; env vars and defaults still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	// duration strings ("10m") decode straight into time.Duration fields
	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}

	if config.JWT.Secret == "" {
		return config, fmt.Errorf("jwt.secret is required")
	}
	if _, err := config.Schedule.Location(); err != nil {
		return config, fmt.Errorf("schedule.timezone: %w", err)
	}
	return config, nil
}
