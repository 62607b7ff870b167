package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	ChannelBase            string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	UploadMaxFileSizeBytes int64
	UploadMaxFiles         int
	UploadMaxAttempts      int
	UploadRetryBaseDelay   time.Duration
	StreamKeepAlive        time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PROJEXX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Projexx API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "5000")
	v.SetDefault("channel.base", "projexx")
	v.SetDefault("cloudinary.folder", "projexx/submissions")
	v.SetDefault("upload.max_file_size_bytes", 52428800)
	v.SetDefault("upload.max_files", 10)
	v.SetDefault("upload.max_attempts", 3)
	v.SetDefault("upload.retry_base_delay", "2s")
	v.SetDefault("stream.keep_alive", "30s")

	retryDelay, err := time.ParseDuration(v.GetString("upload.retry_base_delay"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid upload retry base delay: %w", err)
	}

	keepAlive, err := time.ParseDuration(v.GetString("stream.keep_alive"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid stream keep alive: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		ChannelBase:            v.GetString("channel.base"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		UploadMaxFileSizeBytes: v.GetInt64("upload.max_file_size_bytes"),
		UploadMaxFiles:         v.GetInt("upload.max_files"),
		UploadMaxAttempts:      v.GetInt("upload.max_attempts"),
		UploadRetryBaseDelay:   retryDelay,
		StreamKeepAlive:        keepAlive,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.UploadMaxFileSizeBytes <= 0 {
		cfg.UploadMaxFileSizeBytes = 52428800
	}
	if cfg.UploadMaxFiles <= 0 {
		cfg.UploadMaxFiles = 10
	}
	if cfg.UploadMaxAttempts <= 0 {
		cfg.UploadMaxAttempts = 3
	}

	return cfg, nil
}
