package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Service struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"service"`

	Queue struct {
		BrokerURL     string        `mapstructure:"broker_url"`
		ResultBackend string        `mapstructure:"result_backend"` // informational; results live in the broker
		Name          string        `mapstructure:"name"`
		Retention     time.Duration `mapstructure:"retention"`
		MaxRetry      int           `mapstructure:"max_retry"`
	} `mapstructure:"queue"`

	Worker struct {
		Concurrency int            `mapstructure:"concurrency"`
		Queues      map[string]int `mapstructure:"queues"`
	} `mapstructure:"worker"`

	Storage struct {
		UploadDir string `mapstructure:"upload_dir"`
		OutputDir string `mapstructure:"output_dir"`
	} `mapstructure:"storage"`

	Conversion struct {
		Engine       string `mapstructure:"engine"` // "copy" or "ffmpeg"
		OutputFormat string `mapstructure:"output_format"`
		Suffix       string `mapstructure:"suffix"`
		FFmpegPath   string `mapstructure:"ffmpeg_path"`
	} `mapstructure:"conversion"`

	Notification struct {
		SlackWebhookURL string        `mapstructure:"slack_webhook_url"`
		BaseURL         string        `mapstructure:"base_url"`
		Timeout         time.Duration `mapstructure:"timeout"`
	} `mapstructure:"notification"`

	Database struct {
		DSN string `mapstructure:"dsn"` // optional, enables the job record store
	} `mapstructure:"database"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // "text" or "json"
	} `mapstructure:"log"`
}

// envBindings maps config keys to the environment variables deployments already use.
var envBindings = map[string]string{
	"server.host":                    "HOST",
	"server.port":                    "PORT",
	"service.name":                   "SERVICE_NAME",
	"queue.broker_url":               "REDIS_URL",
	"queue.result_backend":           "CELERY_RESULT_BACKEND",
	"worker.concurrency":             "WORKER_CONCURRENCY",
	"storage.upload_dir":             "UPLOAD_FOLDER",
	"storage.output_dir":             "OUTPUT_FOLDER",
	"conversion.engine":              "CONVERSION_ENGINE",
	"conversion.ffmpeg_path":         "FFMPEG_PATH",
	"notification.slack_webhook_url": "SLACK_WEBHOOK_URL",
	"notification.base_url":          "BASE_URL",
	"database.dsn":                   "DATABASE_URL",
	"log.level":                      "LOG_LEVEL",
	"log.format":                     "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("service.name", "audio-converter")

	v.SetDefault("queue.broker_url", "redis://localhost:6379/0")
	v.SetDefault("queue.result_backend", "")
	v.SetDefault("queue.name", "conversions")
	v.SetDefault("queue.retention", "24h")
	v.SetDefault("queue.max_retry", 0)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queues", map[string]int{"conversions": 1})

	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.output_dir", "outputs")

	v.SetDefault("conversion.engine", "copy")
	v.SetDefault("conversion.output_format", "mp3")
	v.SetDefault("conversion.suffix", "_converted")
	v.SetDefault("conversion.ffmpeg_path", "ffmpeg")

	v.SetDefault("notification.slack_webhook_url", "")
	v.SetDefault("notification.base_url", "http://localhost:5000")
	v.SetDefault("notification.timeout", "10s")

	v.SetDefault("database.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads .env (if present), config.yaml (if present) and the
// environment, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // Look for config.yaml in the current directory

	if err := v.ReadInConfig(); err != nil {
		// It's okay if the config file doesn't exist, defaults and env vars still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", env, key, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if config.Queue.ResultBackend == "" {
		config.Queue.ResultBackend = config.Queue.BrokerURL
	}
	return &config, nil
}
