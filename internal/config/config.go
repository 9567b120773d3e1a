package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/makeasinger/gentrack/internal/model"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Worker    WorkerConfig
	Tracker   TrackerConfig
	CrossTab  CrossTabConfig
	Submit    SubmitConfig
	R2        R2Config
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Driver     string // redis, badger or memory
	BadgerPath string
	Namespace  string
}

type WorkerConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           int // seconds
	RequestsPerSecond float64
	Burst             int
}

type TrackerConfig struct {
	PollInterval  time.Duration
	HardTimeout   time.Duration
	MaxConcurrent int
	DismissAfter  time.Duration
	Expected      map[model.Kind]time.Duration
}

type CrossTabConfig struct {
	Driver  string // redis or local
	Channel string
}

type SubmitConfig struct {
	Queue    string // prefix; each agent consumes Queue:<agent id>
	MaxRetry int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type RateLimitConfig struct {
	RegisterPerHour int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("WORKER_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("storage.badger_path", "STORAGE_BADGER_PATH")
	_ = v.BindEnv("storage.namespace", "STORAGE_NAMESPACE")
	_ = v.BindEnv("worker.base_url", "WORKER_BASE_URL")
	_ = v.BindEnv("worker.api_key", "WORKER_API_KEY")
	_ = v.BindEnv("worker.timeout", "WORKER_TIMEOUT")
	_ = v.BindEnv("worker.requests_per_second", "WORKER_REQUESTS_PER_SECOND")
	_ = v.BindEnv("worker.burst", "WORKER_BURST")
	_ = v.BindEnv("tracker.poll_interval", "TRACKER_POLL_INTERVAL")
	_ = v.BindEnv("tracker.hard_timeout", "TRACKER_HARD_TIMEOUT")
	_ = v.BindEnv("tracker.max_concurrent", "TRACKER_MAX_CONCURRENT")
	_ = v.BindEnv("tracker.dismiss_after", "TRACKER_DISMISS_AFTER")
	_ = v.BindEnv("crosstab.driver", "CROSSTAB_DRIVER")
	_ = v.BindEnv("crosstab.channel", "CROSSTAB_CHANNEL")
	_ = v.BindEnv("submit.queue", "SUBMIT_QUEUE")
	_ = v.BindEnv("submit.max_retry", "SUBMIT_MAX_RETRY")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("ratelimit.register_per_hour", "RATELIMIT_REGISTER_PER_HOUR")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("storage.driver", "redis")
	v.SetDefault("storage.badger_path", "./data/gentrack")
	v.SetDefault("storage.namespace", "default")
	v.SetDefault("worker.base_url", "http://localhost:8090")
	v.SetDefault("worker.timeout", 30)
	v.SetDefault("worker.requests_per_second", 10)
	v.SetDefault("worker.burst", 5)
	v.SetDefault("ratelimit.register_per_hour", 60)

	// Tracker defaults
	v.SetDefault("tracker.poll_interval", "5s")
	v.SetDefault("tracker.hard_timeout", "30m")
	v.SetDefault("tracker.max_concurrent", 3)
	v.SetDefault("tracker.dismiss_after", "3s")
	v.SetDefault("tracker.expected.multi_angle_render", "3m")
	v.SetDefault("tracker.expected.look_composite", "90s")
	v.SetDefault("tracker.expected.creative_still", "60s")
	v.SetDefault("tracker.expected.model_portrait", "75s")

	// Cross-tab defaults
	v.SetDefault("crosstab.driver", "redis")
	v.SetDefault("crosstab.channel", "generation_status")

	// Submission queue defaults
	v.SetDefault("submit.queue", "generations")
	v.SetDefault("submit.max_retry", 3)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	expected := make(map[model.Kind]time.Duration, len(model.ValidKinds))
	for _, kind := range model.ValidKinds {
		expected[kind] = v.GetDuration("tracker.expected." + string(kind))
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(v.GetString("storage.driver")),
			BadgerPath: v.GetString("storage.badger_path"),
			Namespace:  v.GetString("storage.namespace"),
		},
		Worker: WorkerConfig{
			BaseURL:           v.GetString("worker.base_url"),
			APIKey:            v.GetString("worker.api_key"),
			Timeout:           v.GetInt("worker.timeout"),
			RequestsPerSecond: v.GetFloat64("worker.requests_per_second"),
			Burst:             v.GetInt("worker.burst"),
		},
		Tracker: TrackerConfig{
			PollInterval:  v.GetDuration("tracker.poll_interval"),
			HardTimeout:   v.GetDuration("tracker.hard_timeout"),
			MaxConcurrent: v.GetInt("tracker.max_concurrent"),
			DismissAfter:  v.GetDuration("tracker.dismiss_after"),
			Expected:      expected,
		},
		CrossTab: CrossTabConfig{
			Driver:  strings.ToLower(v.GetString("crosstab.driver")),
			Channel: v.GetString("crosstab.channel"),
		},
		Submit: SubmitConfig{
			Queue:    v.GetString("submit.queue"),
			MaxRetry: v.GetInt("submit.max_retry"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		RateLimit: RateLimitConfig{
			RegisterPerHour: v.GetInt("ratelimit.register_per_hour"),
		},
	}

	return cfg, nil
}
