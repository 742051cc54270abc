package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Minio     MinioConfig     `mapstructure:"minio"`
	LiveKit   LiveKitConfig   `mapstructure:"livekit"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	GRPCPort int    `mapstructure:"grpc_port"`
	NodeID   string `mapstructure:"node_id"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogQueries   bool   `mapstructure:"log_queries"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

// AuthConfig toggles the built-in username/password flow. When disabled,
// tokens are expected to come from the external identity provider.
type AuthConfig struct {
	LocalEnabled bool `mapstructure:"local_enabled"`
}

type RateLimitConfig struct {
	RegisterPerMinute int `mapstructure:"register_per_minute"`
	LoginPerMinute    int `mapstructure:"login_per_minute"`
	MessagePerMinute  int `mapstructure:"message_per_minute"`
	APIPerMinute      int `mapstructure:"api_per_minute"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type SchedulerConfig struct {
	Shards         int            `mapstructure:"shards"`
	PollIntervalMs int            `mapstructure:"poll_interval_ms"`
	BatchSize      int            `mapstructure:"batch_size"`
	MaxAttempts    int            `mapstructure:"max_attempts"`
	Nodes          map[string]int `mapstructure:"nodes"`
}

type KafkaConfig struct {
	Brokers       []string       `mapstructure:"brokers"`
	Topic         string         `mapstructure:"topic"`
	ConsumerGroup string         `mapstructure:"consumer_group"`
	Producer      ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type GatewayConfig struct {
	Source            string `mapstructure:"source"` // redis | kafka
	HeartbeatInterval int    `mapstructure:"heartbeat_interval"`
	SendBuffer        int    `mapstructure:"send_buffer"`
}

type MinioConfig struct {
	Endpoint           string `mapstructure:"endpoint"`
	AccessKey          string `mapstructure:"access_key"`
	SecretKey          string `mapstructure:"secret_key"`
	Bucket             string `mapstructure:"bucket"`
	UseSSL             bool   `mapstructure:"use_ssl"`
	UploadTTLMinutes   int    `mapstructure:"upload_ttl_minutes"`
	DownloadTTLMinutes int    `mapstructure:"download_ttl_minutes"`
	ProcessIcons       bool   `mapstructure:"process_icons"`
}

type LiveKitConfig struct {
	APIKey          string `mapstructure:"api_key"`
	APISecret       string `mapstructure:"api_secret"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.grpc_port", 9001)
	v.SetDefault("server.node_id", "node-1")

	v.SetDefault("postgres.host", "127.0.0.1")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 50)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	for _, key := range []string{
		"postgres.user", "postgres.password", "postgres.dbname", "redis.password", "jwt.secret",
		"minio.endpoint", "minio.access_key", "minio.secret_key", "livekit.api_key", "livekit.api_secret",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_hours", 168)

	v.SetDefault("ratelimit.register_per_minute", 5)
	v.SetDefault("ratelimit.login_per_minute", 10)
	v.SetDefault("ratelimit.message_per_minute", 60)
	v.SetDefault("ratelimit.api_per_minute", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("scheduler.shards", 16)
	v.SetDefault("scheduler.poll_interval_ms", 250)
	v.SetDefault("scheduler.batch_size", 64)
	v.SetDefault("scheduler.max_attempts", 3)

	v.SetDefault("kafka.topic", "guildhall.events")
	v.SetDefault("kafka.consumer_group", "guildhall-gateway")
	v.SetDefault("kafka.producer.max_retries", 3)
	v.SetDefault("kafka.producer.retry_backoff_ms", 100)

	v.SetDefault("gateway.source", "redis")
	v.SetDefault("gateway.heartbeat_interval", 30)
	v.SetDefault("gateway.send_buffer", 256)

	v.SetDefault("minio.bucket", "guildhall")
	v.SetDefault("minio.upload_ttl_minutes", 15)
	v.SetDefault("minio.download_ttl_minutes", 60)

	v.SetDefault("livekit.token_ttl_minutes", 360)
}

// LoadConfig reads path (TOML/YAML/JSON by extension) on top of the defaults.
// A .env file in the working directory is loaded first so GUILDHALL_* variables
// can override any key, e.g. GUILDHALL_POSTGRES_PASSWORD.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GUILDHALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.JWT.Secret == "" {
		return nil, errors.New("jwt.secret must be set")
	}
	return &config, nil
}
