package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config being-assessment(评估引擎 HTTP API)配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Session SessionConfig `yaml:"session"`
	Crisis  CrisisConfig  `yaml:"crisis"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// DatabaseConfig Postgres 连接配置
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// GetDSN 生成 Postgres 连接串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// SessionConfig 会话与投射评估配置
type SessionConfig struct {
	KeyPrefix            string        `yaml:"key_prefix"`             // 主存储键前缀
	TTL                  time.Duration `yaml:"ttl"`                    // 快照存活时长(默认 24h)
	StepSeconds          int           `yaml:"step_seconds"`           // 单题预估耗时(秒)
	MinProjectionAnswers int           `yaml:"min_projection_answers"` // 投射评估作答数门槛
}

// CrisisConfig 危机信号下游配置
type CrisisConfig struct {
	Stream     string `yaml:"stream"`      // Redis Stream 名
	WebhookURL string `yaml:"webhook_url"` // 外部危机干预服务,空串禁用
}

// MQTTConfig MQTT 下游配置(用于推送网关,默认禁用)
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`    // 如 "tcp://localhost:1883"
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`  // 可选
	Password string `yaml:"password"`  // 可选
	Topic    string `yaml:"topic"`     // 危机信号发布主题
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// DB_ENABLED=false 时归档走内存,会话只写主存储
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "being")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// 会话配置
	cfg.Session.KeyPrefix = getEnv("SESSION_KEY_PREFIX", "assessment:session:")
	cfg.Session.TTL = time.Duration(parseInt(getEnv("SESSION_TTL_HOURS", "24"), 24)) * time.Hour
	cfg.Session.StepSeconds = parseInt(getEnv("ASSESS_STEP_SECONDS", "30"), 30)
	cfg.Session.MinProjectionAnswers = parseInt(getEnv("ASSESS_MIN_PROJECTION_ANSWERS", "5"), 5)

	// 危机信号下游
	cfg.Crisis.Stream = getEnv("CRISIS_STREAM", "assessment:crisis:events")
	cfg.Crisis.WebhookURL = getEnv("CRISIS_WEBHOOK_URL", "")

	// MQTT 下游(默认禁用)
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "being-assessment")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "being/crisis/signals")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
