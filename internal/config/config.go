package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 配置（可选，Broker 为空时不启用告警外发）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// HealthConfig 设备健康分级阈值
type HealthConfig struct {
	HealthyWithin time.Duration // 心跳间隔不超过该值视为 healthy，默认 5 分钟
	WarningWithin time.Duration // 超过 HealthyWithin 但不超过该值视为 warning，默认 15 分钟
}

// StaffingConfig 人员配置建议参数
type StaffingConfig struct {
	PeoplePerStaff  int64         // 每 N 人排队需要 1 名工作人员，默认 10
	RatePerStaff    float64       // 每 R 人/分钟到达速率需要 1 名工作人员，默认 4
	MinStaff        int           // 建议人数下限，默认 1
	MaxStaff        int           // 建议人数上限，默认 12
	WatchThreshold  int64         // 进入 Watching 状态的最低队长，默认 10
	TopBreakpoint   int64         // 队长超过该值直接 critical，默认 50
	RunawayRate     float64       // 到达速率超过该值直接 critical（人/分钟），默认 20
	DedupBucket     int64         // 去重指纹中队长的取整桶大小，默认 10
	Cooldown        time.Duration // 相同指纹的告警抑制窗口，默认等于轮询间隔
	EscalationMode  string        // "tier"（仅级别变化）或 "tier_or_delta"（级别变化或队长增量）
	EscalationDelta int64         // tier_or_delta 模式下触发重发的最小队长增量，默认 20
}

// EscalationMode 取值
const (
	EscalationTier        = "tier"
	EscalationTierOrDelta = "tier_or_delta"
)

// Config 排队监控服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Health   HealthConfig
	Staffing StaffingConfig

	// 刷新与缓存配置
	Refresh struct {
		PollInterval   time.Duration // 自动刷新间隔，默认 30 秒
		MetricWindow   time.Duration // 排队指标滚动窗口，默认 10 分钟
		MetricCacheTTL time.Duration // 指标缓存 TTL，默认等于轮询间隔
		TrackerWindow  int           // 每设备保留的样本数上限，默认 64
	}

	// 设备标定配置
	Calibration struct {
		Timeout time.Duration // 置零指令确认超时，默认 10 秒
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量覆盖默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "queuewatch")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "queuewatch")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_ALERT_TOPIC", "queuewatch/alerts")

	cfg.Health.HealthyWithin = getEnvMinutes("HEALTH_HEALTHY_MINUTES", 5)
	cfg.Health.WarningWithin = getEnvMinutes("HEALTH_WARNING_MINUTES", 15)

	cfg.Staffing.PeoplePerStaff = int64(getEnvInt("STAFFING_PEOPLE_PER_STAFF", 10))
	cfg.Staffing.RatePerStaff = getEnvFloat("STAFFING_RATE_PER_STAFF", 4)
	cfg.Staffing.MinStaff = getEnvInt("STAFFING_MIN_STAFF", 1)
	cfg.Staffing.MaxStaff = getEnvInt("STAFFING_MAX_STAFF", 12)
	cfg.Staffing.WatchThreshold = int64(getEnvInt("STAFFING_WATCH_THRESHOLD", 10))
	cfg.Staffing.TopBreakpoint = int64(getEnvInt("STAFFING_TOP_BREAKPOINT", 50))
	cfg.Staffing.RunawayRate = getEnvFloat("STAFFING_RUNAWAY_RATE", 20)
	cfg.Staffing.DedupBucket = int64(getEnvInt("STAFFING_DEDUP_BUCKET", 10))
	cfg.Staffing.EscalationMode = getEnv("STAFFING_ESCALATION_MODE", EscalationTier)
	cfg.Staffing.EscalationDelta = int64(getEnvInt("STAFFING_ESCALATION_DELTA", 20))

	cfg.Refresh.PollInterval = getEnvSeconds("REFRESH_POLL_INTERVAL_SEC", 30)
	cfg.Refresh.MetricWindow = getEnvMinutes("METRIC_WINDOW_MINUTES", 10)
	cfg.Refresh.MetricCacheTTL = getEnvSeconds("METRIC_CACHE_TTL_SEC", 30)
	cfg.Refresh.TrackerWindow = getEnvInt("TRACKER_WINDOW_SAMPLES", 64)

	// 冷却窗口默认与轮询间隔一致
	cfg.Staffing.Cooldown = getEnvSeconds("STAFFING_COOLDOWN_SEC", int(cfg.Refresh.PollInterval/time.Second))

	cfg.Calibration.Timeout = getEnvSeconds("CALIBRATION_TIMEOUT_SEC", 10)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

func getEnvMinutes(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Minute
}
