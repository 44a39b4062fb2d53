package config

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"fitcoach"`
	Version     string `env:"SERVICE_VERSION" envDefault:"0.1.0"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"fitcoach"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`
	// 只读副本的 host:port 列表，逗号分隔，留空表示不启用读写分离
	PostgreSQLReplicas string `env:"POSTGRESQL_REPLICAS" envDefault:""`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"fitc"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`
	// WorkerConsumers worker 进程内并行消费者数量，每个消费者独占一个 channel
	WorkerConsumers int `env:"WORKER_CONSUMERS" envDefault:"2"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 速率限制配置
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitWindow  int  `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	RateLimitMax     int  `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"120"`

	// 引导流程配置
	OnboardingDefaultCountry string `env:"ONBOARDING_DEFAULT_COUNTRY" envDefault:"Sverige"`
	OnboardingRedirect       string `env:"ONBOARDING_REDIRECT" envDefault:"/dashboard"`
	// false 时 next 只做边界检查，与前端禁用按钮的行为一致
	OnboardingEnforceGating  bool `env:"ONBOARDING_ENFORCE_GATING" envDefault:"true"`
	OnboardingDraftTTLMinute int  `env:"ONBOARDING_DRAFT_TTL_MINUTES" envDefault:"60"`
	OnboardingSweepSeconds   int  `env:"ONBOARDING_SWEEP_INTERVAL_SECONDS" envDefault:"60"`

	// 资料缓存
	ProfileCacheTTLMinute int `env:"PROFILE_CACHE_TTL_MINUTES" envDefault:"1440"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.OnboardingDraftTTLMinute <= 0 {
		log.Printf("WARN: ONBOARDING_DRAFT_TTL_MINUTES must be positive, falling back to 60")
		Cfg.OnboardingDraftTTLMinute = 60
	}

	if Cfg.OnboardingSweepSeconds <= 0 {
		log.Printf("WARN: ONBOARDING_SWEEP_INTERVAL_SECONDS must be positive, falling back to 60")
		Cfg.OnboardingSweepSeconds = 60
	}

	if Cfg.OnboardingRedirect == "" {
		log.Printf("WARN: ONBOARDING_REDIRECT is empty, using /dashboard")
		Cfg.OnboardingRedirect = "/dashboard"
	}

	if Cfg.OTelEnabled && Cfg.OTelEndpoint == "" {
		log.Printf("WARN: OTEL_ENABLED is set but OTEL_ENDPOINT is empty, tracing will not export")
	}
}

func (c *Config) GetDSN() string {
	return c.dsnFor(c.PostgreSQLHost, c.PostgreSQLPort)
}

// ReplicaDSNs 返回只读副本的 DSN 列表
func (c *Config) ReplicaDSNs() []string {
	if strings.TrimSpace(c.PostgreSQLReplicas) == "" {
		return nil
	}

	var dsns []string
	for _, addr := range strings.Split(c.PostgreSQLReplicas, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		host, port := addr, c.PostgreSQLPort
		if i := strings.LastIndex(addr, ":"); i > 0 {
			host, port = addr[:i], addr[i+1:]
		}
		dsns = append(dsns, c.dsnFor(host, port))
	}
	return dsns
}

func (c *Config) dsnFor(host, port string) string {
	return "host=" + host +
		" port=" + port +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
