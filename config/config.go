package config

import (
	"fmt"
	"time"
)

// Config is the complete memflow configuration.
type Config struct {
	// Server 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Store 记忆存储配置
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Learning 学习引擎配置
	Learning LearningConfig `yaml:"learning" env:"LEARNING"`

	// CaseBase 案例库配置
	CaseBase CaseBaseConfig `yaml:"casebase" env:"CASEBASE"`

	// Manager 记忆管理器配置
	Manager ManagerConfig `yaml:"manager" env:"MANAGER"`

	// Embedding 向量化配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Database 持久化数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 热存储配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每 IP 限流（每秒请求数）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// StoreConfig configures the memory store.
type StoreConfig struct {
	// 缓存容量
	CacheCapacity int `yaml:"cache_capacity" env:"CACHE_CAPACITY"`
	// 是否启用持久化
	PersistenceEnabled bool `yaml:"persistence_enabled" env:"PERSISTENCE_ENABLED"`
}

// LearningConfig configures the learning engine.
type LearningConfig struct {
	// 默认学习率
	DefaultLearningRate float64 `yaml:"default_learning_rate" env:"DEFAULT_LEARNING_RATE"`
	// 模式学习阈值
	PatternThreshold float64 `yaml:"pattern_threshold" env:"PATTERN_THRESHOLD"`
	// 推荐结果上限
	MaxRecommendations int `yaml:"max_recommendations" env:"MAX_RECOMMENDATIONS"`
}

// CaseBaseConfig configures the case-based reasoner.
type CaseBaseConfig struct {
	// 案例容量
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// 保留窗口
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
	// 是否启用持久化
	PersistenceEnabled bool `yaml:"persistence_enabled" env:"PERSISTENCE_ENABLED"`
}

// ManagerConfig configures the memory manager.
type ManagerConfig struct {
	// 整理策略列表
	Strategies []string `yaml:"strategies" env:"STRATEGIES"`
	// 遗忘策略
	Forgetting string `yaml:"forgetting" env:"FORGETTING"`
	// 整理的最大条目年龄
	MaxEntryAge time.Duration `yaml:"max_entry_age" env:"MAX_ENTRY_AGE"`
	// 压力阈值
	PressureThreshold float64 `yaml:"pressure_threshold" env:"PRESSURE_THRESHOLD"`
	// 调度间隔
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// 时间遗忘保留窗口
	RetentionWindow time.Duration `yaml:"retention_window" env:"RETENTION_WINDOW"`
	// 未使用条目窗口
	UnusedWindow time.Duration `yaml:"unused_window" env:"UNUSED_WINDOW"`
}

// EmbeddingConfig configures the embeddings provider.
type EmbeddingConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Provider: openai, disabled
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 速率限制（每秒请求数，0 表示不限制）
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
}

// DatabaseConfig configures durable persistence.
type DatabaseConfig struct {
	// 驱动类型: memory, sqlite, postgres, mysql, redis
	Driver string `yaml:"driver" env:"DRIVER"`
	// 数据源
	DSN string `yaml:"dsn" env:"DSN"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig configures the Redis hot tier.
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  200,
		},
		Store: StoreConfig{
			CacheCapacity:      10000,
			PersistenceEnabled: true,
		},
		Learning: LearningConfig{
			DefaultLearningRate: 0.1,
			PatternThreshold:    0.3,
			MaxRecommendations:  5,
		},
		CaseBase: CaseBaseConfig{
			Capacity:           5000,
			Retention:          90 * 24 * time.Hour,
			PersistenceEnabled: true,
		},
		Manager: ManagerConfig{
			Strategies:        []string{"merge_similar", "compress_details", "promote_important"},
			Forgetting:        "adaptive",
			MaxEntryAge:       24 * time.Hour,
			PressureThreshold: 0.9,
			Interval:          time.Hour,
			RetentionWindow:   90 * 24 * time.Hour,
			UnusedWindow:      14 * 24 * time.Hour,
		},
		Embedding: EmbeddingConfig{
			Enabled:    true,
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 384,
			Timeout:    10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:memflow.db?cache=shared",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "memflow:",
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "memflow",
			SampleRate:   1.0,
		},
	}
}

// Validate rejects structurally invalid configurations.
func (c *Config) Validate() error {
	if c.Store.CacheCapacity <= 0 {
		return fmt.Errorf("store.cache_capacity must be positive")
	}
	if c.CaseBase.Capacity <= 0 {
		return fmt.Errorf("casebase.capacity must be positive")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	if c.Manager.PressureThreshold <= 0 || c.Manager.PressureThreshold > 1 {
		return fmt.Errorf("manager.pressure_threshold must be in (0, 1]")
	}
	if c.Learning.DefaultLearningRate <= 0 || c.Learning.DefaultLearningRate > 1 {
		return fmt.Errorf("learning.default_learning_rate must be in (0, 1]")
	}
	return nil
}
