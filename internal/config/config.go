package config

import (
	"fmt"
	"os"

	"Argus/internal/models"

	"gopkg.in/yaml.v3"
)

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// ServerConfig 定义了 HTTP 服务的监听配置。
type ServerConfig struct {
	Address string `yaml:"address"` // 监听地址 (例如: ":8080")
}

// AuthConfig 定义了配置写入所需的共享密钥。
type AuthConfig struct {
	APIKey string `yaml:"apiKey"` // 配置写入的共享密钥
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address  string `yaml:"address"`  // MongoDB 服务器地址
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`     // 是否发布任务生命周期事件
	Brokers     []string `yaml:"brokers"`     // Kafka Broker 地址列表
	EventsTopic string   `yaml:"eventsTopic"` // 任务事件主题
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`   // Redis 数据库配置
	MongoDB MongoConfig `yaml:"mongodb"` // MongoDB 数据库配置
	Kafka   KafkaConfig `yaml:"kafka"`   // Kafka 消息队列配置
}

// GatewayConfig holds gateway behaviour settings: the default agent scope,
// the Mongo collection for job records, and which safety checks run inline.
type GatewayConfig struct {
	Scope             string `yaml:"scope"`             // default agent scope name
	JobCollection     string `yaml:"jobCollection"`     // Mongo collection for job records
	StorageDriver     string `yaml:"storageDriver"`     // "mongo"/"redis" or "memory" for single-binary runs
	ModerationEnabled bool   `yaml:"moderationEnabled"` // screen prompts before dispatch
	ValidationEnabled bool   `yaml:"validationEnabled"` // score responses after completion
}

// BackendConfig is the environment-supplied default agent configuration used
// by the resolver when no stored configuration exists for a scope.
type BackendConfig struct {
	ModelURL       string             `yaml:"modelUrl"`
	ModelName      string             `yaml:"modelName"`
	PromptTemplate string             `yaml:"promptTemplate"`
	TimeoutMs      int                `yaml:"timeoutMs"`
	PhraseWeights  map[string]float64 `yaml:"phraseWeights"`
	ResponseFormat string             `yaml:"responseFormat"`
}

// AgentConfig converts the backend defaults into the runtime config model.
func (b BackendConfig) AgentConfig() models.AgentConfig {
	return models.AgentConfig{
		ModelURL:       b.ModelURL,
		ModelName:      b.ModelName,
		PromptTemplate: b.PromptTemplate,
		TimeoutMs:      b.TimeoutMs,
		PhraseWeights:  b.PhraseWeights,
		ResponseFormat: b.ResponseFormat,
	}
}

// RetryConfig 定义了对模型后端调用的重试策略。
type RetryConfig struct {
	MaxRetries int    `yaml:"maxRetries"` // 首次尝试之外的最大重试次数
	BaseDelay  string `yaml:"baseDelay"`  // 退避基础延迟, 例如: "500ms"
	MaxDelay   string `yaml:"maxDelay"`   // 退避延迟上限, 例如: "10s"
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	FailureThreshold uint32 `yaml:"failureThreshold"` // 连续失败多少次后熔断
	Cooldown         string `yaml:"cooldown"`         // 熔断后的冷却时间, 例如: "60s"
}

// ResilienceConfig 包含出站调用的所有弹性设置。
type ResilienceConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了入站限流器的配置。
type RateLimiterConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Algorithm string  `yaml:"algorithm"` // 支持: "tokenBucket", "fixedWindow"
	Rate      float64 `yaml:"rate"`      // tokenBucket: 每秒速率
	Capacity  int     `yaml:"capacity"`  // tokenBucket: 桶容量
	Limit     int     `yaml:"limit"`     // fixedWindow: 窗口内请求上限
	Window    string  `yaml:"window"`    // fixedWindow: 窗口长度, 例如: "1m"
}

// MiddlewareConfig 包含所有入站中间件的配置。
type MiddlewareConfig struct {
	RateLimiter RateLimiterConfig `yaml:"rateLimiter"`
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Logger     LoggerConfig     `yaml:"logger"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Backend    BackendConfig    `yaml:"backend"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Middleware MiddlewareConfig `yaml:"middleware"`
	Databases  DatabaseConfigs  `yaml:"databases"`
}

// LoadConfig 从指定路径加载并解析 YAML 配置文件。
// 环境变量 GATEWAY_MODEL_URL 和 GATEWAY_API_KEY 优先于文件中的对应值，
// 以便部署环境注入后端地址和共享密钥。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}

	if v := os.Getenv("GATEWAY_MODEL_URL"); v != "" {
		cfg.Backend.ModelURL = v
	}
	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	if cfg.Gateway.Scope == "" {
		cfg.Gateway.Scope = "gateway"
	}
	if cfg.Gateway.JobCollection == "" {
		cfg.Gateway.JobCollection = "jobs"
	}

	return &cfg, nil
}
