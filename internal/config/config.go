// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"policyqa-go/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，由 Init 填充，仅供 main 使用。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Tika      TikaConfig      `mapstructure:"tika"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。Secret 为空时不启用鉴权，user_id 取自请求参数。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours" validate:"gte=0"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions" validate:"gt=0"`
	BatchSize  int    `mapstructure:"batch_size" validate:"gt=0"`
}

// LLMConfig 存储答案生成模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示（可选）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	NoResultText string `mapstructure:"no_result_text"`
}

// RetrievalConfig 是检索链路的核心参数。
type RetrievalConfig struct {
	WindowWords    int    `mapstructure:"window_words" validate:"gt=0"`
	OverlapWords   int    `mapstructure:"overlap_words" validate:"gte=0,ltfield=WindowWords"`
	TopK           int    `mapstructure:"top_k" validate:"gt=0"`
	PreviewChars   int    `mapstructure:"preview_chars" validate:"gt=0"`
	Dimensions     int    `mapstructure:"dimensions" validate:"gt=0"`
	DataDir        string `mapstructure:"data_dir" validate:"required"`
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds" validate:"gt=0"`
}

// DefaultRetrievalConfig 返回与线上一致的默认检索参数。
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		WindowWords:    180,
		OverlapWords:   40,
		TopK:           5,
		PreviewChars:   220,
		Dimensions:     384,
		DataDir:        "/tmp/policyqa",
		LockTTLSeconds: 120,
	}
}

func setDefaults(v *viper.Viper) {
	r := DefaultRetrievalConfig()
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "policyqa-ingest")
	v.SetDefault("kafka.group_id", "policyqa-ingest-consumer")
	v.SetDefault("tika.server_url", "http://localhost:9998")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "policyqa")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("embedding.dimensions", r.Dimensions)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.prompt.rules", "")
	v.SetDefault("llm.prompt.no_result_text", "")
	v.SetDefault("retrieval.window_words", r.WindowWords)
	v.SetDefault("retrieval.overlap_words", r.OverlapWords)
	v.SetDefault("retrieval.top_k", r.TopK)
	v.SetDefault("retrieval.preview_chars", r.PreviewChars)
	v.SetDefault("retrieval.dimensions", r.Dimensions)
	v.SetDefault("retrieval.data_dir", r.DataDir)
	v.SetDefault("retrieval.lock_ttl_seconds", r.LockTTLSeconds)
}

// Load 读取 .env（可选）、YAML 配置文件（configPath 为空时跳过）与 POLICYQA_ 前缀的环境变量，
// 并对结果做校验。
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("POLICYQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置，失败时返回包装了 model.ErrConfigurationInvalid 的错误。
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", model.ErrConfigurationInvalid, err)
	}
	if c.Embedding.Dimensions != c.Retrieval.Dimensions {
		return fmt.Errorf("%w: embedding.dimensions (%d) != retrieval.dimensions (%d)",
			model.ErrConfigurationInvalid, c.Embedding.Dimensions, c.Retrieval.Dimensions)
	}
	return nil
}

// Init 初始化配置加载，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
