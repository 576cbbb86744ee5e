package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Queue       QueueConfig       `yaml:"queue"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Annotator   AnnotatorConfig   `yaml:"annotator"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port          int   `yaml:"port"`
	MaxUploadSize int64 `yaml:"max_upload_size"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	// 元数据存储类型: memory / redis / postgres / hybrid
	Type     string         `yaml:"type"`
	MediaDir string         `yaml:"media_dir"` // 媒体文件目录
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"` // 热数据过期时间
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// QueueConfig 队列配置
type QueueConfig struct {
	Type       string         `yaml:"type"` // memory / rabbitmq
	BufferSize int            `yaml:"buffer_size"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	URL           string `yaml:"url"`
	QueueName     string `yaml:"queue_name"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
}

// TranscriberConfig 识别阶段配置
type TranscriberConfig struct {
	WorkerCount     int `yaml:"worker_count"`     // 音频分片并发处理数
	SegmentDuration int `yaml:"segment_duration"` // 分片时长（秒）
	MaxRetries      int `yaml:"max_retries"`
	SampleRate      int `yaml:"sample_rate"` // 转码目标采样率
}

// AnnotatorConfig 说话人标注配置
type AnnotatorConfig struct {
	// 外部标注器命令，接收音频路径作为参数，按行输出 JSON
	Command string `yaml:"command"`
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	StageTimeoutMinutes int `yaml:"stage_timeout_minutes"` // 单阶段墙钟超时
	// 已有标注结果时跳过标注阶段。默认 false：每次调用都重跑标注
	SkipAnnotated bool `yaml:"skip_annotated"`
}

// NotifyConfig 邮件通知配置
type NotifyConfig struct {
	Enabled      bool   `yaml:"enabled"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	From         string `yaml:"from"`
	To           string `yaml:"to"`
	URLBase      string `yaml:"url_base"` // 邮件里结果链接的前缀
}

// LoadConfig 加载配置文件
// 先加载 .env（允许不存在），再读 YAML 并展开 ${VAR} 环境变量引用
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// Validate 验证配置并填默认值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadSize <= 0 {
		c.Server.MaxUploadSize = 2 << 30 // 2 GB
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.MediaDir == "" {
		c.Storage.MediaDir = "media"
	}
	if c.Storage.Redis.TTLHours <= 0 {
		c.Storage.Redis.TTLHours = 24
	}
	switch c.Storage.Type {
	case "memory":
	case "redis", "hybrid":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.type 为 %s 时必须配置 redis 地址", c.Storage.Type)
		}
		if c.Storage.Type == "hybrid" && c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.type 为 hybrid 时必须配置 postgres DSN")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.type 为 postgres 时必须配置 postgres DSN")
		}
	default:
		return fmt.Errorf("不支持的存储类型: %s", c.Storage.Type)
	}

	if c.Queue.Type == "" {
		c.Queue.Type = "memory"
	}
	if c.Queue.BufferSize <= 0 {
		c.Queue.BufferSize = 100
	}
	if c.Queue.RabbitMQ.PrefetchCount <= 0 {
		c.Queue.RabbitMQ.PrefetchCount = 3
	}

	if c.Transcriber.WorkerCount <= 0 {
		c.Transcriber.WorkerCount = 3
	}
	if c.Transcriber.SegmentDuration <= 0 {
		c.Transcriber.SegmentDuration = 600
	}
	if c.Transcriber.MaxRetries <= 0 {
		c.Transcriber.MaxRetries = 3
	}
	if c.Transcriber.SampleRate <= 0 {
		c.Transcriber.SampleRate = 16000
	}

	if c.Pipeline.StageTimeoutMinutes <= 0 {
		c.Pipeline.StageTimeoutMinutes = 20
	}

	if c.Notify.Enabled {
		if c.Notify.SMTPHost == "" || c.Notify.To == "" {
			return fmt.Errorf("开启邮件通知时必须配置 smtp_host 和 to")
		}
		if c.Notify.SMTPPort <= 0 {
			c.Notify.SMTPPort = 587
		}
	}

	return nil
}
