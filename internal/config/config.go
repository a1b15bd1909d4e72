package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig holds configuration for Redis
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// 连接池设置
	PoolSize     int `yaml:"pool_size"`      // 连接池大小
	MinIdleConns int `yaml:"min_idle_conns"` // 最小空闲连接数
	// 超时设置
	DialTimeoutSeconds  int `yaml:"dial_timeout_seconds"`  // 连接超时(秒)
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`  // 读取超时(秒)
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"` // 写入超时(秒)
	// 重试设置
	MaxRetries        int `yaml:"max_retries"`          // 最大重试次数
	MinRetryBackoffMS int `yaml:"min_retry_backoff_ms"` // 最小重试间隔(毫秒)
	MaxRetryBackoffMS int `yaml:"max_retry_backoff_ms"` // 最大重试间隔(毫秒)
	// 连接生命周期
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`  // 连接最大生命周期(分钟)
	ConnMaxIdleTimeMinutes int `yaml:"conn_max_idle_time_minutes"` // 空闲连接最大生命周期(分钟)
	// 缓存过期时间
	JDCacheExpireHours int `yaml:"jd_cache_expire_hours"` // 职位描述缓存过期时间(小时)
}

// Config 应用程序配置
type Config struct {
	Groq struct {
		APIKey     string            `yaml:"api_key"`
		APIURL     string            `yaml:"api_url"`
		Model      string            `yaml:"model"`
		TaskModels map[string]string `yaml:"task_models"` // 任务专用模型
		Embedding  EmbeddingConfig   `yaml:"embedding"`   // Embedding专用配置
		RateLimits map[string]int    `yaml:"rate_limits"` // 模型名 -> QPM限额
		DefaultQPM int               `yaml:"default_qpm"` // 未配置限额时的默认QPM
	} `yaml:"groq"`

	// 向量索引配置
	VectorIndex VectorIndexConfig `yaml:"vector_index"`

	// 新增MinIO配置
	MinIO MinIOConfig `yaml:"minio"`

	// 新增MySQL配置
	MySQL MySQLConfig `yaml:"mysql"`

	// 新增Redis配置
	Redis RedisConfig `yaml:"redis"`

	// 新增服务器配置
	Server ServerConfig `yaml:"server"`

	// 画像提取器配置
	ProfileExtractor ProfileExtractorConfig `yaml:"profile_extractor"`

	// 匹配评估器配置
	MatchEvaluator MatchEvaluatorConfig `yaml:"match_evaluator"`

	// 测验生成器配置
	QuizGenerator QuizGeneratorConfig `yaml:"quiz_generator"`

	// 邮件通知配置
	Notifier NotifierConfig `yaml:"notifier"`

	// 新增日志配置
	Logger LoggerConfig `yaml:"logger"`

	// 链路追踪配置
	Tracing TracingConfig `yaml:"tracing"`
}

// EmbeddingConfig Embedding专用配置
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key,omitempty"` // 可选，默认复用Groq的APIKey
}

// VectorIndexConfig 向量索引配置结构
type VectorIndexConfig struct {
	IndexPath string `yaml:"index_path"` // 索引快照文件路径
	Dimension int    `yaml:"dimension"`  // 向量维度
	TopK      int    `yaml:"top_k"`      // 默认搜索结果数量
}

// MinIOConfig MinIO配置结构
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	ResumeBucket    string `yaml:"resumeBucket"` // 原始简历存储桶
	Location        string `yaml:"location"`     // 可选，存储桶区域
	// 对象生命周期管理
	ResumeExpireDays int `yaml:"resume_expire_days"` // 简历文件过期天数
}

// MySQLConfig MySQL配置结构
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// 连接池设置
	MaxIdleConns int `yaml:"max_idle_conns"` // 最大空闲连接数
	MaxOpenConns int `yaml:"max_open_conns"` // 最大打开连接数
	// 连接生命周期
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`  // 连接最大生命周期(分钟)
	ConnMaxIdleTimeMinutes int `yaml:"conn_max_idle_time_minutes"` // 空闲连接最大生命周期(分钟)
	// 超时设置
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"` // 连接超时(秒)
	ReadTimeoutSeconds    int `yaml:"read_timeout_seconds"`    // 读取超时(秒)
	WriteTimeoutSeconds   int `yaml:"write_timeout_seconds"`   // 写入超时(秒)
	// 日志设置
	LogLevel int `yaml:"log_level"` // 日志级别(1-4)
}

// ServerConfig 定义服务器配置
type ServerConfig struct {
	Address string `yaml:"address"` // 例如 ":8080" or "0.0.0.0:8080"
}

// ProfileExtractorConfig 定义简历画像提取器的配置
type ProfileExtractorConfig struct {
	ModelName         string  `yaml:"modelName"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"maxTokens"`
	ExtractionTimeout string  `yaml:"extractionTimeout"` // 提取超时，例如 "30s"
	MaxRetries        int     `yaml:"maxRetries"`        // 最大重试次数
	RetryWaitSeconds  int     `yaml:"retryWaitSeconds"`  // 重试等待时间(秒)
}

// MatchEvaluatorConfig 定义人岗匹配评估器的配置
type MatchEvaluatorConfig struct {
	ModelName   string  `yaml:"modelName"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
	EvalTimeout string  `yaml:"evalTimeout"` // 评估超时
	MaxRetries  int     `yaml:"maxRetries"`  // 最大重试次数
}

// QuizGeneratorConfig 定义测验生成器的配置
type QuizGeneratorConfig struct {
	ModelName       string  `yaml:"modelName"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"maxTokens"`
	GenerateTimeout string  `yaml:"generateTimeout"` // 生成超时
	MaxRetries      int     `yaml:"maxRetries"`      // 最大重试次数
}

// NotifierConfig 邮件通知配置
type NotifierConfig struct {
	SMTPHost       string `yaml:"smtp_host"`
	SMTPPort       int    `yaml:"smtp_port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	FromAddress    string `yaml:"from_address"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // 发送超时(秒)
	MockMode       bool   `yaml:"mock_mode"`       // 未配置SMTP时回退到控制台输出
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // 例如 "localhost:4317"
	SampleRatio  float64 `yaml:"sample_ratio"`  // 0~1，0表示不采样
	ServiceName  string  `yaml:"service_name"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	Format       string `yaml:"format"`        // json, pretty
	TimeFormat   string `yaml:"time_format"`   // 时间格式
	ReportCaller bool   `yaml:"report_caller"` // 是否报告调用位置
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	// 如果未指定配置文件路径，则尝试在默认位置查找
	if configPath == "" {
		// 尝试在常见位置查找配置文件
		searchPaths := []string{
			"config.yaml",
			"./config.yaml",
			"../config.yaml",
			"../../config.yaml",
			filepath.Join(os.Getenv("HOME"), ".hiregenius", "config.yaml"),
		}

		// 获取当前可执行文件路径
		execPath, err := os.Executable()
		if err == nil {
			execDir := filepath.Dir(execPath)
			searchPaths = append(searchPaths, filepath.Join(execDir, "config.yaml"))
			searchPaths = append(searchPaths, filepath.Join(execDir, "..", "config.yaml"))
		}

		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}

		// 如果仍找不到配置文件，使用默认路径，但不返回错误
		if configPath == "" {
			// 检测是否在测试环境
			inTest := false
			for _, arg := range os.Args {
				if strings.Contains(arg, "test") {
					inTest = true
					break
				}
			}

			// 如果在测试环境中，返回默认配置而不抛出错误
			if inTest {
				return createDefaultConfig(), nil
			}

			configPath = "config.yaml"
		}
	}

	// 检查文件是否存在
	_, err := os.Stat(configPath)
	if err != nil {
		inTest := false
		for _, arg := range os.Args {
			if strings.Contains(arg, "test") {
				inTest = true
				break
			}
		}

		if inTest {
			return createDefaultConfig(), nil
		}

		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	// 读取配置文件
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置文件
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 从环境变量覆盖配置（如果存在）
	if envKey := os.Getenv("GROQ_API_KEY"); envKey != "" {
		config.Groq.APIKey = envKey
	}
	if envURL := os.Getenv("GROQ_API_URL"); envURL != "" {
		config.Groq.APIURL = envURL
	}
	if envModel := os.Getenv("GROQ_MODEL"); envModel != "" {
		config.Groq.Model = envModel
	}
	if envSMTPPass := os.Getenv("SMTP_PASSWORD"); envSMTPPass != "" {
		config.Notifier.Password = envSMTPPass
	}

	applyDefaults(&config)

	return &config, nil
}

// applyDefaults 为未设置的配置项填充默认值
func applyDefaults(config *Config) {
	if config.Server.Address == "" {
		config.Server.Address = ":8080" // 默认服务器地址
	}
	if config.Groq.Embedding.Model == "" {
		config.Groq.Embedding.Model = "text-embedding-3-small"
	}
	if config.Groq.Embedding.Dimensions == 0 {
		config.Groq.Embedding.Dimensions = 1536
	}
	if config.Groq.Embedding.BaseURL == "" {
		config.Groq.Embedding.BaseURL = "https://api.openai.com/v1/embeddings"
	}
	if config.VectorIndex.IndexPath == "" {
		config.VectorIndex.IndexPath = "data/resume_index.bin"
	}
	if config.VectorIndex.Dimension == 0 {
		config.VectorIndex.Dimension = config.Groq.Embedding.Dimensions
	}
	if config.VectorIndex.TopK == 0 {
		config.VectorIndex.TopK = 10
	}
	if config.Redis.JDCacheExpireHours == 0 {
		config.Redis.JDCacheExpireHours = 24
	}
	if config.Notifier.TimeoutSeconds == 0 {
		config.Notifier.TimeoutSeconds = 10
	}
	// 未配置SMTP主机时自动进入模拟模式
	if config.Notifier.SMTPHost == "" {
		config.Notifier.MockMode = true
	}
}

// 创建一个默认配置，用于测试环境
func createDefaultConfig() *Config {
	config := &Config{}
	// 设置默认值
	config.Groq.APIURL = "https://api.groq.com/openai/v1/chat/completions"
	config.Groq.Model = "llama-3.3-70b-versatile"

	// MinIO默认配置
	config.MinIO.Endpoint = "localhost:9000"
	config.MinIO.AccessKeyID = "minioadmin"
	config.MinIO.SecretAccessKey = "minioadmin123"
	config.MinIO.UseSSL = false
	config.MinIO.ResumeBucket = "resumes"
	config.MinIO.Location = ""
	config.MinIO.ResumeExpireDays = 1095 // 默认3年过期

	// MySQL默认配置
	config.MySQL.Host = "localhost"
	config.MySQL.Port = 3306
	config.MySQL.Username = "root"
	config.MySQL.Password = "password"
	config.MySQL.Database = "hiregenius"
	// MySQL连接池默认配置
	config.MySQL.MaxIdleConns = 10
	config.MySQL.MaxOpenConns = 100
	config.MySQL.ConnMaxLifetimeMinutes = 60
	config.MySQL.ConnMaxIdleTimeMinutes = 30
	config.MySQL.ConnectTimeoutSeconds = 10
	config.MySQL.ReadTimeoutSeconds = 30
	config.MySQL.WriteTimeoutSeconds = 30
	config.MySQL.LogLevel = 4 // Info级别

	// Redis默认配置
	config.Redis.Address = "localhost:6379"
	config.Redis.Password = ""
	config.Redis.DB = 0
	// Redis连接池默认配置
	config.Redis.PoolSize = 10
	config.Redis.MinIdleConns = 2
	config.Redis.DialTimeoutSeconds = 5
	config.Redis.ReadTimeoutSeconds = 3
	config.Redis.WriteTimeoutSeconds = 3
	config.Redis.MaxRetries = 3
	config.Redis.MinRetryBackoffMS = 8
	config.Redis.MaxRetryBackoffMS = 512
	config.Redis.ConnMaxLifetimeMinutes = 60
	config.Redis.ConnMaxIdleTimeMinutes = 30
	config.Redis.JDCacheExpireHours = 24

	// 提取器/评估器/生成器默认配置
	config.ProfileExtractor.Temperature = 0.1
	config.ProfileExtractor.ExtractionTimeout = "60s"
	config.MatchEvaluator.Temperature = 0.1
	config.MatchEvaluator.EvalTimeout = "60s"
	config.QuizGenerator.Temperature = 0.3
	config.QuizGenerator.GenerateTimeout = "60s"

	// 获取环境变量
	if envKey := os.Getenv("GROQ_API_KEY"); envKey != "" {
		config.Groq.APIKey = envKey
	} else {
		config.Groq.APIKey = "test_api_key"
	}

	// 日志默认配置
	config.Logger.Level = "info"
	config.Logger.Format = "pretty" // 开发环境默认使用美化输出
	config.Logger.TimeFormat = "2006-01-02 15:04:05"
	config.Logger.ReportCaller = true

	applyDefaults(config)

	return config
}

// CreateSampleConfig 创建一个示例配置文件
func CreateSampleConfig(filePath string) error {
	// 检查文件是否已存在
	if _, err := os.Stat(filePath); err == nil {
		return fmt.Errorf("文件 '%s' 已存在，不会覆盖", filePath)
	}

	// 创建一个默认配置实例
	config := createDefaultConfig()

	// 将配置序列化为YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	// 写入文件
	err = os.WriteFile(filePath, data, 0644)
	if err != nil {
		return fmt.Errorf("写入示例配置文件 '%s' 失败: %w", filePath, err)
	}

	fmt.Printf("示例配置文件已创建: %s\n", filePath)
	return nil
}

// GetModelForTask 根据任务名称获取合适的模型
// 如果任务专用模型存在则返回专用模型，否则返回默认模型
func (c *Config) GetModelForTask(taskName string) string {
	// 检查是否有任务专用模型
	if c.Groq.TaskModels != nil {
		if model, ok := c.Groq.TaskModels[taskName]; ok && model != "" {
			return model
		}
	}
	// 返回默认模型
	return c.Groq.Model
}

// GetDuration utility to parse duration strings from config
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return d
}
