package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hiregenius-go/internal/config"
	"hiregenius-go/internal/constants"
	"hiregenius-go/internal/types"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	// 使用扩展的配置选项
	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	// Ping to check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetJDCacheDuration 返回配置的JD文本缓存时长
func (r *Redis) GetJDCacheDuration() time.Duration {
	hours := r.config.JDCacheExpireHours
	if hours <= 0 {
		return constants.JDCacheDuration
	}
	return time.Duration(hours) * time.Hour
}

// CacheJobDescription 缓存岗位描述文本，用于匹配评估和出题时避免重复查库
func (r *Redis) CacheJobDescription(ctx context.Context, jobID string, text string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyJobDescriptionText, jobID)
	return r.Client.Set(ctx, key, text, r.GetJDCacheDuration()).Err()
}

// GetCachedJobDescription 读取缓存的岗位描述文本，未命中时返回ErrNotFound
func (r *Redis) GetCachedJobDescription(ctx context.Context, jobID string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyJobDescriptionText, jobID)
	return r.Client.Get(ctx, key).Result()
}

// cachedQuizEntry 测验缓存的存储形态，连同兜底标记一起缓存
type cachedQuizEntry struct {
	Questions []types.QuizQuestion `json:"questions"`
	Fallback  bool                 `json:"fallback"`
}

// CacheLatestQuiz 缓存某岗位最新一套测验的题目列表及兜底标记
func (r *Redis) CacheLatestQuiz(ctx context.Context, jobID string, questions []types.QuizQuestion, fallback bool) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	data, err := json.Marshal(cachedQuizEntry{Questions: questions, Fallback: fallback})
	if err != nil {
		return fmt.Errorf("序列化测验题目失败: %w", err)
	}
	key := fmt.Sprintf(constants.KeyLatestQuiz, jobID)
	return r.Client.Set(ctx, key, data, r.GetJDCacheDuration()).Err()
}

// GetCachedLatestQuiz 读取缓存的最新测验题目和兜底标记，未命中时返回ErrNotFound
func (r *Redis) GetCachedLatestQuiz(ctx context.Context, jobID string) ([]types.QuizQuestion, bool, error) {
	if r.Client == nil {
		return nil, false, fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyLatestQuiz, jobID)
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false, err
	}
	var entry cachedQuizEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("反序列化测验题目失败: %w", err)
	}
	return entry.Questions, entry.Fallback, nil
}

// InvalidateLatestQuiz 使最新测验缓存失效，重新出题后调用
func (r *Redis) InvalidateLatestQuiz(ctx context.Context, jobID string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyLatestQuiz, jobID)
	return r.Client.Del(ctx, key).Err()
}

// IncrNotifyFailureCount 累加通知发送失败计数器，返回累加后的值
// 通知失败不阻断主流程，但需要可观测
func (r *Redis) IncrNotifyFailureCount(ctx context.Context) (int64, error) {
	if r.Client == nil {
		return 0, fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Incr(ctx, constants.KeyNotifyFailureCount).Result()
}

// GetNotifyFailureCount 读取通知发送失败计数
func (r *Redis) GetNotifyFailureCount(ctx context.Context) (int64, error) {
	if r.Client == nil {
		return 0, fmt.Errorf("redis client is not initialized")
	}
	count, err := r.Client.Get(ctx, constants.KeyNotifyFailureCount).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}
