// Package processor 实现候选人筛选流水线的编排逻辑。
package processor

import (
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"

	"hiregenius-go/internal/config"
)

var tracer = otel.Tracer("hiregenius-go/processor")

// Components 聚合流水线的全部组件依赖，便于集中装配和测试替换
type Components struct {
	TextExtractor    ResumeTextExtractor // 简历文件 -> 纯文本
	ProfileExtractor ProfileExtractor    // 纯文本 -> 结构化画像
	MatchEvaluator   MatchEvaluator      // 画像 x JD -> 匹配评估
	QuizGenerator    QuizGenerator       // JD -> 测验题目
	Embedder         embedding.Embedder  // 文本 -> 向量
	Notifier         Notifier            // 面试邀请通知

	Store       ScreeningStore  // 关系存储
	VectorIndex VectorIndex     // 相似度索引
	FileStore   ResumeFileStore // 简历原始文件归档，可为nil
	Cache       ScreeningCache  // JD/测验缓存，可为nil
}

// ComponentOpt 组件选项函数
type ComponentOpt func(*Components)

// WithTextExtractor 设置简历文本提取组件
func WithTextExtractor(extractor ResumeTextExtractor) ComponentOpt {
	return func(c *Components) {
		c.TextExtractor = extractor
	}
}

// WithProfileExtractor 设置画像提取组件
func WithProfileExtractor(extractor ProfileExtractor) ComponentOpt {
	return func(c *Components) {
		c.ProfileExtractor = extractor
	}
}

// WithMatchEvaluator 设置匹配评估组件
func WithMatchEvaluator(evaluator MatchEvaluator) ComponentOpt {
	return func(c *Components) {
		c.MatchEvaluator = evaluator
	}
}

// WithQuizGenerator 设置测验生成组件
func WithQuizGenerator(generator QuizGenerator) ComponentOpt {
	return func(c *Components) {
		c.QuizGenerator = generator
	}
}

// WithEmbedder 设置向量化组件
func WithEmbedder(embedder embedding.Embedder) ComponentOpt {
	return func(c *Components) {
		c.Embedder = embedder
	}
}

// WithNotifier 设置通知组件
func WithNotifier(notifier Notifier) ComponentOpt {
	return func(c *Components) {
		c.Notifier = notifier
	}
}

// WithStore 设置关系存储
func WithStore(store ScreeningStore) ComponentOpt {
	return func(c *Components) {
		c.Store = store
	}
}

// WithVectorIndex 设置向量索引
func WithVectorIndex(index VectorIndex) ComponentOpt {
	return func(c *Components) {
		c.VectorIndex = index
	}
}

// WithFileStore 设置简历文件归档存储
func WithFileStore(store ResumeFileStore) ComponentOpt {
	return func(c *Components) {
		c.FileStore = store
	}
}

// WithCache 设置缓存
func WithCache(cache ScreeningCache) ComponentOpt {
	return func(c *Components) {
		c.Cache = cache
	}
}

// ScreeningService 筛选流水线服务，围绕两个触发事件
// (简历提交、答卷提交)编排各组件，并持有派生记录间的一致性规则
type ScreeningService struct {
	components Components
	cfg        *config.Config
	locks      *keyLock
}

// NewScreeningService 装配筛选服务。
// 必选依赖缺失时返回错误，可选依赖(FileStore/Cache/Notifier)允许为nil
func NewScreeningService(cfg *config.Config, opts ...ComponentOpt) (*ScreeningService, error) {
	var components Components
	for _, opt := range opts {
		opt(&components)
	}

	if components.Store == nil {
		return nil, fmt.Errorf("screening service: store is required")
	}
	if components.TextExtractor == nil {
		return nil, fmt.Errorf("screening service: text extractor is required")
	}
	if components.ProfileExtractor == nil {
		return nil, fmt.Errorf("screening service: profile extractor is required")
	}
	if components.MatchEvaluator == nil {
		return nil, fmt.Errorf("screening service: match evaluator is required")
	}
	if components.QuizGenerator == nil {
		return nil, fmt.Errorf("screening service: quiz generator is required")
	}
	if components.VectorIndex == nil {
		return nil, fmt.Errorf("screening service: vector index is required")
	}

	return &ScreeningService{
		components: components,
		cfg:        cfg,
		locks:      newKeyLock(),
	}, nil
}
