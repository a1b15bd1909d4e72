package storage

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"hiregenius-go/internal/config"
	"hiregenius-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var vectorTracer = otel.Tracer("hiregenius-go/storage/vector_index")

// indexSnapshot 落盘的索引快照，向量和槽位映射合并存储，保证两者一致
type indexSnapshot struct {
	Dimension int
	Vectors   [][]float64
	IDs       []string // 槽位号 -> 候选人ID
}

// FlatVectorIndex 平面L2向量索引
// 槽位号单调递增；候选人重复入库时追加新槽位，旧槽位保留，
// 搜索时对同一候选人去重并取最小距离
type FlatVectorIndex struct {
	mu        sync.RWMutex
	dimension int
	path      string
	vectors   [][]float64
	ids       []string
}

// NewFlatVectorIndex 创建索引，如快照文件存在则恢复
func NewFlatVectorIndex(cfg *config.VectorIndexConfig) (*FlatVectorIndex, error) {
	if cfg == nil {
		return nil, fmt.Errorf("向量索引配置不能为空")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("向量维度必须为正数: %d", cfg.Dimension)
	}

	idx := &FlatVectorIndex{
		dimension: cfg.Dimension,
		path:      cfg.IndexPath,
	}

	if cfg.IndexPath != "" {
		if err := idx.load(); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

// load 从快照文件恢复索引内容
func (idx *FlatVectorIndex) load() error {
	f, err := os.Open(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // 首次启动，从空索引开始
		}
		return fmt.Errorf("打开索引快照失败: %w", err)
	}
	defer f.Close()

	var snap indexSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("解码索引快照失败: %w", err)
	}
	if snap.Dimension != idx.dimension {
		return fmt.Errorf("索引快照维度不匹配: 期望 %d, 实际 %d", idx.dimension, snap.Dimension)
	}
	if len(snap.Vectors) != len(snap.IDs) {
		return fmt.Errorf("索引快照损坏: 向量数 %d 与槽位映射数 %d 不一致", len(snap.Vectors), len(snap.IDs))
	}

	idx.vectors = snap.Vectors
	idx.ids = snap.IDs
	return nil
}

// persistLocked 原子落盘快照: 先写临时文件再rename
// 调用方必须持有写锁
func (idx *FlatVectorIndex) persistLocked() error {
	if idx.path == "" {
		return nil // 纯内存模式，用于测试
	}

	dir := filepath.Dir(idx.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建索引目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时快照文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	snap := indexSnapshot{
		Dimension: idx.dimension,
		Vectors:   idx.vectors,
		IDs:       idx.ids,
	}
	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		tmp.Close()
		return fmt.Errorf("编码索引快照失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时快照文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, idx.path); err != nil {
		return fmt.Errorf("替换索引快照失败: %w", err)
	}
	return nil
}

// Add 向索引追加一条向量，返回分配的槽位号
func (idx *FlatVectorIndex) Add(ctx context.Context, candidateID string, vector []float64) (int64, error) {
	_, span := vectorTracer.Start(ctx, "FlatVectorIndex.Add", trace.WithAttributes(
		attribute.String("candidate.id", candidateID),
	))
	defer span.End()

	if len(vector) != idx.dimension {
		err := fmt.Errorf("向量维度不匹配: 期望 %d, 实际 %d", idx.dimension, len(vector))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// 拷贝入库，避免调用方后续修改切片
	vec := make([]float64, len(vector))
	copy(vec, vector)

	idx.vectors = append(idx.vectors, vec)
	idx.ids = append(idx.ids, candidateID)
	slot := int64(len(idx.ids) - 1)

	if err := idx.persistLocked(); err != nil {
		// 落盘失败时回滚内存状态，保持索引与快照一致
		idx.vectors = idx.vectors[:len(idx.vectors)-1]
		idx.ids = idx.ids[:len(idx.ids)-1]
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int64("vector.slot", slot))
	span.SetStatus(codes.Ok, "")
	return slot, nil
}

// Search 搜索与查询向量最相似的候选人，按平方L2距离升序返回
// 同一候选人有多条向量时只保留距离最小的一条
func (idx *FlatVectorIndex) Search(ctx context.Context, vector []float64, topK int) ([]types.SimilarCandidate, error) {
	_, span := vectorTracer.Start(ctx, "FlatVectorIndex.Search", trace.WithAttributes(
		attribute.Int("search.top_k", topK),
	))
	defer span.End()

	if len(vector) != idx.dimension {
		err := fmt.Errorf("向量维度不匹配: 期望 %d, 实际 %d", idx.dimension, len(vector))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	best := make(map[string]float64, len(idx.ids))
	for slot, candidateID := range idx.ids {
		dist := squaredL2(vector, idx.vectors[slot])
		if prev, ok := best[candidateID]; !ok || dist < prev {
			best[candidateID] = dist
		}
	}

	results := make([]types.SimilarCandidate, 0, len(best))
	for candidateID, dist := range best {
		results = append(results, types.SimilarCandidate{CandidateID: candidateID, Distance: dist})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].CandidateID < results[j].CandidateID
	})

	if len(results) > topK {
		results = results[:topK]
	}

	span.SetAttributes(attribute.Int("search.result_count", len(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}

// Len 返回索引中的向量条数(含同一候选人的历史向量)
func (idx *FlatVectorIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// squaredL2 计算两向量的平方L2距离
func squaredL2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
