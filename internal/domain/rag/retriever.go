package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "panrag/internal/platform/log"
	"panrag/internal/vectorindex"
)

// Retriever 检索引擎：查询向量化 → 近邻检索 → 结果收束。
// 索引在每次检索时从磁盘以 load-only 语义重新打开，不做跨请求内存共享。
type Retriever struct {
	embedder Embedder   // nil = Embedding 网关不可用
	cache    QueryCache // 可选
	indexDir string
	maxTopK  int
	dedup    bool
}

// NewRetriever 创建检索引擎
func NewRetriever(cfg *Config) *Retriever {
	maxTopK := cfg.MaxTopK
	if maxTopK <= 0 {
		maxTopK = 20
	}
	return &Retriever{
		indexDir: cfg.IndexDir,
		maxTopK:  maxTopK,
		dedup:    cfg.DedupResults,
	}
}

// SetEmbedder 设置 Embedding 网关
func (r *Retriever) SetEmbedder(e Embedder) {
	r.embedder = e
}

// SetCache 设置检索缓存
func (r *Retriever) SetCache(c QueryCache) {
	r.cache = c
}

// Retrieve 返回与 query 最相关的至多 topK 个分块，按相似度降序。
// 索引尚不存在（从未入库）返回空结果而非错误；其余失败原样上抛。
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievedChunk, error) {
	if topK <= 0 || topK > r.maxTopK {
		topK = r.maxTopK
	}

	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, query, topK); ok {
			return cached, nil
		}
	}

	start := time.Now()

	idx, err := vectorindex.Load(r.indexDir)
	if err != nil {
		if errors.Is(err, vectorindex.ErrIndexNotFound) {
			// 可预期状态：尚无任何入库。留日志信号，对调用方呈现为空结果。
			applog.Warn("[Retriever] Vector index absent, returning no results", "dir", r.indexDir)
			return nil, nil
		}
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	if idx.Len() == 0 {
		return nil, nil
	}

	if r.embedder == nil {
		return nil, ErrEmbedderUnavailable
	}
	vector, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := idx.Search(vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}

	chunks := make([]RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, RetrievedChunk{
			Text:     h.Text,
			Score:    h.Score,
			Metadata: h.Metadata,
		})
	}
	if r.dedup {
		chunks = collapseDuplicates(chunks)
	}

	applog.Info("[Retriever] Search done",
		"query", query,
		"top_k", topK,
		"index_size", idx.Len(),
		"results", len(chunks),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if r.cache != nil && len(chunks) > 0 {
		r.cache.Set(ctx, query, topK, chunks)
	}
	return chunks, nil
}

// collapseDuplicates 去除同一文档内文本完全一致的重复分块，保序。
func collapseDuplicates(chunks []RetrievedChunk) []RetrievedChunk {
	seen := make(map[string]bool, len(chunks))
	out := chunks[:0]
	for _, c := range chunks {
		key := c.Metadata["document_id"] + "\x00" + c.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
