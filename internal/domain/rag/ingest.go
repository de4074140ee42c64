package rag

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	applog "panrag/internal/platform/log"
	"panrag/internal/vectorindex"
)

// Ingestor 文档入库 Pipeline：
// received → loaded → chunked → embedded → indexed → ledger-written(completed)，
// 任一阶段失败转入 failed 终态并在返回错误前持久化该状态。
type Ingestor struct {
	ledger   Ledger
	parsers  *ParserRegistry
	chunker  *Chunker
	embedder Embedder   // nil = Embedding 网关不可用
	cache    QueryCache // 可选：入库后失效检索缓存
	indexDir string
	dims     int
}

// NewIngestor 创建入库 Pipeline
func NewIngestor(ledger Ledger, cfg *Config) *Ingestor {
	return &Ingestor{
		ledger:   ledger,
		parsers:  NewParserRegistry(),
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		indexDir: cfg.IndexDir,
		dims:     cfg.EmbeddingDims,
	}
}

// SetEmbedder 设置 Embedding 网关
func (ing *Ingestor) SetEmbedder(e Embedder) {
	ing.embedder = e
}

// SetCache 设置检索缓存（入库后自动失效）
func (ing *Ingestor) SetCache(c QueryCache) {
	ing.cache = c
}

// Parsers 返回解析器注册表
func (ing *Ingestor) Parsers() *ParserRegistry {
	return ing.parsers
}

// Ingest 入库单个文档。返回错误时台账中的文档行已置为 failed。
func (ing *Ingestor) Ingest(ctx context.Context, filename string, content []byte) (*IngestResult, error) {
	start := time.Now()

	parser, err := ing.parsers.Get(filename)
	if err != nil {
		return nil, err
	}

	docID := uuid.New().String()
	applog.Info("[Ingest] Started", "document_id", docID, "filename", filename, "bytes", len(content))

	// 重活之前先落 processing 行，中途崩溃也留下可检查的记录
	doc := &DocumentRecord{
		ID:         docID,
		Filename:   filename,
		UploadedAt: time.Now().UTC(),
		Status:     StatusProcessing,
	}
	if err := ing.ledger.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document row: %w", err)
	}

	result, err := ing.run(ctx, docID, filename, content, parser)
	if err != nil {
		ing.failDocument(ctx, docID, filename, err)
		return nil, err
	}

	if ing.cache != nil {
		ing.cache.InvalidateAll(ctx)
	}

	applog.Info("[Ingest] Completed",
		"document_id", docID,
		"filename", filename,
		"num_pages", result.NumPages,
		"num_chunks", result.NumChunks,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (ing *Ingestor) run(ctx context.Context, docID, filename string, content []byte, parser Parser) (*IngestResult, error) {
	parsed, err := parser.Parse(bytes.NewReader(content), filename)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	numPages := parsed.NumPages()

	chunks := ing.chunker.ChunkPages(docID, filename, parsed.Pages)
	applog.Debug("[Ingest] Chunked", "document_id", docID, "pages", numPages, "chunks", len(chunks))

	// 网关不可用或调用失败：在索引被改动之前放弃
	if ing.embedder == nil {
		return nil, ErrEmbedderUnavailable
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ing.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) < len(chunks) {
		applog.Warn("[Ingest] Partial embedding result",
			"document_id", docID, "chunks", len(chunks), "vectors", len(vectors))
	}

	vectorIDs, err := ing.writeIndex(chunks, vectors)
	if err != nil {
		return nil, err
	}

	// 向量 id 与分块按位置对齐；embedding 不足时尾部分块落 NULL vector_id
	records := make([]ChunkRecord, len(chunks))
	for i, c := range chunks {
		rec := ChunkRecord{
			ID:         uuid.New().String(),
			DocumentID: docID,
			Text:       c.Text,
			PageNumber: c.PageNumber,
			ChunkIndex: c.Index,
		}
		if i < len(vectorIDs) {
			id := vectorIDs[i]
			rec.VectorID = &id
		}
		records[i] = rec
	}

	if err := ing.ledger.FinalizeDocument(ctx, docID, numPages, records); err != nil {
		return nil, fmt.Errorf("finalize ledger: %w", err)
	}

	return &IngestResult{
		DocumentID: docID,
		Filename:   filename,
		NumPages:   numPages,
		NumChunks:  len(chunks),
		Status:     StatusCompleted,
	}, nil
}

// writeIndex 在索引路径锁内执行 open → add → save，
// 避免并发入库互相覆盖持久化状态。
func (ing *Ingestor) writeIndex(chunks []ChunkCandidate, vectors [][]float32) ([]string, error) {
	n := len(vectors)
	if n > len(chunks) {
		n = len(chunks)
	}
	entries := make([]vectorindex.Entry, 0, n)
	for i := 0; i < n; i++ {
		c := chunks[i]
		entries = append(entries, vectorindex.Entry{
			Text:   c.Text,
			Vector: vectors[i],
			Metadata: map[string]string{
				"source":      c.Source,
				"document_id": c.DocumentID,
				"doc_title":   c.Title,
				"chunk_index": strconv.Itoa(c.Index),
				"page_number": strconv.Itoa(c.PageNumber),
			},
		})
	}

	lock := vectorindex.PathLock(ing.indexDir)
	lock.Lock()
	defer lock.Unlock()

	idx, err := vectorindex.OpenOrCreate(ing.indexDir, ing.dims)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	ids, err := idx.Add(entries)
	if err != nil {
		return nil, fmt.Errorf("add to vector index: %w", err)
	}
	if err := idx.Save(ing.indexDir); err != nil {
		return nil, fmt.Errorf("save vector index: %w", err)
	}
	return ids, nil
}

// failDocument 尽力把文档行翻转为 failed。使用不随请求取消的 context，
// 调用方取消不应阻止终态落盘。
func (ing *Ingestor) failDocument(ctx context.Context, docID, filename string, cause error) {
	applog.Error("[Ingest] Failed", "document_id", docID, "filename", filename, "error", cause)

	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := ing.ledger.MarkDocumentFailed(failCtx, docID); err != nil {
		applog.Warn("[Ingest] Could not persist failed status", "document_id", docID, "error", err)
	}
}
