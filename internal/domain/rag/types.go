package rag

import "time"

// 文档生命周期状态
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Page 解析出的单页文本
type Page struct {
	Text   string `json:"text"`
	Number int    `json:"number"` // 1 起始页码；0 = 解析器未提供
}

// ChunkCandidate 分块结果，等待 embedding 入库
type ChunkCandidate struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"` // 原始文件名
	Title      string `json:"title"`
	Text       string `json:"text"`
	PageNumber int    `json:"page_number"`
	Index      int    `json:"index"` // 文档内零起始连续序号
}

// RetrievedChunk 单条检索结果
type RetrievedChunk struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestResult 单文档入库结果
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	NumPages   int    `json:"num_pages"`
	NumChunks  int    `json:"num_chunks"`
	Status     string `json:"status"`
}

// DocumentRecord 台账 documents 行
type DocumentRecord struct {
	ID         string    `json:"id" db:"id"`
	Filename   string    `json:"filename" db:"filename"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
	NumPages   int       `json:"num_pages" db:"num_pages"`
	Status     string    `json:"status" db:"status"`
}

// ChunkRecord 台账 chunks 行。VectorID 为 nil 表示该分块未成功入向量索引。
type ChunkRecord struct {
	ID         string  `json:"id" db:"id"`
	DocumentID string  `json:"document_id" db:"document_id"`
	Text       string  `json:"chunk_text" db:"chunk_text"`
	PageNumber int     `json:"page_number" db:"page_number"`
	ChunkIndex int     `json:"chunk_index" db:"chunk_index"`
	VectorID   *string `json:"vector_id,omitempty" db:"vector_id"`
}
