package rag

// Config RAG 模块配置
type Config struct {
	// 向量索引目录（两个文件：vectors.bin + entries.json）
	IndexDir string `json:"index_dir"`

	// Chunker 配置
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`

	// 检索配置
	DefaultTopK  int  `json:"default_top_k"`
	MaxTopK      int  `json:"max_top_k"` // 硬上限，限制 prompt 体积
	DedupResults bool `json:"dedup_results"`

	// Embedding
	EmbeddingModel string `json:"embedding_model"`
	EmbeddingDims  int    `json:"embedding_dims"`

	// 上传限制
	MaxUploadFiles int `json:"max_upload_files"`
	MaxFileSizeMB  int `json:"max_file_size_mb"`

	// 缓存配置，0 = 禁用
	CacheTTL int `json:"cache_ttl"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		IndexDir:       "vector_db_data/index",
		ChunkSize:      1000,
		ChunkOverlap:   200,
		DefaultTopK:    20,
		MaxTopK:        20,
		DedupResults:   false,
		EmbeddingModel: "text-embedding-3-small",
		EmbeddingDims:  1536,
		MaxUploadFiles: 20,
		MaxFileSizeMB:  100,
		CacheTTL:       0,
	}
}

// HasCache 是否启用检索缓存
func (c *Config) HasCache() bool {
	return c.CacheTTL > 0
}
