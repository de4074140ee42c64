package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"panrag/internal/domain/rag"
	applog "panrag/internal/platform/log"
)

// Ledger PostgreSQL 文档/分块台账
type Ledger struct {
	db *sqlx.DB
}

// Open 连接数据库并配置连接池
func Open(databaseURL string) (*Ledger, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Ledger{db: db}, nil
}

// NewLedger 用已有连接构建台账（测试用）
func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// EnsureTables 确保台账表存在
func (l *Ledger) EnsureTables(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS documents (
		id          UUID PRIMARY KEY,
		filename    VARCHAR(512) NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		num_pages   INTEGER NOT NULL DEFAULT 0,
		status      VARCHAR(32) NOT NULL DEFAULT 'processing'
	);
	CREATE INDEX IF NOT EXISTS idx_documents_uploaded ON documents(uploaded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

	CREATE TABLE IF NOT EXISTS chunks (
		id          UUID PRIMARY KEY,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_text  TEXT NOT NULL,
		page_number INTEGER NOT NULL DEFAULT 0,
		chunk_index INTEGER NOT NULL,
		vector_id   UUID UNIQUE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index);
	`
	_, err := l.db.ExecContext(ctx, ddl)
	return err
}

// CreateDocument 写入初始 processing 行
func (l *Ledger) CreateDocument(ctx context.Context, doc *rag.DocumentRecord) error {
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO documents (id, filename, uploaded_at, num_pages, status)
		VALUES (:id, :filename, :uploaded_at, :num_pages, :status)`, doc)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", rag.ErrDuplicateDocument, doc.Filename)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// FinalizeDocument 单事务写入所有分块行并把文档置为 completed
func (l *Ledger) FinalizeDocument(ctx context.Context, docID string, numPages int, chunks []rag.ChunkRecord) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if len(chunks) > 0 {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO chunks (id, document_id, chunk_text, page_number, chunk_index, vector_id)
			VALUES (:id, :document_id, :chunk_text, :page_number, :chunk_index, :vector_id)`, chunks)
		if err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET status = $1, num_pages = $2 WHERE id = $3`,
		rag.StatusCompleted, numPages, docID)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document not found: %s", docID)
	}
	return tx.Commit()
}

// MarkDocumentFailed 把文档置为 failed
func (l *Ledger) MarkDocumentFailed(ctx context.Context, docID string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE documents SET status = $1 WHERE id = $2`, rag.StatusFailed, docID)
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return nil
}

// ListDocuments 按上传时间倒序分页列出文档
func (l *Ledger) ListDocuments(ctx context.Context, params rag.ListDocumentsParams) ([]rag.DocumentRecord, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}
	if params.Skip < 0 {
		params.Skip = 0
	}

	query := `SELECT id, filename, uploaded_at, num_pages, status FROM documents`
	args := []any{}
	if params.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, params.Status)
	}
	query += fmt.Sprintf(` ORDER BY uploaded_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Skip)

	docs := []rag.DocumentRecord{}
	if err := l.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// CountDocuments 返回文档总数
func (l *Ledger) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := l.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM documents`); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// PurgeAll 清空所有分块与文档行，返回删除数量
func (l *Ledger) PurgeAll(ctx context.Context) (chunks int64, documents int64, err error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM chunks`)
	if err != nil {
		return 0, 0, fmt.Errorf("delete chunks: %w", err)
	}
	chunks, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, 0, fmt.Errorf("delete documents: %w", err)
	}
	documents, _ = res.RowsAffected()

	if err = tx.Commit(); err != nil {
		return 0, 0, err
	}
	applog.Info("[Storage] Purged ledger", "chunks", chunks, "documents", documents)
	return chunks, documents, nil
}
