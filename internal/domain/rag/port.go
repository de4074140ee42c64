package rag

import "context"

// Ledger defines the relational bookkeeping operations required by the
// ingestion pipeline and the metadata API.
type Ledger interface {
	// CreateDocument persists the initial "processing" row before heavy work begins.
	CreateDocument(ctx context.Context, doc *DocumentRecord) error
	// FinalizeDocument writes all chunk rows and flips the document to
	// "completed" in a single transaction.
	FinalizeDocument(ctx context.Context, docID string, numPages int, chunks []ChunkRecord) error
	// MarkDocumentFailed flips the document to "failed" (best effort).
	MarkDocumentFailed(ctx context.Context, docID string) error
	ListDocuments(ctx context.Context, params ListDocumentsParams) ([]DocumentRecord, error)
	CountDocuments(ctx context.Context) (int64, error)
	// PurgeAll deletes every chunk and document row, returning the counts.
	PurgeAll(ctx context.Context) (chunks int64, documents int64, err error)
}

// ListDocumentsParams paginated listing, newest first.
type ListDocumentsParams struct {
	Skip   int
	Limit  int
	Status string // optional filter
}

// QueryCache defines optional caching of retrieval results.
type QueryCache interface {
	Get(ctx context.Context, query string, topK int) ([]RetrievedChunk, bool)
	Set(ctx context.Context, query string, topK int, chunks []RetrievedChunk)
	InvalidateAll(ctx context.Context)
}
