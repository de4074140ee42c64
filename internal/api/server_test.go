package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"panrag/internal/api"
	"panrag/internal/domain/rag"
)

// memLedger 内存台账
type memLedger struct {
	docs   []rag.DocumentRecord
	chunks map[string][]rag.ChunkRecord
}

func newMemLedger() *memLedger {
	return &memLedger{chunks: make(map[string][]rag.ChunkRecord)}
}

func (l *memLedger) CreateDocument(_ context.Context, doc *rag.DocumentRecord) error {
	l.docs = append(l.docs, *doc)
	return nil
}

func (l *memLedger) FinalizeDocument(_ context.Context, docID string, numPages int, chunks []rag.ChunkRecord) error {
	for i := range l.docs {
		if l.docs[i].ID == docID {
			l.docs[i].Status = rag.StatusCompleted
			l.docs[i].NumPages = numPages
			l.chunks[docID] = chunks
			return nil
		}
	}
	return errors.New("document not found")
}

func (l *memLedger) MarkDocumentFailed(_ context.Context, docID string) error {
	for i := range l.docs {
		if l.docs[i].ID == docID {
			l.docs[i].Status = rag.StatusFailed
			return nil
		}
	}
	return errors.New("document not found")
}

func (l *memLedger) ListDocuments(_ context.Context, params rag.ListDocumentsParams) ([]rag.DocumentRecord, error) {
	out := []rag.DocumentRecord{}
	for _, d := range l.docs {
		if params.Status != "" && d.Status != params.Status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (l *memLedger) CountDocuments(_ context.Context) (int64, error) {
	return int64(len(l.docs)), nil
}

func (l *memLedger) PurgeAll(_ context.Context) (int64, int64, error) {
	nd := int64(len(l.docs))
	l.docs = nil
	l.chunks = make(map[string][]rag.ChunkRecord)
	return 0, nd, nil
}

// stubEmbedder 固定维度确定性向量
type stubEmbedder struct{ dims int }

func (e *stubEmbedder) Dims() int { return e.dims }

func (e *stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dims)
		for j := range vec {
			vec[j] = float32(j + 1)
		}
		out[i] = vec
	}
	return out, nil
}

func newTestServer(t *testing.T) (http.Handler, *memLedger) {
	t.Helper()
	cfg := rag.DefaultConfig()
	cfg.IndexDir = t.TempDir()
	cfg.EmbeddingDims = 4
	cfg.MaxUploadFiles = 3 // 便于测试数量上限

	ledger := newMemLedger()
	ingestor := rag.NewIngestor(ledger, cfg)
	ingestor.SetEmbedder(&stubEmbedder{dims: 4})
	retriever := rag.NewRetriever(cfg)
	retriever.SetEmbedder(&stubEmbedder{dims: 4})
	synthesizer := rag.NewSynthesizer("", "")

	server := api.NewServer(nil, ledger, ingestor, retriever, synthesizer, cfg)
	return server.Handler(), ledger
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer failed: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// TestHealth 健康检查
func TestHealth(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

// TestUploadTxt 上传 .txt 成功入库
func TestUploadTxt(t *testing.T) {
	handler, ledger := newTestServer(t)

	buf, contentType := multipartBody(t, map[string]string{
		"notes.txt": "Plain text body for the pipeline.",
	})
	req := httptest.NewRequest("POST", "/upload/documents", buf)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Results []api.UploadFileResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(body.Results))
	}
	res := body.Results[0]
	if res.Status != rag.StatusCompleted || res.DocumentID == "" || res.NumChunks == 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(ledger.docs) != 1 || ledger.docs[0].Status != rag.StatusCompleted {
		t.Errorf("ledger not updated: %+v", ledger.docs)
	}
}

// TestUploadUnsupportedType 不支持的扩展名落为单文件失败项
func TestUploadUnsupportedType(t *testing.T) {
	handler, ledger := newTestServer(t)

	buf, contentType := multipartBody(t, map[string]string{
		"photo.png": "not really a png",
	})
	req := httptest.NewRequest("POST", "/upload/documents", buf)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with per-file failure, got %d", rec.Code)
	}

	var body struct {
		Results []api.UploadFileResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].Status != rag.StatusFailed {
		t.Fatalf("expected failed result, got %+v", body.Results)
	}
	if !strings.Contains(body.Results[0].Reason, "unsupported") {
		t.Errorf("unexpected reason: %q", body.Results[0].Reason)
	}
	if len(ledger.docs) != 0 {
		t.Errorf("rejected file must not create ledger rows")
	}
}

// TestUploadTooManyFiles 文件数量超限整批拒绝
func TestUploadTooManyFiles(t *testing.T) {
	handler, ledger := newTestServer(t)

	files := map[string]string{}
	for i := 0; i < 4; i++ { // 上限 3
		files[fmt.Sprintf("f%d.txt", i)] = "content"
	}
	buf, contentType := multipartBody(t, files)
	req := httptest.NewRequest("POST", "/upload/documents", buf)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(ledger.docs) != 0 {
		t.Errorf("over-limit batch must not touch the ledger")
	}
}

// TestUploadNoFiles 无文件字段返回 400
func TestUploadNoFiles(t *testing.T) {
	handler, _ := newTestServer(t)

	buf, contentType := multipartBody(t, map[string]string{})
	req := httptest.NewRequest("POST", "/upload/documents", buf)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// TestAskEmptyQuery 空白查询返回 400
func TestAskEmptyQuery(t *testing.T) {
	handler, _ := newTestServer(t)

	for _, payload := range []string{`{"query": ""}`, `{"query": "   "}`, `{}`} {
		req := httptest.NewRequest("POST", "/query/ask", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("payload %s: expected 400, got %d", payload, rec.Code)
		}
	}
}

// TestAskNoResults 空库查询返回固定文案而非错误
func TestAskNoResults(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/query/ask", strings.NewReader(`{"query": "anything"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Query    string `json:"query"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Query != "anything" {
		t.Errorf("query not echoed: %q", body.Query)
	}
	if body.Response != api.NoResultsResponse {
		t.Errorf("expected fixed no-results response, got %q", body.Response)
	}
}

// TestAskDegradedSynthesizer 有检索结果但模型未初始化：返回兜底文案
func TestAskDegradedSynthesizer(t *testing.T) {
	handler, _ := newTestServer(t)

	// 先入库一个文档让检索有结果
	buf, contentType := multipartBody(t, map[string]string{
		"doc.txt": "The company was founded in 1999 in Hamburg.",
	})
	upReq := httptest.NewRequest("POST", "/upload/documents", buf)
	upReq.Header.Set("Content-Type", contentType)
	upRec := httptest.NewRecorder()
	handler.ServeHTTP(upRec, upReq)
	if upRec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d %s", upRec.Code, upRec.Body.String())
	}

	req := httptest.NewRequest("POST", "/query/ask", strings.NewReader(`{"query": "when was it founded?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Response != rag.FallbackUnavailable {
		t.Errorf("expected unavailable fallback, got %q", body.Response)
	}
}

// TestListDocumentsMetadata 元数据列表
func TestListDocumentsMetadata(t *testing.T) {
	handler, _ := newTestServer(t)

	buf, contentType := multipartBody(t, map[string]string{
		"a.txt": "first document",
		"b.txt": "second document",
	})
	upReq := httptest.NewRequest("POST", "/upload/documents", buf)
	upReq.Header.Set("Content-Type", contentType)
	upRec := httptest.NewRecorder()
	handler.ServeHTTP(upRec, upReq)
	if upRec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", upRec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/documents/metadata?skip=0&limit=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Total     int64                `json:"total"`
		Documents []rag.DocumentRecord `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Total != 2 || len(body.Documents) != 2 {
		t.Errorf("expected 2 documents, got total=%d len=%d", body.Total, len(body.Documents))
	}
	for _, d := range body.Documents {
		if d.Status != rag.StatusCompleted {
			t.Errorf("document %s not completed: %s", d.Filename, d.Status)
		}
	}
}
