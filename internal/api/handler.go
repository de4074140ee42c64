package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"panrag/internal/domain/rag"
	applog "panrag/internal/platform/log"
)

// NoResultsResponse 检索无结果时返回的固定回答
const NoResultsResponse = "I could not find any relevant information for your query in the uploaded documents."

// RAGHandler 文档上传、问答与元数据 API
type RAGHandler struct {
	ledger      rag.Ledger
	ingestor    *rag.Ingestor
	retriever   *rag.Retriever
	synthesizer *rag.Synthesizer
	cfg         *rag.Config
}

// NewRAGHandler 创建处理器
func NewRAGHandler(ledger rag.Ledger, ingestor *rag.Ingestor, retriever *rag.Retriever, synthesizer *rag.Synthesizer, cfg *rag.Config) *RAGHandler {
	return &RAGHandler{
		ledger:      ledger,
		ingestor:    ingestor,
		retriever:   retriever,
		synthesizer: synthesizer,
		cfg:         cfg,
	}
}

// RegisterRoutes 注册路由
func (h *RAGHandler) RegisterRoutes(r chi.Router) {
	r.Post("/upload/documents", h.UploadDocuments)
	r.Post("/query/ask", h.Ask)
	r.Get("/documents/metadata", h.ListDocuments)
}

// --- 文档上传 ---

// UploadFileResult 单文件上传结果
type UploadFileResult struct {
	DocumentID string `json:"document_id,omitempty"`
	Filename   string `json:"filename"`
	NumChunks  int    `json:"num_chunks,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// UploadDocuments 批量文件上传入库（multipart/form-data，字段名 files）
func (h *RAGHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	limitBytes := int64(h.cfg.MaxFileSizeMB) << 20
	maxFiles := h.cfg.MaxUploadFiles

	// 总量上限 = 单文件上限 * 文件数上限
	if err := r.ParseMultipartForm(limitBytes); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	if r.MultipartForm == nil {
		writeError(w, http.StatusBadRequest, "files field is required")
		return
	}

	files := r.MultipartForm.File["files"]
	// 先校验文件数量，再读取任何文件内容
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "files field is required")
		return
	}
	if len(files) > maxFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many files: %d (max %d)", len(files), maxFiles))
		return
	}

	results := make([]UploadFileResult, 0, len(files))
	for _, header := range files {
		filename := header.Filename

		if !h.ingestor.Parsers().Supports(filename) {
			results = append(results, UploadFileResult{
				Filename: filename,
				Status:   rag.StatusFailed,
				Reason:   fmt.Sprintf("unsupported file type (supported: %s)", h.ingestor.Parsers().SupportedTypes()),
			})
			continue
		}
		if header.Size > limitBytes {
			results = append(results, UploadFileResult{
				Filename: filename,
				Status:   rag.StatusFailed,
				Reason:   fmt.Sprintf("file size exceeds limit (%dMB)", h.cfg.MaxFileSizeMB),
			})
			continue
		}

		file, err := header.Open()
		if err != nil {
			results = append(results, UploadFileResult{
				Filename: filename,
				Status:   rag.StatusFailed,
				Reason:   "failed to open uploaded file",
			})
			continue
		}
		content, err := io.ReadAll(io.LimitReader(file, limitBytes+1))
		file.Close()
		if err != nil {
			results = append(results, UploadFileResult{
				Filename: filename,
				Status:   rag.StatusFailed,
				Reason:   "failed to read uploaded file",
			})
			continue
		}
		if int64(len(content)) > limitBytes {
			results = append(results, UploadFileResult{
				Filename: filename,
				Status:   rag.StatusFailed,
				Reason:   fmt.Sprintf("file size exceeds limit (%dMB)", h.cfg.MaxFileSizeMB),
			})
			continue
		}

		res, err := h.ingestor.Ingest(r.Context(), filename, content)
		if err != nil {
			applog.Error("[API] Ingest failed", "filename", filename, "error", err)
			results = append(results, UploadFileResult{
				Filename: filename,
				Status:   rag.StatusFailed,
				Reason:   err.Error(),
			})
			continue
		}

		results = append(results, UploadFileResult{
			DocumentID: res.DocumentID,
			Filename:   res.Filename,
			NumChunks:  res.NumChunks,
			Status:     res.Status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// --- 问答 ---

type askRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type askResponse struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// Ask 检索 + 答案合成
func (h *RAGHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	chunks, err := h.retriever.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		applog.Error("[API] Retrieve failed", "error", err)
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}

	if len(chunks) == 0 {
		writeJSON(w, http.StatusOK, askResponse{
			Query:    req.Query,
			Response: NoResultsResponse,
		})
		return
	}

	answer := h.synthesizer.Synthesize(r.Context(), req.Query, chunks)
	writeJSON(w, http.StatusOK, askResponse{
		Query:    req.Query,
		Response: answer,
	})
}

// --- 文档元数据 ---

// ListDocuments 按上传时间倒序分页列出文档
func (h *RAGHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	params := rag.ListDocumentsParams{
		Skip:   queryInt(r, "skip", 0),
		Limit:  queryInt(r, "limit", 20),
		Status: r.URL.Query().Get("status"),
	}

	docs, err := h.ledger.ListDocuments(r.Context(), params)
	if err != nil {
		applog.Error("[API] ListDocuments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	total, err := h.ledger.CountDocuments(r.Context())
	if err != nil {
		applog.Error("[API] CountDocuments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count documents")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":     total,
		"documents": docs,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
