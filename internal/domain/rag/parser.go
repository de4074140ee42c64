package rag

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	applog "panrag/internal/platform/log"
)

// ── Parser 接口 ───────────────────────────────────────────────

// ParseResult 文档解析结果，按页组织
type ParseResult struct {
	Pages []Page `json:"pages"`
}

// NumPages 返回页数
func (r *ParseResult) NumPages() int {
	return len(r.Pages)
}

// Parser 文档解析器接口
type Parser interface {
	// Parse 解析文档，返回逐页文本
	Parse(reader io.Reader, filename string) (*ParseResult, error)
	// SupportedTypes 支持的文件扩展名
	SupportedTypes() []string
}

// ── Plain Text Parser ────────────────────────────────────────

// PlainTextParser 纯文本解析，整个文件视为单页
type PlainTextParser struct{}

func (p *PlainTextParser) SupportedTypes() []string {
	return []string{".txt"}
}

func (p *PlainTextParser) Parse(reader io.Reader, filename string) (*ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}

	return &ParseResult{
		Pages: []Page{{Text: string(data), Number: 1}},
	}, nil
}

// ── PDF Parser ───────────────────────────────────────────────

// PDFParser 逐页提取 PDF 文本
type PDFParser struct{}

func (p *PDFParser) SupportedTypes() []string {
	return []string{".pdf"}
}

func (p *PDFParser) Parse(reader io.Reader, filename string) (*ParseResult, error) {
	// pdf 库需要 io.ReaderAt + size，先读到内存
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf data: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := r.NumPage()
	pages := make([]Page, 0, total)

	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			applog.Warn("[Parser/PDF] Failed to extract page text", "page", i, "error", err)
			pages = append(pages, Page{Number: i})
			continue
		}
		pages = append(pages, Page{Text: strings.TrimSpace(text), Number: i})
	}

	return &ParseResult{Pages: pages}, nil
}
