package rag_test

import (
	"errors"
	"strings"
	"testing"

	"panrag/internal/domain/rag"
)

// TestPlainTextParser 整个文件呈现为单页
func TestPlainTextParser(t *testing.T) {
	p := &rag.PlainTextParser{}

	result, err := p.Parse(strings.NewReader("line one\nline two"), "notes.txt")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.NumPages() != 1 {
		t.Fatalf("expected 1 page, got %d", result.NumPages())
	}
	page := result.Pages[0]
	if page.Number != 1 {
		t.Errorf("expected page number 1, got %d", page.Number)
	}
	if page.Text != "line one\nline two" {
		t.Errorf("unexpected page text: %q", page.Text)
	}
}

// TestParserRegistry 注册表按扩展名分发
func TestParserRegistry(t *testing.T) {
	reg := rag.NewParserRegistry()

	tests := []struct {
		filename string
		ok       bool
	}{
		{"doc.pdf", true},
		{"doc.txt", true},
		{"DOC.PDF", true}, // 大小写不敏感
		{"doc.docx", false},
		{"doc", false},
		{"archive.tar.gz", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			_, err := reg.Get(tt.filename)
			if tt.ok && err != nil {
				t.Errorf("Get(%q) failed: %v", tt.filename, err)
			}
			if !tt.ok {
				if !errors.Is(err, rag.ErrUnsupportedFileType) {
					t.Errorf("Get(%q): expected ErrUnsupportedFileType, got %v", tt.filename, err)
				}
				if reg.Supports(tt.filename) {
					t.Errorf("Supports(%q) should be false", tt.filename)
				}
			}
		})
	}

	types := reg.SupportedTypes()
	if !strings.Contains(types, ".pdf") || !strings.Contains(types, ".txt") {
		t.Errorf("unexpected supported types: %q", types)
	}
}
