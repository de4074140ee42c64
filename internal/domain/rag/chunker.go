package rag

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Chunker 将页面文本切分为带重叠的固定长度窗口
type Chunker struct {
	chunkSize int // 每窗口最大字符数
	overlap   int // 相邻窗口重叠字符数
}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// ChunkPages 对每页做 Normalize 后切窗口。分块序号在文档内零起始且连续；
// 页码缺失时回退为页的序数。清洗后为空的页面仍产出一个空窗口，
// 内容质量过滤不是分块器的职责。
func (c *Chunker) ChunkPages(docID, filename string, pages []Page) []ChunkCandidate {
	title := TitleFromFilename(filename)

	var out []ChunkCandidate
	chunkIdx := 0
	for i, page := range pages {
		pageNo := page.Number
		if pageNo <= 0 {
			pageNo = i + 1
		}
		for _, window := range c.splitText(Normalize(page.Text)) {
			out = append(out, ChunkCandidate{
				DocumentID: docID,
				Source:     filename,
				Title:      title,
				Text:       window,
				PageNumber: pageNo,
				Index:      chunkIdx,
			})
			chunkIdx++
		}
	}
	return out
}

// splitText 滑动窗口切分。窗口边界优先落在句末或空格，
// 找不到自然边界时硬切；相邻窗口保留 overlap 重叠，不丢失任何输入。
func (c *Chunker) splitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n <= c.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + c.chunkSize
		if end >= n {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		cut := c.boundary(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// boundary 从 end 向前找自然边界，最早不越过窗口中点；找不到返回 end（硬切）。
func (c *Chunker) boundary(runes []rune, start, end int) int {
	min := start + c.chunkSize/2

	// 句子边界
	for i := end - 1; i > min; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && runes[i+1] == ' ' {
			return i + 1
		}
	}
	// 词边界
	for i := end - 1; i > min; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// TitleFromFilename 由文件名派生可读标题：去扩展名、下划线换空格、逐词首字母大写。
func TitleFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.ReplaceAll(base, "_", " ")

	words := strings.Fields(base)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
