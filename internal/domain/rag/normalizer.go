package rag

import (
	"regexp"
	"strings"
)

// PDF 提取产物替换表：图标连字、破损变音符号等。按序逐个替换。
var artifactReplacements = []struct {
	old string
	new string
}{
	{"♂phone", "Phone: "},
	{"/envel⌢p", "Email: "},
	{"/linkedin", "LinkedIn: "},
	{"/github", "GitHub: "},
	{"♂¶ap-¶arker-alt", "Location: "},
	{"/char◎-line", ""},
	{"/brain", ""},
	{"/code-branch", ""},
	{"♂project-diagra¶", ""},
	{"♂robot", ""},
	{"¨", ""},
	{"´", ""},
	{"˜", ""},
}

var (
	reNonPrintable = regexp.MustCompile(`[^\x20-\x7E\n\r]+`)
	reWhitespace   = regexp.MustCompile(`\s+`)
)

// Normalize 清洗原始提取文本：替换已知伪影、剔除不可打印字符、
// 压缩空白并去除首尾空白。幂等，任意输入都不报错。
func Normalize(text string) string {
	for _, r := range artifactReplacements {
		text = strings.ReplaceAll(text, r.old, r.new)
	}
	text = reNonPrintable.ReplaceAllString(text, " ")
	text = reWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
