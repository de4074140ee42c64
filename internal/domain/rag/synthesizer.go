package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	applog "panrag/internal/platform/log"
	"panrag/internal/provider"
)

// 对外兜底文案。合成器永不向调用方抛原始模型错误。
const (
	FallbackUnavailable = "LLM service is not available. Please check configuration and API keys."
	FallbackError       = "An error occurred while generating the response."
)

// Synthesizer 答案合成器：按来源文档分组检索结果，构造受限 prompt，
// 单次调用生成模型产出答案。
type Synthesizer struct {
	providerName string // 为空 = 生成模型未初始化（降级态）
	model        string
	temperature  float64
}

// NewSynthesizer 创建合成器。providerName 为空表示启动时凭证缺失，
// Synthesize 将始终返回固定兜底文案。
func NewSynthesizer(providerName, model string) *Synthesizer {
	return &Synthesizer{
		providerName: providerName,
		model:        model,
		temperature:  0.0,
	}
}

// Available 生成模型是否可用
func (s *Synthesizer) Available() bool {
	return s.providerName != ""
}

// Synthesize 基于检索分块合成答案。总是返回文本，从不报错：
// 模型未初始化或调用失败时返回固定兜底文案。
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []RetrievedChunk) string {
	if s.providerName == "" {
		applog.Warn("[Synthesizer] Generative model not initialized, returning fallback")
		return FallbackUnavailable
	}

	llm, err := provider.GetProvider(s.providerName)
	if err != nil {
		applog.Error("[Synthesizer] Provider lookup failed", "provider", s.providerName, "error", err)
		return FallbackUnavailable
	}

	prompt := BuildPrompt(query, chunks)
	start := time.Now()

	resp, err := llm.Complete(ctx, &provider.CompletionRequest{
		Model:       s.model,
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		Temperature: s.temperature,
	})
	if err != nil {
		applog.Error("[Synthesizer] Model call failed", "provider", s.providerName, "error", err)
		return FallbackError
	}

	applog.Info("[Synthesizer] Answer generated",
		"provider", s.providerName,
		"model", s.model,
		"prompt_chars", len(prompt),
		"answer_chars", len(resp.Content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp.Content
}

// BuildPrompt 按来源文档分组分块（document_id → source → unknown，
// 保持首次出现顺序），每个文档一节，末尾附原始问题。
func BuildPrompt(query string, chunks []RetrievedChunk) string {
	type docGroup struct {
		title string
		texts []string
	}

	var order []string
	groups := make(map[string]*docGroup)
	for _, c := range chunks {
		key := c.Metadata["document_id"]
		if key == "" {
			key = c.Metadata["source"]
		}
		if key == "" {
			key = "unknown"
		}

		g, ok := groups[key]
		if !ok {
			title := c.Metadata["source"]
			if title == "" {
				title = fmt.Sprintf("Document %s", key)
			}
			g = &docGroup{title: title}
			groups[key] = g
			order = append(order, key)
		}
		g.texts = append(g.texts, strings.TrimSpace(c.Text))
	}

	var sb strings.Builder
	sb.WriteString("You are an AI assistant tasked with evaluating and comparing multiple documents based on a user's question.\n")
	sb.WriteString("Use the provided document sections below. Refer to documents by name when answering.\n")
	sb.WriteString("If you don't know the answer, just say that you don't know, don't try to make up an answer.\n")

	for _, key := range order {
		g := groups[key]
		sb.WriteString(fmt.Sprintf("\n--- %s ---\n", g.title))
		for _, text := range g.texts {
			sb.WriteString("- ")
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\nAnswer:")
	return sb.String()
}
