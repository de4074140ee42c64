package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"panrag/internal/provider"
)

// Config Gemini API 配置
type Config struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"` // 默认 https://generativelanguage.googleapis.com
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Provider Google Gemini generateContent API 的 LLM Provider
type Provider struct {
	config Config
	client *http.Client
}

// New 创建 Gemini Provider
func New(config Config) *Provider {
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

// -- 内部 API 请求/响应结构 --

type apiPart struct {
	Text string `json:"text"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type apiRequest struct {
	Contents          []apiContent        `json:"contents"`
	SystemInstruction *apiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  apiGenerationConfig `json:"generationConfig"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type apiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type apiResponse struct {
	Candidates    []apiCandidate `json:"candidates"`
	UsageMetadata apiUsage       `json:"usageMetadata"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Complete 非流式补全。system 角色消息映射为 systemInstruction，
// assistant 映射为 model 角色。
func (p *Provider) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	body := apiRequest{
		GenerationConfig: apiGenerationConfig{
			ResponseMimeType: "text/plain",
		},
	}
	if req.Temperature > 0 {
		body.GenerationConfig.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig.MaxOutputTokens = &req.MaxTokens
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			body.SystemInstruction = &apiContent{Parts: []apiPart{{Text: m.Content}}}
		case "assistant":
			body.Contents = append(body.Contents, apiContent{Role: "model", Parts: []apiPart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, apiContent{Role: "user", Parts: []apiPart{{Text: m.Content}}})
		}
	}

	payload, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.config.BaseURL, req.Model, p.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generateContent request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, string(respBody))
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("empty candidates in response")
	}

	candidate := parsed.Candidates[0]
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}

	return &provider.CompletionResponse{
		Content:      sb.String(),
		Model:        req.Model,
		FinishReason: candidate.FinishReason,
		Usage: provider.Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
	}, nil
}
