package bootstrap

import (
	"panrag/internal/adapter/provider/llm/gemini"
	"panrag/internal/adapter/provider/llm/openai"
	applog "panrag/internal/platform/log"
	"panrag/internal/provider"
)

// RegisterLLMProvider 按配置注册所选的 LLM 供应商。
// 缺少凭证时仅降级（答案合成返回固定提示），不会阻止服务启动。
// 返回已注册的供应商名称，未注册时返回空串。
func RegisterLLMProvider(name, openaiKey, openaiBaseURL, geminiKey string) string {
	switch name {
	case "openai":
		if openaiKey == "" {
			applog.Warn("⚠️  LLM_PROVIDER=openai but no OPENAI_API_KEY set, answers will be degraded")
			return ""
		}
		p := openai.New(openai.Config{
			APIKey:  openaiKey,
			BaseURL: openaiBaseURL,
		})
		provider.RegisterProvider(p)
		applog.Infof("✅ Registered LLM provider: %s", p.Name())
		return p.Name()
	case "gemini":
		if geminiKey == "" {
			applog.Warn("⚠️  LLM_PROVIDER=gemini but no GEMINI_API_KEY set, answers will be degraded")
			return ""
		}
		p := gemini.New(gemini.Config{APIKey: geminiKey})
		provider.RegisterProvider(p)
		applog.Infof("✅ Registered LLM provider: %s", p.Name())
		return p.Name()
	default:
		applog.Warnf("⚠️  Unknown LLM_PROVIDER %q, supported: openai, gemini", name)
		return ""
	}
}
