package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"panrag/internal/domain/rag"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string         `json:"log_level"`
	LogFormat string         `json:"log_format"`
	Server    ServerConfig   `json:"server"`
	Database  DatabaseConfig `json:"database"`
	Redis     RedisConfig    `json:"redis"`
	OpenAI    OpenAIConfig   `json:"openai"`
	Gemini    GeminiConfig   `json:"gemini"`
	LLM       LLMConfig      `json:"llm"`
	RAG       rag.Config     `json:"rag"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	URL string `json:"url"`
}

// RedisConfig Redis 连接配置。URL 为空时禁用检索缓存。
type RedisConfig struct {
	URL string `json:"url"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type GeminiConfig struct {
	APIKey string `json:"api_key"`
}

// LLMConfig 答案合成所用的供应商与模型
type LLMConfig struct {
	Provider string `json:"provider"` // openai | gemini
	Model    string `json:"model"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	ragCfg := rag.DefaultConfig()
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 300,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		RAG: *ragCfg,
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)

	applyString("DATABASE_URL", &c.Database.URL)
	applyString("REDIS_URL", &c.Redis.URL)

	applyString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	applyString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	applyString("GEMINI_API_KEY", &c.Gemini.APIKey)

	applyString("LLM_PROVIDER", &c.LLM.Provider)
	applyString("LLM_MODEL", &c.LLM.Model)

	// RAG 环境变量
	applyString("VECTOR_DB_PATH", &c.RAG.IndexDir)
	applyInt("RAG_CHUNK_SIZE", &c.RAG.ChunkSize)
	applyInt("RAG_CHUNK_OVERLAP", &c.RAG.ChunkOverlap)
	applyInt("RAG_DEFAULT_TOP_K", &c.RAG.DefaultTopK)
	applyInt("RAG_MAX_TOP_K", &c.RAG.MaxTopK)
	applyBool("RAG_DEDUP_RESULTS", &c.RAG.DedupResults)
	applyString("EMBEDDING_MODEL", &c.RAG.EmbeddingModel)
	applyInt("EMBEDDING_DIMS", &c.RAG.EmbeddingDims)
	applyInt("RAG_MAX_UPLOAD_FILES", &c.RAG.MaxUploadFiles)
	applyInt("RAG_MAX_FILE_SIZE_MB", &c.RAG.MaxFileSizeMB)
	applyInt("RAG_CACHE_TTL", &c.RAG.CacheTTL)
}

func (c *AppConfig) normalize() {
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		if c.LLM.Provider == "gemini" {
			c.LLM.Model = "gemini-2.0-flash"
		} else {
			c.LLM.Model = "gpt-4o-mini"
		}
	}
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("RAG_CHUNK_SIZE must be positive")
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("RAG_CHUNK_OVERLAP must be smaller than RAG_CHUNK_SIZE")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
