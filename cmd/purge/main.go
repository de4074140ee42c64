package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"panrag/internal/db/postgres"
	"panrag/internal/platform/config"
	applog "panrag/internal/platform/log"
	"panrag/internal/vectorindex"
)

// 清空台账与向量索引。下次入库会重建一个空的有效索引。
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(cfg.LogLevel, cfg.LogFormat)

	ledger, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		applog.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer ledger.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	chunks, documents, err := ledger.PurgeAll(ctx)
	if err != nil {
		applog.Fatalf("❌ Failed to purge ledger: %v", err)
	}
	applog.Infof("✅ Purged %d chunks and %d documents", chunks, documents)

	if err := vectorindex.Remove(cfg.RAG.IndexDir); err != nil {
		applog.Fatalf("❌ Failed to remove vector index: %v", err)
	}
	applog.Infof("✅ Removed vector index files under %s", cfg.RAG.IndexDir)
}
