package main

import (
	"context"
	"errors"
	"sync"

	"policyqa-go/internal/config"
	"policyqa-go/internal/pipeline"
	"policyqa-go/internal/service"
	"policyqa-go/pkg/embedding"
	"policyqa-go/pkg/llm"
	"policyqa-go/pkg/lock"
	"policyqa-go/pkg/log"
	"policyqa-go/pkg/pdfinfo"
	"policyqa-go/pkg/storage"
	"policyqa-go/pkg/tika"

	"github.com/spf13/cobra"
)

var (
	configPath string
	userID     string
	useMemory  bool

	// memoryBlobs 在同一进程内的多次命令之间共享。
	memoryBlobs     *storage.MemoryStore
	memoryBlobsOnce sync.Once
)

var rootCmd = &cobra.Command{
	Use:           "policyqa",
	Short:         "Ask grounded questions over your policy PDFs",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (env POLICYQA_* always applies)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id whose namespace to use")
	rootCmd.PersistentFlags().BoolVar(&useMemory, "memory", false, "keep snapshots in memory instead of MinIO")
}

// app 是一次命令执行需要的服务集合。
type app struct {
	cfg       *config.Config
	documents service.DocumentService
	qa        service.QAService
}

func requireUser() error {
	if userID == "" {
		return errors.New("--user is required")
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, "console", cfg.Log.OutputPath)
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var blobs storage.BlobStore
	if useMemory {
		memoryBlobsOnce.Do(func() { memoryBlobs = storage.NewMemoryStore() })
		blobs = memoryBlobs
	} else {
		minioStore, err := storage.NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		blobs = minioStore
	}

	p, err := pipeline.New(cfg.Retrieval, pipeline.Dependencies{
		Embedder:  embedding.NewClient(cfg.Embedding),
		Extractor: tika.NewClient(cfg.Tika),
		Inspector: pdfinfo.NewInspector(),
		Blobs:     blobs,
		Locker:    lock.NewLocal(),
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		documents: service.NewDocumentService(p, blobs, nil, nil),
		qa:        service.NewQAService(p, llm.NewClient(cfg.LLM), cfg.LLM.Prompt),
	}, nil
}
