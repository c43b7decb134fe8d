// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"policyqa-go/internal/config"
	"policyqa-go/internal/handler"
	"policyqa-go/internal/pipeline"
	"policyqa-go/internal/repository"
	"policyqa-go/internal/service"
	"policyqa-go/pkg/database"
	"policyqa-go/pkg/embedding"
	"policyqa-go/pkg/kafka"
	"policyqa-go/pkg/llm"
	"policyqa-go/pkg/lock"
	"policyqa-go/pkg/log"
	"policyqa-go/pkg/pdfinfo"
	"policyqa-go/pkg/storage"
	"policyqa-go/pkg/tika"
	"policyqa-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config.yaml")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 初始化对象存储与 Redis
	blobs, err := storage.NewMinIOStore(rootCtx, cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}

	var (
		rdb    *redis.Client
		locker lock.Locker = lock.NewLocal()
	)
	if cfg.Database.Redis.Addr != "" {
		rdb, err = database.InitRedis(rootCtx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			log.Fatal("Redis 初始化失败", err)
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, time.Duration(cfg.Retrieval.LockTTLSeconds)*time.Second)
	} else {
		log.Warnf("未配置 Redis，命名空间锁仅在本进程内生效")
	}

	// 4. 初始化检索管道 (依赖注入)
	p, err := pipeline.New(cfg.Retrieval, pipeline.Dependencies{
		Embedder:  embedding.NewClient(cfg.Embedding),
		Extractor: tika.NewClient(cfg.Tika),
		Inspector: pdfinfo.NewInspector(),
		Blobs:     blobs,
		Locker:    locker,
	})
	if err != nil {
		log.Fatal("检索管道初始化失败", err)
	}

	// 5. 异步入库：需要 MySQL、Kafka 与 Redis 同时可用
	var (
		jobs     repository.IngestJobRepository
		producer service.TaskProducer
	)
	if cfg.Database.MySQL.DSN != "" && cfg.Kafka.Brokers != "" && rdb != nil {
		db, err := database.InitMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			log.Fatal("MySQL 初始化失败", err)
		}
		jobs = repository.NewIngestJobRepository(db)

		kafkaProducer := kafka.NewProducer(cfg.Kafka)
		defer kafkaProducer.Close()
		producer = kafkaProducer

		consumer := kafka.NewConsumer(cfg.Kafka, pipeline.NewProcessor(p, blobs, jobs), kafka.NewRedisAttempts(rdb))
		go func() {
			if err := consumer.Run(rootCtx); err != nil {
				log.Error("Kafka 消费者退出", err)
			}
		}()
	} else {
		log.Warnf("未配置 MySQL/Kafka/Redis，异步入库接口不可用")
	}

	// 6. 可选的 JWT 鉴权
	var jwtManager *token.JWTManager
	if cfg.JWT.Secret != "" {
		jwtManager = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	}

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.RouterOptions{
		Documents: service.NewDocumentService(p, blobs, jobs, producer),
		QA:        service.NewQAService(p, llm.NewClient(cfg.LLM), cfg.LLM.Prompt),
		JWT:       jwtManager,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
