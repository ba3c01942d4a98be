package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"treasurebuy/internal/config"
	"treasurebuy/internal/handler"
	"treasurebuy/internal/infrastructure/cache"
	"treasurebuy/internal/infrastructure/database"
	"treasurebuy/internal/infrastructure/mq"
	"treasurebuy/internal/job"
	"treasurebuy/internal/logger"
	"treasurebuy/pkg/idgen"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 初始化 ID 生成器
	if err := idgen.Init(1); err != nil {
		log.Fatal("初始化 ID 生成器失败", zap.Error(err))
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database, log)
	if err != nil {
		log.Fatal("连接数据库失败", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 初始化 Redis（可选）
	redisClient, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("连接 Redis 失败", zap.Error(err))
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动 outbox 投递任务
	if cfg.Kafka.Enabled {
		publisher, err := mq.NewKafkaPublisher(&cfg.Kafka)
		if err != nil {
			log.Fatal("初始化 Kafka 失败", zap.Error(err))
		}
		defer publisher.Close()

		outboxSender := job.NewOutboxSender(db, redisClient, publisher, cfg, log)
		go outboxSender.Start(ctx)
	}

	// 设置路由
	router := handler.SetupRouter(db, redisClient, cfg, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服务关闭异常", zap.Error(err))
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}

	log.Info("服务已关闭")
}
