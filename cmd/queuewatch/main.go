package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"queuewatch/internal/config"
	"queuewatch/internal/logger"
	"queuewatch/internal/orchestrator"
	"queuewatch/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 获取刷新范围（从环境变量）
	scope := orchestrator.Scope{
		EventID:      os.Getenv("EVENT_ID"),
		EntryPointID: os.Getenv("ENTRY_POINT_ID"),
	}
	if scope.EntryPointID == "" {
		log.Fatal("ENTRY_POINT_ID environment variable is required")
	}

	// 4. 创建服务
	queueService, err := service.NewQueueWatchService(cfg, log, nil)
	if err != nil {
		log.Fatal("Failed to create queuewatch service",
			zap.Error(err),
		)
	}
	defer queueService.Stop()

	// 5. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. 启动服务（在 goroutine 中）
	serviceErrChan := make(chan error, 1)
	go func() {
		if err := queueService.Start(ctx, scope); err != nil {
			serviceErrChan <- err
		}
	}()

	// 7. 消费告警（打印到日志；外发由 MQTT 发布端负责）
	go func() {
		for alert := range queueService.Orchestrator().Alerts() {
			log.Info("Staffing alert",
				zap.String("alert_id", alert.AlertID),
				zap.String("entry_point_id", alert.EntryPointID),
				zap.String("urgency", string(alert.Urgency)),
				zap.String("message", alert.Message),
			)
		}
	}()

	// 8. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
	case err := <-serviceErrChan:
		log.Fatal("Service error",
			zap.Error(err),
		)
	}

	log.Info("Queuewatch service stopped")
}
