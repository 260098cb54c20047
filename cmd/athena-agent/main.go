package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/agent"
	"github.com/lucheng0127/athena/internal/agent/command"
	"github.com/lucheng0127/athena/internal/agent/config"
	"github.com/lucheng0127/athena/internal/transport"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig()

	// 初始化日志
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	callbackID, err := agent.ResolveCallbackID(cfg.CallbackID)
	if err != nil {
		logger.Error("failed to resolve callback id", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("starting Athena Agent",
		zap.String("callback_id", callbackID),
		zap.String("transport", cfg.Transport),
		zap.String("log_level", cfg.LogLevel),
		zap.Int("checkin_interval", cfg.CheckinInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建命令分发器
	dispatcher := agent.NewDispatcher(logger)
	dispatcher.Register(command.NewUptimeCommand(nil))
	dispatcher.Register(command.NewJobsCommand(dispatcher))

	tr, err := newTransport(cfg, callbackID, logger)
	if err != nil {
		logger.Error("failed to create transport", zap.Error(err))
		os.Exit(1)
	}

	a := agent.New(callbackID, tr, dispatcher, cfg.GetCheckinInterval(), logger)
	if err := a.Start(ctx); err != nil {
		logger.Error("failed to start agent", zap.Error(err))
		os.Exit(1)
	}
	defer a.Stop()

	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
}

// newTransport 按配置创建传输层
func newTransport(cfg *config.Config, callbackID string, logger *zap.Logger) (transport.AgentTransport, error) {
	if cfg.Transport == config.TRANSPORT_VALKEY {
		client, err := transport.NewValkeyClient(cfg.ValkeyAddr)
		if err != nil {
			return nil, err
		}
		return transport.NewValkeyAgentTransport(client, callbackID, logger), nil
	}

	return transport.NewMQTTAgentTransport(cfg.MQTTBroker, callbackID, logger), nil
}

// initLogger 初始化日志
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel

	return cfg.Build()
}
