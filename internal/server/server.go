package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucheng0127/athena/internal/api"
	"github.com/lucheng0127/athena/internal/command"
	"github.com/lucheng0127/athena/internal/db"
	"github.com/lucheng0127/athena/internal/tasking"
	"github.com/lucheng0127/athena/internal/transport"
)

// HTTP 服务器关闭超时
const httpShutdownTimeout = 10 * time.Second

// Server 服务器
type Server struct {
	config     *Config
	httpServer *http.Server
	transport  transport.ServerTransport
	service    *tasking.Service
	db         *bbolt.DB
	logger     *zap.Logger
}

// NewServer 创建服务器
func NewServer(config *Config, logger *zap.Logger) (*Server, error) {
	// 初始化数据库
	boltDB, err := db.InitializeDB(config.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 创建 repository
	taskRepo := db.NewBoltTaskRepository(boltDB, logger)
	callbackRepo := db.NewBoltCallbackRepository(boltDB, logger)

	// 加载内置命令
	registry, err := command.Default()
	if err != nil {
		boltDB.Close()
		return nil, fmt.Errorf("failed to load commands: %w", err)
	}

	// 创建传输层
	tr, err := newTransport(config, logger)
	if err != nil {
		boltDB.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	service := tasking.NewService(registry, taskRepo, callbackRepo, tr, logger)

	// 创建 API handler
	apiHandler := api.NewHandler(registry, service, taskRepo, callbackRepo, logger)

	// 创建 HTTP 服务器
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	apiHandler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:    config.HTTPAddr,
		Handler: router,
	}

	return &Server{
		config:     config,
		httpServer: httpServer,
		transport:  tr,
		service:    service,
		db:         boltDB,
		logger:     logger,
	}, nil
}

// newTransport 按配置创建服务端传输层
func newTransport(config *Config, logger *zap.Logger) (transport.ServerTransport, error) {
	opts := []transport.Option{
		transport.WithMsgBufferSize(config.MsgBufferSize),
		transport.WithOnError(func(topic string, err error) {
			logger.Warn("dropped agent message", zap.String("topic", topic), zap.Error(err))
		}),
	}

	if config.Transport == TRANSPORT_VALKEY {
		client, err := transport.NewValkeyClient(config.ValkeyAddr)
		if err != nil {
			return nil, err
		}
		return transport.NewValkeyServerTransport(client, logger, opts...), nil
	}

	return transport.NewMQTTServerTransport(config.MQTTBroker, logger, opts...), nil
}

// Start 启动所有服务
func (s *Server) Start(ctx context.Context) error {
	// 创建 errgroup 用于管理 goroutine
	group, ctx := errgroup.WithContext(ctx)

	// 启动传输层与任务结果处理
	group.Go(func() error {
		if err := s.transport.Subscribe(ctx); err != nil {
			return fmt.Errorf("transport error: %w", err)
		}
		s.logger.Info("transport subscribed", zap.String("transport", s.config.Transport))
		return s.service.Run(ctx)
	})

	// 任一服务出错或 ctx 取消时关闭 HTTP 服务器，避免 Wait 永久阻塞
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", zap.Error(err))
		}
		return nil
	})

	// 启动 HTTP 服务器
	group.Go(func() error {
		s.logger.Info("HTTP server starting", zap.String("addr", s.config.HTTPAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// 等待所有服务完成或出错
	if err := group.Wait(); err != nil {
		s.logger.Error("server error", zap.Error(err))
		return err
	}

	return nil
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")

	// 关闭 HTTP 服务器
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}

	// 关闭传输层
	if err := s.transport.Close(); err != nil {
		s.logger.Error("failed to close transport", zap.Error(err))
	}

	// 关闭数据库
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("failed to close database", zap.Error(err))
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Run 运行服务器（带信号处理）
func (s *Server) Run() error {
	// 创建 context 用于取消
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 启动服务器（在 goroutine 中）
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start(ctx)
	}()

	// 等待信号或错误
	select {
	case <-sigChan:
		s.logger.Info("received shutdown signal")
		cancel()
	case err := <-errChan:
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		s.Shutdown(shutdownCtx)
		return err
	}

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return s.Shutdown(shutdownCtx)
}
