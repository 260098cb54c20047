package agent

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/agent/info"
	"github.com/lucheng0127/athena/internal/model"
	"github.com/lucheng0127/athena/internal/transport"
)

// Agent 受控进程：接收任务、上报结果、定时心跳
type Agent struct {
	callbackID string
	transport  transport.AgentTransport
	dispatcher *Dispatcher
	interval   time.Duration
	cron       *cron.Cron
	logger     *zap.Logger
}

// New 创建 agent
func New(callbackID string, tr transport.AgentTransport, dispatcher *Dispatcher, interval time.Duration, logger *zap.Logger) *Agent {
	return &Agent{
		callbackID: callbackID,
		transport:  tr,
		dispatcher: dispatcher,
		interval:   interval,
		cron:       cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{logger: logger})),
		logger:     logger,
	}
}

// Start 订阅任务并启动心跳
func (a *Agent) Start(ctx context.Context) error {
	if err := a.transport.Subscribe(ctx, func(payload []byte) {
		a.handleTask(ctx, payload)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to tasks: %w", err)
	}

	// 发布初始心跳
	if err := a.Checkin(ctx); err != nil {
		a.logger.Error("failed to publish initial checkin", zap.Error(err))
	}

	schedule := fmt.Sprintf("@every %s", a.interval)
	if _, err := a.cron.AddFunc(schedule, func() {
		if err := a.Checkin(ctx); err != nil {
			a.logger.Error("failed to publish checkin", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule checkin: %w", err)
	}
	a.cron.Start()

	a.logger.Info("agent started",
		zap.String("callback_id", a.callbackID),
		zap.Duration("checkin_interval", a.interval),
	)
	return nil
}

// Stop 停止心跳并关闭传输层
func (a *Agent) Stop() {
	<-a.cron.Stop().Done()
	if err := a.transport.Close(); err != nil {
		a.logger.Error("failed to close transport", zap.Error(err))
	}
}

// Checkin 收集主机信息并上报心跳
func (a *Agent) Checkin(ctx context.Context) error {
	checkin := model.Checkin{
		CallbackID: a.callbackID,
		Hostname:   info.GetHostname(),
		IP:         info.GetIP(),
		OS:         info.GetOS(ctx),
		User:       info.GetUser(),
		PID:        os.Getpid(),
		Uptime:     uint64(info.GetUptime(ctx) / time.Second),
	}

	a.logger.Debug("collecting host info",
		zap.String("hostname", checkin.Hostname),
		zap.String("ip", checkin.IP),
		zap.Uint64("uptime", checkin.Uptime),
	)

	return a.transport.PublishCheckin(ctx, checkin)
}

// handleTask 执行任务并上报结果
func (a *Agent) handleTask(ctx context.Context, payload []byte) {
	resp, err := a.dispatcher.Dispatch(ctx, payload)
	if err != nil {
		a.logger.Error("command dispatch failed", zap.Error(err))
		return
	}

	if err := a.transport.PublishResponse(ctx, resp); err != nil {
		a.logger.Error("failed to publish response",
			zap.String("task_id", resp.TaskID),
			zap.Error(err),
		)
	}
}

// cronLogger 将 cron 日志输出到 zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// 忽略 wake 类型
	if msg == "wake" {
		return
	}
	l.logger.Debug("cron."+msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron."+msg, zap.Error(err), zap.Any("details", keysAndValues))
}
