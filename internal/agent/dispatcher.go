package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/agent/command"
	"github.com/lucheng0127/athena/internal/model"
	"github.com/lucheng0127/athena/internal/transport"
)

// activeJob 正在执行的任务
type activeJob struct {
	job     command.Job
	addedAt time.Time
}

// Dispatcher 命令分发器
type Dispatcher struct {
	handlers map[string]command.Handler
	jobs     map[string]*activeJob
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewDispatcher 创建命令分发器
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]command.Handler),
		jobs:     make(map[string]*activeJob),
		logger:   logger,
	}
}

// Register 注册命令处理器
func (d *Dispatcher) Register(handler command.Handler) {
	d.mu.Lock()
	d.handlers[handler.Name()] = handler
	d.mu.Unlock()

	d.logger.Info("command handler registered", zap.String("command", handler.Name()))
}

// Dispatch 解析任务消息并执行，返回需要上报的结果
// 仅在消息无法解析（无法关联任务）时返回错误
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) (model.AgentResponse, error) {
	task, err := transport.DecodeTask(payload)
	if err != nil {
		return model.AgentResponse{}, fmt.Errorf("failed to parse task message: %w", err)
	}

	return d.Execute(ctx, task), nil
}

// Execute 执行任务
func (d *Dispatcher) Execute(ctx context.Context, task transport.TaskMessage) (resp model.AgentResponse) {
	d.mu.RLock()
	handler, exists := d.handlers[task.Command]
	d.mu.RUnlock()

	if !exists {
		d.logger.Warn("unknown command",
			zap.String("task_id", task.TaskID),
			zap.String("command", task.Command),
		)
		return model.NewErrorResponse(task.TaskID, "command not loaded: "+task.Command)
	}

	d.addJob(task)
	defer d.removeJob(task.TaskID)

	// 恢复处理器 panic，避免 agent 退出
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked",
				zap.String("task_id", task.TaskID),
				zap.String("command", task.Command),
				zap.Any("panic", r),
				zap.String("stack", stack.Trace().TrimRuntime().String()),
			)
			resp = model.NewErrorResponse(task.TaskID, fmt.Sprintf("command %s panicked: %v", task.Command, r))
		}
	}()

	d.logger.Info("executing command",
		zap.String("task_id", task.TaskID),
		zap.String("command", task.Command),
	)

	d.startJob(task.TaskID)
	output, err := handler.Execute(ctx, task)
	if err != nil {
		d.logger.Error("command execution failed",
			zap.String("task_id", task.TaskID),
			zap.String("command", task.Command),
			zap.Error(err),
		)
		return model.NewErrorResponse(task.TaskID, err.Error())
	}

	d.logger.Info("command executed successfully",
		zap.String("task_id", task.TaskID),
		zap.String("command", task.Command),
	)

	return model.AgentResponse{
		TaskID:     task.TaskID,
		UserOutput: output,
		Completed:  true,
	}
}

// Jobs 返回当前任务列表，按加入时间排序
func (d *Dispatcher) Jobs() []command.Job {
	d.mu.RLock()
	active := make([]activeJob, 0, len(d.jobs))
	for _, j := range d.jobs {
		active = append(active, *j)
	}
	d.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].addedAt.Before(active[j].addedAt)
	})

	result := make([]command.Job, 0, len(active))
	for _, j := range active {
		result = append(result, j.job)
	}
	return result
}

func (d *Dispatcher) addJob(task transport.TaskMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs[task.TaskID] = &activeJob{
		job:     command.Job{ID: task.TaskID, Command: task.Command, Status: command.JOB_QUEUED},
		addedAt: time.Now(),
	}
}

func (d *Dispatcher) startJob(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if j, ok := d.jobs[id]; ok {
		j.job.Status = command.JOB_STARTED
	}
}

func (d *Dispatcher) removeJob(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.jobs, id)
}
