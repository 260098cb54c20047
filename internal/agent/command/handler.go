package command

import (
	"context"

	"github.com/lucheng0127/athena/internal/transport"
)

// Handler 命令处理器接口
type Handler interface {
	// Name 返回命令名称
	Name() string

	// Execute 执行命令，返回输出
	Execute(ctx context.Context, task transport.TaskMessage) (string, error)
}

// 任务状态
const (
	JOB_QUEUED  = "queued"
	JOB_STARTED = "started"
)

// Job agent 上的任务
type Job struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Status  string `json:"status"`
}

// JobLister 提供当前任务列表
type JobLister interface {
	Jobs() []Job
}
