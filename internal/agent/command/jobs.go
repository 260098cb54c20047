package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lucheng0127/athena/internal/transport"
)

// JobsCommand 列出 agent 上的任务
type JobsCommand struct {
	lister JobLister
}

// NewJobsCommand 创建 jobs 命令
func NewJobsCommand(lister JobLister) *JobsCommand {
	return &JobsCommand{lister: lister}
}

// Name 返回命令名称
func (c *JobsCommand) Name() string {
	return "jobs"
}

// Execute 以 JSON 数组返回任务列表
func (c *JobsCommand) Execute(ctx context.Context, task transport.TaskMessage) (string, error) {
	data, err := json.Marshal(c.lister.Jobs())
	if err != nil {
		return "", fmt.Errorf("failed to encode jobs: %w", err)
	}
	return string(data), nil
}
