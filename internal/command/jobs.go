package command

import (
	"context"

	"github.com/lucheng0127/athena/internal/model"
)

// JobsArguments jobs 命令参数，始终为空
type JobsArguments struct {
	*TaskArguments
}

func (a *JobsArguments) Parse(ctx context.Context) error {
	return nil
}

// JobsCommand 列出 agent 上正在运行的任务
type JobsCommand struct{}

// NewJobsCommand 创建 jobs 命令
func NewJobsCommand() *JobsCommand {
	return &JobsCommand{}
}

func (c *JobsCommand) Descriptor() Descriptor {
	return Descriptor{
		Name:          "jobs",
		HelpCmd:       "jobs",
		Description:   "list the jobs currently running on the agent",
		NeedsAdmin:    false,
		Version:       1,
		Author:        "@tr41nwr3ck",
		AttackMapping: []string{},
	}
}

func (c *JobsCommand) NewArguments(commandLine string) Arguments {
	return &JobsArguments{TaskArguments: NewTaskArguments(commandLine)}
}

func (c *JobsCommand) CreateTasking(ctx context.Context, task *model.Task) (*model.Task, error) {
	return task, nil
}

func (c *JobsCommand) ProcessResponse(ctx context.Context, resp *model.AgentResponse) error {
	return nil
}
