package command

import (
	"context"

	"github.com/lucheng0127/athena/internal/model"
)

// UptimeArguments uptime 命令参数，始终为空
type UptimeArguments struct {
	*TaskArguments
}

// Parse 不接受任何参数，永不失败
func (a *UptimeArguments) Parse(ctx context.Context) error {
	return nil
}

// UptimeCommand 输出 agent 主机运行时长（D:H:M:S），计算由 agent 完成
type UptimeCommand struct{}

// NewUptimeCommand 创建 uptime 命令
func NewUptimeCommand() *UptimeCommand {
	return &UptimeCommand{}
}

// Descriptor 返回 uptime 命令描述
func (c *UptimeCommand) Descriptor() Descriptor {
	return Descriptor{
		Name:          "uptime",
		HelpCmd:       "uptime",
		Description:   "output the current uptime in D:H:M:S",
		NeedsAdmin:    false,
		Version:       1,
		Author:        "@tr41nwr3ck",
		AttackMapping: []string{},
	}
}

func (c *UptimeCommand) NewArguments(commandLine string) Arguments {
	return &UptimeArguments{TaskArguments: NewTaskArguments(commandLine)}
}

// CreateTasking 原样返回任务
func (c *UptimeCommand) CreateTasking(ctx context.Context, task *model.Task) (*model.Task, error) {
	return task, nil
}

func (c *UptimeCommand) ProcessResponse(ctx context.Context, resp *model.AgentResponse) error {
	return nil
}
