package command

import (
	"context"
	"time"

	"github.com/lucheng0127/athena/internal/agent/info"
	"github.com/lucheng0127/athena/internal/transport"
)

// UptimeCommand 输出主机运行时长
type UptimeCommand struct {
	uptime func(ctx context.Context) time.Duration
}

// NewUptimeCommand 创建 uptime 命令，source 为空时读取系统运行时长
func NewUptimeCommand(source func(ctx context.Context) time.Duration) *UptimeCommand {
	if source == nil {
		source = info.GetUptime
	}
	return &UptimeCommand{uptime: source}
}

// Name 返回命令名称
func (c *UptimeCommand) Name() string {
	return "uptime"
}

// Execute 返回 D:HH:MM:SS 格式的运行时长
func (c *UptimeCommand) Execute(ctx context.Context, task transport.TaskMessage) (string, error) {
	return info.FormatUptime(c.uptime(ctx)), nil
}
