package command

import (
	"context"
	"slices"

	"github.com/lucheng0127/athena/internal/model"
)

// Descriptor 命令的静态描述，注册后不可修改
type Descriptor struct {
	Name          string   `json:"cmd" validate:"required,cmdname"`
	HelpCmd       string   `json:"help_cmd" validate:"required"`
	Description   string   `json:"description" validate:"required"`
	NeedsAdmin    bool     `json:"needs_admin"`
	Version       int      `json:"version" validate:"gte=1"`
	Author        string   `json:"author"`
	AttackMapping []string `json:"attackmapping"`
	SupportedOS   []string `json:"supported_os,omitempty"`
}

// Clone 返回描述的深拷贝
func (d Descriptor) Clone() Descriptor {
	d.AttackMapping = slices.Clone(d.AttackMapping)
	d.SupportedOS = slices.Clone(d.SupportedOS)
	return d
}

// Command 可注册到 host runtime 的命令
type Command interface {
	// Descriptor 返回命令描述
	Descriptor() Descriptor

	// NewArguments 为一次调用创建参数集
	NewArguments(commandLine string) Arguments

	// CreateTasking 任务创建回调，返回的任务将被下发给 agent
	CreateTasking(ctx context.Context, task *model.Task) (*model.Task, error)

	// ProcessResponse 处理 agent 返回的结果
	ProcessResponse(ctx context.Context, resp *model.AgentResponse) error
}
