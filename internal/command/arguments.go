package command

import (
	"context"
	"encoding/json"
)

// Arguments 一次任务调用的参数集
type Arguments interface {
	CommandLine() string
	Parse(ctx context.Context) error
	Len() int
	Get(name string) (any, bool)
	Set(name string, value any)
	JSON() (string, error)
}

// TaskArguments Arguments 的基础实现，具体命令嵌入后覆盖 Parse
type TaskArguments struct {
	commandLine string
	values      map[string]any
}

// NewTaskArguments 创建参数集
func NewTaskArguments(commandLine string) *TaskArguments {
	return &TaskArguments{
		commandLine: commandLine,
		values:      make(map[string]any),
	}
}

// CommandLine 返回原始命令行
func (a *TaskArguments) CommandLine() string {
	return a.commandLine
}

// Parse 默认不做任何解析
func (a *TaskArguments) Parse(ctx context.Context) error {
	return nil
}

// Len 返回已绑定参数个数
func (a *TaskArguments) Len() int {
	return len(a.values)
}

// Get 获取参数
func (a *TaskArguments) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Set 绑定参数
func (a *TaskArguments) Set(name string, value any) {
	a.values[name] = value
}

// JSON 参数序列化为下发给 agent 的 JSON
func (a *TaskArguments) JSON() (string, error) {
	data, err := json.Marshal(a.values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
