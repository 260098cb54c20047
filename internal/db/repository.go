package db

import (
	"context"

	"github.com/lucheng0127/athena/internal/model"
)

// TaskRepository 定义任务存储接口
type TaskRepository interface {
	// Save 保存或更新任务
	Save(ctx context.Context, task *model.Task) error

	// FindByID 根据 ID 查找任务
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// ListByCallback 列出某个 callback 的所有任务
	ListByCallback(ctx context.Context, callbackID string) ([]*model.Task, error)

	// UpdateStatus 更新任务状态（带转换验证）
	UpdateStatus(ctx context.Context, id string, status string) (*model.Task, error)

	// AppendOutput 追加任务输出
	AppendOutput(ctx context.Context, id string, output string) (*model.Task, error)
}

// CallbackRepository 定义 callback 存储接口
type CallbackRepository interface {
	// Save 保存或更新 callback
	Save(ctx context.Context, cb *model.Callback) error

	// FindByID 根据 ID 查找 callback
	FindByID(ctx context.Context, id string) (*model.Callback, error)

	// List 列出所有 callback
	List(ctx context.Context) ([]*model.Callback, error)

	// Delete 删除 callback
	Delete(ctx context.Context, id string) error
}

// ErrTaskNotFound 任务不存在错误
type ErrTaskNotFound struct {
	ID string
}

func (e *ErrTaskNotFound) Error() string {
	return "task not found: " + e.ID
}

// ErrCallbackNotFound callback 不存在错误
type ErrCallbackNotFound struct {
	ID string
}

func (e *ErrCallbackNotFound) Error() string {
	return "callback not found: " + e.ID
}

// ErrInvalidStatusTransition 非法状态转换错误
type ErrInvalidStatusTransition struct {
	From string
	To   string
}

func (e *ErrInvalidStatusTransition) Error() string {
	return "invalid status transition: " + e.From + " -> " + e.To
}
