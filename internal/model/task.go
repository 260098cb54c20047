package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task 下发给 callback 的任务
type Task struct {
	ID             string    `json:"id"`
	CallbackID     string    `json:"callback_id"`
	Command        string    `json:"command"`
	OriginalParams string    `json:"original_params"`
	Params         string    `json:"params"`
	Status         string    `json:"status"`
	Completed      bool      `json:"completed"`
	Output         string    `json:"output,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// 任务状态常量
const (
	TASK_SUBMITTED  = "submitted"
	TASK_PROCESSING = "processing"
	TASK_COMPLETED  = "completed"
	TASK_ERROR      = "error"
)

// 所有有效任务状态
var validTaskStates = map[string]bool{
	TASK_SUBMITTED:  true,
	TASK_PROCESSING: true,
	TASK_COMPLETED:  true,
	TASK_ERROR:      true,
}

// IsValidTaskStatus 验证任务状态是否有效
func IsValidTaskStatus(status string) bool {
	return validTaskStates[status]
}

// 任务状态转换规则，completed 和 error 为终态
var taskTransitions = map[string][]string{
	TASK_SUBMITTED:  {TASK_PROCESSING, TASK_ERROR},
	TASK_PROCESSING: {TASK_COMPLETED, TASK_ERROR},
	TASK_COMPLETED:  {},
	TASK_ERROR:      {},
}

// CanTransitionTo 检查任务状态转换是否合法
// submitted → processing → completed | error
func (t *Task) CanTransitionTo(newStatus string) error {
	if !IsValidTaskStatus(newStatus) {
		return fmt.Errorf("invalid task status: %s", newStatus)
	}

	if t.Status == newStatus {
		return nil
	}

	allowed, exists := taskTransitions[t.Status]
	if !exists {
		return fmt.Errorf("unknown current task status: %s", t.Status)
	}

	for _, s := range allowed {
		if s == newStatus {
			return nil
		}
	}

	return fmt.Errorf("invalid task status transition: %s -> %s", t.Status, newStatus)
}

// IsTerminal 任务是否已结束
func (t *Task) IsTerminal() bool {
	return t.Status == TASK_COMPLETED || t.Status == TASK_ERROR
}

// Validate 验证任务数据
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task id is required")
	}

	if t.CallbackID == "" {
		return errors.New("callback id is required")
	}

	if t.Command == "" {
		return errors.New("command is required")
	}

	if !IsValidTaskStatus(t.Status) {
		return fmt.Errorf("invalid task status: %s", t.Status)
	}

	return nil
}

// NewTask 创建新任务，状态为 submitted
func NewTask(callbackID, command, commandLine string) (*Task, error) {
	if callbackID == "" {
		return nil, errors.New("callback id is required")
	}

	if command == "" {
		return nil, errors.New("command is required")
	}

	now := time.Now()
	return &Task{
		ID:             uuid.NewString(),
		CallbackID:     callbackID,
		Command:        command,
		OriginalParams: commandLine,
		Status:         TASK_SUBMITTED,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
