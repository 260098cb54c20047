package tasking

import "errors"

var (
	// ErrCallbackMismatch 结果来源与任务所属 callback 不一致
	ErrCallbackMismatch = errors.New("response callback mismatch")
	// ErrEmptyTasking 命令未返回任务
	ErrEmptyTasking = errors.New("create tasking returned no task")
)
