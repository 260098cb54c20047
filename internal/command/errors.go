package command

import "errors"

var (
	// ErrCommandAlreadyExists 命令已注册
	ErrCommandAlreadyExists = errors.New("command already exists")
	// ErrCommandNotFound 命令未注册
	ErrCommandNotFound = errors.New("command not found")
	// ErrInvalidDescriptor 命令描述无效
	ErrInvalidDescriptor = errors.New("invalid command descriptor")
	// ErrInvalidArguments 命令参数无效
	ErrInvalidArguments = errors.New("invalid command arguments")
)
