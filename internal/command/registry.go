package command

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Registry 命令注册表
type Registry struct {
	commands map[string]Command
	validate *validator.Validate
	mu       sync.RWMutex
}

// 命令名校验 tag
const cmdnameTag = "cmdname"

// NewRegistry 创建空注册表
func NewRegistry() (*Registry, error) {
	v, err := newDescriptorValidator(cmdnameTag)
	if err != nil {
		return nil, err
	}
	return &Registry{
		commands: make(map[string]Command),
		validate: v,
	}, nil
}

// newDescriptorValidator 创建带命令名校验的 validator
// 命令名: 小写字母、数字、'-'、'_'
func newDescriptorValidator(tag string) (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return isValidCommandName(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("failed to register %q validation: %w", tag, err)
	}
	return v, nil
}

func isValidCommandName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_') {
			return false
		}
	}
	return true
}

// Default 创建包含所有内置命令的注册表
func Default() (*Registry, error) {
	r, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, cmd := range []Command{
		NewUptimeCommand(),
		NewJobsCommand(),
	} {
		if err := r.Register(cmd); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 注册命令，描述校验失败或重名时返回错误
func (r *Registry) Register(cmd Command) error {
	desc := cmd.Descriptor()
	if err := r.validate.Struct(desc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, desc.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[desc.Name]; exists {
		return ErrCommandAlreadyExists
	}
	r.commands[desc.Name] = cmd
	return nil
}

// Get 按名称查找命令
func (r *Registry) Get(name string) (Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	if !ok {
		return nil, ErrCommandNotFound
	}
	return cmd, nil
}

// Descriptors 返回所有命令描述，按名称排序
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Descriptor, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd.Descriptor().Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
