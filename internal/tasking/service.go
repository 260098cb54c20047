package tasking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/command"
	"github.com/lucheng0127/athena/internal/db"
	"github.com/lucheng0127/athena/internal/model"
	"github.com/lucheng0127/athena/internal/transport"
)

// 每个 callback 结果队列的缓冲大小
const callbackQueueSize = 64

// Service 任务流水线：参数解析、任务创建、下发、结果处理
type Service struct {
	registry  *command.Registry
	tasks     db.TaskRepository
	callbacks db.CallbackRepository
	transport transport.ServerTransport
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewService 创建任务服务
func NewService(
	registry *command.Registry,
	tasks db.TaskRepository,
	callbacks db.CallbackRepository,
	tr transport.ServerTransport,
	logger *zap.Logger,
) *Service {
	return &Service{
		registry:  registry,
		tasks:     tasks,
		callbacks: callbacks,
		transport: tr,
		logger:    logger,
	}
}

// Submit 为 callback 创建并下发任务
func (s *Service) Submit(ctx context.Context, callbackID, name, commandLine string) (*model.Task, error) {
	cmd, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	if _, err := s.callbacks.FindByID(ctx, callbackID); err != nil {
		return nil, err
	}

	args := cmd.NewArguments(commandLine)
	if err := args.Parse(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", command.ErrInvalidArguments, err)
	}

	params, err := args.JSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", command.ErrInvalidArguments, err)
	}

	task, err := model.NewTask(callbackID, name, commandLine)
	if err != nil {
		return nil, err
	}
	task.Params = params

	task, err = cmd.CreateTasking(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("create tasking for %s failed: %w", name, err)
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTasking, name)
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	s.logger.Info("task submitted",
		zap.String("task_id", task.ID),
		zap.String("callback_id", callbackID),
		zap.String("command", name),
	)

	// 先进入 processing 再下发，agent 的结果可能早于 PublishTask 返回
	if _, err := s.tasks.UpdateStatus(ctx, task.ID, model.TASK_PROCESSING); err != nil {
		return nil, err
	}

	msg := transport.TaskMessage{
		TaskID:     task.ID,
		Command:    task.Command,
		Parameters: task.Params,
	}

	if err := s.transport.PublishTask(ctx, callbackID, msg); err != nil {
		s.logger.Error("failed to publish task",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		if _, appendErr := s.tasks.AppendOutput(ctx, task.ID, err.Error()); appendErr != nil {
			s.logger.Error("failed to record publish error", zap.Error(appendErr))
		}
		return s.tasks.UpdateStatus(ctx, task.ID, model.TASK_ERROR)
	}

	return s.tasks.FindByID(ctx, task.ID)
}

// HandleResponse 处理 callback 返回的任务结果
func (s *Service) HandleResponse(ctx context.Context, callbackID string, resp *model.AgentResponse) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, resp.TaskID)
	if err != nil {
		return nil, err
	}

	if task.CallbackID != callbackID {
		return nil, fmt.Errorf("%w: task %s belongs to %s, got %s",
			ErrCallbackMismatch, task.ID, task.CallbackID, callbackID)
	}

	if task.IsTerminal() {
		s.logger.Warn("response for finished task ignored",
			zap.String("task_id", task.ID),
			zap.String("status", task.Status),
		)
		return task, nil
	}

	cmd, err := s.registry.Get(task.Command)
	if err != nil {
		return nil, err
	}

	if err := cmd.ProcessResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("process response for %s failed: %w", task.Command, err)
	}

	if resp.UserOutput != "" {
		if task, err = s.tasks.AppendOutput(ctx, task.ID, resp.UserOutput); err != nil {
			return nil, err
		}
	}

	if !resp.Completed {
		return task, nil
	}

	status := model.TASK_COMPLETED
	if resp.IsError() {
		status = model.TASK_ERROR
	}

	task, err = s.tasks.UpdateStatus(ctx, task.ID, status)
	if err != nil {
		return nil, err
	}

	s.logger.Info("task finished",
		zap.String("task_id", task.ID),
		zap.String("command", task.Command),
		zap.String("status", task.Status),
	)
	return task, nil
}

// HandleCheckin 记录 agent 心跳
func (s *Service) HandleCheckin(ctx context.Context, checkin model.Checkin) (*model.Callback, error) {
	cb, err := s.callbacks.FindByID(ctx, checkin.CallbackID)
	if err != nil {
		var notFound *db.ErrCallbackNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
		cb = &model.Callback{ID: checkin.CallbackID}
		s.logger.Info("new callback", zap.String("callback_id", checkin.CallbackID))
	}

	cb.Apply(checkin, time.Now())
	if err := s.callbacks.Save(ctx, cb); err != nil {
		return nil, err
	}

	s.logger.Debug("callback checked in",
		zap.String("callback_id", cb.ID),
		zap.String("hostname", cb.Hostname),
		zap.String("ip", cb.IP),
	)
	return cb, nil
}

// Run 持续处理 agent 消息，直到传输层关闭或 ctx 取消
// 同一 callback 的结果按到达顺序串行处理，心跳并发处理
func (s *Service) Run(ctx context.Context) error {
	msgChan := s.transport.Messages()
	queues := make(map[string]chan transport.Inbound)

	defer func() {
		for _, queue := range queues {
			close(queue)
		}
		s.wg.Wait()
	}()

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}

			if msg.Kind != transport.KIND_RESPONSE {
				s.wg.Add(1)
				go func(msg transport.Inbound) {
					defer s.wg.Done()
					s.process(ctx, msg)
				}(msg)
				continue
			}

			queue, exists := queues[msg.CallbackID]
			if !exists {
				queue = make(chan transport.Inbound, callbackQueueSize)
				queues[msg.CallbackID] = queue
				s.wg.Add(1)
				go s.worker(ctx, queue)
			}

			select {
			case queue <- msg:
			case <-ctx.Done():
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// worker 串行处理单个 callback 的结果
func (s *Service) worker(ctx context.Context, queue <-chan transport.Inbound) {
	defer s.wg.Done()
	for msg := range queue {
		s.process(ctx, msg)
	}
}

// process 处理单条消息并记录错误
func (s *Service) process(ctx context.Context, msg transport.Inbound) {
	if err := s.handle(ctx, msg); err != nil {
		s.logger.Error("failed to handle agent message",
			zap.String("callback_id", msg.CallbackID),
			zap.String("kind", string(msg.Kind)),
			zap.Error(err),
		)
	}
}

// handle 按消息类型分发
func (s *Service) handle(ctx context.Context, msg transport.Inbound) error {
	switch msg.Kind {
	case transport.KIND_RESPONSE:
		var resp model.AgentResponse
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		_, err := s.HandleResponse(ctx, msg.CallbackID, &resp)
		return err

	case transport.KIND_CHECKIN:
		var checkin model.Checkin
		if err := json.Unmarshal(msg.Payload, &checkin); err != nil {
			return fmt.Errorf("failed to parse checkin: %w", err)
		}
		// 以主题中的 callback 为准
		checkin.CallbackID = msg.CallbackID
		_, err := s.HandleCheckin(ctx, checkin)
		return err

	default:
		return fmt.Errorf("unexpected message kind: %s", msg.Kind)
	}
}
