package db

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/model"
)

// BoltTaskRepository bbolt 实现的 TaskRepository
type BoltTaskRepository struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewBoltTaskRepository 创建 BoltTaskRepository
func NewBoltTaskRepository(db *bbolt.DB, logger *zap.Logger) *BoltTaskRepository {
	return &BoltTaskRepository{
		db:     db,
		logger: logger,
	}
}

// Save 保存或更新任务，保持 CreatedAt 不变
func (r *BoltTaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, BUCKET_TASKS)
		if err != nil {
			return err
		}

		now := time.Now()
		if existing := b.Get([]byte(task.ID)); existing != nil {
			var old model.Task
			if err := json.Unmarshal(existing, &old); err != nil {
				return err
			}
			task.CreatedAt = old.CreatedAt
		} else if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}
		task.UpdatedAt = now

		if err := putTask(b, task); err != nil {
			return err
		}

		r.logger.Debug("task saved",
			zap.String("task_id", task.ID),
			zap.String("callback_id", task.CallbackID),
			zap.String("status", task.Status),
		)
		return nil
	})
}

// FindByID 根据 ID 查找任务
func (r *BoltTaskRepository) FindByID(ctx context.Context, id string) (*model.Task, error) {
	var task *model.Task
	err := r.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, BUCKET_TASKS)
		if err != nil {
			return err
		}

		t, err := getTask(b, id)
		if err != nil {
			return err
		}
		task = t
		return nil
	})

	if err != nil {
		return nil, err
	}

	return task, nil
}

// ListByCallback 列出某个 callback 的所有任务，按 CreatedAt 升序
func (r *BoltTaskRepository) ListByCallback(ctx context.Context, callbackID string) ([]*model.Task, error) {
	tasks := make([]*model.Task, 0)

	err := r.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, BUCKET_TASKS)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var task model.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			if task.CallbackID == callbackID {
				tasks = append(tasks, &task)
			}
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// UpdateStatus 更新任务状态（带转换验证）
func (r *BoltTaskRepository) UpdateStatus(ctx context.Context, id string, status string) (*model.Task, error) {
	return r.modify(id, func(task *model.Task) error {
		if err := task.CanTransitionTo(status); err != nil {
			return &ErrInvalidStatusTransition{From: task.Status, To: status}
		}

		task.Status = status
		if task.IsTerminal() {
			task.Completed = true
		}
		return nil
	})
}

// AppendOutput 追加任务输出
func (r *BoltTaskRepository) AppendOutput(ctx context.Context, id string, output string) (*model.Task, error) {
	return r.modify(id, func(task *model.Task) error {
		task.Output += output
		return nil
	})
}

// modify 在同一事务中读取、修改并写回任务
func (r *BoltTaskRepository) modify(id string, fn func(task *model.Task) error) (*model.Task, error) {
	var task *model.Task
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, BUCKET_TASKS)
		if err != nil {
			return err
		}

		t, err := getTask(b, id)
		if err != nil {
			return err
		}

		if err := fn(t); err != nil {
			return err
		}
		t.UpdatedAt = time.Now()

		task = t
		return putTask(b, t)
	})

	if err != nil {
		return nil, err
	}

	r.logger.Debug("task updated",
		zap.String("task_id", task.ID),
		zap.String("status", task.Status),
	)
	return task, nil
}

func getTask(b *bbolt.Bucket, id string) (*model.Task, error) {
	data := b.Get([]byte(id))
	if data == nil {
		return nil, &ErrTaskNotFound{ID: id}
	}

	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func putTask(b *bbolt.Bucket, task *model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return b.Put([]byte(task.ID), data)
}
