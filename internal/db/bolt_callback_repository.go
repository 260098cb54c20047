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

// BoltCallbackRepository bbolt 实现的 CallbackRepository
type BoltCallbackRepository struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewBoltCallbackRepository 创建 BoltCallbackRepository
func NewBoltCallbackRepository(db *bbolt.DB, logger *zap.Logger) *BoltCallbackRepository {
	return &BoltCallbackRepository{
		db:     db,
		logger: logger,
	}
}

// Save 保存或更新 callback
func (r *BoltCallbackRepository) Save(ctx context.Context, cb *model.Callback) error {
	if err := cb.Validate(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, BUCKET_CALLBACKS)
		if err != nil {
			return err
		}

		existing := b.Get([]byte(cb.ID))
		now := time.Now()

		if existing != nil {
			// 更新现有 callback，保持 CreatedAt 不变
			var old model.Callback
			if err := json.Unmarshal(existing, &old); err != nil {
				return err
			}
			cb.CreatedAt = old.CreatedAt
		} else {
			cb.CreatedAt = now
		}

		cb.UpdatedAt = now

		data, err := json.Marshal(cb)
		if err != nil {
			return err
		}

		if err := b.Put([]byte(cb.ID), data); err != nil {
			return err
		}

		r.logger.Debug("callback saved", zap.String("callback_id", cb.ID))
		return nil
	})
}

// FindByID 根据 ID 查找 callback
func (r *BoltCallbackRepository) FindByID(ctx context.Context, id string) (*model.Callback, error) {
	var cb *model.Callback
	err := r.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, BUCKET_CALLBACKS)
		if err != nil {
			return err
		}

		data := b.Get([]byte(id))
		if data == nil {
			return &ErrCallbackNotFound{ID: id}
		}

		var c model.Callback
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}

		cb = &c
		return nil
	})

	if err != nil {
		return nil, err
	}

	return cb, nil
}

// List 列出所有 callback，按 CreatedAt 降序
func (r *BoltCallbackRepository) List(ctx context.Context) ([]*model.Callback, error) {
	callbacks := make([]*model.Callback, 0)

	err := r.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, BUCKET_CALLBACKS)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var cb model.Callback
			if err := json.Unmarshal(v, &cb); err != nil {
				return err
			}
			callbacks = append(callbacks, &cb)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	sort.SliceStable(callbacks, func(i, j int) bool {
		return callbacks[i].CreatedAt.After(callbacks[j].CreatedAt)
	})

	return callbacks, nil
}

// Delete 删除 callback
func (r *BoltCallbackRepository) Delete(ctx context.Context, id string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, BUCKET_CALLBACKS)
		if err != nil {
			return err
		}

		if b.Get([]byte(id)) == nil {
			return &ErrCallbackNotFound{ID: id}
		}

		if err := b.Delete([]byte(id)); err != nil {
			return err
		}

		r.logger.Info("callback deleted", zap.String("callback_id", id))
		return nil
	})
}
