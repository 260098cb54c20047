package db

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Bucket 名称
const (
	BUCKET_TASKS     = "tasks"
	BUCKET_CALLBACKS = "callbacks"
)

var buckets = []string{BUCKET_TASKS, BUCKET_CALLBACKS}

// InitializeDB 初始化数据库
func InitializeDB(dbPath string, logger *zap.Logger) (*bbolt.DB, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 创建 bucket
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	logger.Info("database initialized", zap.String("path", dbPath))
	return db, nil
}

// bucket 获取 bucket，不存在时返回错误
func bucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("bucket not found: %s", name)
	}
	return b, nil
}
