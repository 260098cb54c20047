package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/model"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := InitializeDB(filepath.Join(t.TempDir(), "athena.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTaskSaveAndFind(t *testing.T) {
	repo := NewBoltTaskRepository(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	task, err := model.NewTask("cb-1", "uptime", "")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, task))

	got, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, model.TASK_SUBMITTED, got.Status)
	assert.WithinDuration(t, task.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestTaskSaveKeepsCreatedAt(t *testing.T) {
	repo := NewBoltTaskRepository(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	task, err := model.NewTask("cb-1", "uptime", "")
	require.NoError(t, err)
	created := time.Now().Add(-time.Hour)
	task.CreatedAt = created
	require.NoError(t, repo.Save(ctx, task))

	task.CreatedAt = time.Now()
	task.Output = "x"
	require.NoError(t, repo.Save(ctx, task))

	got, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)
	assert.Equal(t, "x", got.Output)
}

func TestTaskNotFound(t *testing.T) {
	repo := NewBoltTaskRepository(openTestDB(t), zap.NewNop())

	_, err := repo.FindByID(context.Background(), "missing")
	var notFound *ErrTaskNotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.ID)
}

func TestTaskUpdateStatus(t *testing.T) {
	repo := NewBoltTaskRepository(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	task, err := model.NewTask("cb-1", "uptime", "")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, task))

	got, err := repo.UpdateStatus(ctx, task.ID, model.TASK_PROCESSING)
	require.NoError(t, err)
	assert.Equal(t, model.TASK_PROCESSING, got.Status)
	assert.False(t, got.Completed)

	got, err = repo.UpdateStatus(ctx, task.ID, model.TASK_COMPLETED)
	require.NoError(t, err)
	assert.True(t, got.Completed)

	_, err = repo.UpdateStatus(ctx, task.ID, model.TASK_PROCESSING)
	var transition *ErrInvalidStatusTransition
	require.True(t, errors.As(err, &transition))
	assert.Equal(t, model.TASK_COMPLETED, transition.From)
	assert.Equal(t, model.TASK_PROCESSING, transition.To)
}

func TestTaskAppendOutput(t *testing.T) {
	repo := NewBoltTaskRepository(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	task, err := model.NewTask("cb-1", "uptime", "")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, task))

	_, err = repo.AppendOutput(ctx, task.ID, "0:01")
	require.NoError(t, err)
	got, err := repo.AppendOutput(ctx, task.ID, ":02:03")
	require.NoError(t, err)
	assert.Equal(t, "0:01:02:03", got.Output)
}

func TestTaskListByCallback(t *testing.T) {
	repo := NewBoltTaskRepository(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i, cb := range []string{"cb-1", "cb-2", "cb-1"} {
		task, err := model.NewTask(cb, "uptime", "")
		require.NoError(t, err)
		task.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Save(ctx, task))
	}

	tasks, err := repo.ListByCallback(ctx, "cb-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.True(t, tasks[0].CreatedAt.Before(tasks[1].CreatedAt))

	tasks, err = repo.ListByCallback(ctx, "cb-3")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCallbackRepository(t *testing.T) {
	repo := NewBoltCallbackRepository(openTestDB(t), zap.NewNop())
	ctx := context.Background()

	cb := &model.Callback{ID: "cb-1", Hostname: "web01"}
	require.NoError(t, repo.Save(ctx, cb))
	created := cb.CreatedAt

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.Save(ctx, &model.Callback{ID: "cb-2"}))

	cb.Hostname = "web02"
	require.NoError(t, repo.Save(ctx, cb))

	got, err := repo.FindByID(ctx, "cb-1")
	require.NoError(t, err)
	assert.Equal(t, "web02", got.Hostname)
	assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cb-2", list[0].ID)

	require.NoError(t, repo.Delete(ctx, "cb-2"))
	var notFound *ErrCallbackNotFound
	assert.True(t, errors.As(repo.Delete(ctx, "cb-2"), &notFound))

	_, err = repo.FindByID(ctx, "cb-2")
	assert.True(t, errors.As(err, &notFound))
}

func TestCallbackSaveRequiresID(t *testing.T) {
	repo := NewBoltCallbackRepository(openTestDB(t), zap.NewNop())
	assert.Error(t, repo.Save(context.Background(), &model.Callback{}))
}
