package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/command"
	"github.com/lucheng0127/athena/internal/db"
	"github.com/lucheng0127/athena/internal/model"
)

// stubTasker 直接写库的任务提交实现
type stubTasker struct {
	tasks db.TaskRepository
	err   error
}

func (s *stubTasker) Submit(ctx context.Context, callbackID, name, commandLine string) (*model.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	task, err := model.NewTask(callbackID, name, commandLine)
	if err != nil {
		return nil, err
	}
	task.Params = "{}"
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

type fixture struct {
	router    *gin.Engine
	tasker    *stubTasker
	tasks     db.TaskRepository
	callbacks db.CallbackRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	boltDB, err := db.InitializeDB(filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { boltDB.Close() })

	registry, err := command.Default()
	require.NoError(t, err)

	tasks := db.NewBoltTaskRepository(boltDB, zap.NewNop())
	callbacks := db.NewBoltCallbackRepository(boltDB, zap.NewNop())
	tasker := &stubTasker{tasks: tasks}

	router := gin.New()
	NewHandler(registry, tasker, tasks, callbacks, zap.NewNop()).RegisterRoutes(router)

	return &fixture{router: router, tasker: tasker, tasks: tasks, callbacks: callbacks}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestListCommands(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/commands", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var descriptors []command.Descriptor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &descriptors))
	require.Len(t, descriptors, 2)
	assert.Equal(t, "jobs", descriptors[0].Name)
	assert.Equal(t, "uptime", descriptors[1].Name)
}

func TestGetCommand(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/commands/uptime", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var d command.Descriptor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "uptime", d.Name)
	assert.Equal(t, "uptime", d.HelpCmd)
	assert.Equal(t, "output the current uptime in D:H:M:S", d.Description)
	assert.False(t, d.NeedsAdmin)
	assert.Equal(t, 1, d.Version)
	assert.Equal(t, "@tr41nwr3ck", d.Author)
	assert.Empty(t, d.AttackMapping)

	w = f.do(http.MethodGet, "/api/v1/commands/ls", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.do(http.MethodGet, "/api/v1/callbacks/cb-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, f.callbacks.Save(ctx, &model.Callback{ID: "cb-1", Hostname: "web01"}))

	w = f.do(http.MethodGet, "/api/v1/callbacks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Callback
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "web01", list[0].Hostname)

	w = f.do(http.MethodGet, "/api/v1/callbacks/cb-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/callbacks/cb-2/tasks", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateAndGetTask(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.callbacks.Save(context.Background(), &model.Callback{ID: "cb-1"}))

	w := f.do(http.MethodPost, "/api/v1/tasks", CreateTaskRequest{CallbackID: "cb-1", Command: "uptime"})
	require.Equal(t, http.StatusCreated, w.Code)

	var task model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, "/api/v1/tasks/"+task.ID, w.Header().Get("Location"))
	assert.Equal(t, "uptime", task.Command)

	w = f.do(http.MethodGet, "/api/v1/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/callbacks/cb-1/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	w = f.do(http.MethodGet, "/api/v1/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTaskErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
		err  error
		code int
	}{
		{name: "malformed body", body: "{", code: http.StatusBadRequest},
		{name: "missing command", body: CreateTaskRequest{CallbackID: "cb-1"}, code: http.StatusBadRequest},
		{name: "unknown command", body: CreateTaskRequest{CallbackID: "cb-1", Command: "ls"}, err: fmt.Errorf("%w: ls", command.ErrCommandNotFound), code: http.StatusNotFound},
		{name: "unknown callback", body: CreateTaskRequest{CallbackID: "cb-9", Command: "uptime"}, err: &db.ErrCallbackNotFound{ID: "cb-9"}, code: http.StatusNotFound},
		{name: "bad arguments", body: CreateTaskRequest{CallbackID: "cb-1", Command: "uptime"}, err: fmt.Errorf("%w: boom", command.ErrInvalidArguments), code: http.StatusBadRequest},
		{name: "internal", body: CreateTaskRequest{CallbackID: "cb-1", Command: "uptime"}, err: fmt.Errorf("disk full"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.tasker.err = tt.err
			w := f.do(http.MethodPost, "/api/v1/tasks", tt.body)
			assert.Equal(t, tt.code, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Regexp(t, `^\d+:\d{2}:\d{2}:\d{2}$`, resp.Uptime)
}
