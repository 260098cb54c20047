package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/api"
	"github.com/lucheng0127/athena/internal/command"
	"github.com/lucheng0127/athena/internal/model"
)

// fakeServer 模拟 Athena API，任务在第二次查询时完成
type fakeServer struct {
	polls   atomic.Int32
	created api.CreateTaskRequest
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/commands", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []command.Descriptor{command.NewUptimeCommand().Descriptor()})
	})
	mux.HandleFunc("GET /api/v1/callbacks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Callback{{ID: "cb-1", Hostname: "web01", LastCheckin: time.Now()}})
	})
	mux.HandleFunc("GET /api/v1/callbacks/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Task{{ID: "t-1", Command: "uptime", Status: model.TASK_COMPLETED}})
	})
	mux.HandleFunc("POST /api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.created); err != nil {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
			return
		}
		if f.created.Command != "uptime" {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "command not found"})
			return
		}
		writeJSON(w, http.StatusCreated, model.Task{ID: "t-1", CallbackID: f.created.CallbackID, Command: "uptime", Status: model.TASK_PROCESSING})
	})
	mux.HandleFunc("GET /api/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		task := model.Task{ID: r.PathValue("id"), Command: "uptime", Status: model.TASK_PROCESSING}
		if f.polls.Add(1) >= 2 {
			task.Status = model.TASK_COMPLETED
			task.Completed = true
			task.Output = "3:04:05:06"
		}
		writeJSON(w, http.StatusOK, task)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func newTestConsole(t *testing.T) (*Console, *fakeServer, *bytes.Buffer) {
	t.Helper()
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	out := &bytes.Buffer{}
	c := New(NewClient(srv.URL+"/"), out, zap.NewNop(), WithPollInterval(10*time.Millisecond))
	return c, fake, out
}

func TestParseArgs(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, parseArgs(`a "b c"   d`))
	assert.Empty(t, parseArgs("   "))

	name, rest := splitCommand("  upload  /tmp/a  b ")
	assert.Equal(t, "upload", name)
	assert.Equal(t, "/tmp/a  b", rest)

	name, rest = splitCommand("uptime")
	assert.Equal(t, "uptime", name)
	assert.Empty(t, rest)
}

func TestExecuteRequiresCallback(t *testing.T) {
	c, _, _ := newTestConsole(t)
	ctx := context.Background()

	assert.Error(t, c.Execute(ctx, "uptime"))
	assert.Error(t, c.Execute(ctx, "tasks"))
	assert.Error(t, c.Execute(ctx, "use"))
	assert.Error(t, c.Execute(ctx, "use cb-404"))
	assert.Empty(t, c.Current())
}

func TestExecuteTaskUptime(t *testing.T) {
	c, fake, out := newTestConsole(t)
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "use cb-1"))
	assert.Equal(t, "cb-1", c.Current())

	require.NoError(t, c.Execute(ctx, "uptime"))
	assert.Equal(t, "cb-1", fake.created.CallbackID)
	assert.Equal(t, "uptime", fake.created.Command)
	assert.Empty(t, fake.created.Params)
	assert.Contains(t, out.String(), "task t-1 completed")
	assert.Contains(t, out.String(), "3:04:05:06")
}

func TestExecuteUnknownCommand(t *testing.T) {
	c, _, _ := newTestConsole(t)
	ctx := context.Background()
	require.NoError(t, c.Execute(ctx, "use cb-1"))

	err := c.Execute(ctx, "ls /tmp")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "command not found", apiErr.Message)
}

func TestExecuteListings(t *testing.T) {
	c, _, out := newTestConsole(t)
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "commands"))
	assert.Contains(t, out.String(), "output the current uptime in D:H:M:S")

	require.NoError(t, c.Execute(ctx, "callbacks"))
	assert.Contains(t, out.String(), "web01")

	require.NoError(t, c.Execute(ctx, "use cb-1"))
	require.NoError(t, c.Execute(ctx, "tasks"))
	assert.Contains(t, out.String(), "t-1")

	require.NoError(t, c.Execute(ctx, "help"))
	require.NoError(t, c.Execute(ctx, ""))
	assert.ErrorIs(t, c.Execute(ctx, "exit"), ErrExit)
}

func TestWaitTaskCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.Task{ID: "t-1", Status: model.TASK_PROCESSING})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	task, err := NewClient(srv.URL).WaitTask(ctx, "t-1", 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, task)
	assert.Equal(t, model.TASK_PROCESSING, task.Status)
}
