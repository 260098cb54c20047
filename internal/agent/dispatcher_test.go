package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lucheng0127/athena/internal/agent/command"
	"github.com/lucheng0127/athena/internal/model"
	"github.com/lucheng0127/athena/internal/transport"
)

type funcHandler struct {
	name string
	fn   func(ctx context.Context, task transport.TaskMessage) (string, error)
}

func (h *funcHandler) Name() string { return h.name }

func (h *funcHandler) Execute(ctx context.Context, task transport.TaskMessage) (string, error) {
	return h.fn(ctx, task)
}

func taskPayload(t *testing.T, id, cmd string) []byte {
	t.Helper()
	payload, err := transport.Encode(transport.TaskMessage{TaskID: id, Command: cmd, Parameters: "{}"})
	require.NoError(t, err)
	return payload
}

func TestDispatchUptime(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.Register(command.NewUptimeCommand(func(ctx context.Context) time.Duration {
		return 90 * time.Minute
	}))

	resp, err := d.Dispatch(context.Background(), taskPayload(t, "t-1", "uptime"))
	require.NoError(t, err)
	assert.Equal(t, model.AgentResponse{TaskID: "t-1", UserOutput: "0:01:30:00", Completed: true}, resp)
	assert.Empty(t, d.Jobs())
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	resp, err := d.Dispatch(context.Background(), taskPayload(t, "t-1", "shell"))
	require.NoError(t, err)
	assert.True(t, resp.Completed)
	assert.True(t, resp.IsError())
	assert.Equal(t, "command not loaded: shell", resp.UserOutput)
}

func TestDispatchInvalidPayload(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	_, err := d.Dispatch(context.Background(), []byte("{"))
	assert.ErrorIs(t, err, transport.ErrInvalidMessage)
}

func TestDispatchHandlerError(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.Register(&funcHandler{name: "fail", fn: func(ctx context.Context, task transport.TaskMessage) (string, error) {
		return "", errors.New("access denied")
	}})

	resp, err := d.Dispatch(context.Background(), taskPayload(t, "t-1", "fail"))
	require.NoError(t, err)
	assert.Equal(t, model.NewErrorResponse("t-1", "access denied"), resp)
	assert.Empty(t, d.Jobs())
}

func TestDispatchRecoversPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	d := NewDispatcher(zap.New(core))
	d.Register(&funcHandler{name: "boom", fn: func(ctx context.Context, task transport.TaskMessage) (string, error) {
		panic("nil map")
	}})

	resp, err := d.Dispatch(context.Background(), taskPayload(t, "t-1", "boom"))
	require.NoError(t, err)
	assert.True(t, resp.IsError())
	assert.Contains(t, resp.UserOutput, "nil map")
	assert.Empty(t, d.Jobs())

	entries := logs.FilterMessage("command panicked").All()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ContextMap()["stack"])
}

func TestDispatchJobsListsRunningTasks(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.Register(command.NewJobsCommand(d))

	release := make(chan struct{})
	started := make(chan struct{})
	d.Register(&funcHandler{name: "sleep", fn: func(ctx context.Context, task transport.TaskMessage) (string, error) {
		close(started)
		<-release
		return "", nil
	}})

	done := make(chan model.AgentResponse, 1)
	go func() {
		resp, _ := d.Dispatch(context.Background(), taskPayload(t, "t-1", "sleep"))
		done <- resp
	}()
	<-started

	resp, err := d.Dispatch(context.Background(), taskPayload(t, "t-2", "jobs"))
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"id":"t-1","command":"sleep","status":"started"},
		{"id":"t-2","command":"jobs","status":"started"}
	]`, resp.UserOutput)

	close(release)
	<-done
	assert.Empty(t, d.Jobs())
}
