package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lucheng0127/athena/internal/api"
	"github.com/lucheng0127/athena/internal/command"
	"github.com/lucheng0127/athena/internal/model"
)

// APIError 服务端返回的错误
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client Athena API 客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建 API 客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Commands 列出服务端已注册命令
func (c *Client) Commands(ctx context.Context) ([]command.Descriptor, error) {
	var descriptors []command.Descriptor
	if err := c.do(ctx, http.MethodGet, "/api/v1/commands", nil, &descriptors); err != nil {
		return nil, err
	}
	return descriptors, nil
}

// Callbacks 列出所有 callback
func (c *Client) Callbacks(ctx context.Context) ([]model.Callback, error) {
	var callbacks []model.Callback
	if err := c.do(ctx, http.MethodGet, "/api/v1/callbacks", nil, &callbacks); err != nil {
		return nil, err
	}
	return callbacks, nil
}

// CallbackTasks 列出 callback 的任务
func (c *Client) CallbackTasks(ctx context.Context, callbackID string) ([]model.Task, error) {
	var tasks []model.Task
	path := "/api/v1/callbacks/" + url.PathEscape(callbackID) + "/tasks"
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask 为 callback 创建任务
func (c *Client) CreateTask(ctx context.Context, callbackID, name, params string) (*model.Task, error) {
	req := api.CreateTaskRequest{
		CallbackID: callbackID,
		Command:    name,
		Params:     params,
	}

	var task model.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask 获取任务
func (c *Client) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// WaitTask 轮询任务直到结束或 ctx 取消
func (c *Client) WaitTask(ctx context.Context, id string, interval time.Duration) (*model.Task, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *model.Task
	for {
		task, err := c.GetTask(ctx, id)
		if err != nil {
			if ctx.Err() != nil && last != nil {
				return last, ctx.Err()
			}
			return nil, err
		}
		if task.IsTerminal() {
			return task, nil
		}
		last = task

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
}

// do 发送请求并解析 JSON 响应
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.ErrorResponse
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
