package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/agent/info"
	"github.com/lucheng0127/athena/internal/command"
	"github.com/lucheng0127/athena/internal/db"
	"github.com/lucheng0127/athena/internal/model"
)

// Tasker 任务提交接口
type Tasker interface {
	Submit(ctx context.Context, callbackID, command, commandLine string) (*model.Task, error)
}

// Handler API 处理器
type Handler struct {
	registry  *command.Registry
	tasker    Tasker
	tasks     db.TaskRepository
	callbacks db.CallbackRepository
	logger    *zap.Logger
	startTime time.Time
}

// NewHandler 创建 API 处理器
func NewHandler(
	registry *command.Registry,
	tasker Tasker,
	tasks db.TaskRepository,
	callbacks db.CallbackRepository,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		registry:  registry,
		tasker:    tasker,
		tasks:     tasks,
		callbacks: callbacks,
		logger:    logger,
		startTime: time.Now(),
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API v1
	v1 := r.Group("/api/v1")
	{
		commands := v1.Group("/commands")
		{
			commands.GET("", h.ListCommands)
			commands.GET("/:name", h.GetCommand)
		}

		callbacks := v1.Group("/callbacks")
		{
			callbacks.GET("", h.ListCallbacks)
			callbacks.GET("/:id", h.GetCallback)
			callbacks.GET("/:id/tasks", h.ListCallbackTasks)
		}

		tasks := v1.Group("/tasks")
		{
			tasks.POST("", h.CreateTask)
			tasks.GET("/:id", h.GetTask)
		}
	}

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

// errorResponse 返回错误响应
func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{Error: message})
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	CallbackID string `json:"callback_id" binding:"required"`
	Command    string `json:"command" binding:"required"`
	Params     string `json:"params"`
}

// ListCommands 列出所有已注册命令
func (h *Handler) ListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Descriptors())
}

// GetCommand 获取命令描述
func (h *Handler) GetCommand(c *gin.Context) {
	cmd, err := h.registry.Get(c.Param("name"))
	if err != nil {
		errorResponse(c, http.StatusNotFound, "command not found")
		return
	}

	c.JSON(http.StatusOK, cmd.Descriptor())
}

// ListCallbacks 列出所有 callback
func (h *Handler) ListCallbacks(c *gin.Context) {
	callbacks, err := h.callbacks.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list callbacks", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "failed to list callbacks")
		return
	}

	c.JSON(http.StatusOK, callbacks)
}

// GetCallback 获取单个 callback
func (h *Handler) GetCallback(c *gin.Context) {
	cb, err := h.callbacks.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.notFoundOr500(c, err, "failed to get callback")
		return
	}

	c.JSON(http.StatusOK, cb)
}

// ListCallbackTasks 列出 callback 的任务
func (h *Handler) ListCallbackTasks(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.callbacks.FindByID(c.Request.Context(), id); err != nil {
		h.notFoundOr500(c, err, "failed to get callback")
		return
	}

	tasks, err := h.tasks.ListByCallback(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to list tasks", zap.String("callback_id", id), zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// CreateTask 为 callback 创建任务
func (h *Handler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.tasker.Submit(c.Request.Context(), req.CallbackID, req.Command, req.Params)
	if err != nil {
		switch {
		case errors.Is(err, command.ErrCommandNotFound):
			errorResponse(c, http.StatusNotFound, "command not found")
		case errors.Is(err, command.ErrInvalidArguments):
			errorResponse(c, http.StatusBadRequest, err.Error())
		default:
			h.notFoundOr500(c, err, "failed to create task")
		}
		return
	}

	c.Header("Location", "/api/v1/tasks/"+task.ID)
	c.JSON(http.StatusCreated, task)
}

// GetTask 获取任务
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.tasks.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.notFoundOr500(c, err, "failed to get task")
		return
	}

	c.JSON(http.StatusOK, task)
}

// notFoundOr500 存储层不存在错误返回 404，其余返回 500
func (h *Handler) notFoundOr500(c *gin.Context, err error, message string) {
	var taskNotFound *db.ErrTaskNotFound
	var callbackNotFound *db.ErrCallbackNotFound

	switch {
	case errors.As(err, &taskNotFound):
		errorResponse(c, http.StatusNotFound, "task not found")
	case errors.As(err, &callbackNotFound):
		errorResponse(c, http.StatusNotFound, "callback not found")
	default:
		h.logger.Error(message, zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, message)
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: info.FormatUptime(time.Since(h.startTime)),
	})
}
