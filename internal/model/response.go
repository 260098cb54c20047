package model

// 响应状态
const (
	RESPONSE_STATUS_ERROR = "error"
)

// AgentResponse agent 返回的任务结果
type AgentResponse struct {
	TaskID     string `json:"task_id"`
	UserOutput string `json:"user_output,omitempty"`
	Completed  bool   `json:"completed"`
	Status     string `json:"status,omitempty"`
}

// IsError 结果是否为错误
func (r *AgentResponse) IsError() bool {
	return r.Status == RESPONSE_STATUS_ERROR
}

// NewErrorResponse 创建已完成的错误响应
func NewErrorResponse(taskID, output string) AgentResponse {
	return AgentResponse{
		TaskID:     taskID,
		UserOutput: output,
		Completed:  true,
		Status:     RESPONSE_STATUS_ERROR,
	}
}
