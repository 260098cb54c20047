package transport

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind 消息类型
type Kind string

const (
	KIND_TASK     Kind = "task"
	KIND_RESPONSE Kind = "response"
	KIND_CHECKIN  Kind = "checkin"
)

// 主题前缀与分隔符
const (
	TOPIC_PREFIX     = "athena"
	MQTT_SEPARATOR   = "/"
	VALKEY_SEPARATOR = ":"
)

// TaskMessage 下发给 agent 的任务消息
type TaskMessage struct {
	TaskID     string `json:"task_id"`
	Command    string `json:"command"`
	Parameters string `json:"parameters,omitempty"`
}

// Topic 构造主题，如 athena/{callback}/task
func Topic(sep, callbackID string, kind Kind) string {
	return strings.Join([]string{TOPIC_PREFIX, callbackID, string(kind)}, sep)
}

// WildcardTopic 构造订阅所有 callback 的主题
// MQTT 使用 '+'，Valkey 使用 '*'
func WildcardTopic(sep string, kind Kind) string {
	wildcard := "+"
	if sep == VALKEY_SEPARATOR {
		wildcard = "*"
	}
	return Topic(sep, wildcard, kind)
}

// ParseTopic 解析主题: athena{sep}{callback}{sep}{kind}
func ParseTopic(sep, topic string) (string, Kind, error) {
	parts := strings.Split(topic, sep)
	if len(parts) != 3 || parts[0] != TOPIC_PREFIX || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	kind := Kind(parts[2])
	switch kind {
	case KIND_TASK, KIND_RESPONSE, KIND_CHECKIN:
		return parts[1], kind, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
}

// Encode 序列化消息
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return data, nil
}

// DecodeTask 解析任务消息
func DecodeTask(payload []byte) (TaskMessage, error) {
	var msg TaskMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.TaskID == "" || msg.Command == "" {
		return msg, fmt.Errorf("%w: missing task id or command", ErrInvalidMessage)
	}
	return msg, nil
}
