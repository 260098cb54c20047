package transport

import (
	"context"

	"github.com/lucheng0127/athena/internal/model"
)

// Inbound agent 发往服务端的消息
type Inbound struct {
	CallbackID string
	Kind       Kind
	Payload    []byte
}

// ServerTransport 服务端传输层：向 agent 下发任务，接收结果和心跳
type ServerTransport interface {
	// Subscribe 连接并开始接收 agent 消息
	Subscribe(ctx context.Context) error

	// PublishTask 向指定 callback 下发任务
	PublishTask(ctx context.Context, callbackID string, msg TaskMessage) error

	// Messages 返回 agent 消息通道，传输层关闭时通道关闭
	Messages() <-chan Inbound

	// Close 关闭传输层并释放资源
	Close() error

	// IsConnected 是否已连接
	IsConnected() bool
}

// AgentTransport agent 端传输层：接收任务，上报结果和心跳
type AgentTransport interface {
	// Subscribe 连接并订阅本 callback 的任务，每条任务在独立 goroutine 中回调
	Subscribe(ctx context.Context, onTask func(payload []byte)) error

	// PublishResponse 上报任务结果
	PublishResponse(ctx context.Context, resp model.AgentResponse) error

	// PublishCheckin 上报心跳
	PublishCheckin(ctx context.Context, checkin model.Checkin) error

	// Close 关闭传输层
	Close() error
}
