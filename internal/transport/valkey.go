package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/model"
)

const (
	minRetryDelay          = 100 * time.Millisecond
	maxRetryDelay          = 30 * time.Second
	valkeySubscribeTimeout = 30 * time.Second
)

// NewValkeyClient 创建 valkey 客户端
func NewValkeyClient(address string, options ...valkey.ClientOption) (valkey.Client, error) {
	var clientOption valkey.ClientOption
	if len(options) > 0 {
		clientOption = options[0]
	}
	if len(clientOption.InitAddress) == 0 {
		clientOption.InitAddress = []string{address}
	}

	return valkey.NewClient(clientOption)
}

// subscriptionHook 收到首个订阅确认时关闭 ready
func subscriptionHook(ready chan struct{}) func(valkey.PubSubSubscription) {
	var once sync.Once
	return func(sub valkey.PubSubSubscription) {
		if sub.Kind == "subscribe" || sub.Kind == "psubscribe" {
			once.Do(func() { close(ready) })
		}
	}
}

// waitSubscribed 等待订阅生效
func waitSubscribed(ctx context.Context, ready <-chan struct{}, timeout time.Duration) error {
	select {
	case <-ready:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: valkey subscription timeout", ErrSubscribeFailed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// receiveLoop 阻塞接收订阅消息，断线后按指数退避重连，直到 ctx 取消
// 每次订阅成功后回调 onSubscribed
func receiveLoop(ctx context.Context, client valkey.Client, subscribe valkey.Completed, handle func(valkey.PubSubMessage), onSubscribed func(valkey.PubSubSubscription), logger *zap.Logger) {
	retryDelay := minRetryDelay
	if onSubscribed != nil {
		ctx = valkey.WithOnSubscriptionHook(ctx, onSubscribed)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		err := client.Receive(ctx, subscribe, handle)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			logger.Warn("valkey subscription lost", zap.Error(err), zap.Duration("retry_in", retryDelay))
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
			retryDelay *= 2
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
			continue
		}

		retryDelay = minRetryDelay
		select {
		case <-time.After(minRetryDelay):
		case <-ctx.Done():
			return
		}
	}
}

// publishValkey 序列化并发布消息
func publishValkey(ctx context.Context, client valkey.Client, channel string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}

	cmd := client.B().Publish().Channel(channel).Message(string(data)).Build()
	if err := client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return nil
}

// ValkeyServerTransport 服务端 valkey pub/sub 传输层
type ValkeyServerTransport struct {
	client     valkey.Client
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	connected  bool
	subscribed bool
	inbox      *inbox
	done       chan struct{}
	once       sync.Once
	options    Options
}

// NewValkeyServerTransport 创建服务端 valkey 传输层
func NewValkeyServerTransport(client valkey.Client, logger *zap.Logger, opts ...Option) *ValkeyServerTransport {
	ctx, cancel := context.WithCancel(context.Background())
	options := applyOptions(opts)

	return &ValkeyServerTransport{
		client:    client,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		connected: true,
		inbox:     newInbox(options.MsgBufferSize),
		done:      make(chan struct{}),
		options:   options,
	}
}

// Subscribe 订阅所有 callback 的结果与心跳频道，等待订阅生效后返回
func (v *ValkeyServerTransport) Subscribe(ctx context.Context) error {
	v.mu.Lock()

	if !v.connected {
		v.mu.Unlock()
		return ErrTransportNotConnected
	}
	if v.subscribed {
		v.mu.Unlock()
		return nil
	}

	subscriber := v.client.B().Psubscribe().Pattern(
		WildcardTopic(VALKEY_SEPARATOR, KIND_RESPONSE),
		WildcardTopic(VALKEY_SEPARATOR, KIND_CHECKIN),
	).Build()

	ready := make(chan struct{})
	go func() {
		defer close(v.done)
		defer v.inbox.close()
		receiveLoop(v.ctx, v.client, subscriber, v.handleMessage, subscriptionHook(ready), v.logger)
	}()

	v.subscribed = true
	v.mu.Unlock()

	if err := waitSubscribed(ctx, ready, valkeySubscribeTimeout); err != nil {
		return err
	}

	v.logger.Info("valkey subscription started")
	return nil
}

// handleMessage 处理订阅消息
func (v *ValkeyServerTransport) handleMessage(msg valkey.PubSubMessage) {
	callbackID, kind, err := ParseTopic(VALKEY_SEPARATOR, msg.Channel)
	if err != nil {
		v.options.OnError(msg.Channel, err)
		v.logger.Warn("invalid channel format", zap.String("channel", msg.Channel))
		return
	}

	if !v.inbox.push(Inbound{CallbackID: callbackID, Kind: kind, Payload: []byte(msg.Message)}) {
		v.logger.Warn("inbound message dropped", zap.String("channel", msg.Channel))
	}
}

// PublishTask 向 callback 下发任务
func (v *ValkeyServerTransport) PublishTask(ctx context.Context, callbackID string, msg TaskMessage) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.connected {
		return ErrTransportNotConnected
	}

	return publishValkey(ctx, v.client, Topic(VALKEY_SEPARATOR, callbackID, KIND_TASK), msg)
}

func (v *ValkeyServerTransport) Messages() <-chan Inbound {
	return v.inbox.ch
}

// Close 停止订阅并关闭客户端
func (v *ValkeyServerTransport) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.connected {
		return nil
	}

	v.once.Do(func() {
		v.cancel()
		v.client.Close()
		if v.subscribed {
			<-v.done
		} else {
			v.inbox.close()
		}
		v.connected = false
	})

	return nil
}

func (v *ValkeyServerTransport) IsConnected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

// ValkeyAgentTransport agent 端 valkey 传输层
type ValkeyAgentTransport struct {
	client     valkey.Client
	callbackID string
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
}

// NewValkeyAgentTransport 创建 agent 端 valkey 传输层
func NewValkeyAgentTransport(client valkey.Client, callbackID string, logger *zap.Logger) *ValkeyAgentTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &ValkeyAgentTransport{
		client:     client,
		callbackID: callbackID,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Subscribe 订阅本 callback 的任务频道，订阅生效后返回
func (v *ValkeyAgentTransport) Subscribe(ctx context.Context, onTask func([]byte)) error {
	channel := Topic(VALKEY_SEPARATOR, v.callbackID, KIND_TASK)
	subscriber := v.client.B().Subscribe().Channel(channel).Build()

	ready := make(chan struct{})
	go receiveLoop(v.ctx, v.client, subscriber, func(msg valkey.PubSubMessage) {
		if msg.Channel != channel {
			return
		}
		go onTask([]byte(msg.Message))
	}, subscriptionHook(ready), v.logger)

	if err := waitSubscribed(ctx, ready, valkeySubscribeTimeout); err != nil {
		return err
	}

	v.logger.Info("subscribed to task channel", zap.String("channel", channel))
	return nil
}

// PublishResponse 上报任务结果
func (v *ValkeyAgentTransport) PublishResponse(ctx context.Context, resp model.AgentResponse) error {
	return publishValkey(ctx, v.client, Topic(VALKEY_SEPARATOR, v.callbackID, KIND_RESPONSE), resp)
}

// PublishCheckin 上报心跳
func (v *ValkeyAgentTransport) PublishCheckin(ctx context.Context, checkin model.Checkin) error {
	return publishValkey(ctx, v.client, Topic(VALKEY_SEPARATOR, v.callbackID, KIND_CHECKIN), checkin)
}

// Close 停止订阅并关闭客户端
func (v *ValkeyAgentTransport) Close() error {
	v.once.Do(func() {
		v.cancel()
		v.client.Close()
	})
	return nil
}
