package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/model"
)

const (
	mqttConnectTimeout = 30 * time.Second
	mqttQuiesce        = 250
)

// newMQTTClient 创建 MQTT 客户端，连接成功后执行 onConnect
func newMQTTClient(broker, clientID string, onConnect mqtt.OnConnectHandler, logger *zap.Logger) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetOnConnectHandler(onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	return mqtt.NewClient(opts)
}

// connectMQTT 连接 Broker 并等待订阅完成
func connectMQTT(ctx context.Context, client mqtt.Client, ready <-chan bool, timeout time.Duration) error {
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	select {
	case <-ready:
		return nil
	case <-time.After(timeout):
		client.Disconnect(mqttQuiesce)
		return fmt.Errorf("%w: MQTT subscription timeout", ErrSubscribeFailed)
	case <-ctx.Done():
		client.Disconnect(mqttQuiesce)
		return ctx.Err()
	}
}

// publishMQTT 序列化并发布消息
func publishMQTT(client mqtt.Client, topic string, qos byte, v any) error {
	if client == nil || !client.IsConnected() {
		return ErrTransportNotConnected
	}

	payload, err := Encode(v)
	if err != nil {
		return err
	}

	token := client.Publish(topic, qos, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, token.Error())
	}
	return nil
}

// MQTTServerTransport 服务端 MQTT 传输层
type MQTTServerTransport struct {
	broker    string
	client    mqtt.Client
	logger    *zap.Logger
	ready     chan bool
	inbox     *inbox
	options   Options
	closeOnce sync.Once
}

// NewMQTTServerTransport 创建服务端 MQTT 传输层
func NewMQTTServerTransport(broker string, logger *zap.Logger, opts ...Option) *MQTTServerTransport {
	options := applyOptions(opts)
	return &MQTTServerTransport{
		broker:  broker,
		logger:  logger,
		ready:   make(chan bool, 1),
		inbox:   newInbox(options.MsgBufferSize),
		options: options,
	}
}

// Subscribe 连接 Broker 并订阅所有 callback 的结果与心跳
func (m *MQTTServerTransport) Subscribe(ctx context.Context) error {
	m.client = newMQTTClient(m.broker, "athena-server", m.onConnect, m.logger)
	if err := connectMQTT(ctx, m.client, m.ready, mqttConnectTimeout); err != nil {
		return err
	}

	m.logger.Info("MQTT client connected", zap.String("broker", m.broker))
	return nil
}

// onConnect 连接成功回调，重连后重新订阅
func (m *MQTTServerTransport) onConnect(client mqtt.Client) {
	filters := map[string]byte{
		WildcardTopic(MQTT_SEPARATOR, KIND_RESPONSE): 1,
		WildcardTopic(MQTT_SEPARATOR, KIND_CHECKIN):  0,
	}

	if token := client.SubscribeMultiple(filters, m.onMessage); token.Wait() && token.Error() != nil {
		m.logger.Error("failed to subscribe to agent topics", zap.Error(token.Error()))
		return
	}

	m.logger.Info("subscribed to agent topics", zap.Int("topics", len(filters)))

	select {
	case m.ready <- true:
	default:
	}
}

// onMessage 处理 agent 消息
func (m *MQTTServerTransport) onMessage(client mqtt.Client, msg mqtt.Message) {
	m.logger.Debug("received MQTT message",
		zap.String("topic", msg.Topic()),
		zap.Int("size", len(msg.Payload())),
	)

	callbackID, kind, err := ParseTopic(MQTT_SEPARATOR, msg.Topic())
	if err != nil {
		m.options.OnError(msg.Topic(), err)
		m.logger.Warn("invalid topic format", zap.String("topic", msg.Topic()))
		return
	}

	if !m.inbox.push(Inbound{CallbackID: callbackID, Kind: kind, Payload: msg.Payload()}) {
		m.logger.Warn("inbound message dropped", zap.String("topic", msg.Topic()))
	}
}

// PublishTask 向 callback 下发任务
func (m *MQTTServerTransport) PublishTask(ctx context.Context, callbackID string, msg TaskMessage) error {
	topic := Topic(MQTT_SEPARATOR, callbackID, KIND_TASK)
	if err := publishMQTT(m.client, topic, 1, msg); err != nil {
		return err
	}

	m.logger.Debug("task published",
		zap.String("topic", topic),
		zap.String("task_id", msg.TaskID),
		zap.String("command", msg.Command),
	)
	return nil
}

func (m *MQTTServerTransport) Messages() <-chan Inbound {
	return m.inbox.ch
}

// Close 断开连接
func (m *MQTTServerTransport) Close() error {
	m.closeOnce.Do(func() {
		if m.client != nil && m.client.IsConnected() {
			m.logger.Info("disconnecting MQTT client")
			m.client.Disconnect(mqttQuiesce)
		}
		m.inbox.close()
	})
	return nil
}

func (m *MQTTServerTransport) IsConnected() bool {
	return m.client != nil && m.client.IsConnected()
}

// MQTTAgentTransport agent 端 MQTT 传输层
type MQTTAgentTransport struct {
	broker     string
	callbackID string
	client     mqtt.Client
	logger     *zap.Logger
	ready      chan bool
	onTask     func([]byte)
}

// NewMQTTAgentTransport 创建 agent 端 MQTT 传输层
func NewMQTTAgentTransport(broker, callbackID string, logger *zap.Logger) *MQTTAgentTransport {
	return &MQTTAgentTransport{
		broker:     broker,
		callbackID: callbackID,
		logger:     logger,
		ready:      make(chan bool, 1),
	}
}

// Subscribe 连接 Broker 并订阅任务主题
func (m *MQTTAgentTransport) Subscribe(ctx context.Context, onTask func([]byte)) error {
	m.onTask = onTask
	m.client = newMQTTClient(m.broker, fmt.Sprintf("athena-agent-%s", m.callbackID), m.onConnect, m.logger)
	if err := connectMQTT(ctx, m.client, m.ready, mqttConnectTimeout); err != nil {
		return err
	}

	m.logger.Info("MQTT client connected", zap.String("broker", m.broker))
	return nil
}

// onConnect 连接成功回调
func (m *MQTTAgentTransport) onConnect(client mqtt.Client) {
	topic := Topic(MQTT_SEPARATOR, m.callbackID, KIND_TASK)
	if token := client.Subscribe(topic, 1, m.onTaskMessage); token.Wait() && token.Error() != nil {
		m.logger.Error("failed to subscribe to task topic", zap.Error(token.Error()))
		return
	}

	m.logger.Info("subscribed to task topic", zap.String("topic", topic))

	select {
	case m.ready <- true:
	default:
	}
}

// onTaskMessage 处理任务消息
func (m *MQTTAgentTransport) onTaskMessage(client mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()

	m.logger.Debug("received task message",
		zap.String("topic", msg.Topic()),
		zap.String("payload", string(payload)),
	)

	if m.onTask != nil {
		go m.onTask(payload)
	}
}

// PublishResponse 上报任务结果
func (m *MQTTAgentTransport) PublishResponse(ctx context.Context, resp model.AgentResponse) error {
	return publishMQTT(m.client, Topic(MQTT_SEPARATOR, m.callbackID, KIND_RESPONSE), 1, resp)
}

// PublishCheckin 上报心跳
func (m *MQTTAgentTransport) PublishCheckin(ctx context.Context, checkin model.Checkin) error {
	return publishMQTT(m.client, Topic(MQTT_SEPARATOR, m.callbackID, KIND_CHECKIN), 0, checkin)
}

// Close 断开连接
func (m *MQTTAgentTransport) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.logger.Info("disconnecting MQTT client")
		m.client.Disconnect(mqttQuiesce)
	}
	return nil
}
