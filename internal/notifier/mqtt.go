package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MP2EZ/being-sub014/internal/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTOptions MQTT 下游连接参数
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// MQTTNotifier 把危机信号发布到 MQTT,移动端推送网关从这里订阅
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewMQTTNotifier 创建并连接 MQTT 下游
func NewMQTTNotifier(opts MQTTOptions, logger *zap.Logger) (*MQTTNotifier, error) {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(opts.ClientID)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	clientOpts.SetAutoReconnect(true)
	clientOpts.SetCleanSession(true)

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTNotifier{
		client: client,
		topic:  opts.Topic,
		qos:    opts.QoS,
		logger: logger,
	}, nil
}

var _ CrisisNotifier = (*MQTTNotifier)(nil)

func (m *MQTTNotifier) Notify(_ context.Context, signal *domain.CrisisSignal) error {
	payload, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal crisis signal: %w", err)
	}

	token := m.client.Publish(m.topic, m.qos, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", m.topic, token.Error())
	}

	m.logger.Info("crisis signal published to mqtt",
		zap.String("topic", m.topic),
		zap.String("signal_id", signal.SignalID),
		zap.String("reason", string(signal.Reason)),
	)
	return nil
}

// Close 断开 MQTT 连接
func (m *MQTTNotifier) Close() {
	m.client.Disconnect(250) // 250ms 等待时间
}
