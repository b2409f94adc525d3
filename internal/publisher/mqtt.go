package publisher

import (
	"encoding/json"
	"fmt"

	"queuewatch/internal/config"
	"queuewatch/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTPublisher 告警 MQTT 外发端
// 把新产出的人员配置告警以 JSON 发布到配置的主题，供外部值守系统订阅
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

// NewMQTTPublisher 创建并连接 MQTT 外发端
func NewMQTTPublisher(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTPublisher{
		client: client,
		topic:  cfg.Topic,
		logger: logger,
	}, nil
}

// PublishAlert 发布一条告警（QoS 1）
func (p *MQTTPublisher) PublishAlert(alert models.StaffingAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish alert to topic %s: %w", p.topic, token.Error())
	}

	p.logger.Debug("Alert published",
		zap.String("alert_id", alert.AlertID),
		zap.String("topic", p.topic),
	)

	return nil
}

// Disconnect 断开连接
func (p *MQTTPublisher) Disconnect() {
	p.client.Disconnect(250)
}
