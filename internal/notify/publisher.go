// Package notify 提供状态变更事件的对外推送通道
// 事件仅用于下游订阅方（前端余额刷新、运营看板等），
// 引擎自身的正确性不依赖事件送达
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dumeirei/affiliate-engine-backend/internal/common/config"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/logger"
	"github.com/dumeirei/affiliate-engine-backend/internal/common/metrics"
)

// 事件主题
const (
	TopicConversionCreated = "conversion/created"
	TopicCommissionCreated = "commission/created"
	TopicCommissionSettled = "commission/settled"
	TopicWithdrawalChanged = "withdrawal/status_changed"
	TopicAffiliateChanged  = "affiliate/status_changed"
)

// Event 状态变更事件
type Event struct {
	AffiliateID int64           `json:"affiliate_id"`
	Type        string          `json:"type"`
	Timestamp   int64           `json:"timestamp"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Publisher 事件发布器
type Publisher struct {
	client      mqtt.Client
	qos         byte
	topicPrefix string
	enabled     bool
}

// NewPublisher 创建事件发布器
// cfg.Enabled 为 false 时返回空发布器，所有 Publish 调用为 no-op
func NewPublisher(cfg *config.MQTTConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientIDPrefix + uuid.NewString()[:8])
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(time.Duration(cfg.KeepAlive) * time.Second)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("事件通道连接断开", logger.Err(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect event broker: %w", token.Error())
	}

	logger.Info("事件通道已连接", logger.String("broker", cfg.Broker))
	return &Publisher{
		client:      client,
		qos:         cfg.QoS,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

// Publish 发布事件，尽力而为：失败仅记录日志，不向调用方传播
func (p *Publisher) Publish(topic string, affiliateID int64, data interface{}) {
	if p == nil || !p.enabled {
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		logger.Warn("事件序列化失败", logger.String("topic", topic), logger.Err(err))
		return
	}

	event := Event{
		AffiliateID: affiliateID,
		Type:        topic,
		Timestamp:   time.Now().Unix(),
		Data:        raw,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Warn("事件序列化失败", logger.String("topic", topic), logger.Err(err))
		return
	}

	fullTopic := p.topicPrefix + topic
	token := p.client.Publish(fullTopic, p.qos, false, payload)
	if token.Wait() && token.Error() != nil {
		logger.Warn("事件发布失败",
			logger.String("topic", fullTopic),
			logger.AffiliateID(affiliateID),
			logger.Err(token.Error()))
		metrics.GetMetrics().RecordEventMessage(topic, "error")
		return
	}
	metrics.GetMetrics().RecordEventMessage(topic, "ok")
}

// Close 关闭事件通道
func (p *Publisher) Close() {
	if p == nil || !p.enabled || p.client == nil {
		return
	}
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
