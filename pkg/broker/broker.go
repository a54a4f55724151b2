package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"cfa-planning/config"
)

// Publisher 领域事件发布接口
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event interface{}) error
	Close() error
}

// AMQPPublisher 基于 RabbitMQ topic exchange 的发布者
// 连接断开后下一次发布时重连
type AMQPPublisher struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewAMQPPublisher 建立连接并声明持久化 topic exchange
func NewAMQPPublisher(cfg *config.BrokerConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: cfg.URL, exchange: cfg.Exchange, logger: logger}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.connect(); err != nil {
		return nil, err
	}

	logger.Info("RabbitMQ 连接成功", zap.String("exchange", cfg.Exchange))
	return p, nil
}

func (p *AMQPPublisher) connect() (*amqp.Connection, error) {
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQ 连接失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("打开 RabbitMQ channel 失败: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("声明 exchange %s 失败: %w", p.exchange, err)
	}

	p.conn = conn
	return conn, nil
}

// Publish 以 JSON 持久化消息发布事件
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connect()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("打开 RabbitMQ channel 失败: %w", err)
	}
	defer func() { _ = ch.Close() }()

	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Close 关闭连接
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

// NopPublisher 未配置 broker 时使用，丢弃所有事件
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NopPublisher) Close() error                                       { return nil }
