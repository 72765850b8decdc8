package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"rentals/server/internal/logging"
)

// Routing keys of the domain events
const (
	PropertyCreated     = "property.created"
	PropertyUpdated     = "property.updated"
	PropertyDeleted     = "property.deleted"
	BookingCreated      = "booking.created"
	BookingStatusChange = "booking.status_changed"
	OwnerApproved       = "owner.approved"
	OwnerRejected       = "owner.rejected"
)

const reconnectDelay = 5 * time.Second

// Publisher emits domain events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

// Envelope is the JSON body of every published event
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

func encode(routingKey string, payload interface{}) (Envelope, []byte, error) {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       routingKey,
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return env, nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return env, body, nil
}

type RabbitMQPublisher struct {
	url      string
	exchange string
	logger   *logrus.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  chan struct{}
	once    sync.Once
}

// NewRabbitMQPublisher connects and declares a durable topic exchange
func NewRabbitMQPublisher(url, exchange string, logger *logrus.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = logging.Default()
	}

	p := &RabbitMQPublisher{
		url:      url,
		exchange: exchange,
		logger:   logger,
		closed:   make(chan struct{}),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}

	go p.handleReconnect()

	logger.WithField("exchange", exchange).Info("RabbitMQ publisher initialized")
	return p, nil
}

func (p *RabbitMQPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = channel
	p.mu.Unlock()
	return nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	env, body, err := encode(routingKey, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.RLock()
	channel := p.channel
	p.mu.RUnlock()

	err = channel.PublishWithContext(
		ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    env.OccurredAt,
			MessageId:    env.ID,
			Type:         routingKey,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	p.logger.WithFields(logrus.Fields{
		"routing_key": routingKey,
		"event_id":    env.ID,
		"body_size":   len(body),
	}).Debug("Event published")
	return nil
}

func (p *RabbitMQPublisher) handleReconnect() {
	for {
		p.mu.RLock()
		notify := p.conn.NotifyClose(make(chan *amqp.Error, 1))
		p.mu.RUnlock()

		select {
		case <-p.closed:
			return
		case closeErr, ok := <-notify:
			if !ok || closeErr == nil {
				return
			}
			p.logger.WithError(closeErr).Error("RabbitMQ connection closed, reconnecting")
		}

		for {
			select {
			case <-p.closed:
				return
			case <-time.After(reconnectDelay):
			}

			if err := p.connect(); err != nil {
				p.logger.WithError(err).Error("Failed to reconnect to RabbitMQ")
				continue
			}
			p.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

func (p *RabbitMQPublisher) Close() error {
	p.once.Do(func() { close(p.closed) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.WithError(err).Warn("Failed to close RabbitMQ channel")
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
		}
	}
	return nil
}

// Noop discards events when no broker is configured
type Noop struct{}

func (Noop) Publish(context.Context, string, interface{}) error { return nil }
func (Noop) Close() error { return nil }
