// Package events fans token lifecycle events out to the surfaces that cache
// board views: the in-process WebSocket hub always, and a RabbitMQ exchange
// for external consumers (kitchen displays, analytics) when configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/antriq/api/internal/ws"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName = "antriq.tokens"

	TokenCreated = "token.created"
	TokenStatus  = "token.status_changed"
	TokenSettled = "token.settled"
	DayClosed    = "day.closed"
)

// Publisher publishes token lifecycle events to a topic exchange.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials RabbitMQ and declares the token exchange.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch}, nil
}

// Publish sends one event; the routing key is the event type.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.ch.PublishWithContext(ctx, exchangeName, eventType, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Fanout is the notification collaborator handed to HTTP handlers: after a
// token mutation it pushes the event to the shop's board watchers and, when a
// broker is configured, to external consumers. Best-effort on the broker
// side: a publish failure is logged, never surfaced to the request.
type Fanout struct {
	hub *ws.Hub
	pub *Publisher
}

// NewFanout creates a Fanout. pub may be nil when no broker is configured.
func NewFanout(hub *ws.Hub, pub *Publisher) *Fanout {
	return &Fanout{hub: hub, pub: pub}
}

type envelope struct {
	ShopID  uuid.UUID `json:"shop_id"`
	Payload any       `json:"payload"`
}

// Notify pushes one event to the shop's board watchers and the broker.
func (f *Fanout) Notify(shopID uuid.UUID, eventType string, payload any) {
	if f == nil {
		return
	}

	if f.hub != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Printf("ERROR: marshal %s payload: %v", eventType, err)
			return
		}
		f.hub.BroadcastToShop(shopID, ws.Event{Type: eventType, Payload: raw})
	}

	if f.pub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.pub.Publish(ctx, eventType, envelope{ShopID: shopID, Payload: payload}); err != nil {
			log.Printf("ERROR: publish %s: %v", eventType, err)
		}
	}
}
