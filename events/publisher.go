package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"shop-scraper/models"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeySearchCompleted = "search.completed"
	exchangeType              = "topic"
)

// SearchCompletedEvent is the body of a search.completed message.
type SearchCompletedEvent struct {
	ID         string            `json:"id"`
	Keyword    string            `json:"keyword"`
	Status     string            `json:"status"`
	ItemCount  int               `json:"itemCount"`
	PerSource  map[string]int    `json:"perSource"`
	Errors     map[string]string `json:"errors,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}

func NewSearchCompletedEvent(id string, result models.SearchResult) SearchCompletedEvent {
	perSource := make(map[string]int, len(result.PerSource))
	for source, n := range result.PerSource {
		perSource[source] = n
	}
	event := SearchCompletedEvent{
		ID:         id,
		Keyword:    result.Keyword,
		Status:     string(result.Status),
		ItemCount:  len(result.Items),
		PerSource:  perSource,
		StartedAt:  result.StartedAt.UTC(),
		FinishedAt: result.FinishedAt.UTC(),
	}
	if len(result.Errors) > 0 {
		event.Errors = result.ErrorManifest()
	}
	return event
}

// Publisher announces finished searches on a durable topic exchange.
type Publisher struct {
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("publisher: exchange name is required")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("publisher: failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("publisher: failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		exchangeType,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("publisher: failed to declare exchange '%s': %w", exchange, err)
	}

	return &Publisher{exchange: exchange, conn: conn, ch: ch}, nil
}

func (p *Publisher) SearchCompleted(ctx context.Context, id string, result models.SearchResult) error {
	msg, err := newPublishing(NewSearchCompletedEvent(id, result))
	if err != nil {
		return err
	}
	return p.Publish(ctx, RoutingKeySearchCompleted, msg)
}

// Publish sends msg to the exchange. An amqp.Channel is not safe for
// concurrent publishing, so calls are serialized.
func (p *Publisher) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.conn == nil || p.conn.IsClosed() {
		return errors.New("publisher: not connected or channel/connection is closed")
	}

	err := p.ch.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("publisher: failed to publish message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			firstErr = fmt.Errorf("publisher: failed to close channel: %w", err)
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) && firstErr == nil {
			firstErr = fmt.Errorf("publisher: failed to close connection: %w", err)
		}
		p.conn = nil
	}
	return firstErr
}

func newPublishing(event SearchCompletedEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("publisher: failed to encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.FinishedAt,
		Type:         RoutingKeySearchCompleted,
		Body:         body,
	}, nil
}
