package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/streadway/amqp"
)

const exchange = "analysis_updates"

// Update is the message fanned out to realtime subscribers whenever an
// analysis changes status.
type Update struct {
	AnalysisID   string    `json:"analysis_id"`
	ResumeID     string    `json:"resume_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	GoogleDocURL string    `json:"google_doc_url,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type Publisher struct {
	conn *amqp.Connection
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

func (p *Publisher) PublishUpdate(update Update) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	routingKey := fmt.Sprintf("analysis.%s", update.AnalysisID)

	return ch.Publish(exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}

// Consume binds an exclusive queue to the update exchange and delivers each
// decoded update to fn until ctx is cancelled.
func Consume(ctx context.Context, url string, fn func(Update)) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "analysis.#", exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("broker channel closed")
			}
			var update Update
			if err := json.Unmarshal(msg.Body, &update); err != nil {
				log.Printf("broker decode error: %v", err)
				continue
			}
			fn(update)
		}
	}
}
