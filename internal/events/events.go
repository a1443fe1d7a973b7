// Package events publishes graph-update notifications over RabbitMQ so
// interested consumers (frontends, analytics) can react to new nodes and
// edges without polling. Publishing is best effort and never blocks or
// fails the pipeline.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"

	"github.com/mindloom/backend/internal/util"
	"github.com/mindloom/backend/pkg/logger"
)

const exchange = "pubsub_exchange"

// GraphUpdated is the payload published after a chat message has been
// folded into a user's graph. EventID lets consumers deduplicate
// redeliveries.
type GraphUpdated struct {
	EventID    string    `json:"event_id"`
	UserID     int64     `json:"user_id"`
	ChatID     int64     `json:"chat_id"`
	Nodes      int       `json:"nodes"`
	Edges      int       `json:"edges"`
	References int       `json:"references"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher writes notifications to a topic exchange. A nil Publisher is
// valid and publishes nothing, so the broker stays optional.
type Publisher struct {
	ch *amqp091.Channel
}

// Connect dials RabbitMQ using the RABBITMQ_* environment variables and
// declares the notification exchange. Returns the connection for shutdown
// alongside the Publisher.
func Connect() (*amqp091.Connection, *Publisher, error) {
	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		util.GetEnv("RABBITMQ_USER"),
		util.GetEnv("RABBITMQ_PASSWORD"),
		util.GetEnv("RABBITMQ_HOST"),
		util.GetEnv("RABBITMQ_PORT"),
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		false, // durable
		true,  // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return conn, &Publisher{ch: ch}, nil
}

// GraphUpdated satisfies the processing pipeline's notifier hook.
func (p *Publisher) GraphUpdated(userID int64, chatID int64, nodes int, edges int, references int) {
	p.PublishGraphUpdated(GraphUpdated{
		UserID:     userID,
		ChatID:     chatID,
		Nodes:      nodes,
		Edges:      edges,
		References: references,
	})
}

// PublishGraphUpdated emits one graph.updated.<user-id> event. Failures are
// logged and swallowed.
func (p *Publisher) PublishGraphUpdated(event GraphUpdated) {
	if p == nil || p.ch == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if event.EventID == "" {
		event.EventID = gonanoid.Must()
	}

	body, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to marshal graph update event", "err", err)
		return
	}

	topic := fmt.Sprintf("graph.updated.%d", event.UserID)
	err = p.ch.Publish(
		exchange,
		topic,
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		logger.Error("failed to publish graph update event", "topic", topic, "err", err)
	}
}
