package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/EmanuelC1601/back-end/internal/queue"
)

// Publisher emits activity events.  Failures are logged and returned so
// callers can ignore them without interrupting the request flow.
type Publisher interface {
	Publish(ctx context.Context, ev queue.ActivityEvent) error
}

// NoopPublisher drops every event.  Used when EVENTS_ENABLED is false.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, queue.ActivityEvent) error { return nil }

// AMQPPublisher publishes events to a durable RabbitMQ queue.  Each call
// dials its own connection; the write rate of this service is low.
type AMQPPublisher struct {
	URL    string
	Queue  string
	Logger *slog.Logger
}

func NewAMQPPublisher(url, queueName string, logger *slog.Logger) *AMQPPublisher {
	if queueName == "" {
		queueName = queue.DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{URL: url, Queue: queueName, Logger: logger}
}

// Publish marks messages persistent and declares the queue first
// (idempotent).
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.ActivityEvent) error {
	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(3 * time.Second)})
	if err != nil {
		p.Logger.Warn("rabbitmq: dial failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Logger.Warn("rabbitmq: channel open failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		p.Logger.Warn("rabbitmq: queue declare failed", slog.String("error", err.Error()))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		p.Logger.Warn("rabbitmq: publish failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Invalidator drops cached responses of a route group after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, group string)
}

// Cache groups.
const (
	GroupImagenes  = "imagenes"
	GroupRegistros = "registros"
)

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string) {}

// afterWrite publishes ev and invalidates group without failing the
// caller.  It runs on a context detached from the request so a client
// disconnect does not skip it.
func afterWrite(ctx context.Context, log *slog.Logger, events Publisher, cache Invalidator, group string, ev queue.ActivityEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	cache.Invalidate(ctx, group)
	if err := events.Publish(ctx, ev); err != nil {
		log.Warn("activity event not published", slog.String("type", ev.Type), slog.String("error", err.Error()))
	}
}
