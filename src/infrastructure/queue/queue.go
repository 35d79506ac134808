package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	stdamqp "github.com/streadway/amqp"

	"mediaflow/src/infrastructure/job"
)

// PollTopic carries one message per poll attempt
const PollTopic = "generation.poll"

// delayMetadataKey holds the requested delivery delay in milliseconds.
// The marshaler turns it into the broker-level x-delay header.
const delayMetadataKey = "poll-delay-ms"

// delayedMarshaler extends the default marshaler with the x-delay
// header understood by RabbitMQ's delayed-message exchange.
type delayedMarshaler struct {
	amqp.DefaultMarshaler
}

func (m delayedMarshaler) Marshal(msg *message.Message) (stdamqp.Publishing, error) {
	pub, err := m.DefaultMarshaler.Marshal(msg)
	if err != nil {
		return stdamqp.Publishing{}, err
	}

	if v := msg.Metadata.Get(delayMetadataKey); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err == nil && ms > 0 {
			if pub.Headers == nil {
				pub.Headers = stdamqp.Table{}
			}
			pub.Headers["x-delay"] = ms
		}
	}
	return pub, nil
}

// NewConfig builds the AMQP topology for the poll queue: a durable
// queue bound to a durable x-delayed-message exchange. The broker must
// run the rabbitmq-delayed-message-exchange plugin.
func NewConfig(amqpURL string) amqp.Config {
	cfg := amqp.NewDurableQueueConfig(amqpURL)
	cfg.Marshaler = delayedMarshaler{}

	cfg.Exchange.GenerateName = func(topic string) string {
		return topic + ".delayed"
	}
	cfg.Exchange.Type = "x-delayed-message"
	cfg.Exchange.Durable = true
	cfg.Exchange.Arguments = stdamqp.Table{"x-delayed-type": "direct"}

	cfg.QueueBind.GenerateRoutingKey = func(topic string) string {
		return topic
	}
	cfg.Publish.GenerateRoutingKey = func(topic string) string {
		return topic
	}
	return cfg
}

// Scheduler publishes poll attempts to the durable work queue with
// at-least-once delivery.
type Scheduler struct {
	publisher message.Publisher
}

func NewScheduler(publisher message.Publisher) *Scheduler {
	return &Scheduler{publisher: publisher}
}

func (s *Scheduler) SchedulePoll(ctx context.Context, pm job.PollMessage, delay time.Duration) error {
	payload, err := json.Marshal(pm)
	if err != nil {
		return fmt.Errorf("failed to marshal poll message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if delay > 0 {
		msg.Metadata.Set(delayMetadataKey, strconv.FormatInt(delay.Milliseconds(), 10))
	}

	if err := s.publisher.Publish(PollTopic, msg); err != nil {
		return fmt.Errorf("failed to publish poll message: %w", err)
	}
	return nil
}
