package sink

import (
	"context"
	"encoding/json"
	"strings"

	"hark/apps/backend/internal/pipeline"
)

const KindQueue = "queue"

func init() { register[QueueConfig](KindQueue) }

type QueueConfig struct {
	Type        string         `json:"type"`
	Topic       string         `json:"topic"`
	BasePayload map[string]any `json:"base_payload,omitempty"`
}

func (c *QueueConfig) Kind() string { return KindQueue }

func (c *QueueConfig) Validate() error {
	if strings.TrimSpace(c.Topic) == "" {
		return pipeline.MissingField(KindQueue, "topic")
	}
	return nil
}

// Publisher is satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Queue publishes one message per record to an NSQ topic.
type Queue struct {
	publisher Publisher
}

func NewQueue(p Publisher) *Queue {
	return &Queue{publisher: p}
}

func (q *Queue) Kind() string { return KindQueue }

func (q *Queue) Send(ctx context.Context, records []pipeline.Record, cfg Config) ([]DeliveryResult, error) {
	c, err := configFor[QueueConfig](KindQueue, cfg)
	if err != nil {
		return nil, err
	}
	conv := DefaultConvertor{BasePayload: c.BasePayload}

	return deliverEach(ctx, KindQueue, records, func(_ context.Context, r pipeline.Record) (Status, error) {
		payload, err := conv.Convert(r)
		if err != nil {
			return "", err
		}
		payload["key"] = r.Key()
		body, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		if err := q.publisher.Publish(c.Topic, body); err != nil {
			return "", pipeline.Unavailable(KindQueue, err)
		}
		return StatusDelivered, nil
	})
}
