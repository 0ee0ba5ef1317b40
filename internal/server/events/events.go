// Package events publishes account lifecycle events. Payloads never carry
// secrets: only ids, addresses and timestamps.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TopicAccountCreated = "multiply.account.created"
	TopicSessionRotated = "multiply.session.rotated"
	TopicSessionRevoked = "multiply.session.revoked"
)

type Event struct {
	AccountID string    `json:"account_id"`
	Address   string    `json:"address,omitempty"`
	TokenID   string    `json:"token_id,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, topic string, e Event) error
}

// WatermillPublisher sends events as JSON messages on a watermill publisher.
type WatermillPublisher struct {
	publisher message.Publisher
}

func NewWatermillPublisher(p message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: p}
}

func (p *WatermillPublisher) Publish(ctx context.Context, topic string, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *WatermillPublisher) Close() error { return p.publisher.Close() }

// NewGoChannel is the in-process pub/sub used when no Redis is configured.
// The returned value is both publisher and subscriber.
func NewGoChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewStdLogger(false, false))
}

// NewRedisStreamPublisher publishes to Redis streams named after the topics.
func NewRedisStreamPublisher(client redis.UniversalClient) (message.Publisher, error) {
	return redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: client},
		watermill.NewStdLogger(false, false),
	)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, Event) error { return nil }

// Nop drops every event.
func Nop() Publisher { return nopPublisher{} }
