// Package events carries supervisor notifications and call lifecycle events
// over Watermill, either in-process or on Redis Streams.
package events

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	TopicSupervisor = "callgpt.supervisor"
	TopicCalls      = "callgpt.calls"
)

type RedisSettings struct {
	Enabled  bool
	Addr     string
	Group    string
	Consumer string
}

// Bus bundles a publisher, a subscriber, and the router that runs handlers.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	redis      *redis.Client
	shared     bool
}

// NewBus returns an in-memory bus, or a Redis Streams bus when s.Enabled.
func NewBus(s RedisSettings, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "create router")
	}

	if !s.Enabled {
		ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Bus{Publisher: ps, Subscriber: ps, router: router, shared: true}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis subscriber")
	}
	log.Info().Str("component", "events").Str("addr", s.Addr).Str("group", s.Group).Msg("using redis streams bus")
	return &Bus{Publisher: pub, Subscriber: sub, router: router, redis: client}, nil
}

// Handle registers a consumer for topic. Must be called before Run.
func (b *Bus) Handle(name, topic string, h message.NoPublishHandlerFunc) {
	b.router.AddNoPublisherHandler(name, topic, b.Subscriber, h)
}

// EnsureGroupsAtTail creates the consumer group on each topic's stream at $
// so a fresh group does not replay history. It is a no-op for the in-memory bus.
func (b *Bus) EnsureGroupsAtTail(ctx context.Context, group string, topics ...string) error {
	if b.redis == nil {
		return nil
	}
	for _, topic := range topics {
		err := b.redis.XGroupCreateMkStream(ctx, topic, group, "$").Err()
		if err != nil {
			if strings.Contains(err.Error(), "BUSYGROUP") {
				continue
			}
			return errors.Wrapf(err, "create consumer group on %s", topic)
		}
		log.Info().Str("component", "events").Str("stream", topic).Str("group", group).Msg("created redis consumer group at tail")
	}
	return nil
}

func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once handlers are subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

func (b *Bus) Close() error {
	var errs []string
	if err := b.router.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := b.Publisher.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if !b.shared {
		if err := b.Subscriber.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close bus: %s", strings.Join(errs, "; "))
	}
	return nil
}
