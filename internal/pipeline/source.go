package pipeline

import (
	"context"

	"github.com/redis/go-redis/v9"

	"fleet-tracker/internal/logger"
)

// Inbound is one raw message from the inbound transport, keyed by the
// topic it arrived on.
type Inbound struct {
	Topic   string
	Payload []byte
}

// Source abstracts the inbound transport. The pipeline only ever sees
// this channel, so the broker behind it stays an external collaborator.
type Source interface {
	Messages() <-chan Inbound
	Close() error
}

// RedisSource delivers inbound reports from Redis pub/sub. The channel
// name a message was published on becomes its topic, so a pattern
// subscription can carry multiple topics and the normalizer filters to
// the expected one.
type RedisSource struct {
	pubsub *redis.PubSub
	out    chan Inbound
	log    *logger.Logger
}

func NewRedisSource(ctx context.Context, client *redis.Client, pattern string, log *logger.Logger) *RedisSource {
	s := &RedisSource{
		pubsub: client.PSubscribe(ctx, pattern),
		out:    make(chan Inbound, 1024),
		log:    log,
	}
	go s.pump()
	return s
}

func (s *RedisSource) pump() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		s.out <- Inbound{Topic: msg.Channel, Payload: []byte(msg.Payload)}
	}
	s.log.Info("inbound subscription closed")
}

func (s *RedisSource) Messages() <-chan Inbound {
	return s.out
}

func (s *RedisSource) Close() error {
	return s.pubsub.Close()
}

// ChanSource is a Source backed by a plain channel, used by tests and
// anywhere reports originate in-process.
type ChanSource struct {
	C chan Inbound
}

func NewChanSource(buffer int) *ChanSource {
	return &ChanSource{C: make(chan Inbound, buffer)}
}

func (s *ChanSource) Messages() <-chan Inbound { return s.C }

func (s *ChanSource) Close() error {
	close(s.C)
	return nil
}
