package broker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Envelope is a received message as handed to a filter stage. It is built
// once in the transport callback and never modified.
type Envelope struct {
	Subject    string
	Key        []byte
	Payload    []byte
	Headers    []kafka.Header
	ReceivedAt time.Time
	Partition  int
	Offset     int64
}

// Publisher sends payloads to one destination. Publish may queue; Close
// flushes whatever is queued before returning.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}

// Subscriber joins a load-sharing consumer group and feeds every message to
// handler until ctx is cancelled or the handler reports that its target has
// shut down.
type Subscriber interface {
	SubscribeGroup(ctx context.Context, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, env Envelope) error
