package broker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/config"
	"filterchain/internal/logger"
)

type fakeWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	calls   int
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) Written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.written...)
}

func testPool(t *testing.T, cfg config.PublisherConfig) (*PublisherPool, []*fakeWriter) {
	t.Helper()
	var writers []*fakeWriter
	pool := newPublisherPool("test", cfg, func(config.PublisherConfig) messageWriter {
		w := &fakeWriter{}
		writers = append(writers, w)
		return w
	}, logger.NopLogger())
	return pool, writers
}

func TestPublisherPool_RoundRobinAndFlushOnClose(t *testing.T) {
	pool, writers := testPool(t, config.PublisherConfig{Topic: "result", Num: 3, QueueSize: 10, BatchSize: 5})
	require.Len(t, writers, 3)
	require.NoError(t, pool.Start())

	for i := 0; i < 9; i++ {
		require.NoError(t, pool.Publish(context.Background(), "k", []byte{byte(i)}))
	}
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	total := 0
	for _, w := range writers {
		msgs := w.Written()
		assert.Len(t, msgs, 3)
		for _, m := range msgs {
			assert.Equal(t, "result", m.Topic)
			assert.Equal(t, []byte("k"), m.Key)
		}
		assert.True(t, w.closed)
		total += len(msgs)
	}
	assert.Equal(t, 9, total)
	assert.Equal(t, "result", pool.Topic())
}

func TestPublisherPool_PublishAfterClose(t *testing.T) {
	pool, _ := testPool(t, config.PublisherConfig{Topic: "next", Num: 1, QueueSize: 4})
	require.NoError(t, pool.Start())
	require.NoError(t, pool.Close())

	err := pool.Publish(context.Background(), "k", []byte("x"))
	assert.ErrorIs(t, err, ErrPublisherClosed)
}

type blockingWriter struct {
	fakeWriter
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *blockingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.once.Do(func() { close(w.entered) })
	<-w.release
	return w.fakeWriter.WriteMessages(ctx, msgs...)
}

func TestPublisherPool_QueueFull(t *testing.T) {
	w := &blockingWriter{entered: make(chan struct{}), release: make(chan struct{})}
	pool := newPublisherPool("test", config.PublisherConfig{Topic: "next", Num: 1, QueueSize: 1},
		func(config.PublisherConfig) messageWriter { return w }, logger.NopLogger())
	require.NoError(t, pool.Start())

	ctx := context.Background()
	require.NoError(t, pool.Publish(ctx, "k", []byte("1")))
	<-w.entered
	require.NoError(t, pool.Publish(ctx, "k", []byte("2")))

	err := pool.Publish(ctx, "k", []byte("3"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPublisherClosed)
	assert.Equal(t, []int64{1}, pool.Sizes())

	close(w.release)
	require.NoError(t, pool.Close())
	assert.Len(t, w.Written(), 2)
}

func TestPublisherPool_NotStarted(t *testing.T) {
	pool, _ := testPool(t, config.PublisherConfig{Topic: "next", Num: 2, QueueSize: 1})

	err := pool.Publish(context.Background(), "k", []byte("x"))
	assert.ErrorIs(t, err, ErrPublisherClosed)
}

func TestKafkaPublisher_WriteErrorIsEdgeLogged(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(1, "test", config.PublisherConfig{Topic: "t", QueueSize: 4}, w, logger.NopLogger())

	p.write([]kafka.Message{{Value: []byte("a")}})
	assert.True(t, p.failing.IsOn())
	p.write([]kafka.Message{{Value: []byte("b")}})
	assert.True(t, p.failing.IsOn())

	w.err = nil
	p.write([]kafka.Message{{Value: []byte("c")}})
	assert.False(t, p.failing.IsOn())
	assert.Len(t, w.Written(), 1)
	assert.Equal(t, 3, w.calls)
}
