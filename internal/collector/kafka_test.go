package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/config"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed int
	closed    bool
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(values))}
	for i, v := range values {
		r.msgs <- kafka.Message{Value: []byte(v), Offset: int64(i)}
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed += len(msgs)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) stats() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed, r.closed
}

func TestKafkaIngest_Run(t *testing.T) {
	srv := New(testConfig(), nil)
	defer srv.Close()

	readers := map[string]*fakeReader{
		"courier.events": newFakeReader(
			`{"type":"log","message":"from kafka","date":"2026-01-02T03:04:05Z"}`,
			`not json`,
			`{"message":"no type","date":"2026-01-02T03:04:05Z"}`,
		),
		"courier.events.descriptions": newFakeReader(
			`{"reference_id":"abcdef1234","description":{"description":"it broke"}}`,
		),
		"courier.events.heartbeats": newFakeReader(
			`{"id":"session-1","close":true,"date":"2026-01-02T03:04:05Z"}`,
		),
	}

	ingest := NewKafkaIngest(srv, config.KafkaConfig{Brokers: []string{"unused:9092"}, EventsTopic: "courier.events"}, "", nil)
	ingest.newReader = func(topic string) messageReader {
		r, ok := readers[topic]
		if !assert.True(t, ok, "unexpected topic %s", topic) {
			return newFakeReader()
		}
		return r
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ingest.Run(ctx) }()

	assert.Eventually(t, func() bool {
		committed, _ := readers["courier.events"].stats()
		return committed == 3 && len(srv.Descriptions()) == 1 && len(srv.Heartbeats()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	events := srv.Events()
	require.Len(t, events, 1, "undecodable and invalid events are dropped")
	assert.Equal(t, "from kafka", events[0].Message)
	assert.Equal(t, "abcdef1234", srv.Descriptions()[0].ReferenceID)

	hb := srv.Heartbeats()[0]
	assert.Equal(t, "session-1", hb.ID)
	assert.True(t, hb.Close)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), hb.Received.UTC())

	for topic, r := range readers {
		_, closed := r.stats()
		assert.True(t, closed, topic)
	}
}
