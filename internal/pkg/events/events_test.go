package events

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/config"
	"github.com/Gopher0727/Guildhall/internal/pkg/redis"
)

func TestNew_FlattensPayload(t *testing.T) {
	type payload struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	e, err := New(MessageCreated, ChannelTopic("c1"), payload{ID: "42", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "channel:c1", e.Topic)
	assert.Equal(t, map[string]any{"id": "42", "content": "hi"}, e.Data)

	_, err = New(MessageCreated, "x", []int{1})
	assert.Error(t, err)
}

func TestCodec(t *testing.T) {
	in, err := New(TypingUpdated, DMTopic("d1"), map[string]any{"user_id": "u1", "expires_at": 1700000000000})
	require.NoError(t, err)

	raw, err := Marshal(in)
	require.NoError(t, err)
	out, err := Unmarshal(raw)
	require.NoError(t, err)

	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Topic, out.Topic)
	assert.Equal(t, in.At.UnixMilli(), out.At.UnixMilli())
	assert.Equal(t, "u1", out.Data["user_id"])
	assert.InDelta(t, 1700000000000, out.Data["expires_at"], 0)

	_, err = Unmarshal([]byte{0xff, 0x01})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	err := Multi{Nop{}, failingPublisher{boom}}.Publish(context.Background(), Event{Type: "x"})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, Multi{Nop{}}.Publish(context.Background(), Event{}))
}

type recordingProducer struct {
	keys, values [][]byte
}

func (r *recordingProducer) Produce(_ context.Context, key, value []byte) error {
	r.keys = append(r.keys, key)
	r.values = append(r.values, value)
	return nil
}

func TestKafkaPublisher_KeysByTopic(t *testing.T) {
	rec := &recordingProducer{}
	p := &KafkaPublisher{producer: rec}
	e, _ := New(MemberUpdated, ServerTopic("s1"), nil)
	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, rec.keys, 1)
	assert.Equal(t, "server:s1", string(rec.keys[0]))
	got, err := Unmarshal(rec.values[0])
	require.NoError(t, err)
	assert.Equal(t, MemberUpdated, got.Type)
}

func TestRedisPublisherToSource(t *testing.T) {
	mr := miniredis.RunT(t)
	port, _ := strconv.Atoi(mr.Port())
	client, err := redis.NewClient(&config.RedisConfig{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan Event, 1)
	src := NewRedisSource(client, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, func(e Event) { got <- e }) }()

	pub := NewRedisPublisher(client)
	e, _ := New(ChannelCreated, ServerTopic("s1"), map[string]string{"id": "c9"})

	// The subscription is set up asynchronously; publish until it is seen.
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case out := <-got:
			assert.Equal(t, ChannelCreated, out.Type)
			assert.Equal(t, "c9", out.Data["id"])
			cancel()
			assert.NoError(t, <-done)
			return
		case <-tick.C:
			require.NoError(t, pub.Publish(ctx, e))
		case <-ctx.Done():
			t.Fatal("event never arrived")
		}
	}
}
