package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChannelDelivers(t *testing.T) {
	ch := NewMemoryChannel(4)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := ch.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, ch.Publish(ctx, entity.Envelope{Source: "a", BlobID: "1"}))
	require.NoError(t, ch.Publish(ctx, entity.Envelope{Source: "a", BlobID: "2"}))

	for _, want := range []string{"1", "2"} {
		select {
		case env := <-sub:
			assert.Equal(t, want, env.BlobID)
		case <-time.After(time.Second):
			t.Fatal("envelope not delivered")
		}
	}
}

func TestMemoryChannelPublishRespectsContext(t *testing.T) {
	ch := NewMemoryChannel(0)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ch.Publish(ctx, entity.Envelope{Source: "nobody listens"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryChannelClose(t *testing.T) {
	ch := NewMemoryChannel(1)
	sub, err := ch.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	_, open := <-sub
	assert.False(t, open)
	assert.ErrorIs(t, ch.Publish(context.Background(), entity.Envelope{}), ErrClosed)
	_, err = ch.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
