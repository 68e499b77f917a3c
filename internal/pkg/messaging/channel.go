// Package messaging carries envelopes between the interceptor and the bridge.
// Neither side calls the other directly; each only publishes to and
// subscribes on a Channel.
package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
)

var ErrClosed = errors.New("channel closed")

// Channel is an asynchronous, unordered, at-most-once envelope pipe.
// The channel returned by Subscribe is closed once ctx is done or the
// Channel itself is closed.
type Channel interface {
	Publish(ctx context.Context, env entity.Envelope) error
	Subscribe(ctx context.Context) (<-chan entity.Envelope, error)
	Close() error
}

type memoryChannel struct {
	queue  chan entity.Envelope
	closed chan struct{}
	once   sync.Once
}

func NewMemoryChannel(size int) Channel {
	if size < 0 {
		size = 0
	}
	return &memoryChannel{
		queue:  make(chan entity.Envelope, size),
		closed: make(chan struct{}),
	}
}

func (m *memoryChannel) Publish(ctx context.Context, env entity.Envelope) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	select {
	case m.queue <- env:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memoryChannel) Subscribe(ctx context.Context) (<-chan entity.Envelope, error) {
	select {
	case <-m.closed:
		return nil, ErrClosed
	default:
	}
	out := make(chan entity.Envelope)
	go func() {
		defer close(out)
		for {
			select {
			case env := <-m.queue:
				select {
				case out <- env:
				case <-ctx.Done():
					return
				case <-m.closed:
					return
				}
			case <-ctx.Done():
				return
			case <-m.closed:
				return
			}
		}
	}()
	return out, nil
}

func (m *memoryChannel) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}
