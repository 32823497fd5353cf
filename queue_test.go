package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) add(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func waitIdle(t *testing.T, q *DeliveryQueue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

func TestDeliveryQueue_ProcessesInOrder(t *testing.T) {
	var rec recorder
	q := NewDeliveryQueue(context.Background(), func(_ context.Context, msg *Message) error {
		time.Sleep(5 * time.Millisecond)
		rec.add(msg.ID)
		return nil
	}, zerolog.Nop())

	for _, id := range []string{"a", "b", "c", "d"} {
		q.Enqueue(&Message{ID: id})
	}
	waitIdle(t, q)

	assert.Equal(t, []string{"a", "b", "c", "d"}, rec.list())
	assert.Equal(t, 0, q.Size())
}

func TestDeliveryQueue_ErrorDoesNotStopDrain(t *testing.T) {
	var rec recorder
	q := NewDeliveryQueue(context.Background(), func(_ context.Context, msg *Message) error {
		rec.add(msg.ID)
		if msg.ID == "b" {
			return errors.New("b failed")
		}
		return nil
	}, zerolog.Nop())

	q.Enqueue(&Message{ID: "a"})
	q.Enqueue(&Message{ID: "b"})
	q.Enqueue(&Message{ID: "c"})
	waitIdle(t, q)

	assert.Equal(t, []string{"a", "b", "c"}, rec.list())
}

func TestDeliveryQueue_PanicIsIsolated(t *testing.T) {
	var rec recorder
	q := NewDeliveryQueue(context.Background(), func(_ context.Context, msg *Message) error {
		if msg.ID == "bad" {
			panic("kaboom")
		}
		rec.add(msg.ID)
		return nil
	}, zerolog.Nop())

	q.Enqueue(&Message{ID: "bad"})
	q.Enqueue(&Message{ID: "good"})
	waitIdle(t, q)

	assert.Equal(t, []string{"good"}, rec.list())
}

func TestDeliveryQueue_SizeExcludesInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewDeliveryQueue(context.Background(), func(_ context.Context, msg *Message) error {
		started <- struct{}{}
		<-release
		return nil
	}, zerolog.Nop())

	q.Enqueue(&Message{ID: "first"})
	<-started
	q.Enqueue(&Message{ID: "second"})
	q.Enqueue(&Message{ID: "third"})

	assert.Equal(t, 2, q.Size())

	close(release)
	<-started
	waitIdle(t, q)
	assert.Equal(t, 0, q.Size())
}

func TestDeliveryQueue_RestartsAfterIdle(t *testing.T) {
	var rec recorder
	q := NewDeliveryQueue(context.Background(), func(_ context.Context, msg *Message) error {
		rec.add(msg.ID)
		return nil
	}, zerolog.Nop())

	q.Enqueue(&Message{ID: "one"})
	waitIdle(t, q)
	q.Enqueue(&Message{ID: "two"})
	waitIdle(t, q)

	assert.Equal(t, []string{"one", "two"}, rec.list())
}

func TestDeliveryQueue_WaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	q := NewDeliveryQueue(context.Background(), func(_ context.Context, msg *Message) error {
		<-release
		return nil
	}, zerolog.Nop())

	q.Enqueue(&Message{ID: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}

func TestDeliveryQueue_WaitOnEmptyQueue(t *testing.T) {
	q := NewDeliveryQueue(context.Background(), func(context.Context, *Message) error { return nil }, zerolog.Nop())
	assert.NoError(t, q.Wait(context.Background()))
}
