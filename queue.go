package dispatcher

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ProcessFunc handles one dequeued message.
type ProcessFunc func(ctx context.Context, msg *Message) error

// DeliveryQueue is a FIFO queue drained by at most one consumer goroutine.
//
// Enqueue starts the consumer when none is running. The consumer pops messages
// one at a time and hands them to the process function; errors and panics from
// that function are logged and never stop the drain.
type DeliveryQueue struct {
	process  ProcessFunc
	logger   zerolog.Logger
	ctx      context.Context
	items    []*Message
	draining bool
	idle     chan struct{}
	mutex    sync.Mutex
}

// NewDeliveryQueue creates a queue that hands messages to process.
// ctx is passed to every process call.
func NewDeliveryQueue(ctx context.Context, process ProcessFunc, logger zerolog.Logger) *DeliveryQueue {
	idle := make(chan struct{})
	close(idle)
	return &DeliveryQueue{
		process: process,
		logger:  logger.With().Str("component", "queue").Logger(),
		ctx:     ctx,
		idle:    idle,
	}
}

// Enqueue appends msg to the tail and starts the consumer if it is not running.
func (q *DeliveryQueue) Enqueue(msg *Message) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.items = append(q.items, msg)
	if q.draining {
		return
	}

	q.draining = true
	q.idle = make(chan struct{})
	go q.drain(q.idle)
}

// Size returns the number of messages waiting. A message being processed is
// not counted.
func (q *DeliveryQueue) Size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

// Wait blocks until the consumer is idle and the queue is empty, or ctx is done.
func (q *DeliveryQueue) Wait(ctx context.Context) error {
	q.mutex.Lock()
	idle := q.idle
	q.mutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		return nil
	}
}

func (q *DeliveryQueue) drain(done chan struct{}) {
	for {
		msg, ok := q.pop(done)
		if !ok {
			return
		}
		if err := q.run(msg); err != nil {
			q.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to process message")
		}
	}
}

// pop removes the head. On an empty queue it marks the consumer stopped and
// releases waiters.
func (q *DeliveryQueue) pop(done chan struct{}) (*Message, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.items) == 0 {
		q.draining = false
		close(done)
		return nil, false
	}

	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return msg, true
}

func (q *DeliveryQueue) run(msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 64<<10)
			stack = stack[:runtime.Stack(stack, false)]
			err = &PanicError{MessageID: msg.ID, Panic: r, Stack: stack}
		}
	}()

	return q.process(q.ctx, msg)
}
