// Package roomqueue runs commands for the same room one at a time, in arrival
// order, while commands for different rooms run in parallel.
package roomqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Task is one serialized command. The context it receives is detached from the
// caller's cancellation so a started command always completes.
type Task func(ctx context.Context) error

// Serializer owns one worker goroutine per busy room. A worker exits when its
// queue drains and is recreated on the next command.
type Serializer struct {
	mu     sync.Mutex
	queues map[uuid.UUID]*queue
	buffer int
	logger *zap.Logger
}

type queue struct {
	tasks   chan job
	pending int
}

type job struct {
	ctx  context.Context
	fn   Task
	done chan error
}

// New creates a serializer. buffer is the per-room channel capacity.
func New(buffer int, logger *zap.Logger) *Serializer {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Serializer{queues: make(map[uuid.UUID]*queue), buffer: buffer, logger: logger}
}

// Do enqueues fn on roomID's queue and waits for its result. If ctx is
// cancelled while waiting, Do returns ctx.Err() but fn still runs in order.
func (s *Serializer) Do(ctx context.Context, roomID uuid.UUID, fn Task) error {
	j := job{ctx: context.WithoutCancel(ctx), fn: fn, done: make(chan error, 1)}

	s.mu.Lock()
	q, ok := s.queues[roomID]
	if !ok {
		q = &queue{tasks: make(chan job, s.buffer)}
		s.queues[roomID] = q
		go s.run(roomID, q)
	}
	q.pending++
	s.mu.Unlock()

	q.tasks <- j

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of rooms with a live worker.
func (s *Serializer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

func (s *Serializer) run(roomID uuid.UUID, q *queue) {
	for j := range q.tasks {
		j.done <- s.exec(roomID, j)

		s.mu.Lock()
		q.pending--
		if q.pending == 0 {
			delete(s.queues, roomID)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

func (s *Serializer) exec(roomID uuid.UUID, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("room command panicked", zap.String("room_id", roomID.String()), zap.Any("panic", r))
			err = fmt.Errorf("room command panicked: %v", r)
		}
	}()
	return j.fn(j.ctx)
}
