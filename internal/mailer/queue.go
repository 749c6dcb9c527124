package mailer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when the delivery buffer has no room.
// Callers treat it as a delivery failure, not a request failure.
var ErrQueueFull = errors.New("mail queue full")

// ErrQueueClosed is returned when enqueueing after shutdown
var ErrQueueClosed = errors.New("mail queue closed")

// job is one pending delivery
type job struct {
	Email string
	Code  string
}

// Queue serializes outbound mail through a single consumer goroutine.
// Delivery outcome is deliberately not reported back to enqueuers:
// the row is already committed by the time a job is queued, and a
// delivery failure must not fail the request that created it.
type Queue struct {
	sender      Sender
	log         *slog.Logger
	sendTimeout time.Duration

	jobs chan job

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewQueue creates a delivery queue with the given buffer size
func NewQueue(sender Sender, log *slog.Logger, size int, sendTimeout time.Duration) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		sender:      sender,
		log:         log,
		sendTimeout: sendTimeout,
		jobs:        make(chan job, size),
		done:        make(chan struct{}),
	}
}

// Start launches the consumer goroutine
func (q *Queue) Start() {
	go q.run()
}

// Enqueue hands a delivery to the consumer without blocking. A full
// buffer drops the job with an error so the caller can log it.
func (q *Queue) Enqueue(email, code string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job{Email: email, Code: code}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight deliveries to drain
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	for j := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.sendTimeout)
		err := q.sender.Send(ctx, j.Email, j.Code)
		cancel()

		if err != nil {
			// log-only: there is no feedback channel to the request
			q.log.Error("mail delivery failed",
				slog.String("email", j.Email),
				slog.String("error", err.Error()),
			)
			continue
		}
		q.log.Info("verification code delivered", slog.String("email", j.Email))
	}
}
