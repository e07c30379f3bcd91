package outbound

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"menubot/internal/errorx"
	"menubot/internal/logger"
)

// DefaultSendTimeout bounds a single transport call.
const DefaultSendTimeout = 30 * time.Second

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("outbound: scheduler closed")

var log = logger.Named("outbound")

// Stats counts deliveries since start.
type Stats struct {
	Scheduled int64
	Sent      int64
	Failed    int64
	Pending   int
}

type job struct {
	id     string
	intent Intent
	dueAt  time.Time
}

// chatQueue holds the pending jobs of one chat. Only one worker drains it.
type chatQueue struct {
	jobs    []job
	running bool
}

// Scheduler delivers intents on background workers, one per busy chat. A
// job is never sent before the jobs scheduled earlier for the same chat,
// even when its own delay is shorter. Jobs are never cancelled.
type Scheduler struct {
	transport   Transport
	sendTimeout time.Duration
	now         func() time.Time
	jitter      func(min, max time.Duration) time.Duration

	mu     sync.Mutex
	queues map[string]*chatQueue
	closed bool
	wg     sync.WaitGroup

	scheduled atomic.Int64
	sent      atomic.Int64
	failed    atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithJitter replaces the random delay source.
func WithJitter(fn func(min, max time.Duration) time.Duration) Option {
	return func(s *Scheduler) { s.jitter = fn }
}

// NewScheduler creates a scheduler delivering to t.
func NewScheduler(t Transport, opts ...Option) *Scheduler {
	s := &Scheduler{
		transport:   t,
		sendTimeout: DefaultSendTimeout,
		now:         time.Now,
		jitter:      Jitter,
		queues:      make(map[string]*chatQueue),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Jitter draws a uniform delay in [min, max]. A window with max <= min
// yields min.
func Jitter(min, max time.Duration) time.Duration {
	if min < 0 {
		min = 0
	}
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min+1)))
}

// Schedule queues intents in order and returns without waiting for delivery.
func (s *Scheduler) Schedule(intents ...Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	now := s.now()
	for _, in := range intents {
		if in == nil {
			continue
		}
		min, max := in.window()
		j := job{
			id:     uuid.NewString(),
			intent: in,
			dueAt:  now.Add(s.jitter(min, max)),
		}

		q, ok := s.queues[in.Chat()]
		if !ok {
			q = &chatQueue{}
			s.queues[in.Chat()] = q
		}
		q.jobs = append(q.jobs, j)
		s.scheduled.Add(1)
		log.Debugf("scheduled %s for chat %s due in %s", j.id, in.Chat(), j.dueAt.Sub(now))

		if !q.running {
			q.running = true
			s.wg.Add(1)
			go s.drain(in.Chat(), q)
		}
	}
	return nil
}

// drain sends the jobs of one chat head first, waiting for each to be due.
func (s *Scheduler) drain(chatID string, q *chatQueue) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			delete(s.queues, chatID)
			s.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		s.mu.Unlock()

		if wait := j.dueAt.Sub(s.now()); wait > 0 {
			time.Sleep(wait)
		}
		s.deliver(j)
	}
}

func (s *Scheduler) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("transport panic: %v", r)
			}
		}()
		err = j.intent.deliver(ctx, s.transport)
	}()

	if err != nil {
		s.failed.Add(1)
		errorx.Report(errorx.E(errorx.TransportFailure, "outbound.send", fmt.Errorf("job %s chat %s: %w", j.id, j.intent.Chat(), err)), "delivery failed")
		return
	}
	s.sent.Add(1)
	log.Debugf("delivered %s to chat %s", j.id, j.intent.Chat())
}

// Stats returns delivery counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	pending := 0
	for _, q := range s.queues {
		pending += len(q.jobs)
	}
	s.mu.Unlock()

	return Stats{
		Scheduled: s.scheduled.Load(),
		Sent:      s.sent.Load(),
		Failed:    s.failed.Load(),
		Pending:   pending,
	}
}

// Close stops accepting intents and waits for everything already scheduled
// to be attempted, or for ctx to end.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Infof("drained: %d sent, %d failed", s.sent.Load(), s.failed.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbound drain: %w", ctx.Err())
	}
}
