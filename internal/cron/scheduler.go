package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"menubot/internal/logger"
)

// DefaultJobTimeout bounds one run of a job.
const DefaultJobTimeout = 5 * time.Minute

var log = logger.Named("cron")

// JobFunc is the work behind a job.
type JobFunc func(ctx context.Context) error

// Job describes a registered job.
type Job struct {
	Name       string
	Expression string
	Next       time.Time
	LastRun    time.Time
	LastErr    error
}

type entry struct {
	id   cron.EntryID
	expr string
	last time.Time
	err  error
}

// Scheduler runs named jobs on cron expressions with a seconds field.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.RWMutex
	jobs    map[string]*entry
	running bool
}

// NewScheduler creates an idle scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		jobs: make(map[string]*entry),
	}
}

// ValidateExpression checks a six-field cron expression.
func ValidateExpression(expression string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(expression); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// AddJob schedules fn under name, replacing any job with the same name.
func (s *Scheduler) AddJob(name, expression string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old.id)
		delete(s.jobs, name)
	}

	e := &entry{expr: expression}
	id, err := s.cron.AddFunc(expression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultJobTimeout)
		defer cancel()

		log.Debugf("running job %s", name)
		err := fn(ctx)
		if err != nil {
			log.Errorf("job %s failed: %v", name, err)
		}

		s.mu.Lock()
		e.last = time.Now()
		e.err = err
		s.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	e.id = id
	s.jobs[name] = e
	return nil
}

// RemoveJob unschedules name.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[name]; ok {
		s.cron.Remove(e.id)
		delete(s.jobs, name)
	}
}

// Start runs the scheduler until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	log.Infof("cron scheduler started with %d jobs", n)
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	// Jobs take s.mu when they finish, so wait without holding it.
	<-s.cron.Stop().Done()
	log.Infof("cron scheduler stopped")
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for name, e := range s.jobs {
		out = append(out, Job{
			Name:       name,
			Expression: e.expr,
			Next:       s.cron.Entry(e.id).Next,
			LastRun:    e.last,
			LastErr:    e.err,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
