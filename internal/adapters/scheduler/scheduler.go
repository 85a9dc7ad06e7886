// Package scheduler runs the daemon's periodic jobs on a cron runner.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Job func(ctx context.Context) error

// Scheduler skips a run when the previous run of the same job is still going.
type Scheduler struct {
	cron *cron.Cron
	log  logrus.FieldLogger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	names  map[string]cron.EntryID
}

func New(log logrus.FieldLogger) *Scheduler {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		names:  map[string]cron.EntryID{},
	}
}

// Every schedules job at a fixed interval. Intervals below one second run every second.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.names[name]; exists {
		return fmt.Errorf("schedule %s: already registered", name)
	}

	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.run(name, job)
	}))
	s.names[name] = id
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	start := time.Now()
	if err := job(s.ctx); err != nil {
		s.log.WithError(err).WithField("job", name).Warn("scheduled job failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"job":      name,
		"duration": time.Since(start),
	}).Debug("scheduled job finished")
}

// Start runs the registered jobs until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	out := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		out[key] = keysAndValues[i+1]
	}
	return out
}
