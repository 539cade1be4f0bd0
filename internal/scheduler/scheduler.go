package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"MarketPulse/internal/pipeline"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrUnknownJob     = errors.New("unknown job")
	ErrAlreadyRunning = errors.New("job is already running")
)

type entry struct {
	job  pipeline.Job
	spec string
}

// Scheduler runs jobs on their cron schedules and on demand. A job never
// runs twice at the same time, whichever way it was triggered.
type Scheduler struct {
	Cron *cron.Cron
	Log  *zap.Logger
	Ctx  context.Context

	mu      sync.Mutex
	jobs    map[string]entry
	running map[string]bool
}

// NewScheduler creates a scheduler evaluating six-field cron specs in loc.
func NewScheduler(ctx context.Context, loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Log:     log,
		Ctx:     ctx,
		jobs:    make(map[string]entry),
		running: make(map[string]bool),
	}
}

// Register adds a job. An empty spec registers it for manual runs only.
func (s *Scheduler) Register(job pipeline.Job, spec string) error {
	s.mu.Lock()
	if _, ok := s.jobs[job.Name()]; ok {
		s.mu.Unlock()
		return fmt.Errorf("register %s: duplicate job name", job.Name())
	}
	s.jobs[job.Name()] = entry{job: job, spec: spec}
	s.mu.Unlock()

	if spec == "" {
		return nil
	}
	if _, err := s.Cron.AddFunc(spec, func() { s.RunNow(job.Name()) }); err != nil {
		return fmt.Errorf("register %s: %w", job.Name(), err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started", zap.Int("jobs", len(s.Names())))
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// Names returns the registered job names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNow executes the named job synchronously and logs its status line.
func (s *Scheduler) RunNow(name string) (pipeline.Result, error) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return pipeline.Result{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if s.running[name] {
		s.mu.Unlock()
		s.Log.Warn("job still running, skipping", zap.String("job", name))
		return pipeline.Result{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	res := e.job.Run(s.Ctx)
	s.Log.Info(res.Summary(name),
		zap.String("job", name),
		zap.String("run_id", res.RunID),
		zap.String("state", string(res.State)),
	)
	return res, nil
}

// RunAll runs every registered job once, in name order.
func (s *Scheduler) RunAll() {
	for _, name := range s.Names() {
		if _, err := s.RunNow(name); err != nil {
			s.Log.Warn("run failed to start", zap.String("job", name), zap.Error(err))
		}
	}
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return help()
	}
	switch fields[0] {
	case "/jobs":
		return s.describe()
	case "/run":
		if len(fields) != 2 {
			return "usage: /run <job>"
		}
		res, err := s.RunNow(fields[1])
		if err != nil {
			return err.Error()
		}
		return res.Summary(fields[1])
	default:
		return help()
	}
}

func (s *Scheduler) describe() string {
	var b strings.Builder
	for _, name := range s.Names() {
		s.mu.Lock()
		e := s.jobs[name]
		s.mu.Unlock()
		spec := e.spec
		if spec == "" {
			spec = "manual"
		}
		fmt.Fprintf(&b, "• %s (%s) %s\n", name, e.job.Kind(), spec)
	}
	if b.Len() == 0 {
		return "no jobs registered"
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func help() string {
	return "Commands:\n• /jobs\n• /run <job>"
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
