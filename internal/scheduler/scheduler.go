// Package scheduler runs periodic jobs on a cron expression or a fixed
// interval, optionally restricted to a daily time window.
//
// Jobs never overlap: a tick that fires while the previous run is still in
// flight is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcus/agentrouter/internal/config"
	"github.com/marcus/agentrouter/internal/logging"
)

var (
	ErrNoSchedule     = errors.New("no cron or interval configured")
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
	ErrInFlight       = errors.New("previous run still in progress")
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (a single-digit hour is accepted).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok || h == "" || m == "" {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Window is a daily time range. End is exclusive; a window whose end is
// before its start spans midnight.
type Window struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Location != nil {
		t = t.In(w.Location)
	}
	now := t.Hour()*60 + t.Minute()
	start, end := w.Start.Minutes(), w.End.Minutes()

	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func parseWindow(cfg *config.WindowConfig) (*Window, error) {
	start, err := ParseTimeOfDay(cfg.Start)
	if err != nil {
		return nil, fmt.Errorf("window start: %w", err)
	}
	end, err := ParseTimeOfDay(cfg.End)
	if err != nil {
		return nil, fmt.Errorf("window end: %w", err)
	}
	loc := time.Local
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("window timezone: %w", err)
		}
	}
	return &Window{Start: start, End: end, Location: loc}, nil
}

// Scheduler runs jobs on a cron or interval schedule.
type Scheduler struct {
	mu       sync.Mutex
	cronExpr string
	schedule cron.Schedule
	interval time.Duration
	window   *Window
	jobs     []Job

	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time

	inFlight atomic.Bool
	skipped  atomic.Int64
	outside  atomic.Int64
	runs     atomic.Int64

	now func() time.Time
	log *logging.Logger
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{now: time.Now, log: logging.Component("scheduler")}
}

// NewFromConfig creates a scheduler from the schedule config section.
func NewFromConfig(cfg *config.ScheduleConfig) (*Scheduler, error) {
	if cfg.Cron != "" && cfg.Interval != "" {
		return nil, config.ErrCronAndInterval
	}
	if cfg.Cron == "" && cfg.Interval == "" {
		return nil, ErrNoSchedule
	}

	s := New()
	if cfg.Cron != "" {
		if err := s.SetCron(cfg.Cron); err != nil {
			return nil, err
		}
	} else {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", cfg.Interval, err)
		}
		if err := s.SetInterval(d); err != nil {
			return nil, err
		}
	}

	if cfg.Window != nil {
		if err := s.SetWindow(cfg.Window); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetCron sets a standard five-field cron expression, replacing any interval.
func (s *Scheduler) SetCron(expr string) error {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cronExpr = expr
	s.schedule = sched
	s.interval = 0
	return nil
}

// SetInterval sets a fixed interval, replacing any cron expression.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return config.ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	s.cronExpr = ""
	s.schedule = nil
	return nil
}

// SetWindow restricts runs to a daily window. A nil config removes it.
func (s *Scheduler) SetWindow(cfg *config.WindowConfig) error {
	var w *Window
	if cfg != nil {
		var err error
		if w, err = parseWindow(cfg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.window = w
	s.mu.Unlock()
	return nil
}

// AddJob registers a job. Jobs run in registration order on every tick.
func (s *Scheduler) AddJob(job Job) {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
}

// ScheduleCron sets the cron expression and adds job.
func (s *Scheduler) ScheduleCron(expr string, job func()) error {
	if err := s.SetCron(expr); err != nil {
		return err
	}
	s.AddJob(func(context.Context) error {
		job()
		return nil
	})
	return nil
}

// ScheduleInterval sets the interval and adds job.
func (s *Scheduler) ScheduleInterval(d time.Duration, job func()) error {
	if err := s.SetInterval(d); err != nil {
		return err
	}
	s.AddJob(func(context.Context) error {
		job()
		return nil
	})
	return nil
}

// Start begins scheduling. It returns immediately; jobs run until Stop is
// called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.schedule == nil && s.interval <= 0 {
		return ErrNoSchedule
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	if s.schedule != nil {
		s.nextRun = s.schedule.Next(time.Now())
		s.cron = cron.New()
		s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.tick(ctx) }))
		s.cron.Start()
		go func(done chan struct{}) {
			defer close(done)
			<-ctx.Done()
		}(s.done)
		s.log.InfoCtx("scheduler started", map[string]any{"cron": s.cronExpr, "next_run": s.nextRun})
		return nil
	}

	s.nextRun = time.Now().Add(s.interval)
	go s.loop(ctx, s.interval, s.done)
	s.log.InfoCtx("scheduler started", map[string]any{"interval": s.interval.String(), "next_run": s.nextRun})
	return nil
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.running {
				s.nextRun = time.Now().Add(interval)
			}
			s.mu.Unlock()
			s.tick(ctx)
		}
	}
}

// Stop halts scheduling and waits for an in-progress cron run to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	c, done := s.cron, s.done
	s.cron = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	<-done
	s.log.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled tick, or zero when not running.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// IsInWindow reports whether t is inside the configured window. With no
// window every time is.
func (s *Scheduler) IsInWindow(t time.Time) bool {
	s.mu.Lock()
	w := s.window
	s.mu.Unlock()
	return w == nil || w.Contains(t)
}

// OutsideWindow returns how many ticks were dropped because they fell
// outside the window.
func (s *Scheduler) OutsideWindow() int64 {
	return s.outside.Load()
}

// Skipped returns how many ticks were dropped because a run was in flight.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Runs returns how many times the jobs have been run.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// RunNow runs the jobs immediately, ignoring the window. It returns
// ErrInFlight if a run is already in progress.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return ErrInFlight
	}
	defer s.inFlight.Store(false)
	return s.runJobs(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	if s.schedule != nil && s.running {
		s.nextRun = s.schedule.Next(now)
	}
	s.mu.Unlock()

	if !s.IsInWindow(now) {
		s.outside.Add(1)
		s.log.DebugCtx("outside window, skipping run", map[string]any{"time": now})
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.WarnCtx("previous run still in progress, skipping tick", map[string]any{
			"skipped": s.skipped.Load(),
		})
		return
	}
	defer s.inFlight.Store(false)

	if err := s.runJobs(ctx); err != nil {
		s.log.ErrorCtx("scheduled run failed", map[string]any{"error": err.Error()})
	}
}

func (s *Scheduler) runJobs(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	s.runs.Add(1)
	var errs []error
	for _, job := range jobs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := job(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
