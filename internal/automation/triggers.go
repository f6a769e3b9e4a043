package automation

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/robfig/cron"
)

// DailyAt fires once a day at Hour:Minute in Location.
type DailyAt struct {
	Hour, Minute int
	Location     *time.Location
}

func (s DailyAt) Next(t time.Time) time.Time {
	t = t.In(location(s.Location))
	next := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, s.Hour, s.Minute, 0, 0, t.Location())
	}
	return next
}

// WeeklyAt fires once a week on Weekday at Hour:Minute in Location.
type WeeklyAt struct {
	Weekday      time.Weekday
	Hour, Minute int
	Location     *time.Location
}

func (s WeeklyAt) Next(t time.Time) time.Time {
	t = t.In(location(s.Location))
	days := (int(s.Weekday) - int(t.Weekday()) + 7) % 7
	next := time.Date(t.Year(), t.Month(), t.Day()+days, s.Hour, s.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+days+7, s.Hour, s.Minute, 0, 0, t.Location())
	}
	return next
}

// MonthlyAt fires once a month on Day at Hour:Minute. Days past the end of a
// short month fire on its last day.
type MonthlyAt struct {
	Day, Hour, Minute int
	Location          *time.Location
}

func (s MonthlyAt) Next(t time.Time) time.Time {
	t = t.In(location(s.Location))
	for i := 0; ; i++ {
		first := time.Date(t.Year(), t.Month()+time.Month(i), 1, 0, 0, 0, 0, t.Location())
		day := min(max(s.Day, 1), first.AddDate(0, 1, -1).Day())
		next := time.Date(first.Year(), first.Month(), day, s.Hour, s.Minute, 0, 0, t.Location())
		if next.After(t) {
			return next
		}
	}
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// guardedJob skips a run while the previous run of the same trigger is
// still going.
type guardedJob struct {
	name    string
	ctx     context.Context
	run     func(ctx context.Context) error
	running atomic.Bool
}

func (j *guardedJob) Run() {
	j.exec()
}

// exec reports whether the run went ahead; false means it was skipped.
func (j *guardedJob) exec() (ran bool) {
	if !j.running.CompareAndSwap(false, true) {
		slog.Info("trigger skipped, previous run still active", "trigger", j.name)
		metrics.MaintenanceRuns.WithLabelValues(j.name, "skipped").Inc()
		return false
	}
	ran = true
	defer j.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("trigger panicked", "trigger", j.name, "panic", r)
			metrics.MaintenanceRuns.WithLabelValues(j.name, "error").Inc()
		}
	}()

	if err := j.run(j.ctx); err != nil {
		slog.Error("trigger failed", "trigger", j.name, "error", err)
		metrics.MaintenanceRuns.WithLabelValues(j.name, "error").Inc()
		return true
	}
	metrics.MaintenanceRuns.WithLabelValues(j.name, "ok").Inc()
	return true
}

var (
	ErrUnknownTrigger = errors.New("unknown trigger")
	ErrTriggerBusy    = errors.New("trigger already running")
)

// Runner drives every periodic trigger from one cron instance.
type Runner struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	jobs   map[string]*guardedJob
}

func NewRunner(ctx context.Context, loc *time.Location) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		cron:   cron.NewWithLocation(location(loc)),
		ctx:    ctx,
		cancel: cancel,
		jobs:   map[string]*guardedJob{},
	}
}

func (r *Runner) Add(name string, schedule cron.Schedule, run func(ctx context.Context) error) {
	job := &guardedJob{name: name, ctx: r.ctx, run: run}
	r.jobs[name] = job
	r.cron.Schedule(schedule, job)
}

// Trigger runs a registered trigger immediately, subject to its guard.
// Failures inside the run are logged, not returned.
func (r *Runner) Trigger(name string) error {
	job, ok := r.jobs[name]
	if !ok {
		return ErrUnknownTrigger
	}
	if !job.exec() {
		return ErrTriggerBusy
	}
	return nil
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts scheduling and cancels the context passed to running triggers.
func (r *Runner) Stop() {
	r.cron.Stop()
	r.cancel()
}
