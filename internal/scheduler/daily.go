// Package scheduler runs a job once a day at a fixed wall-clock time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Job is invoked with the time the run was scheduled for.
type Job func(ctx context.Context, at time.Time) error

// Daily fires Job every day at hour:minute in loc.
type Daily struct {
	hour, minute int
	loc          *time.Location
	job          Job

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

type Option func(*Daily)

// WithClock overrides time.Now and time.After, mainly for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(d *Daily) {
		d.now = now
		d.after = after
	}
}

func NewDaily(hour, minute int, loc *time.Location, job Job, opts ...Option) (*Daily, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid time of day %02d:%02d", hour, minute)
	}
	if job == nil {
		return nil, fmt.Errorf("nil job")
	}
	if loc == nil {
		loc = time.Local
	}
	d := &Daily{
		hour:   hour,
		minute: minute,
		loc:    loc,
		job:    job,
		now:    time.Now,
		after:  time.After,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NextRun returns the first scheduled time strictly after t.
func (d *Daily) NextRun(t time.Time) time.Time {
	t = t.In(d.loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

// Run waits for each scheduled time and runs the job until ctx is done.
// Job errors are logged; the next day's run still happens.
func (d *Daily) Run(ctx context.Context) error {
	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		from := d.now()
		if from.Before(last) {
			from = last
		}
		next := d.NextRun(from)
		last = next
		slog.InfoContext(ctx, "Next scheduled run", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.after(next.Sub(d.now())):
		}

		if err := d.job(ctx, next); err != nil {
			slog.ErrorContext(ctx, "Scheduled job failed",
				"scheduled_at", next.Format(time.RFC3339),
				"error", err)
		}
	}
}
