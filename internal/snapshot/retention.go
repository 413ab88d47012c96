package snapshot

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// Sweeper deletes snapshots older than MaxAge on a cron schedule.
type Sweeper struct {
	store    Store
	schedule string
	maxAge   time.Duration
}

// NewSweeper creates a Sweeper. An unparsable schedule disables the sweep.
func NewSweeper(store Store, schedule string, maxAge time.Duration) *Sweeper {
	return &Sweeper{store: store, schedule: schedule, maxAge: maxAge}
}

// Run blocks until ctx is cancelled, firing the sweep at each scheduled
// time. Sweep failures are logged and the schedule continues.
func (s *Sweeper) Run(ctx context.Context) {
	if s.maxAge <= 0 {
		return
	}
	for {
		d := nextCronDuration(s.schedule)
		if d <= 0 {
			log.Printf("snapshot: invalid retention schedule %q, sweep disabled", s.schedule)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
			s.SweepOnce()
		}
	}
}

// SweepOnce runs a single purge pass.
func (s *Sweeper) SweepOnce() {
	cutoff := time.Now().Add(-s.maxAge)
	n, err := s.store.PurgeOlderThan(cutoff)
	if err != nil {
		log.Printf("snapshot: retention sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("snapshot: retention sweep removed %d stale sessions", n)
	}
}
