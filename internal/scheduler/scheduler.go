// Package scheduler runs periodic background jobs for NoaBot, such as refreshing
// the shared scene when a new time-of-day period begins.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling in a fixed-offset zone.
type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location
}

// NewScheduler creates and starts a cron scheduler whose expressions are evaluated
// at the given offset from UTC.
func NewScheduler(offset time.Duration) *Scheduler {
	loc := time.FixedZone(zoneName(offset), int(offset/time.Second))
	// Standard 5-field parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c, loc: loc}
}

// Location returns the zone expressions are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Refresher forces a new scene pick.
type Refresher interface {
	Refresh(ctx context.Context) string
}

// BoundaryExpr builds a cron expression firing at minute zero of each given hour.
func BoundaryExpr(hours []int) (string, error) {
	if len(hours) == 0 {
		return "", fmt.Errorf("no boundary hours given")
	}
	parts := make([]string, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			return "", fmt.Errorf("invalid boundary hour %d", h)
		}
		parts = append(parts, strconv.Itoa(h))
	}
	return "0 " + strings.Join(parts, ",") + " * * *", nil
}

// ScheduleSceneRefresh refreshes r at the start of every period.
func (s *Scheduler) ScheduleSceneRefresh(r Refresher, hours []int) error {
	expr, err := BoundaryExpr(hours)
	if err != nil {
		return err
	}
	if err := s.AddJob(expr, func() { refreshScene(r) }); err != nil {
		return fmt.Errorf("failed to schedule scene refresh: %w", err)
	}
	slog.Info("Scheduler.ScheduleSceneRefresh: boundary refresh enabled", "expr", expr, "zone", s.loc.String())
	return nil
}

func refreshScene(r Refresher) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.Refresh(ctx)
	slog.Debug("Scheduler.refreshScene: scene refreshed at period boundary")
}

func zoneName(offset time.Duration) string {
	if offset == 0 {
		return "UTC"
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("UTC%s%02d:%02d", sign, h, m)
}
