// Package sweeper periodically re-evaluates the alert feed. It only reads:
// an expired snooze stops hiding its course because evaluation compares
// snoozed_until with the current time, not because anything is rewritten.
package sweeper

import (
	"context"
	"sync"
	"time"

	"medstock-backend/internal/alerts"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/dashboard"
	"medstock-backend/internal/logger"
)

// FeedSource is implemented by dashboard.Aggregator.
type FeedSource interface {
	Feed(ctx context.Context) ([]dashboard.AlertRow, error)
}

// Pass summarizes one sweep.
type Pass struct {
	At             time.Time
	Critical       int
	Low            int
	Unacknowledged int
}

type Sweeper struct {
	feed     FeedSource
	interval time.Duration
	clock    clock.Clock
	log      *logger.Logger

	mu      sync.Mutex
	nextRun *time.Time
	last    *Pass
}

func New(feed FeedSource, interval time.Duration, clk clock.Clock, log *logger.Logger) *Sweeper {
	return &Sweeper{
		feed:     feed,
		interval: interval,
		clock:    clk,
		log:      log.With("component", "AlertSweeper"),
	}
}

// Run sweeps once right away and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		s.sweep(ctx)
	}
}

// NextRunAt is when the next sweep is due, nil before the first one.
func (s *Sweeper) NextRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextRun == nil {
		return nil
	}
	t := *s.nextRun
	return &t
}

func (s *Sweeper) LastPass() *Pass {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	p := *s.last
	return &p
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := s.clock.Now()
	next := now.Add(s.interval)
	s.mu.Lock()
	s.nextRun = &next
	s.mu.Unlock()

	feed, err := s.feed.Feed(ctx)
	if err != nil {
		s.log.Error("Alert sweep failed", "error", err)
		return
	}

	p := Pass{At: now}
	for _, r := range feed {
		switch r.Status {
		case alerts.TierCritical:
			p.Critical++
		case alerts.TierLow:
			p.Low++
		}
		if !r.Acknowledged {
			p.Unacknowledged++
		}
	}
	s.mu.Lock()
	s.last = &p
	s.mu.Unlock()

	if p.Critical > 0 {
		s.log.Warn("Urgent medication alerts", "critical", p.Critical, "low", p.Low, "unacknowledged", p.Unacknowledged)
		return
	}
	s.log.Info("Alert sweep finished", "critical", p.Critical, "low", p.Low, "unacknowledged", p.Unacknowledged)
}
