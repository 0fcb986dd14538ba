package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// startTicker registers the live-feed job on the service cron.
func (s *Service) startTicker(interval time.Duration) error {
	spec := "@every " + interval.String()
	if _, err := s.cron.AddFunc(spec, s.tickAll); err != nil {
		return fmt.Errorf("register live tick %q: %w", spec, err)
	}
	s.cron.Start()
	slog.Info("live feed scheduler started", "interval", interval)
	return nil
}

func (s *Service) stopTicker() {
	<-s.cron.Stop().Done()
	slog.Info("live feed scheduler stopped")
}

func newCron() *cron.Cron {
	return cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
}

// tickAll advances the live series of every chart on a sub-hour timeframe
// and publishes the resulting bar.
func (s *Service) tickAll() {
	ctx, cancel := context.WithTimeout(context.Background(), tickBudget)
	defer cancel()
	now := s.now()
	for _, e := range s.snapshotCharts() {
		bar, ok, err := e.inst.Tick(ctx, now)
		if err != nil {
			slog.Warn("live tick failed", "chart_id", e.id, "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.publish(EventBar, e.id, BarEvent{ChartID: e.id, Bar: bar})
	}
}
