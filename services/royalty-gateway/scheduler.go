package main

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs the reconciler once a day at a configured local time.
type Scheduler struct {
	reconciler *Reconciler
	window     time.Duration
	runHour    int
	runMinute  int
	location   *time.Location
	logger     *slog.Logger
	nowFn      func() time.Time
}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	Reconciler *Reconciler
	Window     time.Duration
	RunHour    int
	RunMinute  int
	Location   *time.Location
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewScheduler builds a Scheduler with defaults applied.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		reconciler: cfg.Reconciler,
		window:     window,
		runHour:    clampHour(cfg.RunHour),
		runMinute:  clampMinute(cfg.RunMinute),
		location:   location,
		logger:     logger,
		nowFn:      now,
	}
}

// Start blocks until ctx is cancelled, firing a pass at each scheduled time.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := s.nextRun(s.nowFn())
		timer := time.NewTimer(next.Sub(s.nowFn()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		result, err := s.reconciler.Run(ctx, ReconRunOptions{Start: next.Add(-s.window), End: next})
		if err != nil {
			s.logger.Error("scheduled recon failed", "error", err)
			continue
		}
		s.logger.Info("scheduled recon finished",
			"rows", result.Rows,
			"anomalies", len(result.Anomalies),
			"window_start", result.Start.Format(time.RFC3339),
			"window_end", result.End.Format(time.RFC3339),
		)
	}
}

func (s *Scheduler) nextRun(now time.Time) time.Time {
	local := now.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.runHour, s.runMinute, 0, 0, s.location)
	if !next.After(local) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

func clampHour(hour int) int {
	if hour < 0 {
		return 0
	}
	if hour > 23 {
		return 23
	}
	return hour
}

func clampMinute(minute int) int {
	if minute < 0 {
		return 0
	}
	if minute > 59 {
		return 59
	}
	return minute
}
