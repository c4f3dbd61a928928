package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/models"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Ingester re-reads a documents directory
type Ingester interface {
	IngestDocuments(ctx context.Context, dir string) (*models.IngestSummary, error)
}

// Service re-ingests the documents directory on a cron schedule.
// A run that fires while the previous one is still going is skipped.
type Service struct {
	ingester Ingester
	dir      string
	logger   arbor.ILogger

	mu           sync.Mutex // Protects cron and run state
	cron         *cron.Cron
	isProcessing bool
	running      bool
	lastRun      *time.Time
	lastError    string
}

// NewService creates a rescan scheduler for dir
func NewService(ingester Ingester, dir string, logger arbor.ILogger) *Service {
	return &Service{
		ingester: ingester,
		dir:      dir,
		logger:   logger,
	}
}

// Start schedules rescans with a standard 5-field cron expression or descriptor (e.g. "@every 10m")
func (s *Service) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if err := common.ValidateSchedule(schedule); err != nil {
		return err
	}

	// A fresh cron per start, so a restart never inherits the old entry
	c := cron.New(cron.WithParser(scheduleParser))
	if _, err := c.AddFunc(schedule, s.runScheduledRescan); err != nil {
		return fmt.Errorf("failed to schedule rescan: %w", err)
	}

	c.Start()
	s.cron = c
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Str("dir", s.dir).
		Msg("Document rescan scheduler started")

	return nil
}

// Stop halts the schedule and waits for a running rescan to finish
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info().Msg("Document rescan scheduler stopped")
}

// IsRunning reports whether the schedule is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerNow starts a rescan in the background, outside the schedule
func (s *Service) TriggerNow() {
	common.SafeGo(s.logger, "rescan", s.runScheduledRescan)
}

// LastRun returns the completion time and error text of the last rescan
func (s *Service) LastRun() (*time.Time, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastError
}

func (s *Service) runScheduledRescan() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic in document rescan")
		}
	}()

	if _, ran := s.Rescan(context.Background()); !ran {
		s.logger.Debug().Msg("Previous rescan still in progress, skipping this cycle")
	}
}

// Rescan ingests the documents directory once. It returns false without
// doing anything when another rescan is in progress.
func (s *Service) Rescan(ctx context.Context) (*models.IngestSummary, bool) {
	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		return nil, false
	}
	s.isProcessing = true
	s.mu.Unlock()

	start := time.Now()
	summary, err := s.ingester.IngestDocuments(ctx, s.dir)
	finished := time.Now()

	s.mu.Lock()
	s.isProcessing = false
	s.lastRun = &finished
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("dir", s.dir).
			Dur("duration", time.Since(start)).
			Msg("Document rescan failed")
		return summary, true
	}

	s.logger.Info().
		Int("added", summary.Added).
		Int("unchanged", summary.Unchanged).
		Int("failed", summary.Failed).
		Int("removed", summary.Removed).
		Dur("duration", time.Since(start)).
		Msg("Document rescan completed")

	return summary, true
}
