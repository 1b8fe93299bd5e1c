// internal/fetch/service.go
package fetch

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"paperstream/internal/database"
)

// Service schedules one fetch run per day at a fixed wall-clock time.
// Manual runs through the orchestrator stay possible at any point; the
// orchestrator's guard keeps them from overlapping a scheduled run.
type Service struct {
	db           *database.DB
	logger       *log.Logger
	orchestrator *Orchestrator
	hour         int
	minute       int
	done         chan struct{}
}

func NewService(db *database.DB, logger *log.Logger, opts Options, hour, minute int) *Service {
	return &Service{
		db:           db,
		logger:       logger,
		orchestrator: NewOrchestrator(db, logger, opts),
		hour:         hour,
		minute:       minute,
		done:         make(chan struct{}),
	}
}

func (s *Service) Start() {
	go s.runLoop()
}

func (s *Service) Stop() {
	close(s.done)
}

// Orchestrator exposes the underlying orchestrator for manual runs
func (s *Service) Orchestrator() *Orchestrator {
	return s.orchestrator
}

func (s *Service) runLoop() {
	s.logger.Printf("Starting fetch scheduler")

	for {
		now := time.Now()
		next := s.nextRunTime(now)
		s.logger.Printf("Next scheduled fetch run at %s", next.Format(time.RFC1123))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			s.logger.Printf("Starting scheduled fetch run")
			if _, err := s.orchestrator.RunAll(context.Background()); err != nil {
				if err == ErrAlreadyRunning {
					s.logger.Printf("Skipping scheduled run: previous run still active")
				} else {
					s.logger.Printf("Scheduled fetch run failed: %v", err)
				}
			}
		case <-s.done:
			timer.Stop()
			s.logger.Printf("Fetch scheduler shutting down")
			return
		}
	}
}

// nextRunTime computes the next daily fire time. The schedule is
// re-read from settings each cycle so changes apply without a restart.
func (s *Service) nextRunTime(now time.Time) time.Time {
	hour, minute := s.schedule()
	loc := s.location()

	now = now.In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

func (s *Service) schedule() (int, int) {
	hour, minute := s.hour, s.minute

	if v, err := s.db.GetSetting(context.Background(), "fetch_hour"); err == nil {
		if h, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && h >= 0 && h <= 23 {
			hour = h
		}
	}
	if v, err := s.db.GetSetting(context.Background(), "fetch_minute"); err == nil {
		if m, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && m >= 0 && m <= 59 {
			minute = m
		}
	}

	return hour, minute
}

func (s *Service) location() *time.Location {
	tz, err := s.db.GetSetting(context.Background(), "timezone")
	if err != nil {
		return time.UTC
	}
	loc, err := time.LoadLocation(strings.TrimSpace(tz))
	if err != nil {
		s.logger.Printf("Error loading timezone %q, using UTC: %v", tz, err)
		return time.UTC
	}
	return loc
}
