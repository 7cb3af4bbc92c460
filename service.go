package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Service runs every sync setting of a connector once per schedule firing.
type Service struct {
	Orchestrator *Orchestrator
	Notifier     Notifier
	Clock        clockwork.Clock
	PollInterval time.Duration
	Concurrency  int

	lock   sync.Mutex
	served map[string]time.Time
}

func NewService(appConfig AppConfig, store ObjectStore, transfer TransferClient, notifier Notifier, clock clockwork.Clock) *Service {
	return &Service{
		Orchestrator: NewOrchestrator(store, transfer,
			WithClock(clock),
			WithMaxLoopCount(appConfig.MaxLoopCount),
			WithBatchSize(appConfig.BatchSize)),
		Notifier:     notifier,
		Clock:        clock,
		PollInterval: appConfig.PollInterval(),
		Concurrency:  appConfig.Concurrency,
	}
}

// NewWorkflowStates builds the initial state of every sync setting for one
// firing. They share the execution id, start time and schedule.
func NewWorkflowStates(conn ConnectorConfig, executionID string, start, scheduled time.Time) []*WorkflowState {
	states := make([]*WorkflowState, 0, len(conn.SyncSettings))
	for _, setting := range conn.SyncSettings {
		states = append(states, &WorkflowState{
			ExecutionID:   executionID,
			Name:          conn.Name,
			Connector:     conn.Connector,
			ReportBucket:  conn.ReportBucket,
			Schedule:      conn.Schedule,
			StartTime:     start.UTC(),
			ScheduledTime: scheduled.UTC(),
			SyncSetting:   setting,
		})
	}

	return states
}

// RunConnector runs one firing of conn. Sync settings run in parallel up to
// the configured concurrency and never affect each other. A zero scheduled
// means the latest firing at or before now.
func (s *Service) RunConnector(ctx context.Context, conn ConnectorConfig, scheduled time.Time) []RunResult {
	executionID := uuid.NewString()
	start := s.Clock.Now().UTC()
	logger := log.WithFields(log.Fields{"execution_id": executionID, "name": conn.Name, "connector": conn.Connector})
	logger.Info(fmt.Sprintf("Sync starting for %d sync settings.", len(conn.SyncSettings)))

	states := NewWorkflowStates(conn, executionID, start, scheduled)
	results := make([]RunResult, len(states))
	runner := &Runner{Orchestrator: s.Orchestrator, PollInterval: s.PollInterval, Clock: s.Clock}

	var g errgroup.Group
	g.SetLimit(s.Concurrency)
	for i, state := range states {
		g.Go(func() error {
			results[i] = runner.Run(ctx, state)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, result := range results {
		if !result.Succeeded() {
			failed++
			logger.WithError(result.Err).WithField("setting", result.Setting.String()).Error("Sync setting failed")
		}
	}
	logger.Info(fmt.Sprintf("Sync complete for %s. %d of %d sync settings failed. Took %s",
		conn.Name, failed, len(results), s.Clock.Since(start).String()))

	if s.Notifier != nil {
		if err := s.Notifier.NotifyRunResults(conn, executionID, results); err != nil {
			logger.WithError(err).Warn("Unable to publish run notification")
		}
	}

	return results
}

// Schedule registers one job per connector. Jobs run in singleton mode so a
// firing never overlaps the previous run of the same connector.
func (s *Service) Schedule(ctx context.Context, scheduler *gocron.Scheduler, connectors []ConnectorConfig) error {
	for _, conn := range connectors {
		schedule, err := ParseSchedule(conn.Schedule)
		if err != nil {
			return err
		}

		_, err = scheduler.Cron(schedule.Standard()).SingletonMode().Do(func() {
			if !schedule.MatchesYear(s.Clock.Now()) {
				log.WithField("name", conn.Name).Debug("Schedule year does not match, skipping firing")
				return
			}
			s.RunConnector(ctx, conn, s.firingToServe(conn.Name, schedule, s.Clock.Now()))
		})
		if err != nil {
			return fmt.Errorf("Error scheduling connector %s: %w", conn.Name, err)
		}
		log.Info(fmt.Sprintf("Scheduled connector %s with %q", conn.Name, schedule.Expression))
	}

	return nil
}

// firingToServe returns the firing a scheduled run of connector name serves.
// It is normally the latest firing at or before now. When firings were missed
// since the last served one (e.g. skipped while the previous run was still
// going) the first missed firing is served instead so the window widens.
func (s *Service) firingToServe(name string, schedule *Schedule, now time.Time) time.Time {
	latest, err := schedule.Latest(now)
	if err != nil {
		return time.Time{}
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.served == nil {
		s.served = make(map[string]time.Time)
	}
	scheduled := latest
	if last, ok := s.served[name]; ok {
		if next := schedule.Next(last); !next.IsZero() && next.Before(latest) {
			scheduled = next
		}
	}
	s.served[name] = latest

	return scheduled
}
