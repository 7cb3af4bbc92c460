package main

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Phase string

const (
	PhaseList      Phase = "List"
	PhasePoll      Phase = "Poll"
	PhaseSync      Phase = "Sync"
	PhaseSucceeded Phase = "Succeeded"
	PhaseFailed    Phase = "Failed"
)

// StepOutcome tells the driver what to do after a step.
type StepOutcome int

const (
	// StepContinue means run the next step right away.
	StepContinue StepOutcome = iota
	// StepWait means suspend for the poll interval, then run the next step.
	StepWait
	// StepDone means the run reached Succeeded or Failed.
	StepDone
)

// WorkflowState is everything a sync setting run carries from one
// invocation to the next. It is plain data so it can be suspended anywhere.
type WorkflowState struct {
	ExecutionID   string      `json:"ExecutionId"`
	Name          string      `json:"Name"`
	Connector     string      `json:"Connector"`
	ReportBucket  string      `json:"ReportBucket"`
	Schedule      string      `json:"Schedule"`
	StartTime     time.Time   `json:"StartTime"`
	ScheduledTime time.Time   `json:"ScheduledTime,omitempty"`
	SyncSetting   SyncSetting `json:"SyncSetting"`

	Phase         Phase    `json:"Phase"`
	OutputObjects []string `json:"OutputObjects"`
	RemoteFolders []string `json:"RemoteFolders"`
	Listed        []string `json:"Listed"`
	LoopCounter   int      `json:"LoopCounter"`
	WaitingList   bool     `json:"WaitingList"`
	Error         string   `json:"Error,omitempty"`
}

// SyncReport summarizes the diff and transfer phase.
type SyncReport struct {
	FirstCopy       bool
	SafeTimeCompare time.Time
	Listings        int
	FilesListed     int
	FilesSelected   int
	BatchesIssued   int
	BatchesFailed   int
}

type Orchestrator struct {
	store        ObjectStore
	transfer     TransferClient
	clock        clockwork.Clock
	maxLoopCount int
	batchSize    int
}

type OrchestratorOption func(*Orchestrator)

func WithClock(clock clockwork.Clock) OrchestratorOption {
	return func(o *Orchestrator) { o.clock = clock }
}

func WithMaxLoopCount(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxLoopCount = n }
}

func WithBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.batchSize = n }
}

func NewOrchestrator(store ObjectStore, transfer TransferClient, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		transfer:     transfer,
		clock:        clockwork.NewRealClock(),
		maxLoopCount: 10,
		batchSize:    10,
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (s *WorkflowState) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"execution_id": s.ExecutionID,
		"name":         s.Name,
		"connector":    s.Connector,
		"folder":       s.SyncSetting.RemoteFolders.Folder,
	})
}

// Step advances state by one invocation cycle. It never blocks on the remote
// side: when a listing is not ready it returns StepWait and expects to be
// called again with the same state later.
func (o *Orchestrator) Step(ctx context.Context, state *WorkflowState) (StepOutcome, *SyncReport, error) {
	logger := state.logger()

	switch state.Phase {
	case "", PhaseList:
		folders := state.RemoteFolders
		if state.Phase == "" {
			folders = []string{state.SyncSetting.RemoteFolders.Folder}
			state.LoopCounter = 0
		}
		if err := o.issueListings(ctx, state, folders, logger); err != nil {
			return o.fail(state, err)
		}
		state.RemoteFolders = nil
		state.Phase = PhasePoll
		logger.WithField("output_objects", state.OutputObjects).Info("Directory listing completed successfully")
		return StepWait, nil, nil

	case PhasePoll:
		if err := o.pollListings(ctx, state, logger); err != nil {
			return o.fail(state, err)
		}
		logger.WithFields(log.Fields{
			"waiting_list": state.WaitingList,
			"loop_counter": state.LoopCounter,
		}).Info("Processing completed")
		switch {
		case state.WaitingList:
			return StepWait, nil, nil
		case len(state.RemoteFolders) > 0:
			state.Phase = PhaseList
		default:
			state.Phase = PhaseSync
		}
		return StepContinue, nil, nil

	case PhaseSync:
		report, err := o.syncFiles(ctx, state, logger)
		if err != nil {
			return o.fail(state, err)
		}
		state.Phase = PhaseSucceeded
		return StepDone, report, nil

	case PhaseSucceeded:
		return StepDone, nil, nil

	case PhaseFailed:
		return StepDone, nil, errors.New(state.Error)

	default:
		return o.fail(state, errors.Errorf("unknown phase %q", state.Phase))
	}
}

func (o *Orchestrator) fail(state *WorkflowState, err error) (StepOutcome, *SyncReport, error) {
	state.Phase = PhaseFailed
	state.WaitingList = false
	state.Error = err.Error()

	return StepDone, nil, err
}

// syncFiles diffs every listing result of this run against the destination
// and starts transfers for what is new.
func (o *Orchestrator) syncFiles(ctx context.Context, state *WorkflowState, logger *log.Entry) (*SyncReport, error) {
	schedule, err := ParseSchedule(state.Schedule)
	if err != nil {
		return nil, err
	}
	safeTimeCompare, err := SafeTimeCompareFor(schedule, state.ScheduledTime, state.StartTime)
	if err != nil {
		return nil, errors.Wrap(err, "calculate safe time compare")
	}

	keys, err := o.store.ListKeys(ctx, state.ReportBucket, state.OutputDirectory()+"/")
	if err != nil {
		return nil, errors.Wrap(err, "list listing results")
	}

	report := &SyncReport{SafeTimeCompare: safeTimeCompare}
	report.FirstCopy = o.checkFirstCopy(ctx, state.SyncSetting, logger)
	logger = logger.WithFields(log.Fields{
		"first_copy":        report.FirstCopy,
		"safe_time_compare": safeTimeCompare.Format(time.RFC3339),
	})

	for _, key := range keys {
		objLogger := logger.WithField("output_object", key)
		body, err := o.store.FetchObject(ctx, state.ReportBucket, key)
		if err != nil {
			objLogger.WithError(err).Error("Error processing listing result")
			continue
		}
		result, err := ParseListingResult(body)
		if err != nil {
			objLogger.WithError(err).Error("Error parsing listing result")
			continue
		}
		report.Listings++
		if len(result.Files) == 0 {
			objLogger.Info("No files found in listing result")
			continue
		}

		report.FilesListed += len(result.Files)
		selected := o.selectFiles(ctx, state.SyncSetting, result.Files, report.FirstCopy, safeTimeCompare, objLogger)
		report.FilesSelected += len(selected)
		issued, failed := o.transferFiles(ctx, state, selected, objLogger)
		report.BatchesIssued += issued
		report.BatchesFailed += failed
	}

	if report.FirstCopy && report.Listings > 0 {
		if err := o.createMarker(ctx, state.SyncSetting, logger); err != nil {
			logger.WithError(err).Error("Error creating first copy marker")
		}
	}

	logger.WithFields(log.Fields{
		"listings": report.Listings,
		"listed":   report.FilesListed,
		"selected": report.FilesSelected,
		"batches":  report.BatchesIssued,
	}).Info("Sync completed")

	return report, nil
}

// Runner drives Step until the run is done, sleeping between waiting cycles.
type Runner struct {
	Orchestrator *Orchestrator
	PollInterval time.Duration
	Clock        clockwork.Clock
}

// RunResult is the terminal outcome of one sync setting run.
type RunResult struct {
	Connector string
	Name      string
	Setting   SyncSetting
	Phase     Phase
	Report    *SyncReport
	Err       error
	Duration  time.Duration
}

func (r RunResult) Succeeded() bool {
	return r.Phase == PhaseSucceeded
}

func (r *Runner) Run(ctx context.Context, state *WorkflowState) RunResult {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	started := clock.Now()
	result := RunResult{Connector: state.Connector, Name: state.Name, Setting: state.SyncSetting}

	for {
		outcome, report, err := r.Orchestrator.Step(ctx, state)
		if outcome == StepDone {
			result.Phase = state.Phase
			result.Report = report
			result.Err = err
			result.Duration = clock.Since(started)
			return result
		}
		if outcome == StepContinue {
			continue
		}

		select {
		case <-ctx.Done():
			r.Orchestrator.fail(state, errors.Wrap(ctx.Err(), "run cancelled"))
			result.Phase = state.Phase
			result.Err = errors.New(state.Error)
			result.Duration = clock.Since(started)
			return result
		case <-clock.After(r.PollInterval):
		}
	}
}
