package main

import (
	"context"
	"path"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// pollListings runs one poll cycle over state.OutputObjects. It either
// resolves the pending listings, asks the caller to wait (WaitingList), hands
// newly discovered folders back in RemoteFolders, or fails once the loop
// counter passes the maximum.
func (o *Orchestrator) pollListings(ctx context.Context, state *WorkflowState, logger *log.Entry) error {
	if state.SyncSetting.RemoteFolders.Recursive {
		return o.pollRecursive(ctx, state, logger)
	}

	return o.pollSingle(ctx, state, logger)
}

func (o *Orchestrator) pollSingle(ctx context.Context, state *WorkflowState, logger *log.Entry) error {
	state.WaitingList = false
	if len(state.OutputObjects) == 0 {
		return nil
	}

	outputObject := state.OutputObjects[0]
	objLogger := logger.WithField("object_key", outputObject)
	exists, err := o.store.ObjectExists(ctx, state.ReportBucket, outputObject)
	switch {
	case err == nil && exists:
		objLogger.Info("Object found in S3")
		state.OutputObjects = state.OutputObjects[1:]
		return nil
	case err == nil:
		objLogger.Info("Object not available yet")
		return o.bumpLoopCounter(state, logger)
	case errors.Is(err, ErrAccessDenied):
		objLogger.WithError(err).Error("Access denied, dropping listing result")
		state.OutputObjects = state.OutputObjects[1:]
		return nil
	default:
		objLogger.WithError(err).Warn("Unexpected error checking listing result, will retry")
		return o.bumpLoopCounter(state, logger)
	}
}

func (o *Orchestrator) pollRecursive(ctx context.Context, state *WorkflowState, logger *log.Entry) error {
	state.RemoteFolders = make([]string, 0)
	state.WaitingList = false

	seen := make(map[string]bool, len(state.Listed))
	for _, folder := range state.Listed {
		seen[folder] = true
	}

	pending := make([]string, 0, len(state.OutputObjects))
	for _, outputObject := range state.OutputObjects {
		objLogger := logger.WithField("output_object", outputObject)
		body, err := o.store.FetchObject(ctx, state.ReportBucket, outputObject)
		if errors.Is(err, ErrObjectNotFound) {
			objLogger.Debug("Listing result not available yet")
			pending = append(pending, outputObject)
			continue
		}
		if errors.Is(err, ErrAccessDenied) {
			objLogger.WithError(err).Error("Access denied, dropping listing result")
			continue
		}
		if err != nil {
			objLogger.WithError(err).Warn("Failed to process output object")
			pending = append(pending, outputObject)
			continue
		}

		result, err := ParseListingResult(body)
		if err != nil {
			objLogger.WithError(err).Warn("Failed to parse output object")
			pending = append(pending, outputObject)
			continue
		}
		for _, p := range result.Paths {
			folder := path.Clean(p.Path)
			if seen[folder] {
				objLogger.WithField("remote_folder", folder).Warn("Folder already listed in this run, skipping")
				continue
			}
			seen[folder] = true
			state.RemoteFolders = append(state.RemoteFolders, folder)
		}
		objLogger.WithField("folders", len(result.Paths)).Info("Processed output object")
	}
	state.OutputObjects = pending

	if len(state.RemoteFolders) == 0 && len(state.OutputObjects) > 0 {
		return o.bumpLoopCounter(state, logger)
	}

	return nil
}

func (o *Orchestrator) bumpLoopCounter(state *WorkflowState, logger *log.Entry) error {
	state.LoopCounter++
	if state.LoopCounter > o.maxLoopCount {
		state.WaitingList = false
		err := &BoundExceededError{
			Connector:   state.Connector,
			Setting:     state.SyncSetting.String(),
			LoopCounter: state.LoopCounter,
			Max:         o.maxLoopCount,
		}
		logger.Error(err)
		return err
	}
	state.WaitingList = true

	return nil
}
