package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// checkFirstCopy reports whether the destination has never completed a sync,
// i.e. its marker object is missing.
func (o *Orchestrator) checkFirstCopy(ctx context.Context, setting SyncSetting, logger *log.Entry) bool {
	exists, err := o.store.ObjectExists(ctx, setting.LocalRepository.BucketName, setting.MarkerKey())
	if err != nil {
		logger.WithError(err).Warn("Unable to probe first copy marker, treating destination as never synced")
		return true
	}
	if exists {
		logger.Info("This is not the first copy for this destination.")
		return false
	}
	logger.Info("This is the first copy for this destination, everything will be copied.")

	return true
}

// createMarker records that the destination completed its first copy.
// Overwriting an existing marker is harmless.
func (o *Orchestrator) createMarker(ctx context.Context, setting SyncSetting, logger *log.Entry) error {
	key := setting.MarkerKey()
	if err := o.store.PutObject(ctx, setting.LocalRepository.BucketName, key, []byte{}); err != nil {
		return errors.Wrap(err, "create first copy marker")
	}
	logger.WithField("marker", key).Info("Created first copy marker")

	return nil
}

// selectFiles decides which files of one listing must be transferred.
func (o *Orchestrator) selectFiles(
	ctx context.Context,
	setting SyncSetting,
	files []RemoteFileEntry,
	firstCopy bool,
	safeTimeCompare time.Time,
	logger *log.Entry,
) []string {
	selected := make([]string, 0)
	for _, file := range files {
		if o.shouldTransfer(ctx, setting, file, firstCopy, safeTimeCompare, logger.WithField("file", file.FilePath)) {
			selected = append(selected, file.FilePath)
		}
	}

	return selected
}

func (o *Orchestrator) shouldTransfer(
	ctx context.Context,
	setting SyncSetting,
	file RemoteFileEntry,
	firstCopy bool,
	safeTimeCompare time.Time,
	logger *log.Entry,
) bool {
	if firstCopy {
		return true
	}

	fileTime, err := file.ModTime()
	if err != nil {
		logger.WithError(err).Warn("Unparsable modification time, transferring anyway")
		return true
	}
	if !fileTime.After(safeTimeCompare) {
		logger.Debug("File is not new")
		return false
	}

	dest, err := o.store.HeadObject(ctx, setting.LocalRepository.BucketName, setting.DestinationKey(file.FilePath))
	if errors.Is(err, ErrObjectNotFound) {
		logger.Info("File has not been copied before")
		return true
	}
	if err != nil {
		logger.WithError(err).Warn("Unable to probe destination object, transferring anyway")
		return true
	}
	if fileTime.After(dest.ModTime) {
		logger.Info("File has been modified since last copy")
		return true
	}
	logger.Debug("File has not been modified since last copy")

	return false
}
