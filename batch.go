package main

import (
	"context"
	"path"

	log "github.com/sirupsen/logrus"
)

// partition splits paths into consecutive chunks of at most size entries.
func partition(paths []string, size int) [][]string {
	chunks := make([][]string, 0, (len(paths)+size-1)/size)
	for start := 0; start < len(paths); start += size {
		end := start + size
		if end > len(paths) {
			end = len(paths)
		}
		chunks = append(chunks, paths[start:end])
	}

	return chunks
}

// transferFiles issues one transfer per batch. Every file of a listing shares
// the parent directory of the first one. Batches are independent, so a
// rejected batch is logged and counted but does not stop the others.
func (o *Orchestrator) transferFiles(ctx context.Context, state *WorkflowState, paths []string, logger *log.Entry) (issued, failed int) {
	if len(paths) == 0 {
		return 0, 0
	}

	repo := state.SyncSetting.LocalRepository
	localDirectory := "/" + path.Join(repo.BucketName, repo.Prefix, path.Dir(paths[0]))
	for _, chunk := range partition(paths, o.batchSize) {
		transferID, err := o.transfer.StartFileTransfer(ctx, state.Connector, chunk, localDirectory)
		if err != nil {
			logger.WithError(err).WithField("files", chunk).Error("Error starting file transfer")
			failed++
			continue
		}
		issued++
		logger.WithFields(log.Fields{
			"transfer_id":     transferID,
			"local_directory": localDirectory,
		}).Infof("Started file transfer for %d files", len(chunk))
	}

	return issued, failed
}
