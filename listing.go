package main

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ListingResult is the document the listing service writes once a remote
// directory has been enumerated.
type ListingResult struct {
	Files []RemoteFileEntry  `json:"files"`
	Paths []RemoteFolderPath `json:"paths"`
}

type RemoteFileEntry struct {
	FilePath          string `json:"filePath"`
	ModifiedTimestamp string `json:"modifiedTimestamp"`
	Size              int64  `json:"size,omitempty"`
}

type RemoteFolderPath struct {
	Path string `json:"path"`
}

func ParseListingResult(body []byte) (ListingResult, error) {
	var result ListingResult
	err := json.Unmarshal(body, &result)
	return result, err
}

// ModTime parses the ISO-8601 timestamp reported by the remote listing.
func (f RemoteFileEntry) ModTime() (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, f.ModifiedTimestamp); err == nil {
		return ts.UTC(), nil
	}
	ts, err := dateparse.ParseIn(f.ModifiedTimestamp, time.UTC)
	if err != nil {
		return time.Time{}, err
	}

	return ts.UTC(), nil
}

// ExpandFolderPlaceholders substitutes %year%, %month% and %day% with the
// UTC date of now.
func ExpandFolderPlaceholders(folder string, now time.Time) string {
	now = now.UTC()
	return strings.NewReplacer(
		"%year%", now.Format("2006"),
		"%month%", now.Format("01"),
		"%day%", now.Format("02"),
	).Replace(folder)
}

// OutputDirectory is where listing results of this run are written, relative
// to the report bucket. It is unique per sync setting within an execution.
func (s *WorkflowState) OutputDirectory() string {
	return path.Join(s.Name, s.SyncSetting.SafeFolder()+"-"+s.SyncSetting.ID(), s.ExecutionID)
}

// issueListings starts one listing per folder and records the pending
// references in state.OutputObjects. A rejected request aborts the run.
func (o *Orchestrator) issueListings(ctx context.Context, state *WorkflowState, folders []string, logger *log.Entry) error {
	outputDir := state.OutputDirectory()
	for _, folder := range folders {
		remoteFolder := ExpandFolderPlaceholders(folder, o.clock.Now())
		handle, err := o.transfer.StartDirectoryListing(ctx, state.Connector, remoteFolder, "/"+path.Join(state.ReportBucket, outputDir))
		if err != nil {
			logger.WithField("remote_folder", remoteFolder).Error(err)
			return &ListingRejectedError{Connector: state.Connector, Folder: remoteFolder, Err: err}
		}

		outputObject := path.Join(outputDir, handle.OutputFileName)
		state.OutputObjects = append(state.OutputObjects, outputObject)
		state.Listed = append(state.Listed, path.Clean(remoteFolder))
		logger.WithFields(log.Fields{
			"remote_folder": remoteFolder,
			"output_object": outputObject,
			"listing_id":    handle.ListingID,
		}).Info("Directory listing started")
	}

	return nil
}
