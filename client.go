package main

import (
	"context"
	"time"
)

// ObjectStore is the storage surface the sync engine needs: existence and
// read probes for listing results, timestamp probes for destination objects,
// and a put for the first-copy marker.
type ObjectStore interface {
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
	FetchObject(ctx context.Context, bucket, key string) ([]byte, error)
	HeadObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
	PutObject(ctx context.Context, bucket, key string, body []byte) error
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// TransferClient starts asynchronous operations on a remote server reached
// through a connector. Neither call waits for the operation to finish.
type TransferClient interface {
	StartDirectoryListing(ctx context.Context, connector, remoteFolderPath, outputPath string) (ListingHandle, error)
	StartFileTransfer(ctx context.Context, connector string, filePaths []string, localDirectoryPath string) (string, error)
}

type ObjectInfo struct {
	ModTime time.Time
	Size    int64
}

// ListingHandle identifies a listing that was accepted by the remote side.
// Its result is written later to OutputPath/OutputFileName.
type ListingHandle struct {
	ListingID      string
	OutputFileName string
}
