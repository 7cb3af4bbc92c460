package main

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var safeTime = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testSetting() SyncSetting {
	return SyncSetting{
		LocalRepository: LocalRepository{BucketName: testDestBucket, Prefix: "incoming"},
		RemoteFolders:   RemoteFolders{Folder: "/outbound"},
	}
}

func TestFirstCopySelectsEverything(t *testing.T) {
	store := NewMockObjectStore()
	o := newTestOrchestrator(store, NewMockTransferClient(store, nil))
	setting := testSetting()
	files := []RemoteFileEntry{
		{FilePath: "/outbound/a", ModifiedTimestamp: "2020-01-01T00:00:00Z"},
		{FilePath: "/outbound/b", ModifiedTimestamp: "2024-06-01T00:00:00Z"},
		{FilePath: "/outbound/c", ModifiedTimestamp: "not a timestamp"},
	}
	logger := newTestState("/outbound", false).logger()

	firstCopy := o.checkFirstCopy(context.Background(), setting, logger)
	selected := o.selectFiles(context.Background(), setting, files, firstCopy, safeTime, logger)

	assert.True(t, firstCopy)
	assert.Equal(t, []string{"/outbound/a", "/outbound/b", "/outbound/c"}, selected)
}

func TestCheckFirstCopy(t *testing.T) {
	store := NewMockObjectStore()
	o := newTestOrchestrator(store, NewMockTransferClient(store, nil))
	setting := testSetting()
	logger := newTestState("/outbound", false).logger()

	assert.True(t, o.checkFirstCopy(context.Background(), setting, logger))

	assert.NoError(t, o.createMarker(context.Background(), setting, logger))
	assert.NoError(t, o.createMarker(context.Background(), setting, logger))
	assert.False(t, o.checkFirstCopy(context.Background(), setting, logger))
	assert.Equal(t, []MockRequest{
		{DestBucket: testDestBucket, Key: "incoming/outbound.flag"},
		{DestBucket: testDestBucket, Key: "incoming/outbound.flag"},
	}, store.PutRequests)

	store.Errors[testDestBucket+"/incoming/outbound.flag"] = errors.New("slow down")
	assert.True(t, o.checkFirstCopy(context.Background(), setting, logger))
}

func TestShouldTransfer(t *testing.T) {
	cases := []struct {
		name      string
		timestamp string
		dest      *time.Time
		destErr   error
		expected  bool
	}{
		{name: "older than window", timestamp: "2024-05-31T23:59:59Z", expected: false},
		{name: "equal to window", timestamp: "2024-06-01T00:00:00Z", expected: false},
		{name: "new and never copied", timestamp: "2024-06-01T00:00:01Z", expected: true},
		{name: "destination is newer", timestamp: "2024-06-01T00:00:01Z", dest: timePtr(safeTime.Add(2 * time.Second)), expected: false},
		{name: "destination has same time", timestamp: "2024-06-01T00:00:01Z", dest: timePtr(safeTime.Add(time.Second)), expected: false},
		{name: "destination is stale", timestamp: "2024-06-01T10:00:00Z", dest: timePtr(safeTime.Add(time.Hour)), expected: true},
		{name: "destination probe fails", timestamp: "2024-06-01T10:00:00Z", destErr: errors.New("internal error"), expected: true},
		{name: "destination forbidden", timestamp: "2024-06-01T10:00:00Z", destErr: errors.Wrap(ErrAccessDenied, "head"), expected: true},
		{name: "unparsable timestamp", timestamp: "???", expected: true},
		{name: "fractional seconds", timestamp: "2024-06-01T00:00:00.5Z", expected: true},
		{name: "space separated timestamp", timestamp: "2024-05-30 10:00:00", expected: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMockObjectStore()
			o := newTestOrchestrator(store, NewMockTransferClient(store, nil))
			setting := testSetting()
			if tc.dest != nil {
				store.Seed(testDestBucket, "incoming/outbound/file.csv", []byte("x"), *tc.dest)
			}
			if tc.destErr != nil {
				store.Errors[testDestBucket+"/incoming/outbound/file.csv"] = tc.destErr
			}
			file := RemoteFileEntry{FilePath: "/outbound/file.csv", ModifiedTimestamp: tc.timestamp}

			got := o.shouldTransfer(context.Background(), setting, file, false, safeTime, newTestState("/outbound", false).logger())

			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestSelectFilesIsIdempotent(t *testing.T) {
	store := NewMockObjectStore()
	o := newTestOrchestrator(store, NewMockTransferClient(store, nil))
	setting := testSetting()
	store.Seed(testDestBucket, "incoming/outbound/done.csv", []byte("x"), safeTime.Add(3*time.Hour))
	files := []RemoteFileEntry{
		{FilePath: "/outbound/done.csv", ModifiedTimestamp: "2024-06-01T02:00:00Z"},
		{FilePath: "/outbound/todo.csv", ModifiedTimestamp: "2024-06-01T02:00:00Z"},
		{FilePath: "/outbound/old.csv", ModifiedTimestamp: "2024-05-01T02:00:00Z"},
	}
	logger := newTestState("/outbound", false).logger()

	first := o.selectFiles(context.Background(), setting, files, false, safeTime, logger)
	second := o.selectFiles(context.Background(), setting, files, false, safeTime, logger)

	assert.Equal(t, []string{"/outbound/todo.csv"}, first)
	assert.Equal(t, first, second)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
