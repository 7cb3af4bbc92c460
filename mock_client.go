package main

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type mockObject struct {
	body    []byte
	modTime time.Time
}

// MockObjectStore is an in-memory ObjectStore. Errors can be injected per
// bucket/key for every operation.
type MockObjectStore struct {
	lock        sync.Mutex
	objects     map[string]mockObject
	Errors      map[string]error
	PutRequests []MockRequest
	Now         func() time.Time
}

type MockRequest struct {
	DestBucket string
	Key        string
}

func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		objects:     make(map[string]mockObject),
		Errors:      make(map[string]error),
		PutRequests: make([]MockRequest, 0),
		Now:         time.Now,
	}
}

func objectID(bucket, key string) string {
	return bucket + "/" + strings.TrimPrefix(key, "/")
}

// Seed stores an object with an explicit modification time.
func (s *MockObjectStore) Seed(bucket, key string, body []byte, modTime time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.objects[objectID(bucket, key)] = mockObject{body: body, modTime: modTime}
}

func (s *MockObjectStore) Has(bucket, key string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.objects[objectID(bucket, key)]
	return ok
}

func (s *MockObjectStore) lookup(bucket, key string) (mockObject, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.Errors[objectID(bucket, key)]; err != nil {
		return mockObject{}, err
	}
	obj, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return mockObject{}, errors.Wrap(ErrObjectNotFound, objectID(bucket, key))
	}

	return obj, nil
}

func (s *MockObjectStore) ObjectExists(_ context.Context, bucket, key string) (bool, error) {
	_, err := s.lookup(bucket, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}

	return err == nil, err
}

func (s *MockObjectStore) FetchObject(_ context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.lookup(bucket, key)
	return obj.body, err
}

func (s *MockObjectStore) HeadObject(_ context.Context, bucket, key string) (ObjectInfo, error) {
	obj, err := s.lookup(bucket, key)
	return ObjectInfo{ModTime: obj.modTime, Size: int64(len(obj.body))}, err
}

func (s *MockObjectStore) PutObject(_ context.Context, bucket, key string, body []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.PutRequests = append(s.PutRequests, MockRequest{DestBucket: bucket, Key: key})
	if err := s.Errors[objectID(bucket, key)]; err != nil {
		return err
	}
	s.objects[objectID(bucket, key)] = mockObject{body: body, modTime: s.Now()}

	return nil
}

func (s *MockObjectStore) ListKeys(_ context.Context, bucket, prefix string) ([]string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.Errors[objectID(bucket, prefix)]; err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	for id := range s.objects {
		key, ok := strings.CutPrefix(id, bucket+"/")
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	return keys, nil
}

type MockListingRequest struct {
	Connector    string
	RemoteFolder string
	OutputPath   string
}

type MockTransferRequest struct {
	Connector      string
	FilePaths      []string
	LocalDirectory string
}

// MockTransferClient fakes a remote server. Listings of folders present in
// Tree are written to Store as soon as they are started; other folders never
// produce a result.
type MockTransferClient struct {
	lock             sync.Mutex
	Store            *MockObjectStore
	Tree             map[string]ListingResult
	ListingErr       error
	TransferErrs     map[int]error
	ListingRequests  []MockListingRequest
	TransferRequests []MockTransferRequest
}

func NewMockTransferClient(store *MockObjectStore, tree map[string]ListingResult) *MockTransferClient {
	return &MockTransferClient{
		Store:            store,
		Tree:             tree,
		TransferErrs:     make(map[int]error),
		ListingRequests:  make([]MockListingRequest, 0),
		TransferRequests: make([]MockTransferRequest, 0),
	}
}

func (t *MockTransferClient) StartDirectoryListing(_ context.Context, connector, remoteFolder, outputPath string) (ListingHandle, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.ListingErr != nil {
		return ListingHandle{}, t.ListingErr
	}
	t.ListingRequests = append(t.ListingRequests, MockListingRequest{Connector: connector, RemoteFolder: remoteFolder, OutputPath: outputPath})

	listingID := fmt.Sprintf("listing-%d", len(t.ListingRequests))
	handle := ListingHandle{ListingID: listingID, OutputFileName: fmt.Sprintf("%s-%s.json", connector, listingID)}
	if result, ok := t.Tree[remoteFolder]; ok && t.Store != nil {
		body, err := json.Marshal(result)
		if err != nil {
			return ListingHandle{}, err
		}
		bucket, dir, _ := strings.Cut(strings.TrimPrefix(outputPath, "/"), "/")
		t.Store.Seed(bucket, path.Join(dir, handle.OutputFileName), body, t.Store.Now())
	}

	return handle, nil
}

func (t *MockTransferClient) StartFileTransfer(_ context.Context, connector string, filePaths []string, localDirectory string) (string, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	call := len(t.TransferRequests)
	t.TransferRequests = append(t.TransferRequests, MockTransferRequest{Connector: connector, FilePaths: filePaths, LocalDirectory: localDirectory})
	if err := t.TransferErrs[call]; err != nil {
		return "", err
	}

	return fmt.Sprintf("transfer-%d", call+1), nil
}

// TransferredFiles flattens every requested file path in request order.
func (t *MockTransferClient) TransferredFiles() []string {
	t.lock.Lock()
	defer t.lock.Unlock()
	files := make([]string, 0)
	for _, req := range t.TransferRequests {
		files = append(files, req.FilePaths...)
	}

	return files
}
