package main

import (
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

var (
	// ErrObjectNotFound means the object does not exist (yet).
	ErrObjectNotFound = errors.New("object not found")

	// ErrAccessDenied means the caller may never read the object.
	ErrAccessDenied = errors.New("access denied")
)

// BoundExceededError is returned when a listing never materialized within
// the allowed number of poll cycles.
type BoundExceededError struct {
	Connector   string
	Setting     string
	LoopCounter int
	Max         int
}

func (e *BoundExceededError) Error() string {
	return fmt.Sprintf(
		"loop counter exceeded maximum allowed attempts (%d > %d) for %s, please check the connector logs, connector-id: %s",
		e.LoopCounter, e.Max, e.Setting, e.Connector,
	)
}

// ListingRejectedError is returned when the remote side refuses to start a
// directory listing.
type ListingRejectedError struct {
	Connector string
	Folder    string
	Err       error
}

func (e *ListingRejectedError) Error() string {
	return fmt.Sprintf("connector %s rejected listing of %s: %v", e.Connector, e.Folder, e.Err)
}

func (e *ListingRejectedError) Unwrap() error { return e.Err }

func IsBoundExceeded(err error) bool {
	var boundErr *BoundExceededError
	return errors.As(err, &boundErr)
}

// classifyAWSError maps SDK errors onto ErrObjectNotFound and ErrAccessDenied
// so callers never need to look at service specific codes.
func classifyAWSError(err error, op, bucket, key string) error {
	if err == nil {
		return nil
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return errors.Wrapf(ErrObjectNotFound, "%s %s/%s", op, bucket, key)
		case http.StatusForbidden:
			return errors.Wrapf(ErrAccessDenied, "%s %s/%s: %v", op, bucket, key, err)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return errors.Wrapf(ErrObjectNotFound, "%s %s/%s", op, bucket, key)
		case "AccessDenied", "Forbidden":
			return errors.Wrapf(ErrAccessDenied, "%s %s/%s: %v", op, bucket, key, err)
		}
	}

	return errors.Wrapf(err, "%s %s/%s", op, bucket, key)
}
