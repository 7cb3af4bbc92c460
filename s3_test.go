package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	S3API
	headErrs map[string]error
	heads    map[string]*s3.HeadObjectOutput
	pages    []*s3.ListObjectsV2Output
	listed   []*s3.ListObjectsV2Input
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)
	if err := f.headErrs[key]; err != nil {
		return nil, err
	}
	if out, ok := f.heads[key]; ok {
		return out, nil
	}

	return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listed = append(f.listed, params)
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func responseError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("api error"),
		},
		RequestID: "req-1",
	}
}

func TestClassifyAWSError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		notFound bool
		denied   bool
	}{
		{name: "not found code", err: &smithy.GenericAPIError{Code: "NotFound"}, notFound: true},
		{name: "no such key code", err: &smithy.GenericAPIError{Code: "NoSuchKey"}, notFound: true},
		{name: "access denied code", err: &smithy.GenericAPIError{Code: "AccessDenied"}, denied: true},
		{name: "404 response", err: responseError(http.StatusNotFound), notFound: true},
		{name: "403 response", err: responseError(http.StatusForbidden), denied: true},
		{name: "500 response", err: responseError(http.StatusInternalServerError)},
		{name: "throttled", err: &smithy.GenericAPIError{Code: "SlowDown"}},
		{name: "plain error", err: errors.New("dial tcp: timeout")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyAWSError(tc.err, "head", "bucket", "key")
			require.Error(t, err)
			assert.Equal(t, tc.notFound, errors.Is(err, ErrObjectNotFound))
			assert.Equal(t, tc.denied, errors.Is(err, ErrAccessDenied))
			assert.Contains(t, err.Error(), "bucket/key")
		})
	}

	assert.NoError(t, classifyAWSError(nil, "head", "bucket", "key"))
}

func TestS3ObjectExists(t *testing.T) {
	fake := &fakeS3{
		headErrs: map[string]error{"secret.json": &smithy.GenericAPIError{Code: "AccessDenied"}},
		heads:    map[string]*s3.HeadObjectOutput{"ready.json": {}},
	}
	client := NewS3Client(fake)

	exists, err := client.ObjectExists(context.Background(), "bucket", "/ready.json")
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.ObjectExists(context.Background(), "bucket", "pending.json")
	assert.NoError(t, err)
	assert.False(t, exists)

	_, err = client.ObjectExists(context.Background(), "bucket", "secret.json")
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestS3HeadObject(t *testing.T) {
	modified := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeS3{heads: map[string]*s3.HeadObjectOutput{
		"incoming/a.csv": {LastModified: aws.Time(modified), ContentLength: aws.Int64(42)},
	}}
	client := NewS3Client(fake)

	info, err := client.HeadObject(context.Background(), "bucket", "incoming/a.csv")
	assert.NoError(t, err)
	assert.Equal(t, ObjectInfo{ModTime: modified, Size: 42}, info)

	_, err = client.HeadObject(context.Background(), "bucket", "incoming/b.csv")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestS3ListKeysFollowsPages(t *testing.T) {
	fake := &fakeS3{pages: []*s3.ListObjectsV2Output{
		{
			Contents:              []types.Object{{Key: aws.String("run/1.json")}, {Key: aws.String("run/2.json")}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("page-2"),
		},
		{
			Contents:    []types.Object{{Key: aws.String("run/3.json")}},
			IsTruncated: aws.Bool(false),
		},
	}}
	client := NewS3Client(fake)

	keys, err := client.ListKeys(context.Background(), "bucket", "run/")

	assert.NoError(t, err)
	assert.Equal(t, []string{"run/1.json", "run/2.json", "run/3.json"}, keys)
	require.Len(t, fake.listed, 2)
	assert.Equal(t, "run/", aws.ToString(fake.listed[0].Prefix))
	assert.Equal(t, "page-2", aws.ToString(fake.listed[1].ContinuationToken))
}
