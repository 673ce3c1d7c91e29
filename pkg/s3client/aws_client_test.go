package s3client

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockUploader is a mock implementation of uploader for testing
type mockUploader struct {
	uploadFunc func(ctx context.Context, input *s3.PutObjectInput) error
	bodies     []string
}

func (m *mockUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.bodies = append(m.bodies, string(data))
	if m.uploadFunc != nil {
		if err := m.uploadFunc(ctx, input); err != nil {
			return nil, err
		}
	}
	return &manager.UploadOutput{}, nil
}

func fastRetry() retryPolicy {
	return retryPolicy{maxRetries: 3, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond}
}

func TestPutObject(t *testing.T) {
	var gotBucket, gotKey, gotType string
	up := &mockUploader{uploadFunc: func(ctx context.Context, input *s3.PutObjectInput) error {
		gotBucket = aws.ToString(input.Bucket)
		gotKey = aws.ToString(input.Key)
		gotType = aws.ToString(input.ContentType)
		return nil
	}}
	c := &AWSClient{uploader: up, retry: fastRetry()}

	err := c.PutObject(context.Background(), &PutObjectRequest{
		Bucket:      "reports",
		Key:         "mirror/run.json",
		Body:        []byte(`{"ok":true}`),
		ContentType: "application/json",
	})
	require.NoError(t, err)
	assert.Equal(t, "reports", gotBucket)
	assert.Equal(t, "mirror/run.json", gotKey)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, []string{`{"ok":true}`}, up.bodies)
}

func TestPutObjectRetriesThrottling(t *testing.T) {
	attempts := 0
	up := &mockUploader{uploadFunc: func(ctx context.Context, input *s3.PutObjectInput) error {
		attempts++
		if attempts < 3 {
			return &smithy.GenericAPIError{Code: "SlowDown"}
		}
		return nil
	}}
	c := &AWSClient{uploader: up, retry: fastRetry()}

	require.NoError(t, c.PutObject(context.Background(), &PutObjectRequest{Bucket: "b", Key: "k", Body: []byte("body")}))
	assert.Equal(t, 3, attempts)
	// every attempt sends the full body again
	assert.Equal(t, []string{"body", "body", "body"}, up.bodies)
}

func TestPutObjectDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	up := &mockUploader{uploadFunc: func(ctx context.Context, input *s3.PutObjectInput) error {
		attempts++
		return &smithy.GenericAPIError{Code: "AccessDenied"}
	}}
	c := &AWSClient{uploader: up, retry: fastRetry()}

	err := c.PutObject(context.Background(), &PutObjectRequest{Bucket: "b", Key: "k"})
	assert.ErrorContains(t, err, "AccessDenied")
	assert.Equal(t, 1, attempts)
}

func TestPutObjectGivesUp(t *testing.T) {
	attempts := 0
	up := &mockUploader{uploadFunc: func(ctx context.Context, input *s3.PutObjectInput) error {
		attempts++
		return &smithy.GenericAPIError{Code: "ServiceUnavailable"}
	}}
	c := &AWSClient{uploader: up, retry: fastRetry()}

	err := c.PutObject(context.Background(), &PutObjectRequest{Bucket: "b", Key: "k"})
	assert.ErrorContains(t, err, "max retries exceeded")
	assert.Equal(t, 4, attempts)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, true},
		{"request timeout", &smithy.GenericAPIError{Code: "RequestTimeout"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	p := retryPolicy{maxRetries: 10, baseDelay: 100 * time.Millisecond, maxDelay: time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.delay(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
	first := p.delay(0)
	assert.GreaterOrEqual(t, first, 75*time.Millisecond)
	assert.LessOrEqual(t, first, 125*time.Millisecond)
}
