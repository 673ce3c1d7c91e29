package report

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuya-takeyama/mirror-sync/pkg/executor"
	"github.com/yuya-takeyama/mirror-sync/pkg/fserr"
	"github.com/yuya-takeyama/mirror-sync/pkg/logger"
	"github.com/yuya-takeyama/mirror-sync/pkg/reconciler"
	"github.com/yuya-takeyama/mirror-sync/pkg/s3client"
)

func sampleReport() *reconciler.Report {
	started := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	return &reconciler.Report{
		Source:      "/src",
		Replica:     "/dst",
		StartedAt:   started,
		Duration:    1500 * time.Millisecond,
		DirsVisited: 3,
		Result: executor.Result{
			Stats: executor.Stats{Created: 1, Copied: 1, Deleted: 1, BytesCopied: 7},
			Records: []executor.FileRecord{
				{Record: logger.Record{Kind: logger.KindCreate, Path: "/src/a.txt"}, Source: "/src/a.txt", Target: "/dst/a.txt", Size: 3},
				{Record: logger.Record{Kind: logger.KindCopy, Path: "/src/b.txt"}, Source: "/src/b.txt", Target: "/dst/b.txt", Size: 4},
				{Record: logger.Record{Kind: logger.KindDelete, Path: "/dst/c.txt"}, Target: "/dst/c.txt", Size: 9},
			},
			Failures: []executor.Failure{
				{Op: "copy", Path: "/src/d.txt", Kind: fserr.KindPermissionDenied, Err: fserr.Wrap("copy", "/src/d.txt", fs.ErrPermission)},
			},
		},
	}
}

func TestFromReport(t *testing.T) {
	rr := FromReport(sampleReport())

	assert.Equal(t, int64(1500), rr.DurationMS)
	assert.Equal(t, ResultSummary{Created: 1, Copied: 1, Deleted: 1, Failed: 1, BytesCopied: 7}, rr.Summary)
	assert.Equal(t, []ResultFile{
		{Action: "created", Source: "/src/a.txt", Target: "/dst/a.txt", Size: 3},
		{Action: "copied", Source: "/src/b.txt", Target: "/dst/b.txt", Size: 4},
		{Action: "deleted", Target: "/dst/c.txt"},
	}, rr.Files)
	require.Len(t, rr.Errors, 1)
	assert.Equal(t, "PermissionDenied", rr.Errors[0].Kind)
	assert.Equal(t, "copy", rr.Errors[0].Action)
	assert.Contains(t, rr.Errors[0].Error, "permission denied")
}

func TestMarshalEmptyRunKeepsArrays(t *testing.T) {
	data, err := FromReport(&reconciler.Report{}).Marshal()
	require.NoError(t, err)

	assert.Contains(t, string(data), `"files": []`)
	assert.Contains(t, string(data), `"errors": []`)
	assert.NotContains(t, string(data), "fatal_error")
}

func TestObjectName(t *testing.T) {
	rr := FromReport(sampleReport())
	assert.Equal(t, "mirror-sync-20240506T070809.000Z.json", rr.ObjectName())
}

func TestFileSinkReplacesReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-run.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0600))

	sink := &FileSink{Path: path}
	require.NoError(t, sink.Publish(context.Background(), FromReport(sampleReport())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got RunReport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "/dst", got.Replica)
	assert.Equal(t, 1, got.Summary.Failed)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestFileSinkMissingDirectory(t *testing.T) {
	sink := &FileSink{Path: filepath.Join(t.TempDir(), "no", "such", "run.json")}
	assert.Error(t, sink.Publish(context.Background(), FromReport(sampleReport())))
}

// mockS3Client is a mock implementation of s3client.Client for testing
type mockS3Client struct {
	putObjectFunc func(ctx context.Context, req *s3client.PutObjectRequest) error
	requests      []*s3client.PutObjectRequest
}

func (m *mockS3Client) PutObject(ctx context.Context, req *s3client.PutObjectRequest) error {
	m.requests = append(m.requests, req)
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, req)
	}
	return nil
}

func TestS3Sink(t *testing.T) {
	client := &mockS3Client{}
	sink, err := NewS3Sink(client, "s3://reports/mirror/host-a/")
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), FromReport(sampleReport())))

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "reports", req.Bucket)
	assert.Equal(t, "mirror/host-a/mirror-sync-20240506T070809.000Z.json", req.Key)
	assert.Equal(t, "application/json", req.ContentType)

	var got RunReport
	require.NoError(t, json.Unmarshal(req.Body, &got))
	assert.Len(t, got.Files, 3)
}

func TestS3SinkErrors(t *testing.T) {
	_, err := NewS3Sink(&mockS3Client{}, "https://reports")
	assert.Error(t, err)

	client := &mockS3Client{putObjectFunc: func(ctx context.Context, req *s3client.PutObjectRequest) error {
		return errors.New("access denied")
	}}
	sink, err := NewS3Sink(client, "s3://reports")
	require.NoError(t, err)

	err = sink.Publish(context.Background(), FromReport(sampleReport()))
	assert.ErrorContains(t, err, "s3://reports/mirror-sync-")
	assert.ErrorContains(t, err, "access denied")
}
