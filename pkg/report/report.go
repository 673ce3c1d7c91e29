// Package report turns a reconciliation run into a JSON document and hands
// it to the configured sinks.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/yuya-takeyama/mirror-sync/pkg/reconciler"
	"github.com/yuya-takeyama/mirror-sync/pkg/s3client"
)

// RunReport is the JSON form of one run.
type RunReport struct {
	Source      string        `json:"source"`
	Replica     string        `json:"replica"`
	StartedAt   time.Time     `json:"started_at"`
	DurationMS  int64         `json:"duration_ms"`
	DirsVisited int           `json:"dirs_visited"`
	Canceled    bool          `json:"canceled"`
	FatalError  string        `json:"fatal_error,omitempty"`
	Files       []ResultFile  `json:"files"`
	Errors      []ErrorFile   `json:"errors"`
	Summary     ResultSummary `json:"summary"`
}

type ResultFile struct {
	Action string `json:"action"` // "created", "copied", "deleted"
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Size   int64  `json:"size,omitempty"`
}

type ErrorFile struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

type ResultSummary struct {
	Created     int   `json:"created"`
	Copied      int   `json:"copied"`
	Deleted     int   `json:"deleted"`
	Failed      int   `json:"failed"`
	BytesCopied int64 `json:"bytes_copied"`
}

// FromReport converts a run report. Files and Errors are never nil so the
// JSON always carries both arrays.
func FromReport(r *reconciler.Report) *RunReport {
	rr := &RunReport{
		Source:      r.Source,
		Replica:     r.Replica,
		StartedAt:   r.StartedAt.UTC(),
		DurationMS:  r.Duration.Milliseconds(),
		DirsVisited: r.DirsVisited,
		Canceled:    r.Canceled,
		Files:       make([]ResultFile, 0, len(r.Records)),
		Errors:      make([]ErrorFile, 0, len(r.Failures)),
		Summary: ResultSummary{
			Created:     r.Stats.Created,
			Copied:      r.Stats.Copied,
			Deleted:     r.Stats.Deleted,
			Failed:      len(r.Failures),
			BytesCopied: r.Stats.BytesCopied,
		},
	}

	for _, rec := range r.Records {
		file := ResultFile{
			Action: strings.ToLower(rec.Kind.Verb()),
			Source: rec.Source,
			Target: rec.Target,
		}
		if rec.Source != "" {
			file.Size = rec.Size
		}
		rr.Files = append(rr.Files, file)
	}
	for _, f := range r.Failures {
		rr.Errors = append(rr.Errors, ErrorFile{
			Action: f.Op,
			Path:   f.Path,
			Kind:   string(f.Kind),
			Error:  f.Err.Error(),
		})
	}
	return rr
}

func (r *RunReport) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// ObjectName is the per-run file name used when reports are kept side by
// side, e.g. in a bucket.
func (r *RunReport) ObjectName() string {
	return "mirror-sync-" + r.StartedAt.UTC().Format("20060102T150405.000Z") + ".json"
}

// Sink receives every finished run.
type Sink interface {
	Publish(ctx context.Context, r *RunReport) error
}

// FileSink keeps the most recent report at Path, replacing it atomically.
type FileSink struct {
	Path string
}

func (s *FileSink) Publish(ctx context.Context, r *RunReport) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	return writeFileAtomic(s.Path, data, 0644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// S3Sink uploads every report as its own object below prefix.
type S3Sink struct {
	client s3client.Client
	bucket string
	prefix string
}

// NewS3Sink parses uri as s3://bucket/prefix.
func NewS3Sink(client s3client.Client, uri string) (*S3Sink, error) {
	bucket, prefix, err := s3client.ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3Sink) Publish(ctx context.Context, r *RunReport) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	key := s3client.ObjectKey(s.prefix, r.ObjectName())
	if err := s.client.PutObject(ctx, &s3client.PutObjectRequest{
		Bucket:      s.bucket,
		Key:         key,
		Body:        data,
		ContentType: "application/json",
	}); err != nil {
		return fmt.Errorf("failed to upload report to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
