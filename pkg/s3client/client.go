package s3client

import (
	"context"
)

type PutObjectRequest struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
}

// Client is the subset of S3 the run report publisher needs.
type Client interface {
	PutObject(ctx context.Context, req *PutObjectRequest) error
}
