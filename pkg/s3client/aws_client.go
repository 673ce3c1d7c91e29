package s3client

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LoadConfig loads the default AWS configuration, optionally pinned to a
// shared config profile and region.
func LoadConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	var configOpts []func(*config.LoadOptions) error
	if profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		configOpts = append(configOpts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// AWSClient uploads through the S3 transfer manager and retries throttling
// and 5xx responses with backoff.
type AWSClient struct {
	uploader uploader
	retry    retryPolicy
}

func NewAWSClient(cfg aws.Config) *AWSClient {
	return &AWSClient{
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
		retry:    defaultRetryPolicy(),
	}
}

func (c *AWSClient) PutObject(ctx context.Context, req *PutObjectRequest) error {
	err := c.retry.do(ctx, func() error {
		input := &s3.PutObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
			Body:   bytes.NewReader(req.Body),
		}
		if req.ContentType != "" {
			input.ContentType = aws.String(req.ContentType)
		}
		_, err := c.uploader.Upload(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}
