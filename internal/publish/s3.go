package publish

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// S3Putter stores objects through the S3 API of an S3-compatible endpoint such as OBS.
type S3Putter struct {
	client *s3.Client
}

// NewS3Putter builds a client for endpoint with static credentials. Retries are disabled.
func NewS3Putter(ctx context.Context, endpoint, region, accessKey, secretKey string) (*S3Putter, error) {
	if region == "" {
		region = DefaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, errors.Wrap(err, "load object storage config")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &S3Putter{client: client}, nil
}

// PutObject uploads body under bucket/key.
func (p *S3Putter) PutObject(ctx context.Context, bucket, key string, body io.ReadSeeker, size int64) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/zip"),
	})
	return err
}
