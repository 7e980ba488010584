package source

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Config selects the bucket and, for S3-compatible stores, the endpoint and
// static keys. Empty keys fall back to the default credential chain.
type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Client downloads documents from S3.
type S3Client struct {
	client *s3.Client
	dl     *manager.Downloader
	bucket string
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	opts := []func(*awscfg.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Client{client: cli, dl: manager.NewDownloader(cli), bucket: cfg.Bucket}, nil
}

// Bucket returns the default bucket.
func (s *S3Client) Bucket() string { return s.bucket }

// Ping checks that the default bucket is reachable.
func (s *S3Client) Ping(ctx context.Context) error {
	if s.bucket == "" {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// Download fetches bucket/key into memory, refusing objects above maxBytes.
// An empty bucket selects the default one.
func (s *S3Client) Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error) {
	if bucket == "" {
		bucket = s.bucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("no bucket for key %q", key)
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("failed to stat s3 object: %w", err)
	}
	size := aws.ToInt64(head.ContentLength)
	if maxBytes > 0 && size > maxBytes {
		return nil, &TooLargeError{Limit: maxBytes, Size: size}
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	n, err := s.dl.Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int64("size", n).Msg("downloaded s3 document")
	return buf.Bytes(), nil
}
