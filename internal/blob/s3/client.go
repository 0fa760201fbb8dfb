// Package s3blob keeps the scraper's object-storage artifacts: raw
// orderbook snapshots written as they are scraped, and JSONL exports of
// bar and spread rows aged out of Postgres. Anything speaking the S3 API
// works as a backend; MinIO and similar providers plug in through the
// endpoint override.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the object-store connection settings. A single bucket
// carries both the raw/ snapshot tree and the bars/ and spreads/ exports.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for S3-compatible providers.
	// Empty means standard AWS S3. A bare host gets a scheme per UseSSL.
	Endpoint string

	// Region names the region the bucket lives in (or the provider's
	// equivalent).
	Region string

	// Bucket is the bucket every archive path is keyed under.
	Bucket string

	// AccessKey and SecretKey authenticate as a static credential pair.
	AccessKey string
	SecretKey string

	// UseSSL picks https for a scheme-less Endpoint.
	UseSSL bool

	// ForcePathStyle addresses the bucket in the path instead of the
	// subdomain, which most self-hosted providers require.
	ForcePathStyle bool
}

// Client holds the SDK client and bucket shared by the package's reader and
// writer.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds the client from cfg. The SDK connects lazily;
// misconfiguration shows up on first use or via Health.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Health verifies the bucket is reachable and the credentials can see it.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close releases nothing today; the SDK's HTTP client needs no teardown.
// Kept so the wiring can treat every backend uniformly.
func (c *Client) Close() error {
	return nil
}

// withScheme prefixes a scheme-less endpoint so the SDK accepts it.
// Endpoints that already carry one pass through untouched.
func withScheme(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
