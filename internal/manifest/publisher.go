package manifest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/config"
)

const contentType = "text/csv"

// New picks the publisher configured by MANIFEST_DRIVER. An empty driver
// disables publishing and returns nil.
func New(ctx context.Context, cfg config.Config) (Publisher, error) {
	switch cfg.ManifestDriver {
	case "", "none":
		return nil, nil
	case "fs":
		return &DirPublisher{Dir: cfg.ManifestDir}, nil
	case "s3":
		publisher, err := NewS3Publisher(ctx, S3Config{
			Bucket:          cfg.ManifestS3Bucket,
			Region:          cfg.ManifestS3Region,
			Endpoint:        cfg.ManifestS3Endpoint,
			PathStyle:       cfg.ManifestS3PathStyle,
			AccessKeyID:     cfg.ManifestS3AccessKey,
			SecretAccessKey: cfg.ManifestS3Secret,
		})
		if err != nil {
			return nil, err
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("unknown manifest driver %q", cfg.ManifestDriver)
	}
}

// DirPublisher writes manifests below a local directory.
type DirPublisher struct {
	Dir string
}

func (p *DirPublisher) Publish(_ context.Context, m Manifest) (string, error) {
	data, err := m.Bytes()
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	target := filepath.Join(p.Dir, filepath.FromSlash(m.Key()))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create manifest dir: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return target, nil
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, e.g. MinIO
	PathStyle       bool
	AccessKeyID     string // optional; default credential chain otherwise
	SecretAccessKey string
}

// S3Publisher uploads manifests to an S3-compatible bucket.
type S3Publisher struct {
	client *s3.Client
	bucket string
}

func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Publisher{client: client, bucket: cfg.Bucket}, nil
}

func (p *S3Publisher) Publish(ctx context.Context, m Manifest) (string, error) {
	data, err := m.Bytes()
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	key := m.Key()
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"seller-prefix": m.Prefix,
			"source":        m.Source,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload manifest %s: %w", key, err)
	}
	return "s3://" + p.bucket + "/" + key, nil
}
