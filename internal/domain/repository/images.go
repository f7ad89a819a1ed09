package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// maxImageSize bounds how much of a stored image is read.
const maxImageSize = 20 << 20

// FileImageStore reads surface images from a local directory.
type FileImageStore struct {
	root string
}

func NewFileImageStore(root string) *FileImageStore {
	return &FileImageStore{root: root}
}

func (s *FileImageStore) Load(ctx context.Context, ref string) ([]byte, error) {
	clean := filepath.Clean("/" + ref)
	path := filepath.Join(s.root, clean)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %q: %w", ref, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %q: %w", ref, err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("image %q exceeds %d bytes", ref, maxImageSize)
	}
	return data, nil
}

// S3Config configures an S3ImageStore.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3ImageStore reads surface images from an S3 compatible bucket. References are
// either object keys in the configured bucket or s3://bucket/key URLs.
type S3ImageStore struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

func NewS3ImageStore(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3ImageStore, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3ImageStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

func (s *S3ImageStore) Load(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := s.locate(ref)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(io.LimitReader(result.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s/%s: %w", bucket, key, err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("image %s/%s exceeds %d bytes", bucket, key, maxImageSize)
	}

	s.logger.Debug("Image loaded",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)))
	return data, nil
}

func (s *S3ImageStore) locate(ref string) (bucket, key string, err error) {
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return "", "", fmt.Errorf("invalid s3 reference %q", ref)
		}
		return bucket, key, nil
	}
	if s.bucket == "" {
		return "", "", fmt.Errorf("no bucket configured for image reference %q", ref)
	}
	return s.bucket, strings.TrimPrefix(ref, "/"), nil
}
