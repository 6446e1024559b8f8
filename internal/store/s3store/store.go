// Package s3store keeps secondary copies of progress records as one JSON
// object per owner in an S3 or S3-compatible bucket.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"progress-sync-service/internal/store"
)

type Config struct {
	Bucket   string
	Region   string
	Endpoint string // For S3-compatible services (MinIO, etc.)
	Prefix   string
	// Leave empty to use the default AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// objectAPI is the subset of *s3.Client the store needs.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Store struct {
	api    objectAPI
	bucket string
	prefix string
}

var _ store.Client = (*Store)(nil)

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return newStore(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix), nil
}

func newStore(api objectAPI, bucket, prefix string) *Store {
	return &Store{api: api, bucket: bucket, prefix: prefix}
}

func (s *Store) key(owner store.OwnerID) string {
	return s.prefix + owner.String() + ".json"
}

func (s *Store) Put(ctx context.Context, owner store.OwnerID, record store.Record, _ int64) (store.PutResult, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return store.PutResult{}, fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(owner)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return store.PutResult{}, fmt.Errorf("%w: S3 put object failed: %w", store.ErrUnavailable, err)
	}
	return store.PutResult{Status: store.PutOK}, nil
}

func (s *Store) Get(ctx context.Context, owner store.OwnerID) (store.GetResult, error) {
	resp, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(owner)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return store.GetResult{}, nil
		}
		return store.GetResult{}, fmt.Errorf("%w: S3 get object failed: %w", store.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return store.GetResult{}, fmt.Errorf("%w: S3 read body failed: %w", store.ErrUnavailable, err)
	}
	var record store.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return store.GetResult{}, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return store.GetResult{Exists: true, Record: record}, nil
}
