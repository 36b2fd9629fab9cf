// Package s3 implements a blob Store backed by an S3-compatible service
// (AWS S3 or MinIO). Minimal surface area: single bucket, keys map to object
// keys directly.
package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"communitycore/internal/blob/core"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store implements core.Store against a single S3 bucket.
type Store struct {
	client        *s3.Client
	bucket        string
	presign       *s3.PresignClient
	presignExpiry time.Duration
}

// Config holds explicit construction parameters (mostly for tests). For prod
// we rely primarily on environment variables.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional; enables a custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
	PathStyle       bool
	PresignExpiry   time.Duration // default 15m
}

// Environment variables:
//
//	COMMUNITYCORE_BLOB_DRIVER=s3
//	COMMUNITYCORE_BLOB_S3_BUCKET=<bucket> (required)
//	COMMUNITYCORE_BLOB_S3_REGION=<region> (default us-east-1)
//	COMMUNITYCORE_BLOB_S3_ENDPOINT=<url> (optional, for MinIO)
//	COMMUNITYCORE_BLOB_S3_PATH_STYLE=true|false (default false)
//	COMMUNITYCORE_BLOB_S3_ACCESS_KEY_ID / _SECRET_ACCESS_KEY / _SESSION_TOKEN (optional static credentials)
//	COMMUNITYCORE_BLOB_S3_PRESIGN_EXPIRY=<duration> (default 15m)

// New creates an S3 blob store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Store{client: client, bucket: cfg.Bucket, presign: s3.NewPresignClient(client), presignExpiry: expiry}, nil
}

// OpenFromEnv constructs an S3 store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	bucket := os.Getenv("COMMUNITYCORE_BLOB_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("COMMUNITYCORE_BLOB_S3_BUCKET required for s3 driver")
	}
	cfg := Config{
		Bucket:          bucket,
		Region:          os.Getenv("COMMUNITYCORE_BLOB_S3_REGION"),
		Endpoint:        os.Getenv("COMMUNITYCORE_BLOB_S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("COMMUNITYCORE_BLOB_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("COMMUNITYCORE_BLOB_S3_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("COMMUNITYCORE_BLOB_S3_SESSION_TOKEN"),
		PathStyle:       strings.EqualFold(os.Getenv("COMMUNITYCORE_BLOB_S3_PATH_STYLE"), "true"),
	}
	if raw := os.Getenv("COMMUNITYCORE_BLOB_S3_PRESIGN_EXPIRY"); raw != "" {
		expiry, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse COMMUNITYCORE_BLOB_S3_PRESIGN_EXPIRY: %w", err)
		}
		cfg.PresignExpiry = expiry
	}
	return New(ctx, cfg)
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Put stores a new blob, emulating create-only semantics via a Head probe.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err == nil {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: r}
	if opts.ContentType != "" {
		input.ContentType = &opts.ContentType
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return core.Info{}, err
	}
	return s.Head(ctx, key)
}

// Get retrieves blob contents and metadata.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return core.Info{}, nil, err
	}
	info := s.objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified)
	return info, out.Body, nil
}

// Head returns blob metadata only.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return core.Info{}, err
	}
	return s.objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified), nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is assumed when no error is returned.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, err
	}
	return true, nil
}

// List pages through ListObjectsV2 collecting keys under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix, ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			infos = append(infos, core.Info{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size), LastModified: aws.ToTime(obj.LastModified)})
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns a time-limited GET URL via the SDK presign client.
func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if method := strings.ToUpper(opts.Method); method != "" && method != "GET" {
		return "", core.ErrUnsupported
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = s.presignExpiry
	}
	pout, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key}, func(po *s3.PresignOptions) { po.Expires = expiry })
	if err != nil {
		return "", err
	}
	return pout.URL, nil
}

func (s *Store) objectInfo(key string, contentLength *int64, contentType, etag *string, md map[string]string, lastModified *time.Time) core.Info {
	lm := time.Now().UTC()
	if lastModified != nil {
		lm = *lastModified
	}
	return core.Info{
		Key:          key,
		Size:         aws.ToInt64(contentLength),
		ContentType:  aws.ToString(contentType),
		ETag:         strings.Trim(aws.ToString(etag), "\""),
		Metadata:     md,
		LastModified: lm,
	}
}
