// Package core defines the abstractions shared by the blob storage drivers.
// Report artifacts and other binary payloads are stored through this surface.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverMemory is the in-memory implementation used in tests and default wiring.
	DriverMemory Driver = "memory"
	// DriverFilesystem is the local filesystem implementation.
	DriverFilesystem Driver = "fs"
	// DriverS3 is an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // user metadata (small, flat key-value)
}

// SignedURLOptions holds options for generating a pre-signed URL.
type SignedURLOptions struct {
	Method  string        // GET|PUT (currently only GET used internally)
	Expiry  time.Duration // default 15m
	Headers map[string]string
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store provides a thin S3-like abstraction used by higher layers. Keys are
// slash-separated paths; drivers reject traversal outside their root.
type Store interface {
	// Put stores a new blob at key. Fails if the key already exists.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get retrieves the blob contents and metadata.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes a blob. Returns (false, nil) if not found.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs whose key has the provided prefix, ordered by key ascending.
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL returns a time-limited GET URL for the key, or ErrUnsupported.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	// Driver returns the configured backend driver identifier.
	Driver() Driver
}

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("blobstore: unsupported operation")
