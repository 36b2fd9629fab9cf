// Package blob re-exports the core blob abstractions and selects a driver
// from the environment.
package blob

import (
	"context"
	"fmt"
	"os"

	"communitycore/internal/blob/core"
	fsstore "communitycore/internal/infra/blob/fs"
	memorystore "communitycore/internal/infra/blob/memory"
	s3store "communitycore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverMemory is the in-memory driver (tests, default wiring).
	DriverMemory = core.DriverMemory
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
)

// ErrUnsupported indicates an operation isn't supported by a driver.
var ErrUnsupported = core.ErrUnsupported

// OpenFromEnv selects a blob Store implementation using environment variables.
//
//	COMMUNITYCORE_BLOB_DRIVER: memory|fs|s3 (default memory)
//	COMMUNITYCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in the s3 driver package)
func OpenFromEnv(ctx context.Context) (Store, error) {
	driver := os.Getenv("COMMUNITYCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverMemory)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("COMMUNITYCORE_BLOB_FS_ROOT"))
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory blob Store.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem constructs a filesystem-backed blob Store rooted at the provided path.
func NewFilesystem(root string) (Store, error) {
	return fsstore.New(root)
}

// NewS3 constructs an S3-backed blob Store from the provided configuration.
func NewS3(ctx context.Context, cfg s3store.Config) (Store, error) {
	return s3store.New(ctx, cfg)
}

// S3Config re-exports the S3 driver configuration type.
type S3Config = s3store.Config

// NewMockS3ForTests exposes the in-memory S3 mock for cross-package tests.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
