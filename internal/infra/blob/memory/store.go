// Package memory implements the in-process blob store. It backs tests and is
// the default artifact sink when no durable blob backend is configured, so it
// honors the same contract as the durable drivers: create-only Put, explicit
// existence signal on Delete, and List in ascending key order.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"communitycore/internal/blob/core"
)

type object struct {
	info    core.Info
	payload []byte
}

// describe returns a detached copy of the object's metadata.
func (o object) describe() core.Info {
	info := o.info
	info.Metadata = maps.Clone(info.Metadata)
	return info
}

// Store holds blobs in process memory.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New returns an empty in-memory blob store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a new blob. Existing keys are rejected; overwrite is not part of
// the store contract.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; exists {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	obj := object{
		info: core.Info{
			Key:          key,
			Size:         int64(len(payload)),
			ContentType:  opts.ContentType,
			Metadata:     maps.Clone(opts.Metadata),
			LastModified: time.Now().UTC(),
		},
		payload: payload,
	}
	s.objects[key] = obj
	return obj.describe(), nil
}

// Get returns the blob's metadata and a reader over a detached copy of its
// content.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("blob %s not found", key)
	}
	return obj.describe(), io.NopCloser(bytes.NewReader(slices.Clone(obj.payload))), nil
}

// Head returns the blob's metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s not found", key)
	}
	return obj.describe(), nil
}

// Delete removes the blob and reports whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// List returns metadata for every blob under prefix, sorted by key ascending.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.objects))
	for key, obj := range s.objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			out = append(out, obj.describe())
		}
	}
	slices.SortFunc(out, func(a, b core.Info) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out, nil
}

// PresignURL is unsupported: there is no URL that reaches process memory.
func (s *Store) PresignURL(_ context.Context, _ string, _ core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}
