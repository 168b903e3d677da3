// Package memory implements a process-local bucket. It backs the "memory"
// driver used for dry runs and lets tests seed a bucket listing, folder
// markers included, without an S3 endpoint.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"dicompreset/internal/blob/core"
)

type object struct {
	info core.Info
	data []byte
}

// Store is a map of object keys to contents guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New returns a bucket holding objects. Nil or empty values become zero-size
// objects, the way consoles store folder markers.
func New(objects map[string][]byte) *Store {
	s := &Store{objects: make(map[string]object, len(objects))}
	for key, data := range objects {
		s.objects[key] = newObject(key, bytes.Clone(data), core.PutOptions{ContentType: "application/dicom"})
	}
	return s
}

func newObject(key string, data []byte, opts core.PutOptions) object {
	sum := sha256.Sum256(data)
	return object{
		info: core.Info{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  opts.ContentType,
			ETag:         hex.EncodeToString(sum[:]),
			Metadata:     maps.Clone(opts.Metadata),
			LastModified: time.Now().UTC(),
		},
		data: data,
	}
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put adds an object. Keys are write-once.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read body for %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.objects[key]; taken {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	obj := newObject(key, data, opts)
	s.objects[key] = obj
	return obj.describe(), nil
}

// Get returns a copy of the object's contents.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return obj.describe(), io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Head implements core.Store.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return core.Info{}, err
	}
	return obj.describe(), nil
}

// List returns the objects under prefix sorted by key, zero-size ones
// included.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Info
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.describe())
		}
	}
	slices.SortFunc(out, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// PresignURL is not available for process-local objects.
func (s *Store) PresignURL(context.Context, string, core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func (s *Store) lookup(key string) (object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return object{}, fmt.Errorf("blob %s not found", key)
	}
	return obj, nil
}

// describe returns the object's Info with its own metadata map.
func (o object) describe() core.Info {
	info := o.info
	info.Metadata = maps.Clone(info.Metadata)
	return info
}
