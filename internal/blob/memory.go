package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data []byte
	info Info
}

// NewMemory constructs an empty in-memory blob store.
func NewMemory() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

// Driver reports DriverMemory.
func (s *MemoryStore) Driver() Driver { return DriverMemory }

// Put stores the reader's contents under key, failing if the key exists.
func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; ok {
		return Info{}, &KeyExistsError{Key: key}
	}
	sum := sha256.Sum256(data)
	info := Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.blobs[key] = memoryBlob{data: data, info: info}
	return info, nil
}

// Get returns the blob stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return Info{}, nil, ErrNotFound
	}
	return b.info, io.NopCloser(bytes.NewReader(b.data)), nil
}

// Head returns blob metadata without its contents.
func (s *MemoryStore) Head(_ context.Context, key string) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return Info{}, ErrNotFound
	}
	return b.info, nil
}

// Delete removes a blob, reporting whether it existed.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return false, nil
	}
	delete(s.blobs, key)
	return true, nil
}

// List returns infos for all keys with the given prefix, sorted by key.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []Info
	for k, b := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			infos = append(infos, b.info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// KeyExistsError reports a create-only Put against an existing key.
type KeyExistsError struct {
	Key string
}

func (e *KeyExistsError) Error() string { return "blobstore: key already exists: " + e.Key }
