// Package memstorage provides session-scoped in-memory blob storage
package memstorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var (
	ErrNotFound      = errors.New("blob not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

type blob struct {
	data        []byte
	contentType string
}

type MemBlobStorage struct {
	mu    sync.RWMutex
	blobs map[string]blob
	used  int64
	quota int64
}

// NewMemBlobStorage - quota <= 0 означает без ограничения
func NewMemBlobStorage(quota int64) *MemBlobStorage {
	return &MemBlobStorage{blobs: make(map[string]blob), quota: quota}
}

func (s *MemBlobStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("read blob %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := int64(len(s.blobs[key].data))
	if s.quota > 0 && s.used-old+int64(buf.Len()) > s.quota {
		return ErrQuotaExceeded
	}
	s.blobs[key] = blob{data: buf.Bytes(), contentType: contentType}
	s.used += int64(buf.Len()) - old
	return nil
}

func (s *MemBlobStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b.data)), b.contentType, nil
}

func (s *MemBlobStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[key]; ok {
		s.used -= int64(len(b.data))
		delete(s.blobs, key)
	}
	return nil
}

// DeletePrefix drops every blob whose key starts with prefix and returns how many were removed.
func (s *MemBlobStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, b := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			s.used -= int64(len(b.data))
			delete(s.blobs, k)
			n++
		}
	}
	return n, nil
}

func (s *MemBlobStorage) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}
