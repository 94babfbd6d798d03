package service

import (
	"context"
	"image"
	"io"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/UnendingLoop/WatermarkStudio/internal/video"
	"github.com/wb-go/wbf/retry"
)

// MOCK STORAGE

type mockStorage struct {
	putFn          func(ctx context.Context, key string, size int64, ct string, r io.Reader) error
	getFn          func(ctx context.Context, key string) (io.ReadCloser, string, error)
	deleteFn       func(ctx context.Context, key string) error
	deletePrefixFn func(ctx context.Context, prefix string) (int, error)
}

func (m *mockStorage) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	return m.putFn(ctx, key, size, ct, r)
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.getFn(ctx, key)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	return m.deleteFn(ctx, key)
}

func (m *mockStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return m.deletePrefixFn(ctx, prefix)
}

// MOCK PUBLISHER

type mockPublisher struct {
	sendFn func(ctx context.Context, s retry.Strategy, job *model.ExportJob) error
}

func (m *mockPublisher) SendWithRetry(ctx context.Context, s retry.Strategy, job *model.ExportJob) error {
	return m.sendFn(ctx, s, job)
}

// MOCK HEIC CONVERTER

type mockConverter struct {
	convertFn func(ctx context.Context, data []byte) ([]byte, error)
}

func (m *mockConverter) Convert(ctx context.Context, data []byte) ([]byte, error) {
	return m.convertFn(ctx, data)
}

// MOCK VIDEO

type mockVideo struct {
	probeFn func(ctx context.Context, data []byte) (*video.Info, error)
	frameFn func(ctx context.Context, data []byte, at float64) (image.Image, error)
}

func (m *mockVideo) Probe(ctx context.Context, data []byte) (*video.Info, error) {
	return m.probeFn(ctx, data)
}

func (m *mockVideo) Frame(ctx context.Context, data []byte, at float64) (image.Image, error) {
	return m.frameFn(ctx, data, at)
}
