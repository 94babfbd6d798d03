package worker

import (
	"context"

	"github.com/UnendingLoop/WatermarkStudio/internal/exporter"
	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/google/uuid"
)

type mockExportService struct {
	attachFn   func(ctx context.Context, id uuid.UUID, cancel context.CancelFunc) error
	progressFn func(ctx context.Context, id uuid.UUID, done, total int)
	saveFn     func(ctx context.Context, id uuid.UUID, archive *model.Archive) error
	failFn     func(ctx context.Context, id uuid.UUID, err error)
}

func (m *mockExportService) AttachExport(ctx context.Context, id uuid.UUID, cancel context.CancelFunc) error {
	return m.attachFn(ctx, id, cancel)
}

func (m *mockExportService) ReportProgress(ctx context.Context, id uuid.UUID, done, total int) {
	if m.progressFn != nil {
		m.progressFn(ctx, id, done, total)
	}
}

func (m *mockExportService) SaveArchive(ctx context.Context, id uuid.UUID, archive *model.Archive) error {
	return m.saveFn(ctx, id, archive)
}

func (m *mockExportService) FailExport(ctx context.Context, id uuid.UUID, err error) {
	if m.failFn != nil {
		m.failFn(ctx, id, err)
	}
}

//----------------------------------

type mockExporter struct {
	exportFn func(ctx context.Context, items []model.SourceItem, mark *model.WatermarkAsset, params model.Params, progress exporter.ProgressFunc) (*model.Archive, error)
}

func (m *mockExporter) ExportAll(ctx context.Context, items []model.SourceItem, mark *model.WatermarkAsset, params model.Params, progress exporter.ProgressFunc) (*model.Archive, error) {
	return m.exportFn(ctx, items, mark, params, progress)
}
