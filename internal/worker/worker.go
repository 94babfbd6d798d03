// Package worker runs batch exports taken from the in-process export queue
package worker

import (
	"context"
	"errors"

	"github.com/UnendingLoop/WatermarkStudio/internal/exporter"
	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/UnendingLoop/WatermarkStudio/internal/mwlogger"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
)

// ExportService - часть сервиса, через которую воркер отчитывается о ходе экспорта
type ExportService interface {
	AttachExport(ctx context.Context, id uuid.UUID, cancel context.CancelFunc) error
	ReportProgress(ctx context.Context, id uuid.UUID, done, total int)
	SaveArchive(ctx context.Context, id uuid.UUID, archive *model.Archive) error
	FailExport(ctx context.Context, id uuid.UUID, err error)
}

// BatchExporter - контракт экспортера
type BatchExporter interface {
	ExportAll(ctx context.Context, items []model.SourceItem, mark *model.WatermarkAsset, params model.Params, progress exporter.ProgressFunc) (*model.Archive, error)
}

type Worker struct {
	service  ExportService
	exporter BatchExporter
	queue    <-chan *model.ExportJob
}

func NewWorkerInstance(svc ExportService, exp BatchExporter, q <-chan *model.ExportJob) *Worker {
	return &Worker{service: svc, exporter: exp, queue: q}
}

func (w *Worker) StartWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.queue:
			if !ok {
				zlog.Logger.Info().Msg("Export queue closed, stopping worker...")
				return
			}
			if err := w.processJob(ctx, job); err != nil && !errors.Is(err, model.ErrSessionNotFound) {
				zlog.Logger.Error().Err(err).Str("session_id", job.SessionID.String()).Msg("Export job failed")
			}
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job *model.ExportJob) error {
	logger := zlog.Logger.With().Str("session_id", job.SessionID.String()).Int("items", len(job.Items)).Logger()
	jobCtx, cancel := context.WithCancel(mwlogger.WithLogger(ctx, logger))
	defer cancel()

	// сессию могли закрыть, пока задача стояла в очереди
	if err := w.service.AttachExport(jobCtx, job.SessionID, cancel); err != nil {
		return err
	}

	logger.Info().Msg("Export started")
	progress := func(done, total int) {
		w.service.ReportProgress(jobCtx, job.SessionID, done, total)
	}

	archive, err := w.exporter.ExportAll(jobCtx, job.Items, job.Watermark, job.Params, progress)
	if err != nil {
		w.service.FailExport(jobCtx, job.SessionID, err)
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("Export canceled")
			return nil
		}
		return err
	}

	if err := w.service.SaveArchive(jobCtx, job.SessionID, archive); err != nil {
		w.service.FailExport(jobCtx, job.SessionID, err)
		return err
	}
	return nil
}
