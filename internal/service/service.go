// Package service provides business-logic for the app
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/UnendingLoop/WatermarkStudio/internal/heic"
	"github.com/UnendingLoop/WatermarkStudio/internal/imageproc"
	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/UnendingLoop/WatermarkStudio/internal/mwlogger"
	"github.com/UnendingLoop/WatermarkStudio/internal/session"
	"github.com/UnendingLoop/WatermarkStudio/internal/storage/memstorage"
	"github.com/UnendingLoop/WatermarkStudio/internal/video"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
)

type StudioService struct {
	sessions  *session.Store
	storage   BlobStorage
	publisher TaskPublisher
	converter HEICConverter
	video     VideoProber
	opts      Options
	now       func() time.Time
}

// Options - настройки сервиса из конфига
type Options struct {
	PreviewMaxWidth  int
	PreviewMaxHeight int
}

func NewStudioService(store *session.Store, strg BlobStorage, pub TaskPublisher, conv HEICConverter, vp VideoProber, opts Options) *StudioService {
	return &StudioService{
		sessions:  store,
		storage:   strg,
		publisher: pub,
		converter: conv,
		video:     vp,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// TaskPublisher - контракт для работы с очередью экспорта
type TaskPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, job *model.ExportJob) error
}

// BlobStorage - контракт для работы с хранилищем
type BlobStorage interface {
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// HEICConverter - контракт конвертера HEIC->JPEG
type HEICConverter interface {
	Convert(ctx context.Context, data []byte) ([]byte, error)
}

// VideoProber - контракт для чтения метаданных и кадров видео
type VideoProber interface {
	Probe(ctx context.Context, data []byte) (*video.Info, error)
	Frame(ctx context.Context, data []byte, at float64) (image.Image, error)
}

// Стратегия ретрая постановки в очередь - очередь локальная, ждать долго смысла нет
var retryStrategy = retry.Strategy{
	Attempts: 3,
	Delay:    200 * time.Millisecond,
	Backoff:  2,
}

func (c *StudioService) CreateSession(ctx context.Context) (*model.SessionInfo, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	s := c.sessions.Create(imageproc.DefaultWatermark())
	info := s.Info()
	logger.Info().Str("session_id", info.ID.String()).Msg("Session created")
	return &info, nil
}

func (c *StudioService) GetSession(ctx context.Context, id string) (*model.SessionInfo, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	info := s.Info()
	return &info, nil
}

// CloseSession cancels a running export and frees every blob of the session.
func (c *StudioService) CloseSession(ctx context.Context, id string) error {
	logger := mwlogger.LoggerFromContext(ctx)
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	if _, err := c.sessions.Delete(uid); err != nil {
		return err
	}

	n, err := c.storage.DeletePrefix(ctx, sessionPrefix(uid))
	if err != nil {
		logger.Error().Err(err).Str("session_id", id).Msg("Failed to free session blobs")
		return model.ErrCommon500
	}
	logger.Info().Str("session_id", id).Int("blobs", n).Msg("Session closed")
	return nil
}

// AddItems appends supported files to the batch in upload order. Files that fail
// detection or conversion are reported in Skipped and do not break the upload.
func (c *StudioService) AddItems(ctx context.Context, id string, files []model.UploadFile) (*model.UploadResult, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, model.ErrEmptyBatch
	}

	res := &model.UploadResult{}
	for _, f := range files {
		item, err := c.prepareItem(ctx, s.ID(), f)
		if err != nil {
			if errors.Is(err, model.ErrStorageFull) {
				// уже загруженное оставляем, остальное не влезет
				s.AddItems(res.Added...)
				return nil, err
			}
			logger.Warn().Err(err).Str("file", f.Name).Msg("Skipping uploaded file")
			res.Skipped = append(res.Skipped, f.Name)
			continue
		}
		res.Added = append(res.Added, *item)
	}

	if len(res.Added) == 0 {
		return nil, model.ErrUnsupportedFormat
	}
	s.AddItems(res.Added...)
	logger.Info().Str("session_id", id).Int("added", len(res.Added)).Int("skipped", len(res.Skipped)).Msg("Items added")
	return res, nil
}

func (c *StudioService) prepareItem(ctx context.Context, sid uuid.UUID, f model.UploadFile) (*model.SourceItem, error) {
	if len(f.Data) == 0 {
		return nil, model.ErrEmptySource
	}

	name, data := f.Name, f.Data
	if heic.IsHEIC(f.Name, f.ContentType) {
		converted, err := c.converter.Convert(ctx, f.Data)
		if err != nil {
			return nil, err
		}
		name, data = heic.JPEGName(f.Name), converted
	}

	item := &model.SourceItem{ID: uuid.New(), Name: name, Size: int64(len(data))}
	cType, kind := detectType(name, f.ContentType)

	switch kind {
	case model.KindVideo:
		info, err := c.video.Probe(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("probe video: %w", err)
		}
		item.Width, item.Height = info.Width, info.Height
	default:
		// для картинок решает содержимое, а не заявленный тип
		realCType, w, h, err := imageproc.DecodeImageConfig(data)
		if err != nil {
			return nil, err
		}
		cType, kind = realCType, model.KindImage
		item.Width, item.Height = w, h
	}
	item.ContentType, item.Kind = cType, kind
	item.BlobKey = sourceKey(sid, item.ID, name)

	if err := c.storage.Put(ctx, item.BlobKey, item.Size, cType, bytes.NewReader(data)); err != nil {
		if errors.Is(err, memstorage.ErrQuotaExceeded) {
			return nil, model.ErrStorageFull
		}
		return nil, fmt.Errorf("store source: %w", err)
	}
	return item, nil
}

func (c *StudioService) RemoveItem(ctx context.Context, id string, index int) error {
	logger := mwlogger.LoggerFromContext(ctx)
	s, err := c.session(id)
	if err != nil {
		return err
	}

	removed, release, err := s.RemoveItem(index)
	if err != nil {
		return err
	}
	if !release {
		// исходник еще читает идущий экспорт, удалим по его завершении
		logger.Debug().Str("key", removed.BlobKey).Msg("Source release postponed until export ends")
		return nil
	}
	if err := c.storage.Delete(ctx, removed.BlobKey); err != nil {
		logger.Error().Err(err).Str("key", removed.BlobKey).Msg("Failed to delete source from Storage")
	}
	return nil
}

// releasePending frees sources removed from the batch while an export was reading them.
func (c *StudioService) releasePending(ctx context.Context, s *session.Session) {
	logger := mwlogger.LoggerFromContext(ctx)
	// контекст отмененного экспорта не должен мешать уборке
	ctx = context.WithoutCancel(ctx)
	for _, key := range s.ReleasePending() {
		if err := c.storage.Delete(ctx, key); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Failed to delete released source from Storage")
		}
	}
}

func (c *StudioService) ListItems(ctx context.Context, id string) ([]model.SourceItem, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	return s.Items(), nil
}

func (c *StudioService) SetWatermark(ctx context.Context, id string, f model.UploadFile) (*model.WatermarkAsset, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	if len(f.Data) == 0 {
		return nil, model.ErrEmptyWMark
	}

	data := f.Data
	if heic.IsHEIC(f.Name, f.ContentType) {
		if data, err = c.converter.Convert(ctx, f.Data); err != nil {
			return nil, err
		}
	}

	img, cType, err := imageproc.DecodeImage(bytes.NewReader(data))
	if err != nil {
		logger.Warn().Err(err).Str("file", f.Name).Msg("Failed to decode watermark")
		return nil, model.ErrEmptyWMark
	}

	b := img.Bounds()
	mark := &model.WatermarkAsset{
		Name:        f.Name,
		ContentType: cType,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Image:       img,
	}
	s.SetWatermark(mark)
	return mark, nil
}

// ResetWatermark returns the session to the built-in mark.
func (c *StudioService) ResetWatermark(ctx context.Context, id string) (*model.WatermarkAsset, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	mark := imageproc.DefaultWatermark()
	s.SetWatermark(mark)
	return mark, nil
}

func (c *StudioService) GetParams(ctx context.Context, id string) (*model.Params, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	p := s.Params()
	return &p, nil
}

func (c *StudioService) UpdateParams(ctx context.Context, id string, patch model.ParamsPatch) (*model.Params, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	p, err := s.UpdateParams(patch)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Preview renders the item at req.Index fitted into the viewport. A render that raced with
// a batch or watermark change is discarded and redone once.
func (c *StudioService) Preview(ctx context.Context, id string, req *model.PreviewRequest) (*model.Preview, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	if req.Width < 0 || req.Height < 0 || req.At < 0 {
		return nil, model.ErrIncorrectQuery
	}

	for attempt := 0; attempt < 2; attempt++ {
		res, gen, err := c.renderPreview(ctx, s, req)
		if err != nil {
			return nil, err
		}
		if s.Generation() == gen {
			return res, nil
		}
		logger.Debug().Uint64("generation", gen).Msg("Preview superseded, rendering again")
	}
	return nil, model.ErrStalePreview
}

func (c *StudioService) renderPreview(ctx context.Context, s *session.Session, req *model.PreviewRequest) (*model.Preview, uint64, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	snap := s.Snapshot()
	if req.Index < 0 || req.Index >= len(snap.Items) {
		return nil, snap.Generation, model.ErrItemNotFound
	}
	item := snap.Items[req.Index]

	base, err := c.loadFrame(ctx, item, req.At)
	if err != nil {
		return nil, snap.Generation, err
	}

	b := base.Bounds()
	maxW, maxH := viewport(req.Width, c.opts.PreviewMaxWidth), viewport(req.Height, c.opts.PreviewMaxHeight)
	w, h, scale := imageproc.FitSurface(b.Dx(), b.Dy(), maxW, maxH)

	var mark image.Image
	if snap.Watermark != nil {
		mark = snap.Watermark.Image
	}
	out, pl, err := imageproc.Render(base, mark, w, h, snap.Params, scale)
	if err != nil {
		return nil, snap.Generation, err
	}

	data, err := imageproc.EncodePNG(out)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode preview")
		return nil, snap.Generation, model.ErrCommon500
	}

	return &model.Preview{Data: data, Width: w, Height: h, Scale: scale, Placement: pl}, snap.Generation, nil
}

func (c *StudioService) loadFrame(ctx context.Context, item model.SourceItem, at float64) (image.Image, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	r, _, err := c.storage.Get(ctx, item.BlobKey)
	if err != nil {
		if errors.Is(err, memstorage.ErrNotFound) {
			// элемент удалили между снимком и чтением
			return nil, model.ErrItemNotFound
		}
		logger.Error().Err(err).Str("key", item.BlobKey).Msg("Failed to fetch source from Storage")
		return nil, model.ErrCommon500
	}
	defer closeFileFlow(ctx, r)

	if item.Kind == model.KindVideo {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, model.ErrCommon500
		}
		frame, err := c.video.Frame(ctx, data, at)
		if err != nil {
			logger.Error().Err(err).Str("item", item.Name).Msg("Failed to grab video frame")
			return nil, model.ErrUnsupportedFormat
		}
		return frame, nil
	}

	img, _, err := imageproc.DecodeImage(r)
	if err != nil {
		logger.Error().Err(err).Str("item", item.Name).Msg("Failed to decode source")
		return nil, model.ErrUnsupportedFormat
	}
	return img, nil
}

//--------------------

// StartExport snapshots the session and queues the export. Only one export per session
// may be processing at a time.
func (c *StudioService) StartExport(ctx context.Context, id string) (*model.ExportState, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}

	job, err := s.BeginExport(c.now())
	if err != nil {
		return nil, err
	}

	if err := c.publisher.SendWithRetry(ctx, retryStrategy, job); err != nil {
		s.FailExport(err, c.now())
		c.releasePending(ctx, s)
		logger.Error().Err(err).Str("session_id", id).Msg("Failed to publish export to queue")
		if errors.Is(err, model.ErrQueueFull) {
			return nil, err
		}
		return nil, model.ErrCommon500
	}

	st := s.ExportState()
	logger.Info().Str("session_id", id).Int("items", len(job.Items)).Msg("Export queued")
	return &st, nil
}

func (c *StudioService) ExportStatus(ctx context.Context, id string) (*model.ExportState, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	st := s.ExportState()
	return &st, nil
}

func (c *StudioService) LoadArchive(ctx context.Context, id string) (io.ReadCloser, string, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	s, err := c.session(id)
	if err != nil {
		return nil, "", err
	}

	st := s.ExportState()
	if st.Status != model.ExportCompleted {
		return nil, "", model.ErrResultNotReady
	}

	data, cType, err := c.storage.Get(ctx, st.ArchiveKey)
	if err != nil {
		logger.Error().Err(err).Str("session_id", id).Msg("Failed to fetch archive from Storage")
		return nil, "", model.ErrCommon500
	}
	return data, cType, nil
}

// ExpireIdle closes sessions idle for longer than ttl and frees their blobs.
func (c *StudioService) ExpireIdle(ctx context.Context, ttl time.Duration) int {
	logger := mwlogger.LoggerFromContext(ctx)

	expired := c.sessions.Expire(ttl)
	for _, s := range expired {
		if _, err := c.storage.DeletePrefix(ctx, sessionPrefix(s.ID())); err != nil {
			logger.Error().Err(err).Str("session_id", s.ID().String()).Msg("Failed to free expired session blobs")
		}
	}
	if len(expired) > 0 {
		logger.Info().Int("sessions", len(expired)).Msg("Idle sessions expired")
	}
	return len(expired)
}

//--------------------

func (c *StudioService) AttachExport(ctx context.Context, id uuid.UUID, cancel context.CancelFunc) error {
	s, err := c.sessions.Get(id)
	if err != nil {
		return err
	}
	return s.AttachCancel(cancel)
}

func (c *StudioService) ReportProgress(ctx context.Context, id uuid.UUID, done, total int) {
	s, err := c.sessions.Get(id)
	if err != nil {
		return
	}
	s.Progress(done, total)
}

func (c *StudioService) SaveArchive(ctx context.Context, id uuid.UUID, archive *model.Archive) error {
	logger := mwlogger.LoggerFromContext(ctx)
	s, err := c.sessions.Get(id)
	if err != nil {
		return err
	}

	key := archiveKey(id)
	size := int64(len(archive.Data))
	if err := c.storage.Put(ctx, key, size, model.ZIP, bytes.NewReader(archive.Data)); err != nil {
		if errors.Is(err, memstorage.ErrQuotaExceeded) {
			return model.ErrStorageFull
		}
		return fmt.Errorf("store archive: %w", err)
	}

	// сессию могли закрыть, пока писали архив
	if s.Closed() {
		_ = c.storage.Delete(context.Background(), key)
		return model.ErrSessionNotFound
	}

	if prev := s.CompleteExport(key, size, archive.Skipped, c.now()); prev != "" && prev != key {
		if err := c.storage.Delete(ctx, prev); err != nil {
			logger.Error().Err(err).Str("key", prev).Msg("Failed to delete previous archive")
		}
	}
	c.releasePending(ctx, s)
	logger.Info().Int64("size", size).Int("entries", len(archive.Entries)).Msg("Archive saved")
	return nil
}

func (c *StudioService) FailExport(ctx context.Context, id uuid.UUID, err error) {
	s, gErr := c.sessions.Get(id)
	if gErr != nil {
		return
	}
	s.FailExport(err, c.now())
	c.releasePending(ctx, s)
}

func (c *StudioService) session(id string) (*session.Session, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return c.sessions.Get(uid)
}
