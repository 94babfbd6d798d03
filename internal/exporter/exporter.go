// Package exporter runs the batch export: every source item is re-rendered at its natural
// resolution with the same placement rules as the preview and packed into a zip archive.
package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/UnendingLoop/WatermarkStudio/internal/imageproc"
	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/UnendingLoop/WatermarkStudio/internal/mwlogger"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"
)

// BlobReader - контракт для чтения исходников из хранилища
type BlobReader interface {
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
}

// VideoWatermarker - контракт покадровой обработки видео
type VideoWatermarker interface {
	Watermark(ctx context.Context, data []byte, mark image.Image, params model.Params) ([]byte, error)
}

// ProgressFunc receives (processed, total) after every finished item.
type ProgressFunc func(done, total int)

type Exporter struct {
	storage      BlobReader
	video        VideoWatermarker
	jpegQuality  int
	videoWorkers int
}

func NewExporter(strg BlobReader, video VideoWatermarker, jpegQuality, videoWorkers int) *Exporter {
	if videoWorkers <= 0 {
		videoWorkers = 1
	}
	return &Exporter{storage: strg, video: video, jpegQuality: jpegQuality, videoWorkers: videoWorkers}
}

// ExportAll renders every item and returns the archive. A failing item is logged and
// left out of the archive; only ctx cancellation aborts the batch.
// params is a value: edits made after the call do not reach this export.
func (e *Exporter) ExportAll(ctx context.Context, items []model.SourceItem, mark *model.WatermarkAsset, params model.Params, progress ProgressFunc) (*model.Archive, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	if mark == nil || mark.Image == nil {
		return nil, model.ErrEmptyWMark
	}

	total := len(items)
	entries := make([]*model.ArchiveEntry, total)
	tracker := &progressTracker{total: total, fn: progress}

	var g errgroup.Group
	g.SetLimit(e.videoWorkers)

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}

		switch item.Kind {
		case model.KindVideo:
			g.Go(func() error {
				entry, err := e.exportVideo(ctx, i, item, mark, params)
				if err != nil {
					logger.Error().Err(err).Str("item", item.Name).Int("index", i).Msg("Failed to export video, skipping")
					tracker.skip(item.Name)
					return nil
				}
				entries[i] = entry
				tracker.step()
				return nil
			})
		default:
			entry, err := e.exportImage(ctx, i, item, mark, params)
			if err != nil {
				logger.Error().Err(err).Str("item", item.Name).Int("index", i).Msg("Failed to export image, skipping")
				tracker.skip(item.Name)
				continue
			}
			entries[i] = entry
			tracker.step()
		}
	}

	// ждем все видео - прогресс доходит до 100% только после них
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	archive, err := buildArchive(entries)
	if err != nil {
		return nil, err
	}
	archive.Skipped = tracker.skippedNames()

	logger.Info().Int("entries", len(archive.Entries)).Int("skipped", len(archive.Skipped)).Msg("Export finished")
	return archive, nil
}

func (e *Exporter) exportImage(ctx context.Context, i int, item model.SourceItem, mark *model.WatermarkAsset, p model.Params) (*model.ArchiveEntry, error) {
	data, err := e.load(ctx, item.BlobKey)
	if err != nil {
		return nil, err
	}

	img, cType, err := imageproc.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	out, _, err := imageproc.Render(img, mark.Image, b.Dx(), b.Dy(), p, 1)
	if err != nil {
		return nil, err
	}

	encoded, outCType, err := imageproc.EncodeImage(out, cType, e.jpegQuality)
	if err != nil {
		return nil, err
	}

	return &model.ArchiveEntry{
		Index: i,
		Name:  fmt.Sprintf("image_%d%s", i+1, model.GetFileExt[outCType]),
		Data:  encoded,
	}, nil
}

func (e *Exporter) exportVideo(ctx context.Context, i int, item model.SourceItem, mark *model.WatermarkAsset, p model.Params) (*model.ArchiveEntry, error) {
	if e.video == nil {
		return nil, errors.New("video processing is not configured")
	}

	data, err := e.load(ctx, item.BlobKey)
	if err != nil {
		return nil, err
	}

	encoded, err := e.video.Watermark(ctx, data, mark.Image, p)
	if err != nil {
		return nil, err
	}

	return &model.ArchiveEntry{
		Index: i,
		Name:  fmt.Sprintf("video_%d.mp4", i+1),
		Data:  encoded,
	}, nil
}

func (e *Exporter) load(ctx context.Context, key string) ([]byte, error) {
	r, _, err := e.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load source %q: %w", key, err)
	}
	defer closeFileFlow(ctx, r)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read source %q: %w", key, err)
	}
	if len(data) == 0 {
		return nil, model.ErrEmptySource
	}
	return data, nil
}

func buildArchive(entries []*model.ArchiveEntry) (*model.Archive, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry == nil {
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: entry.Name, Method: entryMethod(entry.Name)})
		if err != nil {
			return nil, fmt.Errorf("create archive entry %q: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("write archive entry %q: %w", entry.Name, err)
		}
		names = append(names, entry.Name)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return &model.Archive{Data: buf.Bytes(), Entries: names}, nil
}

// уже сжатые форматы повторно не жмем
var storedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".mp4":  true,
}

func entryMethod(name string) uint16 {
	if storedExt[strings.ToLower(filepath.Ext(name))] {
		return zip.Store
	}
	return zip.Deflate
}

//--------------------

type progressTracker struct {
	mu      sync.Mutex
	done    int
	total   int
	skipped []string
	fn      ProgressFunc
}

// step - под мьютексом, чтобы колбэк видел монотонно растущий счетчик
func (t *progressTracker) step() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	if t.fn != nil {
		t.fn(t.done, t.total)
	}
}

// skip - сбойный элемент тоже считается обработанным
func (t *progressTracker) skip(name string) {
	t.mu.Lock()
	t.skipped = append(t.skipped, name)
	t.mu.Unlock()
	t.step()
}

func (t *progressTracker) skippedNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.skipped...)
}

func closeFileFlow(ctx context.Context, res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Exporter failed to close fileflow")
	}
}
