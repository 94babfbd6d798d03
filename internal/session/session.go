// Package session keeps the in-memory editing sessions: batch, watermark, placement parameters
// and the state of the single export a session may run.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/google/uuid"
)

// Snapshot - согласованная копия состояния сессии на момент вызова
type Snapshot struct {
	Items      []model.SourceItem
	Watermark  *model.WatermarkAsset
	Params     model.Params
	Generation uint64
}

type Session struct {
	mu         sync.Mutex
	id         uuid.UUID
	createdAt  time.Time
	lastAccess time.Time

	params model.Params
	items  []model.SourceItem
	mark   *model.WatermarkAsset
	gen    uint64

	export model.ExportState
	cancel context.CancelFunc
	closed bool

	// блобы удаленных элементов, которые еще нужны идущему экспорту
	pending []string
}

func New(id uuid.UUID, mark *model.WatermarkAsset, now time.Time) *Session {
	return &Session{
		id:         id,
		createdAt:  now,
		lastAccess: now,
		params:     model.DefaultParams(),
		mark:       mark,
		export:     model.ExportState{Status: model.ExportIdle},
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) Info() model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionInfo{
		ID:        s.id,
		Params:    s.params,
		Watermark: s.mark,
		Items:     append([]model.SourceItem(nil), s.items...),
		CreatedAt: s.createdAt,
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Items:      append([]model.SourceItem(nil), s.items...),
		Watermark:  s.mark,
		Params:     s.params,
		Generation: s.gen,
	}
}

// Generation grows on every change of the batch or the watermark.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Session) Params() model.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func (s *Session) UpdateParams(patch model.ParamsPatch) (model.Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := patch.Apply(s.params)
	if err := next.Validate(); err != nil {
		return s.params, err
	}
	s.params = next
	return next, nil
}

func (s *Session) Items() []model.SourceItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SourceItem(nil), s.items...)
}

// Item returns the item at index together with the generation it was read at.
func (s *Session) Item(index int) (model.SourceItem, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return model.SourceItem{}, s.gen, model.ErrItemNotFound
	}
	return s.items[index], s.gen, nil
}

func (s *Session) AddItems(items ...model.SourceItem) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	s.gen++
}

// RemoveItem drops the item from the batch. release is false while an export is
// processing: its blob stays until the export finishes and is returned by ReleasePending.
func (s *Session) RemoveItem(index int) (removed model.SourceItem, release bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return model.SourceItem{}, false, model.ErrItemNotFound
	}
	removed = s.items[index]
	s.items = append(s.items[:index:index], s.items[index+1:]...)
	s.gen++

	if s.export.Status == model.ExportProcessing {
		s.pending = append(s.pending, removed.BlobKey)
		return removed, false, nil
	}
	return removed, true, nil
}

// ReleasePending hands out the blob keys held back for a finished export.
// Nothing is released while an export is still processing.
func (s *Session) ReleasePending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.export.Status == model.ExportProcessing {
		return nil
	}
	keys := s.pending
	s.pending = nil
	return keys
}

func (s *Session) Watermark() *model.WatermarkAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mark
}

func (s *Session) SetWatermark(mark *model.WatermarkAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mark = mark
	s.gen++
}

//--------------------

// BeginExport moves the session into processing and returns the job snapshot.
func (s *Session) BeginExport(now time.Time) (*model.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, model.ErrSessionNotFound
	}
	if s.export.Status == model.ExportProcessing {
		return nil, model.ErrExportInProgress
	}

	// ключ прошлого архива сохраняем, чтобы освободить его по завершении
	started := now
	s.export = model.ExportState{
		Status:     model.ExportProcessing,
		Total:      len(s.items),
		StartedAt:  &started,
		ArchiveKey: s.export.ArchiveKey,
	}

	return &model.ExportJob{
		SessionID:  s.id,
		Items:      append([]model.SourceItem(nil), s.items...),
		Watermark:  s.mark,
		Params:     s.params,
		Generation: s.gen,
	}, nil
}

// AttachCancel registers the cancel func of the running export; Close invokes it.
func (s *Session) AttachCancel(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.ErrSessionNotFound
	}
	s.cancel = cancel
	return nil
}

// Progress - счетчик только растет, запоздавшие значения игнорируются
func (s *Session) Progress(done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.export.Status != model.ExportProcessing || done < s.export.Done {
		return
	}
	s.export.Done = done
	s.export.Total = total
	s.export.Percent = percent(done, total)
}

// CompleteExport returns the key of the previous archive (if any) so the caller can free it.
func (s *Session) CompleteExport(archiveKey string, size int64, skipped []string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.export.ArchiveKey
	finished := now
	s.export.Status = model.ExportCompleted
	s.export.Done = s.export.Total
	s.export.Percent = 100
	s.export.ArchiveKey = archiveKey
	s.export.Size = size
	s.export.Skipped = skipped
	s.export.FinishedAt = &finished
	s.cancel = nil
	return prev
}

// FailExport returns the session to idle; a canceled export leaves no error behind.
func (s *Session) FailExport(err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := now
	s.export.Status = model.ExportIdle
	s.export.FinishedAt = &finished
	s.export.Error = ""
	if err != nil && !errors.Is(err, context.Canceled) {
		s.export.Error = err.Error()
	}
	s.cancel = nil
}

func (s *Session) ExportState() model.ExportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.export
	st.Skipped = append([]string(nil), s.export.Skipped...)
	return st
}

// Close cancels a running export and marks the session dead.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.closed = true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.export.Status != model.ExportProcessing && now.Sub(s.lastAccess) > ttl
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(done) * 100 / float64(total)
}
