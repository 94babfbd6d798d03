// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/wb-go/wbf/ginext"
)

type StudioHandler struct {
	service        StudioService
	maxUploadBytes int64
}

type StudioService interface {
	CreateSession(ctx context.Context) (*model.SessionInfo, error)
	GetSession(ctx context.Context, id string) (*model.SessionInfo, error)
	CloseSession(ctx context.Context, id string) error // вместе с отменой экспорта и файлами
	AddItems(ctx context.Context, id string, files []model.UploadFile) (*model.UploadResult, error)
	RemoveItem(ctx context.Context, id string, index int) error
	ListItems(ctx context.Context, id string) ([]model.SourceItem, error)
	SetWatermark(ctx context.Context, id string, f model.UploadFile) (*model.WatermarkAsset, error)
	ResetWatermark(ctx context.Context, id string) (*model.WatermarkAsset, error)
	GetParams(ctx context.Context, id string) (*model.Params, error)
	UpdateParams(ctx context.Context, id string, patch model.ParamsPatch) (*model.Params, error)
	Preview(ctx context.Context, id string, req *model.PreviewRequest) (*model.Preview, error)
	StartExport(ctx context.Context, id string) (*model.ExportState, error)
	ExportStatus(ctx context.Context, id string) (*model.ExportState, error)
	LoadArchive(ctx context.Context, id string) (io.ReadCloser, string, error) // прям скачать архив
}

// NewStudioHandler - maxUploadMB <= 0 снимает ограничение на размер запроса
func NewStudioHandler(svc StudioService, maxUploadMB int) *StudioHandler {
	return &StudioHandler{
		service:        svc,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

func (h StudioHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

func (h StudioHandler) CreateSession(ctx *ginext.Context) {
	res, err := h.service.CreateSession(ctx.Request.Context())
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(201, res)
}

func (h StudioHandler) GetSession(ctx *ginext.Context) {
	res, err := h.service.GetSession(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(200, res)
}

func (h StudioHandler) CloseSession(ctx *ginext.Context) {
	if err := h.service.CloseSession(ctx.Request.Context(), ctx.Param("id")); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.Status(204)
}

func (h StudioHandler) AddItems(ctx *ginext.Context) {
	files, err := h.readUploads(ctx, "files")
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	res, err := h.service.AddItems(ctx.Request.Context(), ctx.Param("id"), files)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(201, res)
}

func (h StudioHandler) ListItems(ctx *ginext.Context) {
	res, err := h.service.ListItems(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(200, res)
}

func (h StudioHandler) RemoveItem(ctx *ginext.Context) {
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectQuery.Error()})
		return
	}

	if err := h.service.RemoveItem(ctx.Request.Context(), ctx.Param("id"), index); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.Status(204)
}

func (h StudioHandler) SetWatermark(ctx *ginext.Context) {
	files, err := h.readUploads(ctx, "watermark")
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	res, err := h.service.SetWatermark(ctx.Request.Context(), ctx.Param("id"), files[0])
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(200, res)
}

func (h StudioHandler) ResetWatermark(ctx *ginext.Context) {
	res, err := h.service.ResetWatermark(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(200, res)
}

func (h StudioHandler) GetParams(ctx *ginext.Context) {
	res, err := h.service.GetParams(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(200, res)
}

func (h StudioHandler) UpdateParams(ctx *ginext.Context) {
	var patch model.ParamsPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to parse placement parameters"})
		return
	}

	res, err := h.service.UpdateParams(ctx.Request.Context(), ctx.Param("id"), patch)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(200, res)
}

func (h StudioHandler) Preview(ctx *ginext.Context) {
	var req model.PreviewRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to parse query-params"})
		return
	}

	res, err := h.service.Preview(ctx.Request.Context(), ctx.Param("id"), &req)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Header("Cache-Control", "no-store")
	ctx.Header("X-Preview-Scale", strconv.FormatFloat(res.Scale, 'f', -1, 64))
	ctx.Header("X-Preview-Width", strconv.Itoa(res.Width))
	ctx.Header("X-Preview-Height", strconv.Itoa(res.Height))
	ctx.Data(200, model.PNG, res.Data)
}

func (h StudioHandler) StartExport(ctx *ginext.Context) {
	res, err := h.service.StartExport(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(202, res)
}

func (h StudioHandler) ExportStatus(ctx *ginext.Context) {
	res, err := h.service.ExportStatus(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(200, res)
}

func (h StudioHandler) LoadArchive(ctx *ginext.Context) {
	id := ctx.Param("id")

	res, cType, err := h.service.LoadArchive(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	defer closeFileFlow(res)

	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.Header().Set("Content-Disposition", `attachment; filename="`+archiveName+`"`)
	ctx.Writer.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	ctx.Writer.WriteHeader(200)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		log.Printf("Failed to write response at byte %d for archive of session %q: %v", n, id, err)
	}
}

// readUploads - все файлы формы под ключом field, в порядке их следования
func (h StudioHandler) readUploads(ctx *ginext.Context, field string) ([]model.UploadFile, error) {
	if h.maxUploadBytes > 0 {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, h.maxUploadBytes)
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errRequestTooLarge
		}
		return nil, model.ErrEmptyBatch
	}

	headers := form.File[field]
	if len(headers) == 0 {
		if field == "watermark" {
			return nil, model.ErrEmptyWMark
		}
		return nil, model.ErrEmptyBatch
	}

	files := make([]model.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, model.ErrEmptySource
		}
		data, err := io.ReadAll(f)
		closeFileFlow(f)
		if err != nil {
			return nil, model.ErrEmptySource
		}
		files = append(files, model.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}
