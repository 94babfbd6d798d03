package transport

import (
	"context"
	"io"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/gin-gonic/gin"
)

type mockStudioService struct {
	createSessionFn  func(ctx context.Context) (*model.SessionInfo, error)
	getSessionFn     func(ctx context.Context, id string) (*model.SessionInfo, error)
	closeSessionFn   func(ctx context.Context, id string) error
	addItemsFn       func(ctx context.Context, id string, files []model.UploadFile) (*model.UploadResult, error)
	removeItemFn     func(ctx context.Context, id string, index int) error
	listItemsFn      func(ctx context.Context, id string) ([]model.SourceItem, error)
	setWatermarkFn   func(ctx context.Context, id string, f model.UploadFile) (*model.WatermarkAsset, error)
	resetWatermarkFn func(ctx context.Context, id string) (*model.WatermarkAsset, error)
	getParamsFn      func(ctx context.Context, id string) (*model.Params, error)
	updateParamsFn   func(ctx context.Context, id string, patch model.ParamsPatch) (*model.Params, error)
	previewFn        func(ctx context.Context, id string, req *model.PreviewRequest) (*model.Preview, error)
	startExportFn    func(ctx context.Context, id string) (*model.ExportState, error)
	exportStatusFn   func(ctx context.Context, id string) (*model.ExportState, error)
	loadArchiveFn    func(ctx context.Context, id string) (io.ReadCloser, string, error)
}

func (m *mockStudioService) CreateSession(ctx context.Context) (*model.SessionInfo, error) {
	return m.createSessionFn(ctx)
}

func (m *mockStudioService) GetSession(ctx context.Context, id string) (*model.SessionInfo, error) {
	return m.getSessionFn(ctx, id)
}

func (m *mockStudioService) CloseSession(ctx context.Context, id string) error {
	return m.closeSessionFn(ctx, id)
}

func (m *mockStudioService) AddItems(ctx context.Context, id string, files []model.UploadFile) (*model.UploadResult, error) {
	return m.addItemsFn(ctx, id, files)
}

func (m *mockStudioService) RemoveItem(ctx context.Context, id string, index int) error {
	return m.removeItemFn(ctx, id, index)
}

func (m *mockStudioService) ListItems(ctx context.Context, id string) ([]model.SourceItem, error) {
	return m.listItemsFn(ctx, id)
}

func (m *mockStudioService) SetWatermark(ctx context.Context, id string, f model.UploadFile) (*model.WatermarkAsset, error) {
	return m.setWatermarkFn(ctx, id, f)
}

func (m *mockStudioService) ResetWatermark(ctx context.Context, id string) (*model.WatermarkAsset, error) {
	return m.resetWatermarkFn(ctx, id)
}

func (m *mockStudioService) GetParams(ctx context.Context, id string) (*model.Params, error) {
	return m.getParamsFn(ctx, id)
}

func (m *mockStudioService) UpdateParams(ctx context.Context, id string, patch model.ParamsPatch) (*model.Params, error) {
	return m.updateParamsFn(ctx, id, patch)
}

func (m *mockStudioService) Preview(ctx context.Context, id string, req *model.PreviewRequest) (*model.Preview, error) {
	return m.previewFn(ctx, id, req)
}

func (m *mockStudioService) StartExport(ctx context.Context, id string) (*model.ExportState, error) {
	return m.startExportFn(ctx, id)
}

func (m *mockStudioService) ExportStatus(ctx context.Context, id string) (*model.ExportState, error) {
	return m.exportStatusFn(ctx, id)
}

func (m *mockStudioService) LoadArchive(ctx context.Context, id string) (io.ReadCloser, string, error) {
	return m.loadArchiveFn(ctx, id)
}

func init() {
	gin.SetMode(gin.TestMode)
}
