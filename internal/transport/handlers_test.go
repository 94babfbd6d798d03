package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"
)

const sid = "6f1c5e52-5b8e-4c8e-9d8e-3f1f2a7c9b10"

type uploadPart struct {
	field, name, cType string
	data               []byte
}

func newMultipartRequest(t *testing.T, target string, parts ...uploadPart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.name+`"`)
		h.Set("Content-Type", p.cType)
		fw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(method, route string, handler func(*ginext.Context), req *http.Request) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, route, func(c *gin.Context) {
		handler((*ginext.Context)(c))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStudioHandler_Ping(t *testing.T) {
	h := NewStudioHandler(nil, 0)
	w := serve(http.MethodGet, "/ping", h.SimplePinger, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, 200, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "pong", body["message"])
}

func TestStudioHandler_CreateSession(t *testing.T) {
	id := uuid.New()
	h := NewStudioHandler(&mockStudioService{
		createSessionFn: func(ctx context.Context) (*model.SessionInfo, error) {
			return &model.SessionInfo{ID: id, Params: model.DefaultParams()}, nil
		},
	}, 0)

	w := serve(http.MethodPost, "/sessions", h.CreateSession, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	require.Equal(t, 201, w.Code)

	var body model.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, id, body.ID)
	require.Equal(t, model.AnchorBottomRight, body.Params.Anchor)
}

func TestStudioHandler_CloseSession(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: 204},
		{name: "not found", err: model.ErrSessionNotFound, wantStatus: 404},
		{name: "bad id", err: model.ErrIncorrectID, wantStatus: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudioHandler(&mockStudioService{
				closeSessionFn: func(ctx context.Context, id string) error {
					require.Equal(t, sid, id)
					return tt.err
				},
			}, 0)

			w := serve(http.MethodDelete, "/sessions/:id", h.CloseSession, httptest.NewRequest(http.MethodDelete, "/sessions/"+sid, nil))
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestStudioHandler_AddItems(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		mock       *mockStudioService
		wantStatus int
	}{
		{
			name: "success keeps upload order",
			req: newMultipartRequest(t, "/sessions/"+sid+"/items",
				uploadPart{"files", "b.png", model.PNG, []byte("png")},
				uploadPart{"files", "a.heic", model.HEIC, []byte("heic")},
			),
			mock: &mockStudioService{
				addItemsFn: func(ctx context.Context, id string, files []model.UploadFile) (*model.UploadResult, error) {
					require.Len(t, files, 2)
					require.Equal(t, "b.png", files[0].Name)
					require.Equal(t, model.HEIC, files[1].ContentType)
					require.Equal(t, []byte("heic"), files[1].Data)
					return &model.UploadResult{Added: []model.SourceItem{{Name: "b.png"}, {Name: "a.jpg"}}}, nil
				},
			},
			wantStatus: 201,
		},
		{
			name:       "no files",
			req:        newMultipartRequest(t, "/sessions/"+sid+"/items", uploadPart{"other", "x.png", model.PNG, []byte("x")}),
			mock:       &mockStudioService{},
			wantStatus: 400,
		},
		{
			name:       "not multipart",
			req:        httptest.NewRequest(http.MethodPost, "/sessions/"+sid+"/items", strings.NewReader("{}")),
			mock:       &mockStudioService{},
			wantStatus: 400,
		},
		{
			name: "quota exceeded",
			req:  newMultipartRequest(t, "/sessions/"+sid+"/items", uploadPart{"files", "big.png", model.PNG, []byte("png")}),
			mock: &mockStudioService{
				addItemsFn: func(ctx context.Context, id string, files []model.UploadFile) (*model.UploadResult, error) {
					return nil, model.ErrStorageFull
				},
			},
			wantStatus: 413,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudioHandler(tt.mock, 0)
			w := serve(http.MethodPost, "/sessions/:id/items", h.AddItems, tt.req)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestStudioHandler_RemoveItem(t *testing.T) {
	tests := []struct {
		name       string
		index      string
		err        error
		wantStatus int
	}{
		{name: "success", index: "1", wantStatus: 204},
		{name: "not a number", index: "first", wantStatus: 400},
		{name: "out of range", index: "9", err: model.ErrItemNotFound, wantStatus: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudioHandler(&mockStudioService{
				removeItemFn: func(ctx context.Context, id string, index int) error {
					return tt.err
				},
			}, 0)

			req := httptest.NewRequest(http.MethodDelete, "/sessions/"+sid+"/items/"+tt.index, nil)
			w := serve(http.MethodDelete, "/sessions/:id/items/:index", h.RemoveItem, req)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestStudioHandler_SetWatermark(t *testing.T) {
	h := NewStudioHandler(&mockStudioService{
		setWatermarkFn: func(ctx context.Context, id string, f model.UploadFile) (*model.WatermarkAsset, error) {
			require.Equal(t, "logo.png", f.Name)
			return &model.WatermarkAsset{Name: f.Name, Width: 10, Height: 5}, nil
		},
	}, 0)

	req := newMultipartRequest(t, "/sessions/"+sid+"/watermark", uploadPart{"watermark", "logo.png", model.PNG, []byte("png")})
	w := serve(http.MethodPost, "/sessions/:id/watermark", h.SetWatermark, req)
	require.Equal(t, 200, w.Code)

	req = newMultipartRequest(t, "/sessions/"+sid+"/watermark", uploadPart{"files", "logo.png", model.PNG, []byte("png")})
	w = serve(http.MethodPost, "/sessions/:id/watermark", h.SetWatermark, req)
	require.Equal(t, 400, w.Code)
}

func TestStudioHandler_UpdateParams(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		mock       *mockStudioService
		wantStatus int
	}{
		{
			name: "partial update",
			body: `{"opacity":0.5,"anchor":"center"}`,
			mock: &mockStudioService{
				updateParamsFn: func(ctx context.Context, id string, patch model.ParamsPatch) (*model.Params, error) {
					require.NotNil(t, patch.Opacity)
					require.Nil(t, patch.Scale)
					p := patch.Apply(model.DefaultParams())
					return &p, nil
				},
			},
			wantStatus: 200,
		},
		{
			name:       "broken json",
			body:       `{"opacity":`,
			mock:       &mockStudioService{},
			wantStatus: 400,
		},
		{
			name: "invalid values",
			body: `{"opacity":7}`,
			mock: &mockStudioService{
				updateParamsFn: func(ctx context.Context, id string, patch model.ParamsPatch) (*model.Params, error) {
					return nil, model.ErrIncorrectParams
				},
			},
			wantStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudioHandler(tt.mock, 0)
			req := httptest.NewRequest(http.MethodPut, "/sessions/"+sid+"/params", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := serve(http.MethodPut, "/sessions/:id/params", h.UpdateParams, req)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestStudioHandler_Preview(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		mock       *mockStudioService
		wantStatus int
	}{
		{
			name:  "success",
			query: "?index=2&width=800&height=600&t=1.5",
			mock: &mockStudioService{
				previewFn: func(ctx context.Context, id string, req *model.PreviewRequest) (*model.Preview, error) {
					require.Equal(t, 2, req.Index)
					require.Equal(t, 800, req.Width)
					require.InDelta(t, 1.5, req.At, 1e-9)
					return &model.Preview{Data: []byte("png"), Width: 800, Height: 400, Scale: 0.25}, nil
				},
			},
			wantStatus: 200,
		},
		{
			name:       "bad query",
			query:      "?index=abc",
			mock:       &mockStudioService{},
			wantStatus: 400,
		},
		{
			name:  "superseded",
			query: "?index=0",
			mock: &mockStudioService{
				previewFn: func(ctx context.Context, id string, req *model.PreviewRequest) (*model.Preview, error) {
					return nil, model.ErrStalePreview
				},
			},
			wantStatus: 409,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudioHandler(tt.mock, 0)
			req := httptest.NewRequest(http.MethodGet, "/sessions/"+sid+"/preview"+tt.query, nil)

			w := serve(http.MethodGet, "/sessions/:id/preview", h.Preview, req)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == 200 {
				require.Equal(t, model.PNG, w.Header().Get("Content-Type"))
				require.Equal(t, "0.25", w.Header().Get("X-Preview-Scale"))
				require.Equal(t, "png", w.Body.String())
			}
		})
	}
}

func TestStudioHandler_StartExport(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "accepted", wantStatus: 202},
		{name: "already running", err: model.ErrExportInProgress, wantStatus: 409},
		{name: "queue full", err: model.ErrQueueFull, wantStatus: 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudioHandler(&mockStudioService{
				startExportFn: func(ctx context.Context, id string) (*model.ExportState, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.ExportState{Status: model.ExportProcessing, Total: 3}, nil
				},
			}, 0)

			req := httptest.NewRequest(http.MethodPost, "/sessions/"+sid+"/export", nil)
			w := serve(http.MethodPost, "/sessions/:id/export", h.StartExport, req)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestStudioHandler_LoadArchive(t *testing.T) {
	tests := []struct {
		name       string
		mock       *mockStudioService
		wantStatus int
	}{
		{
			name: "success",
			mock: &mockStudioService{
				loadArchiveFn: func(ctx context.Context, id string) (io.ReadCloser, string, error) {
					return io.NopCloser(bytes.NewReader([]byte("PK"))), model.ZIP, nil
				},
			},
			wantStatus: 200,
		},
		{
			name: "not ready",
			mock: &mockStudioService{
				loadArchiveFn: func(ctx context.Context, id string) (io.ReadCloser, string, error) {
					return nil, "", model.ErrResultNotReady
				},
			},
			wantStatus: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudioHandler(tt.mock, 0)
			req := httptest.NewRequest(http.MethodGet, "/sessions/"+sid+"/export/archive", nil)

			w := serve(http.MethodGet, "/sessions/:id/export/archive", h.LoadArchive, req)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == 200 {
				require.Contains(t, w.Header().Get("Content-Disposition"), "watermarked.zip")
				require.Equal(t, "PK", w.Body.String())
			}
		})
	}
}

func TestStudioHandler_Lookups(t *testing.T) {
	id := uuid.MustParse(sid)

	tests := []struct {
		name       string
		method     string
		route      string
		handler    func(h *StudioHandler) func(*ginext.Context)
		svc        *mockStudioService
		wantStatus int
		wantBody   string
	}{
		{
			name:    "get session",
			method:  http.MethodGet,
			route:   "/sessions/:id",
			handler: func(h *StudioHandler) func(*ginext.Context) { return h.GetSession },
			svc: &mockStudioService{getSessionFn: func(ctx context.Context, got string) (*model.SessionInfo, error) {
				return &model.SessionInfo{ID: id, Params: model.DefaultParams()}, nil
			}},
			wantStatus: 200,
			wantBody:   `"anchor":"bottom-right"`,
		},
		{
			name:    "get session not found",
			method:  http.MethodGet,
			route:   "/sessions/:id",
			handler: func(h *StudioHandler) func(*ginext.Context) { return h.GetSession },
			svc: &mockStudioService{getSessionFn: func(ctx context.Context, got string) (*model.SessionInfo, error) {
				return nil, model.ErrSessionNotFound
			}},
			wantStatus: 404,
		},
		{
			name:    "list items",
			method:  http.MethodGet,
			route:   "/sessions/:id/items",
			handler: func(h *StudioHandler) func(*ginext.Context) { return h.ListItems },
			svc: &mockStudioService{listItemsFn: func(ctx context.Context, got string) ([]model.SourceItem, error) {
				return []model.SourceItem{{Name: "a.png", Kind: model.KindImage}}, nil
			}},
			wantStatus: 200,
			wantBody:   `"name":"a.png"`,
		},
		{
			name:    "reset watermark",
			method:  http.MethodDelete,
			route:   "/sessions/:id/watermark",
			handler: func(h *StudioHandler) func(*ginext.Context) { return h.ResetWatermark },
			svc: &mockStudioService{resetWatermarkFn: func(ctx context.Context, got string) (*model.WatermarkAsset, error) {
				return &model.WatermarkAsset{Name: "default", Default: true}, nil
			}},
			wantStatus: 200,
			wantBody:   `"default":true`,
		},
		{
			name:    "get params",
			method:  http.MethodGet,
			route:   "/sessions/:id/params",
			handler: func(h *StudioHandler) func(*ginext.Context) { return h.GetParams },
			svc: &mockStudioService{getParamsFn: func(ctx context.Context, got string) (*model.Params, error) {
				p := model.DefaultParams()
				return &p, nil
			}},
			wantStatus: 200,
			wantBody:   `"scale":0.3`,
		},
		{
			name:    "export status",
			method:  http.MethodGet,
			route:   "/sessions/:id/export",
			handler: func(h *StudioHandler) func(*ginext.Context) { return h.ExportStatus },
			svc: &mockStudioService{exportStatusFn: func(ctx context.Context, got string) (*model.ExportState, error) {
				return &model.ExportState{Status: model.ExportProcessing, Done: 1, Total: 4, Percent: 25}, nil
			}},
			wantStatus: 200,
			wantBody:   `"status":"processing"`,
		},
		{
			name:    "export status bad id",
			method:  http.MethodGet,
			route:   "/sessions/:id/export",
			handler: func(h *StudioHandler) func(*ginext.Context) { return h.ExportStatus },
			svc: &mockStudioService{exportStatusFn: func(ctx context.Context, got string) (*model.ExportState, error) {
				return nil, model.ErrIncorrectID
			}},
			wantStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudioHandler(tt.svc, 0)
			target := strings.Replace(tt.route, ":id", sid, 1)

			w := serve(tt.method, tt.route, tt.handler(h), httptest.NewRequest(tt.method, target, nil))
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				require.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestErrorCodeDefiner(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrCommon500, 500},
		{model.ErrSessionNotFound, 404},
		{model.ErrItemNotFound, 404},
		{model.ErrExportInProgress, 409},
		{model.ErrStalePreview, 409},
		{model.ErrStorageFull, 413},
		{model.ErrQueueFull, 503},
		{model.ErrHEICConversion, 400},
		{model.ErrUnsupportedFormat, 400},
		{io.ErrUnexpectedEOF, 500},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, errorCodeDefiner(tt.err))
		})
	}
}
