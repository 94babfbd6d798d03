// Package model provides data-structs for internal app-usage
package model

import (
	"errors"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

type (
	Anchor       string
	Kind         string
	ExportStatus string
)

const (
	AnchorTopLeft     Anchor = "top-left"
	AnchorTopRight    Anchor = "top-right"
	AnchorBottomLeft  Anchor = "bottom-left"
	AnchorBottomRight Anchor = "bottom-right"
	AnchorCenter      Anchor = "center"
)

var AnchorsMap = map[Anchor]bool{
	AnchorTopLeft:     true,
	AnchorTopRight:    true,
	AnchorBottomLeft:  true,
	AnchorBottomRight: true,
	AnchorCenter:      true,
}

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

const (
	ExportIdle       ExportStatus = "idle"
	ExportProcessing ExportStatus = "processing"
	ExportCompleted  ExportStatus = "completed"
)

//---------------------

// Params - параметры размещения ватермарка, живут только внутри сессии
type Params struct {
	Opacity  float64 `json:"opacity" yaml:"opacity"`
	Scale    float64 `json:"scale" yaml:"scale"`
	Anchor   Anchor  `json:"anchor" yaml:"anchor"`
	Rotation float64 `json:"rotation" yaml:"rotation"`
	OffsetX  int     `json:"offset_x" yaml:"offset_x"`
	OffsetY  int     `json:"offset_y" yaml:"offset_y"`
}

// DefaultParams - значения слайдеров при открытии сессии
func DefaultParams() Params {
	return Params{
		Opacity:  1,
		Scale:    0.3,
		Anchor:   AnchorBottomRight,
		Rotation: 0,
	}
}

func (p Params) Validate() error {
	switch {
	case p.Opacity < 0 || p.Opacity > 1:
		return ErrIncorrectParams
	case p.Scale <= 0:
		return ErrIncorrectParams
	case p.Rotation < -180 || p.Rotation > 180:
		return ErrIncorrectParams
	case !AnchorsMap[p.Anchor]:
		return ErrIncorrectParams
	}
	return nil
}

// ParamsPatch - частичное обновление параметров, nil-поля не трогаем
type ParamsPatch struct {
	Opacity  *float64 `json:"opacity,omitempty" yaml:"opacity,omitempty"`
	Scale    *float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
	Anchor   *Anchor  `json:"anchor,omitempty" yaml:"anchor,omitempty"`
	Rotation *float64 `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	OffsetX  *int     `json:"offset_x,omitempty" yaml:"offset_x,omitempty"`
	OffsetY  *int     `json:"offset_y,omitempty" yaml:"offset_y,omitempty"`
}

func (pp ParamsPatch) Apply(p Params) Params {
	if pp.Opacity != nil {
		p.Opacity = *pp.Opacity
	}
	if pp.Scale != nil {
		p.Scale = *pp.Scale
	}
	if pp.Anchor != nil {
		p.Anchor = *pp.Anchor
	}
	if pp.Rotation != nil {
		p.Rotation = *pp.Rotation
	}
	if pp.OffsetX != nil {
		p.OffsetX = *pp.OffsetX
	}
	if pp.OffsetY != nil {
		p.OffsetY = *pp.OffsetY
	}
	return p
}

//---------------------

// Placement - итоговый прямоугольник ватермарка на поверхности и точка поворота
type Placement struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	PivotX float64 `json:"pivot_x"`
	PivotY float64 `json:"pivot_y"`
}

// Bounds returns the axis-aligned box covered by the placement rotated around its pivot.
func (p Placement) Bounds(rotation float64) (minX, minY, maxX, maxY float64) {
	if rotation == 0 {
		return p.X, p.Y, p.X + p.Width, p.Y + p.Height
	}
	sin, cos := sincosDeg(rotation)
	hw := (abs(p.Width*cos) + abs(p.Height*sin)) / 2
	hh := (abs(p.Width*sin) + abs(p.Height*cos)) / 2
	return p.PivotX - hw, p.PivotY - hh, p.PivotX + hw, p.PivotY + hh
}

//---------------------

type SourceItem struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Kind        Kind      `json:"kind"`
	BlobKey     string    `json:"-"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Size        int64     `json:"size"`
}

type WatermarkAsset struct {
	Name        string      `json:"name"`
	ContentType string      `json:"content_type"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Default     bool        `json:"default"`
	Image       image.Image `json:"-"`
}

// UploadFile - сырые данные одного файла из multipart-формы
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type UploadResult struct {
	Added   []SourceItem `json:"added"`
	Skipped []string     `json:"skipped,omitempty"`
}

//---------------------

type ExportState struct {
	Status     ExportStatus `json:"status"`
	Done       int          `json:"done"`
	Total      int          `json:"total"`
	Percent    float64      `json:"percent"`
	Skipped    []string     `json:"skipped,omitempty"`
	ArchiveKey string       `json:"-"`
	Size       int64        `json:"size,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// ExportJob - снимок сессии, который уходит воркеру
type ExportJob struct {
	SessionID  uuid.UUID
	Items      []SourceItem
	Watermark  *WatermarkAsset
	Params     Params
	Generation uint64
}

type ArchiveEntry struct {
	Index int
	Name  string
	Data  []byte
}

type Archive struct {
	Data    []byte
	Entries []string
	Skipped []string
}

type PreviewRequest struct {
	Index  int     `form:"index"`
	Width  int     `form:"width"`
	Height int     `form:"height"`
	At     float64 `form:"t"`
}

type Preview struct {
	Data      []byte
	Width     int
	Height    int
	Scale     float64
	Placement Placement
}

type SessionInfo struct {
	ID        uuid.UUID       `json:"id"`
	Params    Params          `json:"params"`
	Watermark *WatermarkAsset `json:"watermark"`
	Items     []SourceItem    `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// ------------------

var (
	ErrCommon500         error = errors.New("something went wrong. Try again later")       // 500
	ErrIncorrectID       error = errors.New("incorrect session UUID")                      // 400
	ErrSessionNotFound   error = errors.New("specified session doesn't exist")             // 404
	ErrItemNotFound      error = errors.New("specified item doesn't exist in the batch")   // 404
	ErrIncorrectParams   error = errors.New("incorrect placement parameters provided")     // 400
	ErrIncorrectQuery    error = errors.New("incorrect query parameters")                  // 400
	ErrEmptyBatch        error = errors.New("no source files in the batch")                // 400
	ErrEmptySource       error = errors.New("empty/incorrect source file provided")        // 400
	ErrEmptyWMark        error = errors.New("empty/incorrect watermark provided")          // 400
	ErrUnsupportedFormat error = errors.New("unsupported file format")                     // 400
	ErrHEICConversion    error = errors.New("failed to convert HEIC file to JPEG")         // 400
	ErrExportInProgress  error = errors.New("export is already running for this session")  // 409
	ErrResultNotReady    error = errors.New("archive is not ready yet")                    // 404
	ErrStalePreview      error = errors.New("session changed while rendering the preview") // 409
	ErrNoDrawableSurface error = errors.New("surface has no drawable area")                // 400
	ErrStorageFull       error = errors.New("session storage quota exceeded")              // 413
	ErrQueueFull         error = errors.New("export queue is full. Try again later")       // 503
)

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
	BMP  = "image/bmp"
	TIFF = "image/tiff"
	WEBP = "image/webp"
	HEIC = "image/heic"
	HEIF = "image/heif"
	MP4  = "video/mp4"
	MOV  = "video/quicktime"
	WEBM = "video/webm"
	MKV  = "video/x-matroska"
	AVI  = "video/x-msvideo"
	ZIP  = "application/zip"
)

var GetFileExt = map[string]string{
	JPEG: ".jpg",
	PNG:  ".png",
	GIF:  ".gif",
	BMP:  ".bmp",
	TIFF: ".tif",
	WEBP: ".webp",
	MP4:  ".mp4",
}

// GetCTypeByExt - запасной путь, когда браузер/клиент не прислал Content-Type
var GetCTypeByExt = map[string]string{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".png":  PNG,
	".gif":  GIF,
	".bmp":  BMP,
	".tif":  TIFF,
	".tiff": TIFF,
	".webp": WEBP,
	".heic": HEIC,
	".heif": HEIF,
	".mp4":  MP4,
	".m4v":  MP4,
	".mov":  MOV,
	".webm": WEBM,
	".mkv":  MKV,
	".avi":  AVI,
}

var InImageTypeMap = map[string]bool{
	JPEG: true,
	PNG:  true,
	GIF:  true,
	BMP:  true,
	TIFF: true,
	WEBP: true,
}

var InVideoTypeMap = map[string]bool{
	MP4:  true,
	MOV:  true,
	WEBM: true,
	MKV:  true,
	AVI:  true,
}

var GetCType = map[imaging.Format]string{
	imaging.JPEG: JPEG,
	imaging.PNG:  PNG,
	imaging.GIF:  GIF,
	imaging.BMP:  BMP,
	imaging.TIFF: TIFF,
}

var GetFormat = map[string]imaging.Format{
	JPEG: imaging.JPEG,
	PNG:  imaging.PNG,
	GIF:  imaging.GIF,
	BMP:  imaging.BMP,
	TIFF: imaging.TIFF,
}
