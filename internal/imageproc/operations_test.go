package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

func testImageReader(t *testing.T, w, h int, format imaging.Format) *bytes.Reader {
	t.Helper()

	var buf bytes.Buffer
	err := imaging.Encode(&buf, solid(w, h, color.NRGBA{R: 100, G: 100, B: 200, A: 255}), format)
	require.NoError(t, err)

	return bytes.NewReader(buf.Bytes())
}

func paramsWith(anchor model.Anchor, scale float64) model.Params {
	p := model.DefaultParams()
	p.Anchor = anchor
	p.Scale = scale
	return p
}

func requireColor(t *testing.T, img image.Image, x, y int, want color.NRGBA) {
	t.Helper()

	got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	require.InDelta(t, want.R, got.R, 3, "R at %d,%d", x, y)
	require.InDelta(t, want.G, got.G, 3, "G at %d,%d", x, y)
	require.InDelta(t, want.B, got.B, 3, "B at %d,%d", x, y)
	require.InDelta(t, want.A, got.A, 3, "A at %d,%d", x, y)
}

func TestResolvePlacement_Anchors(t *testing.T) {
	tests := []struct {
		name   string
		anchor model.Anchor
		wantX  float64
		wantY  float64
	}{
		{"top-left", model.AnchorTopLeft, 10, 10},
		{"top-right", model.AnchorTopRight, 970, 10},
		{"bottom-left", model.AnchorBottomLeft, 10, 780},
		{"bottom-right", model.AnchorBottomRight, 970, 780},
		{"center", model.AnchorCenter, 490, 395},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl := ResolvePlacement(1000, 800, 100, 50, paramsWith(tt.anchor, 0.2), 1)

			require.InDelta(t, 20, pl.Width, 1e-9)
			require.InDelta(t, 10, pl.Height, 1e-9)
			require.InDelta(t, tt.wantX, pl.X, 1e-9)
			require.InDelta(t, tt.wantY, pl.Y, 1e-9)
			require.InDelta(t, tt.wantX+10, pl.PivotX, 1e-9)
			require.InDelta(t, tt.wantY+5, pl.PivotY, 1e-9)
		})
	}
}

func TestResolvePlacement_LinearInPreviewScale(t *testing.T) {
	for anchor := range model.AnchorsMap {
		p := paramsWith(anchor, 0.35)
		p.OffsetX, p.OffsetY = -24, 17

		k := 0.3
		small := ResolvePlacement(1000*k, 800*k, 120, 60, p, k)
		big := ResolvePlacement(1000*2*k, 800*2*k, 120, 60, p, 2*k)

		require.InDelta(t, 2*small.X, big.X, 1e-9, string(anchor))
		require.InDelta(t, 2*small.Y, big.Y, 1e-9, string(anchor))
		require.InDelta(t, 2*small.Width, big.Width, 1e-9, string(anchor))
		require.InDelta(t, 2*small.Height, big.Height, 1e-9, string(anchor))
		require.InDelta(t, 2*small.PivotX, big.PivotX, 1e-9, string(anchor))
	}
}

func TestResolvePlacement_OffsetScaledAndUnclamped(t *testing.T) {
	p := paramsWith(model.AnchorTopLeft, 1)
	p.OffsetX, p.OffsetY = -40, 20

	pl := ResolvePlacement(500, 400, 100, 50, p, 0.5)
	require.InDelta(t, 5-20, pl.X, 1e-9) // выходит за левый край - это ок
	require.InDelta(t, 5+10, pl.Y, 1e-9)
	require.InDelta(t, 50, pl.Width, 1e-9)

	// неположительный фактор считаем единицей
	require.Equal(t, ResolvePlacement(500, 400, 100, 50, p, 1), ResolvePlacement(500, 400, 100, 50, p, 0))
}

func TestResolvePlacement_ZeroRotationBounds(t *testing.T) {
	pl := ResolvePlacement(1000, 800, 100, 50, paramsWith(model.AnchorBottomRight, 0.2), 1)

	minX, minY, maxX, maxY := pl.Bounds(0)
	require.Equal(t, pl.X, minX)
	require.Equal(t, pl.Y, minY)
	require.Equal(t, pl.X+pl.Width, maxX)
	require.Equal(t, pl.Y+pl.Height, maxY)
}

func TestFitSurface(t *testing.T) {
	tests := []struct {
		name         string
		natW, natH   int
		maxW, maxH   int
		wantW, wantH int
		wantScale    float64
	}{
		{"landscape fit", 1000, 800, 500, 500, 500, 400, 0.5},
		{"portrait fit", 600, 1200, 500, 500, 250, 500, 500.0 / 1200},
		{"no upscale", 300, 200, 500, 500, 300, 200, 1},
		{"no limits", 300, 200, 0, 0, 300, 200, 1},
		{"empty source", 0, 200, 500, 500, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, scale := FitSurface(tt.natW, tt.natH, tt.maxW, tt.maxH)
			require.Equal(t, tt.wantW, w)
			require.Equal(t, tt.wantH, h)
			require.InDelta(t, tt.wantScale, scale, 1e-9)
		})
	}
}

func TestFitSurface_KeepsAspect(t *testing.T) {
	w, h, _ := FitSurface(1920, 1080, 640, 640)
	require.Equal(t, 640, w)
	require.Equal(t, 360, h)
	require.InDelta(t, 1920.0/1080.0, float64(w)/float64(h), 1e-9)
}

func TestComposite_DrawsMarkOverBase(t *testing.T) {
	dc := gg.NewContext(100, 80)
	mark := solid(10, 10, blue)
	p := paramsWith(model.AnchorTopLeft, 1)
	pl := ResolvePlacement(100, 80, 10, 10, p, 1)

	Composite(dc, solid(100, 80, red), mark, pl, 1, 0)
	img := dc.Image()

	requireColor(t, img, 15, 15, blue)
	requireColor(t, img, 5, 5, red)
	requireColor(t, img, 50, 50, red)
}

func TestComposite_OddSizedMarkStaysInPlacement(t *testing.T) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	pl := ResolvePlacement(100, 100, 3, 3, paramsWith(model.AnchorTopLeft, 10), 1)
	require.InDelta(t, 10, pl.X, 1e-9)
	require.InDelta(t, 30, pl.Width, 1e-9)

	dc := gg.NewContext(100, 100)
	Composite(dc, solid(100, 100, white), solid(3, 3, red), pl, 1, 0)
	img := dc.Image()

	// внутри [10,40) ватермарк, за его краем снова фон
	requireColor(t, img, 12, 25, red)
	requireColor(t, img, 25, 12, red)
	requireColor(t, img, 37, 37, red)
	requireColor(t, img, 42, 25, white)
	requireColor(t, img, 25, 42, white)
	requireColor(t, img, 7, 25, white)
}

func TestComposite_Opacity(t *testing.T) {
	dc := gg.NewContext(100, 80)
	pl := ResolvePlacement(100, 80, 10, 10, paramsWith(model.AnchorTopLeft, 1), 1)

	Composite(dc, solid(100, 80, red), solid(10, 10, blue), pl, 0.5, 0)

	requireColor(t, dc.Image(), 15, 15, color.NRGBA{R: 127, B: 128, A: 255})
}

func TestComposite_Rotation(t *testing.T) {
	p := paramsWith(model.AnchorCenter, 1)
	pl := ResolvePlacement(100, 100, 20, 10, p, 1)

	flat := gg.NewContext(100, 100)
	Composite(flat, solid(100, 100, red), solid(20, 10, blue), pl, 1, 0)
	requireColor(t, flat.Image(), 42, 50, blue)
	requireColor(t, flat.Image(), 50, 42, red)

	rotated := gg.NewContext(100, 100)
	Composite(rotated, solid(100, 100, red), solid(20, 10, blue), pl, 1, 90)
	requireColor(t, rotated.Image(), 42, 50, red)
	requireColor(t, rotated.Image(), 50, 42, blue)
}

func TestComposite_Idempotent(t *testing.T) {
	base := testImage(t)
	mark := solid(30, 12, color.NRGBA{G: 200, A: 180})
	p := paramsWith(model.AnchorBottomRight, 1.3)
	p.Rotation = 33
	p.Opacity = 0.7
	pl := ResolvePlacement(120, 90, 30, 12, p, 1)

	first := gg.NewContext(120, 90)
	Composite(first, base, mark, pl, p.Opacity, p.Rotation)

	second := gg.NewContext(120, 90)
	Composite(second, base, mark, pl, p.Opacity, p.Rotation)
	Composite(second, base, mark, pl, p.Opacity, p.Rotation) // второй проход не накапливается

	require.Equal(t, first.Image().(*image.RGBA).Pix, second.Image().(*image.RGBA).Pix)
}

func TestComposite_NotReadyIsNoop(t *testing.T) {
	dc := gg.NewContext(20, 20)
	dc.SetRGBA(0, 1, 0, 1)
	dc.Clear()

	Composite(dc, nil, solid(5, 5, blue), model.Placement{}, 1, 0)
	requireColor(t, dc.Image(), 10, 10, color.NRGBA{G: 255, A: 255})

	Composite(dc, solid(20, 20, red), nil, model.Placement{}, 1, 0)
	requireColor(t, dc.Image(), 10, 10, color.NRGBA{G: 255, A: 255})
}

func TestRender(t *testing.T) {
	img, pl, err := Render(solid(50, 40, red), solid(10, 5, blue), 100, 80, paramsWith(model.AnchorCenter, 1), 2)
	require.NoError(t, err)
	require.Equal(t, 100, img.Bounds().Dx())
	require.Equal(t, 80, img.Bounds().Dy())
	require.InDelta(t, 20, pl.Width, 1e-9)
	requireColor(t, img, 50, 40, blue)
	requireColor(t, img, 5, 5, red)

	_, _, err = Render(solid(50, 40, red), solid(10, 5, blue), 0, 80, model.DefaultParams(), 1)
	require.ErrorIs(t, err, model.ErrNoDrawableSurface)
}

func TestFrameCompositor_ReusesSurface(t *testing.T) {
	fc := NewFrameCompositor(solid(10, 10, blue), paramsWith(model.AnchorTopLeft, 1), 1)

	out, err := fc.Draw(solid(64, 48, red))
	require.NoError(t, err)
	requireColor(t, out, 15, 15, blue)

	out, err = fc.Draw(solid(64, 48, color.NRGBA{G: 255, A: 255}))
	require.NoError(t, err)
	requireColor(t, out, 40, 40, color.NRGBA{G: 255, A: 255})
	requireColor(t, out, 15, 15, blue)

	_, err = fc.Draw(nil)
	require.Error(t, err)
}

func TestDecodeImage(t *testing.T) {
	tests := []struct {
		name      string
		reader    io.Reader
		wantCType string
		wantErr   bool
	}{
		{"png", testImageReader(t, 40, 30, imaging.PNG), model.PNG, false},
		{"jpeg", testImageReader(t, 40, 30, imaging.JPEG), model.JPEG, false},
		{"gif", testImageReader(t, 40, 30, imaging.GIF), model.GIF, false},
		{"nil reader", nil, "", true},
		{"broken image", bytes.NewReader([]byte("not-an-image")), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, cType, err := DecodeImage(tt.reader)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantCType, cType)
			require.Equal(t, 40, img.Bounds().Dx())
			require.Equal(t, 30, img.Bounds().Dy())
		})
	}
}

func TestEncodeImage(t *testing.T) {
	img := solid(16, 16, red)

	tests := []struct {
		name      string
		cType     string
		wantCType string
	}{
		{"png preserved", model.PNG, model.PNG},
		{"jpeg preserved", model.JPEG, model.JPEG},
		{"bmp preserved", model.BMP, model.BMP},
		{"webp falls back to jpeg", model.WEBP, model.JPEG},
		{"unknown falls back to jpeg", "image/x-whatever", model.JPEG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, cType, err := EncodeImage(img, tt.cType, 90)
			require.NoError(t, err)
			require.Equal(t, tt.wantCType, cType)

			_, decodedCType, err := DecodeImage(bytes.NewReader(data))
			require.NoError(t, err)
			require.Equal(t, tt.wantCType, decodedCType)
		})
	}

	_, _, err := EncodeImage(nil, model.PNG, 90)
	require.Error(t, err)
}

func TestDefaultWatermark(t *testing.T) {
	wm := DefaultWatermark()
	require.True(t, wm.Default)
	require.NotNil(t, wm.Image)
	require.Greater(t, wm.Width, wm.Height)
	require.Equal(t, wm.Width, wm.Image.Bounds().Dx())
	require.Same(t, wm.Image, DefaultWatermark().Image)
}

func testImage(t *testing.T) image.Image {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 120, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 2), G: uint8(y * 2), B: 90, A: 255})
		}
	}
	return img
}
