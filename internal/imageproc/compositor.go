// Package imageproc provides watermark placement math, frame compositing and image codecs.
package imageproc

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// минимальный размер ватермарка, меньше которого рисовать нечего
const minMarkSide = 1e-3

// Composite clears dc, stretches base over the whole surface and draws mark into the
// resolved placement, rotated around the pivot and blended with opacity.
// A nil base or mark means the asset is not decoded yet: nothing is drawn.
func Composite(dc *gg.Context, base, mark image.Image, pl model.Placement, opacity, rotation float64) {
	if base == nil || mark == nil {
		return
	}
	drawFrame(dc, base, FadeMark(mark, opacity), pl, rotation)
}

// FadeMark returns a copy of mark with its alpha multiplied by opacity.
func FadeMark(mark image.Image, opacity float64) *image.NRGBA {
	b := mark.Bounds()
	faded := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	a := uint8(math.Round(clamp01(opacity) * 255))
	draw.DrawMask(faded, faded.Bounds(), mark, b.Min, image.NewUniform(color.Alpha{A: a}), image.Point{}, draw.Src)
	return faded
}

// Render allocates a surface of surfW x surfH and composites base and mark onto it.
func Render(base, mark image.Image, surfW, surfH int, p model.Params, previewScale float64) (image.Image, model.Placement, error) {
	if surfW <= 0 || surfH <= 0 {
		return nil, model.Placement{}, model.ErrNoDrawableSurface
	}

	dc := gg.NewContext(surfW, surfH)
	var pl model.Placement
	if mark != nil {
		mb := mark.Bounds()
		pl = ResolvePlacement(float64(surfW), float64(surfH), float64(mb.Dx()), float64(mb.Dy()), p, previewScale)
	}
	Composite(dc, base, mark, pl, p.Opacity, p.Rotation)

	return dc.Image(), pl, nil
}

// FrameCompositor draws the same watermark over a stream of frames of equal size.
// The faded mark and the placement are computed once.
type FrameCompositor struct {
	mark     *image.NRGBA
	params   model.Params
	scale    float64
	dc       *gg.Context
	surfW    int
	surfH    int
	place    model.Placement
	hasPlace bool
}

func NewFrameCompositor(mark image.Image, p model.Params, previewScale float64) *FrameCompositor {
	fc := &FrameCompositor{params: p, scale: previewScale}
	if mark != nil {
		fc.mark = FadeMark(mark, p.Opacity)
	}
	return fc
}

// Draw composites one frame. The returned image is owned by the compositor and is
// overwritten by the next call.
func (fc *FrameCompositor) Draw(frame image.Image) (image.Image, error) {
	if frame == nil {
		return nil, model.ErrEmptySource
	}
	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, model.ErrNoDrawableSurface
	}

	if fc.dc == nil || fc.surfW != w || fc.surfH != h {
		fc.dc = gg.NewContext(w, h)
		fc.surfW, fc.surfH = w, h
		fc.hasPlace = false
	}
	if fc.mark == nil {
		drawFrame(fc.dc, frame, nil, model.Placement{}, 0)
		return fc.dc.Image(), nil
	}
	if !fc.hasPlace {
		mb := fc.mark.Bounds()
		fc.place = ResolvePlacement(float64(w), float64(h), float64(mb.Dx()), float64(mb.Dy()), fc.params, fc.scale)
		fc.hasPlace = true
	}

	drawFrame(fc.dc, frame, fc.mark, fc.place, fc.params.Rotation)
	return fc.dc.Image(), nil
}

func drawFrame(dc *gg.Context, base image.Image, mark *image.NRGBA, pl model.Placement, rotation float64) {
	w, h := dc.Width(), dc.Height()

	// полная перерисовка - ничего не копится между вызовами
	dc.Identity()
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	bb := base.Bounds()
	if bb.Dx() != w || bb.Dy() != h {
		base = imaging.Resize(base, w, h, imaging.Linear)
	} else if bb.Min != (image.Point{}) {
		base = imaging.Clone(base)
	}
	dc.DrawImage(base, 0, 0)

	if mark == nil {
		return
	}
	mb := mark.Bounds()
	if mb.Dx() == 0 || mb.Dy() == 0 || pl.Width < minMarkSide || pl.Height < minMarkSide {
		return
	}

	dc.Push()
	dc.Translate(pl.PivotX, pl.PivotY)
	dc.Rotate(gg.Radians(rotation))
	dc.Scale(pl.Width/float64(mb.Dx()), pl.Height/float64(mb.Dy()))
	// центр по дробной половине: DrawImageAnchored округляет сдвиг до целого пикселя ватермарка
	dc.Translate(-float64(mb.Dx())/2, -float64(mb.Dy())/2)
	dc.DrawImage(mark, 0, 0)
	dc.Pop()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
