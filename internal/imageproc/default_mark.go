package imageproc

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	defaultMarkText = "WATERMARK"
	defaultMarkZoom = 6
	defaultMarkPad  = 4
)

var defaultMark struct {
	once sync.Once
	img  *image.NRGBA
}

// DefaultWatermark returns the bundled watermark used until the user uploads one.
func DefaultWatermark() *model.WatermarkAsset {
	defaultMark.once.Do(func() {
		defaultMark.img = renderDefaultMark()
	})
	b := defaultMark.img.Bounds()
	return &model.WatermarkAsset{
		Name:        "default",
		ContentType: model.PNG,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Default:     true,
		Image:       defaultMark.img,
	}
}

// белый текст на полупрозрачной плашке, потом целочисленный апскейл без сглаживания
func renderDefaultMark() *image.NRGBA {
	face := basicfont.Face7x13
	textW := font.MeasureString(face, defaultMarkText).Ceil()
	metrics := face.Metrics()
	textH := (metrics.Ascent + metrics.Descent).Ceil()

	w, h := textW+2*defaultMarkPad, textH+2*defaultMarkPad
	small := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(small, small.Bounds(), image.NewUniform(color.NRGBA{A: 96}), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
		Dot:  fixed.P(defaultMarkPad, defaultMarkPad+metrics.Ascent.Ceil()),
	}
	d.DrawString(defaultMarkText)

	return imaging.Resize(small, w*defaultMarkZoom, h*defaultMarkZoom, imaging.NearestNeighbor)
}
