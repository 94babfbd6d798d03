package imageproc

import "github.com/UnendingLoop/WatermarkStudio/internal/model"

// Padding - отступ ватермарка от края в единицах оригинального разрешения
const Padding = 10.0

// ResolvePlacement computes where the watermark lands on a surface of surfW x surfH.
// markW/markH are the natural watermark dimensions, previewScale is surface size
// divided by the natural size of the source (1 for export). The result is not clamped:
// the rectangle may extend outside the surface.
func ResolvePlacement(surfW, surfH, markW, markH float64, p model.Params, previewScale float64) model.Placement {
	if previewScale <= 0 {
		previewScale = 1
	}

	w := markW * p.Scale * previewScale
	h := markH * p.Scale * previewScale
	pad := Padding * previewScale

	var x, y float64
	switch p.Anchor {
	case model.AnchorTopLeft:
		x, y = pad, pad
	case model.AnchorTopRight:
		x, y = surfW-w-pad, pad
	case model.AnchorBottomLeft:
		x, y = pad, surfH-h-pad
	case model.AnchorCenter:
		x, y = (surfW-w)/2, (surfH-h)/2
	default: // bottom-right, как и в дефолтных параметрах
		x, y = surfW-w-pad, surfH-h-pad
	}

	// оффсеты заданы в пикселях оригинала - приводим к масштабу поверхности
	x += float64(p.OffsetX) * previewScale
	y += float64(p.OffsetY) * previewScale

	return model.Placement{
		X:      x,
		Y:      y,
		Width:  w,
		Height: h,
		PivotX: x + w/2,
		PivotY: y + h/2,
	}
}
