package imageproc

import "math"

// FitSurface returns the preview surface size for a source of natW x natH that fits
// into maxW x maxH without upscaling, and the preview scale factor (surface / natural).
// Non-positive limits mean "no limit" on that axis.
func FitSurface(natW, natH, maxW, maxH int) (int, int, float64) {
	if natW <= 0 || natH <= 0 {
		return 0, 0, 0
	}

	factor := 1.0
	if maxW > 0 {
		factor = math.Min(factor, float64(maxW)/float64(natW))
	}
	if maxH > 0 {
		factor = math.Min(factor, float64(maxH)/float64(natH))
	}
	if factor == 1 {
		return natW, natH, 1
	}

	// ведущую сторону считаем от фактора, вторую - от нее, чтобы ратио не уезжало
	var w, h int
	if float64(natW)/float64(natH) >= 1 {
		w = max(int(math.Round(float64(natW)*factor)), 1)
		h = max(int(math.Round(float64(w)*float64(natH)/float64(natW))), 1)
		factor = float64(w) / float64(natW)
	} else {
		h = max(int(math.Round(float64(natH)*factor)), 1)
		w = max(int(math.Round(float64(h)*float64(natW)/float64(natH))), 1)
		factor = float64(h) / float64(natH)
	}

	return w, h, factor
}
