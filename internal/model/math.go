package model

import "math"

func sincosDeg(deg float64) (float64, float64) {
	return math.Sincos(deg * math.Pi / 180)
}

func abs(v float64) float64 {
	return math.Abs(v)
}
