// Package tile provides web-mercator helpers shared by clustering and viewport fitting.
//
// Projected coordinates are normalized to [0,1] on both axes: x grows east, y grows south.
// Multiplying by 2^zoom gives tile coordinates at that zoom (see maptile.At).
package tile

import (
	"math"

	"github.com/paulmach/orb"
)

// MaxLatitude is the web-mercator latitude cut-off.
const MaxLatitude = 85.0511287798066

// ProjectX converts a longitude to normalized mercator x.
func ProjectX(lng float64) float64 {
	return lng/360 + 0.5
}

// ProjectY converts a latitude to normalized mercator y, clamped to [0,1].
func ProjectY(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	switch {
	case y < 0:
		return 0
	case y > 1:
		return 1
	}
	return y
}

// UnprojectX converts normalized mercator x back to longitude.
func UnprojectX(x float64) float64 {
	return (x - 0.5) * 360
}

// UnprojectY converts normalized mercator y back to latitude.
func UnprojectY(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}

// Project returns the normalized mercator position of a point.
func Project(p orb.Point) (x, y float64) {
	return ProjectX(p.Lon()), ProjectY(p.Lat())
}

// FitZoom returns the largest integer zoom at which the bound fits into a viewport of
// widthPx x heightPx pixels using 256px tiles, clamped to [minZoom, maxZoom].
func FitZoom(b orb.Bound, widthPx, heightPx float64, minZoom, maxZoom int) int {
	dx := ProjectX(b.Max.Lon()) - ProjectX(b.Min.Lon())
	dy := ProjectY(b.Min.Lat()) - ProjectY(b.Max.Lat())
	if dx <= 0 && dy <= 0 {
		return maxZoom
	}

	zoom := maxZoom
	for z := minZoom; z <= maxZoom; z++ {
		scale := 256 * math.Exp2(float64(z))
		if dx*scale > widthPx || dy*scale > heightPx {
			zoom = z - 1
			break
		}
	}
	if zoom < minZoom {
		return minZoom
	}
	return zoom
}
