package tiles

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const DefaultTileSize = 256

// Projector converts geographic points (lng, lat) to pixel coordinates.
type Projector interface {
	Project(p orb.Point, zoom int) orb.Point
	TileSize() int
}

// WebMercator is the spherical mercator projection used by slippy maps.
type WebMercator struct {
	Size int
}

func NewWebMercator(size int) *WebMercator {
	if size <= 0 {
		size = DefaultTileSize
	}
	return &WebMercator{Size: size}
}

func (w *WebMercator) Project(p orb.Point, zoom int) orb.Point {
	f := maptile.Fraction(p, maptile.Zoom(zoom))
	size := float64(w.Size)
	return orb.Point{f.X() * size, f.Y() * size}
}

func (w *WebMercator) TileSize() int {
	return w.Size
}
