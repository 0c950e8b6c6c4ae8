// Package geo expands seed points and polylines into small bounding boxes.
//
// Points follow the [lat, lng] convention. Boxes are orb.Bound values, whose
// X axis is longitude and Y axis is latitude.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// degreesPerFoot is an approximate conversion, not geodesically exact.
const degreesPerFoot = 0.0001 / 6

type Point struct {
	Lat float64
	Lng float64
}

// PointFrom reads a [lat, lng] pair.
func PointFrom(pair [2]float64) Point {
	return Point{Lat: pair[0], Lng: pair[1]}
}

// Orb returns the point as an orb.Point (lng, lat).
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Buffer converts a radius in feet to degrees.
func Buffer(feet float64) float64 {
	return feet * degreesPerFoot
}

// MakeBox returns the box centered on p, extended by buffer in each direction.
func MakeBox(p Point, buffer float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{p.Lng - buffer, p.Lat - buffer},
		Max: orb.Point{p.Lng + buffer, p.Lat + buffer},
	}
}

// Distance is the straight-line distance in degree space.
func Distance(a, b Point) float64 {
	dLat := b.Lat - a.Lat
	dLng := b.Lng - a.Lng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// Interpolate returns the evenly spaced points strictly between start and end,
// ceil(distance/buffer)-1 of them, so that boxes along the segment overlap.
func Interpolate(start, end Point, buffer float64) []Point {
	if buffer <= 0 {
		return nil
	}
	d := Distance(start, end)
	if d <= buffer {
		return nil
	}

	count := d / buffer
	var out []Point
	for i := 0; float64(i) < count-1; i++ {
		f := float64(i+1) / count
		out = append(out, Point{
			Lat: start.Lat + (end.Lat-start.Lat)*f,
			Lng: start.Lng + (end.Lng-start.Lng)*f,
		})
	}
	return out
}

// Expand produces a box for every point and for every original and
// interpolated vertex of every line. Duplicates are kept.
func Expand(points []Point, lines [][]Point, buffer float64) []orb.Bound {
	boxes := make([]orb.Bound, 0, len(points))

	for _, p := range points {
		boxes = append(boxes, MakeBox(p, buffer))
	}

	for _, line := range lines {
		for i, p := range line {
			if i > 0 {
				for _, mid := range Interpolate(line[i-1], p, buffer) {
					boxes = append(boxes, MakeBox(mid, buffer))
				}
			}
			boxes = append(boxes, MakeBox(p, buffer))
		}
	}

	return boxes
}
