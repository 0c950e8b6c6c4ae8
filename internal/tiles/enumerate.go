package tiles

import (
	"math"

	"github.com/paulmach/orb"
)

// seen is the zoom -> row -> col index used to drop repeated tiles.
type seen map[int]map[int]map[int]bool

func (s seen) add(z, row, col int) bool {
	rows, ok := s[z]
	if !ok {
		rows = make(map[int]map[int]bool)
		s[z] = rows
	}
	cols, ok := rows[row]
	if !ok {
		cols = make(map[int]bool)
		rows[row] = cols
	}
	if cols[col] {
		return false
	}
	cols[col] = true
	return true
}

// Enumerate lists every tile covering boxes for each zoom in [minZoom, maxZoom].
// Each tile appears once, in discovery order (box, zoom, row, col).
// It returns nil when minZoom > maxZoom, either zoom is outside [0, MaxZoom],
// or proj is nil.
func Enumerate(boxes []orb.Bound, minZoom, maxZoom int, proj Projector) []Tile {
	if minZoom > maxZoom || minZoom < 0 || maxZoom > MaxZoom || proj == nil {
		return nil
	}
	size := float64(proj.TileSize())
	if size <= 0 {
		return nil
	}

	index := make(seen)
	var out []Tile

	for _, box := range boxes {
		for z := minZoom; z <= maxZoom; z++ {
			ne := proj.Project(box.Max, z)
			sw := proj.Project(box.Min, z)

			neCol, neRow := int(math.Floor(ne.X()/size)), int(math.Floor(ne.Y()/size))
			swCol, swRow := int(math.Floor(sw.X()/size)), int(math.Floor(sw.Y()/size))

			minCol, maxCol := min(neCol, swCol), max(neCol, swCol)
			minRow, maxRow := min(neRow, swRow), max(neRow, swRow)

			for row := minRow; row <= maxRow; row++ {
				for col := minCol; col <= maxCol; col++ {
					if index.add(z, row, col) {
						out = append(out, Tile{Z: z, X: col, Y: row})
					}
				}
			}
		}
	}

	return out
}
