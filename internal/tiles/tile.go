// Package tiles addresses map tiles and enumerates the tiles covering a region.
package tiles

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxZoom is the deepest zoom a Tile can address.
const MaxZoom = 30

// Tile identifies one tile. X is the column and Y the row.
type Tile struct {
	Z int
	X int
	Y int
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Valid reports whether the tile lies inside the world at its zoom.
func (t Tile) Valid() bool {
	if t.Z < 0 || t.Z > MaxZoom || t.X < 0 || t.Y < 0 {
		return false
	}
	n := 1 << t.Z
	return t.X < n && t.Y < n
}

// Template renders tile URLs from a Leaflet-style pattern such as
// https://{s}.tile.example.org/{z}/{x}/{y}.png.
type Template struct {
	pattern    string
	subdomains []string
}

func NewTemplate(pattern string, subdomains []string) (*Template, error) {
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(pattern, p) {
			return nil, fmt.Errorf("tile url template %q is missing %s", pattern, p)
		}
	}
	if strings.Contains(pattern, "{s}") && len(subdomains) == 0 {
		return nil, fmt.Errorf("tile url template %q uses {s} but no subdomains are configured", pattern)
	}
	return &Template{pattern: pattern, subdomains: subdomains}, nil
}

// URL returns the canonical fetch URL, which also serves as the cache key.
func (t *Template) URL(tile Tile) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(tile.Z),
		"{x}", strconv.Itoa(tile.X),
		"{y}", strconv.Itoa(tile.Y),
		"{s}", t.subdomain(tile),
		"{r}", "",
	)
	return r.Replace(t.pattern)
}

func (t *Template) subdomain(tile Tile) string {
	if len(t.subdomains) == 0 {
		return ""
	}
	i := (tile.X + tile.Y) % len(t.subdomains)
	if i < 0 {
		i += len(t.subdomains)
	}
	return t.subdomains[i]
}
