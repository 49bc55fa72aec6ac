package domain

import (
	"errors"
	"fmt"
)

// MinPolygonPoints is the smallest ordered outline accepted as a Polygon.
const MinPolygonPoints = 4

var ErrInvalidPolygon = errors.New("polygon needs at least 4 points")

// Region is the spatial extent of a calibrated room.
// It is either a Rectangle (legacy two-corner calibration) or a Polygon.
// A nil Region means the room has no usable calibration.
type Region interface {
	// Bounds returns the axis-aligned box enclosing the region.
	Bounds() Rectangle
	isRegion()
}

// Rectangle is an axis-aligned box with Min <= Max on both axes.
// Bounds are stored as float32, matching the calibration columns.
type Rectangle struct {
	MinLat float32
	MaxLat float32
	MinLon float32
	MaxLon float32
}

// NewRectangle builds a Rectangle from two arbitrary corners, normalizing
// so that min <= max regardless of input order.
func NewRectangle(lat1, lon1, lat2, lon2 float32) Rectangle {
	return Rectangle{
		MinLat: min(lat1, lat2),
		MaxLat: max(lat1, lat2),
		MinLon: min(lon1, lon2),
		MaxLon: max(lon1, lon2),
	}
}

func (r Rectangle) Bounds() Rectangle { return r }

// IsZero reports whether all bounds are zero.
//
// The all-zero box is what storage returns for a room that was registered but
// never calibrated. It is indistinguishable from a real box at the origin.
func (r Rectangle) IsZero() bool {
	return r == Rectangle{}
}

func (r Rectangle) String() string {
	return fmt.Sprintf("lat[%g..%g] lon[%g..%g]", r.MinLat, r.MaxLat, r.MinLon, r.MaxLon)
}

func (Rectangle) isRegion() {}

// Polygon is an ordered outline; edges run point to point and close last to
// first. Convexity is not required. Self-intersecting outlines are evaluated
// with the even-odd rule as-is.
type Polygon struct {
	Points []Coordinate
}

// NewPolygon copies points into a Polygon, rejecting outlines shorter than
// MinPolygonPoints.
func NewPolygon(points []Coordinate) (Polygon, error) {
	if len(points) < MinPolygonPoints {
		return Polygon{}, fmt.Errorf("new polygon: got %d points: %w", len(points), ErrInvalidPolygon)
	}

	cp := make([]Coordinate, len(points))
	copy(cp, points)
	return Polygon{Points: cp}, nil
}

// Bounds returns the bounding box of the outline.
func (p Polygon) Bounds() Rectangle {
	if len(p.Points) == 0 {
		return Rectangle{}
	}

	r := Rectangle{
		MinLat: float32(p.Points[0].Lat),
		MaxLat: float32(p.Points[0].Lat),
		MinLon: float32(p.Points[0].Lon),
		MaxLon: float32(p.Points[0].Lon),
	}
	for _, pt := range p.Points[1:] {
		r.MinLat = min(r.MinLat, float32(pt.Lat))
		r.MaxLat = max(r.MaxLat, float32(pt.Lat))
		r.MinLon = min(r.MinLon, float32(pt.Lon))
		r.MaxLon = max(r.MaxLon, float32(pt.Lon))
	}
	return r
}

func (Polygon) isRegion() {}
