package services

import (
	"geotag-service/internal/domain"
)

// RoomEntryEpsilon widens rectangle bounds (~8.9 m) when deciding room entry,
// absorbing GPS jitter at the edges. Polygons are never widened.
const RoomEntryEpsilon = 0.00008

// Contains reports whether point lies inside region.
//
// Rectangles use inclusive bounds widened by eps on every side. Polygons use
// the even-odd ray-casting rule with longitude as x and latitude as y and
// ignore eps. A point exactly on a polygon edge or vertex may land on either
// side. A nil region contains nothing.
func Contains(point domain.Coordinate, region domain.Region, eps float64) bool {
	switch r := region.(type) {
	case domain.Rectangle:
		return rectangleContains(point, r, eps)
	case *domain.Rectangle:
		if r == nil {
			return false
		}
		return rectangleContains(point, *r, eps)
	case domain.Polygon:
		return polygonContains(point, r.Points)
	case *domain.Polygon:
		if r == nil {
			return false
		}
		return polygonContains(point, r.Points)
	default:
		return false
	}
}

func rectangleContains(p domain.Coordinate, r domain.Rectangle, eps float64) bool {
	return float64(r.MinLat)-eps <= p.Lat && p.Lat <= float64(r.MaxLat)+eps &&
		float64(r.MinLon)-eps <= p.Lon && p.Lon <= float64(r.MaxLon)+eps
}

func polygonContains(p domain.Coordinate, pts []domain.Coordinate) bool {
	if len(pts) < domain.MinPolygonPoints {
		return false
	}

	x, y := p.Lon, p.Lat
	inside := false
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		xi, yi := pts[i].Lon, pts[i].Lat
		xj, yj := pts[j].Lon, pts[j].Lat

		// Horizontal edges never cross the ray.
		if yi == yj {
			continue
		}
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
