package services

import (
	"fmt"
	"geotag-service/internal/domain"

	"gonum.org/v1/gonum/floats"
)

// Calibration builds regions from the raw fixes a user collects while
// walking a room. Three flows exist: N free samples (bounding box), two
// opposite corners (rectangle) and an ordered outline of corners (polygon).

// RectangleFromSamples returns the bounding box of the sampled fixes.
func RectangleFromSamples(samples []domain.Coordinate) (domain.Rectangle, error) {
	if len(samples) == 0 {
		return domain.Rectangle{}, fmt.Errorf("rectangle from samples: %w", domain.ErrNoSamples)
	}

	lats := make([]float64, len(samples))
	lons := make([]float64, len(samples))
	for i, s := range samples {
		lats[i] = s.Lat
		lons[i] = s.Lon
	}

	return domain.NewRectangle(
		float32(floats.Min(lats)), float32(floats.Min(lons)),
		float32(floats.Max(lats)), float32(floats.Max(lons)),
	), nil
}

// RectangleFromCorners normalizes two opposite corners into a Rectangle.
func RectangleFromCorners(a, b domain.Coordinate) domain.Rectangle {
	return domain.NewRectangle(float32(a.Lat), float32(a.Lon), float32(b.Lat), float32(b.Lon))
}

// PolygonFromCorners keeps the walking order of the corners as the outline.
func PolygonFromCorners(corners []domain.Coordinate) (domain.Polygon, error) {
	poly, err := domain.NewPolygon(corners)
	if err != nil {
		return domain.Polygon{}, fmt.Errorf("polygon from corners: %w", err)
	}
	return poly, nil
}

// Centroid returns the arithmetic mean of the fixes. Used to report where a
// calibration session was centred.
func Centroid(samples []domain.Coordinate) (domain.Coordinate, error) {
	if len(samples) == 0 {
		return domain.Coordinate{}, fmt.Errorf("centroid: %w", domain.ErrNoSamples)
	}

	lats := make([]float64, len(samples))
	lons := make([]float64, len(samples))
	for i, s := range samples {
		lats[i] = s.Lat
		lons[i] = s.Lon
	}
	n := float64(len(samples))
	return domain.Coordinate{Lat: floats.Sum(lats) / n, Lon: floats.Sum(lons) / n}, nil
}
