package services

import (
	"geotag-service/internal/domain"
	"testing"
)

func TestContainsRectangleBoundary(t *testing.T) {
	rect := domain.NewRectangle(10, 10, 20, 20)

	cases := []struct {
		name  string
		point domain.Coordinate
		eps   float64
		want  bool
	}{
		{"min corner inclusive", domain.Coordinate{Lat: 10, Lon: 10}, 0, true},
		{"max corner inclusive", domain.Coordinate{Lat: 20, Lon: 20}, 0, true},
		{"center", domain.Coordinate{Lat: 15, Lon: 15}, 0, true},
		{"just outside strict", domain.Coordinate{Lat: 9.99999, Lon: 15}, 0, false},
		{"just outside with entry epsilon", domain.Coordinate{Lat: 9.99999, Lon: 15}, RoomEntryEpsilon, true},
		{"beyond entry epsilon", domain.Coordinate{Lat: 9.9999, Lon: 15}, RoomEntryEpsilon, false},
		{"lon beyond entry epsilon", domain.Coordinate{Lat: 15, Lon: 20.0002}, RoomEntryEpsilon, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Contains(tc.point, rect, tc.eps); got != tc.want {
				t.Fatalf("Contains(%v, %v, %g) = %v, want %v", tc.point, rect, tc.eps, got, tc.want)
			}
		})
	}
}

func TestContainsUnitSquarePolygon(t *testing.T) {
	square, err := domain.NewPolygon([]domain.Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !Contains(domain.Coordinate{Lat: 0.5, Lon: 0.5}, square, 0) {
		t.Fatalf("center of unit square should be inside")
	}
	if Contains(domain.Coordinate{Lat: 2, Lon: 2}, square, 0) {
		t.Fatalf("(2,2) should be outside unit square")
	}
	// Vertices and edges are implementation-defined; only check that they
	// evaluate without panicking.
	_ = Contains(domain.Coordinate{Lat: 0, Lon: 0}, square, 0)
	_ = Contains(domain.Coordinate{Lat: 1, Lon: 0.5}, square, 0)
}

func TestContainsPolygonIgnoresEpsilon(t *testing.T) {
	square, _ := domain.NewPolygon([]domain.Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0}})
	justOutside := domain.Coordinate{Lat: 0.5, Lon: 1.00001}

	if Contains(justOutside, square, RoomEntryEpsilon) {
		t.Fatalf("polygon containment must not widen by epsilon")
	}
}

func TestContainsConcavePolygon(t *testing.T) {
	// U shape opening north; the notch (lat 0.5..1, lon 1..2) is outside.
	u, err := domain.NewPolygon([]domain.Coordinate{
		{Lat: 0, Lon: 0}, {Lat: 1, Lon: 0}, {Lat: 1, Lon: 1}, {Lat: 0.5, Lon: 1}, {Lat: 0.5, Lon: 2}, {Lat: 1, Lon: 2}, {Lat: 1, Lon: 3}, {Lat: 0, Lon: 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !Contains(domain.Coordinate{Lat: 0.25, Lon: 1.5}, u, 0) {
		t.Fatalf("base of U should be inside")
	}
	if Contains(domain.Coordinate{Lat: 0.75, Lon: 1.5}, u, 0) {
		t.Fatalf("notch of U should be outside")
	}
	if !Contains(domain.Coordinate{Lat: 0.75, Lon: 0.5}, u, 0) {
		t.Fatalf("left arm of U should be inside")
	}
}

func TestContainsNilAndShortRegions(t *testing.T) {
	p := domain.Coordinate{Lat: 0.5, Lon: 0.5}

	if Contains(p, nil, 1) {
		t.Fatalf("nil region should contain nothing")
	}
	short := domain.Polygon{Points: []domain.Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}}}
	if Contains(p, short, 0) {
		t.Fatalf("polygon with fewer than 4 points should contain nothing")
	}
	var nilRect *domain.Rectangle
	if Contains(p, nilRect, 0) {
		t.Fatalf("nil *Rectangle should contain nothing")
	}
}

func TestContainsHorizontalEdgesDoNotDivideByZero(t *testing.T) {
	// Both horizontal edges share the test point's latitude.
	rect, _ := domain.NewPolygon([]domain.Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 2}, {Lat: 1, Lon: 2}, {Lat: 1, Lon: 0}})
	if Contains(domain.Coordinate{Lat: 0, Lon: 5}, rect, 0) {
		t.Fatalf("point on extension of horizontal edge should be outside")
	}
}
