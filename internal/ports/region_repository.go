package ports

import (
	"context"
	"geotag-service/internal/domain"
)

// Port: persistence for calibrated room regions.
//
// Rectangles and polygons live in separate tiers. Older schemas lack the
// polygon tier; implementations report that as "not found" rather than an
// error.
type RegionRepository interface {
	// Return room names for a user in first-registration order.
	ListRoomNames(ctx context.Context, userID int64) ([]string, error)

	// Create the room row if missing, leaving its bounds empty.
	RegisterRoom(ctx context.Context, userID int64, roomName string) error

	// Replace the rectangle tier for a room. Clears any stored polygon.
	SaveRectangle(ctx context.Context, userID int64, roomName string, rect domain.Rectangle) error

	// Replace the polygon tier for a room (delete then reinsert all points
	// in one transaction) and store its bounding rectangle alongside.
	SavePolygon(ctx context.Context, userID int64, roomName string, poly domain.Polygon) error

	// Return the stored rectangle. found is false when the room is unknown
	// or was registered without bounds.
	LoadRectangle(ctx context.Context, roomName string) (rect domain.Rectangle, found bool, err error)

	// Return the ordered polygon points. found is false when no points are
	// stored or the polygon tier does not exist.
	LoadPolygon(ctx context.Context, roomName string) (points []domain.Coordinate, found bool, err error)

	// Return whether a room row exists for the name.
	RoomExists(ctx context.Context, roomName string) (bool, error)

	// Remove every tier for the room. Deleting an absent room is not an error.
	DeleteRoom(ctx context.Context, userID int64, roomName string) error
}
