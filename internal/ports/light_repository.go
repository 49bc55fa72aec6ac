package ports

import (
	"context"
	"geotag-service/internal/domain"
)

// Port: persistence for the lights configured in a room.
type LightRepository interface {
	// Replace the room's lights wholesale.
	SaveLights(ctx context.Context, roomName string, lights []domain.Light) error
	// Return the room's lights in insertion order.
	LoadLights(ctx context.Context, roomName string) ([]domain.Light, error)
}
