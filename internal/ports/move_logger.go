package ports

import "geotag-service/internal/domain"

// PositionSource returns the latest known position at call time.
type PositionSource func() domain.Coordinate

// Contract for the movement logging collaborator driven by RoomTracker.
//
// Calls are fire-and-forget: implementations must return promptly and keep
// network failures to themselves.
type MoveLogger interface {
	// Begin periodic reporting tagged with roomName. A running session is
	// replaced.
	StartLogging(roomName string, source PositionSource, userIdentity string)
	// Stop the current session, if any.
	StopLogging()
}
