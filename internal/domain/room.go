package domain

import (
	"errors"
	"time"
)

var ErrEmptyRoomName = errors.New("room name must be non-empty")

// A calibrated room owned by a user. RoomName is the primary identifier;
// saving under an existing name replaces the previous region.
type CalibratedRoom struct {
	UserID   int64
	RoomName string
	Region   Region
}

// RoomEventType distinguishes tracker transitions.
type RoomEventType string

const (
	RoomEntered RoomEventType = "room_entered"
	RoomExited  RoomEventType = "room_exited"
)

// RoomEvent is emitted by a RoomTracker when the matched room changes.
// Presentation layers and telemetry subscribe to these instead of polling.
type RoomEvent struct {
	Type     RoomEventType `json:"type"`
	UserID   int64         `json:"user_id"`
	RoomName string        `json:"room"`
	Position Coordinate    `json:"position"`
	At       time.Time     `json:"at"`
}
