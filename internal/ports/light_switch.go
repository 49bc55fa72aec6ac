package ports

import "context"

type LightAction string

const (
	LightOn  LightAction = "ON"
	LightOff LightAction = "OFF"
)

// Contract for switching a room's physical lights (e.g. through an MQTT bridge).
type LightSwitch interface {
	Switch(ctx context.Context, roomName string, action LightAction) error
}
