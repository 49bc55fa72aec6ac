package domain

import (
	"errors"
	"time"
)

var ErrUnknownLight = errors.New("unknown light")

// Light is a dimmable fixture in a room.
// ManualControl marks the brightness as user-owned; automatic adjustment
// never touches a light while it is set.
type Light struct {
	Name          string `json:"name"`
	Brightness    int    `json:"brightness"`
	ManualControl bool   `json:"manual_control"`
}

// BrightnessEvent is emitted whenever the controller pushes a new automatic
// brightness value to a room's lights.
type BrightnessEvent struct {
	RoomName  string    `json:"room"`
	Displayed int       `json:"displayed"`
	Raw       int       `json:"raw"`
	Reason    string    `json:"reason"`
	Lights    []Light   `json:"lights"`
	At        time.Time `json:"at"`
}
