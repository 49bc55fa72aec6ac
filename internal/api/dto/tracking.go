package dto

// PositionRequest is one location fix. UserDetails is forwarded as the
// user_details field of movement records; when empty the first value seen for
// the user (or "user-<id>") is kept.
type PositionRequest struct {
	UserID      int64    `json:"user_id"`
	UserDetails string   `json:"user_details,omitempty"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
}

type PositionResponse struct {
	UserID        int64       `json:"user_id"`
	CurrentRoom   string      `json:"current_room"`
	LoggingActive bool        `json:"logging_active"`
	Evaluated     bool        `json:"evaluated"`
	LastAccepted  *[2]float64 `json:"last_accepted,omitempty"`
}

// MotionRequest carries either a raw accelerometer sample (x, y, z in m/s²)
// or a gravity-compensated magnitude.
type MotionRequest struct {
	Room      string   `json:"room"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Z         *float64 `json:"z,omitempty"`
	Magnitude *float64 `json:"magnitude,omitempty"`
}

type MotionResponse struct {
	Room           string `json:"room"`
	Accepted       bool   `json:"accepted"`
	Raw            int    `json:"raw"`
	Displayed      int    `json:"displayed"`
	PendingDecay   bool   `json:"pending_decay"`
	PendingReblend bool   `json:"pending_reblend"`
}
