package dto

// RoomRequest creates or calibrates a room. At most one of Corners, Polygon
// and Samples may be set; with none the room is registered uncalibrated.
// Points are [lat, lon].
type RoomRequest struct {
	UserID   int64        `json:"user_id"`
	RoomName string       `json:"room_name"`
	Corners  [][2]float64 `json:"corners,omitempty"`
	Polygon  [][2]float64 `json:"polygon,omitempty"`
	Samples  [][2]float64 `json:"samples,omitempty"`
}

type BoundsResponse struct {
	MinLat float32 `json:"min_lat"`
	MaxLat float32 `json:"max_lat"`
	MinLon float32 `json:"min_lon"`
	MaxLon float32 `json:"max_lon"`
}

// RoomResponse describes a stored room. Center is the mean of the polygon
// points or of the rectangle corners; it is omitted for uncalibrated rooms.
type RoomResponse struct {
	RoomName string         `json:"room_name"`
	Kind     string         `json:"kind"`
	Bounds   BoundsResponse `json:"bounds"`
	Center   *[2]float64    `json:"center,omitempty"`
	Polygon  [][2]float64   `json:"polygon,omitempty"`
}

type ListRoomsResponse struct {
	UserID int64          `json:"user_id"`
	Rooms  []RoomResponse `json:"rooms"`
}
