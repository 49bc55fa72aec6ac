package ports

import "geotag-service/internal/domain"

// Optional sink recording tracker and brightness events for later analysis.
type TelemetrySink interface {
	RecordRoomEvent(ev domain.RoomEvent)
	RecordBrightness(ev domain.BrightnessEvent)
}
