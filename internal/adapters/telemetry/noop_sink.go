package telemetry

import "geotag-service/internal/domain"

// NoopSink drops every event. Wired when InfluxDB is not configured.
type NoopSink struct{}

func (NoopSink) RecordRoomEvent(domain.RoomEvent)       {}
func (NoopSink) RecordBrightness(domain.BrightnessEvent) {}
