package telemetry

import (
	"geotag-service/internal/domain"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagMap(p *write.Point) map[string]string {
	m := make(map[string]string)
	for _, t := range p.TagList() {
		m[t.Key] = t.Value
	}
	return m
}

func fieldMap(p *write.Point) map[string]any {
	m := make(map[string]any)
	for _, f := range p.FieldList() {
		m[f.Key] = f.Value
	}
	return m
}

func TestRoomEventPoint(t *testing.T) {
	at := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	p := RoomEventPoint(domain.RoomEvent{
		Type:     domain.RoomEntered,
		UserID:   7,
		RoomName: "Kitchen",
		Position: domain.Coordinate{Lat: 1.5, Lon: 1.25},
		At:       at,
	})

	assert.Equal(t, "room_event", p.Name())
	assert.Equal(t, at, p.Time())
	assert.Equal(t, map[string]string{"user_id": "7", "room": "Kitchen", "type": "room_entered"}, tagMap(p))
	assert.Equal(t, map[string]any{"latitude": 1.5, "longitude": 1.25}, fieldMap(p))
}

func TestBrightnessPointCountsManualLights(t *testing.T) {
	p := BrightnessPoint(domain.BrightnessEvent{
		RoomName:  "Kitchen",
		Displayed: 120,
		Raw:       190,
		Reason:    "motion",
		Lights: []domain.Light{
			{Name: "ceiling", Brightness: 120},
			{Name: "lamp", Brightness: 30, ManualControl: true},
		},
	})

	fields := fieldMap(p)
	// The client stores ints as int64.
	assert.Equal(t, int64(120), fields["displayed"])
	assert.Equal(t, int64(190), fields["raw"])
	assert.Equal(t, int64(2), fields["lights"])
	assert.Equal(t, int64(1), fields["manual_lights"])
	assert.Equal(t, "motion", tagMap(p)["reason"])
}

func TestNewInfluxSinkRequiresConfig(t *testing.T) {
	_, err := NewInfluxSink(InfluxConfig{URL: "http://localhost:8086"})
	require.Error(t, err)
}
