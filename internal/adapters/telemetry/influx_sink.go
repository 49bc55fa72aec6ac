package telemetry

import (
	"errors"
	"geotag-service/internal/domain"
	"log"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	roomEventMeasurement  = "room_event"
	brightnessMeasurement = "brightness"
)

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes room transitions and brightness updates to InfluxDB.
// Writes are batched in the background; failures are logged only.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	done     chan struct{}
}

func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx config incomplete")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	s := &InfluxSink{client: client, writeAPI: writeAPI, done: make(chan struct{})}

	// Errors must be drained or the writer blocks.
	errs := writeAPI.Errors()
	go func() {
		defer close(s.done)
		for err := range errs {
			log.Printf("telemetry: influx write error: %v", err)
		}
	}()

	return s, nil
}

func (s *InfluxSink) RecordRoomEvent(ev domain.RoomEvent) {
	s.writeAPI.WritePoint(RoomEventPoint(ev))
}

func (s *InfluxSink) RecordBrightness(ev domain.BrightnessEvent) {
	s.writeAPI.WritePoint(BrightnessPoint(ev))
}

// Close flushes pending points and releases the client.
func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
	<-s.done
}

func RoomEventPoint(ev domain.RoomEvent) *write.Point {
	tags := map[string]string{
		"user_id": strconv.FormatInt(ev.UserID, 10),
		"room":    ev.RoomName,
		"type":    string(ev.Type),
	}
	fields := map[string]interface{}{
		"latitude":  ev.Position.Lat,
		"longitude": ev.Position.Lon,
	}
	return influxdb2.NewPoint(roomEventMeasurement, tags, fields, ev.At)
}

func BrightnessPoint(ev domain.BrightnessEvent) *write.Point {
	tags := map[string]string{
		"room":   ev.RoomName,
		"reason": ev.Reason,
	}
	manual := 0
	for _, l := range ev.Lights {
		if l.ManualControl {
			manual++
		}
	}
	fields := map[string]interface{}{
		"displayed":     ev.Displayed,
		"raw":           ev.Raw,
		"lights":        len(ev.Lights),
		"manual_lights": manual,
	}
	return influxdb2.NewPoint(brightnessMeasurement, tags, fields, ev.At)
}
