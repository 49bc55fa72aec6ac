package api

import (
	"geotag-service/internal/api/handlers"
	"geotag-service/internal/platform/metrics"
	"geotag-service/internal/services"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(
	regions *services.RegionStore,
	trackers *services.TrackerRegistry,
	lighting *services.LightingService,
	hub *handlers.EventHub,
	m *metrics.Collector,
) http.Handler {
	mux := http.NewServeMux()

	roomHandler := &handlers.RoomHandler{Regions: regions}
	trackingHandler := &handlers.TrackingHandler{Trackers: trackers}
	lightHandler := &handlers.LightHandler{Lighting: lighting}

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/rooms", roomHandler.Rooms)
	mux.HandleFunc("/positions", trackingHandler.Position)
	mux.HandleFunc("/sessions", trackingHandler.Sessions)
	mux.HandleFunc("/motion", lightHandler.Motion)
	mux.HandleFunc("/lights", lightHandler.Lights)
	mux.HandleFunc("/lights/manual", lightHandler.Manual)
	if hub != nil {
		mux.Handle("/events", hub)
	}
	if g := m.Gatherer(); g != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}

	return loggingMiddleware(mux)
}
