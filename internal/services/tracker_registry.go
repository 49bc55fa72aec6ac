package services

import (
	"fmt"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/clock"
	"geotag-service/internal/platform/metrics"
	"geotag-service/internal/ports"
	"sync"
)

// TrackerRegistry owns one RoomTracker per user. Each tracker has its own
// state and its own logging session.
type TrackerRegistry struct {
	mu        sync.Mutex
	trackers  map[int64]*RoomTracker
	regions   RegionLookup
	newLogger func(userID int64) ports.MoveLogger
	clock     clock.Clock
	metrics   *metrics.Collector
	cfg       TrackerConfig
	observers []func(domain.RoomEvent)
}

func NewTrackerRegistry(
	regions RegionLookup,
	newLogger func(userID int64) ports.MoveLogger,
	clk clock.Clock,
	m *metrics.Collector,
	cfg TrackerConfig,
) *TrackerRegistry {
	return &TrackerRegistry{
		trackers:  make(map[int64]*RoomTracker),
		regions:   regions,
		newLogger: newLogger,
		clock:     clk,
		metrics:   m,
		cfg:       cfg,
	}
}

// OnRoomEvent registers fn with every current and future tracker.
func (r *TrackerRegistry) OnRoomEvent(fn func(domain.RoomEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers = append(r.observers, fn)
	for _, t := range r.trackers {
		t.Subscribe(fn)
	}
}

// Tracker returns the user's tracker, creating it on first use. A non-empty
// userDetails replaces the identity sent with the next logging session.
func (r *TrackerRegistry) Tracker(userID int64, userDetails string) *RoomTracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trackers[userID]; ok {
		if userDetails != "" {
			t.SetUserDetails(userDetails)
		}
		return t
	}

	if userDetails == "" {
		userDetails = fmt.Sprintf("user-%d", userID)
	}
	var logger ports.MoveLogger
	if r.newLogger != nil {
		logger = r.newLogger(userID)
	}
	t := NewRoomTracker(userID, userDetails, r.regions, logger, r.clock, r.metrics, r.cfg)
	for _, fn := range r.observers {
		t.Subscribe(fn)
	}
	r.trackers[userID] = t
	return t
}

// Stop shuts down and forgets the user's tracker. It reports whether one
// existed.
func (r *TrackerRegistry) Stop(userID int64) bool {
	r.mu.Lock()
	t, ok := r.trackers[userID]
	delete(r.trackers, userID)
	r.mu.Unlock()

	if ok {
		t.Shutdown()
	}
	return ok
}

// Close shuts down every tracker.
func (r *TrackerRegistry) Close() {
	r.mu.Lock()
	trackers := r.trackers
	r.trackers = make(map[int64]*RoomTracker)
	r.mu.Unlock()

	for _, t := range trackers {
		t.Shutdown()
	}
}
