package services

import (
	"context"
	"fmt"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/clock"
	"geotag-service/internal/platform/metrics"
	"geotag-service/internal/ports"
	"log"
	"sync"
)

// MovementThresholdMeters is the minimum distance between accepted samples.
// Closer fixes are treated as jitter and dropped.
const MovementThresholdMeters = 2.0

// RegionLookup is the read side of RegionStore used by trackers.
type RegionLookup interface {
	RoomNames(ctx context.Context, userID int64) ([]string, error)
	GetRegion(ctx context.Context, roomName string) (domain.Region, error)
}

type TrackerConfig struct {
	MovementThresholdMeters float64
	EntryEpsilon            float64
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MovementThresholdMeters: MovementThresholdMeters,
		EntryEpsilon:            RoomEntryEpsilon,
	}
}

// TrackerStatus is a snapshot of a tracker's state.
type TrackerStatus struct {
	UserID        int64              `json:"user_id"`
	CurrentRoom   string             `json:"current_room,omitempty"`
	LoggingActive bool               `json:"logging_active"`
	LastAccepted  *domain.Coordinate `json:"last_accepted,omitempty"`
	// Evaluated is false when the sample was dropped by the movement filter.
	Evaluated bool `json:"evaluated"`
}

type trackerState struct {
	currentRoom   string
	loggingActive bool
	lastAccepted  *domain.Coordinate
}

// RoomTracker turns a user's position samples into room enter and exit
// transitions, starting and stopping a movement logging session as it goes.
//
// States are Idle (currentRoom == "") and InRoom(name). Samples are processed
// one at a time.
type RoomTracker struct {
	mu         sync.Mutex
	dispatchMu sync.Mutex
	posMu      sync.RWMutex

	userID   int64
	identity string
	regions  RegionLookup
	logger   ports.MoveLogger
	clock    clock.Clock
	metrics  *metrics.Collector
	cfg      TrackerConfig

	state  trackerState
	latest *domain.Coordinate

	nextSubID   int
	subscribers map[int]func(domain.RoomEvent)
}

func NewRoomTracker(
	userID int64,
	identity string,
	regions RegionLookup,
	logger ports.MoveLogger,
	clk clock.Clock,
	m *metrics.Collector,
	cfg TrackerConfig,
) *RoomTracker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if cfg.MovementThresholdMeters <= 0 {
		cfg.MovementThresholdMeters = MovementThresholdMeters
	}
	return &RoomTracker{
		userID:      userID,
		identity:    identity,
		regions:     regions,
		logger:      logger,
		clock:       clk,
		metrics:     m,
		cfg:         cfg,
		subscribers: make(map[int]func(domain.RoomEvent)),
	}
}

// Subscribe registers fn for room events and returns a func that removes it.
// fn runs on the goroutine that processed the sample and must not call back
// into the tracker.
func (t *RoomTracker) Subscribe(fn func(domain.RoomEvent)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subscribers, id)
	}
}

// SetUserDetails changes the identity passed to the move logger. A session
// already running keeps the identity it was started with.
func (t *RoomTracker) SetUserDetails(details string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.identity = details
}

// HandleSample processes one position fix.
//
// An error is returned only when the user's room list cannot be read; the
// tracker then keeps its current state.
func (t *RoomTracker) HandleSample(ctx context.Context, p domain.Coordinate) (TrackerStatus, error) {
	t.setLatest(p)

	t.mu.Lock()

	if last := t.state.lastAccepted; last != nil && last.DistanceMeters(p) < t.cfg.MovementThresholdMeters {
		t.metrics.PositionSample(false)
		st := t.statusLocked(false)
		t.mu.Unlock()
		return st, nil
	}

	accepted := p
	t.state.lastAccepted = &accepted
	t.metrics.PositionSample(true)

	names, err := t.regions.RoomNames(ctx, t.userID)
	if err != nil {
		st := t.statusLocked(true)
		t.mu.Unlock()
		log.Printf("room tracker: list rooms failed user=%d err=%v", t.userID, err)
		return st, fmt.Errorf("handle sample: user %d: %w", t.userID, err)
	}

	var events []domain.RoomEvent
	if len(names) == 0 {
		// No calibration means nothing is ever reported for this user.
		events = t.leaveLocked(p)
	} else {
		match := t.matchLocked(ctx, names, p)
		switch {
		case match == "":
			events = t.leaveLocked(p)
		case match != t.state.currentRoom || !t.state.loggingActive:
			events = t.enterLocked(match, p)
		}
	}

	st := t.statusLocked(true)
	t.dispatchLocked(events)
	return st, nil
}

// Status returns the current state without processing a sample.
func (t *RoomTracker) Status() TrackerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked(false)
}

// CurrentPosition returns the most recent fix received, accepted or not.
func (t *RoomTracker) CurrentPosition() (domain.Coordinate, bool) {
	t.posMu.RLock()
	defer t.posMu.RUnlock()
	if t.latest == nil {
		return domain.Coordinate{}, false
	}
	return *t.latest, true
}

// Shutdown stops any logging session and resets the tracker to Idle.
func (t *RoomTracker) Shutdown() {
	t.mu.Lock()

	var events []domain.RoomEvent
	if t.state.loggingActive || t.state.currentRoom != "" {
		pos := domain.Coordinate{}
		if t.state.lastAccepted != nil {
			pos = *t.state.lastAccepted
		}
		events = t.leaveLocked(pos)
	}
	t.state = trackerState{}

	t.dispatchLocked(events)
}

// matchLocked returns the first listed room containing p. Rooms whose region
// cannot be read are skipped.
func (t *RoomTracker) matchLocked(ctx context.Context, names []string, p domain.Coordinate) string {
	for _, name := range names {
		region, err := t.regions.GetRegion(ctx, name)
		if err != nil {
			log.Printf("room tracker: region lookup failed user=%d room=%q err=%v", t.userID, name, err)
			continue
		}
		if Contains(p, region, t.cfg.EntryEpsilon) {
			return name
		}
	}
	return ""
}

func (t *RoomTracker) enterLocked(room string, p domain.Coordinate) []domain.RoomEvent {
	var events []domain.RoomEvent
	if prev := t.state.currentRoom; prev != "" && prev != room {
		events = append(events, t.event(domain.RoomExited, prev, p))
	}

	t.state.currentRoom = room
	t.state.loggingActive = true
	if t.logger != nil {
		t.logger.StartLogging(room, t.positionSource, t.identity)
	}

	return append(events, t.event(domain.RoomEntered, room, p))
}

func (t *RoomTracker) leaveLocked(p domain.Coordinate) []domain.RoomEvent {
	var events []domain.RoomEvent
	if t.state.loggingActive && t.logger != nil {
		t.logger.StopLogging()
	}
	if prev := t.state.currentRoom; prev != "" {
		events = append(events, t.event(domain.RoomExited, prev, p))
	}

	t.state.currentRoom = ""
	t.state.loggingActive = false
	return events
}

func (t *RoomTracker) event(kind domain.RoomEventType, room string, p domain.Coordinate) domain.RoomEvent {
	t.metrics.RoomTransition(string(kind))
	return domain.RoomEvent{
		Type:     kind,
		UserID:   t.userID,
		RoomName: room,
		Position: p,
		At:       t.clock.Now(),
	}
}

// dispatchLocked releases t.mu and delivers events in order. dispatchMu is
// taken before t.mu is released so events from consecutive samples never
// interleave.
func (t *RoomTracker) dispatchLocked(events []domain.RoomEvent) {
	if len(events) == 0 {
		t.mu.Unlock()
		return
	}

	subs := make([]func(domain.RoomEvent), 0, len(t.subscribers))
	for i := 0; i < t.nextSubID; i++ {
		if fn, ok := t.subscribers[i]; ok {
			subs = append(subs, fn)
		}
	}

	t.dispatchMu.Lock()
	t.mu.Unlock()
	defer t.dispatchMu.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func (t *RoomTracker) statusLocked(evaluated bool) TrackerStatus {
	st := TrackerStatus{
		UserID:        t.userID,
		CurrentRoom:   t.state.currentRoom,
		LoggingActive: t.state.loggingActive,
		Evaluated:     evaluated,
	}
	if t.state.lastAccepted != nil {
		last := *t.state.lastAccepted
		st.LastAccepted = &last
	}
	return st
}

func (t *RoomTracker) setLatest(p domain.Coordinate) {
	t.posMu.Lock()
	defer t.posMu.Unlock()
	t.latest = &p
}

func (t *RoomTracker) positionSource() domain.Coordinate {
	p, _ := t.CurrentPosition()
	return p
}
