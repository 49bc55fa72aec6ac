package services

import (
	"context"
	"errors"
	"geotag-service/internal/adapters/movelog"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/clock"
	"geotag-service/internal/ports"
	"sync"
	"testing"
	"time"
)

var trackerEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type eventLog struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (l *eventLog) record(ev domain.RoomEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) summary() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = string(ev.Type) + ":" + ev.RoomName
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTestTracker(t *testing.T, repo *memRegionRepo) (*RoomTracker, *movelog.RecordingMoveLogger, *eventLog) {
	t.Helper()

	logger := movelog.NewRecordingMoveLogger()
	tracker := NewRoomTracker(1, "user-1", NewRegionStore(repo), logger, clock.NewMockClock(trackerEpoch), nil, DefaultTrackerConfig())
	events := &eventLog{}
	tracker.Subscribe(events.record)
	return tracker, logger, events
}

func mustSample(t *testing.T, tr *RoomTracker, lat, lon float64) TrackerStatus {
	t.Helper()

	st, err := tr.HandleSample(context.Background(), domain.Coordinate{Lat: lat, Lon: lon})
	if err != nil {
		t.Fatalf("HandleSample(%v, %v): %v", lat, lon, err)
	}
	return st
}

func TestTrackerKitchenScenario(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	poly, _ := domain.NewPolygon(kitchenOutline)
	if err := NewRegionStore(repo).Save(ctx, 1, "Kitchen", poly); err != nil {
		t.Fatalf("save: %v", err)
	}
	tracker, logger, events := newTestTracker(t, repo)

	st := mustSample(t, tracker, 1.5, 1.5)
	if st.CurrentRoom != "Kitchen" || !st.LoggingActive || !st.Evaluated {
		t.Fatalf("after sample 1: %+v", st)
	}

	st = mustSample(t, tracker, 1.5, 1.5)
	if st.Evaluated {
		t.Fatalf("duplicate sample was evaluated")
	}
	if got := logger.Starts(); !equalStrings(got, []string{"Kitchen"}) {
		t.Fatalf("starts after duplicate = %v, want [Kitchen]", got)
	}

	st = mustSample(t, tracker, 5, 5)
	if st.CurrentRoom != "" || st.LoggingActive {
		t.Fatalf("after sample 3: %+v", st)
	}

	calls := logger.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %+v, want start then stop", calls)
	}
	if calls[0].Kind != movelog.CallStart || calls[0].Room != "Kitchen" || calls[0].Identity != "user-1" {
		t.Fatalf("first call = %+v", calls[0])
	}
	if calls[0].Position != (domain.Coordinate{Lat: 1.5, Lon: 1.5}) {
		t.Fatalf("start position = %v", calls[0].Position)
	}
	if calls[1].Kind != movelog.CallStop {
		t.Fatalf("second call = %+v, want stop", calls[1])
	}

	want := []string{"room_entered:Kitchen", "room_exited:Kitchen"}
	if got := events.summary(); !equalStrings(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestTrackerFirstListedRoomWins(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	store := NewRegionStore(repo)
	if err := store.Save(ctx, 1, "A", domain.NewRectangle(0, 0, 2, 2)); err != nil {
		t.Fatalf("save A: %v", err)
	}
	if err := store.Save(ctx, 1, "B", domain.NewRectangle(1, 1, 3, 3)); err != nil {
		t.Fatalf("save B: %v", err)
	}
	tracker, logger, _ := newTestTracker(t, repo)

	st := mustSample(t, tracker, 1.5, 1.5)
	if st.CurrentRoom != "A" {
		t.Fatalf("current room = %q, want A", st.CurrentRoom)
	}
	if got := logger.Starts(); !equalStrings(got, []string{"A"}) {
		t.Fatalf("starts = %v, want [A]", got)
	}
}

func TestTrackerWithoutRoomsNeverStartsLogging(t *testing.T) {
	tracker, logger, events := newTestTracker(t, newMemRegionRepo())

	for i := 0; i < 5; i++ {
		st := mustSample(t, tracker, float64(i), float64(i))
		if st.CurrentRoom != "" || st.LoggingActive {
			t.Fatalf("sample %d: %+v", i, st)
		}
	}
	if got := logger.Starts(); len(got) != 0 {
		t.Fatalf("starts = %v, want none", got)
	}
	if got := events.summary(); len(got) != 0 {
		t.Fatalf("events = %v, want none", got)
	}
}

func TestTrackerDropsJitter(t *testing.T) {
	repo := newMemRegionRepo()
	tracker, _, _ := newTestTracker(t, repo)

	mustSample(t, tracker, 1.5, 1.5)
	// ~0.6 m north.
	st := mustSample(t, tracker, 1.500005, 1.5)
	if st.Evaluated {
		t.Fatalf("jitter sample evaluated")
	}
	if repo.listCalls != 1 {
		t.Fatalf("room list read %d times, want 1", repo.listCalls)
	}
	if st.LastAccepted == nil || *st.LastAccepted != (domain.Coordinate{Lat: 1.5, Lon: 1.5}) {
		t.Fatalf("last accepted = %v, want first sample", st.LastAccepted)
	}

	if pos, ok := tracker.CurrentPosition(); !ok || pos.Lat != 1.500005 {
		t.Fatalf("current position = %v %v, want latest fix", pos, ok)
	}

	// ~3.3 m from the first accepted fix.
	st = mustSample(t, tracker, 1.50003, 1.5)
	if !st.Evaluated || repo.listCalls != 2 {
		t.Fatalf("moved sample: evaluated=%v list calls=%d", st.Evaluated, repo.listCalls)
	}
}

func TestTrackerMovesBetweenRooms(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	store := NewRegionStore(repo)
	_ = store.Save(ctx, 1, "A", domain.NewRectangle(0, 0, 1, 1))
	_ = store.Save(ctx, 1, "B", domain.NewRectangle(0, 2, 1, 3))
	tracker, logger, events := newTestTracker(t, repo)

	mustSample(t, tracker, 0.5, 0.5)
	mustSample(t, tracker, 0.5, 2.5)

	if got := logger.Starts(); !equalStrings(got, []string{"A", "B"}) {
		t.Fatalf("starts = %v, want [A B]", got)
	}
	if logger.Stops() != 0 {
		t.Fatalf("stops = %d, want 0 (a new session replaces the old one)", logger.Stops())
	}
	want := []string{"room_entered:A", "room_exited:A", "room_entered:B"}
	if got := events.summary(); !equalStrings(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestTrackerStaysInRoomWithoutRestarting(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	_ = NewRegionStore(repo).Save(ctx, 1, "A", domain.NewRectangle(0, 0, 1, 1))
	tracker, logger, _ := newTestTracker(t, repo)

	mustSample(t, tracker, 0.2, 0.2)
	mustSample(t, tracker, 0.6, 0.6)

	if got := logger.Starts(); !equalStrings(got, []string{"A"}) {
		t.Fatalf("starts = %v, want [A]", got)
	}
}

// failingLookup fails region reads for the named rooms.
type failingLookup struct {
	RegionLookup
	failing map[string]bool
}

func (f failingLookup) GetRegion(ctx context.Context, roomName string) (domain.Region, error) {
	if f.failing[roomName] {
		return nil, errors.New("lookup failed")
	}
	return f.RegionLookup.GetRegion(ctx, roomName)
}

func TestTrackerSkipsUnreadableRoom(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	store := NewRegionStore(repo)
	_ = store.Save(ctx, 1, "A", domain.NewRectangle(0, 0, 2, 2))
	_ = store.Save(ctx, 1, "B", domain.NewRectangle(0, 0, 2, 2))

	logger := movelog.NewRecordingMoveLogger()
	lookup := failingLookup{RegionLookup: store, failing: map[string]bool{"A": true}}
	tracker := NewRoomTracker(1, "user-1", lookup, logger, clock.NewMockClock(trackerEpoch), nil, DefaultTrackerConfig())

	st := mustSample(t, tracker, 1, 1)
	if st.CurrentRoom != "B" {
		t.Fatalf("current room = %q, want B", st.CurrentRoom)
	}
}

func TestTrackerRoomListErrorKeepsState(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	_ = NewRegionStore(repo).Save(ctx, 1, "A", domain.NewRectangle(0, 0, 1, 1))
	tracker, logger, _ := newTestTracker(t, repo)

	mustSample(t, tracker, 0.5, 0.5)

	repo.mu.Lock()
	repo.listErr = errors.New("database is locked")
	repo.mu.Unlock()

	st, err := tracker.HandleSample(ctx, domain.Coordinate{Lat: 5, Lon: 5})
	if err == nil {
		t.Fatalf("expected error")
	}
	if st.CurrentRoom != "A" || !st.LoggingActive {
		t.Fatalf("state changed on error: %+v", st)
	}
	if logger.Stops() != 0 {
		t.Fatalf("logging stopped on error")
	}
}

func TestTrackerShutdownStopsLogging(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	_ = NewRegionStore(repo).Save(ctx, 1, "A", domain.NewRectangle(0, 0, 1, 1))
	tracker, logger, events := newTestTracker(t, repo)

	mustSample(t, tracker, 0.5, 0.5)
	tracker.Shutdown()

	if logger.Active() || logger.Stops() != 1 {
		t.Fatalf("logger active=%v stops=%d after shutdown", logger.Active(), logger.Stops())
	}
	if st := tracker.Status(); st.CurrentRoom != "" || st.LastAccepted != nil {
		t.Fatalf("status after shutdown = %+v", st)
	}
	want := []string{"room_entered:A", "room_exited:A"}
	if got := events.summary(); !equalStrings(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	// The same fix is evaluated again after a reset.
	if st := mustSample(t, tracker, 0.5, 0.5); st.CurrentRoom != "A" {
		t.Fatalf("after restart: %+v", st)
	}
}

func TestTrackerUnsubscribe(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	_ = NewRegionStore(repo).Save(ctx, 1, "A", domain.NewRectangle(0, 0, 1, 1))
	tracker, _, _ := newTestTracker(t, repo)

	extra := &eventLog{}
	cancel := tracker.Subscribe(extra.record)
	cancel()

	mustSample(t, tracker, 0.5, 0.5)
	if got := extra.summary(); len(got) != 0 {
		t.Fatalf("unsubscribed observer got %v", got)
	}
}

func TestTrackerRegistryIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	store := NewRegionStore(repo)
	_ = store.Save(ctx, 1, "Kitchen", domain.NewRectangle(0, 0, 1, 1))
	_ = store.Save(ctx, 2, "Garage", domain.NewRectangle(0, 0, 1, 1))

	loggers := map[int64]*movelog.RecordingMoveLogger{}
	var mu sync.Mutex
	newLogger := func(userID int64) ports.MoveLogger {
		mu.Lock()
		defer mu.Unlock()
		l := movelog.NewRecordingMoveLogger()
		loggers[userID] = l
		return l
	}

	registry := NewTrackerRegistry(store, newLogger, clock.NewMockClock(trackerEpoch), nil, DefaultTrackerConfig())
	early := &eventLog{}
	registry.OnRoomEvent(early.record)

	if registry.Tracker(1, "") != registry.Tracker(1, "") {
		t.Fatalf("registry returned different trackers for the same user")
	}
	late := &eventLog{}
	registry.OnRoomEvent(late.record)

	if _, err := registry.Tracker(1, "").HandleSample(ctx, domain.Coordinate{Lat: 0.5, Lon: 0.5}); err != nil {
		t.Fatalf("user 1: %v", err)
	}
	if _, err := registry.Tracker(2, "").HandleSample(ctx, domain.Coordinate{Lat: 0.5, Lon: 0.5}); err != nil {
		t.Fatalf("user 2: %v", err)
	}

	if got := loggers[1].Starts(); !equalStrings(got, []string{"Kitchen"}) {
		t.Fatalf("user 1 starts = %v", got)
	}
	if got := loggers[2].Starts(); !equalStrings(got, []string{"Garage"}) {
		t.Fatalf("user 2 starts = %v", got)
	}
	if got := loggers[1].Calls()[0].Identity; got != "user-1" {
		t.Fatalf("identity = %q, want user-1", got)
	}

	want := []string{"room_entered:Kitchen", "room_entered:Garage"}
	if got := early.summary(); !equalStrings(got, want) {
		t.Fatalf("early observer = %v, want %v", got, want)
	}
	if got := late.summary(); !equalStrings(got, want) {
		t.Fatalf("late observer = %v, want %v", got, want)
	}

	if !registry.Stop(1) {
		t.Fatalf("Stop(1) = false, want true")
	}
	if registry.Stop(1) {
		t.Fatalf("second Stop(1) = true, want false")
	}
	if loggers[1].Active() {
		t.Fatalf("user 1 logging still active after Stop")
	}

	registry.Close()
	if loggers[2].Active() {
		t.Fatalf("user 2 logging still active after Close")
	}
}

func TestTrackerRegistryUsesCallerUserDetails(t *testing.T) {
	ctx := context.Background()
	repo := newMemRegionRepo()
	if err := NewRegionStore(repo).Save(ctx, 3, "Kitchen", domain.NewRectangle(0, 0, 1, 1)); err != nil {
		t.Fatalf("save: %v", err)
	}

	logger := movelog.NewRecordingMoveLogger()
	newLogger := func(int64) ports.MoveLogger { return logger }
	registry := NewTrackerRegistry(NewRegionStore(repo), newLogger, clock.NewMockClock(trackerEpoch), nil, DefaultTrackerConfig())

	tracker := registry.Tracker(3, "alice@example.com")
	mustSample(t, tracker, 0.5, 0.5)

	// Empty details keep the identity already known.
	if registry.Tracker(3, "") != tracker {
		t.Fatalf("registry returned a new tracker")
	}
	tracker.Shutdown()
	mustSample(t, tracker, 0.6, 0.6)

	registry.Tracker(3, "alice-phone")
	tracker.Shutdown()
	mustSample(t, tracker, 0.5, 0.5)

	var identities []string
	for _, c := range logger.Calls() {
		if c.Kind == movelog.CallStart {
			identities = append(identities, c.Identity)
		}
	}
	want := []string{"alice@example.com", "alice@example.com", "alice-phone"}
	if !equalStrings(identities, want) {
		t.Fatalf("identities = %v, want %v", identities, want)
	}
}
