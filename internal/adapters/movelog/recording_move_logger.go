package movelog

import (
	"geotag-service/internal/domain"
	"geotag-service/internal/ports"
	"sync"
)

type CallKind string

const (
	CallStart CallKind = "start"
	CallStop  CallKind = "stop"
)

type Call struct {
	Kind     CallKind
	Room     string
	Identity string
	// Position read from the session's source when StartLogging was called.
	Position domain.Coordinate
}

// RecordingMoveLogger keeps every StartLogging/StopLogging call in memory.
// Used in tests and when no collector endpoint is configured.
type RecordingMoveLogger struct {
	mu     sync.Mutex
	calls  []Call
	active bool
}

func NewRecordingMoveLogger() *RecordingMoveLogger {
	return &RecordingMoveLogger{}
}

func (l *RecordingMoveLogger) StartLogging(roomName string, source ports.PositionSource, userIdentity string) {
	var pos domain.Coordinate
	if source != nil {
		pos = source()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = true
	l.calls = append(l.calls, Call{Kind: CallStart, Room: roomName, Identity: userIdentity, Position: pos})
}

func (l *RecordingMoveLogger) StopLogging() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = false
	l.calls = append(l.calls, Call{Kind: CallStop})
}

func (l *RecordingMoveLogger) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Starts returns the rooms passed to StartLogging, in call order.
func (l *RecordingMoveLogger) Starts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var rooms []string
	for _, c := range l.calls {
		if c.Kind == CallStart {
			rooms = append(rooms, c.Room)
		}
	}
	return rooms
}

func (l *RecordingMoveLogger) Stops() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, c := range l.calls {
		if c.Kind == CallStop {
			n++
		}
	}
	return n
}

// Active reports whether a session is running.
func (l *RecordingMoveLogger) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}
