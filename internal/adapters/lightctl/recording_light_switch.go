package lightctl

import (
	"context"
	"geotag-service/internal/ports"
	"sync"
)

// RecordingLightSwitch stores switch commands instead of sending them.
// Wired when no broker is configured.
type RecordingLightSwitch struct {
	mu       sync.Mutex
	commands []Command
}

func NewRecordingLightSwitch() *RecordingLightSwitch {
	return &RecordingLightSwitch{}
}

func (s *RecordingLightSwitch) Switch(ctx context.Context, roomName string, action ports.LightAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Room: roomName, Action: string(action)})
	return nil
}

func (s *RecordingLightSwitch) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}
