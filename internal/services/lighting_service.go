package services

import (
	"context"
	"fmt"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/clock"
	"geotag-service/internal/platform/metrics"
	"geotag-service/internal/ports"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	switchTimeout    = 5 * time.Second
	switchQueueDepth = 32
)

// LightingService owns one BrightnessController per room, loading lights from
// storage on first use and forwarding brightness events to telemetry and
// other observers.
type LightingService struct {
	mu          sync.Mutex
	controllers map[string]*BrightnessController

	repo    ports.LightRepository
	sw      ports.LightSwitch
	sink    ports.TelemetrySink
	clock   clock.Clock
	metrics *metrics.Collector
	cfg     BrightnessConfig

	observers []func(domain.BrightnessEvent)

	// Switch commands for one room are sent in order by a single worker.
	queueMu sync.Mutex
	queues  map[string]chan ports.LightAction
	closed  bool
	workers sync.WaitGroup
}

func NewLightingService(
	repo ports.LightRepository,
	sw ports.LightSwitch,
	sink ports.TelemetrySink,
	clk clock.Clock,
	m *metrics.Collector,
	cfg BrightnessConfig,
) *LightingService {
	return &LightingService{
		controllers: make(map[string]*BrightnessController),
		queues:      make(map[string]chan ports.LightAction),
		repo:        repo,
		sw:          sw,
		sink:        sink,
		clock:       clk,
		metrics:     m,
		cfg:         cfg,
	}
}

// OnBrightness registers fn with every current and future controller.
func (s *LightingService) OnBrightness(fn func(domain.BrightnessEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observers = append(s.observers, fn)
	for _, c := range s.controllers {
		c.Subscribe(fn)
	}
}

// Controller returns the room's controller, loading its lights on first use.
func (s *LightingService) Controller(ctx context.Context, roomName string) (*BrightnessController, error) {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return nil, fmt.Errorf("brightness controller: %w", domain.ErrEmptyRoomName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.controllers[roomName]; ok {
		return c, nil
	}

	lights, err := s.repo.LoadLights(ctx, roomName)
	if err != nil {
		return nil, fmt.Errorf("brightness controller: room %q: %w", roomName, err)
	}

	c := NewBrightnessController(roomName, s.clock, s.metrics, s.cfg)
	c.SetLights(lights)
	if s.sink != nil {
		c.Subscribe(s.sink.RecordBrightness)
	}
	for _, fn := range s.observers {
		c.Subscribe(fn)
	}
	s.controllers[roomName] = c
	return c, nil
}

// SaveLights persists the room's lights and hands them to its controller.
func (s *LightingService) SaveLights(ctx context.Context, roomName string, lights []domain.Light) error {
	for i, l := range lights {
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("save lights: room %q: light #%d has empty name", roomName, i+1)
		}
	}

	c, err := s.Controller(ctx, roomName)
	if err != nil {
		return fmt.Errorf("save lights: %w", err)
	}
	if err := s.repo.SaveLights(ctx, roomName, lights); err != nil {
		return fmt.Errorf("save lights: room %q: %w", roomName, err)
	}
	c.SetLights(lights)
	return nil
}

// SetManualControl toggles a light's override, persists the room's lights and
// publishes ON when the override is switched on, OFF when it is switched off.
// The publish runs in the background.
func (s *LightingService) SetManualControl(ctx context.Context, roomName, lightName string, manual bool, brightness int) (domain.Light, error) {
	c, err := s.Controller(ctx, roomName)
	if err != nil {
		return domain.Light{}, fmt.Errorf("set manual control: %w", err)
	}

	light, err := c.SetManualControl(lightName, manual, brightness)
	if err != nil {
		return domain.Light{}, err
	}
	if err := s.repo.SaveLights(ctx, roomName, c.Lights()); err != nil {
		return domain.Light{}, fmt.Errorf("set manual control: room %q: %w", roomName, err)
	}

	action := ports.LightOff
	if manual {
		action = ports.LightOn
	}
	s.publish(roomName, action)
	return light, nil
}

// SwitchOnRoomEvent turns a room's lights on when a user enters it and off
// when they leave. Register it with TrackerRegistry.OnRoomEvent.
func (s *LightingService) SwitchOnRoomEvent(ev domain.RoomEvent) {
	switch ev.Type {
	case domain.RoomEntered:
		s.publish(ev.RoomName, ports.LightOn)
	case domain.RoomExited:
		s.publish(ev.RoomName, ports.LightOff)
	}
}

// Close stops every controller's timers and waits for queued switch
// commands to drain.
func (s *LightingService) Close() {
	s.mu.Lock()
	for _, c := range s.controllers {
		c.Close()
	}
	s.mu.Unlock()

	s.queueMu.Lock()
	if !s.closed {
		s.closed = true
		for _, q := range s.queues {
			close(q)
		}
	}
	s.queueMu.Unlock()

	s.workers.Wait()
}

// publish enqueues the action on the room's queue without blocking. Actions
// are dropped when the queue is full or the service is closed.
func (s *LightingService) publish(roomName string, action ports.LightAction) {
	if s.sw == nil {
		return
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if s.closed {
		return
	}
	q, ok := s.queues[roomName]
	if !ok {
		q = make(chan ports.LightAction, switchQueueDepth)
		s.queues[roomName] = q
		s.workers.Add(1)
		go s.runSwitchQueue(roomName, q)
	}

	select {
	case q <- action:
	default:
		log.Printf("lights: switch queue full, dropping room=%q action=%s", roomName, action)
	}
}

func (s *LightingService) runSwitchQueue(roomName string, q <-chan ports.LightAction) {
	defer s.workers.Done()

	for action := range q {
		ctx, cancel := context.WithTimeout(context.Background(), switchTimeout)
		if err := s.sw.Switch(ctx, roomName, action); err != nil {
			log.Printf("lights: switch failed room=%q action=%s err=%v", roomName, action, err)
		}
		cancel()
	}
}
