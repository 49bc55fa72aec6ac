package services

import (
	"fmt"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/clock"
	"geotag-service/internal/platform/metrics"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	StandardGravity   = 9.80665
	MotionThreshold   = 0.5
	BrightnessFloor   = 50
	BrightnessCeiling = 255
	DecayStep         = 10

	// Acceleration (m/s² above gravity) mapped to full brightness.
	fullScaleAcceleration = 12.0
)

type BrightnessConfig struct {
	SampleInterval time.Duration
	ReblendDelay   time.Duration
	DecayDelay     time.Duration
	DecayPeriod    time.Duration
}

func DefaultBrightnessConfig() BrightnessConfig {
	return BrightnessConfig{
		SampleInterval: 100 * time.Millisecond,
		ReblendDelay:   10 * time.Minute,
		DecayDelay:     3 * time.Second,
		DecayPeriod:    10 * time.Millisecond,
	}
}

// MotionState is a snapshot of the controller's smoothing state.
type MotionState struct {
	Raw            int       `json:"raw"`
	Displayed      int       `json:"displayed"`
	LastMotion     time.Time `json:"last_motion"`
	PendingDecay   bool      `json:"pending_decay"`
	PendingReblend bool      `json:"pending_reblend"`
}

// Event reasons.
const (
	ReasonMotion  = "motion"
	ReasonReblend = "reblend"
	ReasonDecay   = "decay"
)

// BrightnessController derives an automatic brightness for one room's lights
// from accelerometer magnitudes.
//
// Motion above MotionThreshold blends the scaled magnitude into the displayed
// value immediately and (re)schedules a second blend after ReblendDelay that
// reads the raw value current when it fires. Once no motion has been seen for
// DecayDelay, a still sample starts a decay that lowers the value by
// DecayStep every DecayPeriod until it reaches BrightnessFloor.
//
// Lights under manual control are never changed.
type BrightnessController struct {
	mu         sync.Mutex
	dispatchMu sync.Mutex

	room    string
	clock   clock.Clock
	metrics *metrics.Collector
	cfg     BrightnessConfig

	state      MotionState
	lastSample time.Time
	hasSample  bool
	lights     []domain.Light

	reblendTask clock.Task
	reblendSeq  uint64
	decayTask   clock.Task
	decaySeq    uint64

	paused bool
	closed bool

	nextSubID   int
	subscribers map[int]func(domain.BrightnessEvent)
}

func NewBrightnessController(room string, clk clock.Clock, m *metrics.Collector, cfg BrightnessConfig) *BrightnessController {
	if clk == nil {
		clk = clock.RealClock{}
	}
	def := DefaultBrightnessConfig()
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.ReblendDelay <= 0 {
		cfg.ReblendDelay = def.ReblendDelay
	}
	if cfg.DecayDelay <= 0 {
		cfg.DecayDelay = def.DecayDelay
	}
	if cfg.DecayPeriod <= 0 {
		cfg.DecayPeriod = def.DecayPeriod
	}
	return &BrightnessController{
		room:        room,
		clock:       clk,
		metrics:     m,
		cfg:         cfg,
		subscribers: make(map[int]func(domain.BrightnessEvent)),
	}
}

// ScaleMagnitude maps a motion magnitude onto the brightness range.
func ScaleMagnitude(m float64) int {
	return clampBrightness(int(m / fullScaleAcceleration * BrightnessCeiling))
}

// Magnitude returns |(x, y, z)| minus standard gravity.
func Magnitude(x, y, z float64) float64 {
	return floats.Norm([]float64{x, y, z}, 2) - StandardGravity
}

func clampBrightness(v int) int {
	return min(max(v, BrightnessFloor), BrightnessCeiling)
}

func blend(displayed, raw int) int {
	return clampBrightness((displayed + raw) / 2)
}

// Subscribe registers fn for brightness events and returns a func that
// removes it. fn must not call back into the controller.
func (c *BrightnessController) Subscribe(fn func(domain.BrightnessEvent)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// HandleAcceleration feeds a raw 3-axis accelerometer sample.
func (c *BrightnessController) HandleAcceleration(x, y, z float64) bool {
	return c.HandleMagnitude(Magnitude(x, y, z))
}

// HandleMagnitude feeds a gravity-compensated motion magnitude. It reports
// whether the sample was accepted; samples closer than SampleInterval to the
// previous accepted one are dropped.
func (c *BrightnessController) HandleMagnitude(m float64) bool {
	c.mu.Lock()

	if c.closed || c.paused {
		c.mu.Unlock()
		return false
	}

	now := c.clock.Now()
	if c.hasSample && now.Sub(c.lastSample) <= c.cfg.SampleInterval {
		c.metrics.MotionSample("dropped")
		c.mu.Unlock()
		return false
	}
	c.lastSample = now
	c.hasSample = true

	if m > MotionThreshold {
		c.metrics.MotionSample("motion")
		c.state.LastMotion = now
		c.cancelDecayLocked()

		c.state.Raw = ScaleMagnitude(m)
		c.state.Displayed = blend(c.state.Displayed, c.state.Raw)
		c.applyLocked()

		c.scheduleReblendLocked()
		ev := c.eventLocked(ReasonMotion)
		c.dispatchLocked(ev)
		return true
	}

	c.metrics.MotionSample("still")
	if !c.state.PendingDecay && now.Sub(c.state.LastMotion) > c.cfg.DecayDelay && c.aboveFloorLocked() {
		c.state.PendingDecay = true
		c.scheduleDecayLocked()
	}
	c.mu.Unlock()
	return true
}

// SetLights replaces the room's lights.
func (c *BrightnessController) SetLights(lights []domain.Light) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lights = make([]domain.Light, len(lights))
	copy(c.lights, lights)
}

// SetManualControl switches a light between manual and automatic mode. A
// manual light takes brightness as given; an automatic light picks up the
// current displayed value.
func (c *BrightnessController) SetManualControl(name string, manual bool, brightness int) (domain.Light, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lights {
		if c.lights[i].Name != name {
			continue
		}
		c.lights[i].ManualControl = manual
		if manual {
			c.lights[i].Brightness = min(max(brightness, 0), BrightnessCeiling)
		} else if c.state.Displayed > 0 {
			c.lights[i].Brightness = c.state.Displayed
		}
		return c.lights[i], nil
	}
	return domain.Light{}, fmt.Errorf("set manual control: room %q light %q: %w", c.room, name, domain.ErrUnknownLight)
}

func (c *BrightnessController) Lights() []domain.Light {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Light, len(c.lights))
	copy(out, c.lights)
	return out
}

func (c *BrightnessController) State() MotionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pause cancels pending timers and ignores samples until Resume.
func (c *BrightnessController) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = true
	c.cancelReblendLocked()
	c.cancelDecayLocked()
}

func (c *BrightnessController) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = false
	c.hasSample = false
}

// Close cancels pending timers for good. Later samples are ignored.
func (c *BrightnessController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.cancelReblendLocked()
	c.cancelDecayLocked()
}

func (c *BrightnessController) scheduleReblendLocked() {
	c.cancelReblendLocked()

	seq := c.reblendSeq
	c.state.PendingReblend = true
	c.reblendTask = c.clock.AfterFunc(c.cfg.ReblendDelay, func() { c.reblend(seq) })
}

func (c *BrightnessController) cancelReblendLocked() {
	c.reblendSeq++
	c.state.PendingReblend = false
	if c.reblendTask != nil {
		c.reblendTask.Stop()
		c.reblendTask = nil
	}
}

func (c *BrightnessController) reblend(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.reblendSeq {
		c.mu.Unlock()
		return
	}
	c.reblendTask = nil
	c.state.PendingReblend = false

	// Raw is read now, not when the task was scheduled.
	c.state.Displayed = blend(c.state.Displayed, c.state.Raw)
	c.applyLocked()

	ev := c.eventLocked(ReasonReblend)
	c.dispatchLocked(ev)
}

func (c *BrightnessController) scheduleDecayLocked() {
	seq := c.decaySeq
	c.decayTask = c.clock.AfterFunc(c.cfg.DecayPeriod, func() { c.decay(seq) })
}

func (c *BrightnessController) cancelDecayLocked() {
	c.decaySeq++
	c.state.PendingDecay = false
	if c.decayTask != nil {
		c.decayTask.Stop()
		c.decayTask = nil
	}
}

func (c *BrightnessController) decay(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.decaySeq {
		c.mu.Unlock()
		return
	}
	c.decayTask = nil

	c.stepDownLocked()
	c.metrics.DecayStep()

	if c.aboveFloorLocked() {
		c.scheduleDecayLocked()
	} else {
		c.state.PendingDecay = false
	}

	ev := c.eventLocked(ReasonDecay)
	c.dispatchLocked(ev)
}

// stepDownLocked lowers the displayed value and every automatic light by
// DecayStep, never below the floor.
func (c *BrightnessController) stepDownLocked() {
	if c.state.Displayed > BrightnessFloor {
		c.state.Displayed = max(c.state.Displayed-DecayStep, BrightnessFloor)
	}
	for i := range c.lights {
		l := &c.lights[i]
		if !l.ManualControl && l.Brightness > BrightnessFloor {
			l.Brightness = max(l.Brightness-DecayStep, BrightnessFloor)
		}
	}
	c.metrics.SetDisplayed(c.room, c.state.Displayed)
}

func (c *BrightnessController) aboveFloorLocked() bool {
	if c.state.Displayed > BrightnessFloor {
		return true
	}
	for _, l := range c.lights {
		if !l.ManualControl && l.Brightness > BrightnessFloor {
			return true
		}
	}
	return false
}

func (c *BrightnessController) applyLocked() {
	for i := range c.lights {
		if !c.lights[i].ManualControl {
			c.lights[i].Brightness = c.state.Displayed
		}
	}
	c.metrics.SetDisplayed(c.room, c.state.Displayed)
}

func (c *BrightnessController) eventLocked(reason string) domain.BrightnessEvent {
	lights := make([]domain.Light, len(c.lights))
	copy(lights, c.lights)
	return domain.BrightnessEvent{
		RoomName:  c.room,
		Displayed: c.state.Displayed,
		Raw:       c.state.Raw,
		Reason:    reason,
		Lights:    lights,
		At:        c.clock.Now(),
	}
}

// dispatchLocked releases c.mu and delivers ev to subscribers in order.
func (c *BrightnessController) dispatchLocked(ev domain.BrightnessEvent) {
	subs := make([]func(domain.BrightnessEvent), 0, len(c.subscribers))
	for i := 0; i < c.nextSubID; i++ {
		if fn, ok := c.subscribers[i]; ok {
			subs = append(subs, fn)
		}
	}

	c.dispatchMu.Lock()
	c.mu.Unlock()
	defer c.dispatchMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
