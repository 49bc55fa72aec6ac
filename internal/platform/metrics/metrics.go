// Package metrics exposes tracker and brightness counters to Prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the service metrics. A nil *Collector is valid and records
// nothing, so components can be built without a registry in tests.
type Collector struct {
	gatherer prometheus.Gatherer

	PositionSamples     *prometheus.CounterVec
	RoomTransitions     *prometheus.CounterVec
	MotionSamples       *prometheus.CounterVec
	DecaySteps          prometheus.Counter
	DisplayedBrightness *prometheus.GaugeVec
	MoveLogPosts        *prometheus.CounterVec
}

// New registers the collectors against reg (the default registerer when nil).
// Registering twice against the same registry reuses the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	positions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_position_samples_total",
		Help: "Position samples received by room trackers, by result (accepted, dropped).",
	}, []string{"result"}), "tracker_position_samples_total")
	if err != nil {
		return nil, err
	}

	transitions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_room_transitions_total",
		Help: "Room enter and exit transitions emitted by room trackers.",
	}, []string{"type"}), "tracker_room_transitions_total")
	if err != nil {
		return nil, err
	}

	motion, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brightness_motion_samples_total",
		Help: "Motion samples received by brightness controllers, by result (motion, still, dropped).",
	}, []string{"result"}), "brightness_motion_samples_total")
	if err != nil {
		return nil, err
	}

	decay, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brightness_decay_steps_total",
		Help: "Decay steps applied while lights fade back to the floor.",
	}), "brightness_decay_steps_total")
	if err != nil {
		return nil, err
	}

	displayed, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "brightness_displayed_value",
		Help: "Current automatic brightness per room.",
	}, []string{"room"}), "brightness_displayed_value")
	if err != nil {
		return nil, err
	}

	posts, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "movelog_posts_total",
		Help: "Movement log POSTs, by outcome (ok, error, rejected).",
	}, []string{"outcome"}), "movelog_posts_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:            gatherer,
		PositionSamples:     positions,
		RoomTransitions:     transitions,
		MotionSamples:       motion,
		DecaySteps:          decay,
		DisplayedBrightness: displayed,
		MoveLogPosts:        posts,
	}, nil
}

// Gatherer returns the gatherer backing the registry passed to New.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *Collector) PositionSample(accepted bool) {
	if c == nil {
		return
	}
	result := "dropped"
	if accepted {
		result = "accepted"
	}
	c.PositionSamples.WithLabelValues(result).Inc()
}

func (c *Collector) RoomTransition(kind string) {
	if c == nil {
		return
	}
	c.RoomTransitions.WithLabelValues(kind).Inc()
}

func (c *Collector) MotionSample(result string) {
	if c == nil {
		return
	}
	c.MotionSamples.WithLabelValues(result).Inc()
}

func (c *Collector) DecayStep() {
	if c == nil {
		return
	}
	c.DecaySteps.Inc()
}

func (c *Collector) SetDisplayed(room string, v int) {
	if c == nil {
		return
	}
	c.DisplayedBrightness.WithLabelValues(room).Set(float64(v))
}

func (c *Collector) MoveLogPost(outcome string) {
	if c == nil {
		return
	}
	c.MoveLogPosts.WithLabelValues(outcome).Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
