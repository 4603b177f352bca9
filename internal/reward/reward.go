package reward

import (
	"fmt"
	"math"

	"lasertag/internal/model"
)

// Components lists the canonical reward components in aggregation order.
// Every valid config names exactly these, no more and no fewer.
var Components = []string{"base", "distance", "rotation", "collision", "laser", "goal", "time"}

const (
	// Shaping bounds. Displacement is capped per step before clipping so a
	// teleporting pose cannot dominate a batch; rotation is normalized by the
	// vehicle's angular velocity limit. Both are tunable constants, not
	// contract invariants.
	maxStepDisplacement = 0.1
	maxAngularVel       = math.Pi * 1.5

	componentMin = -1.0
	componentMax = 1.0
)

// ConfigError reports an invalid reward configuration. It is fatal: training
// never starts with a config that fails construction.
type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("reward config: %s", e.Reason)
	}
	return fmt.Sprintf("reward config component %q: %s", e.Component, e.Reason)
}

// Config is a validated set of component weights. Construct with NewConfig;
// the zero value is unusable.
type Config struct {
	weights map[string]float64
}

func NewConfig(weights map[string]float64) (Config, error) {
	if len(weights) == 0 {
		return Config{}, &ConfigError{Reason: "no components configured"}
	}
	canonical := make(map[string]struct{}, len(Components))
	for _, name := range Components {
		canonical[name] = struct{}{}
	}
	for name := range weights {
		if _, ok := canonical[name]; !ok {
			return Config{}, &ConfigError{Component: name, Reason: "unknown component"}
		}
	}
	copied := make(map[string]float64, len(Components))
	for _, name := range Components {
		w, ok := weights[name]
		if !ok {
			return Config{}, &ConfigError{Component: name, Reason: "missing component"}
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return Config{}, &ConfigError{Component: name, Reason: "weight must be finite"}
		}
		copied[name] = w
	}
	return Config{weights: copied}, nil
}

func (c Config) Weight(name string) float64 {
	return c.weights[name]
}

// Map returns a copy of the weights for run artifacts and logs.
func (c Config) Map() map[string]float64 {
	out := make(map[string]float64, len(c.weights))
	for name, w := range c.weights {
		out[name] = w
	}
	return out
}

// Aggregator combines per-step signals into one scalar reward plus an
// unweighted per-component breakdown. The weighted sum of the breakdown, in
// canonical component order, equals the returned total exactly.
type Aggregator struct {
	cfg Config
}

func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.weights == nil {
		return nil, &ConfigError{Reason: "config not constructed"}
	}
	return &Aggregator{cfg: cfg}, nil
}

func (a *Aggregator) Config() Config {
	return a.cfg
}

// Compute derives the seven components from one normalized step, clips each to
// [-1, 1], and returns the weighted total. The step record is not mutated.
func (a *Aggregator) Compute(step model.StepResult) (float64, map[string]float64) {
	breakdown := make(map[string]float64, len(Components))

	breakdown["base"] = 1.0

	displacement := sanitize(step.Displacement)
	if displacement < 0 {
		displacement = 0
	}
	if displacement > maxStepDisplacement {
		displacement = maxStepDisplacement
	}
	breakdown["distance"] = displacement

	breakdown["rotation"] = -math.Abs(sanitize(step.AngularVel)) / maxAngularVel

	breakdown["collision"] = 0
	if step.Collision {
		breakdown["collision"] = -1
	}
	breakdown["laser"] = 0
	if step.LaserHit {
		breakdown["laser"] = 1
	}
	breakdown["goal"] = 0
	if step.Goal {
		breakdown["goal"] = 1
	}
	breakdown["time"] = -1

	// Sequential sum in canonical component order so that anyone re-summing
	// the breakdown with the same weights reproduces the total bit for bit.
	total := 0.0
	for _, name := range Components {
		component := clip(breakdown[name], componentMin, componentMax)
		breakdown[name] = component
		total += a.cfg.weights[name] * component
	}
	return total, breakdown
}

// sanitize collapses non-finite kinematics to zero; a faulty simulator step
// must not leak NaN into the batch.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
