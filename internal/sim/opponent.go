package sim

import (
	"fmt"
	"math"
)

// Opponent behavior tiers. The episode difficulty picks the tier and sets the
// steering noise, which shrinks as difficulty rises.
type opponentKind int

const (
	opponentStatic opponentKind = iota
	opponentPatrol
	opponentPursuit
	opponentAdversarial
)

const (
	patrolRadius = 1.2
	patrolRate   = 0.6
)

var opponentTiers = map[string]opponentKind{
	"static":      opponentStatic,
	"patrol":      opponentPatrol,
	"pursuit":     opponentPursuit,
	"adversarial": opponentAdversarial,
}

// ValidOpponentTier reports whether name is accepted by ForceOpponent. The
// empty name is valid and means difficulty-based selection.
func ValidOpponentTier(name string) bool {
	if name == "" {
		return true
	}
	_, ok := opponentTiers[name]
	return ok
}

// ForceOpponent pins the opponent tier by name regardless of difficulty. The
// empty name restores difficulty-based selection.
func (a *Arena) ForceOpponent(name string) error {
	if name == "" {
		a.forceTier = false
		return nil
	}
	kind, ok := opponentTiers[name]
	if !ok {
		return fmt.Errorf("sim: unknown opponent tier %q", name)
	}
	a.forceTier = true
	a.forcedTier = kind
	return nil
}

// SetOpponentNoiseScale scales the difficulty-derived steering noise. Zero
// makes the opponent fully deterministic given its tier.
func (a *Arena) SetOpponentNoiseScale(scale float64) error {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale < 0 {
		return fmt.Errorf("sim: opponent noise scale must be finite and >= 0")
	}
	a.noiseScale = scale
	return nil
}

func opponentForDifficulty(difficulty float64) opponentKind {
	switch {
	case difficulty < 0.25:
		return opponentStatic
	case difficulty < 0.5:
		return opponentPatrol
	case difficulty < 0.75:
		return opponentPursuit
	default:
		return opponentAdversarial
	}
}

func (a *Arena) activeOpponent() opponentKind {
	if a.forceTier {
		return a.forcedTier
	}
	return opponentForDifficulty(a.difficulty)
}

// opponentAction picks the opponent's wheel pair for this tick. All randomness
// flows through the episode RNG in a fixed draw order per tier.
func (a *Arena) opponentAction() [2]float64 {
	noise := (1.0 - a.difficulty) * a.noiseScale
	switch a.activeOpponent() {
	case opponentStatic:
		return [2]float64{0, 0}
	case opponentPatrol:
		return a.steerTowards(patrolTarget(a.step), 0.6, 1.0, noise)
	case opponentPursuit:
		return a.steerTowards([2]float64{a.vehicle.x, a.vehicle.y}, 0.8, 1.0, noise)
	default:
		return a.adversarialAction(noise)
	}
}

// patrolTarget parameterizes a circular circuit by tick so the patrol tier
// needs no steering state of its own.
func patrolTarget(step int) [2]float64 {
	angle := float64(step) * dt * patrolRate
	return [2]float64{patrolRadius * math.Cos(angle), patrolRadius * math.Sin(angle)}
}

func (a *Arena) steerTowards(target [2]float64, gain, turnGain, noise float64) [2]float64 {
	dx := target[0] - a.opponent.x
	dy := target[1] - a.opponent.y
	bearing := math.Atan2(dy, dx)
	turn := angleDiff(bearing, a.opponent.heading) / math.Pi
	forward := gain * clamp(math.Hypot(dx, dy), 0, 1)
	left := forward - turnGain*turn + noise*a.noiseDraw()
	right := forward + turnGain*turn + noise*a.noiseDraw()
	return [2]float64{clamp(left, -1, 1), clamp(right, -1, 1)}
}

// adversarialAction closes to a firing position and holds aim on the vehicle.
func (a *Arena) adversarialAction(noise float64) [2]float64 {
	dx := a.vehicle.x - a.opponent.x
	dy := a.vehicle.y - a.opponent.y
	dist := math.Hypot(dx, dy)
	bearing := math.Atan2(dy, dx)
	turn := angleDiff(bearing, a.opponent.heading) / math.Pi
	forward := clamp((dist-0.7*laserRange)/laserRange, -0.5, 1)
	left := forward - 1.4*turn + 0.6*noise*a.noiseDraw()
	right := forward + 1.4*turn + 0.6*noise*a.noiseDraw()
	return [2]float64{clamp(left, -1, 1), clamp(right, -1, 1)}
}

func (a *Arena) noiseDraw() float64 {
	return a.rng.Float64()*2 - 1
}
