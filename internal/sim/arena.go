package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r1"

	"lasertag/internal/model"
)

// Arena is the reference combat simulator: a square planar arena with a
// kinematic differential-drive vehicle, a difficulty-scaled opponent, mines
// and a forward laser on each vehicle. Holding the beam on the opponent for
// the win threshold is a victory; being held on loses; touching a mine, the
// opponent or the wall ends the episode.
type Arena struct {
	src        *rand.PCG
	rng        *rand.Rand
	difficulty float64
	step       int

	forceTier  bool
	forcedTier opponentKind
	noiseScale float64

	vehicle  pose
	opponent pose
	prevX    float64
	prevY    float64

	lastSpeed   float64
	lastAngular float64

	mines [][2]float64

	beamOnOpponent int
	beamOnVehicle  int

	done   bool
	reason string
}

type pose struct {
	x, y, heading float64
}

const (
	// Arena geometry and vehicle limits. The vehicle action is a wheel pair
	// in [-1, 1]^2; forward speed and turn rate are the wheel sum and wheel
	// difference scaled by the limits below.
	arenaHalf     = 2.0
	dt            = 1.0 / 60.0
	maxSpeed      = 2.0
	maxAngularVel = math.Pi * 1.5
	vehicleRadius = 0.15
	mineRadius    = 0.12

	numRays  = 16
	rayRange = 3.0

	laserRange   = 2.5
	laserHalfArc = math.Pi / 16
	// Beam contact must hold this many consecutive ticks (2 s at 60 Hz) to win.
	laserWinSteps = 120

	maxMines      = 8
	mineClearance = 0.6
	mineSpacing   = 0.35
)

// ObservationSize is the length of every observation the arena emits:
// own pose and kinematics, opponent offset, beam progress, then the rays.
const ObservationSize = 10 + numRays

// ActionSize is the wheel pair [left, right].
const ActionSize = 2

var arenaBounds = r1.Interval{Min: -arenaHalf, Max: arenaHalf}

func NewArena() *Arena {
	return &Arena{noiseScale: 1}
}

// Reset starts a fresh episode. Spawns, mine layout and all opponent noise
// derive from a PCG seeded with the episode seed, so equal seeds replay
// identical episodes.
func (a *Arena) Reset(seed int64, difficulty float64) ([]float64, error) {
	if math.IsNaN(difficulty) || math.IsInf(difficulty, 0) {
		return nil, fmt.Errorf("arena: difficulty not finite")
	}
	difficulty = clamp(difficulty, 0, 1)

	src := rand.NewPCG(uint64(seed), uint64(seed))
	a.src = src
	a.rng = rand.New(src)
	a.difficulty = difficulty
	a.step = 0
	a.lastSpeed = 0
	a.lastAngular = 0
	a.beamOnOpponent = 0
	a.beamOnVehicle = 0
	a.done = false
	a.reason = ""

	a.vehicle = pose{
		x:       a.uniform(-1.6, -0.4),
		y:       a.uniform(-1.6, 1.6),
		heading: a.uniform(-math.Pi, math.Pi),
	}
	a.opponent = pose{
		x:       a.uniform(0.4, 1.6),
		y:       a.uniform(-1.6, 1.6),
		heading: a.uniform(-math.Pi, math.Pi),
	}
	a.prevX, a.prevY = a.vehicle.x, a.vehicle.y
	a.placeMines(int(difficulty * maxMines))

	return a.observe(), nil
}

func (a *Arena) placeMines(count int) {
	a.mines = a.mines[:0]
	for i := 0; i < count; i++ {
		var x, y float64
		for attempt := 0; attempt < 32; attempt++ {
			x = a.uniform(-1.8, 1.8)
			y = a.uniform(-1.8, 1.8)
			if a.mineFits(x, y) {
				break
			}
		}
		a.mines = append(a.mines, [2]float64{x, y})
	}
}

func (a *Arena) mineFits(x, y float64) bool {
	if math.Hypot(x-a.vehicle.x, y-a.vehicle.y) < mineClearance {
		return false
	}
	if math.Hypot(x-a.opponent.x, y-a.opponent.y) < mineClearance {
		return false
	}
	for _, m := range a.mines {
		if math.Hypot(x-m[0], y-m[1]) < mineSpacing {
			return false
		}
	}
	return true
}

// Step advances one tick. The opponent acts first from the pre-step state,
// then both vehicles integrate, then terminal conditions are evaluated with
// victory taking precedence over the loss conditions.
func (a *Arena) Step(action []float64) (Outcome, error) {
	if a.rng == nil {
		return Outcome{}, errors.New("arena: step before reset")
	}
	if a.done {
		return Outcome{}, errors.New("arena: episode finished, reset required")
	}
	if len(action) != ActionSize {
		return Outcome{}, fmt.Errorf("arena: action has %d elements, want %d", len(action), ActionSize)
	}

	left := clamp(action[0], -1, 1)
	right := clamp(action[1], -1, 1)
	oppAction := a.opponentAction()

	a.prevX, a.prevY = a.vehicle.x, a.vehicle.y
	a.lastSpeed, a.lastAngular = integrate(&a.vehicle, left, right)
	integrate(&a.opponent, oppAction[0], oppAction[1])
	a.opponent.x = clamp(a.opponent.x, arenaBounds.Min, arenaBounds.Max)
	a.opponent.y = clamp(a.opponent.y, arenaBounds.Min, arenaBounds.Max)
	a.step++

	displacement := math.Hypot(a.vehicle.x-a.prevX, a.vehicle.y-a.prevY)

	ourBeam := beamOn(a.vehicle, a.opponent)
	oppBeam := beamOn(a.opponent, a.vehicle)
	if ourBeam {
		a.beamOnOpponent++
	} else {
		a.beamOnOpponent = 0
	}
	if oppBeam {
		a.beamOnVehicle++
	} else {
		a.beamOnVehicle = 0
	}

	collision := a.vehicleHitsMine() || a.vehicleHitsOpponent()
	outOfBounds := !contains(arenaBounds, a.vehicle.x) || !contains(arenaBounds, a.vehicle.y)
	victory := a.beamOnOpponent >= laserWinSteps
	lasered := a.beamOnVehicle >= laserWinSteps

	switch {
	case victory:
		a.done = true
		a.reason = model.OutcomeVictory
	case collision:
		a.done = true
		a.reason = model.OutcomeCollision
	case outOfBounds:
		a.done = true
		a.reason = model.OutcomeOutOfBounds
	case lasered:
		a.done = true
		a.reason = model.OutcomeDefeat
	}

	return Outcome{
		Observation: a.observe(),
		Pose:        []float64{a.vehicle.x, a.vehicle.y, a.vehicle.heading},
		Kinematics:  []float64{a.lastSpeed, a.lastAngular, displacement},
		Collision:   collision,
		LaserHit:    ourBeam,
		Goal:        victory,
		Terminal:    a.done,
		Reason:      a.reason,
	}, nil
}

func integrate(b *pose, left, right float64) (speed, angular float64) {
	speed = (left + right) / 2 * maxSpeed
	angular = (right - left) / 2 * maxAngularVel
	b.heading = wrapAngle(b.heading + angular*dt)
	b.x += speed * math.Cos(b.heading) * dt
	b.y += speed * math.Sin(b.heading) * dt
	return speed, angular
}

func beamOn(from, to pose) bool {
	dx := to.x - from.x
	dy := to.y - from.y
	if math.Hypot(dx, dy) > laserRange {
		return false
	}
	bearing := math.Atan2(dy, dx)
	return math.Abs(angleDiff(bearing, from.heading)) <= laserHalfArc
}

func (a *Arena) vehicleHitsMine() bool {
	for _, m := range a.mines {
		if math.Hypot(a.vehicle.x-m[0], a.vehicle.y-m[1]) < vehicleRadius+mineRadius {
			return true
		}
	}
	return false
}

func (a *Arena) vehicleHitsOpponent() bool {
	return math.Hypot(a.vehicle.x-a.opponent.x, a.vehicle.y-a.opponent.y) < 2*vehicleRadius
}

func (a *Arena) observe() []float64 {
	obs := make([]float64, ObservationSize)
	obs[0] = a.vehicle.x / arenaHalf
	obs[1] = a.vehicle.y / arenaHalf
	obs[2] = math.Sin(a.vehicle.heading)
	obs[3] = math.Cos(a.vehicle.heading)
	obs[4] = a.lastSpeed / maxSpeed
	obs[5] = a.lastAngular / maxAngularVel

	// Opponent offset in the vehicle frame.
	dx := a.opponent.x - a.vehicle.x
	dy := a.opponent.y - a.vehicle.y
	cos := math.Cos(-a.vehicle.heading)
	sin := math.Sin(-a.vehicle.heading)
	obs[6] = (dx*cos - dy*sin) / (2 * arenaHalf)
	obs[7] = (dx*sin + dy*cos) / (2 * arenaHalf)

	obs[8] = math.Min(float64(a.beamOnOpponent)/laserWinSteps, 1)
	obs[9] = math.Min(float64(a.beamOnVehicle)/laserWinSteps, 1)

	for k := 0; k < numRays; k++ {
		obs[10+k] = a.rayDistance(k) / rayRange
	}
	return obs
}

func (a *Arena) rayDistance(ray int) float64 {
	angle := a.vehicle.heading + 2*math.Pi*float64(ray)/numRays
	ux, uy := math.Cos(angle), math.Sin(angle)
	best := rayWallDistance(a.vehicle.x, a.vehicle.y, ux, uy)
	for _, m := range a.mines {
		if t, ok := rayCircleDistance(a.vehicle.x, a.vehicle.y, ux, uy, m[0], m[1], mineRadius); ok && t < best {
			best = t
		}
	}
	if t, ok := rayCircleDistance(a.vehicle.x, a.vehicle.y, ux, uy, a.opponent.x, a.opponent.y, vehicleRadius); ok && t < best {
		best = t
	}
	return clamp(best, 0, rayRange)
}

func rayWallDistance(px, py, ux, uy float64) float64 {
	best := math.MaxFloat64
	if ux > 0 {
		best = math.Min(best, (arenaBounds.Max-px)/ux)
	} else if ux < 0 {
		best = math.Min(best, (arenaBounds.Min-px)/ux)
	}
	if uy > 0 {
		best = math.Min(best, (arenaBounds.Max-py)/uy)
	} else if uy < 0 {
		best = math.Min(best, (arenaBounds.Min-py)/uy)
	}
	return best
}

func rayCircleDistance(px, py, ux, uy, cx, cy, r float64) (float64, bool) {
	ox := px - cx
	oy := py - cy
	b := ox*ux + oy*uy
	c := ox*ox + oy*oy - r*r
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	t := -b - math.Sqrt(disc)
	if t < 0 {
		return 0, false
	}
	return t, true
}

type arenaState struct {
	RNG            []byte       `json:"rng"`
	Difficulty     float64      `json:"difficulty"`
	Step           int          `json:"step"`
	Vehicle        [3]float64   `json:"vehicle"`
	Opponent       [3]float64   `json:"opponent"`
	PrevPos        [2]float64   `json:"prev_pos"`
	LastSpeed      float64      `json:"last_speed"`
	LastAngular    float64      `json:"last_angular"`
	Mines          [][2]float64 `json:"mines"`
	BeamOnOpponent int          `json:"beam_on_opponent"`
	BeamOnVehicle  int          `json:"beam_on_vehicle"`
	Done           bool         `json:"done"`
	Reason         string       `json:"reason,omitempty"`
}

// SnapshotState captures the full episode state, RNG stream included, so a
// checkpoint can resume mid-episode bit for bit.
func (a *Arena) SnapshotState() ([]byte, error) {
	if a.rng == nil {
		return nil, errors.New("arena: snapshot before reset")
	}
	rngState, err := a.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal arena rng: %w", err)
	}
	state := arenaState{
		RNG:            rngState,
		Difficulty:     a.difficulty,
		Step:           a.step,
		Vehicle:        [3]float64{a.vehicle.x, a.vehicle.y, a.vehicle.heading},
		Opponent:       [3]float64{a.opponent.x, a.opponent.y, a.opponent.heading},
		PrevPos:        [2]float64{a.prevX, a.prevY},
		LastSpeed:      a.lastSpeed,
		LastAngular:    a.lastAngular,
		Mines:          a.mines,
		BeamOnOpponent: a.beamOnOpponent,
		BeamOnVehicle:  a.beamOnVehicle,
		Done:           a.done,
		Reason:         a.reason,
	}
	return json.Marshal(state)
}

func (a *Arena) RestoreState(data []byte) error {
	var state arenaState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode arena state: %w", err)
	}
	src := rand.NewPCG(0, 0)
	if err := src.UnmarshalBinary(state.RNG); err != nil {
		return fmt.Errorf("restore arena rng: %w", err)
	}
	a.src = src
	a.rng = rand.New(src)
	a.difficulty = state.Difficulty
	a.step = state.Step
	a.vehicle = pose{x: state.Vehicle[0], y: state.Vehicle[1], heading: state.Vehicle[2]}
	a.opponent = pose{x: state.Opponent[0], y: state.Opponent[1], heading: state.Opponent[2]}
	a.prevX, a.prevY = state.PrevPos[0], state.PrevPos[1]
	a.lastSpeed = state.LastSpeed
	a.lastAngular = state.LastAngular
	a.mines = state.Mines
	a.beamOnOpponent = state.BeamOnOpponent
	a.beamOnVehicle = state.BeamOnVehicle
	a.done = state.Done
	a.reason = state.Reason
	return nil
}

func (a *Arena) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*a.rng.Float64()
}

func contains(iv r1.Interval, v float64) bool {
	return v >= iv.Min && v <= iv.Max
}

func wrapAngle(v float64) float64 {
	for v > math.Pi {
		v -= 2 * math.Pi
	}
	for v < -math.Pi {
		v += 2 * math.Pi
	}
	return v
}

func angleDiff(a, b float64) float64 {
	return wrapAngle(a - b)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
