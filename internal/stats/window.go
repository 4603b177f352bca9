package stats

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"lasertag/internal/model"
)

// Window keeps the most recent finished episodes for rolling diagnostics.
// Eviction is oldest-first once the capacity is reached.
type Window struct {
	capacity int
	episodes []model.EpisodeSummary
}

type WindowStats struct {
	Episodes   int            `json:"episodes"`
	WinRate    float64        `json:"win_rate"`
	MeanReturn float64        `json:"mean_return"`
	StdReturn  float64        `json:"std_return"`
	MeanLength float64        `json:"mean_length"`
	Outcomes   map[string]int `json:"outcomes,omitempty"`
}

func NewWindow(capacity int) (*Window, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("window capacity must be at least 1, got %d", capacity)
	}
	return &Window{capacity: capacity, episodes: make([]model.EpisodeSummary, 0, capacity)}, nil
}

func (w *Window) Observe(summary model.EpisodeSummary) {
	w.episodes = append(w.episodes, summary)
	if len(w.episodes) > w.capacity {
		n := copy(w.episodes, w.episodes[len(w.episodes)-w.capacity:])
		w.episodes = w.episodes[:n]
	}
}

func (w *Window) Len() int {
	return len(w.episodes)
}

func (w *Window) WinRate() float64 {
	if len(w.episodes) == 0 {
		return 0
	}
	wins := 0
	for _, episode := range w.episodes {
		if episode.Outcome == model.OutcomeVictory {
			wins++
		}
	}
	return float64(wins) / float64(len(w.episodes))
}

func (w *Window) MeanReturn() float64 {
	if len(w.episodes) == 0 {
		return 0
	}
	return stat.Mean(w.returns(), nil)
}

func (w *Window) StdReturn() float64 {
	if len(w.episodes) < 2 {
		return 0
	}
	return stat.StdDev(w.returns(), nil)
}

func (w *Window) MeanLength() float64 {
	if len(w.episodes) == 0 {
		return 0
	}
	lengths := make([]float64, len(w.episodes))
	for i, episode := range w.episodes {
		lengths[i] = float64(episode.Steps)
	}
	return stat.Mean(lengths, nil)
}

func (w *Window) OutcomeCounts() map[string]int {
	counts := make(map[string]int, len(w.episodes))
	for _, episode := range w.episodes {
		counts[episode.Outcome]++
	}
	return counts
}

func (w *Window) Stats() WindowStats {
	return WindowStats{
		Episodes:   len(w.episodes),
		WinRate:    w.WinRate(),
		MeanReturn: w.MeanReturn(),
		StdReturn:  w.StdReturn(),
		MeanLength: w.MeanLength(),
		Outcomes:   w.OutcomeCounts(),
	}
}

func (w *Window) returns() []float64 {
	values := make([]float64, len(w.episodes))
	for i, episode := range w.episodes {
		values[i] = episode.Return
	}
	return values
}
