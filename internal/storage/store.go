package storage

import (
	"context"

	"lasertag/internal/model"
)

// Store defines persistence operations for run-level training records.
// Checkpoint artifacts live in the file-based CheckpointStore instead; they
// are large, written on a cadence and must be individually atomic.
type Store interface {
	Init(ctx context.Context) error
	SaveRunRecord(ctx context.Context, record model.RunRecord) error
	GetRunRecord(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRunRecords(ctx context.Context) ([]model.RunRecord, error)
	SaveReturnHistory(ctx context.Context, runID string, history []float64) error
	GetReturnHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveEpisodeSummaries(ctx context.Context, runID string, episodes []model.EpisodeSummary) error
	GetEpisodeSummaries(ctx context.Context, runID string) ([]model.EpisodeSummary, bool, error)
}
