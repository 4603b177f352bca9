package storage

import (
	"context"
	"testing"

	"lasertag/internal/model"
)

func TestMemoryStoreRunRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	record := model.RunRecord{
		VersionedRecord: versioned(),
		RunID:           "run-1",
		CreatedAtUTC:    "2026-03-01T10:00:00Z",
		Progress:        8192,
		StopReason:      "completed",
	}
	if err := store.SaveRunRecord(ctx, record); err != nil {
		t.Fatalf("save run record: %v", err)
	}

	output, ok, err := store.GetRunRecord(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run record: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run record")
	}
	if output.Progress != 8192 || output.StopReason != "completed" {
		t.Fatalf("unexpected run record: %+v", output)
	}
}

func TestMemoryStoreListRunRecordsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, record := range []model.RunRecord{
		{RunID: "run-old", CreatedAtUTC: "2026-03-01T08:00:00Z"},
		{RunID: "run-new", CreatedAtUTC: "2026-03-01T12:00:00Z"},
		{RunID: "run-mid", CreatedAtUTC: "2026-03-01T10:00:00Z"},
	} {
		if err := store.SaveRunRecord(ctx, record); err != nil {
			t.Fatalf("save %s: %v", record.RunID, err)
		}
	}

	records, err := store.ListRunRecords(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 || records[0].RunID != "run-new" || records[2].RunID != "run-old" {
		t.Fatalf("unexpected order: %+v", records)
	}
}

func TestMemoryStoreReturnHistoryCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []float64{-5.0, -2.5, 1.0}
	if err := store.SaveReturnHistory(ctx, "run-1", input); err != nil {
		t.Fatalf("save history: %v", err)
	}
	input[0] = 999

	output, ok, err := store.GetReturnHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted return history")
	}
	if output[0] != -5.0 {
		t.Fatalf("stored history aliases caller slice: %v", output)
	}
}

func TestMemoryStoreEpisodeSummariesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.EpisodeSummary{
		{Instance: 2, Seed: 5, Steps: 300, Return: 12.0, Outcome: model.OutcomeVictory},
	}
	if err := store.SaveEpisodeSummaries(ctx, "run-1", input); err != nil {
		t.Fatalf("save episodes: %v", err)
	}

	output, ok, err := store.GetEpisodeSummaries(ctx, "run-1")
	if err != nil {
		t.Fatalf("get episodes: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted episodes")
	}
	if len(output) != 1 || output[0].Outcome != model.OutcomeVictory {
		t.Fatalf("unexpected episodes: %+v", output)
	}

	_, ok, err = store.GetEpisodeSummaries(ctx, "run-missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatal("missing run reported as present")
	}
}
