package storage

import (
	"errors"
	"testing"

	"lasertag/internal/model"
)

func versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func TestCheckpointCodecRoundTrip(t *testing.T) {
	input := model.Checkpoint{
		VersionedRecord: versioned(),
		RunID:           "run-1",
		CreatedAtUTC:    "2026-03-01T10:00:00Z",
		BaseSeed:        42,
		Progress:        16384,
		BatchIndex:      4,
		Curriculum: model.CurriculumState{
			HighWater:  16384,
			Difficulty: 0.3,
			Schedule: []model.CurriculumTier{
				{Threshold: 0, Difficulty: 0.1},
				{Threshold: 10000, Difficulty: 0.3},
			},
		},
		Instances: []model.InstanceState{
			{RNG: []byte{1, 2, 3}, Observation: []float64{0.5, -0.5}},
		},
		PolicyState:    []byte("policy"),
		OptimizerState: []byte("optimizer"),
		ConfigDigest:   "abc123",
	}

	data, err := EncodeCheckpoint(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeCheckpoint(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if output.RunID != input.RunID || output.Progress != input.Progress {
		t.Fatalf("unexpected checkpoint: %+v", output)
	}
	if len(output.Instances) != 1 || string(output.PolicyState) != "policy" {
		t.Fatalf("blobs lost: %+v", output)
	}
	if output.Curriculum.Difficulty != 0.3 || len(output.Curriculum.Schedule) != 2 {
		t.Fatalf("curriculum state lost: %+v", output.Curriculum)
	}
}

func TestDecodeCheckpointRejectsVersionMismatch(t *testing.T) {
	input := model.Checkpoint{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion + 1, CodecVersion: CurrentCodecVersion},
		RunID:           "run-1",
	}
	data, err := EncodeCheckpoint(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = DecodeCheckpoint(data)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("error = %v, want version mismatch", err)
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("version mismatch does not classify as corrupt: %v", err)
	}
}

func TestDecodeCheckpointRejectsGarbage(t *testing.T) {
	_, err := DecodeCheckpoint([]byte("{not json"))
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("error = %v, want corrupt", err)
	}
}

func TestRunRecordCodecRoundTrip(t *testing.T) {
	input := model.RunRecord{
		VersionedRecord: versioned(),
		RunID:           "run-2",
		CreatedAtUTC:    "2026-03-01T11:00:00Z",
		Seed:            7,
		NEnvs:           6,
		NSteps:          4096,
		TotalTimesteps:  2000000,
		Progress:        49152,
		Batches:         2,
		FinalDifficulty: 0.3,
		MeanReturn:      -12.5,
		WinRate:         0.25,
		StopReason:      "completed",
	}
	data, err := EncodeRunRecord(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeRunRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if output.RunID != input.RunID || output.WinRate != input.WinRate || output.StopReason != input.StopReason {
		t.Fatalf("unexpected run record: %+v", output)
	}
}

func TestEpisodeSummariesCodecRoundTrip(t *testing.T) {
	input := []model.EpisodeSummary{
		{Instance: 0, Seed: 1, Steps: 120, Return: 3.5, Difficulty: 0.1, Outcome: model.OutcomeVictory, EndProgress: 480},
		{Instance: 1, Seed: 2, Steps: 80, Return: -9.0, Difficulty: 0.1, Outcome: model.OutcomeCollision, EndProgress: 500},
	}
	data, err := EncodeEpisodeSummaries(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeEpisodeSummaries(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(output) != 2 || output[0].Outcome != model.OutcomeVictory || output[1].EndProgress != 500 {
		t.Fatalf("unexpected summaries: %+v", output)
	}
}
