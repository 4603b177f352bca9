package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"lasertag/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var (
	// ErrNotFound reports a record or artifact that does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCorrupt reports a record that exists but cannot be decoded.
	ErrCorrupt = errors.New("record corrupt")
)

// ErrVersionMismatch is a corruption: the record was written by an
// incompatible schema or codec.
var ErrVersionMismatch = fmt.Errorf("%w: record version mismatch", ErrCorrupt)

func EncodeCheckpoint(c model.Checkpoint) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeCheckpoint(data []byte) (model.Checkpoint, error) {
	var checkpoint model.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return model.Checkpoint{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := checkVersion(checkpoint.VersionedRecord); err != nil {
		return model.Checkpoint{}, err
	}
	return checkpoint, nil
}

func EncodeRunRecord(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRunRecord(data []byte) (model.RunRecord, error) {
	var record model.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.RunRecord{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return record, nil
}

func EncodeReturnHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeReturnHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return history, nil
}

func EncodeEpisodeSummaries(episodes []model.EpisodeSummary) ([]byte, error) {
	return json.Marshal(episodes)
}

func DecodeEpisodeSummaries(data []byte) ([]model.EpisodeSummary, error) {
	var episodes []model.EpisodeSummary
	if err := json.Unmarshal(data, &episodes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return episodes, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
