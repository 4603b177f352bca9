package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"lasertag/internal/model"
)

// CheckpointStore persists one JSON artifact per checkpoint under
// <dir>/<runID>/. Every write goes through a temp file and a rename, so an
// artifact is either fully present and loadable or absent; a crash can never
// leave a torn checkpoint behind. A latest.json pointer, written after the
// artifact it references, names the newest batch index.
type CheckpointStore struct {
	dir string
}

type latestPointer struct {
	BatchIndex  int  `json:"batch_index"`
	Interrupted bool `json:"interrupted"`
}

func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if dir == "" {
		return nil, errors.New("checkpoint dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}
	return &CheckpointStore{dir: dir}, nil
}

func (s *CheckpointStore) runDir(runID string) string {
	return filepath.Join(s.dir, runID)
}

func checkpointName(batchIndex int) string {
	return fmt.Sprintf("checkpoint-%06d.json", batchIndex)
}

func (s *CheckpointStore) Save(checkpoint model.Checkpoint) error {
	if checkpoint.RunID == "" {
		return errors.New("checkpoint run id is required")
	}
	payload, err := EncodeCheckpoint(checkpoint)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	dir := s.runDir(checkpoint.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, checkpointName(checkpoint.BatchIndex))
	if err := writeFileAtomic(path, payload); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}

	pointer, err := json.Marshal(latestPointer{
		BatchIndex:  checkpoint.BatchIndex,
		Interrupted: checkpoint.Interrupted,
	})
	if err != nil {
		return fmt.Errorf("encode latest pointer: %w", err)
	}
	latestPath := filepath.Join(dir, "latest.json")
	if err := writeFileAtomic(latestPath, pointer); err != nil {
		return fmt.Errorf("write latest pointer %s: %w", latestPath, err)
	}
	return nil
}

func (s *CheckpointStore) Load(runID string, batchIndex int) (model.Checkpoint, error) {
	return s.LoadPath(filepath.Join(s.runDir(runID), checkpointName(batchIndex)))
}

// LoadPath loads one checkpoint artifact by explicit path, for resuming from
// a caller-supplied model path.
func (s *CheckpointStore) LoadPath(path string) (model.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Checkpoint{}, fmt.Errorf("checkpoint %s: %w", path, ErrNotFound)
		}
		return model.Checkpoint{}, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	checkpoint, err := DecodeCheckpoint(data)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return checkpoint, nil
}

// LoadLatest follows the latest.json pointer for the run. The pointer is
// written after its artifact, so it always names a complete checkpoint.
func (s *CheckpointStore) LoadLatest(runID string) (model.Checkpoint, error) {
	path := filepath.Join(s.runDir(runID), "latest.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Checkpoint{}, fmt.Errorf("latest checkpoint for run %s: %w", runID, ErrNotFound)
		}
		return model.Checkpoint{}, fmt.Errorf("read latest pointer %s: %w", path, err)
	}
	var pointer latestPointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		return model.Checkpoint{}, fmt.Errorf("latest pointer %s: %w: %v", path, ErrCorrupt, err)
	}
	return s.Load(runID, pointer.BatchIndex)
}

// List returns the batch indexes with a stored artifact, ascending.
func (s *CheckpointStore) List(runID string) ([]int, error) {
	entries, err := os.ReadDir(s.runDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoints for run %s: %w", runID, err)
	}
	var indexes []int
	for _, entry := range entries {
		var batchIndex int
		if _, err := fmt.Sscanf(entry.Name(), "checkpoint-%d.json", &batchIndex); err == nil {
			indexes = append(indexes, batchIndex)
		}
	}
	sort.Ints(indexes)
	return indexes, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
