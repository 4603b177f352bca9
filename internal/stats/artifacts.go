package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"lasertag/internal/model"
)

const runIndexFile = "run_index.json"

type RunConfig struct {
	RunID              string                 `json:"run_id"`
	ContinueFrom       string                 `json:"continue_from,omitempty"`
	TotalTimesteps     int64                  `json:"total_timesteps"`
	NEnvs              int                    `json:"n_envs"`
	NSteps             int                    `json:"n_steps"`
	BatchSize          int                    `json:"batch_size"`
	LearningRate       float64                `json:"learning_rate"`
	Gamma              float64                `json:"gamma"`
	EntCoef            float64                `json:"ent_coef"`
	Seed               int64                  `json:"seed"`
	MaxEpisodeSteps    int                    `json:"max_episode_steps"`
	InitialDifficulty  float64                `json:"initial_difficulty"`
	CheckpointInterval int                    `json:"checkpoint_interval"`
	Curriculum         []model.CurriculumTier `json:"curriculum,omitempty"`
	RewardWeights      map[string]float64     `json:"reward_weights,omitempty"`
}

type RunSummary struct {
	RunID           string  `json:"run_id"`
	Seed            int64   `json:"seed"`
	Progress        int64   `json:"progress"`
	Batches         int     `json:"batches"`
	Episodes        int     `json:"episodes"`
	MeanReturn      float64 `json:"mean_return"`
	WinRate         float64 `json:"win_rate"`
	FinalDifficulty float64 `json:"final_difficulty"`
	StopReason      string  `json:"stop_reason"`
}

type EvalReport struct {
	RunID          string         `json:"run_id,omitempty"`
	CheckpointPath string         `json:"checkpoint_path,omitempty"`
	Episodes       int            `json:"episodes"`
	Seed           int64          `json:"seed"`
	Difficulty     float64        `json:"difficulty"`
	MeanReturn     float64        `json:"mean_return"`
	StdReturn      float64        `json:"std_return"`
	MeanLength     float64        `json:"mean_length"`
	WinRate        float64        `json:"win_rate"`
	Outcomes       map[string]int `json:"outcomes,omitempty"`
	GeneratedAtUTC string         `json:"generated_at_utc"`
}

type RunArtifacts struct {
	Config        RunConfig              `json:"config"`
	ReturnHistory []float64              `json:"return_history"`
	Episodes      []model.EpisodeSummary `json:"episodes,omitempty"`
	Summary       RunSummary             `json:"summary"`
}

type RunIndexEntry struct {
	RunID           string  `json:"run_id"`
	Seed            int64   `json:"seed"`
	NEnvs           int     `json:"n_envs"`
	TotalTimesteps  int64   `json:"total_timesteps"`
	Progress        int64   `json:"progress"`
	Episodes        int     `json:"episodes"`
	MeanReturn      float64 `json:"mean_return"`
	WinRate         float64 `json:"win_rate"`
	FinalDifficulty float64 `json:"final_difficulty"`
	StopReason      string  `json:"stop_reason,omitempty"`
	CreatedAtUTC    string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "return_history.json"), map[string]any{"mean_return_by_batch": artifacts.ReturnHistory, "final_mean_return": artifacts.Summary.MeanReturn}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "episodes.json"), artifacts.Episodes); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "return_history.json", "episodes.json", "summary.json"}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	optional := []string{"return_series.csv", "eval_report.json"}
	for _, file := range optional {
		srcPath := filepath.Join(src, file)
		if _, err := os.Stat(srcPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(srcPath, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	path := filepath.Join(baseDir, runID, "summary.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}

	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

func ReadRunEpisodes(baseDir, runID string) ([]model.EpisodeSummary, bool, error) {
	path := filepath.Join(baseDir, runID, "episodes.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var episodes []model.EpisodeSummary
	if err := json.Unmarshal(data, &episodes); err != nil {
		return nil, false, err
	}
	return episodes, true, nil
}

func WriteEvalReport(runDir string, report EvalReport) error {
	if report.GeneratedAtUTC == "" {
		report.GeneratedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return writeJSON(filepath.Join(runDir, "eval_report.json"), report)
}

func ReadEvalReport(baseDir, runID string) (EvalReport, bool, error) {
	path := filepath.Join(baseDir, runID, "eval_report.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return EvalReport{}, false, nil
		}
		return EvalReport{}, false, err
	}

	var report EvalReport
	if err := json.Unmarshal(data, &report); err != nil {
		return EvalReport{}, false, err
	}
	return report, true, nil
}

func WriteReturnSeries(runDir string, meanReturns []float64) error {
	path := filepath.Join(runDir, "return_series.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"batch", "mean_return"}); err != nil {
		return err
	}
	for i, mean := range meanReturns {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(mean, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadReturnSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "return_series.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("return series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("return series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
