package platform

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lasertag/internal/curriculum"
	"lasertag/internal/model"
	"lasertag/internal/policy"
	"lasertag/internal/reward"
	"lasertag/internal/sim"
	"lasertag/internal/stats"
	"lasertag/internal/storage"
	"lasertag/internal/train"
	"lasertag/internal/vecenv"
)

// Config assembles a Platform: the run-record store, the checkpoint store and
// the directory run artifacts are written under.
type Config struct {
	Store       storage.Store
	Checkpoints *storage.CheckpointStore
	RunsDir     string
	Logger      zerolog.Logger
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

// TrainingConfig describes one training run. Policy, Optimizer and Factory are
// optional collaborator overrides; when nil the reference collaborators are
// used (seeded random policy, recording optimizer, planar arena).
type TrainingConfig struct {
	RunID              string
	Seed               int64
	TotalTimesteps     int64
	NEnvs              int
	NSteps             int
	BatchSize          int
	MaxEpisodeSteps    int
	CheckpointInterval int
	LearningRate       float64
	Gamma              float64
	EntCoef            float64
	InitialDifficulty  float64
	Curriculum         []model.CurriculumTier
	RewardWeights      map[string]float64

	// ContinueFrom resumes a previous run: "latest" picks the newest
	// checkpoint of RunID, anything else is read as a checkpoint path.
	ContinueFrom string

	Policy    policy.Policy
	Optimizer policy.Optimizer
	Factory   func(rank int) sim.Simulator
	Control   chan train.Command
}

type TrainingResult struct {
	RunID           string
	RunDir          string
	Progress        int64
	Batches         int
	Episodes        int
	MeanReturn      float64
	WinRate         float64
	FinalDifficulty float64
	StopReason      string
	ReturnHistory   []float64
	Window          stats.WindowStats
}

// EvalConfig describes a learning-free rollout of a policy. Checkpoint is
// optional: "latest" picks the newest checkpoint of RunID, a path loads that
// checkpoint, empty evaluates the policy as constructed.
type EvalConfig struct {
	RunID           string
	Checkpoint      string
	Episodes        int
	NEnvs           int
	MaxEpisodeSteps int
	Seed            int64
	Difficulty      float64
	RewardWeights   map[string]float64

	Policy  policy.Policy
	Factory func(rank int) sim.Simulator
}

type EvaluationResult struct {
	Report   stats.EvalReport
	Episodes []model.EpisodeSummary
}

// RunDetail bundles everything the store holds about one finished run.
type RunDetail struct {
	Record   model.RunRecord
	History  []float64
	Episodes []model.EpisodeSummary
}

// Platform is the lifecycle shell around training runs: it owns the stores,
// hands out run IDs, keeps the control-channel registry for active runs and
// persists results and artifacts when a run ends.
type Platform struct {
	store       storage.Store
	checkpoints *storage.CheckpointStore
	runsDir     string
	logger      zerolog.Logger

	mu             sync.RWMutex
	started        bool
	lastStopReason StopReason
	runs           map[string]chan train.Command
}

var (
	defaultPlatformMu sync.Mutex
	defaultPlatform   *Platform
)

func NewPlatform(cfg Config) *Platform {
	return &Platform{
		store:          cfg.Store,
		checkpoints:    cfg.Checkpoints,
		runsDir:        cfg.RunsDir,
		logger:         cfg.Logger.With().Str("component", "platform").Logger(),
		runs:           make(map[string]chan train.Command),
		lastStopReason: StopReasonNormal,
	}
}

// StartDefault initializes the process-wide default platform, reusing a live
// one when present.
func StartDefault(ctx context.Context, cfg Config) (*Platform, error) {
	defaultPlatformMu.Lock()
	defer defaultPlatformMu.Unlock()

	if defaultPlatform != nil && defaultPlatform.Started() {
		return defaultPlatform, nil
	}

	p := NewPlatform(cfg)
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	defaultPlatform = p
	return defaultPlatform, nil
}

func Default() (*Platform, bool) {
	defaultPlatformMu.Lock()
	p := defaultPlatform
	defaultPlatformMu.Unlock()

	if p == nil || !p.Started() {
		return nil, false
	}
	return p, true
}

func StopDefault(reason StopReason) error {
	defaultPlatformMu.Lock()
	p := defaultPlatform
	defaultPlatformMu.Unlock()
	if p == nil {
		return nil
	}
	if err := p.StopWithReason(reason); err != nil {
		return err
	}
	defaultPlatformMu.Lock()
	if defaultPlatform == p {
		defaultPlatform = nil
	}
	defaultPlatformMu.Unlock()
	return nil
}

func (p *Platform) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	if p.checkpoints == nil {
		return fmt.Errorf("checkpoint store is required")
	}
	if p.runsDir == "" {
		return fmt.Errorf("runs directory is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if err := os.MkdirAll(p.runsDir, 0o755); err != nil {
		return fmt.Errorf("create runs directory: %w", err)
	}

	p.started = true
	return nil
}

func (p *Platform) Stop() {
	_ = p.StopWithReason(StopReasonNormal)
}

func (p *Platform) Shutdown() {
	_ = p.StopWithReason(StopReasonShutdown)
}

// StopWithReason stops the platform, asking every active run to stop at its
// next whole-step boundary. The sends are non-blocking; a run whose control
// buffer is full is already winding down or will observe the next command.
func (p *Platform) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if !isValidStopReason(reason) {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, control := range p.runs {
		select {
		case control <- train.CommandStop:
		default:
		}
	}
	p.started = false
	p.lastStopReason = reason
	p.runs = make(map[string]chan train.Command)
	return nil
}

func (p *Platform) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Platform) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStopReason
}

// RunTraining builds the full stack for one run, drives it to completion and
// persists the outcome: run record, return history and episode summaries in
// the store, plus the on-disk artifact directory and run index entry. On
// resume the previously stored history is prefixed so artifacts cover the
// whole logical run.
func (p *Platform) RunTraining(ctx context.Context, cfg TrainingConfig) (TrainingResult, error) {
	if !p.Started() {
		return TrainingResult{}, fmt.Errorf("platform is not initialized")
	}
	if cfg.TotalTimesteps <= 0 {
		return TrainingResult{}, fmt.Errorf("total timesteps must be > 0")
	}
	if cfg.NEnvs < 1 {
		return TrainingResult{}, fmt.Errorf("at least one environment is required")
	}
	if cfg.NSteps < 1 {
		return TrainingResult{}, fmt.Errorf("steps per batch must be >= 1")
	}

	var resume *model.Checkpoint
	if cfg.ContinueFrom != "" {
		checkpoint, err := p.loadResumeCheckpoint(cfg)
		if err != nil {
			return TrainingResult{}, err
		}
		if cfg.RunID == "" {
			cfg.RunID = checkpoint.RunID
		}
		if checkpoint.RunID != cfg.RunID {
			return TrainingResult{}, fmt.Errorf("checkpoint belongs to run %s, not %s", checkpoint.RunID, cfg.RunID)
		}
		resume = &checkpoint
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	control := cfg.Control
	if control == nil {
		control = make(chan train.Command, 16)
	}
	if err := p.registerRunControl(runID, control); err != nil {
		return TrainingResult{}, err
	}
	defer p.unregisterRunControl(runID)

	rewardCfg, err := reward.NewConfig(cfg.RewardWeights)
	if err != nil {
		return TrainingResult{}, err
	}
	aggregator, err := reward.NewAggregator(rewardCfg)
	if err != nil {
		return TrainingResult{}, err
	}

	schedule := cfg.Curriculum
	if len(schedule) == 0 {
		schedule = []model.CurriculumTier{{Threshold: 0, Difficulty: cfg.InitialDifficulty}}
	}
	scheduler, err := curriculum.NewScheduler(schedule)
	if err != nil {
		return TrainingResult{}, err
	}

	actor := cfg.Policy
	if actor == nil {
		actor, err = policy.NewRandomPolicy(cfg.Seed, sim.ActionSize)
		if err != nil {
			return TrainingResult{}, err
		}
	}
	optimizer := cfg.Optimizer
	if optimizer == nil {
		optimizer = policy.NewRecordingOptimizer(policy.Hyper{
			LearningRate: cfg.LearningRate,
			Gamma:        cfg.Gamma,
			EntCoef:      cfg.EntCoef,
			BatchSize:    cfg.BatchSize,
		})
	}

	manager, err := vecenv.New(vecenv.Config{
		NumEnvs:    cfg.NEnvs,
		MaxSteps:   cfg.MaxEpisodeSteps,
		BaseSeed:   cfg.Seed,
		Difficulty: scheduler.Difficulty(),
		Aggregator: aggregator,
		Factory:    cfg.Factory,
		Logger:     p.logger,
	})
	if err != nil {
		return TrainingResult{}, err
	}

	runCfg := p.runConfig(runID, cfg, schedule)
	digest := configDigest(runCfg)
	// Written before the run starts so a failed or interrupted run still
	// leaves its configuration on disk next to its checkpoints.
	if err := stats.WriteRunConfig(p.runsDir, runID, runCfg); err != nil {
		return TrainingResult{}, fmt.Errorf("write run config: %w", err)
	}

	orchestrator, err := train.New(train.Config{
		RunID:              runID,
		TotalTimesteps:     cfg.TotalTimesteps,
		NSteps:             cfg.NSteps,
		CheckpointInterval: cfg.CheckpointInterval,
		BaseSeed:           cfg.Seed,
		ConfigDigest:       digest,
		Manager:            manager,
		Policy:             actor,
		Optimizer:          optimizer,
		Scheduler:          scheduler,
		Checkpoints:        p.checkpoints,
		Control:            control,
		Logger:             p.logger,
	})
	if err != nil {
		return TrainingResult{}, err
	}

	if resume != nil {
		if resume.ConfigDigest != "" && resume.ConfigDigest != digest {
			p.logger.Warn().
				Str("run_id", runID).
				Str("checkpoint_digest", resume.ConfigDigest).
				Str("config_digest", digest).
				Msg("checkpoint was written under a different training configuration")
		}
		if err := orchestrator.Restore(*resume); err != nil {
			return TrainingResult{}, fmt.Errorf("restore checkpoint: %w", err)
		}
	}

	result, err := orchestrator.Run(ctx)
	if err != nil {
		return TrainingResult{}, err
	}
	if resume != nil {
		result, err = p.mergeExistingRunHistory(ctx, runID, result)
		if err != nil {
			return TrainingResult{}, err
		}
	}

	record := model.RunRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID:           runID,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		Seed:            cfg.Seed,
		NEnvs:           cfg.NEnvs,
		NSteps:          cfg.NSteps,
		TotalTimesteps:  cfg.TotalTimesteps,
		Progress:        result.Progress,
		Batches:         result.Batches,
		Episodes:        len(result.Episodes),
		FinalDifficulty: result.FinalDifficulty,
		MeanReturn:      result.Window.MeanReturn,
		WinRate:         result.Window.WinRate,
		StopReason:      result.StopReason,
	}
	if err := p.store.SaveRunRecord(ctx, record); err != nil {
		return TrainingResult{}, fmt.Errorf("save run record: %w", err)
	}
	if err := p.store.SaveReturnHistory(ctx, runID, result.ReturnHistory); err != nil {
		return TrainingResult{}, fmt.Errorf("save return history: %w", err)
	}
	if err := p.store.SaveEpisodeSummaries(ctx, runID, result.Episodes); err != nil {
		return TrainingResult{}, fmt.Errorf("save episode summaries: %w", err)
	}

	runDir, err := stats.WriteRunArtifacts(p.runsDir, stats.RunArtifacts{
		Config:        runCfg,
		ReturnHistory: result.ReturnHistory,
		Episodes:      result.Episodes,
		Summary: stats.RunSummary{
			RunID:           runID,
			Seed:            cfg.Seed,
			Progress:        result.Progress,
			Batches:         result.Batches,
			Episodes:        len(result.Episodes),
			MeanReturn:      result.Window.MeanReturn,
			WinRate:         result.Window.WinRate,
			FinalDifficulty: result.FinalDifficulty,
			StopReason:      result.StopReason,
		},
	})
	if err != nil {
		return TrainingResult{}, fmt.Errorf("write run artifacts: %w", err)
	}
	if err := stats.WriteReturnSeries(runDir, result.ReturnHistory); err != nil {
		return TrainingResult{}, fmt.Errorf("write return series: %w", err)
	}
	if err := stats.AppendRunIndex(p.runsDir, stats.RunIndexEntry{
		RunID:           runID,
		Seed:            cfg.Seed,
		NEnvs:           cfg.NEnvs,
		TotalTimesteps:  cfg.TotalTimesteps,
		Progress:        result.Progress,
		Episodes:        len(result.Episodes),
		MeanReturn:      result.Window.MeanReturn,
		WinRate:         result.Window.WinRate,
		FinalDifficulty: result.FinalDifficulty,
		StopReason:      result.StopReason,
		CreatedAtUTC:    record.CreatedAtUTC,
	}); err != nil {
		return TrainingResult{}, fmt.Errorf("append run index: %w", err)
	}

	if recorder, ok := optimizer.(*policy.RecordingOptimizer); ok {
		p.logger.Info().
			Str("run_id", runID).
			Int("updates", recorder.Updates()).
			Float64("last_mean_reward", recorder.LastMeanReward()).
			Msg("optimizer update statistics")
	}
	p.logger.Info().
		Str("run_id", runID).
		Int64("progress", result.Progress).
		Int("batches", result.Batches).
		Int("episodes", len(result.Episodes)).
		Str("stop_reason", result.StopReason).
		Str("run_dir", runDir).
		Msg("training run persisted")

	return TrainingResult{
		RunID:           runID,
		RunDir:          runDir,
		Progress:        result.Progress,
		Batches:         result.Batches,
		Episodes:        len(result.Episodes),
		MeanReturn:      result.Window.MeanReturn,
		WinRate:         result.Window.WinRate,
		FinalDifficulty: result.FinalDifficulty,
		StopReason:      result.StopReason,
		ReturnHistory:   result.ReturnHistory,
		Window:          result.Window,
	}, nil
}

func (p *Platform) loadResumeCheckpoint(cfg TrainingConfig) (model.Checkpoint, error) {
	if cfg.ContinueFrom == "latest" {
		if cfg.RunID == "" {
			return model.Checkpoint{}, fmt.Errorf("run id is required to resume from the latest checkpoint")
		}
		checkpoint, err := p.checkpoints.LoadLatest(cfg.RunID)
		if err != nil {
			return model.Checkpoint{}, fmt.Errorf("load latest checkpoint for %s: %w", cfg.RunID, err)
		}
		return checkpoint, nil
	}
	checkpoint, err := p.checkpoints.LoadPath(cfg.ContinueFrom)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", cfg.ContinueFrom, err)
	}
	return checkpoint, nil
}

// mergeExistingRunHistory prefixes the stored return history and episode
// summaries of a resumed run, so the persisted run covers every batch since
// the run first started.
func (p *Platform) mergeExistingRunHistory(ctx context.Context, runID string, current train.Result) (train.Result, error) {
	if history, ok, err := p.store.GetReturnHistory(ctx, runID); err != nil {
		return train.Result{}, fmt.Errorf("load stored return history: %w", err)
	} else if ok {
		current.ReturnHistory = append(append([]float64{}, history...), current.ReturnHistory...)
	}

	if episodes, ok, err := p.store.GetEpisodeSummaries(ctx, runID); err != nil {
		return train.Result{}, fmt.Errorf("load stored episode summaries: %w", err)
	} else if ok {
		current.Episodes = append(append([]model.EpisodeSummary{}, episodes...), current.Episodes...)
	}

	return current, nil
}

// RunEvaluation rolls a policy out without learning and reports episode
// statistics. When a checkpoint is named its policy blob is restored first,
// and the report is written into the owning run's artifact directory.
func (p *Platform) RunEvaluation(ctx context.Context, cfg EvalConfig) (EvaluationResult, error) {
	if !p.Started() {
		return EvaluationResult{}, fmt.Errorf("platform is not initialized")
	}
	if cfg.Episodes < 1 {
		return EvaluationResult{}, fmt.Errorf("at least one evaluation episode is required")
	}
	if cfg.NEnvs < 1 {
		cfg.NEnvs = 1
	}

	rewardCfg, err := reward.NewConfig(cfg.RewardWeights)
	if err != nil {
		return EvaluationResult{}, err
	}
	aggregator, err := reward.NewAggregator(rewardCfg)
	if err != nil {
		return EvaluationResult{}, err
	}

	actor := cfg.Policy
	if actor == nil {
		actor, err = policy.NewRandomPolicy(cfg.Seed, sim.ActionSize)
		if err != nil {
			return EvaluationResult{}, err
		}
	}

	runID := cfg.RunID
	if cfg.Checkpoint != "" {
		checkpoint, err := p.loadEvalCheckpoint(cfg)
		if err != nil {
			return EvaluationResult{}, err
		}
		if runID == "" {
			runID = checkpoint.RunID
		}
		if len(checkpoint.PolicyState) > 0 {
			snapshotter, ok := actor.(policy.Snapshotter)
			if !ok {
				return EvaluationResult{}, fmt.Errorf("checkpoint carries policy state but the policy cannot restore it")
			}
			if err := snapshotter.RestoreState(checkpoint.PolicyState); err != nil {
				return EvaluationResult{}, fmt.Errorf("restore policy state: %w", err)
			}
		}
	}

	manager, err := vecenv.New(vecenv.Config{
		NumEnvs:    cfg.NEnvs,
		MaxSteps:   cfg.MaxEpisodeSteps,
		BaseSeed:   cfg.Seed,
		Difficulty: cfg.Difficulty,
		Aggregator: aggregator,
		Factory:    cfg.Factory,
		Logger:     p.logger,
	})
	if err != nil {
		return EvaluationResult{}, err
	}

	evalResult, err := train.Evaluate(ctx, train.EvalConfig{
		Episodes: cfg.Episodes,
		Manager:  manager,
		Policy:   actor,
		Logger:   p.logger,
	})
	if err != nil {
		return EvaluationResult{}, err
	}

	report := stats.EvalReport{
		RunID:          runID,
		CheckpointPath: cfg.Checkpoint,
		Episodes:       evalResult.Stats.Episodes,
		Seed:           cfg.Seed,
		Difficulty:     cfg.Difficulty,
		MeanReturn:     evalResult.Stats.MeanReturn,
		StdReturn:      evalResult.Stats.StdReturn,
		MeanLength:     evalResult.Stats.MeanLength,
		WinRate:        evalResult.Stats.WinRate,
		Outcomes:       evalResult.Stats.Outcomes,
	}
	if runID != "" {
		runDir := filepath.Join(p.runsDir, runID)
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return EvaluationResult{}, fmt.Errorf("create run directory: %w", err)
		}
		if err := stats.WriteEvalReport(runDir, report); err != nil {
			return EvaluationResult{}, fmt.Errorf("write eval report: %w", err)
		}
	}

	return EvaluationResult{Report: report, Episodes: evalResult.Episodes}, nil
}

func (p *Platform) loadEvalCheckpoint(cfg EvalConfig) (model.Checkpoint, error) {
	if cfg.Checkpoint == "latest" {
		if cfg.RunID == "" {
			return model.Checkpoint{}, fmt.Errorf("run id is required to evaluate the latest checkpoint")
		}
		checkpoint, err := p.checkpoints.LoadLatest(cfg.RunID)
		if err != nil {
			return model.Checkpoint{}, fmt.Errorf("load latest checkpoint for %s: %w", cfg.RunID, err)
		}
		return checkpoint, nil
	}
	checkpoint, err := p.checkpoints.LoadPath(cfg.Checkpoint)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", cfg.Checkpoint, err)
	}
	return checkpoint, nil
}

func (p *Platform) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	if !p.Started() {
		return nil, fmt.Errorf("platform is not initialized")
	}
	return p.store.ListRunRecords(ctx)
}

func (p *Platform) GetRun(ctx context.Context, runID string) (RunDetail, bool, error) {
	if !p.Started() {
		return RunDetail{}, false, fmt.Errorf("platform is not initialized")
	}
	record, ok, err := p.store.GetRunRecord(ctx, runID)
	if err != nil || !ok {
		return RunDetail{}, ok, err
	}
	detail := RunDetail{Record: record}
	if history, ok, err := p.store.GetReturnHistory(ctx, runID); err != nil {
		return RunDetail{}, false, err
	} else if ok {
		detail.History = history
	}
	if episodes, ok, err := p.store.GetEpisodeSummaries(ctx, runID); err != nil {
		return RunDetail{}, false, err
	} else if ok {
		detail.Episodes = episodes
	}
	return detail, true, nil
}

// RunIndex lists the on-disk run index, newest first.
func (p *Platform) RunIndex() ([]stats.RunIndexEntry, error) {
	if !p.Started() {
		return nil, fmt.Errorf("platform is not initialized")
	}
	return stats.ListRunIndex(p.runsDir)
}

// ExportRun copies a run's artifact directory to outDir and returns the
// export path.
func (p *Platform) ExportRun(runID, outDir string) (string, error) {
	if !p.Started() {
		return "", fmt.Errorf("platform is not initialized")
	}
	return stats.ExportRunArtifacts(p.runsDir, runID, outDir)
}

func (p *Platform) PauseRun(runID string) error {
	return p.sendRunCommand(runID, train.CommandPause)
}

func (p *Platform) ContinueRun(runID string) error {
	return p.sendRunCommand(runID, train.CommandContinue)
}

func (p *Platform) StopRun(runID string) error {
	return p.sendRunCommand(runID, train.CommandStop)
}

func (p *Platform) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.runs))
	for name := range p.runs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Platform) registerRunControl(runID string, control chan train.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("platform is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = control
	return nil
}

func (p *Platform) unregisterRunControl(runID string) {
	if runID == "" {
		return
	}
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func (p *Platform) sendRunCommand(runID string, cmd train.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	control, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}

func (p *Platform) runConfig(runID string, cfg TrainingConfig, schedule []model.CurriculumTier) stats.RunConfig {
	weights := make(map[string]float64, len(cfg.RewardWeights))
	for name, weight := range cfg.RewardWeights {
		weights[name] = weight
	}
	return stats.RunConfig{
		RunID:              runID,
		ContinueFrom:       cfg.ContinueFrom,
		TotalTimesteps:     cfg.TotalTimesteps,
		NEnvs:              cfg.NEnvs,
		NSteps:             cfg.NSteps,
		BatchSize:          cfg.BatchSize,
		LearningRate:       cfg.LearningRate,
		Gamma:              cfg.Gamma,
		EntCoef:            cfg.EntCoef,
		Seed:               cfg.Seed,
		MaxEpisodeSteps:    cfg.MaxEpisodeSteps,
		InitialDifficulty:  cfg.InitialDifficulty,
		CheckpointInterval: cfg.CheckpointInterval,
		Curriculum:         append([]model.CurriculumTier(nil), schedule...),
		RewardWeights:      weights,
	}
}

// configDigest hashes the reproducibility-relevant configuration in a
// deterministic text encoding. Budget fields (total timesteps, checkpoint
// cadence) are left out: extending a run on resume is legitimate and must not
// read as a configuration change.
func configDigest(cfg stats.RunConfig) string {
	parts := make([]string, 0, 8+len(cfg.Curriculum)+len(cfg.RewardWeights))
	parts = append(parts,
		fmt.Sprintf("seed:%d", cfg.Seed),
		fmt.Sprintf("n_envs:%d", cfg.NEnvs),
		fmt.Sprintf("n_steps:%d", cfg.NSteps),
		fmt.Sprintf("batch:%d", cfg.BatchSize),
		fmt.Sprintf("max_steps:%d", cfg.MaxEpisodeSteps),
		fmt.Sprintf("lr:%g", cfg.LearningRate),
		fmt.Sprintf("gamma:%g", cfg.Gamma),
		fmt.Sprintf("ent:%g", cfg.EntCoef),
	)
	for _, tier := range cfg.Curriculum {
		parts = append(parts, fmt.Sprintf("tier:%d=%g", tier.Threshold, tier.Difficulty))
	}
	weights := make([]string, 0, len(cfg.RewardWeights))
	for name := range cfg.RewardWeights {
		weights = append(weights, name)
	}
	sort.Strings(weights)
	for _, name := range weights {
		parts = append(parts, fmt.Sprintf("w:%s=%g", name, cfg.RewardWeights[name]))
	}

	digest := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(digest[:8])
}

func isValidStopReason(reason StopReason) bool {
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
		return true
	default:
		return false
	}
}
