// Package lasertag is the public facade over the training platform: one
// Client owning the stores and a platform instance, with request/summary
// types that keep callers off the internal packages.
package lasertag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"lasertag/internal/config"
	"lasertag/internal/model"
	"lasertag/internal/platform"
	"lasertag/internal/policy"
	"lasertag/internal/sim"
	"lasertag/internal/stats"
	"lasertag/internal/storage"
)

const (
	defaultRunsDir       = "runs"
	defaultCheckpointDir = "checkpoints"
	defaultExportsDir    = "exports"
	defaultDBPath        = "lasertag.db"
)

type Options struct {
	StoreKind     string
	DBPath        string
	RunsDir       string
	CheckpointDir string
	ExportsDir    string
	Logger        zerolog.Logger
}

type Client struct {
	store       storage.Store
	checkpoints *storage.CheckpointStore
	platform    *platform.Platform

	runsDir    string
	exportsDir string
	logger     zerolog.Logger
}

// CurriculumTier mirrors one schedule entry: difficulty activates once
// cumulative progress reaches Threshold.
type CurriculumTier struct {
	Threshold  int64
	Difficulty float64
}

// OpponentOverride pins the arena opponent instead of deriving it from the
// active difficulty. NoiseScale nil keeps the tier's default noise.
type OpponentOverride struct {
	Tier       string
	NoiseScale *float64
}

type TrainRequest struct {
	RunID              string
	Seed               int64
	TotalTimesteps     int64
	NEnvs              int
	NSteps             int
	BatchSize          int
	MaxSteps           int
	CheckpointInterval int
	LearningRate       float64
	Gamma              float64
	EntCoef            float64
	Difficulty         float64
	Curriculum         []CurriculumTier
	RewardWeights      map[string]float64
	Opponent           OpponentOverride

	// Continue resumes training: ModelPath names a checkpoint file, an empty
	// ModelPath picks the latest checkpoint of RunID.
	Continue  bool
	ModelPath string
}

type TrainSummary struct {
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
}

type EvalRequest struct {
	RunID         string
	Checkpoint    string
	Latest        bool
	Episodes      int
	NEnvs         int
	MaxSteps      int
	Seed          int64
	Difficulty    float64
	RewardWeights map[string]float64
	Opponent      OpponentOverride
}

type EvalSummary struct {
	RunID      string
	Episodes   int
	MeanReturn float64
	StdReturn  float64
	MeanLength float64
	WinRate    float64
	Outcomes   map[string]int
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID           string
	CreatedAtUTC    string
	Seed            int64
	NEnvs           int
	TotalTimesteps  int64
	Progress        int64
	Episodes        int
	MeanReturn      float64
	WinRate         float64
	FinalDifficulty float64
	StopReason      string
}

// RunDetail combines the stored run record with the on-disk artifacts: the
// config snapshot the run was started with and, when an evaluation has been
// run against it, the latest eval report.
type RunDetail struct {
	Record   RunItem
	History  []float64
	Episodes []model.EpisodeSummary
	Config   *stats.RunConfig
	Eval     *stats.EvalReport
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// OutcomeOrder lists episode outcomes in display order.
var OutcomeOrder = []string{
	model.OutcomeVictory,
	model.OutcomeDefeat,
	model.OutcomeCollision,
	model.OutcomeOutOfBounds,
	model.OutcomeTimeout,
	model.OutcomeFault,
}

// CheckpointInfo describes one stored checkpoint artifact of a run.
type CheckpointInfo struct {
	BatchIndex  int
	Progress    int64
	Interrupted bool
	CreatedAt   string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	checkpointDir := opts.CheckpointDir
	if checkpointDir == "" {
		checkpointDir = defaultCheckpointDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	checkpoints, err := storage.NewCheckpointStore(checkpointDir)
	if err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}

	return &Client{
		store:       store,
		checkpoints: checkpoints,
		runsDir:     runsDir,
		exportsDir:  exportsDir,
		logger:      opts.Logger,
	}, nil
}

func (c *Client) Close() error {
	if c.platform != nil {
		c.platform.Stop()
		c.platform = nil
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePlatform(ctx)
	return err
}

func (c *Client) ensurePlatform(ctx context.Context) (*platform.Platform, error) {
	if c.platform != nil && c.platform.Started() {
		return c.platform, nil
	}
	p := platform.NewPlatform(platform.Config{
		Store:       c.store,
		Checkpoints: c.checkpoints,
		RunsDir:     c.runsDir,
		Logger:      c.logger,
	})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.platform = p
	return p, nil
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	return c.TrainWith(ctx, req, nil, nil, nil)
}

// TrainWith runs training with caller-supplied collaborators. Everything else
// behaves as Train; nil collaborators fall back to the reference ones.
func (c *Client) TrainWith(ctx context.Context, req TrainRequest, actor policy.Policy, optimizer policy.Optimizer, factory func(rank int) sim.Simulator) (TrainSummary, error) {
	p, err := c.ensurePlatform(ctx)
	if err != nil {
		return TrainSummary{}, err
	}
	cfg, err := c.trainingConfig(req)
	if err != nil {
		return TrainSummary{}, err
	}
	cfg.Policy = actor
	cfg.Optimizer = optimizer
	if factory != nil {
		cfg.Factory = factory
	}
	result, err := p.RunTraining(ctx, cfg)
	if err != nil {
		return TrainSummary{}, err
	}
	return TrainSummary{
		RunID:           result.RunID,
		RunDir:          result.RunDir,
		Progress:        result.Progress,
		Batches:         result.Batches,
		Episodes:        result.Episodes,
		MeanReturn:      result.MeanReturn,
		WinRate:         result.WinRate,
		FinalDifficulty: result.FinalDifficulty,
		StopReason:      result.StopReason,
		ReturnHistory:   result.ReturnHistory,
	}, nil
}

func (c *Client) trainingConfig(req TrainRequest) (platform.TrainingConfig, error) {
	defaults := config.Default()
	if req.TotalTimesteps <= 0 {
		req.TotalTimesteps = defaults.TotalTimesteps
	}
	if req.NEnvs < 1 {
		req.NEnvs = defaults.NEnvs
	}
	if req.NSteps < 1 {
		req.NSteps = defaults.NSteps
	}
	if req.BatchSize <= 0 {
		req.BatchSize = defaults.BatchSize
	}
	if req.MaxSteps < 1 {
		req.MaxSteps = defaults.MaxSteps
	}
	if req.CheckpointInterval < 1 {
		req.CheckpointInterval = defaults.CheckpointInterval
	}
	if req.LearningRate == 0 {
		req.LearningRate = defaults.LearningRate
	}
	if req.Gamma == 0 {
		req.Gamma = defaults.Gamma
	}
	if req.EntCoef == 0 {
		req.EntCoef = defaults.EntCoef
	}
	if req.Difficulty == 0 {
		req.Difficulty = defaults.Difficulty
	}
	if len(req.RewardWeights) == 0 {
		req.RewardWeights = defaults.RewardConfig
	}
	schedule := make([]model.CurriculumTier, 0, len(req.Curriculum))
	for _, tier := range req.Curriculum {
		schedule = append(schedule, model.CurriculumTier{Threshold: tier.Threshold, Difficulty: tier.Difficulty})
	}
	if len(schedule) == 0 {
		schedule = append([]model.CurriculumTier(nil), defaults.Curriculum...)
	}
	factory, err := arenaFactory(req.Opponent)
	if err != nil {
		return platform.TrainingConfig{}, err
	}
	continueFrom := ""
	if req.Continue {
		continueFrom = req.ModelPath
		if continueFrom == "" {
			continueFrom = "latest"
		}
	}
	return platform.TrainingConfig{
		RunID:              req.RunID,
		Seed:               req.Seed,
		TotalTimesteps:     req.TotalTimesteps,
		NEnvs:              req.NEnvs,
		NSteps:             req.NSteps,
		BatchSize:          req.BatchSize,
		MaxEpisodeSteps:    req.MaxSteps,
		CheckpointInterval: req.CheckpointInterval,
		LearningRate:       req.LearningRate,
		Gamma:              req.Gamma,
		EntCoef:            req.EntCoef,
		InitialDifficulty:  req.Difficulty,
		Curriculum:         schedule,
		RewardWeights:      req.RewardWeights,
		ContinueFrom:       continueFrom,
		Factory:            factory,
	}, nil
}

func (c *Client) Eval(ctx context.Context, req EvalRequest) (EvalSummary, error) {
	p, err := c.ensurePlatform(ctx)
	if err != nil {
		return EvalSummary{}, err
	}

	defaults := config.Default()
	if req.Episodes < 1 {
		req.Episodes = defaults.EvalEpisodes
	}
	if req.NEnvs < 1 {
		req.NEnvs = 1
	}
	if req.MaxSteps < 1 {
		req.MaxSteps = defaults.MaxSteps
	}
	if req.Difficulty == 0 {
		req.Difficulty = defaults.Difficulty
	}
	if len(req.RewardWeights) == 0 {
		req.RewardWeights = defaults.RewardConfig
	}
	checkpoint := req.Checkpoint
	if req.Latest && checkpoint == "" {
		checkpoint = "latest"
	}

	factory, err := arenaFactory(req.Opponent)
	if err != nil {
		return EvalSummary{}, err
	}

	result, err := p.RunEvaluation(ctx, platform.EvalConfig{
		RunID:           req.RunID,
		Checkpoint:      checkpoint,
		Episodes:        req.Episodes,
		NEnvs:           req.NEnvs,
		MaxEpisodeSteps: req.MaxSteps,
		Seed:            req.Seed,
		Difficulty:      req.Difficulty,
		RewardWeights:   req.RewardWeights,
		Factory:         factory,
	})
	if err != nil {
		return EvalSummary{}, err
	}

	return EvalSummary{
		RunID:      result.Report.RunID,
		Episodes:   result.Report.Episodes,
		MeanReturn: result.Report.MeanReturn,
		StdReturn:  result.Report.StdReturn,
		MeanLength: result.Report.MeanLength,
		WinRate:    result.Report.WinRate,
		Outcomes:   result.Report.Outcomes,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	p, err := c.ensurePlatform(ctx)
	if err != nil {
		return nil, err
	}
	records, err := p.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]RunItem, 0, len(records))
	for _, record := range records {
		items = append(items, runItemFromRecord(record))
		if req.Limit > 0 && len(items) >= req.Limit {
			break
		}
	}
	return items, nil
}

func (c *Client) GetRun(ctx context.Context, runID string) (RunDetail, bool, error) {
	p, err := c.ensurePlatform(ctx)
	if err != nil {
		return RunDetail{}, false, err
	}

	var detail RunDetail
	runCfg, hasConfig, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil {
		return RunDetail{}, false, err
	}
	if hasConfig {
		detail.Config = &runCfg
	}

	stored, ok, err := p.GetRun(ctx, runID)
	if err != nil {
		return RunDetail{}, false, err
	}
	if ok {
		detail.Record = runItemFromRecord(stored.Record)
		detail.History = stored.History
		detail.Episodes = stored.Episodes
	} else {
		// The store may be a fresh memory backend; runs from earlier
		// processes are still readable from their artifact directory.
		summary, found, err := stats.ReadRunSummary(c.runsDir, runID)
		if err != nil || !found {
			return RunDetail{}, false, err
		}
		detail.Record = runItemFromSummary(summary, detail.Config)
		if series, found, err := stats.ReadReturnSeries(c.runsDir, runID); err != nil {
			return RunDetail{}, false, err
		} else if found {
			detail.History = series
		}
		if episodes, found, err := stats.ReadRunEpisodes(c.runsDir, runID); err != nil {
			return RunDetail{}, false, err
		} else if found {
			detail.Episodes = episodes
		}
	}

	if report, found, err := stats.ReadEvalReport(c.runsDir, runID); err != nil {
		return RunDetail{}, false, err
	} else if found {
		detail.Eval = &report
	}
	return detail, true, nil
}

// RunIndex lists the on-disk run index, newest first. It covers runs from
// earlier processes that the active store backend may not hold.
func (c *Client) RunIndex(ctx context.Context) ([]stats.RunIndexEntry, error) {
	p, err := c.ensurePlatform(ctx)
	if err != nil {
		return nil, err
	}
	return p.RunIndex()
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	p, err := c.ensurePlatform(ctx)
	if err != nil {
		return ExportSummary{}, err
	}
	runID := req.RunID
	if req.Latest {
		index, err := p.RunIndex()
		if err != nil {
			return ExportSummary{}, err
		}
		if len(index) == 0 {
			return ExportSummary{}, fmt.Errorf("no runs recorded yet")
		}
		runID = index[0].RunID
	}
	if runID == "" {
		return ExportSummary{}, fmt.Errorf("run id is required (or pass latest)")
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dir, err := p.ExportRun(runID, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: dir}, nil
}

// Checkpoints lists a run's stored checkpoints, oldest first.
func (c *Client) Checkpoints(runID string) ([]CheckpointInfo, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	indices, err := c.checkpoints.List(runID)
	if err != nil {
		return nil, err
	}
	infos := make([]CheckpointInfo, 0, len(indices))
	for _, index := range indices {
		checkpoint, err := c.checkpoints.Load(runID, index)
		if err != nil {
			return nil, err
		}
		infos = append(infos, CheckpointInfo{
			BatchIndex:  checkpoint.BatchIndex,
			Progress:    checkpoint.Progress,
			Interrupted: checkpoint.Interrupted,
			CreatedAt:   checkpoint.CreatedAtUTC,
		})
	}
	return infos, nil
}

func (c *Client) PauseRun(runID string) error {
	if c.platform == nil {
		return fmt.Errorf("platform is not initialized")
	}
	return c.platform.PauseRun(runID)
}

func (c *Client) ContinueRun(runID string) error {
	if c.platform == nil {
		return fmt.Errorf("platform is not initialized")
	}
	return c.platform.ContinueRun(runID)
}

func (c *Client) StopRun(runID string) error {
	if c.platform == nil {
		return fmt.Errorf("platform is not initialized")
	}
	return c.platform.StopRun(runID)
}

func runItemFromRecord(record model.RunRecord) RunItem {
	return RunItem{
		RunID:           record.RunID,
		CreatedAtUTC:    record.CreatedAtUTC,
		Seed:            record.Seed,
		NEnvs:           record.NEnvs,
		TotalTimesteps:  record.TotalTimesteps,
		Progress:        record.Progress,
		Episodes:        record.Episodes,
		MeanReturn:      record.MeanReturn,
		WinRate:         record.WinRate,
		FinalDifficulty: record.FinalDifficulty,
		StopReason:      record.StopReason,
	}
}

// runItemFromSummary rebuilds a listing row from on-disk artifacts; budget
// fields the summary does not carry come from the config snapshot.
func runItemFromSummary(summary stats.RunSummary, cfg *stats.RunConfig) RunItem {
	item := RunItem{
		RunID:           summary.RunID,
		Seed:            summary.Seed,
		Progress:        summary.Progress,
		Episodes:        summary.Episodes,
		MeanReturn:      summary.MeanReturn,
		WinRate:         summary.WinRate,
		FinalDifficulty: summary.FinalDifficulty,
		StopReason:      summary.StopReason,
	}
	if cfg != nil {
		item.NEnvs = cfg.NEnvs
		item.TotalTimesteps = cfg.TotalTimesteps
	}
	return item
}

// arenaFactory builds the simulator factory for an opponent override. The
// override is validated once against a probe arena so the per-rank closures
// cannot fail.
func arenaFactory(override OpponentOverride) (func(rank int) sim.Simulator, error) {
	if override.Tier == "" && override.NoiseScale == nil {
		return nil, nil
	}
	probe := sim.NewArena()
	if override.Tier != "" {
		if err := probe.ForceOpponent(override.Tier); err != nil {
			return nil, err
		}
	}
	if override.NoiseScale != nil {
		if err := probe.SetOpponentNoiseScale(*override.NoiseScale); err != nil {
			return nil, err
		}
	}
	return func(rank int) sim.Simulator {
		arena := sim.NewArena()
		if override.Tier != "" {
			_ = arena.ForceOpponent(override.Tier)
		}
		if override.NoiseScale != nil {
			_ = arena.SetOpponentNoiseScale(*override.NoiseScale)
		}
		return arena
	}, nil
}
