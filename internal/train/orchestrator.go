package train

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"lasertag/internal/curriculum"
	"lasertag/internal/model"
	"lasertag/internal/policy"
	"lasertag/internal/stats"
	"lasertag/internal/storage"
	"lasertag/internal/vecenv"
)

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseCollecting    Phase = "collecting"
	PhaseUpdating      Phase = "updating"
	PhaseCheckpointing Phase = "checkpointing"
)

// Command steers a running orchestrator from outside. Commands are drained at
// whole-step boundaries only: a pause blocks the loop before the next
// simulation step, a stop ends the run there with an interrupted checkpoint.
type Command int

const (
	CommandPause Command = iota
	CommandContinue
	CommandStop
)

const (
	StopCompleted   = "completed"
	StopStopped     = "stopped"
	StopInterrupted = "interrupted"
	StopFailed      = "failed"
)

const (
	defaultCheckpointInterval = 10
	episodeWindowSize         = 100
)

type Config struct {
	RunID              string
	TotalTimesteps     int64
	NSteps             int
	CheckpointInterval int
	BaseSeed           int64
	ConfigDigest       string
	Manager            *vecenv.Manager
	Policy             policy.Policy
	Optimizer          policy.Optimizer
	Scheduler          *curriculum.Scheduler
	Checkpoints        *storage.CheckpointStore
	Control            chan Command
	Logger             zerolog.Logger
}

type Result struct {
	RunID           string
	Progress        int64
	Batches         int
	ReturnHistory   []float64
	Episodes        []model.EpisodeSummary
	FinalDifficulty float64
	Window          stats.WindowStats
	StopReason      string
}

// Orchestrator drives the collect/update/checkpoint cycle over one vectorized
// manager. It is single-threaded: all fields are touched only from Run (and
// from Restore before Run starts).
type Orchestrator struct {
	cfg        Config
	manager    *vecenv.Manager
	policy     policy.Policy
	optimizer  policy.Optimizer
	scheduler  *curriculum.Scheduler
	checkpoint *storage.CheckpointStore
	control    chan Command
	logger     zerolog.Logger

	phase         Phase
	progress      int64
	batches       int
	difficulty    float64
	returnHistory []float64
	episodes      []model.EpisodeSummary
	window        *stats.Window
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if cfg.Optimizer == nil {
		return nil, fmt.Errorf("optimizer is required")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if cfg.TotalTimesteps <= 0 {
		return nil, fmt.Errorf("total timesteps must be > 0")
	}
	if cfg.NSteps <= 0 {
		return nil, fmt.Errorf("steps per batch must be > 0")
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = defaultCheckpointInterval
	}

	window, err := stats.NewWindow(episodeWindowSize)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:        cfg,
		manager:    cfg.Manager,
		policy:     cfg.Policy,
		optimizer:  cfg.Optimizer,
		scheduler:  cfg.Scheduler,
		checkpoint: cfg.Checkpoints,
		control:    cfg.Control,
		logger:     cfg.Logger.With().Str("component", "orchestrator").Str("run_id", cfg.RunID).Logger(),
		phase:      PhaseIdle,
		difficulty: cfg.Scheduler.Difficulty(),
		window:     window,
	}, nil
}

// Phase reports the state machine position. It is meaningful between runs and
// at whole-step boundaries; it is not synchronized against a live Run.
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

func (o *Orchestrator) Progress() int64 {
	return o.progress
}

// Restore applies a loaded checkpoint before Run: progress, batch numbering,
// curriculum high-water mark, per-instance simulator state and the policy and
// optimizer blobs. Blobs present in the checkpoint are rejected when the
// collaborator cannot restore them, so a resume never silently diverges.
func (o *Orchestrator) Restore(checkpoint model.Checkpoint) error {
	if err := o.scheduler.Restore(checkpoint.Curriculum); err != nil {
		return fmt.Errorf("restore curriculum: %w", err)
	}
	// The restored difficulty must be in force before the instances are
	// rebuilt: slots without a simulator snapshot fall back to a fresh reset
	// at the manager's current difficulty.
	o.difficulty = o.scheduler.Difficulty()
	o.manager.SetDifficulty(o.difficulty)
	if err := o.manager.RestoreState(checkpoint.Instances); err != nil {
		return fmt.Errorf("restore instances: %w", err)
	}
	o.progress = checkpoint.Progress
	o.batches = checkpoint.BatchIndex
	o.manager.SyncProgress(checkpoint.Progress)

	if len(checkpoint.PolicyState) > 0 {
		snapshotter, ok := o.policy.(policy.Snapshotter)
		if !ok {
			return fmt.Errorf("checkpoint carries policy state but the policy cannot restore it")
		}
		if err := snapshotter.RestoreState(checkpoint.PolicyState); err != nil {
			return fmt.Errorf("restore policy state: %w", err)
		}
	}
	if len(checkpoint.OptimizerState) > 0 {
		snapshotter, ok := o.optimizer.(policy.Snapshotter)
		if !ok {
			return fmt.Errorf("checkpoint carries optimizer state but the optimizer cannot restore it")
		}
		if err := snapshotter.RestoreState(checkpoint.OptimizerState); err != nil {
			return fmt.Errorf("restore optimizer state: %w", err)
		}
	}

	o.logger.Info().
		Int64("progress", o.progress).
		Int("batch", o.batches).
		Float64("difficulty", o.difficulty).
		Bool("interrupted", checkpoint.Interrupted).
		Msg("resumed from checkpoint")
	return nil
}

// Run cycles Collecting -> Updating -> Checkpointing until the timestep budget
// is exhausted. A stop command or context cancellation ends the run at the
// next whole-step boundary with an interrupted checkpoint and a nil error; the
// returned Result then carries everything gathered so far. Optimizer and
// checkpoint failures are fatal and returned as errors, leaving the last
// successful checkpoint in place.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	for o.progress < o.cfg.TotalTimesteps {
		o.phase = PhaseCollecting
		batch, stopped, err := o.collectBatch(ctx)
		if err != nil {
			if isInterruption(err) {
				return o.finishInterrupted(StopInterrupted)
			}
			o.phase = PhaseIdle
			return o.result(StopFailed), err
		}
		if stopped {
			return o.finishInterrupted(StopStopped)
		}

		o.phase = PhaseUpdating
		if err := o.optimizer.Update(ctx, batch); err != nil {
			if isInterruption(err) {
				return o.finishInterrupted(StopInterrupted)
			}
			o.phase = PhaseIdle
			o.logger.Error().Err(err).Int("batch", o.batches+1).Msg("optimizer update failed, halting run")
			return o.result(StopFailed), fmt.Errorf("update batch %d: %w", o.batches+1, err)
		}
		o.batches++
		meanReward := batchMeanReward(batch)
		o.returnHistory = append(o.returnHistory, meanReward)
		o.drainEpisodes()

		difficulty := o.scheduler.Advance(o.progress)
		if difficulty != o.difficulty {
			o.logger.Info().
				Float64("difficulty", difficulty).
				Int64("progress", o.progress).
				Msg("curriculum promoted")
		}
		o.difficulty = difficulty
		o.manager.SetDifficulty(difficulty)

		o.logger.Info().
			Int("batch", o.batches).
			Int64("progress", o.progress).
			Float64("mean_reward", meanReward).
			Float64("difficulty", difficulty).
			Float64("win_rate", o.window.WinRate()).
			Int("episodes", len(o.episodes)).
			Msg("batch complete")

		if o.batches%o.cfg.CheckpointInterval == 0 {
			o.phase = PhaseCheckpointing
			if err := o.writeCheckpoint(false); err != nil {
				o.phase = PhaseIdle
				return o.result(StopFailed), err
			}
		}
	}

	// Final checkpoint for runs whose last batch did not land on the interval.
	if o.batches == 0 || o.batches%o.cfg.CheckpointInterval != 0 {
		o.phase = PhaseCheckpointing
		if err := o.writeCheckpoint(false); err != nil {
			o.phase = PhaseIdle
			return o.result(StopFailed), err
		}
	}

	o.phase = PhaseIdle
	o.logger.Info().
		Int64("progress", o.progress).
		Int("batches", o.batches).
		Float64("win_rate", o.window.WinRate()).
		Msg("run completed")
	return o.result(StopCompleted), nil
}

// collectBatch gathers exactly NumEnvs * NSteps transitions, flattened in
// (instance index, step index) order. The stop flag reports a stop command
// received at a step boundary; the partial batch is then discarded.
func (o *Orchestrator) collectBatch(ctx context.Context) ([]model.Transition, bool, error) {
	numEnvs := o.manager.NumEnvs()
	batch := make([]model.Transition, numEnvs*o.cfg.NSteps)
	for step := 0; step < o.cfg.NSteps; step++ {
		stopped, err := o.drainControl(ctx)
		if err != nil || stopped {
			return nil, stopped, err
		}

		observations := o.manager.Observations()
		actions := make([][]float64, numEnvs)
		for i, obs := range observations {
			action, err := o.policy.Act(obs)
			if err != nil {
				return nil, false, fmt.Errorf("policy action for instance %d: %w", i, err)
			}
			actions[i] = action
		}

		transitions, err := o.manager.Step(actions)
		if err != nil {
			return nil, false, err
		}
		for i, transition := range transitions {
			batch[i*o.cfg.NSteps+step] = transition
		}
		o.progress += int64(numEnvs)
	}
	return batch, false, nil
}

// drainControl empties the command channel without blocking; a pause parks the
// loop here until a continue or stop arrives.
func (o *Orchestrator) drainControl(ctx context.Context) (bool, error) {
	paused := false
	for {
		if paused {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case cmd := <-o.control:
				switch cmd {
				case CommandStop:
					return true, nil
				case CommandContinue:
					paused = false
					o.logger.Info().Msg("run continued")
				}
			}
			continue
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case cmd := <-o.control:
			switch cmd {
			case CommandStop:
				return true, nil
			case CommandPause:
				paused = true
				o.logger.Info().Msg("run paused")
			}
		default:
			return false, nil
		}
	}
}

func (o *Orchestrator) drainEpisodes() {
	for _, episode := range o.manager.DrainEpisodes() {
		o.window.Observe(episode)
		o.episodes = append(o.episodes, episode)
	}
}

func (o *Orchestrator) finishInterrupted(reason string) (Result, error) {
	o.drainEpisodes()
	o.phase = PhaseCheckpointing
	if err := o.writeCheckpoint(true); err != nil {
		o.phase = PhaseIdle
		return o.result(StopFailed), err
	}
	o.phase = PhaseIdle
	o.logger.Info().
		Str("reason", reason).
		Int64("progress", o.progress).
		Msg("run ended early, interrupted checkpoint written")
	return o.result(reason), nil
}

func (o *Orchestrator) writeCheckpoint(interrupted bool) error {
	checkpoint, err := o.buildCheckpoint(interrupted)
	if err != nil {
		return err
	}
	if err := o.checkpoint.Save(checkpoint); err != nil {
		return fmt.Errorf("save checkpoint at batch %d: %w", o.batches, err)
	}
	o.logger.Info().
		Int("batch", o.batches).
		Int64("progress", o.progress).
		Bool("interrupted", interrupted).
		Msg("checkpoint written")
	return nil
}

func (o *Orchestrator) buildCheckpoint(interrupted bool) (model.Checkpoint, error) {
	instances, err := o.manager.ExportState()
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("export instance state: %w", err)
	}
	checkpoint := model.Checkpoint{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID:        o.cfg.RunID,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		BaseSeed:     o.cfg.BaseSeed,
		Progress:     o.progress,
		BatchIndex:   o.batches,
		Interrupted:  interrupted,
		Curriculum:   o.scheduler.State(),
		Instances:    instances,
		ConfigDigest: o.cfg.ConfigDigest,
	}
	if snapshotter, ok := o.policy.(policy.Snapshotter); ok {
		blob, err := snapshotter.SnapshotState()
		if err != nil {
			return model.Checkpoint{}, fmt.Errorf("snapshot policy state: %w", err)
		}
		checkpoint.PolicyState = blob
	}
	if snapshotter, ok := o.optimizer.(policy.Snapshotter); ok {
		blob, err := snapshotter.SnapshotState()
		if err != nil {
			return model.Checkpoint{}, fmt.Errorf("snapshot optimizer state: %w", err)
		}
		checkpoint.OptimizerState = blob
	}
	return checkpoint, nil
}

func (o *Orchestrator) result(reason string) Result {
	return Result{
		RunID:           o.cfg.RunID,
		Progress:        o.progress,
		Batches:         o.batches,
		ReturnHistory:   append([]float64(nil), o.returnHistory...),
		Episodes:        append([]model.EpisodeSummary(nil), o.episodes...),
		FinalDifficulty: o.difficulty,
		Window:          o.window.Stats(),
		StopReason:      reason,
	}
}

func batchMeanReward(batch []model.Transition) float64 {
	if len(batch) == 0 {
		return 0
	}
	rewards := make([]float64, len(batch))
	for i, transition := range batch {
		rewards[i] = transition.Reward
	}
	return stat.Mean(rewards, nil)
}

func isInterruption(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
