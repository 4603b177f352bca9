package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"lasertag/internal/model"
	"lasertag/internal/policy"
	"lasertag/internal/sim"
	"lasertag/internal/stats"
	"lasertag/internal/storage"
	"lasertag/internal/train"
)

// stubSim terminates every episode after endAfter steps with a collision, so
// platform tests get predictable episode counts.
type stubSim struct {
	step     int
	endAfter int
}

func (s *stubSim) Reset(seed int64, difficulty float64) ([]float64, error) {
	s.step = 0
	return []float64{0, 0, difficulty}, nil
}

func (s *stubSim) Step(action []float64) (sim.Outcome, error) {
	s.step++
	out := sim.Outcome{
		Observation: []float64{0, float64(s.step), 0},
		Pose:        []float64{0, 0, 0},
		Kinematics:  []float64{0, 0, 0},
	}
	if s.endAfter > 0 && s.step >= s.endAfter {
		out.Terminal = true
		out.Collision = true
		out.Reason = model.OutcomeCollision
	}
	return out, nil
}

func fullWeights() map[string]float64 {
	return map[string]float64{
		"base":      1.0,
		"distance":  3.0,
		"rotation":  1.5,
		"collision": 8.0,
		"laser":     5.0,
		"goal":      15.0,
		"time":      0.05,
	}
}

func newTestPlatform(t *testing.T) (*Platform, string) {
	t.Helper()
	checkpoints, err := storage.NewCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("checkpoint store: %v", err)
	}
	runsDir := t.TempDir()
	p := NewPlatform(Config{
		Store:       storage.NewMemoryStore(),
		Checkpoints: checkpoints,
		RunsDir:     runsDir,
		Logger:      zerolog.Nop(),
	})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return p, runsDir
}

func trainingConfig(runID string, total int64) TrainingConfig {
	return TrainingConfig{
		RunID:              runID,
		Seed:               21,
		TotalTimesteps:     total,
		NEnvs:              2,
		NSteps:             5,
		BatchSize:          10,
		MaxEpisodeSteps:    8,
		CheckpointInterval: 2,
		LearningRate:       3e-4,
		Gamma:              0.99,
		EntCoef:            0.01,
		InitialDifficulty:  0.2,
		RewardWeights:      fullWeights(),
	}
}

func TestPlatformInitAndLifecycle(t *testing.T) {
	p, _ := newTestPlatform(t)
	if !p.Started() {
		t.Fatal("platform should be started after init")
	}
	if err := p.StopWithReason(StopReasonShutdown); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if p.Started() {
		t.Fatal("platform should not be started after stop")
	}
	if p.LastStopReason() != StopReasonShutdown {
		t.Fatalf("last stop reason: got=%s want=%s", p.LastStopReason(), StopReasonShutdown)
	}
	if err := p.StopWithReason("bogus"); err == nil {
		t.Fatal("expected invalid stop reason to fail")
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("reinit failed: %v", err)
	}
	if !p.Started() {
		t.Fatal("platform should be started after reinit")
	}
}

func TestPlatformInitRequiresStores(t *testing.T) {
	checkpoints, err := storage.NewCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("checkpoint store: %v", err)
	}
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing store", Config{Checkpoints: checkpoints, RunsDir: t.TempDir()}},
		{"missing checkpoints", Config{Store: storage.NewMemoryStore(), RunsDir: t.TempDir()}},
		{"missing runs dir", Config{Store: storage.NewMemoryStore(), Checkpoints: checkpoints}},
	}
	for _, tc := range cases {
		p := NewPlatform(tc.cfg)
		if err := p.Init(context.Background()); err == nil {
			t.Fatalf("%s: expected init error", tc.name)
		}
	}
}

func TestRunTrainingPersistsRunAndArtifacts(t *testing.T) {
	p, runsDir := newTestPlatform(t)
	ctx := context.Background()

	result, err := p.RunTraining(ctx, trainingConfig("run-alpha", 20))
	if err != nil {
		t.Fatalf("run training: %v", err)
	}
	if result.StopReason != train.StopCompleted {
		t.Fatalf("stop reason: got=%s want=%s", result.StopReason, train.StopCompleted)
	}
	if result.Progress != 20 || result.Batches != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Episodes == 0 {
		t.Fatal("expected finished episodes")
	}

	detail, ok, err := p.GetRun(ctx, "run-alpha")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if detail.Record.Progress != 20 || detail.Record.StopReason != train.StopCompleted {
		t.Fatalf("unexpected run record: %+v", detail.Record)
	}
	if len(detail.History) != 2 {
		t.Fatalf("stored history length: got=%d want=2", len(detail.History))
	}
	if len(detail.Episodes) != result.Episodes {
		t.Fatalf("stored episodes: got=%d want=%d", len(detail.Episodes), result.Episodes)
	}

	runs, err := p.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-alpha" {
		t.Fatalf("unexpected run list: %+v", runs)
	}

	cfg, ok, err := stats.ReadRunConfig(runsDir, "run-alpha")
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%v err=%v", ok, err)
	}
	if cfg.Seed != 21 || cfg.NEnvs != 2 {
		t.Fatalf("unexpected artifact config: %+v", cfg)
	}
	if _, err := os.Stat(filepath.Join(runsDir, "run-alpha", "return_series.csv")); err != nil {
		t.Fatalf("expected return series artifact: %v", err)
	}

	index, err := p.RunIndex()
	if err != nil {
		t.Fatalf("run index: %v", err)
	}
	if len(index) != 1 || index[0].RunID != "run-alpha" {
		t.Fatalf("unexpected run index: %+v", index)
	}

	outDir := t.TempDir()
	exported, err := p.ExportRun("run-alpha", outDir)
	if err != nil {
		t.Fatalf("export run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exported, "summary.json")); err != nil {
		t.Fatalf("expected exported summary: %v", err)
	}
}

type failingOptimizer struct{}

func (failingOptimizer) Update(ctx context.Context, batch []model.Transition) error {
	return &policy.OptimizationError{Reason: "scripted divergence"}
}

func TestFailedRunStillWritesConfigArtifact(t *testing.T) {
	p, runsDir := newTestPlatform(t)
	cfg := trainingConfig("run-fail", 20)
	cfg.Optimizer = failingOptimizer{}

	if _, err := p.RunTraining(context.Background(), cfg); err == nil {
		t.Fatal("expected optimization failure")
	}

	// The config snapshot lands before the run starts, so even a failed run
	// documents how it was launched.
	readCfg, ok, err := stats.ReadRunConfig(runsDir, "run-fail")
	if err != nil || !ok {
		t.Fatalf("read run config after failure: ok=%v err=%v", ok, err)
	}
	if readCfg.RunID != "run-fail" || readCfg.TotalTimesteps != 20 {
		t.Fatalf("unexpected config snapshot: %+v", readCfg)
	}
}

func TestRunTrainingAssignsRunID(t *testing.T) {
	p, _ := newTestPlatform(t)

	cfg := trainingConfig("", 10)
	result, err := p.RunTraining(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run training: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("expected a generated run id")
	}
	if _, ok, err := p.GetRun(context.Background(), result.RunID); err != nil || !ok {
		t.Fatalf("generated run id not persisted: ok=%v err=%v", ok, err)
	}
}

func TestRunTrainingResumeMergesHistory(t *testing.T) {
	p, _ := newTestPlatform(t)
	ctx := context.Background()

	first, err := p.RunTraining(ctx, trainingConfig("run-merge", 20))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Batches != 2 || len(first.ReturnHistory) != 2 {
		t.Fatalf("unexpected first run: %+v", first)
	}

	resumeCfg := trainingConfig("run-merge", 40)
	resumeCfg.ContinueFrom = "latest"
	second, err := p.RunTraining(ctx, resumeCfg)
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if second.Progress != 40 || second.Batches != 4 {
		t.Fatalf("unexpected resumed result: %+v", second)
	}
	if len(second.ReturnHistory) != 4 {
		t.Fatalf("merged history length: got=%d want=4", len(second.ReturnHistory))
	}
	if second.ReturnHistory[0] != first.ReturnHistory[0] || second.ReturnHistory[1] != first.ReturnHistory[1] {
		t.Fatal("resumed history should start with the stored prefix")
	}

	detail, ok, err := p.GetRun(ctx, "run-merge")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if len(detail.History) != 4 || detail.Record.Progress != 40 {
		t.Fatalf("store should hold the merged run: %+v", detail.Record)
	}
}

func TestRunTrainingValidation(t *testing.T) {
	p, _ := newTestPlatform(t)
	ctx := context.Background()

	bad := trainingConfig("run-bad", 0)
	if _, err := p.RunTraining(ctx, bad); err == nil {
		t.Fatal("expected zero budget to fail")
	}

	bad = trainingConfig("run-bad", 10)
	bad.NEnvs = 0
	if _, err := p.RunTraining(ctx, bad); err == nil {
		t.Fatal("expected zero environments to fail")
	}

	bad = trainingConfig("run-bad", 10)
	bad.RewardWeights = map[string]float64{"base": 1}
	if _, err := p.RunTraining(ctx, bad); err == nil {
		t.Fatal("expected incomplete reward weights to fail")
	}

	p.Stop()
	if _, err := p.RunTraining(ctx, trainingConfig("run-bad", 10)); err == nil {
		t.Fatal("expected stopped platform to refuse runs")
	}
}

func TestRunEvaluationWritesReport(t *testing.T) {
	p, runsDir := newTestPlatform(t)

	result, err := p.RunEvaluation(context.Background(), EvalConfig{
		RunID:           "run-eval",
		Episodes:        3,
		NEnvs:           2,
		MaxEpisodeSteps: 10,
		Seed:            5,
		Difficulty:      0.3,
		RewardWeights:   fullWeights(),
		Factory:         func(int) sim.Simulator { return &stubSim{endAfter: 4} },
	})
	if err != nil {
		t.Fatalf("run evaluation: %v", err)
	}
	if result.Report.Episodes != 3 || len(result.Episodes) != 3 {
		t.Fatalf("unexpected evaluation result: %+v", result.Report)
	}
	if result.Report.MeanLength != 4 {
		t.Fatalf("mean length: got=%v want=4", result.Report.MeanLength)
	}

	report, ok, err := stats.ReadEvalReport(runsDir, "run-eval")
	if err != nil || !ok {
		t.Fatalf("read eval report: ok=%v err=%v", ok, err)
	}
	if report.RunID != "run-eval" || report.Difficulty != 0.3 {
		t.Fatalf("unexpected persisted report: %+v", report)
	}
}

func TestRunEvaluationFromLatestCheckpoint(t *testing.T) {
	p, runsDir := newTestPlatform(t)
	ctx := context.Background()

	if _, err := p.RunTraining(ctx, trainingConfig("run-eval-ckpt", 20)); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	result, err := p.RunEvaluation(ctx, EvalConfig{
		RunID:           "run-eval-ckpt",
		Checkpoint:      "latest",
		Episodes:        2,
		NEnvs:           1,
		MaxEpisodeSteps: 8,
		Seed:            5,
		Difficulty:      0.2,
		RewardWeights:   fullWeights(),
	})
	if err != nil {
		t.Fatalf("run evaluation: %v", err)
	}
	if result.Report.Episodes != 2 {
		t.Fatalf("unexpected evaluation result: %+v", result.Report)
	}
	if _, err := os.Stat(filepath.Join(runsDir, "run-eval-ckpt", "eval_report.json")); err != nil {
		t.Fatalf("expected eval report artifact: %v", err)
	}
}

func TestRunControlRegistry(t *testing.T) {
	p, _ := newTestPlatform(t)

	if err := p.PauseRun("missing"); err == nil {
		t.Fatal("expected pause of unknown run to fail")
	}

	control := make(chan train.Command, 1)
	if err := p.registerRunControl("run-ctl", control); err != nil {
		t.Fatalf("register control: %v", err)
	}
	if err := p.registerRunControl("run-ctl", control); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if got := p.ActiveRuns(); len(got) != 1 || got[0] != "run-ctl" {
		t.Fatalf("unexpected active runs: %v", got)
	}

	if err := p.PauseRun("run-ctl"); err != nil {
		t.Fatalf("pause run: %v", err)
	}
	if cmd := <-control; cmd != train.CommandPause {
		t.Fatalf("expected pause command, got %v", cmd)
	}

	// Buffer full: the send must not block.
	control <- train.CommandContinue
	if err := p.StopRun("run-ctl"); err == nil {
		t.Fatal("expected full control channel to be reported")
	}

	p.unregisterRunControl("run-ctl")
	if err := p.ContinueRun("run-ctl"); err == nil {
		t.Fatal("expected unregistered run to be unknown")
	}
}

func TestStopBroadcastsToActiveRuns(t *testing.T) {
	p, _ := newTestPlatform(t)

	control := make(chan train.Command, 1)
	if err := p.registerRunControl("run-live", control); err != nil {
		t.Fatalf("register control: %v", err)
	}
	if err := p.StopWithReason(StopReasonShutdown); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case cmd := <-control:
		if cmd != train.CommandStop {
			t.Fatalf("expected stop command, got %v", cmd)
		}
	default:
		t.Fatal("expected a stop command broadcast")
	}
	if len(p.ActiveRuns()) != 0 {
		t.Fatalf("expected empty run registry after stop")
	}
}

func TestDefaultPlatformLifecycle(t *testing.T) {
	checkpoints, err := storage.NewCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("checkpoint store: %v", err)
	}
	cfg := Config{
		Store:       storage.NewMemoryStore(),
		Checkpoints: checkpoints,
		RunsDir:     t.TempDir(),
		Logger:      zerolog.Nop(),
	}
	t.Cleanup(func() { _ = StopDefault(StopReasonShutdown) })

	p, err := StartDefault(context.Background(), cfg)
	if err != nil {
		t.Fatalf("start default: %v", err)
	}
	again, err := StartDefault(context.Background(), cfg)
	if err != nil {
		t.Fatalf("start default twice: %v", err)
	}
	if p != again {
		t.Fatal("expected the live default platform to be reused")
	}
	if got, ok := Default(); !ok || got != p {
		t.Fatal("expected default lookup to resolve the started platform")
	}
	if err := StopDefault(StopReasonNormal); err != nil {
		t.Fatalf("stop default: %v", err)
	}
	if _, ok := Default(); ok {
		t.Fatal("expected no default platform after stop")
	}
}
