package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/engine"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/events"
)

// fakeProvider serves canned snapshots and positions per instrument
type fakeProvider struct {
	mu        sync.Mutex
	contexts  map[string]*engine.MarketContext
	positions map[string]*engine.Position
	failures  map[string]error
}

func (f *fakeProvider) Snapshot(_ context.Context, instrument string) (*engine.MarketContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[instrument]; ok {
		return nil, err
	}
	mc, ok := f.contexts[instrument]
	if !ok {
		return nil, fmt.Errorf("no context for %s", instrument)
	}
	return mc, nil
}

func (f *fakeProvider) OpenPosition(_ context.Context, instrument string) (*engine.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions[instrument], nil
}

// fakeApplier records every decision it receives
type fakeApplier struct {
	mu       sync.Mutex
	applied  []engine.Decision
	applyErr error
}

func (f *fakeApplier) Apply(_ context.Context, d engine.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, d)
	return nil
}

func (f *fakeApplier) decisions() []engine.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Decision, len(f.applied))
	copy(out, f.applied)
	return out
}

func snapshotFor(instrument string, confidence float64) *engine.MarketContext {
	return &engine.MarketContext{
		Instrument: instrument,
		Timestamp:  time.Now(),
		Price:      1.0,
		Volatility: engine.Float(0.3),
		Signal:     engine.SignalOutput{Direction: engine.DirectionLong, Confidence: confidence},
		Budget: engine.RiskBudget{
			DailyLossRemaining: 1000,
			DailyLossFraction:  1.0,
			DrawdownRemaining:  5000,
			DrawdownFraction:   1.0,
		},
	}
}

func newTestRunner(t *testing.T, provider ContextProvider, applier DecisionApplier, instruments []string) *Runner {
	t.Helper()
	cfg := config.Default()
	cfg.EngineConfig.Instruments = instruments
	cfg.EngineConfig.PollInterval = 10 * time.Millisecond

	eng := engine.New(cfg, zerolog.Nop())
	return New(cfg.EngineConfig, eng, provider, applier, events.NewEventBus(), zerolog.Nop())
}

func TestRunnerEvaluatesEveryInstrument(t *testing.T) {
	provider := &fakeProvider{
		contexts: map[string]*engine.MarketContext{
			"EURUSD": snapshotFor("EURUSD", 40),
			"XAUUSD": snapshotFor("XAUUSD", 40),
		},
	}
	applier := &fakeApplier{}
	r := newTestRunner(t, provider, applier, []string{"EURUSD", "XAUUSD"})

	r.runCycle(context.Background())

	applied := applier.decisions()
	if len(applied) != 2 {
		t.Fatalf("applied %d decisions in one cycle, want 2", len(applied))
	}
	seen := map[string]bool{}
	for _, d := range applied {
		seen[d.Instrument] = true
	}
	if !seen["EURUSD"] || !seen["XAUUSD"] {
		t.Errorf("not every instrument was evaluated: %v", seen)
	}

	budgets := r.Status()["risk_budgets"].(map[string]engine.RiskBudget)
	if b, ok := budgets["EURUSD"]; !ok || b.DailyLossFraction != 1.0 {
		t.Errorf("status missing last-seen budget for EURUSD: %v", budgets)
	}
}

func TestRunnerOneFailureDoesNotBlockOthers(t *testing.T) {
	provider := &fakeProvider{
		contexts: map[string]*engine.MarketContext{
			"XAUUSD": snapshotFor("XAUUSD", 40),
		},
		failures: map[string]error{
			"EURUSD": fmt.Errorf("feed outage"),
		},
	}
	applier := &fakeApplier{}
	r := newTestRunner(t, provider, applier, []string{"EURUSD", "XAUUSD"})

	r.runCycle(context.Background())

	applied := applier.decisions()
	if len(applied) != 1 || applied[0].Instrument != "XAUUSD" {
		t.Fatalf("healthy instrument not evaluated after a sibling failure: %v", applied)
	}

	status := r.Status()
	if status["error_count"].(int64) != 1 {
		t.Errorf("error_count = %v, want 1", status["error_count"])
	}
}

func TestRunnerOpenPositionGetsLifecyclePass(t *testing.T) {
	// Hard-stopped position must produce a CLOSE through the runner
	pos := &engine.Position{
		Instrument:    "EURUSD",
		Direction:     engine.DirectionLong,
		Size:          1000,
		AvgEntryPrice: 1.0850,
		OpenedAt:      time.Now().Add(-time.Hour),
		PnLPercent:    -2.5,
	}
	provider := &fakeProvider{
		contexts:  map[string]*engine.MarketContext{"EURUSD": snapshotFor("EURUSD", 90)},
		positions: map[string]*engine.Position{"EURUSD": pos},
	}
	applier := &fakeApplier{}
	r := newTestRunner(t, provider, applier, []string{"EURUSD"})

	r.runCycle(context.Background())

	applied := applier.decisions()
	if len(applied) != 1 {
		t.Fatalf("applied %d decisions, want 1", len(applied))
	}
	if applied[0].Action != engine.ActionClose {
		t.Errorf("action = %s for a hard-stopped position, want CLOSE", applied[0].Action)
	}
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	provider := &fakeProvider{
		contexts: map[string]*engine.MarketContext{"EURUSD": snapshotFor("EURUSD", 40)},
	}
	applier := &fakeApplier{}
	r := newTestRunner(t, provider, applier, []string{"EURUSD"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Let at least one cycle complete, then cancel
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}

	if r.CycleCount() == 0 {
		t.Error("no cycles completed before cancellation")
	}
	if status := r.Status(); status["running"].(bool) {
		t.Error("status still reports running after shutdown")
	}
}
