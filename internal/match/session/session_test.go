package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/strikeline/arena/internal/match/action"
	"github.com/strikeline/arena/internal/match/fault"
	"github.com/strikeline/arena/internal/match/record"
	"github.com/strikeline/arena/internal/match/sim"
	"github.com/strikeline/arena/internal/match/verdict"
	"github.com/strikeline/arena/internal/match/violation"
)

// testSink captures every session emission.
type testSink struct {
	verdicts  []fault.Verdict
	hashTicks []uint64
	hashes    []string
	penalized []string
	suspended []string
	ended     []verdict.Verdict
}

func (s *testSink) ActionVerdict(playerID string, tick uint64, v fault.Verdict) {
	s.verdicts = append(s.verdicts, v)
}

func (s *testSink) StateHash(tick uint64, hash string) {
	s.hashTicks = append(s.hashTicks, tick)
	s.hashes = append(s.hashes, hash)
}

func (s *testSink) MatchEnded(v verdict.Verdict) {
	s.ended = append(s.ended, v)
}

func (s *testSink) PlayerPenalized(playerID string, violations int) {
	s.penalized = append(s.penalized, playerID)
}

func (s *testSink) PlayerSuspended(playerID string) {
	s.suspended = append(s.suspended, playerID)
}

func testConfig() Config {
	cfg := DefaultConfig("m1")
	cfg.CountdownTicks = 3
	cfg.MatchDurationTicks = 20
	cfg.MaxPlayers = 4
	cfg.QueueDepth = 3
	cfg.HashBroadcastTicks = 5
	return cfg
}

func testDeps(sink Sink) Deps {
	return Deps{
		Seed: func() int64 { return 12345 },
		Sink: sink,
	}
}

// startPlaying joins two players and advances through the countdown.
func startPlaying(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Join("p1", "home"); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if err := s.Join("p2", "away"); err != nil {
		t.Fatalf("join p2: %v", err)
	}
	if got := s.Status(); got != StatusCountdown {
		t.Fatalf("status = %s, want COUNTDOWN after quorum", got)
	}
	for s.Status() == StatusCountdown {
		s.advance()
	}
	if got := s.Status(); got != StatusPlaying {
		t.Fatalf("status = %s, want PLAYING after countdown", got)
	}
}

func advanceToEnd(t *testing.T, s *Session) verdict.Verdict {
	t.Helper()
	for i := 0; i < 100000; i++ {
		if s.advance() {
			v, ok := s.Verdict()
			if !ok {
				t.Fatal("session ended without a verdict")
			}
			return v
		}
	}
	t.Fatal("session never ended")
	return verdict.Verdict{}
}

func TestSessionLifecycle(t *testing.T) {
	sink := &testSink{}
	s := New(testConfig(), testDeps(sink))

	if got := s.Status(); got != StatusWaiting {
		t.Fatalf("status = %s, want WAITING", got)
	}
	if err := s.Join("p1", "home"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := s.Status(); got != StatusWaiting {
		t.Fatalf("status = %s, want WAITING below quorum", got)
	}

	if err := s.Join("p2", "away"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := s.Status(); got != StatusCountdown {
		t.Fatalf("status = %s, want COUNTDOWN at quorum", got)
	}
	for s.Status() == StatusCountdown {
		s.advance()
	}
	v := advanceToEnd(t, s)

	if v.Outcome != verdict.OutcomeCertified {
		t.Fatalf("outcome = %s (%s), want CERTIFIED", v.Outcome, v.ReplayReason)
	}
	if !v.ReplayMatches {
		t.Fatalf("replay did not match: %s", v.ReplayReason)
	}
	if v.CommittedHash == "" {
		t.Fatal("verdict missing committed hash")
	}
	if len(sink.ended) != 1 {
		t.Fatalf("verdict emitted %d times, want 1", len(sink.ended))
	}

	rec, ok := s.Record()
	if !ok || !rec.Sealed() {
		t.Fatal("expected a sealed record after completion")
	}
	if rec.CommittedHash != v.CommittedHash {
		t.Fatal("verdict hash disagrees with sealed record")
	}
}

func TestSessionAcceptsAndLogsValidAction(t *testing.T) {
	sink := &testSink{}
	s := New(testConfig(), testDeps(sink))
	startPlaying(t, s)

	// Kickoff spread puts p1 near midfield; a tiny move is feasible.
	evt := action.Event{
		PlayerID: "p1",
		Tick:     s.Tick() + 1,
		Type:     action.TypeMove,
		Params:   map[string]float64{"x": 52.6, "y": 22.7},
	}
	if err := s.Submit(evt); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s.advance()

	if len(sink.verdicts) != 1 || !sink.verdicts[0].Accepted {
		t.Fatalf("verdicts = %+v, want one acceptance", sink.verdicts)
	}

	v := advanceToEnd(t, s)
	rec, _ := s.Record()
	if len(rec.InputLog) != 1 {
		t.Fatalf("input log length = %d, want 1", len(rec.InputLog))
	}
	if rec.InputLog[0].Tick == 0 || rec.InputLog[0].Tick > s.cfg.MatchDurationTicks {
		t.Fatalf("logged tick = %d, want match-relative tick", rec.InputLog[0].Tick)
	}
	if v.Outcome != verdict.OutcomeCertified {
		t.Fatalf("outcome = %s (%s), want CERTIFIED", v.Outcome, v.ReplayReason)
	}
}

func TestSessionDeterministicHash(t *testing.T) {
	run := func() string {
		sink := &testSink{}
		s := New(testConfig(), testDeps(sink))
		startPlaying(t, s)

		evt := action.Event{
			PlayerID: "p2",
			Tick:     s.Tick() + 1,
			Type:     action.TypeSprint,
			Params:   map[string]float64{"duration": 30},
		}
		if err := s.Submit(evt); err != nil {
			t.Fatalf("submit: %v", err)
		}
		v := advanceToEnd(t, s)
		return v.CommittedHash
	}

	if first, second := run(), run(); first != second {
		t.Fatalf("same seed and inputs produced different hashes: %s vs %s", first, second)
	}
}

func TestSessionRejectionsBecomeViolations(t *testing.T) {
	sink := &testSink{}
	s := New(testConfig(), testDeps(sink))
	startPlaying(t, s)

	// A teleport across the pitch is schema-valid but infeasible.
	evt := action.Event{
		PlayerID: "p1",
		Tick:     s.Tick() + 1,
		Type:     action.TypeMove,
		Params:   map[string]float64{"x": 100, "y": 60},
	}
	if err := s.Submit(evt); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s.advance()

	if len(sink.verdicts) != 1 || sink.verdicts[0].Accepted {
		t.Fatalf("verdicts = %+v, want one rejection", sink.verdicts)
	}
	if sink.verdicts[0].Kind != fault.KindInfeasible {
		t.Fatalf("kind = %s, want %s", sink.verdicts[0].Kind, fault.KindInfeasible)
	}

	v := advanceToEnd(t, s)
	if v.ViolationCount() != 1 {
		t.Fatalf("violations = %d, want 1", v.ViolationCount())
	}
	rec, _ := s.Record()
	if len(rec.InputLog) != 0 {
		t.Fatal("rejected action must not reach the input log")
	}
}

func TestSessionQueueOverflowDropsOldest(t *testing.T) {
	sink := &testSink{}
	s := New(testConfig(), testDeps(sink))
	startPlaying(t, s)

	// Five sprints against a queue depth of three.
	for i := 0; i < 5; i++ {
		evt := action.Event{
			PlayerID: "p1",
			Tick:     s.Tick() + 1 + uint64(i),
			Type:     action.TypeSprint,
			Params:   map[string]float64{"duration": 1},
		}
		if err := s.Submit(evt); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	s.advance()

	// Two of the five submissions were dropped; each drop is recorded.
	var overflow int
	for _, rec := range sinkViolations(s) {
		if rec.Kind == fault.KindRateLimit {
			overflow++
		}
	}
	if overflow != 2 {
		t.Fatalf("overflow violations = %d, want one per dropped action", overflow)
	}
	if len(sink.penalized) == 0 {
		t.Fatal("expected overflow to penalize the player")
	}
	if len(sink.verdicts) != 3 {
		t.Fatalf("processed verdicts = %d, want queue depth of 3", len(sink.verdicts))
	}
}

func TestSessionDefaultSeedDependency(t *testing.T) {
	sink := &testSink{}
	s := New(testConfig(), Deps{Sink: sink})
	startPlaying(t, s)

	s.mu.Lock()
	seed := s.seed
	recSeed := s.rec.Seed
	s.mu.Unlock()
	if seed == 0 {
		t.Fatal("default seed dependency must fix a seed at kickoff")
	}
	if recSeed != seed {
		t.Fatalf("record seed = %d, want the session seed %d", recSeed, seed)
	}
}

func sinkViolations(s *Session) []violation.Record {
	v, ok := s.Verdict()
	if ok {
		return v.Violations
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Records()
}

func TestSessionSuspensionSilencesPlayer(t *testing.T) {
	sink := &testSink{}
	s := New(testConfig(), testDeps(sink))
	startPlaying(t, s)

	// Three schema violations in one drain escalate to suspension.
	for i := 0; i < 3; i++ {
		evt := action.Event{
			PlayerID: "p1",
			Tick:     s.Tick() + 1 + uint64(i),
			Type:     action.TypeShoot,
			Params:   map[string]float64{"power": 500, "angle": 0},
		}
		if err := s.Submit(evt); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	s.advance()

	if len(sink.suspended) != 1 || sink.suspended[0] != "p1" {
		t.Fatalf("suspended = %v, want [p1]", sink.suspended)
	}

	// Further submissions are silently discarded.
	evt := action.Event{
		PlayerID: "p1",
		Tick:     s.Tick() + 1,
		Type:     action.TypeSprint,
		Params:   map[string]float64{"duration": 1},
	}
	if err := s.Submit(evt); err != nil {
		t.Fatalf("post-suspension submit: %v", err)
	}
	before := len(sink.verdicts)
	s.advance()
	if len(sink.verdicts) != before {
		t.Fatal("suspended player's action was processed")
	}

	v := advanceToEnd(t, s)
	if len(v.SuspendedPlayers) != 1 || v.SuspendedPlayers[0] != "p1" {
		t.Fatalf("verdict suspended players = %v, want [p1]", v.SuspendedPlayers)
	}
}

func TestSessionJoinErrors(t *testing.T) {
	s := New(testConfig(), testDeps(&testSink{}))

	if err := s.Join("p1", "home"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Join("p1", "home"); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("duplicate join error = %v, want ErrAlreadyJoined", err)
	}

	for i := 2; i <= 4; i++ {
		if err := s.Join(fmt.Sprintf("p%d", i), "away"); err != nil {
			t.Fatalf("join p%d: %v", i, err)
		}
	}
	if err := s.Join("p5", "away"); !errors.Is(err, ErrMatchFull) {
		t.Fatalf("full join error = %v, want ErrMatchFull", err)
	}

	for s.Status() == StatusCountdown {
		s.advance()
	}
	if err := s.Leave("p4"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := s.Join("p5", "away"); !errors.Is(err, ErrMatchStarted) {
		t.Fatalf("late join error = %v, want ErrMatchStarted", err)
	}
}

func TestSessionCountdownRevertsBelowQuorum(t *testing.T) {
	s := New(testConfig(), testDeps(&testSink{}))

	if err := s.Join("p1", "home"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := s.Join("p2", "away"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := s.Status(); got != StatusCountdown {
		t.Fatalf("status = %s, want COUNTDOWN", got)
	}

	if err := s.Leave("p2"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := s.Status(); got != StatusWaiting {
		t.Fatalf("status = %s, want WAITING after losing quorum", got)
	}
}

func TestSessionEndsEarlyWhenPlayersLeave(t *testing.T) {
	sink := &testSink{}
	s := New(testConfig(), testDeps(sink))
	startPlaying(t, s)

	s.advance()
	if err := s.Leave("p2"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	s.advance()

	if got := s.Status(); got != StatusEnded {
		t.Fatalf("status = %s, want ENDED with one active player", got)
	}
	v, _ := s.Verdict()
	if v.Outcome != verdict.OutcomeCertified {
		t.Fatalf("outcome = %s (%s), want CERTIFIED for an early finish", v.Outcome, v.ReplayReason)
	}
}

func TestSessionCancel(t *testing.T) {
	sink := &testSink{}
	s := New(testConfig(), testDeps(sink))
	startPlaying(t, s)
	s.advance()

	s.Cancel()
	s.Cancel() // second cancel is a no-op

	if got := s.Status(); got != StatusEnded {
		t.Fatalf("status = %s, want ENDED", got)
	}
	v, ok := s.Verdict()
	if !ok || v.Outcome != verdict.OutcomeCancelled {
		t.Fatalf("verdict = %+v, want CANCELLED", v)
	}
	if v.RewardEligible() {
		t.Fatal("cancelled match must not be reward eligible")
	}
	if len(sink.ended) != 1 {
		t.Fatalf("verdict emitted %d times, want 1", len(sink.ended))
	}
	if _, ok := s.Record(); ok {
		t.Fatal("cancelled match must not seal a record")
	}

	if err := s.Submit(action.Event{PlayerID: "p1"}); !errors.Is(err, ErrMatchEnded) {
		t.Fatalf("submit after end = %v, want ErrMatchEnded", err)
	}
}

// failingStepper always errors on Step.
type failingStepper struct{}

func (failingStepper) Step(tick uint64, actions []action.Event) error {
	return errors.New("divergent state")
}
func (failingStepper) Position(string) (float64, float64, bool) { return 0, 0, false }
func (failingStepper) BallPosition() (float64, float64)         { return 0, 0 }
func (failingStepper) Stamina(string) (float64, bool)           { return 0, false }
func (failingStepper) Stats() map[string]record.PlayerStats     { return nil }

func TestSessionSimulationFaultFailsClosed(t *testing.T) {
	sink := &testSink{}
	deps := testDeps(sink)
	deps.NewStepper = func(int64, sim.Config, []sim.Player) sim.Stepper {
		return failingStepper{}
	}

	s := New(testConfig(), deps)
	startPlaying(t, s)
	s.advance()

	v, ok := s.Verdict()
	if !ok || v.Outcome != verdict.OutcomeSimulationFault {
		t.Fatalf("verdict = %+v, want SIMULATION_FAULT", v)
	}
	if v.RewardEligible() {
		t.Fatal("faulted match must not be reward eligible")
	}
}

func TestSessionBroadcastsStateHashes(t *testing.T) {
	sink := &testSink{}
	s := New(testConfig(), testDeps(sink))
	startPlaying(t, s)
	advanceToEnd(t, s)

	// Duration 20 with a broadcast interval of 5 gives four hashes.
	if len(sink.hashes) != 4 {
		t.Fatalf("hash broadcasts = %d at ticks %v, want 4", len(sink.hashes), sink.hashTicks)
	}
	for i, hash := range sink.hashes {
		if len(hash) != 64 {
			t.Fatalf("hash %d = %q, want 64 hex chars", i, hash)
		}
	}
}

func TestSessionRunCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.TickRate = 1000
	sink := &testSink{}
	s := New(cfg, testDeps(sink))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	v, ok := s.Verdict()
	if !ok || v.Outcome != verdict.OutcomeCancelled {
		t.Fatalf("verdict = %+v, want CANCELLED", v)
	}
}
