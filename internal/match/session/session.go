// Package session runs the authoritative lifecycle of a single match.
//
// A session moves Waiting -> Countdown -> Playing -> Ended. All simulation
// and validation state is mutated from a single tick loop; player-facing
// calls only enqueue work or adjust membership under the session lock.
//
// Input log entries are stored with their match-relative tick (the tick at
// which the session applied them), which is what makes replay exact.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strikeline/arena/internal/match/action"
	"github.com/strikeline/arena/internal/match/anomaly"
	"github.com/strikeline/arena/internal/match/encoding"
	"github.com/strikeline/arena/internal/match/fault"
	"github.com/strikeline/arena/internal/match/profile"
	"github.com/strikeline/arena/internal/match/record"
	"github.com/strikeline/arena/internal/match/replay"
	"github.com/strikeline/arena/internal/match/sim"
	"github.com/strikeline/arena/internal/match/tickwindow"
	"github.com/strikeline/arena/internal/match/verdict"
	"github.com/strikeline/arena/internal/match/violation"
	"github.com/strikeline/arena/internal/platform/random"
)

// Status describes the lifecycle state of a match session.
type Status int

const (
	// StatusUnspecified represents an invalid status value.
	StatusUnspecified Status = iota
	// StatusWaiting indicates the session is waiting for quorum.
	StatusWaiting
	// StatusCountdown indicates the pre-match countdown is running.
	StatusCountdown
	// StatusPlaying indicates the match is live.
	StatusPlaying
	// StatusEnded indicates the match has ended and a verdict was emitted.
	StatusEnded
)

// String returns the canonical label for the status.
func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusCountdown:
		return "COUNTDOWN"
	case StatusPlaying:
		return "PLAYING"
	case StatusEnded:
		return "ENDED"
	default:
		return "UNSPECIFIED"
	}
}

var (
	// ErrAlreadyJoined indicates the player is already in the session.
	ErrAlreadyJoined = errors.New("player already joined")
	// ErrNotJoined indicates the player is not in the session.
	ErrNotJoined = errors.New("player not joined")
	// ErrMatchStarted indicates a join after play began.
	ErrMatchStarted = errors.New("match already started")
	// ErrMatchEnded indicates an operation against an ended session.
	ErrMatchEnded = errors.New("match already ended")
	// ErrMatchFull indicates the session reached its player cap.
	ErrMatchFull = errors.New("match is full")
	// ErrNotAccepting indicates a submit outside the playing state.
	ErrNotAccepting = errors.New("match is not accepting actions")
)

// Config carries the tunables for one match session.
type Config struct {
	MatchID string
	// TickRate is the authoritative simulation rate in ticks per second.
	TickRate int
	// CountdownTicks is the length of the pre-match countdown.
	CountdownTicks uint64
	// MatchDurationTicks is the playing time before the match ends.
	MatchDurationTicks uint64
	// MinPlayers is the quorum that starts the countdown.
	MinPlayers int
	// MaxPlayers caps session membership.
	MaxPlayers int
	// QueueDepth bounds each player's pending-action inbox.
	QueueDepth int
	// HashBroadcastTicks is the interval between state hash broadcasts.
	HashBroadcastTicks uint64

	Bounds     action.Bounds
	Window     tickwindow.Config
	Violations violation.Config
	Anomaly    anomaly.Config
	Sim        sim.Config
}

// DefaultConfig returns the standard session tunables for a match.
func DefaultConfig(matchID string) Config {
	return Config{
		MatchID:            matchID,
		TickRate:           60,
		CountdownTicks:     180,
		MatchDurationTicks: 18000,
		MinPlayers:         2,
		MaxPlayers:         10,
		QueueDepth:         10,
		HashBroadcastTicks: 300,
		Bounds:             action.DefaultBounds(),
		Window:             tickwindow.DefaultConfig(),
		Violations:         violation.DefaultConfig(),
		Anomaly:            anomaly.DefaultConfig(),
		Sim:                sim.DefaultConfig(),
	}
}

// Sink receives everything observable about a running session. Calls are
// made from inside the tick loop and must not block.
type Sink interface {
	violation.Sink
	// ActionVerdict reports the outcome of one submitted action.
	ActionVerdict(playerID string, tick uint64, v fault.Verdict)
	// StateHash reports a periodic hash of the authoritative state.
	StateHash(tick uint64, hash string)
	// MatchEnded delivers the terminal verdict, exactly once. Unlike the
	// other calls it is made outside the session lock, so the receiver may
	// read session accessors such as Record.
	MatchEnded(v verdict.Verdict)
}

// Deps are the session's injected collaborators. Zero fields get defaults.
type Deps struct {
	// Seed supplies the match seed at the moment play begins.
	Seed func() int64
	// NewStepper builds the simulation stepper for the match.
	NewStepper func(seed int64, cfg sim.Config, lineup []sim.Player) sim.Stepper
	// Profiles resolves player history for anomaly detection; may be nil.
	Profiles profile.Source
	// Sink receives observable session output.
	Sink Sink
}

// playerSlot tracks one player's membership and pending input.
type playerSlot struct {
	id      string
	teamID  string
	left    bool
	inbox   []action.Event
	dropped int
}

// Session is one match's authoritative state machine. Safe for concurrent
// Join, Leave, Submit, and Cancel; the tick loop runs single-threaded.
type Session struct {
	cfg  Config
	deps Deps

	mu        sync.Mutex
	status    Status
	players   map[string]*playerSlot
	tick      uint64
	startTick uint64
	countdown uint64

	seed    int64
	lineup  []sim.Player
	stepper sim.Stepper
	window  *tickwindow.Validator
	tracker *violation.Tracker
	rec     *record.Record

	final       *verdict.Verdict
	pendingEmit *verdict.Verdict
}

// New creates a session waiting for players.
func New(cfg Config, deps Deps) *Session {
	if deps.Seed == nil {
		deps.Seed = func() int64 {
			seed, err := random.NewSeed()
			if err != nil {
				// The entropy source failing is not worth aborting the
				// match; a clock seed is still recorded and replayable.
				return time.Now().UnixNano()
			}
			return seed
		}
	}
	if deps.NewStepper == nil {
		deps.NewStepper = func(seed int64, simCfg sim.Config, lineup []sim.Player) sim.Stepper {
			return sim.NewPitch(seed, simCfg, lineup)
		}
	}
	return &Session{
		cfg:     cfg,
		deps:    deps,
		status:  StatusWaiting,
		players: make(map[string]*playerSlot),
	}
}

// Status returns the session's lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Tick returns the current server tick.
func (s *Session) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Verdict returns the terminal verdict once the session has ended.
func (s *Session) Verdict() (verdict.Verdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		return verdict.Verdict{}, false
	}
	return *s.final, true
}

// Players returns the sorted ids of present players.
func (s *Session) Players() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePlayersLocked()
}

// Join adds a player before play begins. Reaching quorum starts the
// countdown.
func (s *Session) Join(playerID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusEnded:
		return ErrMatchEnded
	case StatusPlaying:
		return ErrMatchStarted
	}
	if _, ok := s.players[playerID]; ok {
		return ErrAlreadyJoined
	}
	if len(s.players) >= s.cfg.MaxPlayers {
		return ErrMatchFull
	}

	s.players[playerID] = &playerSlot{id: playerID, teamID: teamID}
	if s.status == StatusWaiting && len(s.players) >= s.cfg.MinPlayers {
		s.status = StatusCountdown
		s.countdown = s.cfg.CountdownTicks
	}
	return nil
}

// Leave removes a player. Before play it drops them entirely and may cancel
// the countdown; during play it marks them gone and discards queued input.
func (s *Session) Leave(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.players[playerID]
	if !ok || slot.left {
		return ErrNotJoined
	}

	switch s.status {
	case StatusEnded:
		return ErrMatchEnded
	case StatusWaiting, StatusCountdown:
		delete(s.players, playerID)
		if s.status == StatusCountdown && len(s.players) < s.cfg.MinPlayers {
			s.status = StatusWaiting
			s.countdown = 0
		}
	case StatusPlaying:
		slot.left = true
		slot.inbox = nil
		slot.dropped = 0
	}
	return nil
}

// Submit enqueues an action event for the next tick. The inbox is bounded;
// when full the oldest pending event is dropped and the overflow surfaces as
// a rate-limit violation at the next tick boundary. Actions from suspended
// players are silently discarded.
func (s *Session) Submit(evt action.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPlaying {
		if s.status == StatusEnded {
			return ErrMatchEnded
		}
		return ErrNotAccepting
	}
	slot, ok := s.players[evt.PlayerID]
	if !ok || slot.left {
		return ErrNotJoined
	}
	if s.tracker.Suspended(evt.PlayerID) {
		return nil
	}

	if len(slot.inbox) >= s.cfg.QueueDepth {
		slot.inbox = slot.inbox[1:]
		slot.dropped++
	}
	slot.inbox = append(slot.inbox, evt)
	return nil
}

// Cancel ends the session without a sealed record. It is a no-op after the
// session has already ended.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.status == StatusEnded {
		s.mu.Unlock()
		return
	}
	s.finishLocked(verdict.Verdict{
		MatchID: s.cfg.MatchID,
		Outcome: verdict.OutcomeCancelled,
	})
	s.emitPendingUnlock()
}

// Run drives the tick loop at the configured rate until the match ends or
// the context is cancelled. Context cancellation cancels the match.
func (s *Session) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Cancel()
			return ctx.Err()
		case <-ticker.C:
			if s.advance() {
				return nil
			}
		}
	}
}

// advance runs one tick and reports whether the session has ended.
func (s *Session) advance() bool {
	s.mu.Lock()

	switch s.status {
	case StatusEnded:
		s.mu.Unlock()
		return true
	case StatusWaiting:
		s.mu.Unlock()
		return false
	case StatusCountdown:
		s.tick++
		s.countdown--
		if s.countdown == 0 {
			s.startPlayingLocked()
		}
		s.mu.Unlock()
		return false
	case StatusPlaying:
		s.tick++
		s.playTickLocked()
		ended := s.status == StatusEnded
		s.emitPendingUnlock()
		return ended
	default:
		s.mu.Unlock()
		return false
	}
}

// startPlayingLocked fixes the seed and lineup and opens the match record.
func (s *Session) startPlayingLocked() {
	s.seed = s.deps.Seed()
	s.lineup = s.lineup[:0]
	for _, id := range s.activePlayersLocked() {
		s.lineup = append(s.lineup, sim.Player{ID: id, TeamID: s.players[id].teamID})
	}

	s.stepper = s.deps.NewStepper(s.seed, s.cfg.Sim, s.lineup)
	s.window = tickwindow.New(s.cfg.Window, s.stepper)
	s.tracker = violation.NewTracker(s.cfg.MatchID, s.cfg.Violations, s.deps.Sink)
	s.rec = record.New(s.cfg.MatchID, s.seed)
	s.startTick = s.tick
	s.status = StatusPlaying
}

// playTickLocked drains inboxes in sorted player order, validates, steps the
// simulation once, and checks the end conditions.
func (s *Session) playTickLocked() {
	elapsed := s.tick - s.startTick

	var batch []action.Event
	for _, id := range s.activePlayersLocked() {
		slot := s.players[id]

		// Every action dropped to queue overflow is its own violation.
		for i := 0; i < slot.dropped; i++ {
			s.recordViolationLocked(violation.Record{
				PlayerID: id,
				Tick:     s.tick,
				Kind:     fault.KindRateLimit,
				Severity: fault.SeverityError,
				Detail:   "input queue overflow, oldest pending action dropped",
			})
		}
		slot.dropped = 0

		pending := slot.inbox
		slot.inbox = nil
		for _, evt := range pending {
			if s.tracker.Suspended(id) {
				break
			}
			v := action.Validate(s.cfg.Bounds, s.rosterLocked(), evt)
			if v.Accepted {
				v = s.window.Validate(s.tick, evt)
			}
			s.emitVerdictLocked(id, v)
			if !v.Accepted {
				s.recordViolationLocked(violation.Record{
					PlayerID: id,
					Tick:     s.tick,
					Kind:     v.Kind,
					Severity: v.Severity,
					Detail:   v.Detail,
				})
				continue
			}

			// Log entries carry the match-relative tick at which they were
			// applied so replay can regroup them exactly.
			applied := evt
			applied.Tick = elapsed
			if err := s.rec.Append(applied); err != nil {
				s.finishFaultLocked(fmt.Errorf("append input log: %w", err))
				return
			}
			batch = append(batch, applied)
		}
	}

	if err := s.stepper.Step(elapsed, batch); err != nil {
		s.finishFaultLocked(err)
		return
	}

	if s.cfg.HashBroadcastTicks > 0 && elapsed > 0 && elapsed%s.cfg.HashBroadcastTicks == 0 {
		s.broadcastHashLocked(elapsed)
	}

	if elapsed >= s.cfg.MatchDurationTicks || len(s.activePlayersLocked()) <= 1 {
		s.finishCompletedLocked(elapsed)
	}
}

func (s *Session) rosterLocked() action.Roster {
	return action.RosterFunc(func(playerID string) bool {
		slot, ok := s.players[playerID]
		return ok && !slot.left
	})
}

func (s *Session) activePlayersLocked() []string {
	ids := make([]string, 0, len(s.players))
	for id, slot := range s.players {
		if !slot.left {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Session) emitVerdictLocked(playerID string, v fault.Verdict) {
	if s.deps.Sink != nil {
		s.deps.Sink.ActionVerdict(playerID, s.tick, v)
	}
}

func (s *Session) recordViolationLocked(rec violation.Record) {
	s.tracker.Record(rec)
}

// stateSnapshot fixes the field layout covered by the broadcast hash.
type stateSnapshot struct {
	Tick  uint64                        `json:"tick"`
	Stats map[string]record.PlayerStats `json:"stats"`
}

func (s *Session) broadcastHashLocked(elapsed uint64) {
	if s.deps.Sink == nil {
		return
	}
	hash, err := encoding.ContentHash(stateSnapshot{Tick: elapsed, Stats: s.stepper.Stats()})
	if err != nil {
		return
	}
	s.deps.Sink.StateHash(elapsed, hash)
}

// finishCompletedLocked seals the record and certifies the match. Anomaly
// analysis and replay verification run concurrently; both are pure reads of
// the sealed record.
func (s *Session) finishCompletedLocked(elapsed uint64) {
	stats := s.stepper.Stats()
	seconds := float64(elapsed) / float64(s.cfg.TickRate)
	for id, playerStats := range stats {
		playerStats.MatchDurationSeconds = seconds
		stats[id] = playerStats
	}
	if err := s.rec.Seal(stats); err != nil {
		s.finishFaultLocked(fmt.Errorf("seal record: %w", err))
		return
	}

	var (
		report       anomaly.Report
		replayResult replay.Result
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		report = anomaly.Analyze(s.cfg.Anomaly, s.rec, s.deps.Profiles)
		return nil
	})
	g.Go(func() error {
		result, err := replay.Verify(replay.Input{
			Record:        s.rec,
			Lineup:        s.lineup,
			SimConfig:     s.cfg.Sim,
			TickRate:      s.cfg.TickRate,
			DurationTicks: elapsed,
		})
		if err != nil {
			return err
		}
		replayResult = result
		return nil
	})

	outcome := verdict.OutcomeCertified
	if err := g.Wait(); err != nil {
		outcome = verdict.OutcomeUnverified
		replayResult = replay.Result{Reason: err.Error()}
	} else if !replayResult.Matches {
		outcome = verdict.OutcomeUnverified
	}

	s.finishLocked(verdict.Verdict{
		MatchID:          s.cfg.MatchID,
		Outcome:          outcome,
		CommittedHash:    s.rec.CommittedHash,
		ReplayMatches:    replayResult.Matches,
		ReplayReason:     replayResult.Reason,
		Fairness:         report,
		Violations:       s.tracker.Records(),
		SuspendedPlayers: s.suspendedPlayersLocked(),
	})
}

func (s *Session) finishFaultLocked(err error) {
	v := verdict.Verdict{
		MatchID:      s.cfg.MatchID,
		Outcome:      verdict.OutcomeSimulationFault,
		ReplayReason: err.Error(),
	}
	if s.tracker != nil {
		v.Violations = s.tracker.Records()
		v.SuspendedPlayers = s.suspendedPlayersLocked()
	}
	s.finishLocked(v)
}

// finishLocked records the terminal verdict. The MatchEnded emission is
// deferred until the lock is released so the sink may read the session.
func (s *Session) finishLocked(v verdict.Verdict) {
	s.status = StatusEnded
	s.final = &v
	s.pendingEmit = &v
}

// emitPendingUnlock releases the session lock and delivers a pending
// terminal verdict, if any. Callers must hold the lock.
func (s *Session) emitPendingUnlock() {
	emit := s.pendingEmit
	s.pendingEmit = nil
	sink := s.deps.Sink
	s.mu.Unlock()
	if emit != nil && sink != nil {
		sink.MatchEnded(*emit)
	}
}

func (s *Session) suspendedPlayersLocked() []string {
	var out []string
	for _, id := range s.tracker.Players() {
		if s.tracker.Suspended(id) {
			out = append(out, id)
		}
	}
	return out
}

// Record returns the sealed match record after a completed match.
func (s *Session) Record() (*record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || !s.rec.Sealed() {
		return nil, false
	}
	return s.rec, true
}

// Lineup returns the fixed lineup once play has begun.
func (s *Session) Lineup() []sim.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sim.Player, len(s.lineup))
	copy(out, s.lineup)
	return out
}
