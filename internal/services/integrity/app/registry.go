package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/strikeline/arena/internal/match/profile"
	"github.com/strikeline/arena/internal/match/record"
	"github.com/strikeline/arena/internal/match/session"
	"github.com/strikeline/arena/internal/match/verdict"
	"github.com/strikeline/arena/internal/platform/id"
	"github.com/strikeline/arena/internal/services/integrity/api/ws"
	"github.com/strikeline/arena/internal/services/integrity/storage"
	"github.com/strikeline/arena/internal/telemetry"
)

const tracerName = "integrity"

// Registry owns the live match sessions of one integrity service instance.
type Registry struct {
	store   storage.Store
	emitter *telemetry.Emitter
	logger  *log.Logger

	mu      sync.Mutex
	matches map[string]*liveMatch
}

type liveMatch struct {
	session     *session.Session
	broadcaster *ws.Broadcaster
	cancel      context.CancelFunc
}

// NewRegistry creates an empty registry. The store may be nil, which
// disables persistence and history profiles.
func NewRegistry(store storage.Store, emitter *telemetry.Emitter, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		store:   store,
		emitter: emitter,
		logger:  logger,
		matches: make(map[string]*liveMatch),
	}
}

// Create starts a new match session and its tick loop. An empty matchID
// generates one.
func (r *Registry) Create(ctx context.Context, matchID string) (string, error) {
	if matchID == "" {
		generated, err := id.NewID()
		if err != nil {
			return "", fmt.Errorf("generate match id: %w", err)
		}
		matchID = generated
	}

	r.mu.Lock()
	if _, exists := r.matches[matchID]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("match %s already exists", matchID)
	}
	r.mu.Unlock()

	sink := &persistingSink{registry: r, matchID: matchID, Broadcaster: ws.NewBroadcaster()}
	deps := session.Deps{Sink: sink}
	if r.store != nil {
		deps.Profiles = storeProfiles{store: r.store}
	}
	sess := session.New(session.DefaultConfig(matchID), deps)
	sink.session = sess

	runCtx, cancel := context.WithCancel(ctx)
	live := &liveMatch{session: sess, broadcaster: sink.Broadcaster, cancel: cancel}

	r.mu.Lock()
	if _, exists := r.matches[matchID]; exists {
		r.mu.Unlock()
		cancel()
		return "", fmt.Errorf("match %s already exists", matchID)
	}
	r.matches[matchID] = live
	r.mu.Unlock()

	go func() {
		if err := sess.Run(runCtx); err != nil && runCtx.Err() == nil {
			r.logger.Printf("match %s loop: %v", matchID, err)
		}
	}()

	_ = r.emitter.Emit(ctx, storage.TelemetryEvent{
		Source:  tracerName,
		Kind:    telemetry.KindMatchStarted,
		MatchID: matchID,
	})
	r.logger.Printf("match %s created", matchID)
	return matchID, nil
}

// Match implements the gateway resolver.
func (r *Registry) Match(matchID string) (ws.Match, *ws.Broadcaster, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live, ok := r.matches[matchID]
	if !ok {
		return nil, nil, false
	}
	return live.session, live.broadcaster, true
}

// Cancel cancels a live match.
func (r *Registry) Cancel(matchID string) error {
	r.mu.Lock()
	live, ok := r.matches[matchID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("match %s not found", matchID)
	}
	live.session.Cancel()
	live.cancel()
	return nil
}

// Shutdown cancels every live match.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	matches := make([]*liveMatch, 0, len(r.matches))
	for _, live := range r.matches {
		matches = append(matches, live)
	}
	r.mu.Unlock()
	for _, live := range matches {
		live.session.Cancel()
		live.cancel()
	}
}

// remove drops an ended match from the registry.
func (r *Registry) remove(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, matchID)
}

// storeProfiles adapts the profile store to the anomaly detector's source.
type storeProfiles struct {
	store storage.ProfileStore
}

// Profile implements profile.Source.
func (s storeProfiles) Profile(playerID string) (profile.Profile, bool) {
	p, err := s.store.GetProfile(context.Background(), playerID)
	if err != nil {
		return profile.Profile{}, false
	}
	return p, true
}

// persistingSink forwards session output to the match broadcaster and, on
// match end, persists the outcome before fanning it out.
type persistingSink struct {
	*ws.Broadcaster

	registry *Registry
	matchID  string
	session  *session.Session
}

var _ session.Sink = (*persistingSink)(nil)

// PlayerSuspended records the suspension and notifies clients. The sink is
// called from the session's tick loop, so the store write happens off it.
func (s *persistingSink) PlayerSuspended(playerID string) {
	go func() {
		_ = s.registry.emitter.Emit(context.Background(), storage.TelemetryEvent{
			Source:   tracerName,
			Severity: string(telemetry.SeverityWarn),
			Kind:     telemetry.KindPlayerSuspended,
			MatchID:  s.matchID,
			Detail:   fmt.Sprintf("player %s suspended", playerID),
		})
	}()
	s.Broadcaster.PlayerSuspended(playerID)
}

// MatchEnded persists the verdict trail and then notifies clients.
func (s *persistingSink) MatchEnded(v verdict.Verdict) {
	s.registry.finalize(s.matchID, s.session, v)
	s.Broadcaster.MatchEnded(v)
	s.registry.remove(s.matchID)
}

// finalize writes the record, verdict, violations, and profile updates.
func (r *Registry) finalize(matchID string, sess *session.Session, v verdict.Verdict) {
	ctx, span := otel.Tracer(tracerName).Start(context.Background(), "match.finalize")
	defer span.End()
	span.SetAttributes(
		attribute.String("match.id", matchID),
		attribute.String("match.outcome", string(v.Outcome)),
		attribute.Int("match.violations", v.ViolationCount()),
	)

	if r.store != nil {
		if rec, ok := sess.Record(); ok {
			if err := r.store.SaveRecord(ctx, rec); err != nil {
				r.logger.Printf("match %s: save record: %v", matchID, err)
			}
		}
		if err := r.store.SaveVerdict(ctx, v); err != nil {
			r.logger.Printf("match %s: save verdict: %v", matchID, err)
		}
		if err := r.store.AppendViolations(ctx, v.Violations); err != nil {
			r.logger.Printf("match %s: save violations: %v", matchID, err)
		}
		if v.Outcome == verdict.OutcomeCertified {
			r.updateProfiles(ctx, sess)
		}
	}

	kind := telemetry.KindMatchEnded
	severity := telemetry.SeverityInfo
	switch v.Outcome {
	case verdict.OutcomeCancelled:
		kind = telemetry.KindMatchCancelled
	case verdict.OutcomeUnverified:
		kind = telemetry.KindReplayMismatch
		severity = telemetry.SeverityError
	case verdict.OutcomeSimulationFault:
		severity = telemetry.SeverityError
	}
	_ = r.emitter.Emit(ctx, storage.TelemetryEvent{
		Source:   tracerName,
		Severity: string(severity),
		Kind:     kind,
		MatchID:  matchID,
		Detail:   fmt.Sprintf("outcome %s, fairness %d, %d violations", v.Outcome, v.Fairness.Score, v.ViolationCount()),
	})
	r.logger.Printf("match %s ended: %s (fairness %d)", matchID, v.Outcome, v.Fairness.Score)
}

// updateProfiles folds a certified result into every participant's profile.
func (r *Registry) updateProfiles(ctx context.Context, sess *session.Session) {
	rec, ok := sess.Record()
	if !ok {
		return
	}

	for playerID, stats := range rec.FinalStats {
		existing, err := r.store.GetProfile(ctx, playerID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			r.logger.Printf("profile %s: load: %v", playerID, err)
			continue
		}
		if existing.PlayerID == "" {
			existing.PlayerID = playerID
		}

		outcome := matchOutcomeFor(rec.FinalStats, stats.TeamID)
		if err := r.store.PutProfile(ctx, existing.WithResult(stats.Goals, outcome)); err != nil {
			r.logger.Printf("profile %s: save: %v", playerID, err)
		}
	}
}

// matchOutcomeFor derives one team's result from the final scores.
func matchOutcomeFor(stats map[string]record.PlayerStats, teamID string) profile.Outcome {
	own, bestOther := 0, 0
	for _, playerStats := range stats {
		if playerStats.TeamID == teamID {
			own = playerStats.FinalTeamScore
			continue
		}
		if playerStats.FinalTeamScore > bestOther {
			bestOther = playerStats.FinalTeamScore
		}
	}
	switch {
	case own > bestOther:
		return profile.OutcomeWin
	case own < bestOther:
		return profile.OutcomeLoss
	default:
		return profile.OutcomeDraw
	}
}
