// Package sim provides the deterministic match simulation stepper.
//
// The session invokes the stepper exactly once per tick with that tick's
// validated actions, already ordered by player id. Given the same seed and
// the same ordered input, a stepper always produces the same final state;
// replay verification depends on this property.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/strikeline/arena/internal/match/action"
	"github.com/strikeline/arena/internal/match/record"
)

// Stepper advances the match simulation one tick at a time.
type Stepper interface {
	// Step applies the tick's validated actions and advances the world.
	Step(tick uint64, actions []action.Event) error
	// Position returns a player's current pitch position.
	Position(playerID string) (x, y float64, ok bool)
	// BallPosition returns the ball's current pitch position.
	BallPosition() (x, y float64)
	// Stamina returns a player's remaining stamina.
	Stamina(playerID string) (float64, bool)
	// Stats snapshots current aggregate statistics per player.
	Stats() map[string]record.PlayerStats
}

// Config holds the pitch model parameters.
type Config struct {
	FieldWidth     float64
	FieldHeight    float64
	ShotBaseChance float64
	ShotPowerBonus float64
	TackleChance   float64
	MaxStamina     float64
	SprintCost     float64
	SkillCost      float64
}

// DefaultConfig returns the standard pitch model.
func DefaultConfig() Config {
	return Config{
		FieldWidth:     105,
		FieldHeight:    68,
		ShotBaseChance: 0.1,
		ShotPowerBonus: 0.002,
		TackleChance:   0.5,
		MaxStamina:     100,
		SprintCost:     0.1,
		SkillCost:      5,
	}
}

// Player identifies one match participant and their team.
type Player struct {
	ID     string
	TeamID string
}

type playerState struct {
	id         string
	teamID     string
	x, y       float64
	stamina    float64
	goals      int
	assists    int
	possession uint64
}

// Pitch is the deterministic reference stepper: a coarse pitch model with
// positions, possession, stamina, and seeded shot resolution.
type Pitch struct {
	cfg        Config
	rng        *rand.Rand
	players    map[string]*playerState
	order      []string
	teams      []string
	teamScore  map[string]int
	ballX      float64
	ballY      float64
	owner      string
	lastPasser string
}

// NewPitch creates a pitch seeded for deterministic stepping. The lineup
// order does not matter; players are arranged by sorted id.
func NewPitch(seed int64, cfg Config, lineup []Player) *Pitch {
	p := &Pitch{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		players:   make(map[string]*playerState, len(lineup)),
		teamScore: make(map[string]int),
		ballX:     cfg.FieldWidth / 2,
		ballY:     cfg.FieldHeight / 2,
	}

	teams := make(map[string]bool)
	for _, entry := range lineup {
		p.players[entry.ID] = &playerState{
			id:      entry.ID,
			teamID:  entry.TeamID,
			stamina: cfg.MaxStamina,
		}
		p.order = append(p.order, entry.ID)
		if !teams[entry.TeamID] {
			teams[entry.TeamID] = true
			p.teams = append(p.teams, entry.TeamID)
			p.teamScore[entry.TeamID] = 0
		}
	}
	sort.Strings(p.order)
	sort.Strings(p.teams)

	// Deterministic kickoff spread along the halfway line.
	for i, id := range p.order {
		state := p.players[id]
		state.x = cfg.FieldWidth / 2
		state.y = cfg.FieldHeight * float64(i+1) / float64(len(p.order)+1)
	}
	if len(p.order) > 0 {
		p.owner = p.order[0]
	}

	return p
}

// Step applies the tick's actions in their given order and advances
// possession accounting.
func (p *Pitch) Step(tick uint64, actions []action.Event) error {
	for _, evt := range actions {
		state, ok := p.players[evt.PlayerID]
		if !ok {
			return fmt.Errorf("step tick %d: unknown player %q", tick, evt.PlayerID)
		}
		switch evt.Type {
		case action.TypeMove:
			x, _ := evt.Param("x")
			y, _ := evt.Param("y")
			state.x = clamp(x, 0, p.cfg.FieldWidth)
			state.y = clamp(y, 0, p.cfg.FieldHeight)
		case action.TypePass:
			p.applyPass(state, evt.TargetID)
		case action.TypeShoot:
			p.applyShot(state, evt)
		case action.TypeTackle:
			p.applyTackle(state, evt.TargetID)
		case action.TypeSprint:
			duration, _ := evt.Param("duration")
			state.stamina = clamp(state.stamina-p.cfg.SprintCost*duration, 0, p.cfg.MaxStamina)
		case action.TypeSkill:
			// A flourish consumes stamina and one roll; outcome is cosmetic.
			_ = p.rng.Float64()
			state.stamina = clamp(state.stamina-p.cfg.SkillCost, 0, p.cfg.MaxStamina)
		}
	}

	if owner, ok := p.players[p.owner]; ok {
		owner.possession++
		p.ballX = owner.x
		p.ballY = owner.y
	}
	return nil
}

func (p *Pitch) applyPass(state *playerState, targetID string) {
	if p.owner != state.id {
		return
	}
	target, ok := p.players[targetID]
	if !ok {
		return
	}
	p.owner = target.id
	p.ballX = target.x
	p.ballY = target.y
	if target.teamID == state.teamID {
		p.lastPasser = state.id
	} else {
		p.lastPasser = ""
	}
}

func (p *Pitch) applyShot(state *playerState, evt action.Event) {
	if p.owner != state.id {
		return
	}
	power, _ := evt.Param("power")
	chance := p.cfg.ShotBaseChance + p.cfg.ShotPowerBonus*power
	roll := p.rng.Float64()
	if roll < chance {
		state.goals++
		p.teamScore[state.teamID]++
		if passer, ok := p.players[p.lastPasser]; ok && passer.id != state.id && passer.teamID == state.teamID {
			passer.assists++
		}
		p.restart(state.teamID)
		return
	}
	// Missed shot: the defending side restarts with the ball.
	p.turnover(state.teamID)
}

func (p *Pitch) applyTackle(state *playerState, targetID string) {
	if p.owner != targetID || targetID == state.id {
		return
	}
	if p.rng.Float64() < p.cfg.TackleChance {
		p.owner = state.id
		p.ballX = state.x
		p.ballY = state.y
		p.lastPasser = ""
	}
}

// restart gives the ball to the first sorted player of the conceding side.
func (p *Pitch) restart(scoringTeam string) {
	p.ballX = p.cfg.FieldWidth / 2
	p.ballY = p.cfg.FieldHeight / 2
	p.lastPasser = ""
	p.owner = p.firstPlayerNotOn(scoringTeam)
}

// turnover hands possession to the first sorted opponent.
func (p *Pitch) turnover(losingTeam string) {
	p.lastPasser = ""
	p.owner = p.firstPlayerNotOn(losingTeam)
}

func (p *Pitch) firstPlayerNotOn(teamID string) string {
	for _, id := range p.order {
		if p.players[id].teamID != teamID {
			return id
		}
	}
	// Single-team lineups keep possession where it was.
	return p.owner
}

// Position returns a player's current position.
func (p *Pitch) Position(playerID string) (float64, float64, bool) {
	state, ok := p.players[playerID]
	if !ok {
		return 0, 0, false
	}
	return state.x, state.y, true
}

// BallPosition returns the ball's current position.
func (p *Pitch) BallPosition() (float64, float64) {
	return p.ballX, p.ballY
}

// Stamina returns a player's remaining stamina.
func (p *Pitch) Stamina(playerID string) (float64, bool) {
	state, ok := p.players[playerID]
	if !ok {
		return 0, false
	}
	return state.stamina, true
}

// Stats snapshots per-player statistics with current team scores.
func (p *Pitch) Stats() map[string]record.PlayerStats {
	out := make(map[string]record.PlayerStats, len(p.players))
	for _, id := range p.order {
		state := p.players[id]
		out[id] = record.PlayerStats{
			PlayerID:        id,
			TeamID:          state.teamID,
			Goals:           state.goals,
			Assists:         state.assists,
			PossessionTicks: state.possession,
			FinalTeamScore:  p.teamScore[state.teamID],
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

var _ Stepper = (*Pitch)(nil)
