// Package action defines player-submitted action events and their
// per-type schema contracts.
//
// The action type set is closed: unknown types are always rejected, and each
// type has a fixed parameter contract checked by Validate before any stateful
// validation runs.
package action

// Type identifies one of the supported match actions.
type Type string

const (
	// TypeMove repositions the acting player on the pitch.
	TypeMove Type = "MOVE"
	// TypePass transfers ball possession toward a target player.
	TypePass Type = "PASS"
	// TypeShoot attempts a shot on goal.
	TypeShoot Type = "SHOOT"
	// TypeTackle attempts to take the ball from a target player.
	TypeTackle Type = "TACKLE"
	// TypeSprint temporarily raises movement speed at a stamina cost.
	TypeSprint Type = "SPRINT"
	// TypeSkill triggers a special move.
	TypeSkill Type = "SKILL"
)

// IsValid reports whether the action type is part of the closed set.
func (t Type) IsValid() bool {
	switch t {
	case TypeMove, TypePass, TypeShoot, TypeTackle, TypeSprint, TypeSkill:
		return true
	default:
		return false
	}
}

// Event is one player-submitted action. Immutable once created; consumed
// exactly once by the validation pipeline.
type Event struct {
	PlayerID  string             `json:"player_id"`
	Tick      uint64             `json:"tick"`
	Timestamp uint64             `json:"timestamp"`
	Type      Type               `json:"type"`
	TargetID  string             `json:"target_id,omitempty"`
	Params    map[string]float64 `json:"params,omitempty"`
}

// Param returns the named numeric parameter and whether it was present.
func (e Event) Param(name string) (float64, bool) {
	if e.Params == nil {
		return 0, false
	}
	value, ok := e.Params[name]
	return value, ok
}
