package action

import (
	"fmt"
	"math"

	"github.com/strikeline/arena/internal/match/fault"
)

// Bounds carries the field geometry and parameter limits used by the
// schema contracts. Supplied by session configuration, never hard-coded.
type Bounds struct {
	FieldWidth     float64
	FieldHeight    float64
	MaxShotPower   float64
	MaxSprintTicks float64
	MaxSkillLevel  float64
}

// DefaultBounds returns the standard pitch geometry and parameter limits.
func DefaultBounds() Bounds {
	return Bounds{
		FieldWidth:     105,
		FieldHeight:    68,
		MaxShotPower:   100,
		MaxSprintTicks: 180,
		MaxSkillLevel:  10,
	}
}

// Roster reports whether a player participates in the current match.
type Roster interface {
	Contains(playerID string) bool
}

// RosterFunc adapts a function to the Roster interface.
type RosterFunc func(playerID string) bool

// Contains implements Roster for RosterFunc.
func (fn RosterFunc) Contains(playerID string) bool { return fn(playerID) }

// paramRange is one entry of a per-type parameter contract.
type paramRange struct {
	name string
	min  float64
	max  float64
}

// Validate checks an event against its per-type schema contract.
//
// It is a pure function: no state is read or written beyond the arguments.
// Any missing or out-of-range field rejects with SchemaViolation; unknown
// action types are always rejected.
func Validate(bounds Bounds, roster Roster, evt Event) fault.Verdict {
	if evt.PlayerID == "" {
		return schemaReject("player id is required")
	}
	if !evt.Type.IsValid() {
		return schemaReject(fmt.Sprintf("unknown action type %q", evt.Type))
	}

	switch evt.Type {
	case TypeMove:
		return checkParams(evt, []paramRange{
			{name: "x", min: 0, max: bounds.FieldWidth},
			{name: "y", min: 0, max: bounds.FieldHeight},
		})
	case TypePass, TypeTackle:
		if evt.TargetID == "" {
			return schemaReject(fmt.Sprintf("%s requires a target id", evt.Type))
		}
		if roster == nil || !roster.Contains(evt.TargetID) {
			return schemaReject(fmt.Sprintf("target %q is not in this match", evt.TargetID))
		}
		return fault.Accept()
	case TypeShoot:
		return checkParams(evt, []paramRange{
			{name: "power", min: 0, max: bounds.MaxShotPower},
			{name: "angle", min: 0, max: 360},
		})
	case TypeSprint:
		return checkParams(evt, []paramRange{
			{name: "duration", min: 0, max: bounds.MaxSprintTicks},
		})
	case TypeSkill:
		return checkParams(evt, []paramRange{
			{name: "skill", min: 0, max: bounds.MaxSkillLevel},
		})
	}

	return schemaReject(fmt.Sprintf("unhandled action type %q", evt.Type))
}

func checkParams(evt Event, contract []paramRange) fault.Verdict {
	for _, entry := range contract {
		value, ok := evt.Param(entry.name)
		if !ok {
			return schemaReject(fmt.Sprintf("%s requires parameter %q", evt.Type, entry.name))
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return schemaReject(fmt.Sprintf("parameter %q is not a finite number", entry.name))
		}
		if value < entry.min || value > entry.max {
			return schemaReject(fmt.Sprintf("parameter %q = %v outside [%v, %v]", entry.name, value, entry.min, entry.max))
		}
	}
	return fault.Accept()
}

func schemaReject(detail string) fault.Verdict {
	return fault.Reject(fault.KindSchemaViolation, fault.SeverityError, detail)
}
