// Package tickwindow enforces temporal and physical plausibility of action
// events, per player, within one match.
//
// Checks run in a fixed short-circuit order: tick monotonicity, temporal
// bounds against the server tick, rolling rate limit, then action-specific
// feasibility. State advances only when an event passes every check, so a
// rejected event never consumes a rate-limit slot and never moves the last
// accepted tick.
package tickwindow

import (
	"fmt"
	"math"

	"github.com/strikeline/arena/internal/match/action"
	"github.com/strikeline/arena/internal/match/fault"
)

// Config bounds what the validator accepts. All values are externally
// supplied at session construction.
type Config struct {
	// MaxTickOffset is the largest tolerated distance between an event's
	// tick and the server tick (10 ticks is roughly 160ms at 60Hz).
	MaxTickOffset uint64
	// WindowTicks is the width of the rolling rate-limit window.
	WindowTicks uint64
	// MaxInputsPerWindow caps accepted actions inside one rolling window.
	MaxInputsPerWindow int
	// MaxSpeed is the maximum displacement per tick for MOVE feasibility.
	MaxSpeed float64
	// ProximityRadius bounds SHOOT distance to the ball and TACKLE distance
	// to the target.
	ProximityRadius float64
}

// DefaultConfig returns the standard validation bounds.
func DefaultConfig() Config {
	return Config{
		MaxTickOffset:      10,
		WindowTicks:        12,
		MaxInputsPerWindow: 5,
		MaxSpeed:           0.4,
		ProximityRadius:    5,
	}
}

// WorldView exposes the simulation stepper's exported state, read-only.
type WorldView interface {
	// Position returns a player's current pitch position.
	Position(playerID string) (x, y float64, ok bool)
	// BallPosition returns the ball's current pitch position.
	BallPosition() (x, y float64)
	// Stamina returns a player's remaining stamina.
	Stamina(playerID string) (float64, bool)
}

// playerWindow holds per-player acceptance state.
type playerWindow struct {
	lastAcceptedTick uint64
	accepted         bool
	// recent holds ticks of accepted actions inside the rolling window,
	// oldest first.
	recent []uint64
}

// Validator is the stateful per-match tick window validator. It is owned by
// a single match session and is not safe for concurrent use.
type Validator struct {
	cfg     Config
	world   WorldView
	players map[string]*playerWindow
}

// New creates a validator over the given world view.
func New(cfg Config, world WorldView) *Validator {
	return &Validator{
		cfg:     cfg,
		world:   world,
		players: make(map[string]*playerWindow),
	}
}

// Validate checks one event against the current server tick. On acceptance
// the player's window state advances; on rejection nothing changes.
func (v *Validator) Validate(serverTick uint64, evt action.Event) fault.Verdict {
	window := v.players[evt.PlayerID]
	if window == nil {
		window = &playerWindow{}
		v.players[evt.PlayerID] = window
	}

	// 1. Tick monotonicity.
	if window.accepted && evt.Tick <= window.lastAcceptedTick {
		return fault.Reject(fault.KindOutOfOrder, fault.SeverityCritical,
			fmt.Sprintf("tick %d not after last accepted tick %d", evt.Tick, window.lastAcceptedTick))
	}

	// 2. Temporal bounds. Running ahead of the server suggests fabrication
	// and is critical; stale ticks are latency and only warn.
	if evt.Tick > serverTick && evt.Tick-serverTick > v.cfg.MaxTickOffset {
		return fault.Reject(fault.KindTickSkew, fault.SeverityCritical,
			fmt.Sprintf("tick %d ahead of server tick %d beyond offset %d", evt.Tick, serverTick, v.cfg.MaxTickOffset))
	}
	if serverTick > evt.Tick && serverTick-evt.Tick > v.cfg.MaxTickOffset {
		return fault.Reject(fault.KindTickSkew, fault.SeverityWarning,
			fmt.Sprintf("tick %d stale against server tick %d beyond offset %d", evt.Tick, serverTick, v.cfg.MaxTickOffset))
	}

	// 3. Rate limit over the rolling window.
	window.prune(evt.Tick, v.cfg.WindowTicks)
	if len(window.recent) >= v.cfg.MaxInputsPerWindow {
		return fault.Reject(fault.KindRateLimit, fault.SeverityCritical,
			fmt.Sprintf("more than %d accepted actions within %d ticks", v.cfg.MaxInputsPerWindow, v.cfg.WindowTicks))
	}

	// 4. Physical feasibility.
	if verdict := v.feasible(window, evt); !verdict.Accepted {
		return verdict
	}

	window.lastAcceptedTick = evt.Tick
	window.accepted = true
	window.recent = append(window.recent, evt.Tick)
	return fault.Accept()
}

// LastAcceptedTick returns the player's last accepted tick and whether any
// action has been accepted yet.
func (v *Validator) LastAcceptedTick(playerID string) (uint64, bool) {
	window := v.players[playerID]
	if window == nil || !window.accepted {
		return 0, false
	}
	return window.lastAcceptedTick, true
}

// prune drops window entries older than windowTicks relative to tick.
func (w *playerWindow) prune(tick, windowTicks uint64) {
	cut := 0
	for cut < len(w.recent) {
		age := tick - w.recent[cut]
		if w.recent[cut] > tick || age < windowTicks {
			break
		}
		cut++
	}
	if cut > 0 {
		w.recent = append(w.recent[:0], w.recent[cut:]...)
	}
}

func (v *Validator) feasible(window *playerWindow, evt action.Event) fault.Verdict {
	if v.world == nil {
		return fault.Accept()
	}

	switch evt.Type {
	case action.TypeMove:
		x, ok1 := evt.Param("x")
		y, ok2 := evt.Param("y")
		if !ok1 || !ok2 {
			// Schema validation runs first; missing params here mean the
			// caller skipped it and the event cannot be assessed.
			return fault.Reject(fault.KindInfeasible, fault.SeverityError, "move without coordinates")
		}
		curX, curY, known := v.world.Position(evt.PlayerID)
		if !known {
			return fault.Accept()
		}
		deltaTicks := uint64(1)
		if window.accepted && evt.Tick > window.lastAcceptedTick {
			deltaTicks = evt.Tick - window.lastAcceptedTick
		}
		limit := v.cfg.MaxSpeed * float64(deltaTicks)
		if dist := math.Hypot(x-curX, y-curY); dist > limit {
			return fault.Reject(fault.KindInfeasible, fault.SeverityError,
				fmt.Sprintf("displacement %.2f exceeds %.2f over %d ticks", dist, limit, deltaTicks))
		}
	case action.TypeShoot:
		curX, curY, known := v.world.Position(evt.PlayerID)
		if !known {
			return fault.Accept()
		}
		ballX, ballY := v.world.BallPosition()
		if dist := math.Hypot(ballX-curX, ballY-curY); dist > v.cfg.ProximityRadius {
			return fault.Reject(fault.KindInfeasible, fault.SeverityError,
				fmt.Sprintf("shot from %.2f away from the ball, radius %.2f", dist, v.cfg.ProximityRadius))
		}
	case action.TypeTackle:
		curX, curY, known := v.world.Position(evt.PlayerID)
		targetX, targetY, targetKnown := v.world.Position(evt.TargetID)
		if !known || !targetKnown {
			return fault.Accept()
		}
		if dist := math.Hypot(targetX-curX, targetY-curY); dist > v.cfg.ProximityRadius {
			return fault.Reject(fault.KindInfeasible, fault.SeverityError,
				fmt.Sprintf("tackle from %.2f away from target, radius %.2f", dist, v.cfg.ProximityRadius))
		}
	case action.TypeSprint:
		stamina, known := v.world.Stamina(evt.PlayerID)
		if !known {
			return fault.Accept()
		}
		if stamina <= 0 {
			return fault.Reject(fault.KindInfeasible, fault.SeverityError,
				"sprint with exhausted stamina")
		}
	}

	return fault.Accept()
}
