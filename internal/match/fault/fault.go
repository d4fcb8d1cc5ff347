// Package fault defines the integrity error taxonomy and per-action verdicts.
//
// Recoverable kinds never cross the session boundary as Go errors; they are
// recorded as violations and the match continues. SimulationFault is fatal to
// the match and HashMismatch is fatal to its trust.
package fault

// Kind is a machine-readable integrity failure code.
type Kind string

const (
	// KindSchemaViolation indicates an action failed its per-type contract.
	KindSchemaViolation Kind = "SCHEMA_VIOLATION"
	// KindOutOfOrder indicates a tick at or below the last accepted tick.
	KindOutOfOrder Kind = "OUT_OF_ORDER"
	// KindTickSkew indicates an action too far from the server tick.
	KindTickSkew Kind = "TICK_SKEW"
	// KindRateLimit indicates too many actions inside the rolling window.
	KindRateLimit Kind = "RATE_LIMIT"
	// KindInfeasible indicates a physically implausible action.
	KindInfeasible Kind = "INFEASIBLE"
	// KindSimulationFault indicates the simulation stepper itself failed.
	KindSimulationFault Kind = "SIMULATION_FAULT"
	// KindHashMismatch indicates replay disagreed with the committed hash.
	KindHashMismatch Kind = "HASH_MISMATCH"
)

// IsValid reports whether the kind is part of the closed taxonomy.
func (k Kind) IsValid() bool {
	switch k {
	case KindSchemaViolation, KindOutOfOrder, KindTickSkew, KindRateLimit,
		KindInfeasible, KindSimulationFault, KindHashMismatch:
		return true
	default:
		return false
	}
}

// Severity ranks how strongly a violation counts toward escalation.
type Severity int

const (
	// SeverityWarning marks advisory violations that never escalate on their own.
	SeverityWarning Severity = iota + 1
	// SeverityError marks violations that count toward penalties and suspension.
	SeverityError
	// SeverityCritical marks violations that indicate deliberate tampering.
	SeverityCritical
)

// String returns the canonical label for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNSPECIFIED"
	}
}

// ParseSeverity maps a stored severity label back to its value.
func ParseSeverity(label string) Severity {
	switch label {
	case "WARNING":
		return SeverityWarning
	case "ERROR":
		return SeverityError
	case "CRITICAL":
		return SeverityCritical
	default:
		return 0
	}
}

// Verdict is the outcome of validating one action event. Never mutated.
type Verdict struct {
	Accepted bool
	Kind     Kind
	Severity Severity
	Detail   string
}

// Accept returns an accepting verdict.
func Accept() Verdict {
	return Verdict{Accepted: true}
}

// Reject returns a rejecting verdict with the given kind and severity.
func Reject(kind Kind, severity Severity, detail string) Verdict {
	return Verdict{Kind: kind, Severity: severity, Detail: detail}
}
