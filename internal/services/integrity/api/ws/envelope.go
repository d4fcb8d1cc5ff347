package ws

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed action_envelope.schema.json
var envelopeSchemaJSON []byte

var envelopeSchema = mustCompileEnvelopeSchema()

func mustCompileEnvelopeSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("action_envelope.schema.json", bytes.NewReader(envelopeSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add envelope schema: %v", err))
	}
	schema, err := compiler.Compile("action_envelope.schema.json")
	if err != nil {
		panic(fmt.Sprintf("compile envelope schema: %v", err))
	}
	return schema
}

// clientEnvelope is the inbound message shape. The player identity comes
// from the connection, never from the payload.
type clientEnvelope struct {
	Ver       int                `json:"ver"`
	Type      string             `json:"type"`
	Tick      uint64             `json:"tick"`
	Timestamp uint64             `json:"timestamp"`
	Action    string             `json:"action"`
	TargetID  string             `json:"target_id,omitempty"`
	Params    map[string]float64 `json:"params,omitempty"`
}

// decodeEnvelope parses and schema-validates one inbound payload.
func decodeEnvelope(raw []byte) (clientEnvelope, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return clientEnvelope{}, fmt.Errorf("malformed json: %w", err)
	}
	if err := envelopeSchema.Validate(payload); err != nil {
		return clientEnvelope{}, fmt.Errorf("envelope rejected: %w", err)
	}

	var env clientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return clientEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

const protocolVersion = 1

// Outbound message types.
const (
	messageTypeVerdict    = "verdict"
	messageTypeStateHash  = "state_hash"
	messageTypePenalty    = "penalty"
	messageTypeSuspension = "suspension"
	messageTypeMatchEnded = "match_ended"
	messageTypeReject     = "reject"
)

type verdictMessage struct {
	Ver      int    `json:"ver"`
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	Tick     uint64 `json:"tick"`
	Accepted bool   `json:"accepted"`
	Kind     string `json:"kind,omitempty"`
	Severity string `json:"severity,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type stateHashMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Tick uint64 `json:"tick"`
	Hash string `json:"hash"`
}

type penaltyMessage struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	PlayerID   string `json:"player_id"`
	Violations int    `json:"violations"`
}

type suspensionMessage struct {
	Ver      int    `json:"ver"`
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

type matchEndedMessage struct {
	Ver            int    `json:"ver"`
	Type           string `json:"type"`
	MatchID        string `json:"match_id"`
	Outcome        string `json:"outcome"`
	CommittedHash  string `json:"committed_hash,omitempty"`
	FairnessScore  int    `json:"fairness_score"`
	FairnessRating string `json:"fairness_rating,omitempty"`
	RewardEligible bool   `json:"reward_eligible"`
	Violations     int    `json:"violations"`
}

type rejectMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
