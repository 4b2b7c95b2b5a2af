package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnAnswered is emitted after a turn has been answered.
	EventTypeTurnAnswered = "mali.turn.answered"
)

// TurnEvent is a transport-neutral event payload for one answered turn.
type TurnEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	ID            string        `json:"id"`
	Identity      string        `json:"identity"`
	Intent        string        `json:"intent"`
	Source        string        `json:"source"`
	Utterance     string        `json:"utterance"`
	Reply         string        `json:"reply"`
	Attempts      []AttemptMeta `json:"attempts,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// AttemptMeta summarizes one generation attempt.
type AttemptMeta struct {
	Source    string `json:"source"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// NewTurnEvent fills in the envelope fields.
func NewTurnEvent(identity, intent, source, utterance, reply string, at time.Time) *TurnEvent {
	return &TurnEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnAnswered,
		ID:            uuid.NewString(),
		Identity:      identity,
		Intent:        intent,
		Source:        source,
		Utterance:     utterance,
		Reply:         reply,
		OccurredAt:    at.UTC(),
	}
}
