package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies this service on every envelope.
const Source = "clinic-intake"

// CanonicalEvent is a domain event whose type ends in a ".vN" version suffix.
type CanonicalEvent interface {
	EventType() string
}

// Envelope is the wire form published to the queue.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	Version       int             `json:"version"`
	Source        string          `json:"source"`
	Aggregate     string          `json:"aggregate"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// DedupKey is stable across retries of the same event for the same aggregate.
func (e Envelope) DedupKey() string {
	return e.EventType + "/" + e.Aggregate
}

type envelopeSettings struct {
	eventID uuid.UUID
	now     func() time.Time
}

// EnvelopeOption customizes envelope construction.
type EnvelopeOption func(*envelopeSettings)

// WithEventID pins the event id instead of generating one.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(s *envelopeSettings) { s.eventID = id }
}

// WithClock sets the source of OccurredAt.
func WithClock(now func() time.Time) EnvelopeOption {
	return func(s *envelopeSettings) {
		if now != nil {
			s.now = now
		}
	}
}

var (
	errMissingAggregate = errors.New("events: aggregate is required")
	errNilEvent         = errors.New("events: canonical event required")
	errBadEventType     = errors.New("events: event type must end in .v<version>")
)

// NewEnvelope wraps evt for publishing.
func NewEnvelope(aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	aggregate = strings.TrimSpace(aggregate)
	if aggregate == "" {
		return Envelope{}, errMissingAggregate
	}
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	version, err := typeVersion(eventType)
	if err != nil {
		return Envelope{}, err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}

	settings := envelopeSettings{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	if settings.eventID == uuid.Nil {
		settings.eventID = uuid.New()
	}

	return Envelope{
		EventID:       settings.eventID,
		EventType:     eventType,
		Version:       version,
		Source:        Source,
		Aggregate:     aggregate,
		OccurredAt:    settings.now().UTC(),
		CorrelationID: strings.TrimSpace(correlationID),
		Payload:       payload,
	}, nil
}

func typeVersion(eventType string) (int, error) {
	i := strings.LastIndex(eventType, ".v")
	if i <= 0 {
		return 0, fmt.Errorf("%w: %q", errBadEventType, eventType)
	}
	v, err := strconv.Atoi(eventType[i+2:])
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: %q", errBadEventType, eventType)
	}
	return v, nil
}
