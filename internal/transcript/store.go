// Package transcript mirrors chat history to Redis so transcripts outlive the
// in-memory session registry.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-intake/internal/intake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const keyPrefix = "intake_transcript:"

const defaultMaxMessages = 250

type entry struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store appends chat entries to a capped Redis list per conversation.
type Store struct {
	redis       *redis.Client
	tracer      trace.Tracer
	ttl         time.Duration
	maxMessages int64
	now         func() time.Time
}

// NewStore returns nil when redisClient is nil; a nil Store is a no-op.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		return nil
	}
	return &Store{
		redis:       redisClient,
		tracer:      otel.Tracer("intake.internal.transcript"),
		ttl:         ttl,
		maxMessages: defaultMaxMessages,
		now:         time.Now,
	}
}

// WithMaxMessages caps the list length; older entries are trimmed.
func (s *Store) WithMaxMessages(n int64) *Store {
	if s != nil && n > 0 {
		s.maxMessages = n
	}
	return s
}

func (s *Store) Append(ctx context.Context, conversationID, sender, message string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if conversationID == "" {
		return errors.New("transcript: conversationID required")
	}

	data, err := json.Marshal(entry{Sender: sender, Message: message, Timestamp: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("transcript: marshal entry: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "transcript.append")
	defer span.End()

	key := keyPrefix + conversationID
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, key, -s.maxMessages, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: append: %w", err)
	}
	return nil
}

// History returns the mirrored entries in order. Unknown conversations yield
// an empty slice.
func (s *Store) History(ctx context.Context, conversationID string) ([]intake.ChatEntry, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if conversationID == "" {
		return nil, errors.New("transcript: conversationID required")
	}

	ctx, span := s.tracer.Start(ctx, "transcript.history")
	defer span.End()

	raw, err := s.redis.LRange(ctx, keyPrefix+conversationID, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []intake.ChatEntry{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("transcript: history: %w", err)
	}

	out := make([]intake.ChatEntry, 0, len(raw))
	for _, item := range raw {
		var e entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, intake.ChatEntry{Sender: e.Sender, Message: e.Message})
	}
	return out, nil
}

var (
	_ intake.TranscriptSink   = (*Store)(nil)
	_ intake.TranscriptReader = (*Store)(nil)
)
