// internal/session/transcript.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcp-voice-agent/internal/common/database"
	"mcp-voice-agent/internal/common/errors"
	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/models"
)

const stateTTL = 24 * time.Hour

// Store persists transcripts to elasticsearch and session state to redis.
// Both backends are optional; a nil client disables that side.
type Store struct {
	es     *database.ElasticsearchClient
	redis  *database.RedisClient
	index  string
	logger logger.Logger
}

func NewStore(es *database.ElasticsearchClient, redis *database.RedisClient, index string, log logger.Logger) *Store {
	return &Store{
		es:     es,
		redis:  redis,
		index:  index,
		logger: log.With(map[string]interface{}{"component": "store"}),
	}
}

// RecordTurn indexes one transcript entry. Indexing failures are reported
// but must not interrupt the conversation.
func (s *Store) RecordTurn(ctx context.Context, entry models.TranscriptEntry) error {
	if s == nil || s.es == nil {
		return nil
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return errors.NewTranscriptIndexFailedError(err)
	}

	if err := s.es.Index(ctx, s.index, uuid.NewString(), body); err != nil {
		return errors.NewTranscriptIndexFailedError(err)
	}
	return nil
}

// SaveState caches the session record in redis.
func (s *Store) SaveState(ctx context.Context, state models.SessionState) error {
	if s == nil || s.redis == nil {
		return nil
	}

	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.NewCacheFailedError(err)
	}

	if err := s.redis.Set(ctx, stateKey(state.SessionID), raw, stateTTL); err != nil {
		return errors.NewCacheFailedError(err)
	}
	return nil
}

// LoadState retrieves a cached session record.
func (s *Store) LoadState(ctx context.Context, sessionID string) (*models.SessionState, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}

	raw, err := s.redis.Get(ctx, stateKey(sessionID))
	if err != nil {
		return nil, errors.NewCacheFailedError(err)
	}

	var state models.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, errors.NewCacheFailedError(err)
	}
	return &state, nil
}

// ClearState removes the cached session record.
func (s *Store) ClearState(ctx context.Context, sessionID string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, stateKey(sessionID))
}

func stateKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
