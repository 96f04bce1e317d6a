package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-live-service/internal/domain"
)

// SessionStore is a Redis-backed implementation of app.SessionStore, suitable
// when several service instances share one game. Layout:
//
//	game:session:{id}               session JSON
//	game:pin:{pin}                  active session id (SETNX claims, DEL on finish)
//	game:session:{id}:participants  hash: participant id -> JSON
//	game:session:{id}:responses     hash: "{questionID}|{participantID}" -> JSON
//
// The responses hash field doubles as the uniqueness constraint: a WATCH over
// the participants and responses keys makes the check-and-insert atomic.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

const applyScoreRetries = 5

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string      { return "game:session:" + sessionID }
func pinKey(pin string) string                { return "game:pin:" + pin }
func participantsKey(sessionID string) string { return sessionKey(sessionID) + ":participants" }
func responsesKey(sessionID string) string    { return sessionKey(sessionID) + ":responses" }

func responseField(questionID, participantID string) string {
	return questionID + "|" + participantID
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.GameSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	claimed, err := s.client.SetNX(ctx, pinKey(session.PIN), session.ID, s.ttl).Result()
	if err != nil {
		return storeErr(err)
	}
	if !claimed {
		return domain.ErrPinConflict
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), raw, s.ttl).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.GameSession, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, storeErr(err)
	}
	var session domain.GameSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.GameSession{}, err
	}
	return session, nil
}

func (s *SessionStore) GetSessionByPIN(ctx context.Context, pin string) (domain.GameSession, error) {
	id, err := s.client.Get(ctx, pinKey(pin)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, storeErr(err)
	}
	return s.GetSession(ctx, id)
}

func (s *SessionStore) UpdateSession(ctx context.Context, session domain.GameSession, expect domain.GameStatus) error {
	key := sessionKey(session.ID)
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		var stored domain.GameSession
		if err := json.Unmarshal(current, &stored); err != nil {
			return err
		}
		if stored.Status != expect {
			return domain.ErrInvalidTransition
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			if session.Status == domain.StatusFinished {
				pipe.Del(ctx, pinKey(session.PIN))
			}
			return nil
		})
		return err
	}

	for i := 0; i < applyScoreRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) && !errors.Is(err, domain.ErrInvalidTransition) {
			return storeErr(err)
		}
		return err
	}
	return storeErr(redis.TxFailedErr)
}

func (s *SessionStore) AddParticipant(ctx context.Context, participant domain.Participant) error {
	exists, err := s.client.Exists(ctx, sessionKey(participant.SessionID)).Result()
	if err != nil {
		return storeErr(err)
	}
	if exists == 0 {
		return domain.ErrSessionNotFound
	}
	raw, err := json.Marshal(participant)
	if err != nil {
		return err
	}
	key := participantsKey(participant.SessionID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, participant.ID, raw)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *SessionStore) GetParticipant(ctx context.Context, sessionID, participantID string) (domain.Participant, error) {
	raw, err := s.client.HGet(ctx, participantsKey(sessionID), participantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, storeErr(err)
	}
	var participant domain.Participant
	if err := json.Unmarshal(raw, &participant); err != nil {
		return domain.Participant{}, err
	}
	return participant, nil
}

func (s *SessionStore) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	entries, err := s.client.HGetAll(ctx, participantsKey(sessionID)).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	roster := make([]domain.Participant, 0, len(entries))
	for _, raw := range entries {
		var participant domain.Participant
		if err := json.Unmarshal([]byte(raw), &participant); err != nil {
			return nil, err
		}
		roster = append(roster, participant)
	}
	sort.Slice(roster, func(i, j int) bool {
		if !roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].JoinedAt.Before(roster[j].JoinedAt)
		}
		return roster[i].ID < roster[j].ID
	})
	return roster, nil
}

func (s *SessionStore) ApplyScore(ctx context.Context, response domain.Response, newStreak int) (domain.Participant, error) {
	pKey := participantsKey(response.SessionID)
	rKey := responsesKey(response.SessionID)
	field := responseField(response.QuestionID, response.ParticipantID)

	rawResponse, err := json.Marshal(response)
	if err != nil {
		return domain.Participant{}, err
	}

	var updated domain.Participant
	txn := func(tx *redis.Tx) error {
		answered, err := tx.HExists(ctx, rKey, field).Result()
		if err != nil {
			return err
		}
		if answered {
			return domain.ErrAlreadyAnswered
		}

		raw, err := tx.HGet(ctx, pKey, response.ParticipantID).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return err
		}
		var participant domain.Participant
		if err := json.Unmarshal(raw, &participant); err != nil {
			return err
		}
		participant.TotalScore += response.PointsAwarded
		participant.CurrentStreak = newStreak
		rawParticipant, err := json.Marshal(participant)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rKey, field, rawResponse)
			pipe.HSet(ctx, pKey, response.ParticipantID, rawParticipant)
			pipe.Expire(ctx, rKey, s.ttl)
			pipe.Expire(ctx, pKey, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = participant
		return nil
	}

	// WATCH both keys: a racing duplicate aborts the transaction and the
	// retry observes the winner's response via HEXISTS.
	for i := 0; i < applyScoreRetries; i++ {
		err := s.client.Watch(ctx, txn, pKey, rKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrAlreadyAnswered) && !errors.Is(err, domain.ErrParticipantNotFound) {
			return domain.Participant{}, storeErr(err)
		}
		if err != nil {
			return domain.Participant{}, err
		}
		return updated, nil
	}
	return domain.Participant{}, storeErr(redis.TxFailedErr)
}

func (s *SessionStore) ListResponses(ctx context.Context, sessionID, questionID string) ([]domain.Response, error) {
	entries, err := s.client.HGetAll(ctx, responsesKey(sessionID)).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	responses := make([]domain.Response, 0)
	prefix := questionID + "|"
	for field, raw := range entries {
		if !strings.HasPrefix(field, prefix) {
			continue
		}
		var response domain.Response
		if err := json.Unmarshal([]byte(raw), &response); err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}
	sort.Slice(responses, func(i, j int) bool {
		return responses[i].AnsweredAt.Before(responses[j].AnsweredAt)
	})
	return responses, nil
}
