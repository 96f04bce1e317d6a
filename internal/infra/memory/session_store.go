package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-live-service/internal/domain"
)

// SessionStore is the in-memory reference implementation of app.SessionStore.
// One mutex guards all maps, which makes the cross-entity invariants (PIN
// uniqueness among active sessions, response-then-score atomicity) trivial.
type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[string]domain.GameSession
	pins         map[string]string // PIN -> active session id
	participants map[string]map[string]domain.Participant
	responses    map[string]map[string]domain.Response // session id -> (question|participant) -> response
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:     make(map[string]domain.GameSession),
		pins:         make(map[string]string),
		participants: make(map[string]map[string]domain.Participant),
		responses:    make(map[string]map[string]domain.Response),
	}
}

func responseKey(questionID, participantID string) string {
	return questionID + "|" + participantID
}

func (s *SessionStore) CreateSession(_ context.Context, session domain.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.pins[session.PIN]; taken {
		return domain.ErrPinConflict
	}
	s.sessions[session.ID] = session
	s.pins[session.PIN] = session.ID
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, sessionID string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) GetSessionByPIN(_ context.Context, pin string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pins[pin]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *SessionStore) UpdateSession(_ context.Context, session domain.GameSession, expect domain.GameStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if stored.Status != expect {
		return domain.ErrInvalidTransition
	}
	s.sessions[session.ID] = session
	if session.Status == domain.StatusFinished && s.pins[session.PIN] == session.ID {
		// finished sessions release their PIN for reuse
		delete(s.pins, session.PIN)
	}
	return nil
}

func (s *SessionStore) AddParticipant(_ context.Context, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[participant.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	roster, ok := s.participants[participant.SessionID]
	if !ok {
		roster = make(map[string]domain.Participant)
		s.participants[participant.SessionID] = roster
	}
	roster[participant.ID] = participant
	return nil
}

func (s *SessionStore) GetParticipant(_ context.Context, sessionID, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[sessionID][participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return participant, nil
}

func (s *SessionStore) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roster := make([]domain.Participant, 0, len(s.participants[sessionID]))
	for _, p := range s.participants[sessionID] {
		roster = append(roster, p)
	}
	sort.Slice(roster, func(i, j int) bool {
		if !roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].JoinedAt.Before(roster[j].JoinedAt)
		}
		return roster[i].ID < roster[j].ID
	})
	return roster, nil
}

func (s *SessionStore) ApplyScore(_ context.Context, response domain.Response, newStreak int) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[response.SessionID][response.ParticipantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}

	recorded, ok := s.responses[response.SessionID]
	if !ok {
		recorded = make(map[string]domain.Response)
		s.responses[response.SessionID] = recorded
	}
	key := responseKey(response.QuestionID, response.ParticipantID)
	if _, dup := recorded[key]; dup {
		return domain.Participant{}, domain.ErrAlreadyAnswered
	}
	recorded[key] = response

	participant.TotalScore += response.PointsAwarded
	participant.CurrentStreak = newStreak
	s.participants[response.SessionID][response.ParticipantID] = participant
	return participant, nil
}

func (s *SessionStore) ListResponses(_ context.Context, sessionID, questionID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	responses := make([]domain.Response, 0)
	for _, r := range s.responses[sessionID] {
		if r.QuestionID == questionID {
			responses = append(responses, r)
		}
	}
	sort.Slice(responses, func(i, j int) bool {
		return responses[i].AnsweredAt.Before(responses[j].AnsweredAt)
	})
	return responses, nil
}
