package realtime

import (
	"context"
	"sync"
	"time"

	"quiz-live-service/internal/domain"
	"quiz-live-service/pkg/logger"
)

// Hub fans change events out to a session's subscribers. Delivery on the push
// path is best-effort; the reconciler below re-publishes full snapshots on a
// fixed cadence so subscribers converge even when push events are dropped.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe registers a listener for one session's events. The caller must
// invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(sessionID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 16)

	h.mu.Lock()
	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		h.sessions[sessionID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.sessions[sessionID]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.sessions, sessionID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the session without
// blocking: a full buffer sheds its oldest event so slow consumers fall back
// on the reconciler's snapshots instead of stalling the game.
func (h *Hub) Publish(sessionID string, event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.sessions[sessionID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// SubscriberCount reports how many listeners a session currently has.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) watchedSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SnapshotSource is the read side the reconciler polls.
type SnapshotSource interface {
	GetSession(ctx context.Context, sessionID string) (domain.GameSession, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
}

// RunReconciler polls full session and roster snapshots for every watched
// session and re-publishes them, masking lost push events. Blocks until ctx
// is done.
func (h *Hub) RunReconciler(ctx context.Context, src SnapshotSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sessionID := range h.watchedSessions() {
				session, err := src.GetSession(ctx, sessionID)
				if err != nil {
					logger.Debug("reconcile session fetch failed", "sessionId", sessionID, "error", err)
					continue
				}
				h.Publish(sessionID, domain.Event{Kind: domain.EventSessionUpdated, Session: &session})

				roster, err := src.ListParticipants(ctx, sessionID)
				if err != nil {
					logger.Debug("reconcile roster fetch failed", "sessionId", sessionID, "error", err)
					continue
				}
				h.Publish(sessionID, domain.Event{Kind: domain.EventRoster, Roster: roster})
			}
		}
	}
}
