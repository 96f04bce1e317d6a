package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/game"
	"quiz-live-service/internal/realtime"
	"quiz-live-service/pkg/logger"
)

// Handler exposes the game over HTTP + WebSocket: POST /games creates a
// session, /ws/host drives it, /ws/play answers in it.
type Handler struct {
	coordinator *app.GameCoordinator
	hub         *realtime.Hub
	upgrader    websocket.Upgrader
}

func NewHandler(coordinator *app.GameCoordinator, hub *realtime.Hub) *Handler {
	return &Handler{
		coordinator: coordinator,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register wires the handler's routes into mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/games", h.CreateGame)
	mux.HandleFunc("/ws/host", h.ServeHost)
	mux.HandleFunc("/ws/play", h.ServePlayer)
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type createGameRequest struct {
	QuizID   string              `json:"quizId"`
	HostID   string              `json:"hostId,omitempty"`
	Settings domain.GameSettings `json:"settings"`
}

type createGameResponse struct {
	SessionID  string `json:"sessionId"`
	PIN        string `json:"pin"`
	PINDisplay string `json:"pinDisplay"`
}

type answerPayload struct {
	QuestionID string  `json:"questionId"`
	OptionID   *string `json:"optionId"` // null records a timed-out blank
}

// optionView and questionView are what players see: correct-option flags are
// stripped so the answer cannot be read out of the socket.
type optionView struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	OrderIndex int    `json:"orderIndex"`
}

type questionView struct {
	ID         string              `json:"id"`
	Type       domain.QuestionType `json:"type"`
	Text       string              `json:"text"`
	OrderIndex int                 `json:"orderIndex"`
	IsWarmup   bool                `json:"isWarmup"`
	TimeLimit  int                 `json:"timeLimit"` // effective seconds for this question
	Options    []optionView        `json:"options"`
}

type joinedPayload struct {
	Participant domain.Participant `json:"participant"`
	Session     domain.GameSession `json:"session"`
	Questions   []questionView     `json:"questions"`
}

type hostStatePayload struct {
	Session domain.GameSession   `json:"session"`
	Roster  []domain.Participant `json:"roster"`
	Quiz    domain.Quiz          `json:"quiz"`
}

type advancePayload struct {
	Finished bool `json:"finished"`
}

// CreateGame handles POST /games.
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	session, err := h.coordinator.CreateGame(r.Context(), req.QuizID, req.HostID, req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createGameResponse{
		SessionID:  session.ID,
		PIN:        session.PIN,
		PINDisplay: game.FormatPIN(session.PIN),
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPinExhausted), errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

// ServePlayer upgrades a player connection: join via query params, then a
// read loop of answer submissions while session events stream outward.
func (h *Handler) ServePlayer(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	nickname := r.URL.Query().Get("nickname")
	avatarBase := r.URL.Query().Get("avatar")
	avatarAccessory := r.URL.Query().Get("accessory")
	if pin == "" || nickname == "" {
		http.Error(w, "missing pin or nickname", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	participant, session, err := h.coordinator.JoinGame(r.Context(), pin, nickname, avatarBase, avatarAccessory)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	questions := []questionView{}
	if quiz, err := h.coordinator.Quiz(r.Context(), session.QuizID); err == nil {
		questions = playerQuestionViews(session, quiz)
	}

	send, done := h.startEventPump(session.ID, conn, func(ev domain.Event) bool {
		// Players do not see raw response rows; those are host material.
		return ev.Kind != domain.EventResponseRecorded
	})
	defer done()
	defer h.hub.Publish(session.ID, domain.Event{Kind: domain.EventParticipantLeft, ParticipantID: participant.ID})

	send <- marshalOutbound("joined", joinedPayload{Participant: participant, Session: session, Questions: questions})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- marshalOutbound("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			outcome, err := h.coordinator.SubmitAnswer(r.Context(), session.ID, participant.ID, payload.QuestionID, payload.OptionID)
			if errors.Is(err, domain.ErrAlreadyAnswered) {
				// Duplicate submits are a no-op for the player, not an error.
				send <- marshalOutbound("alreadyAnswered", errorPayload{Message: "answer already recorded"})
				continue
			}
			if err != nil {
				send <- marshalOutbound("error", errorPayload{Message: err.Error()})
				continue
			}
			send <- marshalOutbound("answerResult", outcome)
		default:
			send <- marshalOutbound("error", errorPayload{Message: "unsupported message type"})
		}
	}
}

// ServeHost upgrades the host connection: transition commands inbound, the
// full event feed (including responses) outbound.
func (h *Handler) ServeHost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	session, err := h.coordinator.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	roster, _ := h.coordinator.ListParticipants(r.Context(), sessionID)
	quiz, err := h.coordinator.Quiz(r.Context(), session.QuizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send, done := h.startEventPump(sessionID, conn, nil)
	defer done()

	send <- marshalOutbound("state", hostStatePayload{Session: session, Roster: roster, Quiz: quiz})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		var cmdErr error
		switch inbound.Type {
		case "start":
			cmdErr = h.coordinator.StartGame(r.Context(), sessionID)
		case "reveal":
			cmdErr = h.coordinator.RevealResults(r.Context(), sessionID)
		case "advance":
			var finished bool
			finished, cmdErr = h.coordinator.AdvanceQuestion(r.Context(), sessionID)
			if cmdErr == nil {
				send <- marshalOutbound("advanced", advancePayload{Finished: finished})
			}
		case "end":
			cmdErr = h.coordinator.EndGame(r.Context(), sessionID)
		default:
			send <- marshalOutbound("error", errorPayload{Message: "unsupported message type"})
			continue
		}
		if cmdErr != nil {
			send <- marshalOutbound("error", errorPayload{Message: cmdErr.Error()})
		}
	}
}

// startEventPump subscribes to the session and pumps hub events plus locally
// queued messages through a single writer goroutine, so the websocket never
// sees concurrent writes. done unsubscribes and drains the writer.
func (h *Handler) startEventPump(sessionID string, conn *websocket.Conn, keep func(domain.Event) bool) (chan outboundMessage[any], func()) {
	updates, cancel := h.hub.Subscribe(sessionID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("ws write error", "sessionId", sessionID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				if keep != nil && !keep(ev) {
					continue
				}
				select {
				case send <- marshalOutbound(string(ev.Kind), ev):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	done := func() {
		cancel()
		close(closeSignals)
		<-updatesDone
		close(send)
		<-writerDone
	}
	return send, done
}

func marshalOutbound(msgType string, payload any) outboundMessage[any] {
	return outboundMessage[any]{Type: msgType, Payload: payload}
}

func playerQuestionViews(session domain.GameSession, quiz domain.Quiz) []questionView {
	views := make([]questionView, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		options := make([]optionView, 0, len(q.Options))
		for _, opt := range q.Options {
			options = append(options, optionView{ID: opt.ID, Text: opt.Text, OrderIndex: opt.OrderIndex})
		}
		views = append(views, questionView{
			ID:         q.ID,
			Type:       q.Type,
			Text:       q.Text,
			OrderIndex: q.OrderIndex,
			IsWarmup:   q.IsWarmup,
			TimeLimit:  int(session.QuestionTimeLimit(q).Seconds()),
			Options:    options,
		})
	}
	return views
}
