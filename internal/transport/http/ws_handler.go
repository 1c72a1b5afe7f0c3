package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-commit-service/internal/app"
	"quiz-commit-service/internal/domain"
)

type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewWSHandler(service *app.SessionService, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.WithField("component", "ws"),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type navigatePayload struct {
	Direction domain.Direction `json:"direction"`
}

type answerPayload struct {
	QuestionID string   `json:"questionId"`
	Value      string   `json:"value"`
	Values     []string `json:"values"`
}

type answerAck struct {
	QuestionID string `json:"questionId"`
	Progress   int    `json:"progress"`
}

type introPayload struct {
	SessionID       string            `json:"sessionId"`
	QuizID          string            `json:"quizId"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	DurationMinutes int               `json:"durationMinutes"`
	QuestionCount   int               `json:"questionCount"`
	Difficulty      domain.Difficulty `json:"difficulty"`
	Reward          float64           `json:"reward"`
	OpenedAt        time.Time         `json:"openedAt"`
	Questions       []questionView    `json:"questions"`
}

type questionView struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    string       `json:"type"`
	Points  int          `json:"points"`
	Options []optionView `json:"options"`
}

type optionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Kind: domain.ErrorKind(err)}}
}

// ServeWS upgrades the request and runs one quiz session for the connection.
// The session is closed when the socket goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.service.Open(ctx, quizID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	log := h.log.WithFields(logrus.Fields{"session_id": session.ID(), "quiz_id": quizID})
	log.Debug("session opened")

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var submits sync.WaitGroup

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		case <-writerDone:
		}
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	// The intro goes out before the updates pump starts so it is always first.
	send <- outboundMessage[any]{Type: "intro", Payload: intro(session)}

	go func() {
		defer close(updatesDone)
		var last domain.Outcome
		timeUpSent := false
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if snap.TimeUp && !timeUpSent {
					timeUpSent = true
					emit(outboundMessage[any]{Type: "timeUp", Payload: snap.Remaining})
				}
				emit(outboundMessage[any]{Type: "state", Payload: snap})
				if snap.Outcome != nil && *snap.Outcome != last {
					last = *snap.Outcome
					emit(outboundMessage[any]{Type: "outcome", Payload: last})
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.service.Touch(ctx, session.ID()); err != nil {
			log.WithError(err).Debug("session touch failed")
		}
		switch inbound.Type {
		case "start":
			if err := session.Start(); err != nil {
				emit(errorMessage(err))
			}
		case "navigate":
			var payload navigatePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid navigate payload", Kind: "bad_request"}})
				continue
			}
			if _, err := session.GoTo(payload.Direction); err != nil {
				emit(errorMessage(err))
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload", Kind: "bad_request"}})
				continue
			}
			value := domain.SingleValue(payload.Value)
			if len(payload.Values) > 0 {
				value = domain.MultiValue(payload.Values...)
			} else if payload.Value == "" {
				value = domain.MultiValue()
			}
			progress, err := session.RecordAnswer(payload.QuestionID, value)
			if err != nil {
				emit(errorMessage(err))
				continue
			}
			emit(outboundMessage[any]{Type: "answered", Payload: answerAck{QuestionID: payload.QuestionID, Progress: progress}})
		case "submit":
			// Submit blocks on the chain and backend; its outcome arrives
			// through the snapshot stream.
			submits.Add(1)
			go func() {
				defer submits.Done()
				_, err := session.Submit(context.WithoutCancel(ctx))
				if errors.Is(err, domain.ErrInvalidPhase) {
					emit(errorMessage(err))
				}
			}()
		default:
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type", Kind: "bad_request"}})
		}
	}

	close(closeSignals)
	h.service.Close(session.ID())
	submits.Wait()
	<-updatesDone
	close(send)
	<-writerDone
	log.Debug("session closed")
}

func intro(session *app.Session) introPayload {
	quiz := session.Quiz()
	out := introPayload{
		SessionID:       session.ID(),
		QuizID:          quiz.ID,
		Title:           quiz.Title,
		Description:     quiz.Description,
		DurationMinutes: int(quiz.Duration.Minutes()),
		QuestionCount:   len(quiz.Questions),
		Difficulty:      quiz.Difficulty,
		Reward:          quiz.Reward,
		OpenedAt:        session.CreatedAt(),
		Questions:       make([]questionView, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		view := questionView{ID: q.ID, Text: q.Text, Type: string(q.Type), Points: q.Points}
		for _, opt := range q.Options {
			view.Options = append(view.Options, optionView{ID: opt.ID, Text: opt.Text})
		}
		out.Questions = append(out.Questions, view)
	}
	return out
}
