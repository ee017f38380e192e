package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quiz-competition-service/internal/app"
	"quiz-competition-service/internal/domain"
)

// QuestionSource serves a competition's question set for server-side
// grading; the Redis cache implements it in production.
type QuestionSource interface {
	Questions(ctx context.Context, competitionID string) ([]domain.Question, error)
}

// Presence tracks live viewers per competition (the Redis session store in
// production). May be nil.
type Presence interface {
	Add(competitionID string)
	Remove(competitionID string)
}

type WSHandler struct {
	service   *app.CompetitionService
	questions QuestionSource
	presence  Presence
	upgrader  websocket.Upgrader
}

func NewWSHandler(service *app.CompetitionService, questions QuestionSource, presence Presence) *WSHandler {
	return &WSHandler{
		service:   service,
		questions: questions,
		presence:  presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type answerResult struct {
	QuestionID string  `json:"questionId"`
	Correct    bool    `json:"correct"`
	Score      float64 `json:"score"`
}

type chatPayload struct {
	Message string `json:"message"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires the connection into the
// competition's change and chat feeds. The caller must already be a
// participant (join happens over the JSON API).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	competitionID := r.URL.Query().Get("competitionId")
	userID := r.URL.Query().Get("userId")
	if competitionID == "" || userID == "" {
		http.Error(w, "missing competitionId or userId", http.StatusBadRequest)
		return
	}

	participant, err := h.service.GetParticipant(r.Context(), competitionID, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancelUpdates, err := h.service.Subscribe(r.Context(), competitionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelUpdates()

	chat, cancelChat, err := h.service.SubscribeChat(r.Context(), competitionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelChat()

	if h.presence != nil {
		h.presence.Add(competitionID)
		defer h.presence.Remove(competitionID)
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	feedsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(feedsDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "competition", Payload: update}:
				case <-closeSignals:
					return
				}
			case msg, ok := <-chat:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "chat", Payload: msg}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: participant}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleMessage(r.Context(), send, competitionID, userID, inbound)
	}

	close(closeSignals)
	<-feedsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleMessage(ctx context.Context, send chan<- outboundMessage[any], competitionID, userID string, inbound inboundMessage) {
	fail := func(msg string) {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
	}

	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail("invalid answer payload")
			return
		}
		result, err := h.gradeAnswer(ctx, competitionID, userID, payload)
		if err != nil {
			fail(err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "answerResult", Payload: result}
	case "progress":
		var progress app.Progress
		if err := json.Unmarshal(inbound.Payload, &progress); err != nil {
			fail("invalid progress payload")
			return
		}
		if err := h.service.UpdateProgress(ctx, competitionID, userID, progress); err != nil {
			fail(err.Error())
		}
	case "chat":
		var payload chatPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail("invalid chat payload")
			return
		}
		p, err := h.service.GetParticipant(ctx, competitionID, userID)
		if err != nil {
			fail(err.Error())
			return
		}
		if _, err := h.service.SendChat(ctx, competitionID, userID, p.DisplayName, payload.Message); err != nil {
			fail(err.Error())
		}
	case "complete":
		var final app.Progress
		if err := json.Unmarshal(inbound.Payload, &final); err != nil {
			fail("invalid complete payload")
			return
		}
		if err := h.service.Complete(ctx, competitionID, userID, final); err != nil {
			fail(err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "completed", Payload: struct{}{}}
	default:
		fail("unsupported message type")
	}
}

// gradeAnswer records a single answer server-side: the question set comes
// from the question source, the participant's sheet is re-scored in full and
// pushed as a progress update.
func (h *WSHandler) gradeAnswer(ctx context.Context, competitionID, userID string, payload answerPayload) (answerResult, error) {
	questions, err := h.questions.Questions(ctx, competitionID)
	if err != nil {
		return answerResult{}, err
	}
	comp, err := h.service.Get(ctx, competitionID)
	if err != nil {
		return answerResult{}, err
	}
	participant, err := h.service.GetParticipant(ctx, competitionID, userID)
	if err != nil {
		return answerResult{}, err
	}

	answers := make(map[string]string, len(participant.Answers)+1)
	for k, v := range participant.Answers {
		answers[k] = v
	}
	answers[payload.QuestionID] = payload.Answer

	var question *domain.Question
	for i := range questions {
		if questions[i].ID == payload.QuestionID {
			question = &questions[i]
			break
		}
	}
	if question == nil {
		return answerResult{}, domain.ErrQuestionNotFound
	}
	_, correct := domain.Grade(*question, payload.Answer)

	tally := domain.ScoreAnswers(questions, answers, comp.Preferences)
	timeTaken := participant.TimeTakenSec
	if comp.StartTime != nil {
		timeTaken = int(time.Since(*comp.StartTime) / time.Second)
	}
	progress := app.Progress{
		Answers:           answers,
		Score:             tally.Score,
		CorrectAnswers:    tally.Correct,
		QuestionsAnswered: tally.Answered,
		TimeTakenSec:      timeTaken,
		CurrentQuestion:   participant.CurrentQuestion + 1,
	}
	if err := h.service.UpdateProgress(ctx, competitionID, userID, progress); err != nil {
		return answerResult{}, err
	}

	return answerResult{
		QuestionID: payload.QuestionID,
		Correct:    correct,
		Score:      tally.Score,
	}, nil
}
