package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lesson-quiz-service/internal/app"
	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/errors"
	"lesson-quiz-service/internal/session"
	"lesson-quiz-service/internal/telemetry"
)

const maxMessageSize = 64 << 10

// WSHandler runs one quiz session per websocket connection.
type WSHandler struct {
	repo      session.Repository
	registry  app.SessionRegistry
	duration  time.Duration
	newTicker func(d time.Duration) session.Ticker
	upgrader  websocket.Upgrader
}

type WSOption func(h *WSHandler)

// WithDuration sets the countdown of every session.
func WithDuration(d time.Duration) WSOption {
	return func(h *WSHandler) { h.duration = d }
}

// WithTicker replaces the countdown ticker, for tests.
func WithTicker(f func(d time.Duration) session.Ticker) WSOption {
	return func(h *WSHandler) { h.newTicker = f }
}

func NewWSHandler(repo session.Repository, registry app.SessionRegistry, opts ...WSOption) *WSHandler {
	h := &WSHandler{
		repo:     repo,
		registry: registry,
		duration: session.DefaultDuration,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type choicePayload struct {
	QuestionID string `json:"questionId"`
	Option     string `json:"option"`
}

type editPayload struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

type answerPayload struct {
	QuestionID string             `json:"questionId"`
	Value      domain.AnswerValue `json:"value"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
	LessonID  string `json:"lessonId"`
}

type errorPayload struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// toucher is implemented by registries that keep an external liveness marker.
type toucher interface {
	Touch(ctx context.Context, id string) error
}

// ServeWS upgrades HTTP requests to websockets and binds them to a fresh session controller.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	lessonID := r.URL.Query().Get("lessonId")
	if lessonID == "" {
		http.Error(w, "missing lessonId", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	log := slog.Default().With("session", sessionID)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	controller := session.New(session.Config{
		Repository:    h.repo,
		LessonID:      lessonID,
		Duration:      h.duration,
		NewTickerFunc: h.newTicker,
		Logger:        log,
	})
	defer controller.Close()

	h.registry.Register(sessionID, controller)
	defer h.registry.Remove(sessionID, controller)
	telemetry.ActiveSessions.Inc()
	defer telemetry.ActiveSessions.Dec()

	updates, unsubscribe, err := controller.Subscribe()
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer unsubscribe()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var closeConn sync.Once

	// only the writer goroutine writes to conn
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws: write failed", "error", err)
				closeConn.Do(func() { _ = conn.Close() })
				return
			}
		}
	}()
	push := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	push(outboundMessage{Type: "session", Payload: sessionPayload{SessionID: sessionID, LessonID: lessonID}})

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					// controller was closed elsewhere (replaced or shutdown); drop the client
					closeConn.Do(func() { _ = conn.Close() })
					return
				}
				select {
				case send <- outboundMessage{Type: "state", Payload: snap}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if err := controller.Start(ctx); err != nil {
		push(errorMessage(err))
	}

	live, _ := h.registry.(toucher)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if live != nil {
			if err := live.Touch(ctx, sessionID); err != nil {
				log.Debug("ws: touch session failed", "error", err)
			}
		}

		if err := dispatch(controller, inbound, push); err != nil {
			push(errorMessage(err))
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func dispatch(c *session.Controller, in inboundMessage, push func(outboundMessage)) error {
	switch in.Type {
	case "select":
		var p choicePayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		return c.Select(p.QuestionID, p.Option)
	case "toggle":
		var p choicePayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		return c.Toggle(p.QuestionID, p.Option)
	case "edit":
		var p editPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		return c.Edit(p.QuestionID, p.Text)
	case "answer":
		var p answerPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		return c.Answer(p.QuestionID, p.Value)
	case "submit":
		return c.Submit()
	case "retake":
		return c.Retake()
	case "state":
		snap, err := c.Snapshot()
		if err != nil {
			return err
		}
		push(outboundMessage{Type: "state", Payload: snap})
		return nil
	default:
		return errors.New(errors.CodeInvalidArgument, errors.WithMessage(fmt.Sprintf("unsupported message type %q", in.Type)))
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessage("invalid payload"), errors.WithCause(err))
	}
	return nil
}

func errorMessage(err error) outboundMessage {
	e := errors.Convert(err)
	return outboundMessage{Type: "error", Payload: errorPayload{Code: e.Code, Message: e.Message}}
}
