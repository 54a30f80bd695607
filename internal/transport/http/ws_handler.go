package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-score-service/internal/app"
	"quiz-score-service/internal/domain"
)

// LiveHandler streams leaderboard snapshots for one chapter over a websocket.
type LiveHandler struct {
	service  *app.RankingService
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewLiveHandler(service *app.RankingService, checkOrigin func(*http.Request) bool, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &LiveHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		log: logger.Named("live"),
	}
}

type inboundMessage struct {
	Type string `json:"type"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS handles GET /scores/live?chapterId=&limit=. Clients may send
// {"type":"refresh"} to request a fresh snapshot.
func (h *LiveHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	chapterID := domain.ResolveChapter(r.URL.Query().Get("chapterId"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(r.Context(), chapterID, limit)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "Failed to fetch scores"}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer goroutine: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("websocket write failed", zap.Error(err))
				// unblocks the read loop below
				_ = conn.Close()
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			break
		}
		var inbound inboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid message"}})
			continue
		}
		switch inbound.Type {
		case "refresh":
			entries, err := h.service.Leaderboard(r.Context(), chapterID, limit)
			if err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "Failed to fetch scores"}})
				continue
			}
			push(outboundMessage[any]{Type: "leaderboard", Payload: domain.Leaderboard{
				ChapterID: chapterID,
				Entries:   entries,
				UpdatedAt: time.Now().UTC(),
			}})
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
