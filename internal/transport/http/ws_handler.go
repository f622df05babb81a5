package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService) *WSHandler {
	return &WSHandler{
		service: service,
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

type submitPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	IsAutoSubmit  bool   `json:"isAutoSubmit"`
}

type chatPayload struct {
	Message string `json:"message"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Seq     uint64 `json:"seq,omitempty"`
	Payload T      `json:"payload"`
}

func eventMessage(ev domain.Event) outboundMessage[any] {
	return outboundMessage[any]{Type: string(ev.Type), Seq: ev.Seq, Payload: ev.Payload}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the room use cases.
// The connection joins the room on connect and leaves it on disconnect.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if roomID == "" || userID == "" {
		writeError(w, fmt.Errorf("%w: missing roomId or userId", errBadRequest))
		return
	}
	if _, err := h.service.FindByID(roomID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := context.Background()
	joined, err := h.service.Join(ctx, roomID, userID, displayName)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer func() {
		if err := h.service.Leave(ctx, roomID, userID); err != nil {
			log.Printf("ws: leave %s/%s: %v", roomID, userID, err)
		}
	}()

	sub, err := h.service.Subscribe(ctx, roomID, userID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	send := make(chan outboundMessage[any], 64)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer: every frame, pings included, goes through this goroutine.
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws: write error: %v", err)
					conn.Close()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					log.Printf("ws: ping error: %v", err)
					conn.Close()
					return
				}
			}
		}
	}()

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	emit(outboundMessage[any]{Type: "joined", Payload: joined})

	go func() {
		defer close(updatesDone)
		defer func() { sub.Close() }()
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					if !sub.Lagged() {
						// room was discarded
						emit(errorMessage(domain.ErrRoomNotFound))
						_ = conn.SetReadDeadline(time.Now())
						return
					}
					log.Printf("ws: %s fell behind in room %s, resubscribing", userID, roomID)
					next, err := h.service.Subscribe(ctx, roomID, userID)
					if err != nil {
						emit(errorMessage(err))
						_ = conn.SetReadDeadline(time.Now())
						return
					}
					sub = next
					continue
				}
				select {
				case send <- eventMessage(ev):
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

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			break
		}
		if err := h.handle(ctx, roomID, userID, inbound); err != nil {
			emit(errorMessage(err))
			continue
		}
		if inbound.Type == "leave" {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, roomID, userID string, inbound inboundMessage) error {
	switch inbound.Type {
	case "submit_answer":
		var payload submitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fmt.Errorf("%w: invalid answer payload", errBadRequest)
		}
		// the grade arrives as a unicast answer_graded event
		_, err := h.service.SubmitAnswer(ctx, roomID, userID, payload.QuestionIndex, payload.Answer, payload.IsAutoSubmit)
		return err
	case "start":
		_, err := h.service.Start(ctx, roomID, userID)
		return err
	case "advance":
		_, err := h.service.Advance(ctx, roomID, userID)
		return err
	case "chat_message":
		var payload chatPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fmt.Errorf("%w: invalid chat payload", errBadRequest)
		}
		_, err := h.service.SendChat(ctx, roomID, userID, payload.Message)
		return err
	case "leave":
		return h.service.Leave(ctx, roomID, userID)
	default:
		return fmt.Errorf("%w: unsupported message type %q", errBadRequest, inbound.Type)
	}
}
