package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/gomoku-arena/arena-backend/internal/hub"
	"github.com/gomoku-arena/arena-backend/internal/opening"
	"github.com/gomoku-arena/arena-backend/internal/room"
	"github.com/gomoku-arena/arena-backend/pkg/types"
)

// Vars so tests can shrink the heartbeat window.
var (
	writeTimeout = 3 * time.Second

	// Heartbeat: transport loss must surface within a few seconds, well
	// before the room's grace window matters.
	pingInterval = 2 * time.Second
	pongTimeout  = 5 * time.Second
)

// Handler upgrades a client to the realtime protocol and bridges the socket
// to the room actor: inbound frames become room messages, the room's outbox
// is drained into the socket. A read error of any kind posts Disconnected,
// which starts the grace countdown on the room side.
func Handler(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		playerID := r.URL.Query().Get("player")
		if roomID == "" || playerID == "" {
			http.Error(w, "missing room or player", http.StatusBadRequest)
			return
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{ID: roomID, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// Each socket gets its own id so the room can tell a stale
		// connection's disconnect apart from the player's live one.
		connID := uuid.NewString()

		out := make(chan types.ServerEvent, 16)
		rm.Inbox() <- room.Join{PlayerID: playerID, ConnID: connID, Outbox: out}
		defer func() { rm.Inbox() <- room.Disconnected{PlayerID: playerID, ConnID: connID} }()

		// Writer goroutine. The room closes out on shutdown (or when a
		// newer socket for the same player supersedes this one), which
		// ends the range and drops the connection.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for evt := range out {
				payload, err := json.Marshal(evt)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			conn.Close(websocket.StatusNormalClosure, "room closed")
		}()

		// Heartbeat goroutine: a missed pong closes the connection, which
		// errors the read below and reports the disconnect.
		go func() {
			t := time.NewTicker(pingInterval)
			defer t.Stop()
			for {
				select {
				case <-writeCtx.Done():
					return
				case <-t.C:
					ctx, cancel := context.WithTimeout(writeCtx, pongTimeout)
					err := conn.Ping(ctx)
					cancel()
					if err != nil {
						conn.Close(websocket.StatusPolicyViolation, "heartbeat lost")
						return
					}
				}
			}
		}()

		// Reader loop. Also the pong pump: coder/websocket only processes
		// control frames while a read is in flight.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Clean close or otherwise, the defer above reports the
				// disconnect to the room either way.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad_json", "malformed message")
				continue
			}

			msg, ok := toRoomMessage(playerID, cm)
			if !ok {
				writeError(r.Context(), conn, "unknown_type", "unknown message type")
				continue
			}
			rm.Inbox() <- msg
		}
	}
}

func toRoomMessage(playerID string, m types.ClientMessage) (room.Msg, bool) {
	switch m.Type {
	case types.MsgMakeMove:
		return room.PlaceStone{PlayerID: playerID, X: m.X, Y: m.Y}, true
	case types.MsgOpeningChoice:
		c := opening.Choice(m.Choice)
		switch c {
		case opening.ChoiceBlack, opening.ChoiceWhite, opening.ChoicePlaceMore:
			return room.OpeningChoice{PlayerID: playerID, Choice: c}, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, code, msg string) {
	payload, _ := json.Marshal(types.ErrorPayload{Code: code, Message: msg})
	evt, _ := json.Marshal(types.ServerEvent{Type: types.EvtError, Payload: payload})
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, evt)
}
