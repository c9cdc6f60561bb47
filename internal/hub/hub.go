// Package hub is the single-process session registry: an actor owning the
// room-id -> room index with explicit create/dispose lifecycle. Scaling
// beyond one process means sharding or externalizing this registry, which
// is deliberately out of scope here.
package hub

import (
	"context"

	"github.com/gomoku-arena/arena-backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

// RoomFactory builds a ready-to-run room for a config, optionally seeded
// from a persisted snapshot. Injected so the hub stays ignorant of room
// wiring.
type RoomFactory func(ctx context.Context, cfg room.Config, snap *room.Resume) *room.Room

type CreateRoom struct {
	Config room.Config
	Resume *room.Resume // non-nil when reviving a persisted room
	Reply  chan *room.Room
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

type RemoveRoom struct {
	ID string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	factory RoomFactory
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, factory RoomFactory) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		factory: factory,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if r := h.rooms[msg.Config.RoomID]; r != nil {
					msg.Reply <- r
					break
				}
				r := h.factory(h.ctx, msg.Config, msg.Resume)
				h.rooms[msg.Config.RoomID] = r
				msg.Reply <- r

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case RemoveRoom:
				if r := h.rooms[msg.ID]; r != nil {
					r.Inbox() <- room.Shutdown{}
				}
				delete(h.rooms, msg.ID)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, r := range h.rooms {
		r.Inbox() <- room.Shutdown{}
	}
	clear(h.rooms)
	h.cancel()
}
