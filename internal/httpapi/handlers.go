package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gomoku-arena/arena-backend/internal/hub"
	"github.com/gomoku-arena/arena-backend/internal/match"
	"github.com/gomoku-arena/arena-backend/internal/room"
	"github.com/gomoku-arena/arena-backend/internal/series"
	"github.com/gomoku-arena/arena-backend/internal/store"
)

// API bundles the dependencies the HTTP surface needs.
type API struct {
	Hub    *hub.Hub
	Series *series.Coordinator
	Store  *store.Store
	Log    *zap.Logger

	// Room defaults applied to every created room.
	TimeBudget   time.Duration
	GraceTimeout time.Duration
}

type createRoomRequest struct {
	Player1        string `json:"player1"`
	Player2        string `json:"player2"`
	OpeningEnabled *bool  `json:"opening_enabled,omitempty"` // default true
	ForbiddenRules *bool  `json:"forbidden_rules,omitempty"` // default true
}

type createRoomResponse struct {
	RoomID   string `json:"room_id"`
	SeriesID string `json:"series_id"`
	Player1  string `json:"player1"`
	Player2  string `json:"player2"`
	OpenerID string `json:"opener_id"`
}

// CreateRoom matches two players: it opens a best-of-3 series row and spins
// up the room actor that will host it.
func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if req.Player1 == "" || req.Player2 == "" || req.Player1 == req.Player2 {
		http.Error(w, "two distinct players required", http.StatusBadRequest)
		return
	}

	s, err := a.Series.StartSeries(r.Context(), req.Player1, req.Player2)
	if err != nil {
		a.Log.Error("start series", zap.Error(err))
		http.Error(w, "failed to create series", http.StatusInternalServerError)
		return
	}

	cfg := room.Config{
		RoomID:         uuid.NewString(),
		SeriesID:       s.ID,
		Player1:        s.Player1,
		Player2:        s.Player2,
		OpenerID:       s.OpenerID,
		OpeningEnabled: boolOrDefault(req.OpeningEnabled, true),
		ForbiddenRules: boolOrDefault(req.ForbiddenRules, true),
		TimeBudget:     a.TimeBudget,
		GraceTimeout:   a.GraceTimeout,
	}

	reply := make(chan *room.Room, 1)
	a.Hub.Inbox() <- hub.CreateRoom{Config: cfg, Reply: reply}
	if <-reply == nil {
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomID:   cfg.RoomID,
		SeriesID: s.ID,
		Player1:  s.Player1,
		Player2:  s.Player2,
		OpenerID: s.OpenerID,
	})
}

type roomStateResponse struct {
	RoomID       string          `json:"room_id"`
	Live         bool            `json:"live"`
	Version      int64           `json:"version,omitempty"`
	Status       string          `json:"status,omitempty"`
	Disconnected []string        `json:"disconnected,omitempty"`
	Game         json.RawMessage `json:"game,omitempty"`
}

// GetRoom reports a room's current state: from the live actor when it is
// running, otherwise from the last persisted snapshot.
func (a *API) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	reply := make(chan *room.Room, 1)
	a.Hub.Inbox() <- hub.GetRoom{ID: roomID, Reply: reply}
	if rm := <-reply; rm != nil {
		vr := make(chan room.View, 1)
		rm.Inbox() <- room.GetState{Reply: vr}
		v := <-vr

		game, err := json.Marshal(v.Game)
		if err != nil {
			http.Error(w, "failed to encode state", http.StatusInternalServerError)
			return
		}
		status := store.RoomActive
		if v.PendingForfeit {
			status = store.RoomPendingForfeit
		}
		writeJSON(w, http.StatusOK, roomStateResponse{
			RoomID:       roomID,
			Live:         true,
			Version:      v.Version,
			Status:       status,
			Disconnected: v.Disconnected,
			Game:         game,
		})
		return
	}

	row, err := a.Store.LoadRoom(r.Context(), roomID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.Log.Error("load room", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, roomStateResponse{
		RoomID:  roomID,
		Live:    false,
		Version: row.Revision,
		Status:  row.Status,
		Game:    json.RawMessage(row.State),
	})
}

// ResumeRoom revives a persisted room after a process restart: the game
// blob is restored into a fresh actor seeded with the row's revision so
// subsequent saves keep the optimistic-concurrency chain intact.
func (a *API) ResumeRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	reply := make(chan *room.Room, 1)
	a.Hub.Inbox() <- hub.GetRoom{ID: roomID, Reply: reply}
	if rm := <-reply; rm != nil {
		writeJSON(w, http.StatusOK, createRoomResponse{RoomID: roomID})
		return
	}

	row, err := a.Store.LoadRoom(r.Context(), roomID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.Log.Error("load room", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}
	if row.Status != store.RoomActive {
		http.Error(w, "room is not resumable", http.StatusConflict)
		return
	}

	game, err := match.Restore(row.State)
	if err != nil {
		a.Log.Error("restore game state", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "persisted state unreadable", http.StatusInternalServerError)
		return
	}
	if game.Finished {
		http.Error(w, "game already finished", http.StatusConflict)
		return
	}

	sr, err := a.Store.LoadSeries(r.Context(), row.SeriesID)
	if err != nil {
		a.Log.Error("load series", zap.String("series_id", row.SeriesID), zap.Error(err))
		http.Error(w, "failed to load series", http.StatusInternalServerError)
		return
	}

	cfg := room.Config{
		RoomID:         roomID,
		SeriesID:       row.SeriesID,
		Player1:        sr.Player1,
		Player2:        sr.Player2,
		OpenerID:       sr.OpenerID,
		OpeningEnabled: game.Phase == match.PhaseOpening || len(game.OpeningLog) > 0,
		ForbiddenRules: game.Forbidden,
		TimeBudget:     a.TimeBudget,
		GraceTimeout:   a.GraceTimeout,
	}
	a.Hub.Inbox() <- hub.CreateRoom{
		Config: cfg,
		Resume: &room.Resume{Game: game, Revision: row.Revision},
		Reply:  reply,
	}
	if <-reply == nil {
		http.Error(w, "failed to resume room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, createRoomResponse{
		RoomID:   roomID,
		SeriesID: row.SeriesID,
		Player1:  sr.Player1,
		Player2:  sr.Player2,
		OpenerID: sr.OpenerID,
	})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
