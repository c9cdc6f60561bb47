// Package room hosts the per-room actor: one goroutine owns all mutable
// state for a room (game, series progress, disconnect tracking), so every
// operation is a single synchronous state transition and no locking is
// needed. Network calls (persistence, rewards, forfeit) run on their own
// goroutines and report back through the inbox.
package room

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gomoku-arena/arena-backend/internal/match"
	"github.com/gomoku-arena/arena-backend/internal/opening"
	"github.com/gomoku-arena/arena-backend/internal/retry"
	"github.com/gomoku-arena/arena-backend/internal/series"
	"github.com/gomoku-arena/arena-backend/internal/store"
	"github.com/gomoku-arena/arena-backend/pkg/types"
)

type Msg interface{ isRoomMsg() }

// Join registers a player's connection. Joining while a disconnect grace
// window is pending for that player counts as a reconnect. ConnID tags the
// transport connection so a stale socket's later disconnect can be told
// apart from the live one.
type Join struct {
	PlayerID string
	ConnID   string
	Outbox   chan types.ServerEvent
}

// Disconnected is the transport-level disconnect event for one connection.
// It only counts when ConnID is still the player's registered connection;
// a player who already reconnected on a new socket is unaffected by the
// old socket's death.
type Disconnected struct {
	PlayerID string
	ConnID   string
}

// PlaceStone submits a stone (main game or opening placement).
type PlaceStone struct {
	PlayerID string
	X, Y     int
}

// OpeningChoice submits a color / place_more decision.
type OpeningChoice struct {
	PlayerID string
	Choice   opening.Choice
}

type Shutdown struct{}

// GetState reflects internal state without data races; test-only.
type GetState struct{ Reply chan View }

func (Join) isRoomMsg()          {}
func (Disconnected) isRoomMsg()  {}
func (PlaceStone) isRoomMsg()    {}
func (OpeningChoice) isRoomMsg() {}
func (Shutdown) isRoomMsg()      {}
func (GetState) isRoomMsg()      {}

// internal timer and completion messages
type graceExpired struct {
	playerID string
	epoch    int
}

type countdownTick struct {
	playerID    string
	epoch       int
	secondsLeft int
}

type forfeitResolved struct {
	playerID string
	epoch    int
	result   store.ForfeitResult
	endGame  *series.Result
	err      error
}

type gameEnded struct {
	result *series.Result
	next   *series.NextGameInfo
	err    error
}

type turnExpired struct {
	epoch int
}

func (graceExpired) isRoomMsg()    {}
func (countdownTick) isRoomMsg()   {}
func (forfeitResolved) isRoomMsg() {}
func (gameEnded) isRoomMsg()       {}
func (turnExpired) isRoomMsg()     {}

// View is a race-free copy of room internals for tests.
type View struct {
	Version        int64
	NumClients     int
	Game           match.GameState
	Disconnected   []string
	PendingForfeit bool
	Closed         bool
}

// Config fixes a room's rule set and timing. Zero durations fall back to
// the documented defaults.
type Config struct {
	RoomID         string
	SeriesID       string
	Player1        string
	Player2        string
	OpenerID       string // who runs the opening of the first game
	OpeningEnabled bool
	ForbiddenRules bool
	TimeBudget     time.Duration
	GraceTimeout   time.Duration
	TickInterval   time.Duration
	DoubleWindow   time.Duration // both-disconnected draw window
}

func (c *Config) applyDefaults() {
	if c.OpenerID == "" {
		c.OpenerID = c.Player1
	}
	if c.TimeBudget == 0 {
		c.TimeBudget = 5 * time.Minute
	}
	if c.GraceTimeout == 0 {
		c.GraceTimeout = 10 * time.Second
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	if c.DoubleWindow == 0 {
		c.DoubleWindow = 5 * time.Second
	}
}

// PersistenceStore is the slice of the store the room consumes.
type PersistenceStore interface {
	SaveGameState(ctx context.Context, roomID, seriesID string, blob []byte, expectedRevision int64) (int64, error)
	ForfeitSeries(ctx context.Context, seriesID, disconnectedPlayerID string) (store.ForfeitResult, error)
	MarkRoomStatus(ctx context.Context, roomID, status string) error
}

// SeriesCoordinator is the slice of the series layer the room consumes.
type SeriesCoordinator interface {
	EndGame(ctx context.Context, p series.EndGameParams) (*series.Result, error)
	PrepareNextGame(ctx context.Context, seriesID string) (*series.NextGameInfo, error)
}

type disconnectState struct {
	playerID  string
	remaining string
	at        time.Time
	epoch     int
	stop      chan struct{}
	resolving bool // grace expired, forfeit persistence in flight
}

type Room struct {
	cfg   Config
	inbox chan Msg

	game           match.GameState
	gameStart      time.Time
	turnStart      time.Time
	version        int64
	clients        map[string]chan types.ServerEvent
	conns          map[string]string // playerID -> current connection id
	disconnects    map[string]*disconnectState
	epoch          int
	turnEpoch      int
	turnStop       chan struct{}
	pendingForfeit bool
	closed         bool

	store  PersistenceStore
	series SeriesCoordinator
	retry  retry.Policy
	rnd    *rand.Rand
	log    *zap.Logger

	saveCh     chan saveReq
	persistRev int64
	ctx        context.Context
	cancel     context.CancelFunc
}

type saveReq struct {
	blob []byte
}

// Resume seeds a recreated room from its persisted row so a process
// restart picks up the game where it left off.
type Resume struct {
	Game     match.GameState
	Revision int64
}

type Deps struct {
	Store  PersistenceStore
	Series SeriesCoordinator
	Log    *zap.Logger
	Retry  retry.Policy
	Rand   *rand.Rand
	Resume *Resume
}

func New(parent context.Context, cfg Config, deps Deps) *Room {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(parent)

	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = retry.Default
	}

	now := time.Now()
	r := &Room{
		cfg:         cfg,
		inbox:       make(chan Msg, 64),
		clients:     make(map[string]chan types.ServerEvent),
		conns:       make(map[string]string),
		disconnects: make(map[string]*disconnectState),
		store:       deps.Store,
		series:      deps.Series,
		retry:       deps.Retry,
		rnd:         deps.Rand,
		log:         deps.Log.Named("room").With(zap.String("room_id", cfg.RoomID)),
		saveCh:      make(chan saveReq, 16),
		ctx:         ctx,
		cancel:      cancel,
	}
	if deps.Resume != nil {
		r.game = deps.Resume.Game
		r.version = deps.Resume.Revision
		r.persistRev = deps.Resume.Revision
		r.gameStart = deps.Resume.Game.StartedAt
		if r.gameStart.IsZero() {
			r.gameStart = now
		}
	} else {
		r.game = r.newGame(cfg.OpenerID, now)
		r.gameStart = now
	}
	r.turnStart = now

	r.queueSave() // initial durable snapshot so a restart can reconstruct
	r.armTurnTimer()
	go r.loop()
	go r.persistLoop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// newGame builds a fresh game with the opener seated as the opening's
// player1 (or as Black when the opening protocol is disabled).
func (r *Room) newGame(openerID string, now time.Time) match.GameState {
	other := r.cfg.Player1
	if openerID == r.cfg.Player1 {
		other = r.cfg.Player2
	}
	return match.New(uuid.NewString(), openerID, other, match.Options{
		OpeningEnabled: r.cfg.OpeningEnabled,
		ForbiddenRules: r.cfg.ForbiddenRules,
		TimeBudget:     r.cfg.TimeBudget,
	}, now)
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)
			case Disconnected:
				r.handleDisconnect(msg, time.Now())
			case PlaceStone:
				r.handlePlace(msg)
			case OpeningChoice:
				r.handleChoice(msg)
			case countdownTick:
				r.handleTick(msg)
			case graceExpired:
				r.handleGraceExpired(msg)
			case forfeitResolved:
				r.handleForfeitResolved(msg)
			case gameEnded:
				r.handleGameEnded(msg)
			case turnExpired:
				r.handleTurnExpired(msg)
			case GetState:
				msg.Reply <- r.view()
			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) view() View {
	v := View{
		Version:        r.version,
		NumClients:     len(r.clients),
		Game:           r.game,
		PendingForfeit: r.pendingForfeit,
		Closed:         r.closed,
	}
	for id := range r.disconnects {
		v.Disconnected = append(v.Disconnected, id)
	}
	return v
}

func (r *Room) shutdown() {
	if r.closed {
		return
	}
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
		delete(r.conns, id)
	}
	for _, ds := range r.disconnects {
		close(ds.stop)
	}
	r.disconnects = make(map[string]*disconnectState)
	r.stopTurnTimer()
	r.closed = true
	// persistLoop drains whatever is queued, then exits.
	close(r.saveCh)
	r.cancel()
}

// sendTo delivers one event to one player, dropping them if their outbox is
// full (slow client).
func (r *Room) sendTo(playerID string, evt types.ServerEvent) {
	ch, ok := r.clients[playerID]
	if !ok {
		return
	}
	select {
	case ch <- evt:
	default:
		close(ch)
		delete(r.clients, playerID)
	}
}

func (r *Room) broadcast(evt types.ServerEvent) {
	for id := range r.clients {
		r.sendTo(id, evt)
	}
}

func (r *Room) event(typ string, payload any) types.ServerEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("marshal event payload", zap.String("type", typ), zap.Error(err))
	}
	return types.ServerEvent{Type: typ, Version: r.version, Payload: raw}
}

func (r *Room) snapshotEvent() types.ServerEvent {
	return r.event(types.EvtStateSnapshot, r.game)
}

// post feeds an internal message back into the loop from a helper
// goroutine, giving up if the room is gone.
func (r *Room) post(m Msg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

func (r *Room) handleJoin(msg Join) {
	if r.closed {
		close(msg.Outbox)
		return
	}
	// A fresh socket supersedes any previous one for this player; the old
	// writer sees its channel close and drops the connection.
	if old, ok := r.clients[msg.PlayerID]; ok && old != msg.Outbox {
		close(old)
	}
	r.clients[msg.PlayerID] = msg.Outbox
	r.conns[msg.PlayerID] = msg.ConnID

	if ds, ok := r.disconnects[msg.PlayerID]; ok && !ds.resolving {
		// Reconnect inside the grace window: cancel both timers exactly
		// once and tell both sides play resumes. A later duplicate Join
		// finds no pending state and is a plain no-op; a reconnect after
		// the grace already expired is too late and the forfeit stands.
		close(ds.stop)
		delete(r.disconnects, msg.PlayerID)
		r.broadcast(r.event(types.EvtOpponentReconnected, types.DisconnectPayload{
			PlayerID: msg.PlayerID,
		}))
		r.log.Info("player reconnected", zap.String("player_id", msg.PlayerID))
	}

	r.sendTo(msg.PlayerID, r.snapshotEvent())
}

func (r *Room) rejectionEvent(err error) types.ServerEvent {
	if ve, ok := err.(*match.ValidationError); ok {
		return r.event(types.EvtError, types.ErrorPayload{
			Code:         ve.Code,
			Message:      ve.Reason,
			Phase:        string(ve.Phase),
			ActivePlayer: ve.ActivePlayer,
		})
	}
	return r.event(types.EvtError, types.ErrorPayload{Code: "invalid", Message: err.Error()})
}

func (r *Room) handlePlace(msg PlaceStone) {
	if r.closed || r.pendingForfeit {
		r.sendTo(msg.PlayerID, r.event(types.EvtError, types.ErrorPayload{Code: "room_closed", Message: "room is not accepting moves"}))
		return
	}
	now := time.Now()
	charged := match.ChargeTime(r.game, msg.PlayerID, r.elapsedFor(msg.PlayerID, now))

	next, err := match.PlaceStone(charged, msg.PlayerID, msg.X, msg.Y, now)
	if err != nil {
		if ve, ok := err.(*match.ValidationError); ok && ve.Code == match.CodeTimeExhausted {
			r.resolveExhausted(charged, msg.PlayerID, now)
			return
		}
		r.sendTo(msg.PlayerID, r.rejectionEvent(err))
		return
	}
	r.commit(next, now)
}

func (r *Room) handleChoice(msg OpeningChoice) {
	if r.closed || r.pendingForfeit {
		r.sendTo(msg.PlayerID, r.event(types.EvtError, types.ErrorPayload{Code: "room_closed", Message: "room is not accepting moves"}))
		return
	}
	now := time.Now()
	charged := match.ChargeTime(r.game, msg.PlayerID, r.elapsedFor(msg.PlayerID, now))

	next, err := match.OpeningChoice(charged, msg.PlayerID, msg.Choice, now)
	if err != nil {
		if ve, ok := err.(*match.ValidationError); ok && ve.Code == match.CodeTimeExhausted {
			r.resolveExhausted(charged, msg.PlayerID, now)
			return
		}
		r.sendTo(msg.PlayerID, r.rejectionEvent(err))
		return
	}
	r.commit(next, now)
}

// elapsedFor charges thinking time only to the player whose action the game
// is waiting on.
func (r *Room) elapsedFor(playerID string, now time.Time) time.Duration {
	if r.game.ActivePlayer() != playerID {
		return 0
	}
	return now.Sub(r.turnStart)
}

// commit installs an accepted transition: bump version, queue the durable
// save, broadcast, re-arm the turn clock, and drive game-end bookkeeping
// when the game finished.
func (r *Room) commit(next match.GameState, now time.Time) {
	r.game = next
	r.turnStart = now
	r.version++
	r.queueSave()
	r.broadcast(r.snapshotEvent())
	r.armTurnTimer()

	if next.Finished {
		r.finishGame(now)
	}
}

// armTurnTimer schedules a fire for when the active player's remaining
// budget runs out. Epoch-guarded like the grace timer: every re-arm (or
// stop) invalidates earlier fires.
func (r *Room) armTurnTimer() {
	r.stopTurnTimer()
	if r.closed || r.pendingForfeit || r.game.Finished {
		return
	}
	active := r.game.ActivePlayer()
	if active == "" {
		return
	}
	remaining := time.Duration(r.game.TimeBudgets[active]) * time.Millisecond
	r.turnEpoch++
	epoch := r.turnEpoch
	stop := make(chan struct{})
	r.turnStop = stop

	go func() {
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-timer.C:
			r.post(turnExpired{epoch: epoch})
		case <-stop:
		case <-r.ctx.Done():
		}
	}()
}

func (r *Room) stopTurnTimer() {
	if r.turnStop != nil {
		close(r.turnStop)
		r.turnStop = nil
	}
	r.turnEpoch++
}

func (r *Room) handleTurnExpired(msg turnExpired) {
	if msg.epoch != r.turnEpoch || r.closed || r.pendingForfeit || r.game.Finished {
		return
	}
	now := time.Now()
	active := r.game.ActivePlayer()
	charged := match.ChargeTime(r.game, active, now.Sub(r.turnStart))
	if charged.TimeBudgets[active] > 0 {
		// Fired early relative to the budget actually spent; re-arm for
		// the remainder.
		r.game = charged
		r.turnStart = now
		r.armTurnTimer()
		return
	}
	r.resolveExhausted(charged, active, now)
}

// resolveExhausted handles a spent clock. During the opening the protocol's
// default action keeps the game alive; in the main phase the stalled player
// loses on time.
func (r *Room) resolveExhausted(charged match.GameState, playerID string, now time.Time) {
	if charged.Phase == match.PhaseOpening {
		next, err := match.OpeningTimeout(charged, r.rnd, now)
		if err == nil {
			r.log.Info("opening clock ran out, default action applied",
				zap.String("player_id", playerID))
			r.commit(next, now)
			return
		}
		r.log.Error("opening default action failed", zap.Error(err))
	}
	r.log.Info("time budget exhausted", zap.String("player_id", playerID))
	r.commit(match.TimeoutLoss(charged, playerID), now)
}

// finishGame reports the finished game to the series layer off-loop.
func (r *Room) finishGame(now time.Time) {
	g := r.game
	duration := now.Sub(r.gameStart)
	moves, err := json.Marshal(g.Moves)
	if err != nil {
		r.log.Error("marshal moves", zap.Error(err))
	}

	go func() {
		params := series.EndGameParams{
			SeriesID: r.cfg.SeriesID,
			MatchID:  g.GameID,
			WinnerID: g.Winner,
			Forfeit:  g.EndReason == match.EndForfeit,
			Duration: duration,
			Moves:    moves,
		}
		res, err := r.series.EndGame(r.ctx, params)
		if err != nil {
			r.post(gameEnded{err: err})
			return
		}
		var next *series.NextGameInfo
		if !res.SeriesComplete {
			next, err = r.series.PrepareNextGame(r.ctx, r.cfg.SeriesID)
		}
		r.post(gameEnded{result: res, next: next, err: err})
	}()
}

func (r *Room) handleGameEnded(msg gameEnded) {
	if r.closed {
		return
	}
	if msg.err != nil {
		// The game result is already durable in the room row; series
		// bookkeeping failed after retries. Isolate the failure to this
		// room and leave it for manual resolution.
		r.log.Error("series end-game failed", zap.Error(msg.err))
		r.pendingForfeit = true
		r.stopTurnTimer()
		r.broadcast(r.event(types.EvtRoomPendingForfeit, nil))
		return
	}
	res := msg.result

	r.broadcast(r.event(types.EvtGameOver, types.GameOverPayload{
		WinnerID:   res.WinnerID,
		Reason:     string(r.game.EndReason),
		GameNumber: res.GameNumber,
		Score:      res.Score,
	}))

	if res.SeriesComplete {
		payload := types.SeriesCompletePayload{
			WinnerID:   res.SeriesWinner,
			FinalScore: res.Score,
		}
		if res.Rewards != nil {
			payload.Points = res.Rewards.Points
			payload.RankChanges = res.Rewards.RankChanges
		}
		r.broadcast(r.event(types.EvtSeriesComplete, payload))
		r.markStatus(store.RoomClosed)
		r.shutdown()
		return
	}

	if msg.next != nil {
		r.broadcast(r.event(types.EvtNextGame, types.NextGamePayload{
			GameNumber: msg.next.GameNumber,
			Score:      msg.next.Score,
			OpenerID:   msg.next.OpenerID,
		}))
		now := time.Now()
		r.game = r.newGame(msg.next.OpenerID, now)
		r.gameStart = now
		r.turnStart = now
		r.version++
		r.queueSave()
		r.broadcast(r.snapshotEvent())
		r.armTurnTimer()
	}
}

// markStatus updates the room row lifecycle off-loop, best effort. It runs
// on a detached context because the room may already be shutting down.
func (r *Room) markStatus(status string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := r.retry.Do(ctx, func(ctx context.Context) error {
			return r.store.MarkRoomStatus(ctx, r.cfg.RoomID, status)
		})
		if err != nil {
			r.log.Error("mark room status failed", zap.String("status", status), zap.Error(err))
		}
	}()
}

// queueSave hands the current blob to the persist goroutine. Saves are
// sequenced per room so revisions stay monotonic; the loop never blocks on
// the network.
func (r *Room) queueSave() {
	blob, err := match.Marshal(r.game)
	if err != nil {
		r.log.Error("marshal game state", zap.Error(err))
		return
	}
	select {
	case r.saveCh <- saveReq{blob: blob}:
	default:
		r.log.Warn("save queue full, dropping intermediate snapshot")
	}
}

// persistLoop writes blobs in order with the optimistic revision this room
// has observed; a stale-revision error means some other writer touched the
// row and is surfaced loudly rather than silently overwritten. The loop
// runs on its own context so a queued final snapshot still lands after the
// room shuts down; it exits once the queue is closed and drained.
func (r *Room) persistLoop() {
	rev := r.persistRev
	for req := range r.saveCh {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := r.retry.Do(ctx, func(ctx context.Context) error {
			newRev, err := r.store.SaveGameState(ctx, r.cfg.RoomID, r.cfg.SeriesID, req.blob, rev)
			if err == nil {
				rev = newRev
			}
			return err
		})
		cancel()
		if err != nil {
			r.log.Error("persist game state failed", zap.Int64("revision", rev), zap.Error(err))
		}
	}
}
