package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gomoku-arena/arena-backend/internal/match"
	"github.com/gomoku-arena/arena-backend/internal/series"
	"github.com/gomoku-arena/arena-backend/internal/store"
	"github.com/gomoku-arena/arena-backend/pkg/types"
)

// handleDisconnect starts the grace window for a dropped player. A second
// disconnect inside the double-disconnect window resolves the room as a
// draw with no rating change, pre-empting the forfeit path entirely. The
// rules apply the same during the opening phase; a forfeit simply discards
// any in-progress opening state.
func (r *Room) handleDisconnect(msg Disconnected, now time.Time) {
	playerID := msg.PlayerID
	if conn, ok := r.conns[playerID]; ok && conn != msg.ConnID {
		// A dead socket the player already replaced; they are connected
		// and stay untouched.
		return
	}
	if r.closed || r.game.Finished {
		delete(r.clients, playerID)
		delete(r.conns, playerID)
		return
	}
	if playerID != r.cfg.Player1 && playerID != r.cfg.Player2 {
		delete(r.clients, playerID)
		delete(r.conns, playerID)
		return
	}
	if _, ok := r.disconnects[playerID]; ok {
		return
	}
	delete(r.clients, playerID)
	delete(r.conns, playerID)

	remaining := r.cfg.Player1
	if playerID == r.cfg.Player1 {
		remaining = r.cfg.Player2
	}

	if other, ok := r.disconnects[remaining]; ok && now.Sub(other.at) <= r.cfg.DoubleWindow {
		r.resolveDoubleDisconnect(other)
		return
	}

	r.epoch++
	ds := &disconnectState{
		playerID:  playerID,
		remaining: remaining,
		at:        now,
		epoch:     r.epoch,
		stop:      make(chan struct{}),
	}
	r.disconnects[playerID] = ds

	r.log.Info("player disconnected, grace window started",
		zap.String("player_id", playerID),
		zap.Duration("grace", r.cfg.GraceTimeout))

	r.sendTo(remaining, r.event(types.EvtOpponentDisconnected, types.DisconnectPayload{
		PlayerID:    playerID,
		GraceMillis: r.cfg.GraceTimeout.Milliseconds(),
	}))

	go r.runGraceTimer(ds)
}

// runGraceTimer owns the two cancellable timers of one disconnect: the
// grace deadline and the once-per-interval countdown notification.
func (r *Room) runGraceTimer(ds *disconnectState) {
	deadline := ds.at.Add(r.cfg.GraceTimeout)
	grace := time.NewTimer(r.cfg.GraceTimeout)
	tick := time.NewTicker(r.cfg.TickInterval)
	defer grace.Stop()
	defer tick.Stop()

	for {
		select {
		case <-ds.stop:
			return
		case <-r.ctx.Done():
			return
		case now := <-tick.C:
			left := int(deadline.Sub(now).Round(time.Second) / time.Second)
			if left < 0 {
				left = 0
			}
			r.post(countdownTick{playerID: ds.playerID, epoch: ds.epoch, secondsLeft: left})
		case <-grace.C:
			r.post(graceExpired{playerID: ds.playerID, epoch: ds.epoch})
			return
		}
	}
}

func (r *Room) handleTick(msg countdownTick) {
	ds, ok := r.disconnects[msg.playerID]
	if !ok || ds.epoch != msg.epoch {
		return // stale fire from a cancelled window
	}
	r.sendTo(ds.remaining, r.event(types.EvtDisconnectCountdown, types.CountdownPayload{
		DisconnectedPlayer: msg.playerID,
		SecondsLeft:        msg.secondsLeft,
	}))
}

// handleGraceExpired runs the forfeit resolution off-loop: the persistence
// forfeit endpoint with bounded retries, then series bookkeeping.
func (r *Room) handleGraceExpired(msg graceExpired) {
	ds, ok := r.disconnects[msg.playerID]
	if !ok || ds.epoch != msg.epoch {
		return
	}
	ds.resolving = true

	r.log.Info("grace period expired, forfeiting",
		zap.String("player_id", msg.playerID))

	gameID := r.game.GameID
	duration := time.Since(r.gameStart)
	go func() {
		var res store.ForfeitResult
		err := r.retry.Do(r.ctx, func(ctx context.Context) error {
			var err error
			res, err = r.store.ForfeitSeries(ctx, r.cfg.SeriesID, msg.playerID)
			return err
		})
		if err != nil {
			r.post(forfeitResolved{playerID: msg.playerID, epoch: msg.epoch, err: err})
			return
		}
		end, err := r.series.EndGame(r.ctx, series.EndGameParams{
			SeriesID: r.cfg.SeriesID,
			MatchID:  gameID,
			WinnerID: res.WinnerID,
			Forfeit:  true,
			Duration: duration,
		})
		if err != nil {
			// The forfeit itself is durable; only series bookkeeping failed.
			r.log.Error("series end-game after forfeit failed", zap.Error(err))
		}
		r.post(forfeitResolved{playerID: msg.playerID, epoch: msg.epoch, result: res, endGame: end})
	}()
}

func (r *Room) handleForfeitResolved(msg forfeitResolved) {
	ds, ok := r.disconnects[msg.playerID]
	if !ok || ds.epoch != msg.epoch {
		return
	}
	delete(r.disconnects, msg.playerID)

	if msg.err != nil {
		// All retries failed: deliberately degrade to a manual marker
		// instead of guessing. The room stops accepting actions but does
		// not crash.
		r.log.Error("forfeit persistence failed, room left pending",
			zap.String("player_id", msg.playerID), zap.Error(msg.err))
		r.pendingForfeit = true
		r.stopTurnTimer()
		r.markStatus(store.RoomPendingForfeit)
		r.broadcast(r.event(types.EvtRoomPendingForfeit, nil))
		return
	}

	res := msg.result
	r.game = match.TimeoutLoss(r.game, msg.playerID)
	r.game.EndReason = match.EndForfeit
	r.version++

	forfeit := types.ForfeitPayload{
		WinnerID:    res.WinnerID,
		LoserID:     res.LoserID,
		WinnerDelta: res.WinnerDelta,
		LoserDelta:  res.LoserDelta,
		FinalScore:  res.FinalScore,
	}
	r.sendTo(res.WinnerID, r.event(types.EvtAutoWin, forfeit))
	r.sendTo(res.LoserID, r.event(types.EvtForfeitLoss, forfeit))

	if msg.endGame != nil && msg.endGame.SeriesComplete {
		payload := types.SeriesCompletePayload{
			WinnerID:   res.WinnerID,
			FinalScore: res.FinalScore,
		}
		if msg.endGame.Rewards != nil {
			payload.Points = msg.endGame.Rewards.Points
			payload.RankChanges = msg.endGame.Rewards.RankChanges
		}
		r.broadcast(r.event(types.EvtSeriesComplete, payload))
	}
	r.queueSave() // final blob must show the forfeit outcome
	r.shutdown()
}

// resolveDoubleDisconnect clears the room as a draw: both players dropped
// within the window, nobody forfeits, nobody gains or loses points.
func (r *Room) resolveDoubleDisconnect(first *disconnectState) {
	r.log.Info("both players disconnected, resolving as draw",
		zap.String("first", first.playerID))

	close(first.stop)
	delete(r.disconnects, first.playerID)

	r.game.Finished = true
	r.game.EndReason = match.EndDraw
	r.version++

	r.queueSave() // final blob must show the draw outcome
	r.markStatus(store.RoomClosed)
	r.shutdown()
}
