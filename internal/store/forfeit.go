package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fixed rating deltas applied on a disconnect forfeit.
const (
	ForfeitWinnerDelta = 20
	ForfeitLoserDelta  = -20
)

// ForfeitResult is the forfeit endpoint's response.
type ForfeitResult struct {
	WinnerID       string
	LoserID        string
	WinnerDelta    int
	LoserDelta     int
	SeriesComplete bool
	FinalScore     string
}

// ForfeitSeries is the persistence side of a disconnect forfeit: it applies
// the fixed point deltas and closes the room row in one transaction, and
// reports winner/loser so the caller can finish series bookkeeping. The
// series row itself stays untouched here; SeriesCoordinator.EndGame is the
// single writer for series state.
func (s *Store) ForfeitSeries(ctx context.Context, seriesID, disconnectedPlayerID string) (ForfeitResult, error) {
	var out ForfeitResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row SeriesRow
		if err := tx.First(&row, "id = ?", seriesID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if row.IsComplete {
			return fmt.Errorf("series %s already complete", seriesID)
		}

		winnerID := row.Player1ID
		if disconnectedPlayerID == row.Player1ID {
			winnerID = row.Player2ID
		}

		wWins, lWins := row.Player1Wins, row.Player2Wins
		if winnerID == row.Player2ID {
			wWins, lWins = row.Player2Wins, row.Player1Wins
		}

		if err := addPointsTx(tx, winnerID, ForfeitWinnerDelta); err != nil {
			return err
		}
		if err := addPointsTx(tx, disconnectedPlayerID, ForfeitLoserDelta); err != nil {
			return err
		}

		if err := tx.Model(&RoomRow{}).
			Where("series_id = ?", seriesID).
			Update("status", RoomClosed).Error; err != nil {
			return err
		}

		out = ForfeitResult{
			WinnerID:       winnerID,
			LoserID:        disconnectedPlayerID,
			WinnerDelta:    ForfeitWinnerDelta,
			LoserDelta:     ForfeitLoserDelta,
			SeriesComplete: true,
			FinalScore:     fmt.Sprintf("%d-%d", wWins+1, lWins),
		}
		return nil
	})
	if err != nil {
		return ForfeitResult{}, err
	}
	return out, nil
}

// AddPoints implements reward.PointStore.
func (s *Store) AddPoints(ctx context.Context, playerID string, delta int) (int, error) {
	var total int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := addPointsTx(tx, playerID, delta); err != nil {
			return err
		}
		var row PlayerPointsRow
		if err := tx.First(&row, "player_id = ?", playerID).Error; err != nil {
			return err
		}
		total = row.Points
		return nil
	})
	return total, err
}

func addPointsTx(tx *gorm.DB, playerID string, delta int) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"points":     gorm.Expr("player_points_rows.points + ?", delta),
			"updated_at": time.Now(),
		}),
	}).Create(&PlayerPointsRow{PlayerID: playerID, Points: delta}).Error
}
