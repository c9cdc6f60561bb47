// Package store is the persistence boundary: room rows with GameState
// blobs, series rows, match rows for replay, and the forfeit endpoint. The
// in-memory room session is a cache over these rows; the rows are the
// durable source of truth.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gomoku-arena/arena-backend/internal/series"
)

var ErrNotFound = errors.New("row not found")
var ErrStaleRevision = errors.New("stale revision")

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to postgres and migrates the schema.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&RoomRow{}, &SeriesRow{}, &MatchRow{}, &PlayerPointsRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return New(db, log), nil
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log.Named("store")}
}

// SaveGameState upserts the room's state blob with an optimistic revision
// check: expectedRevision must match the stored row (0 creates the row).
// Returns the new revision.
func (s *Store) SaveGameState(ctx context.Context, roomID, seriesID string, blob []byte, expectedRevision int64) (int64, error) {
	if expectedRevision == 0 {
		row := RoomRow{ID: roomID, SeriesID: seriesID, Status: RoomActive, State: blob, Revision: 1}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return 0, fmt.Errorf("create room row: %w", err)
		}
		return 1, nil
	}

	res := s.db.WithContext(ctx).Model(&RoomRow{}).
		Where("id = ? AND revision = ?", roomID, expectedRevision).
		Updates(map[string]any{
			"state":    blob,
			"revision": expectedRevision + 1,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("update room row: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrStaleRevision
	}
	return expectedRevision + 1, nil
}

// LoadRoom fetches the durable room row, from which the in-memory session
// is reconstructed after a restart.
func (s *Store) LoadRoom(ctx context.Context, roomID string) (*RoomRow, error) {
	var row RoomRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkRoomStatus transitions the room row lifecycle state.
func (s *Store) MarkRoomStatus(ctx context.Context, roomID, status string) error {
	res := s.db.WithContext(ctx).Model(&RoomRow{}).
		Where("id = ?", roomID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSeries implements series.Store.
func (s *Store) CreateSeries(ctx context.Context, sr *series.Series) error {
	return s.db.WithContext(ctx).Create(toSeriesRow(sr)).Error
}

// LoadSeries implements series.Store.
func (s *Store) LoadSeries(ctx context.Context, id string) (*series.Series, error) {
	var row SeriesRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, series.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromSeriesRow(&row), nil
}

// SaveSeries implements series.Store. Writes against an already-completed
// series are rejected as stale; the revision counter is bumped for audit
// but not compared (EndGame is the row's only writer).
func (s *Store) SaveSeries(ctx context.Context, sr *series.Series) error {
	row := toSeriesRow(sr)
	res := s.db.WithContext(ctx).Model(&SeriesRow{}).
		Where("id = ? AND is_complete = ?", sr.ID, false).
		Updates(map[string]any{
			"player1_wins": row.Player1Wins,
			"player2_wins": row.Player2Wins,
			"current_game": row.CurrentGame,
			"opener_id":    row.OpenerID,
			"is_complete":  row.IsComplete,
			"forfeited":    row.Forfeited,
			"winner_id":    row.WinnerID,
			"revision":     gorm.Expr("revision + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleRevision
	}
	return nil
}

// SaveMatch implements series.Store.
func (s *Store) SaveMatch(ctx context.Context, rec series.MatchRecord) error {
	row := MatchRow{
		ID:         rec.MatchID,
		SeriesID:   rec.SeriesID,
		GameNumber: rec.GameNumber,
		WinnerID:   rec.WinnerID,
		Forfeit:    rec.Forfeit,
		DurationMS: rec.Duration.Milliseconds(),
		Moves:      rec.MovesBlob,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func toSeriesRow(sr *series.Series) *SeriesRow {
	return &SeriesRow{
		ID:          sr.ID,
		Player1ID:   sr.Player1,
		Player2ID:   sr.Player2,
		Player1Wins: sr.Wins[sr.Player1],
		Player2Wins: sr.Wins[sr.Player2],
		CurrentGame: sr.CurrentGame,
		OpenerID:    sr.OpenerID,
		IsComplete:  sr.IsComplete,
		Forfeited:   sr.Forfeited,
		WinnerID:    sr.WinnerID,
	}
}

func fromSeriesRow(row *SeriesRow) *series.Series {
	return &series.Series{
		ID:      row.ID,
		Player1: row.Player1ID,
		Player2: row.Player2ID,
		Wins: map[string]int{
			row.Player1ID: row.Player1Wins,
			row.Player2ID: row.Player2Wins,
		},
		CurrentGame: row.CurrentGame,
		OpenerID:    row.OpenerID,
		IsComplete:  row.IsComplete,
		Forfeited:   row.Forfeited,
		WinnerID:    row.WinnerID,
	}
}
