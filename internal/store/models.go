package store

import (
	"time"

	"gorm.io/datatypes"
)

// Room lifecycle statuses.
const (
	RoomActive         = "active"
	RoomPendingForfeit = "pending_forfeit" // forfeit persistence failed; manual resolution
	RoomClosed         = "closed"
)

// RoomRow holds the durable per-room state: the versioned GameState JSON
// blob plus an optimistic-concurrency revision.
type RoomRow struct {
	ID        string `gorm:"primaryKey"`
	SeriesID  string `gorm:"index"`
	Status    string
	State     datatypes.JSON
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SeriesRow struct {
	ID          string `gorm:"primaryKey"`
	Player1ID   string
	Player2ID   string
	Player1Wins int
	Player2Wins int
	CurrentGame int
	OpenerID    string
	IsComplete  bool
	Forfeited   bool
	WinnerID    string
	Revision    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MatchRow links one finished game to its series for replay and audit.
type MatchRow struct {
	ID         string `gorm:"primaryKey"`
	SeriesID   string `gorm:"index"`
	GameNumber int
	WinnerID   string
	Forfeit    bool
	DurationMS int64
	Moves      datatypes.JSON
	CreatedAt  time.Time
}

// PlayerPointsRow is the MindPoint total per player.
type PlayerPointsRow struct {
	PlayerID  string `gorm:"primaryKey"`
	Points    int
	UpdatedAt time.Time
}
