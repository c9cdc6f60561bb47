// Package series wraps individual games into a best-of-three: score
// tracking, opening reassignment between games, completion detection, and
// reward application at the end.
package series

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("series not found")
var ErrAlreadyComplete = errors.New("series already complete")

const winsNeeded = 2
const maxGames = 3

// Series is the durable best-of-three record.
type Series struct {
	ID          string
	Player1     string
	Player2     string
	Wins        map[string]int
	CurrentGame int    // 1..3
	OpenerID    string // who places the tentative stones in the next opening
	IsComplete  bool
	WinnerID    string
	Forfeited   bool
}

func (s *Series) opponent(playerID string) string {
	if playerID == s.Player1 {
		return s.Player2
	}
	return s.Player1
}

// Score renders the running score from player1's perspective, e.g. "1-0".
func (s *Series) Score() string {
	return fmt.Sprintf("%d-%d", s.Wins[s.Player1], s.Wins[s.Player2])
}

// MatchRecord links one finished game to its series for replay and audit.
type MatchRecord struct {
	MatchID    string
	SeriesID   string
	GameNumber int
	WinnerID   string
	Forfeit    bool
	Duration   time.Duration
	MovesBlob  []byte
}

// Store is the persistence boundary the coordinator consumes.
type Store interface {
	CreateSeries(ctx context.Context, s *Series) error
	LoadSeries(ctx context.Context, id string) (*Series, error)
	SaveSeries(ctx context.Context, s *Series) error
	SaveMatch(ctx context.Context, rec MatchRecord) error
}

// RewardOutcome is what the reward service reports back after applying
// rating and point changes at series completion.
type RewardOutcome struct {
	Points      map[string]int
	RankChanges map[string]string
}

// RewardService computes and applies rating/point deltas. Invoked only at
// series completion; its internals are not this package's concern.
type RewardService interface {
	ApplyRewards(ctx context.Context, s *Series) (RewardOutcome, error)
}

// Result is the outcome of ending one game.
type Result struct {
	SeriesID       string
	GameNumber     int
	WinnerID       string // empty on draw
	Score          string
	SeriesComplete bool
	SeriesWinner   string
	Forfeit        bool
	Rewards        *RewardOutcome
}

// NextGameInfo describes the upcoming game of an unfinished series.
type NextGameInfo struct {
	GameNumber int
	Score      string
	OpenerID   string
}

// EndGameParams carries everything known about a finished game.
type EndGameParams struct {
	SeriesID string
	MatchID  string
	WinnerID string // empty for a draw
	Forfeit  bool
	Duration time.Duration
	Moves    []byte
}
