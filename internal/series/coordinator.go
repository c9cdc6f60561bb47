package series

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gomoku-arena/arena-backend/internal/retry"
)

// ForfeitDelta is the fixed rating adjustment applied on a forfeit outcome:
// +20 for the remaining player, -20 for the one who left.
const ForfeitDelta = 20

// Coordinator drives a series through its games. Collaborators are injected
// at construction; there is no global registry.
type Coordinator struct {
	store   Store
	rewards RewardService
	retry   retry.Policy
	log     *zap.Logger
}

func NewCoordinator(store Store, rewards RewardService, log *zap.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		rewards: rewards,
		retry:   retry.Default,
		log:     log.Named("series"),
	}
}

// StartSeries creates and persists a fresh 0-0 series. Player1 opens game 1.
func (c *Coordinator) StartSeries(ctx context.Context, player1, player2 string) (*Series, error) {
	s := &Series{
		ID:          uuid.NewString(),
		Player1:     player1,
		Player2:     player2,
		Wins:        map[string]int{player1: 0, player2: 0},
		CurrentGame: 1,
		OpenerID:    player1,
	}
	if err := c.store.CreateSeries(ctx, s); err != nil {
		return nil, fmt.Errorf("create series: %w", err)
	}
	return s, nil
}

// EndGame records one finished game: increments the winner's count (a draw
// increments neither), re-derives the opening assignment for the next game,
// detects completion at two wins, and applies rewards on completion. A
// forfeit completes the series outright since the opponent is gone.
func (c *Coordinator) EndGame(ctx context.Context, p EndGameParams) (*Result, error) {
	s, err := c.store.LoadSeries(ctx, p.SeriesID)
	if err != nil {
		return nil, fmt.Errorf("load series %s: %w", p.SeriesID, err)
	}
	if s.IsComplete {
		return nil, ErrAlreadyComplete
	}

	gameNumber := s.CurrentGame
	if p.WinnerID != "" {
		s.Wins[p.WinnerID]++
	}

	switch {
	case p.Forfeit:
		s.IsComplete = true
		s.Forfeited = true
		s.WinnerID = p.WinnerID
	case p.WinnerID != "" && s.Wins[p.WinnerID] >= winsNeeded:
		s.IsComplete = true
		s.WinnerID = p.WinnerID
	case gameNumber >= maxGames:
		// Draws can leave all three games played without a two-win player.
		// The wins leader takes the series; a tie ends it with no winner
		// and no rewards.
		s.IsComplete = true
		switch {
		case s.Wins[s.Player1] > s.Wins[s.Player2]:
			s.WinnerID = s.Player1
		case s.Wins[s.Player2] > s.Wins[s.Player1]:
			s.WinnerID = s.Player2
		}
	}

	if !s.IsComplete {
		// The opening protocol re-runs from placement every game; the loser
		// of the game just played gets to open the next one. After a draw
		// the opener alternates.
		switch {
		case p.WinnerID == "":
			s.OpenerID = s.opponent(s.OpenerID)
		default:
			s.OpenerID = s.opponent(p.WinnerID)
		}
		s.CurrentGame++
	}

	if err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.store.SaveSeries(ctx, s)
	}); err != nil {
		return nil, fmt.Errorf("save series %s: %w", s.ID, err)
	}

	rec := MatchRecord{
		MatchID:    p.MatchID,
		SeriesID:   s.ID,
		GameNumber: gameNumber,
		WinnerID:   p.WinnerID,
		Forfeit:    p.Forfeit,
		Duration:   p.Duration,
		MovesBlob:  p.Moves,
	}
	if err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.store.SaveMatch(ctx, rec)
	}); err != nil {
		// The series row is authoritative; a lost match row degrades replay
		// only. Log and continue.
		c.log.Error("save match record failed",
			zap.String("series_id", s.ID),
			zap.String("match_id", p.MatchID),
			zap.Error(err))
	}

	res := &Result{
		SeriesID:       s.ID,
		GameNumber:     gameNumber,
		WinnerID:       p.WinnerID,
		Score:          s.Score(),
		SeriesComplete: s.IsComplete,
		SeriesWinner:   s.WinnerID,
		Forfeit:        p.Forfeit,
	}

	if s.IsComplete && s.WinnerID != "" {
		res.Rewards = c.applyRewards(ctx, s, p.Forfeit)
	}
	return res, nil
}

func (c *Coordinator) applyRewards(ctx context.Context, s *Series, forfeit bool) *RewardOutcome {
	if forfeit {
		// Fixed deltas on forfeit; the reward service is not consulted.
		return &RewardOutcome{
			Points: map[string]int{
				s.WinnerID:             ForfeitDelta,
				s.opponent(s.WinnerID): -ForfeitDelta,
			},
		}
	}

	var out RewardOutcome
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.rewards.ApplyRewards(ctx, s)
		return err
	})
	if err != nil {
		c.log.Error("apply rewards failed", zap.String("series_id", s.ID), zap.Error(err))
		return nil
	}
	return &out
}

// PrepareNextGame reports the upcoming game, or nil if the series is
// complete or unknown.
func (c *Coordinator) PrepareNextGame(ctx context.Context, seriesID string) (*NextGameInfo, error) {
	s, err := c.store.LoadSeries(ctx, seriesID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if s == nil || s.IsComplete {
		return nil, nil
	}
	return &NextGameInfo{
		GameNumber: s.CurrentGame,
		Score:      s.Score(),
		OpenerID:   s.OpenerID,
	}, nil
}
