// Package reward computes and applies MindPoint changes at series
// completion. It implements the series.RewardService boundary; anything
// beyond point arithmetic (shop balance, notifications) is out of scope.
package reward

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gomoku-arena/arena-backend/internal/series"
)

const (
	basePoints  = 25 // winner gain for a 2-1 series
	sweepBonus  = 10 // extra for a 2-0 sweep
	loserPoints = -15
)

// Ranks in ascending order; thresholds are cumulative MindPoints.
var rankLadder = []struct {
	Name      string
	Threshold int
}{
	{"bronze", 0},
	{"silver", 200},
	{"gold", 500},
	{"platinum", 1000},
	{"diamond", 2000},
}

// PointStore persists player point totals. The room/series layers never see
// it directly; it is injected into the Service.
type PointStore interface {
	AddPoints(ctx context.Context, playerID string, delta int) (total int, err error)
}

type Service struct {
	points PointStore
	log    *zap.Logger
}

func NewService(points PointStore, log *zap.Logger) *Service {
	return &Service{points: points, log: log.Named("reward")}
}

// Plan is the computed (not yet applied) outcome for a completed series.
type Plan struct {
	WinnerDelta int
	LoserDelta  int
}

// CalculateRewards derives point deltas from the final score. A sweep pays
// a small bonus.
func (s *Service) CalculateRewards(sr *series.Series) Plan {
	p := Plan{WinnerDelta: basePoints, LoserDelta: loserPoints}
	if sr.Wins[sr.WinnerID] == 2 && sr.Wins[loser(sr)] == 0 {
		p.WinnerDelta += sweepBonus
	}
	return p
}

// ApplyRewards applies the plan through the point store and reports the new
// rank for any player whose total crossed a threshold.
func (s *Service) ApplyRewards(ctx context.Context, sr *series.Series) (series.RewardOutcome, error) {
	if sr.WinnerID == "" {
		return series.RewardOutcome{}, fmt.Errorf("series %s has no winner", sr.ID)
	}
	plan := s.CalculateRewards(sr)
	out := series.RewardOutcome{
		Points:      map[string]int{},
		RankChanges: map[string]string{},
	}

	for playerID, delta := range map[string]int{
		sr.WinnerID: plan.WinnerDelta,
		loser(sr):   plan.LoserDelta,
	} {
		total, err := s.points.AddPoints(ctx, playerID, delta)
		if err != nil {
			return series.RewardOutcome{}, fmt.Errorf("apply points for %s: %w", playerID, err)
		}
		out.Points[playerID] = delta
		if change := rankCrossing(total-delta, total); change != "" {
			out.RankChanges[playerID] = change
		}
	}

	s.log.Info("rewards applied",
		zap.String("series_id", sr.ID),
		zap.String("winner", sr.WinnerID),
		zap.Int("winner_delta", plan.WinnerDelta),
		zap.Int("loser_delta", plan.LoserDelta))
	return out, nil
}

func loser(sr *series.Series) string {
	if sr.WinnerID == sr.Player1 {
		return sr.Player2
	}
	return sr.Player1
}

func rankOf(total int) string {
	name := rankLadder[0].Name
	for _, r := range rankLadder {
		if total >= r.Threshold {
			name = r.Name
		}
	}
	return name
}

// rankCrossing reports "old->new" when the totals straddle a ladder step.
func rankCrossing(before, after int) string {
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	oldRank, newRank := rankOf(before), rankOf(after)
	if oldRank == newRank {
		return ""
	}
	return oldRank + "->" + newRank
}
