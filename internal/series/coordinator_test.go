package series

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	series     map[string]*Series
	matches    []MatchRecord
	saveErrs   int // number of SaveSeries calls to fail before succeeding
	saveCalls  int
	matchErrs  int
	matchCalls int
}

func newMemStore() *memStore {
	return &memStore{series: map[string]*Series{}}
}

func (m *memStore) CreateSeries(_ context.Context, s *Series) error {
	cp := *s
	m.series[s.ID] = &cp
	return nil
}

func (m *memStore) LoadSeries(_ context.Context, id string) (*Series, error) {
	s, ok := m.series[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	cp.Wins = map[string]int{}
	for k, v := range s.Wins {
		cp.Wins[k] = v
	}
	return &cp, nil
}

func (m *memStore) SaveSeries(_ context.Context, s *Series) error {
	m.saveCalls++
	if m.saveErrs > 0 {
		m.saveErrs--
		return errors.New("transient store failure")
	}
	cp := *s
	m.series[s.ID] = &cp
	return nil
}

func (m *memStore) SaveMatch(_ context.Context, rec MatchRecord) error {
	m.matchCalls++
	if m.matchErrs > 0 {
		m.matchErrs--
		return errors.New("transient store failure")
	}
	m.matches = append(m.matches, rec)
	return nil
}

type fakeRewards struct {
	calls int
	err   error
}

func (f *fakeRewards) ApplyRewards(_ context.Context, s *Series) (RewardOutcome, error) {
	f.calls++
	if f.err != nil {
		return RewardOutcome{}, f.err
	}
	return RewardOutcome{
		Points:      map[string]int{s.WinnerID: 30, s.opponent(s.WinnerID): -30},
		RankChanges: map[string]string{s.WinnerID: "silver->gold"},
	}, nil
}

func newTestCoordinator(store Store, rewards RewardService) *Coordinator {
	c := NewCoordinator(store, rewards, zap.NewNop())
	c.retry.BaseDelay = time.Millisecond
	c.retry.MaxDelay = time.Millisecond
	return c
}

func TestStartSeries_Initial(t *testing.T) {
	st := newMemStore()
	c := newTestCoordinator(st, &fakeRewards{})

	s, err := c.StartSeries(context.Background(), "p1", "p2")
	require.NoError(t, err)
	require.Equal(t, 1, s.CurrentGame)
	require.Equal(t, "0-0", s.Score())
	require.Equal(t, "p1", s.OpenerID)
	require.False(t, s.IsComplete)
}

func TestEndGame_TwoWinsCompletesSeries(t *testing.T) {
	st := newMemStore()
	rw := &fakeRewards{}
	c := newTestCoordinator(st, rw)
	ctx := context.Background()

	s, err := c.StartSeries(ctx, "p1", "p2")
	require.NoError(t, err)

	res, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m1", WinnerID: "p1", Duration: time.Minute})
	require.NoError(t, err)
	require.Equal(t, "1-0", res.Score)
	require.False(t, res.SeriesComplete)
	require.Equal(t, 1, res.GameNumber)

	// Loser of game 1 opens game 2.
	next, err := c.PrepareNextGame(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 2, next.GameNumber)
	require.Equal(t, "1-0", next.Score)
	require.Equal(t, "p2", next.OpenerID)

	res, err = c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m2", WinnerID: "p1", Duration: time.Minute})
	require.NoError(t, err)
	require.Equal(t, "2-0", res.Score)
	require.True(t, res.SeriesComplete)
	require.Equal(t, "p1", res.SeriesWinner)
	require.Equal(t, 1, rw.calls)
	require.NotNil(t, res.Rewards)
	require.Equal(t, 30, res.Rewards.Points["p1"])

	// No game 3 is scheduled once a player has two wins.
	next, err = c.PrepareNextGame(ctx, s.ID)
	require.NoError(t, err)
	require.Nil(t, next)

	_, err = c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m3", WinnerID: "p2"})
	require.ErrorIs(t, err, ErrAlreadyComplete)
}

func TestEndGame_SplitGoesToGameThree(t *testing.T) {
	st := newMemStore()
	c := newTestCoordinator(st, &fakeRewards{})
	ctx := context.Background()

	s, _ := c.StartSeries(ctx, "p1", "p2")
	_, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m1", WinnerID: "p1"})
	require.NoError(t, err)
	res, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m2", WinnerID: "p2"})
	require.NoError(t, err)
	require.Equal(t, "1-1", res.Score)
	require.False(t, res.SeriesComplete)

	next, err := c.PrepareNextGame(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 3, next.GameNumber)
	require.Equal(t, "p1", next.OpenerID) // loser of game 2 opens game 3

	res, err = c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m3", WinnerID: "p2"})
	require.NoError(t, err)
	require.True(t, res.SeriesComplete)
	require.Equal(t, "p2", res.SeriesWinner)
}

func TestEndGame_DrawIncrementsNeither(t *testing.T) {
	st := newMemStore()
	c := newTestCoordinator(st, &fakeRewards{})
	ctx := context.Background()

	s, _ := c.StartSeries(ctx, "p1", "p2")
	res, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m1"})
	require.NoError(t, err)
	require.Equal(t, "0-0", res.Score)
	require.False(t, res.SeriesComplete)

	next, err := c.PrepareNextGame(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 2, next.GameNumber)
	require.Equal(t, "p2", next.OpenerID) // opener alternates after a draw
}

func TestEndGame_ThirdGameDrawGivesSeriesToLeader(t *testing.T) {
	st := newMemStore()
	rw := &fakeRewards{}
	c := newTestCoordinator(st, rw)
	ctx := context.Background()

	s, _ := c.StartSeries(ctx, "p1", "p2")
	_, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m1", WinnerID: "p1"})
	require.NoError(t, err)
	_, err = c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m2"})
	require.NoError(t, err)

	// Game 3 is drawn: three games played, nobody at two wins. The
	// one-win leader takes the series.
	res, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m3"})
	require.NoError(t, err)
	require.True(t, res.SeriesComplete)
	require.Equal(t, "p1", res.SeriesWinner)
	require.Equal(t, 1, rw.calls)

	next, err := c.PrepareNextGame(ctx, s.ID)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestEndGame_AllDrawsEndSeriesWithoutWinner(t *testing.T) {
	st := newMemStore()
	rw := &fakeRewards{}
	c := newTestCoordinator(st, rw)
	ctx := context.Background()

	s, _ := c.StartSeries(ctx, "p1", "p2")
	for _, id := range []string{"m1", "m2"} {
		_, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: id})
		require.NoError(t, err)
	}
	res, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m3"})
	require.NoError(t, err)
	require.True(t, res.SeriesComplete)
	require.Empty(t, res.SeriesWinner)
	require.Nil(t, res.Rewards)
	require.Equal(t, 0, rw.calls, "a drawn series awards nothing")

	next, err := c.PrepareNextGame(ctx, s.ID)
	require.NoError(t, err)
	require.Nil(t, next)

	_, err = c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m4", WinnerID: "p1"})
	require.ErrorIs(t, err, ErrAlreadyComplete)
}

func TestEndGame_ForfeitCompletesWithFixedDeltas(t *testing.T) {
	st := newMemStore()
	rw := &fakeRewards{}
	c := newTestCoordinator(st, rw)
	ctx := context.Background()

	s, _ := c.StartSeries(ctx, "p1", "p2")
	res, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m1", WinnerID: "p2", Forfeit: true})
	require.NoError(t, err)
	require.True(t, res.SeriesComplete)
	require.True(t, res.Forfeit)
	require.Equal(t, "p2", res.SeriesWinner)
	require.NotNil(t, res.Rewards)
	require.Equal(t, ForfeitDelta, res.Rewards.Points["p2"])
	require.Equal(t, -ForfeitDelta, res.Rewards.Points["p1"])
	require.Equal(t, 0, rw.calls, "reward service must not run on forfeit")
}

func TestEndGame_RetriesTransientSaveFailure(t *testing.T) {
	st := newMemStore()
	st.saveErrs = 2 // first two SaveSeries attempts fail
	c := newTestCoordinator(st, &fakeRewards{})
	ctx := context.Background()

	s, _ := c.StartSeries(ctx, "p1", "p2")
	_, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m1", WinnerID: "p1"})
	require.NoError(t, err)
	require.Equal(t, 3, st.saveCalls)
}

func TestEndGame_MatchRecordFailureIsNotFatal(t *testing.T) {
	st := newMemStore()
	st.matchErrs = 10 // all attempts fail
	c := newTestCoordinator(st, &fakeRewards{})
	ctx := context.Background()

	s, _ := c.StartSeries(ctx, "p1", "p2")
	res, err := c.EndGame(ctx, EndGameParams{SeriesID: s.ID, MatchID: "m1", WinnerID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "1-0", res.Score)
	require.Empty(t, st.matches)
}

func TestPrepareNextGame_UnknownSeriesIsNil(t *testing.T) {
	c := newTestCoordinator(newMemStore(), &fakeRewards{})
	next, err := c.PrepareNextGame(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, next)
}
