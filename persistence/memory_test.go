package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/simonserver/models"
)

func sampleRecord(code string, finished time.Time, players ...string) *models.GameRecord {
	rec := &models.GameRecord{
		RoomCode:     code,
		RoundsPlayed: 3,
		StartedAt:    finished.Add(-time.Minute),
		FinishedAt:   finished,
	}
	for i, id := range players {
		rec.Standings = append(rec.Standings, models.Standing{
			Rank:     i + 1,
			PlayerID: id,
			Score:    len(players) - i,
		})
	}
	if len(players) > 0 {
		rec.WinnerID = players[0]
	}
	rec.Solo = len(players) == 1
	return rec
}

// exerciseRecorder runs the behaviour every Recorder must share.
func exerciseRecorder(t *testing.T, r Recorder) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := sampleRecord("AAAAAA", base, "p1", "p2")
	second := sampleRecord("BBBBBB", base.Add(time.Hour), "p2")
	third := sampleRecord("CCCCCC", base.Add(2*time.Hour), "p3", "p1")
	for _, rec := range []*models.GameRecord{first, second, third} {
		require.NoError(t, r.SaveGameRecord(ctx, rec))
		require.NotZero(t, rec.ID)
	}

	got, err := r.GameRecord(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", got.RoomCode)
	assert.True(t, got.Solo)
	require.Len(t, got.Standings, 1)
	assert.Equal(t, "p2", got.Standings[0].PlayerID)
	assert.True(t, got.FinishedAt.Equal(second.FinishedAt))

	_, err = r.GameRecord(ctx, 999999)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	recent, err := r.RecentGameRecords(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "CCCCCC", recent[0].RoomCode)
	assert.Equal(t, "BBBBBB", recent[1].RoomCode)

	mine, err := r.PlayerGameRecords(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "CCCCCC", mine[0].RoomCode)
	assert.Equal(t, "AAAAAA", mine[1].RoomCode)

	none, err := r.PlayerGameRecords(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseRecorder(t, store)
	assert.NoError(t, store.Close())
}

func TestMemoryStore_CopiesStandings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := sampleRecord("AAAAAA", time.Now(), "p1")
	require.NoError(t, store.SaveGameRecord(ctx, rec))

	rec.Standings[0].Score = 99
	got, err := store.GameRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Standings[0].Score)
}

func TestOpen(t *testing.T) {
	r, err := Open(context.Background(), "", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, r)

	_, err = Open(context.Background(), "mongo", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultLimit, clampLimit(0))
	assert.Equal(t, defaultLimit, clampLimit(-5))
	assert.Equal(t, defaultLimit, clampLimit(1000))
	assert.Equal(t, 7, clampLimit(7))
}

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"host=db port=5432 user=simon password=secret dbname=simon sslmode=disable",
		DSN("db", 5432, "simon", "secret", "simon", ""))
}
