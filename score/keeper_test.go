package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/simonserver/models"
)

func newKeeper(ids ...string) *Keeper {
	k := NewKeeper()
	for _, id := range ids {
		k.Track(&models.Player{ID: id, DisplayName: id})
	}
	return k
}

func TestKeeper_RecordSuccess(t *testing.T) {
	k := newKeeper("a", "b")

	s, err := k.RecordSuccess("a")
	require.NoError(t, err)
	assert.Equal(t, 1, s)

	s, err = k.RecordSuccess("a")
	require.NoError(t, err)
	assert.Equal(t, 2, s)

	_, err = k.RecordSuccess("nobody")
	assert.ErrorIs(t, err, models.ErrPlayerNotFound)
}

func TestKeeper_EliminatedPlayerCannotScore(t *testing.T) {
	k := newKeeper("a")
	require.NoError(t, k.RecordElimination("a", 3))

	_, err := k.RecordSuccess("a")
	assert.ErrorIs(t, err, models.ErrPlayerEliminated)
	assert.Equal(t, 0, k.Scores()["a"])
}

func TestKeeper_EliminationKeepsFirstRound(t *testing.T) {
	k := newKeeper("a")
	require.NoError(t, k.RecordElimination("a", 2))
	require.NoError(t, k.RecordElimination("a", 5))

	assert.Equal(t, 2, k.Standings()[0].EliminatedRound)
	assert.Empty(t, k.Active())
}

func TestKeeper_Standings(t *testing.T) {
	k := newKeeper("a", "b", "c", "d")

	// a: 2 points, out in round 3. b: 2 points, still in. c: 0 points, out round 1.
	// d: 2 points, out in round 3, joined after a.
	for _, id := range []string{"a", "b", "d"} {
		_, _ = k.RecordSuccess(id)
		_, _ = k.RecordSuccess(id)
	}
	require.NoError(t, k.RecordElimination("c", 1))
	require.NoError(t, k.RecordElimination("a", 3))
	require.NoError(t, k.RecordElimination("d", 3))

	st := k.Standings()
	require.Len(t, st, 4)

	order := []string{st[0].PlayerID, st[1].PlayerID, st[2].PlayerID, st[3].PlayerID}
	assert.Equal(t, []string{"b", "a", "d", "c"}, order)
	for i, s := range st {
		assert.Equal(t, i+1, s.Rank)
	}
}

func TestKeeper_ResetAndUntrack(t *testing.T) {
	k := newKeeper("a", "b")
	_, _ = k.RecordSuccess("a")
	require.NoError(t, k.RecordElimination("b", 1))

	k.Reset()
	assert.Equal(t, map[string]int{"a": 0, "b": 0}, k.Scores())
	assert.Len(t, k.Active(), 2)

	k.Untrack("a")
	assert.Len(t, k.Active(), 1)
	assert.Equal(t, "b", k.Active()[0].ID)

	// Re-tracking puts the player at the back of the join order.
	k.Track(&models.Player{ID: "a"})
	assert.Equal(t, "a", k.Standings()[1].PlayerID)
}
