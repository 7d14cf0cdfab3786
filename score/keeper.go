// score/keeper.go
package score

import (
	"sort"

	"github.com/wfunc/simonserver/models"
)

// Keeper tracks per-player scores and eliminations for one room. It is not
// safe for concurrent use; the owning room serializes access.
type Keeper struct {
	players []*models.Player
	joinIdx map[string]int
	nextIdx int
}

func NewKeeper() *Keeper {
	return &Keeper{joinIdx: make(map[string]int)}
}

// Track starts bookkeeping for p. Tracking an already tracked id is a no-op.
func (k *Keeper) Track(p *models.Player) {
	if _, ok := k.joinIdx[p.ID]; ok {
		return
	}
	k.joinIdx[p.ID] = k.nextIdx
	k.nextIdx++
	k.players = append(k.players, p)
}

func (k *Keeper) Untrack(playerID string) {
	if _, ok := k.joinIdx[playerID]; !ok {
		return
	}
	delete(k.joinIdx, playerID)
	for i, p := range k.players {
		if p.ID == playerID {
			k.players = append(k.players[:i], k.players[i+1:]...)
			break
		}
	}
}

func (k *Keeper) get(playerID string) (*models.Player, error) {
	for _, p := range k.players {
		if p.ID == playerID {
			return p, nil
		}
	}
	return nil, models.ErrPlayerNotFound
}

// RecordSuccess adds one point and returns the new score.
func (k *Keeper) RecordSuccess(playerID string) (int, error) {
	p, err := k.get(playerID)
	if err != nil {
		return 0, err
	}
	if p.IsEliminated {
		return p.Score, models.ErrPlayerEliminated
	}
	p.Score++
	return p.Score, nil
}

// RecordElimination marks the player out at round. A second call keeps the
// first round.
func (k *Keeper) RecordElimination(playerID string, round int) error {
	p, err := k.get(playerID)
	if err != nil {
		return err
	}
	if p.IsEliminated {
		return nil
	}
	p.IsEliminated = true
	p.EliminatedRound = round
	return nil
}

// Active returns the non-eliminated players in join order.
func (k *Keeper) Active() []*models.Player {
	active := make([]*models.Player, 0, len(k.players))
	for _, p := range k.players {
		if !p.IsEliminated {
			active = append(active, p)
		}
	}
	return active
}

// Reset zeroes every score and clears eliminations.
func (k *Keeper) Reset() {
	for _, p := range k.players {
		p.Score = 0
		p.IsEliminated = false
		p.EliminatedRound = 0
	}
}

// Standings orders players by score, then by how long they survived, then by
// join order.
func (k *Keeper) Standings() []models.Standing {
	ordered := make([]*models.Player, len(k.players))
	copy(ordered, k.players)

	survived := func(p *models.Player) int {
		if !p.IsEliminated {
			return int(^uint(0) >> 1)
		}
		return p.EliminatedRound
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if survived(a) != survived(b) {
			return survived(a) > survived(b)
		}
		return k.joinIdx[a.ID] < k.joinIdx[b.ID]
	})

	standings := make([]models.Standing, 0, len(ordered))
	for i, p := range ordered {
		standings = append(standings, models.Standing{
			Rank:            i + 1,
			PlayerID:        p.ID,
			DisplayName:     p.DisplayName,
			AvatarID:        p.AvatarID,
			Score:           p.Score,
			EliminatedRound: p.EliminatedRound,
		})
	}
	return standings
}

// Scores maps player id to score.
func (k *Keeper) Scores() map[string]int {
	scores := make(map[string]int, len(k.players))
	for _, p := range k.players {
		scores[p.ID] = p.Score
	}
	return scores
}
