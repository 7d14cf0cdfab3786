// sequence/sequence.go
package sequence

import (
	"math/rand/v2"
	"strings"

	"github.com/wfunc/simonserver/models"
)

// Palette is the fixed set of colors on the board.
var Palette = []models.Color{
	models.ColorRed,
	models.ColorGreen,
	models.ColorBlue,
	models.ColorYellow,
}

// Generator produces the next element of a round sequence.
type Generator interface {
	Next(existing []models.Color) models.Color
}

// RandomGenerator draws uniformly from Palette.
type RandomGenerator struct {
	rng *rand.Rand
}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededGenerator is deterministic for a given seed.
func NewSeededGenerator(seed uint64) *RandomGenerator {
	return &RandomGenerator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *RandomGenerator) Next(existing []models.Color) models.Color {
	return Palette[g.rng.IntN(len(Palette))]
}

// Append returns a new slice holding existing plus exactly one generated
// element. The input slice is never modified.
func Append(g Generator, existing []models.Color) []models.Color {
	next := make([]models.Color, len(existing), len(existing)+1)
	copy(next, existing)
	return append(next, g.Next(existing))
}

// ParseColor validates a client supplied color.
func ParseColor(s string) (models.Color, error) {
	c := models.Color(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range Palette {
		if p == c {
			return c, nil
		}
	}
	return "", models.ErrInvalidColor
}

// Matches reports whether answer equals seq element by element.
func Matches(seq, answer []models.Color) bool {
	if len(seq) != len(answer) {
		return false
	}
	for i := range seq {
		if seq[i] != answer[i] {
			return false
		}
	}
	return true
}
