package analysis

import (
	"math"
	"sort"

	"gridwatch/internal/model"
)

// RankedHour is one hour-ending and its RT - DA spread.
type RankedHour struct {
	HE     int         `json:"he"`
	Spread model.Value `json:"spread"`
}

// RankBySpread orders hours with a known spread by absolute spread, largest
// first, ties by hour-ending. At most n are returned; n <= 0 returns all.
func RankBySpread(g model.GridSnapshot, n int) []RankedHour {
	out := make([]RankedHour, 0, model.HoursPerDay)
	for _, row := range g.Rows {
		if row.Spread.OK {
			out = append(out, RankedHour{HE: row.HE, Spread: row.Spread})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := math.Abs(out[i].Spread.V), math.Abs(out[j].Spread.V)
		if a != b {
			return a > b
		}
		return out[i].HE < out[j].HE
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
