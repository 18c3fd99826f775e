package analysis

import (
	"math"
	"sort"

	"gridwatch/internal/model"
)

// PriceStats summarizes one column of a grid over its known hours.
type PriceStats struct {
	Count int         `json:"count"`
	Min   model.Value `json:"min"`
	Max   model.Value `json:"max"`
	Mean  model.Value `json:"mean"`
	P05   model.Value `json:"p05"`
	P95   model.Value `json:"p95"`

	// Range is P95 - P05.
	Range model.Value `json:"range"`
}

// Summary holds PriceStats for the real-time, day-ahead and spread columns.
type Summary struct {
	RT     PriceStats `json:"rt"`
	DA     PriceStats `json:"da"`
	Spread PriceStats `json:"spread"`
}

// Summarize computes column statistics for the rows of g passing f.
func Summarize(g model.GridSnapshot, f Filter) Summary {
	var rt, da, spread []model.Value
	for _, row := range g.Rows {
		if !f.Match(row.HE) {
			continue
		}
		rt = append(rt, row.RT)
		da = append(da, row.DA)
		spread = append(spread, row.Spread)
	}
	return Summary{RT: ComputeStats(rt), DA: ComputeStats(da), Spread: ComputeStats(spread)}
}

// ComputeStats ignores unknown values. With no known value every field is unknown.
func ComputeStats(values []model.Value) PriceStats {
	vals := make([]float64, 0, len(values))
	for _, v := range values {
		if v.OK {
			vals = append(vals, v.V)
		}
	}
	p := PriceStats{Count: len(vals)}
	if len(vals) == 0 {
		return p
	}

	sum := 0.0
	minv := math.Inf(1)
	maxv := math.Inf(-1)
	for _, v := range vals {
		sum += v
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
	}
	sort.Float64s(vals)
	p.Min = model.Known(minv).Round2()
	p.Max = model.Known(maxv).Round2()
	p.Mean = model.Known(sum / float64(len(vals))).Round2()
	p.P05 = model.Known(percentileSorted(vals, 0.05)).Round2()
	p.P95 = model.Known(percentileSorted(vals, 0.95)).Round2()
	p.Range = p.P95.Sub(p.P05)
	return p
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
