package levels

import (
	"errors"
	"sort"
)

// ErrZeroReference indicates a cluster anchor of zero, which would make the
// relative-distance test undefined. Prices are strictly positive, so hitting
// this means the input is broken.
var ErrZeroReference = errors.New("levels: zero reference value in cluster input")

// Level is one price cluster: the median of its members and how many extrema
// fell into it.
type Level struct {
	Price   float64
	Support int
}

// Cluster groups values whose pairwise chained distance stays within eps into
// levels. Values are sorted ascending, then merged greedily: a value joins the
// open cluster iff its relative distance to the cluster's most recently added
// member (not its mean) is <= eps. The anchor therefore drifts forward, and a
// cluster can span more than eps of its first member; that chained semantics
// is load-bearing and deliberate.
//
// Each cluster reduces to (median, count). The result is ranked by support
// descending, equal-support clusters ordered by ascending price. An empty
// input yields an empty slice.
func Cluster(values []float64, eps float64) ([]Level, error) {
	if len(values) == 0 {
		return []Level{}, nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	clusters := [][]float64{{sorted[0]}}
	for _, x := range sorted[1:] {
		open := clusters[len(clusters)-1]
		anchor := open[len(open)-1]
		if anchor == 0 {
			return nil, ErrZeroReference
		}
		d := x - anchor
		if d < 0 {
			d = -d
		}
		if d/anchor <= eps {
			clusters[len(clusters)-1] = append(open, x)
		} else {
			clusters = append(clusters, []float64{x})
		}
	}

	out := make([]Level, 0, len(clusters))
	for _, members := range clusters {
		out = append(out, Level{Price: median(members), Support: len(members)})
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].Support != out[b].Support {
			return out[a].Support > out[b].Support
		}
		return out[a].Price < out[b].Price
	})
	return out, nil
}

// median assumes vs is sorted ascending and non-empty.
func median(vs []float64) float64 {
	n := len(vs)
	if n%2 == 1 {
		return vs[n/2]
	}
	return (vs[n/2-1] + vs[n/2]) / 2
}
