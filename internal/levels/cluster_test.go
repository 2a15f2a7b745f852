package levels

import (
	"errors"
	"math"
	"testing"
)

func TestClusterEmptyInput(t *testing.T) {
	out, err := Cluster(nil, 0.008)
	if err != nil {
		t.Fatalf("empty input must not error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no clusters, got %v", out)
	}
}

func TestClusterChainMerge(t *testing.T) {
	// 100.5 vs 100: 0.005 <= 0.008 merges; 101.2 vs the chain's last member
	// 100.5: 0.00697 <= 0.008 merges too, even though 101.2 is more than eps
	// away from 100. The anchor drifts forward.
	out, err := Cluster([]float64{100, 100.5, 101.2}, 0.008)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected single chained cluster, got %v", out)
	}
	if out[0].Price != 100.5 || out[0].Support != 3 {
		t.Fatalf("expected median 100.5 support 3, got %+v", out[0])
	}
}

func TestClusterTightEpsSplitsAll(t *testing.T) {
	out, err := Cluster([]float64{100, 100.5, 101.2}, 0.003)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected three singleton clusters, got %v", out)
	}
	for _, c := range out {
		if c.Support != 1 {
			t.Fatalf("expected singletons, got %+v", out)
		}
	}
}

func TestClusterRankedBySupport(t *testing.T) {
	out, err := Cluster([]float64{10, 10, 10.05, 20, 20.02}, 0.008)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected two clusters, got %v", out)
	}
	if out[0].Price != 10 || out[0].Support != 3 {
		t.Fatalf("best cluster should be median 10 support 3, got %+v", out[0])
	}
	if math.Abs(out[1].Price-20.01) > 1e-9 || out[1].Support != 2 {
		t.Fatalf("second cluster should be median 20.01 support 2, got %+v", out[1])
	}
}

func TestClusterEqualSupportTieBreak(t *testing.T) {
	// Two well-separated singletons: equal support, ordered by ascending price.
	out, err := Cluster([]float64{200, 100}, 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected two clusters, got %v", out)
	}
	if out[0].Price != 100 || out[1].Price != 200 {
		t.Fatalf("equal support must order by price ascending, got %+v", out)
	}
}

func TestClusterIdempotentOnRepresentatives(t *testing.T) {
	values := []float64{10, 10, 10.05, 20, 20.02, 35, 35.1, 35.1}
	eps := 0.008

	first, err := Cluster(values, eps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reps := make([]float64, 0, len(first))
	for _, c := range first {
		reps = append(reps, c.Price)
	}

	second, err := Cluster(reps, eps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("re-clustering representatives must not merge: %d -> %d", len(first), len(second))
	}
	for _, c := range second {
		if c.Support != 1 {
			t.Fatalf("expected singleton clusters, got %+v", second)
		}
	}
}

func TestClusterZeroReference(t *testing.T) {
	_, err := Cluster([]float64{0, 1}, 0.008)
	if !errors.Is(err, ErrZeroReference) {
		t.Fatalf("zero anchor must surface ErrZeroReference, got %v", err)
	}
}

func TestClusterEvenMedian(t *testing.T) {
	out, err := Cluster([]float64{100, 100.4}, 0.008)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || math.Abs(out[0].Price-100.2) > 1e-9 {
		t.Fatalf("even-sized cluster should use midpoint median, got %+v", out)
	}
}
