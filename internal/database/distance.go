package database

import (
	"cmp"
	"math"
	"slices"

	"textbook-rag/internal/models"
)

// SquaredL2 returns the squared euclidean distance between a and b. Vectors
// of different length are infinitely far apart.
func SquaredL2(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// nearest sorts hits by distance and keeps the first n
func nearest(hits []models.Hit, n int) []models.Hit {
	slices.SortStableFunc(hits, func(a, b models.Hit) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if n >= 0 && len(hits) > n {
		hits = hits[:n]
	}
	return hits
}
