package distance

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/floats"
)

// Jaccard is 1 - |a AND b| / |a OR b|. Two empty rows are identical.
func Jaccard(a, b *roaring.Bitmap) float64 {
	union := a.OrCardinality(b)
	if union == 0 {
		return 0
	}
	return 1 - float64(a.AndCardinality(b))/float64(union)
}

// JaccardMZ counts precursor mass agreement as one extra shared bit:
// 1 - (intersection + agree) / (union + 1).
func JaccardMZ(a, b *roaring.Bitmap, massA, massB, tolerance float64) float64 {
	union := float64(a.OrCardinality(b))
	intersection := float64(a.AndCardinality(b))
	agree := 0.0
	if math.Abs(massA-massB) <= tolerance {
		agree = 1
	}
	return clamp(1 - (intersection+agree)/(union+1))
}

// Euclidean is the L2 distance scaled by sqrt(len(a)) so probability rows
// stay within [0,1].
func Euclidean(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return clamp(floats.Distance(a, b, 2) / math.Sqrt(float64(len(a))))
}

// Cosine is 1 - cos(a,b). A zero vector has no direction and is treated as
// maximally distant.
func Cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	return clamp(1 - floats.Dot(a, b)/(na*nb))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
