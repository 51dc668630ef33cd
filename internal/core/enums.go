package core

import "strings"

// DistanceMetric selects how fingerprints are compared.
type DistanceMetric string

const (
	// MetricJaccard is the binary Jaccard distance over binarized fingerprints.
	MetricJaccard DistanceMetric = "jaccard"
	// MetricJaccardMZ is Jaccard with one extra shared bit when precursor
	// masses agree within the m/z tolerance.
	MetricJaccardMZ DistanceMetric = "jaccard-mz"
	// MetricEuclidean is the L2 distance over probabilities, scaled by
	// sqrt(width) into [0,1].
	MetricEuclidean DistanceMetric = "euclidean"
	// MetricCosine is 1 - cosine similarity over probabilities.
	MetricCosine DistanceMetric = "cosine"
)

// ParseDistanceMetric maps a name to a metric.
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	switch m := DistanceMetric(strings.ToLower(s)); m {
	case MetricJaccard, MetricJaccardMZ, MetricEuclidean, MetricCosine:
		return m, nil
	}
	return "", NewInvalidArgumentError("metric", "unknown distance metric "+s)
}

// Binary reports whether the metric works on binarized rows.
func (m DistanceMetric) Binary() bool {
	return m == MetricJaccard || m == MetricJaccardMZ
}

// MatchPolicy decides what happens to fingerprints missing from the
// abundance table.
type MatchPolicy int

const (
	// MatchStrict fails with UnmatchedFeaturesError.
	MatchStrict MatchPolicy = iota
	// MatchLenient logs a warning and drops the unmatched rows.
	MatchLenient
)

func (p MatchPolicy) String() string {
	if p == MatchLenient {
		return "lenient"
	}
	return "strict"
}

// ParseMatchPolicy maps a name to a policy.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return MatchStrict, nil
	case "lenient":
		return MatchLenient, nil
	}
	return MatchStrict, NewInvalidArgumentError("policy", "unknown match policy "+s)
}
