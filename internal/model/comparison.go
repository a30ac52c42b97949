package model

// NearestNeighborObservation pairs a source point with its closest reference
// point and the distance between them.
type NearestNeighborObservation struct {
	SourceID int
	NearID   int
	Distance float64
}

// Summary holds descriptive statistics for one distance sample.
// StdDev uses the sample (n-1) denominator.
type Summary struct {
	N      int
	Mean   float64
	Median float64
	StdDev float64
}

// ComparisonResult is the outcome of comparing observed nearest-neighbor
// distances against the randomized control set. TStat and PValue are nil when
// no statistical-test capability was available for the run.
type ComparisonResult struct {
	Metric    string
	ProjectID string
	Observed  Summary
	Control   Summary
	TStat     *float64
	PValue    *float64
}
