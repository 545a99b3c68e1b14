package watchparty

import "math"

const DefaultTolerance = 2.0

// Reconciler decides whether a remote position is far enough from the local
// one to seek.
type Reconciler struct {
	Tolerance float64
}

func NewReconciler(tolerance float64) Reconciler {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	return Reconciler{Tolerance: tolerance}
}

func (r Reconciler) Drift(local, target float64) float64 {
	return math.Abs(local - target)
}

// ShouldSeek is true only when drift strictly exceeds the tolerance.
func (r Reconciler) ShouldSeek(local, target float64) bool {
	return r.Drift(local, target) > r.Tolerance
}
