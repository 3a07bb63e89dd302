package pricing

// Interpolate estimates the price at queryTs on the line through
// (beforeTs, beforePrice) and (afterTs, afterPrice). Queries outside the
// bracket extrapolate along the same line; no clamping. Callers must not
// pass a zero-width bracket (beforeTs == afterTs).
func Interpolate(queryTs, beforeTs int64, beforePrice float64, afterTs int64, afterPrice float64) float64 {
	ratio := float64(queryTs-beforeTs) / float64(afterTs-beforeTs)
	return beforePrice + (afterPrice-beforePrice)*ratio
}
