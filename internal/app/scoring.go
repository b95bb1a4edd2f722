package app

import "math"

// MaxAnswerTime is the elapsed time, in seconds, at which an answer is worth nothing.
const MaxAnswerTime = 12.0

// Score converts answer latency in seconds into points along an exponential decay:
// 500 at t=0 falling to 0 at t=12. Times outside [0, 12] are clamped.
func Score(elapsed float64) int {
	switch {
	case math.IsNaN(elapsed) || elapsed >= MaxAnswerTime:
		elapsed = MaxAnswerTime
	case elapsed < 0:
		elapsed = 0
	}
	points := math.Round(8.31828329*math.Pow(1.2, -(elapsed-12.23262668))/0.13756839 - 62.72982658)
	if points < 0 {
		return 0
	}
	return int(points)
}
