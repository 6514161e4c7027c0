package signals

// Trend directions reported by CompareHalves.
const (
	Increasing = "increasing"
	Decreasing = "decreasing"
	Stable     = "stable"
)

// Event is one past occurrence on a timeline. Intensity is optional; a
// metric such as peak force that lets trends compare magnitude rather than
// frequency.
type Event struct {
	AtMS         int64
	Intensity    float64
	HasIntensity bool
}

// CountInWindow returns how many events fall in the trailing window
// (endMS-windowMS, endMS]. Events after endMS are ignored.
func CountInWindow(events []Event, endMS, windowMS int64) int {
	start := endMS - windowMS
	count := 0
	for _, e := range events {
		if e.AtMS > start && e.AtMS <= endMS {
			count++
		}
	}
	return count
}

// TrendResult summarises the two halves of a timeline.
type TrendResult struct {
	FirstCount  int
	SecondCount int
	FirstMean   float64
	SecondMean  float64
	// ByIntensity is true when the comparison used intensity means.
	ByIntensity bool
	Direction   string
}

// CompareHalves splits events by time at the midpoint between the earliest
// and latest event and compares the halves. When every event carries an
// intensity and useIntensity is set, mean intensities are compared;
// otherwise event counts. Fewer than two events yield ok=false.
func CompareHalves(events []Event, useIntensity bool) (TrendResult, bool) {
	if len(events) < 2 {
		return TrendResult{}, false
	}
	lo, hi := events[0].AtMS, events[0].AtMS
	allIntensity := true
	for _, e := range events {
		if e.AtMS < lo {
			lo = e.AtMS
		}
		if e.AtMS > hi {
			hi = e.AtMS
		}
		if !e.HasIntensity {
			allIntensity = false
		}
	}
	if lo == hi {
		return TrendResult{}, false
	}
	mid := lo + (hi-lo)/2

	var res TrendResult
	var firstSum, secondSum float64
	for _, e := range events {
		if e.AtMS < mid {
			res.FirstCount++
			firstSum += e.Intensity
		} else {
			res.SecondCount++
			secondSum += e.Intensity
		}
	}
	if res.FirstCount > 0 {
		res.FirstMean = firstSum / float64(res.FirstCount)
	}
	if res.SecondCount > 0 {
		res.SecondMean = secondSum / float64(res.SecondCount)
	}

	a, b := float64(res.FirstCount), float64(res.SecondCount)
	if useIntensity && allIntensity && res.FirstCount > 0 && res.SecondCount > 0 {
		res.ByIntensity = true
		a, b = res.FirstMean, res.SecondMean
	}
	switch {
	case b > a:
		res.Direction = Increasing
	case b < a:
		res.Direction = Decreasing
	default:
		res.Direction = Stable
	}
	return res, true
}
