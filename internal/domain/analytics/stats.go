package analytics

import "math"

// CoefficientOfVariation returns stddev(values)/mean(values) using the
// population standard deviation. Empty input or a zero mean yields 0.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}

// QualifyingClickRates returns the click rates of hours with at least
// minSample sends, in hour order.
func QualifyingClickRates(rows []HourlyAnalytics, minSample int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r.EmailsSent >= minSample {
			out = append(out, r.ClickRate)
		}
	}
	return out
}

// OptimalHour picks the hour with the highest click rate. Ties go to the
// hour with more sends, then the earlier hour. ok is false when no hour has
// any sends.
func OptimalHour(sent, clicked [24]int) (hour int, rate float64, ok bool) {
	hour = -1
	for h := 0; h < 24; h++ {
		if sent[h] == 0 {
			continue
		}
		r := Ratio(clicked[h], sent[h])
		if hour == -1 || r > rate || (r == rate && sent[h] > sent[hour]) {
			hour, rate = h, r
		}
	}
	return hour, rate, hour >= 0
}
