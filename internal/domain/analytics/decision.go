package analytics

import "fmt"

// Decision thresholds on the coefficient of variation of hourly click rates.
const (
	EnableVarianceThreshold = 0.30
	KeepVarianceThreshold   = 0.15
	MinQualifyingHours      = 3
)

// RecommendationKind is the advisory outcome of the decision engine.
type RecommendationKind string

const (
	RecommendInsufficientData RecommendationKind = "insufficient_data"
	RecommendEnable           RecommendationKind = "enable_optimization"
	RecommendKeepDefault      RecommendationKind = "keep_default_timing"
	RecommendMonitor          RecommendationKind = "monitor"
)

// Recommendation is surfaced to an operator; it never changes
// optimizationEnabled by itself.
type Recommendation struct {
	Kind            RecommendationKind `json:"kind"`
	Variance        float64            `json:"variance"`
	QualifyingHours int                `json:"qualifyingHours"`
	Message         string             `json:"message"`
}

// Recommend applies the ordered policy thresholds.
func Recommend(variance float64, qualifyingHours int) Recommendation {
	rec := Recommendation{Variance: variance, QualifyingHours: qualifyingHours}
	switch {
	case qualifyingHours < MinQualifyingHours:
		rec.Kind = RecommendInsufficientData
		rec.Message = fmt.Sprintf("Insufficient data: %d hour(s) reached the minimum sample size, need at least %d. No recommendation.", qualifyingHours, MinQualifyingHours)
	case variance > EnableVarianceThreshold:
		rec.Kind = RecommendEnable
		rec.Message = fmt.Sprintf("Enable personalized send times: click-rate variation across hours is %.2f (> %.2f), timing matters.", variance, EnableVarianceThreshold)
	case variance < KeepVarianceThreshold:
		rec.Kind = RecommendKeepDefault
		rec.Message = fmt.Sprintf("Keep random/default timing: click-rate variation across hours is %.2f (< %.2f), timing does not matter.", variance, KeepVarianceThreshold)
	default:
		rec.Kind = RecommendMonitor
		rec.Message = fmt.Sprintf("Monitor further: click-rate variation across hours is %.2f, between %.2f and %.2f.", variance, KeepVarianceThreshold, EnableVarianceThreshold)
	}
	return rec
}

// RecommendFromHours computes variance over qualifying hours and recommends.
func RecommendFromHours(rows []HourlyAnalytics, minSample int) Recommendation {
	rates := QualifyingClickRates(rows, minSample)
	return Recommend(CoefficientOfVariation(rates), len(rates))
}
