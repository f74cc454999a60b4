package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/yagokoro-dev/yagokoro/kg"
)

const (
	// DefaultSlopeThreshold separates rising and declining from stable.
	DefaultSlopeThreshold = 0.1
	// DefaultVolatileR2 marks a fit too poor to trust as volatile.
	DefaultVolatileR2 = 0.3
)

// TrendOptions tunes the predictor thresholds.
type TrendOptions struct {
	SlopeThreshold float64
	VolatileR2     float64
}

func (o TrendOptions) slopeThreshold() float64 {
	if o.SlopeThreshold <= 0 {
		return DefaultSlopeThreshold
	}
	return o.SlopeThreshold
}

func (o TrendOptions) volatileR2() float64 {
	if o.VolatileR2 <= 0 {
		return DefaultVolatileR2
	}
	return o.VolatileR2
}

// ActivityPoint is one month of observed activity.
type ActivityPoint struct {
	Month time.Time `json:"month"`
	Count int       `json:"count"`
}

// Trend is a fitted monthly series.
type Trend struct {
	Topic     string            `json:"topic"`
	Direction kg.TrendDirection `json:"direction"`
	Slope     float64           `json:"slope"`
	R2        float64           `json:"r2"`
	Points    []ActivityPoint   `json:"points,omitempty"`
}

// PhasePrediction forecasts the next lifecycle transition for a topic.
type PhasePrediction struct {
	Topic           string            `json:"topic"`
	CurrentPhase    kg.LifecyclePhase `json:"current_phase"`
	NextPhase       kg.LifecyclePhase `json:"next_phase"`
	EstimatedMonths int               `json:"estimated_months"`
	Factors         []string          `json:"factors,omitempty"`
	Risks           []string          `json:"risks,omitempty"`
	Confidence      float64           `json:"confidence"`
}

// TrendPredictor fits monthly series and forecasts lifecycle transitions.
type TrendPredictor struct {
	opts TrendOptions
}

func NewTrendPredictor(opts TrendOptions) *TrendPredictor {
	return &TrendPredictor{opts: opts}
}

// MonthlySeries buckets event timestamps into a contiguous monthly series,
// zero-filling months with no activity.
func MonthlySeries(events []time.Time) []ActivityPoint {
	if len(events) == 0 {
		return nil
	}
	counts := make(map[time.Time]int)
	first, last := monthOf(events[0]), monthOf(events[0])
	for _, at := range events {
		month := monthOf(at)
		counts[month]++
		if month.Before(first) {
			first = month
		}
		if month.After(last) {
			last = month
		}
	}

	var series []ActivityPoint
	for month := first; !month.After(last); month = month.AddDate(0, 1, 0) {
		series = append(series, ActivityPoint{Month: month, Count: counts[month]})
	}
	return series
}

func monthOf(at time.Time) time.Time {
	return time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Analyze fits a least-squares line through the series and classifies the
// direction. A poor fit is volatile regardless of slope; a short series is
// stable because there is nothing to extrapolate.
func (p *TrendPredictor) Analyze(topic string, points []ActivityPoint) *Trend {
	trend := &Trend{Topic: topic, Direction: kg.TrendStable, Points: points}
	if len(points) < 3 {
		return trend
	}

	ys := make([]float64, len(points))
	for i, pt := range points {
		ys[i] = float64(pt.Count)
	}
	trend.Slope, trend.R2 = linearFit(ys)

	switch {
	case trend.R2 < p.opts.volatileR2():
		trend.Direction = kg.TrendVolatile
	case trend.Slope > p.opts.slopeThreshold():
		trend.Direction = kg.TrendRising
	case trend.Slope < -p.opts.slopeThreshold():
		trend.Direction = kg.TrendDeclining
	default:
		trend.Direction = kg.TrendStable
	}
	return trend
}

// linearFit returns the least-squares slope and R² of ys over x = 0..n-1.
// A constant series fits itself perfectly: slope 0, R² 1.
func linearFit(ys []float64) (slope, r2 float64) {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 1
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	mean := sumY / n
	var ssTot, ssRes float64
	for i, y := range ys {
		fit := intercept + slope*float64(i)
		ssTot += (y - mean) * (y - mean)
		ssRes += (y - fit) * (y - fit)
	}
	if ssTot == 0 {
		return slope, 1
	}
	return slope, 1 - ssRes/ssTot
}

// basePhaseMonths is the unadjusted expected duration of each phase.
var basePhaseMonths = map[kg.LifecyclePhase]int{
	kg.PhaseInnovationTrigger:     18,
	kg.PhasePeakOfExpectations:    12,
	kg.PhaseTroughOfDisillusion:   24,
	kg.PhaseSlopeOfEnlightenment:  18,
	kg.PhasePlateauOfProductivity: 0,
}

// trendAdjustment scales phase duration by activity direction: rising
// activity accelerates transitions, declining activity delays them.
var trendAdjustment = map[kg.TrendDirection]float64{
	kg.TrendRising:    0.75,
	kg.TrendStable:    1.0,
	kg.TrendDeclining: 1.5,
	kg.TrendVolatile:  1.25,
}

// PredictPhase forecasts the transition out of the current phase given the
// fitted trend and the months already spent in the phase.
func (p *TrendPredictor) PredictPhase(trend *Trend, current kg.LifecyclePhase, monthsInPhase int) *PhasePrediction {
	prediction := &PhasePrediction{
		Topic:        trend.Topic,
		CurrentPhase: current,
		NextPhase:    current.Next(),
	}

	if prediction.NextPhase == current {
		// Plateau is terminal.
		prediction.EstimatedMonths = 0
	} else {
		adjusted := float64(basePhaseMonths[current]) * trendAdjustment[trend.Direction]
		remaining := int(math.Round(adjusted)) - monthsInPhase
		if remaining < 0 {
			remaining = 0
		}
		prediction.EstimatedMonths = remaining
	}

	prediction.Factors, prediction.Risks = p.assess(trend)
	prediction.Confidence = p.confidence(trend, prediction.Factors, prediction.Risks)
	return prediction
}

// assess names the observable factors supporting the forecast and the risks
// against it.
func (p *TrendPredictor) assess(trend *Trend) (factors, risks []string) {
	switch trend.Direction {
	case kg.TrendRising:
		factors = append(factors, "activity is rising month over month")
	case kg.TrendDeclining:
		risks = append(risks, "activity is declining month over month")
	case kg.TrendVolatile:
		risks = append(risks, "activity series is volatile, regression fit is poor")
	}
	if trend.R2 >= 0.7 {
		factors = append(factors, "regression fit is strong")
	}
	if len(trend.Points) >= 24 {
		factors = append(factors, "history spans two or more years")
	} else if len(trend.Points) < 6 {
		risks = append(risks, "fewer than six months of history")
	}
	sort.Strings(factors)
	sort.Strings(risks)
	return factors, risks
}

// confidence starts from data coverage and history span, adds a bonus per
// supporting factor, subtracts a penalty per risk, and clamps to [0.1, 0.9].
func (p *TrendPredictor) confidence(trend *Trend, factors, risks []string) float64 {
	var active int
	for _, pt := range trend.Points {
		if pt.Count > 0 {
			active++
		}
	}
	coverage := 0.0
	if len(trend.Points) > 0 {
		coverage = float64(active) / float64(len(trend.Points))
	}
	span := math.Min(float64(len(trend.Points))/36.0, 1.0)

	confidence := 0.2 + 0.3*coverage + 0.2*span
	confidence += 0.05 * float64(len(factors))
	confidence -= 0.1 * float64(len(risks))

	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 0.9 {
		confidence = 0.9
	}
	return confidence
}
