package analytics

import (
	"math"
)

const (
	defaultWindow    = 50
	defaultThreshold = 3.0
	// minSamples avoids flagging the first few readings of a machine.
	minSamples = 10
)

// AnomalyDetector flags values whose z-score against a rolling window
// exceeds the threshold. The value is scored before it joins the window.
type AnomalyDetector struct {
	window    *RollingWindow
	threshold float64
}

func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{
		window:    NewRollingWindow(defaultWindow),
		threshold: defaultThreshold,
	}
}

func (ad *AnomalyDetector) Detect(value float64) (bool, float64) {
	defer ad.window.Add(value)

	if ad.window.Count() < minSamples {
		return false, 0.0
	}

	stdDev := ad.calculateStdDev()
	if stdDev == 0 {
		return false, 0.0
	}

	zScore := math.Abs((value - ad.window.Average()) / stdDev)
	return zScore > ad.threshold, zScore
}

func (ad *AnomalyDetector) calculateStdDev() float64 {
	values := ad.window.GetValues()
	if len(values) < 2 {
		return 0.0
	}

	avg := ad.window.Average()
	var variance float64
	for _, v := range values {
		diff := v - avg
		variance += diff * diff
	}

	variance /= float64(len(values))
	return math.Sqrt(variance)
}
