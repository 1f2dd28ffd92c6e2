package scope

import "sort"

// Measurement is the analyzer's estimate for one channel's window. Zero
// values mean the window held too few edges to measure, which is normal for
// idle or DC inputs, not an error.
type Measurement struct {
	FrequencyHz float64 `json:"frequency_hz"`
	DutyCycle   float64 `json:"duty_cycle"` // percent of time in the high state
}

// Analyzer estimates frequency and duty cycle from a windowed differential
// trace via edge detection. Periods shorter than two sampling intervals or
// longer than MaxPeriod are treated as artifacts and ignored.
type Analyzer struct {
	SamplingInterval float64 // seconds between samples
	MaxPeriod        float64 // longest plausible period, 0 disables the cap
}

// Analyze binarizes the trace (above zero is high), finds the edges and
// derives the frequency from the median inter-rising-edge period. The
// median, not the mean, so a single stretched period does not skew the
// estimate.
func (a Analyzer) Analyze(levels []int8, timestamps []float64) Measurement {
	if len(levels) < 2 || len(levels) != len(timestamps) {
		return Measurement{}
	}

	high := make([]bool, len(levels))
	for i, v := range levels {
		high[i] = v > 0
	}

	edgeCount := 0
	var rising []int
	for i := 1; i < len(high); i++ {
		if high[i] != high[i-1] {
			edgeCount++
			if high[i] {
				rising = append(rising, i)
			}
		}
	}
	if edgeCount < 4 {
		return Measurement{}
	}

	minPeriod := 2 * a.SamplingInterval
	var periods []float64
	for i := 1; i < len(rising); i++ {
		p := timestamps[rising[i]] - timestamps[rising[i-1]]
		if p < minPeriod {
			continue
		}
		if a.MaxPeriod > 0 && p > a.MaxPeriod {
			continue
		}
		periods = append(periods, p)
	}
	if len(periods) == 0 {
		return Measurement{}
	}

	sort.Float64s(periods)
	median := periods[len(periods)/2]
	if len(periods)%2 == 0 {
		median = (periods[len(periods)/2-1] + periods[len(periods)/2]) / 2
	}

	var frequency float64
	if median > 0 {
		frequency = 1.0 / median
	}

	total := timestamps[len(timestamps)-1] - timestamps[0]
	var highTime float64
	for i := 1; i < len(timestamps); i++ {
		if high[i-1] {
			highTime += timestamps[i] - timestamps[i-1]
		}
	}
	var duty float64
	if total > 0 {
		duty = highTime / total * 100
	}

	return Measurement{FrequencyHz: frequency, DutyCycle: duty}
}
