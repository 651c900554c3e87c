package audit

import "math/rand"

// SamplingConfig controls audit log sampling rates.
type SamplingConfig struct {
	Rate      float64 // Allowed request sampling rate (0.0-1.0)
	ErrorRate float64 // Denied/errored request sampling rate (0.0-1.0)
}

// ShouldLog determines if a request should be logged based on its status.
// Denied/errored requests use ErrorRate, allowed requests use Rate.
func (s SamplingConfig) ShouldLog(status string) bool {
	switch status {
	case "deny", "error":
		return s.ErrorRate >= 1.0 || rand.Float64() < s.ErrorRate
	default:
		return s.Rate >= 1.0 || rand.Float64() < s.Rate
	}
}
