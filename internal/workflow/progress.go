package workflow

// Progress converts a settled-step count into the 0..100 run progress value.
// Tolerated non-critical failures count as settled, so a degraded run still
// reaches 100 when its remaining steps finish.
func Progress(settledCount int) int {
	if settledCount <= 0 {
		return 0
	}
	if settledCount >= TotalSteps {
		return 100
	}
	return settledCount * 100 / TotalSteps
}
