package automation

import "time"

const (
	retryStep     = 5 * time.Minute
	retryMaxDelay = 30 * time.Minute
)

// RetryDelay is min(5*retryCount, 30) minutes. Counts below one are treated
// as one so a retry always lands in the future.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := time.Duration(retryCount) * retryStep
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}
