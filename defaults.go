package codescope

import "time"

// Defaults applied to every task and synthesizer unless overridden.
const (
	// DefaultTimeout bounds a single generator call.
	DefaultTimeout = 60 * time.Second

	// DefaultRetryDelay is the first backoff delay when retries are enabled.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultSeparator joins rendered results in the synthesis prompt.
	DefaultSeparator = "\n\n"
)

func defaultCallOptions() callOptions {
	return callOptions{
		timeout:    DefaultTimeout,
		retryDelay: DefaultRetryDelay,
		separator:  DefaultSeparator,
	}
}
