package driving

import "context"

// Scheduler triggers the pipeline once a day.
type Scheduler interface {
	// Start runs the trigger loop.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the loop and waits for an in-progress run.
	Stop() error
}
