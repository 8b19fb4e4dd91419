package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// shutdownPhase is one step of graceful shutdown.
type shutdownPhase struct {
	name string
	run  func(context.Context) error
}

// runShutdown runs phases in order, each under its own timeout, so an
// expired HTTP drain still leaves the container stop a live context.
func runShutdown(timeout time.Duration, phases ...shutdownPhase) error {
	var errs []error
	for _, p := range phases {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := p.run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s shutdown: %w", p.name, err))
		}
		cancel()
	}
	return errors.Join(errs...)
}
