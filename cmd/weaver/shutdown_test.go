package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunShutdown_FreshContextPerPhase(t *testing.T) {
	var order []string
	var stopCtxErr error

	err := runShutdown(20*time.Millisecond,
		shutdownPhase{"http", func(ctx context.Context) error {
			order = append(order, "http")
			<-ctx.Done()
			return ctx.Err()
		}},
		shutdownPhase{"containers", func(ctx context.Context) error {
			order = append(order, "containers")
			stopCtxErr = ctx.Err()
			return nil
		}},
	)

	if strings.Join(order, ",") != "http,containers" {
		t.Fatalf("phase order = %v", order)
	}
	if stopCtxErr != nil {
		t.Fatalf("container phase got an expired context: %v", stopCtxErr)
	}
	if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "http shutdown") {
		t.Fatalf("expected http deadline error, got %v", err)
	}
}

func TestRunShutdown_NoErrors(t *testing.T) {
	ok := func(context.Context) error { return nil }
	if err := runShutdown(time.Second, shutdownPhase{"a", ok}, shutdownPhase{"b", ok}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
