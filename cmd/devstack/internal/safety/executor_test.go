// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecutorRunSuccess(t *testing.T) {
	exec := NewExecutor(time.Second, nil)

	value, err := exec.Run(context.Background(), "test-op", func(ctx context.Context) (any, error) {
		return "installed", nil
	}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if value != "installed" {
		t.Errorf("value = %v, want installed", value)
	}
}

func TestExecutorRunActionError(t *testing.T) {
	exec := NewExecutor(time.Second, nil)
	boom := errors.New("apt exited 100")

	_, err := exec.Run(context.Background(), "test-op", func(ctx context.Context) (any, error) {
		return nil, boom
	}, 0)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the action's error", err)
	}
}

func TestExecutorRunTimeout(t *testing.T) {
	exec := NewExecutor(time.Hour, nil)
	exec.MinTimeout = 10 * time.Millisecond

	start := time.Now()
	_, err := exec.Run(context.Background(), "slow-op", func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return "done", nil
		}
	}, 50*time.Millisecond)

	if !errors.Is(err, ErrActionTimeout) {
		t.Fatalf("err = %v, want ErrActionTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, deadline not enforced", elapsed)
	}
}

func TestExecutorRunParentCancel(t *testing.T) {
	exec := NewExecutor(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Run(ctx, "interrupted-op", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, time.Hour)

	// User interrupt is reported as the context error, not a timeout.
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExecutorDefaultTimeoutApplied(t *testing.T) {
	exec := NewExecutor(30*time.Millisecond, nil)
	exec.MinTimeout = 10 * time.Millisecond

	_, err := exec.Run(context.Background(), "default-timeout-op", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 0)
	if !errors.Is(err, ErrActionTimeout) {
		t.Errorf("err = %v, want ErrActionTimeout via default", err)
	}
}

func TestExecutorRunClampsTinyOverride(t *testing.T) {
	exec := NewExecutor(time.Hour, nil)
	if exec.MinTimeout != MinActionTimeout {
		t.Fatalf("MinTimeout = %v, want MinActionTimeout", exec.MinTimeout)
	}

	// A 1ms override would expire before any real work completes. The
	// floor keeps the action alive long enough to finish.
	value, err := exec.Run(context.Background(), "quick-op", func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return "done", nil
		}
	}, time.Millisecond)
	if err != nil {
		t.Fatalf("Run with clamped override: %v", err)
	}
	if value != "done" {
		t.Errorf("value = %v, want done", value)
	}
}

func TestEnforceMinTimeout(t *testing.T) {
	tests := []struct {
		name      string
		requested time.Duration
		want      time.Duration
	}{
		{"zero uses minimum", 0, MinActionTimeout},
		{"negative uses minimum", -time.Second, MinActionTimeout},
		{"below minimum clamps", time.Second, MinActionTimeout},
		{"above minimum passes", time.Minute, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnforceMinTimeout(tt.requested, MinActionTimeout); got != tt.want {
				t.Errorf("EnforceMinTimeout(%v) = %v, want %v", tt.requested, got, tt.want)
			}
		})
	}
}
