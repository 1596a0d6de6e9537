package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hirecraft/jdqueue/server/queue"
)

func TestSimExecutorRejectsRealWork(t *testing.T) {
	e := NewSimExecutor()
	err := e.Execute(context.Background(), queue.Payload{"prompt": "write a JD"})
	if !errors.Is(err, ErrNotSimulation) {
		t.Errorf("expected ErrNotSimulation, got %v", err)
	}
}

func TestSimExecutorFixedDelay(t *testing.T) {
	e := NewSimExecutor()
	start := time.Now()
	err := e.Execute(context.Background(), queue.Payload{
		"simulate_only": true,
		"sim_fixed_sec": 0.05,
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, expected ~50ms", elapsed)
	}
}

func TestSimExecutorRangeClampsMax(t *testing.T) {
	e := NewSimExecutor()
	start := time.Now()
	// max < min collapses to a fixed min-length wait.
	err := e.Execute(context.Background(), queue.Payload{
		"simulate_only": true,
		"sim_min_sec":   0.05,
		"sim_max_sec":   0.01,
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, expected at least ~50ms", elapsed)
	}
}

func TestSimExecutorCancel(t *testing.T) {
	e := NewSimExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := e.Execute(ctx, queue.Payload{
		"simulate_only": true,
		"sim_fixed_sec": 5.0,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not interrupt the wait")
	}
}

func TestSimExecutorNegativeDelay(t *testing.T) {
	e := NewSimExecutor()
	err := e.Execute(context.Background(), queue.Payload{
		"simulate_only": true,
		"sim_fixed_sec": -3.0,
	})
	if err != nil {
		t.Errorf("negative delay should clamp to zero, got %v", err)
	}
}
