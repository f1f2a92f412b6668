package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleFromAnyThreadRunsOnLoopGoroutine(t *testing.T) {
	loop := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { _ = loop.Run(ctx); close(done) }()

	ran := make(chan int, 1)
	go func() { loop.ScheduleFromAnyThread(func() { ran <- 1 }) }()

	select {
	case v := <-ran:
		require.Equal(t, 1, v)
	case <-time.After(time.Second):
		t.Fatal("scheduled callable never ran")
	}

	loop.Stop()
	<-done
}

func TestWaitOnRegisteredBlocksUntilResumed(t *testing.T) {
	loop := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()
	defer loop.Stop()

	resume := loop.RegisterCallback()
	resumed := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		resume(func() { close(resumed) })
	}()

	start := time.Now()
	loop.WaitOnRegistered()
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("resumed callable never ran")
	}
}

func TestRegisterCallbackPanicsOnDoubleResume(t *testing.T) {
	loop := New(8)
	resume := loop.RegisterCallback()
	resume(func() {})
	require.Panics(t, func() { resume(func() {}) })
}

func TestStopUnblocksScheduleFromAnyThread(t *testing.T) {
	loop := New(0) // depth 0 is coerced to the default, non-blocking for one send
	loop.Stop()
	done := make(chan struct{})
	go func() {
		loop.ScheduleFromAnyThread(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ScheduleFromAnyThread did not return after Stop")
	}
}
