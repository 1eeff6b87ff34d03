package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestFixedWindowCeiling(t *testing.T) {
	clock := time.Now()
	fw := NewFixedWindow(50, 10*time.Second).WithNow(func() time.Time { return clock })

	for i := 1; i <= 50; i++ {
		if res := fw.Admit("origin"); !res.Allowed {
			t.Fatalf("call %d should be admitted", i)
		}
	}

	if res := fw.Admit("origin"); res.Allowed {
		t.Error("51st call in one window should be rejected")
	}

	// rejection still counts against the window
	if res := fw.Admit("origin"); res.Allowed {
		t.Error("calls after the ceiling stay rejected")
	}
}

func TestFixedWindowReset(t *testing.T) {
	clock := time.Now()
	fw := NewFixedWindow(50, 10*time.Second).WithNow(func() time.Time { return clock })

	for i := 0; i < 51; i++ {
		fw.Admit("origin")
	}

	clock = clock.Add(11 * time.Second)

	res := fw.Admit("origin")
	if !res.Allowed {
		t.Error("first call of a fresh window should be admitted")
	}
	if res.Remaining != 49 {
		t.Errorf("counter should restart at 1, remaining = %d", res.Remaining)
	}
}

func TestFixedWindowBoundaryBurst(t *testing.T) {
	// the resetting window allows up to 2x the ceiling across a window
	// boundary; this pins that behavior so nobody "fixes" it silently
	clock := time.Now()
	fw := NewFixedWindow(50, 10*time.Second).WithNow(func() time.Time { return clock })

	admitted := 0
	for i := 0; i < 50; i++ {
		if fw.Admit("origin").Allowed {
			admitted++
		}
	}

	clock = clock.Add(10*time.Second + time.Millisecond)

	for i := 0; i < 50; i++ {
		if fw.Admit("origin").Allowed {
			admitted++
		}
	}

	if admitted != 100 {
		t.Errorf("wanted 100 admitted across the boundary, got %d", admitted)
	}
}

func TestFixedWindowIsolatesOrigins(t *testing.T) {
	clock := time.Now()
	fw := NewFixedWindow(2, 10*time.Second).WithNow(func() time.Time { return clock })

	fw.Admit("a")
	fw.Admit("a")
	if fw.Admit("a").Allowed {
		t.Error("origin a should be over its ceiling")
	}

	if !fw.Admit("b").Allowed {
		t.Error("origin b should be unaffected by origin a")
	}
}

func TestSlidingWindowNoBoundaryBurst(t *testing.T) {
	clock := time.Now()
	sw := NewSlidingWindow(50, 10*time.Second).WithNow(func() time.Time { return clock })

	for i := 0; i < 50; i++ {
		if !sw.Admit("origin").Allowed {
			t.Fatalf("call %d should be admitted", i+1)
		}
		clock = clock.Add(100 * time.Millisecond)
	}

	// just over the fixed-window boundary: the trailing window still
	// holds all 50 hits
	clock = clock.Add(time.Second)
	if sw.Admit("origin").Allowed {
		t.Error("sliding window should still reject just past the boundary")
	}

	clock = clock.Add(10 * time.Second)
	if !sw.Admit("origin").Allowed {
		t.Error("sliding window should admit after the trailing window drains")
	}
}

func TestCleanup(t *testing.T) {
	clock := time.Now()
	fw := NewFixedWindow(50, 10*time.Second).WithNow(func() time.Time { return clock })

	for i := 0; i < 100; i++ {
		fw.Admit(fmt.Sprintf("origin-%d", i))
	}

	clock = clock.Add(time.Minute)
	fw.Cleanup()

	if got := fw.windows.Len(); got != 0 {
		t.Errorf("wanted all idle windows evicted, %d left", got)
	}
}
