package lock

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMutexMap_LockUnlock(t *testing.T) {
	m := NewMutexMap()

	m.Lock("sched-1")
	m.Unlock("sched-1")

	// Should be able to lock again
	m.Lock("sched-1")
	m.Unlock("sched-1")

	if n := m.Len(); n != 0 {
		t.Errorf("expected released keys to be dropped, got %d entries", n)
	}
}

func TestMutexMap_DifferentKeys(t *testing.T) {
	m := NewMutexMap()
	done := make(chan struct{})

	m.Lock("sched-1")
	go func() {
		// sched-2 should not be blocked by sched-1
		m.Lock("sched-2")
		m.Unlock("sched-2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key was blocked")
	}
	m.Unlock("sched-1")
}

func TestMutexMap_Concurrent(t *testing.T) {
	m := NewMutexMap()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("shared")
			counter++ // guarded by the keyed lock
			m.Unlock("shared")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("expected counter=100, got %d", counter)
	}
	if n := m.Len(); n != 0 {
		t.Errorf("expected map to drain, got %d entries", n)
	}
}

func TestMutexMap_With(t *testing.T) {
	m := NewMutexMap()
	want := errors.New("boom")

	got := m.With("sched-1", func() error {
		if m.Len() != 1 {
			t.Errorf("expected key to be held inside With")
		}
		return want
	})
	if !errors.Is(got, want) {
		t.Errorf("expected With to return fn error, got %v", got)
	}
	if m.Len() != 0 {
		t.Errorf("expected key released after With")
	}
}

func TestMutexMap_UnlockUnknownPanics(t *testing.T) {
	m := NewMutexMap()
	defer func() {
		if recover() == nil {
			t.Error("expected panic unlocking an unknown key")
		}
	}()
	m.Unlock("never-locked")
}
