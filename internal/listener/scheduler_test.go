package listener

import (
	"testing"
	"time"
)

func TestSchedulerFires(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	fired := make(chan struct{})
	s.At("retry", time.Now().Add(10*time.Millisecond), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}

	// fired timers drop out of the pending set
	deadline := time.Now().Add(time.Second)
	for len(s.Names()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("names=%v", s.Names())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerReplacesByName(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	firstFired := make(chan struct{}, 1)
	secondFired := make(chan struct{}, 1)

	s.At("retry", time.Now().Add(20*time.Millisecond), func() { firstFired <- struct{}{} })
	s.At("retry", time.Now().Add(40*time.Millisecond), func() { secondFired <- struct{}{} })

	if names := s.Names(); len(names) != 1 || names[0] != "retry" {
		t.Fatalf("names=%v", names)
	}

	select {
	case <-secondFired:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement never fired")
	}

	select {
	case <-firstFired:
		t.Fatal("replaced timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	fired := make(chan struct{}, 1)
	s.At("retry", time.Now().Add(20*time.Millisecond), func() { fired <- struct{}{} })
	s.Cancel("retry")

	if names := s.Names(); len(names) != 0 {
		t.Fatalf("names=%v", names)
	}

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestSchedulerPastDeadlineFiresImmediately(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	fired := make(chan struct{})
	s.At("retry", time.Now().Add(-time.Minute), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("overdue timer never fired")
	}
}
