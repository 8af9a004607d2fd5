package core

import "testing"

func TestRingBufferFIFO(t *testing.T) {
	r := NewRingBuffer[int](8)
	for i := 1; i <= 5; i++ {
		v := i
		if overwrote := r.Push(&v); overwrote {
			t.Fatalf("push %d: unexpected overwrite", i)
		}
	}
	if got, want := r.Len(), 5; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	for i := 1; i <= 5; i++ {
		var out int
		if !r.Pop(&out) {
			t.Fatalf("pop %d: ring empty", i)
		}
		if out != i {
			t.Errorf("pop %d: got %d, want %d", i, out, i)
		}
	}
	var out int
	if r.Pop(&out) {
		t.Error("pop on empty ring succeeded")
	}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	r := NewRingBuffer[int](8)
	if got, want := r.Cap(), 7; got != want {
		t.Fatalf("Cap() = %d, want %d", got, want)
	}

	// Fill capacity+1: exactly one overwrite, element 1 is gone.
	overwrites := 0
	for i := 1; i <= 8; i++ {
		v := i
		if r.Push(&v) {
			overwrites++
		}
	}
	if overwrites != 1 {
		t.Fatalf("overwrites = %d, want 1", overwrites)
	}

	var got []int
	var out int
	for r.Pop(&out) {
		got = append(got, out)
	}
	want := []int{2, 3, 4, 5, 6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("popped %d elements, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d: got %d, want %d", i, got[i], want[i])
		}
	}

	stats := r.Stats()
	if stats.Overwrites != 1 {
		t.Errorf("stats.Overwrites = %d, want 1", stats.Overwrites)
	}
	if stats.Pushes != 8 {
		t.Errorf("stats.Pushes = %d, want 8", stats.Pushes)
	}
	if stats.Pops != 7 {
		t.Errorf("stats.Pops = %d, want 7", stats.Pops)
	}
}

func TestRingBufferSizeRoundsUp(t *testing.T) {
	tests := []struct {
		size    int
		wantCap int
	}{
		{2, 1},
		{3, 3},
		{5, 7},
		{1024, 1023},
		{1025, 2047},
	}
	for _, tt := range tests {
		r := NewRingBuffer[byte](tt.size)
		if got := r.Cap(); got != tt.wantCap {
			t.Errorf("NewRingBuffer(%d).Cap() = %d, want %d", tt.size, got, tt.wantCap)
		}
	}
}
