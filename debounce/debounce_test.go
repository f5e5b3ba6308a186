package debounce

import (
	"errors"
	"testing"
)

func TestNew_SizeRange(t *testing.T) {
	for size := -1; size <= 10; size++ {
		f, err := New(size)
		valid := size >= MinSize && size <= MaxSize
		if valid && err != nil {
			t.Errorf("size %d: unexpected error %v", size, err)
		}
		if !valid {
			if !errors.Is(err, ErrFilterSize) {
				t.Errorf("size %d: expected ErrFilterSize, got %v", size, err)
			}
			if f != nil {
				t.Errorf("size %d: expected nil filter", size)
			}
		}
	}
}

func TestMustNew_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for size 9")
		}
	}()
	MustNew(9)
}

// TestPoll_RisesOnNthSample checks that N identical high samples produce
// exactly one Rose, on the Nth call, for every supported size.
func TestPoll_RisesOnNthSample(t *testing.T) {
	for size := MinSize; size <= MaxSize; size++ {
		f := MustNew(size)
		for i := 1; i <= size; i++ {
			edge, ok := f.Poll(true)
			if i < size && ok {
				t.Fatalf("size %d: unexpected edge %s on sample %d", size, edge, i)
			}
			if i == size {
				if !ok || edge != Rose {
					t.Fatalf("size %d: expected Rose on sample %d, got %v/%v", size, i, edge, ok)
				}
			}
		}
		if !f.Stable() {
			t.Errorf("size %d: expected stable high", size)
		}
	}
}

func TestPoll_FallsAfterNLowSamples(t *testing.T) {
	f := MustNew(4)
	for i := 0; i < 4; i++ {
		f.Poll(true)
	}
	for i := 1; i <= 4; i++ {
		edge, ok := f.Poll(false)
		if i < 4 && ok {
			t.Fatalf("unexpected edge on low sample %d", i)
		}
		if i == 4 && (!ok || edge != Fell) {
			t.Fatalf("expected Fell on 4th low sample, got %v/%v", edge, ok)
		}
	}
	if f.Stable() {
		t.Errorf("expected stable low")
	}
}

func TestPoll_AlternatingNeverTransitions(t *testing.T) {
	for size := MinSize; size <= MaxSize; size++ {
		f := MustNew(size)
		for i := 0; i < 100; i++ {
			if edge, ok := f.Poll(i%2 == 0); ok {
				t.Fatalf("size %d: bounce produced %s at sample %d", size, edge, i)
			}
		}
	}
}

func TestPoll_Idempotent(t *testing.T) {
	f := MustNew(3)
	edges := 0
	for i := 0; i < 50; i++ {
		if _, ok := f.Poll(true); ok {
			edges++
		}
	}
	if edges != 1 {
		t.Errorf("expected exactly 1 edge, got %d", edges)
	}
}

func TestPoll_LowSamplesFromResetEmitNothing(t *testing.T) {
	f := MustNew(2)
	for i := 0; i < 10; i++ {
		if edge, ok := f.Poll(false); ok {
			t.Fatalf("unexpected %s while already stable low", edge)
		}
	}
}

func TestPoll_BounceThenSettle(t *testing.T) {
	f := MustNew(4)
	samples := []bool{true, false, true, true, false, true, true, true, true}
	var got []Edge
	for _, s := range samples {
		if e, ok := f.Poll(s); ok {
			got = append(got, e)
		}
	}
	if len(got) != 1 || got[0] != Rose {
		t.Errorf("expected a single Rose, got %v", got)
	}
}

func TestReset(t *testing.T) {
	f := MustNew(2)
	f.Poll(true)
	f.Poll(true)
	f.Reset()
	if f.Stable() {
		t.Errorf("reset filter should be stable low")
	}
	if _, ok := f.Poll(true); ok {
		t.Errorf("history should be cleared by Reset")
	}
	if f.Size() != 2 {
		t.Errorf("Size() = %d, want 2", f.Size())
	}
}

func TestEdge_String(t *testing.T) {
	if Rose.String() != "rose" || Fell.String() != "fell" {
		t.Errorf("unexpected edge names %q %q", Rose, Fell)
	}
}
