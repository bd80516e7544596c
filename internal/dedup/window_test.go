package dedup

import (
	"fmt"
	"slices"
	"testing"
)

func TestAddContains(t *testing.T) {
	w := NewWindow(3)
	if !w.Add("a") {
		t.Fatal("Add(a) = false, want true")
	}
	if w.Add("a") {
		t.Error("second Add(a) = true, want false")
	}
	if !w.Contains("a") {
		t.Error("Contains(a) = false")
	}
	if w.Contains("b") {
		t.Error("Contains(b) = true")
	}
}

func TestEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		w.Add(id)
	}
	if w.Contains("a") {
		t.Error("a should have been evicted")
	}
	if got, want := w.IDs(), []string{"b", "c", "d"}; !slices.Equal(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
	// An evicted id is new again.
	if !w.Add("a") {
		t.Error("Add(a) after eviction = false, want true")
	}
}

func TestLenNeverExceedsCapacity(t *testing.T) {
	w := NewWindow(20)
	for i := range 100 {
		w.Add(fmt.Sprintf("m%d", i))
		if w.Len() > 20 {
			t.Fatalf("Len() = %d after %d adds, want <= 20", w.Len(), i+1)
		}
	}
}

func TestRestore(t *testing.T) {
	w := NewWindow(2)
	w.Add("x")
	w.Restore([]string{"a", "", "b", "a", "c"})
	if got, want := w.IDs(), []string{"b", "c"}; !slices.Equal(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
	if w.Contains("x") {
		t.Error("Restore should drop previous contents")
	}
}

func TestZeroCapacity(t *testing.T) {
	w := NewWindow(0)
	w.Add("a")
	w.Add("b")
	if w.Len() != 1 || !w.Contains("b") {
		t.Errorf("IDs() = %v, want [b]", w.IDs())
	}
}
