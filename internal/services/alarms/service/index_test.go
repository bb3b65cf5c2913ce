package service

import "testing"

func TestIndexAddAndAt(t *testing.T) {
	x := newTimeIndex()
	x.add(17, 0, 0, "a")
	x.add(17, 0, 0, "b")
	x.add(17, 0, 0, "a") // dup is a no-op

	if x.size != 2 {
		t.Fatalf("size = %d, want 2", x.size)
	}
	got := x.at(17, 0, 0)
	if len(got) != 2 {
		t.Fatalf("at(17,0,0) = %v, want 2 ids", got)
	}
	if ids := x.at(17, 0, 1); ids != nil {
		t.Fatalf("at(17,0,1) = %v, want nil", ids)
	}
	if ids := x.at(18, 0, 0); ids != nil {
		t.Fatalf("at(18,0,0) = %v, want nil", ids)
	}
}

func TestIndexRemovePrunes(t *testing.T) {
	x := newTimeIndex()
	x.add(9, 30, 15, "only")

	if !x.remove(9, 30, 15, "only") {
		t.Fatal("remove returned false for present id")
	}
	if x.remove(9, 30, 15, "only") {
		t.Fatal("second remove returned true")
	}
	if x.size != 0 {
		t.Fatalf("size = %d, want 0", x.size)
	}
	if len(x.hours) != 0 {
		t.Fatalf("hours not pruned: %v", x.hours)
	}
}

func TestIndexRemoveMissingPaths(t *testing.T) {
	x := newTimeIndex()
	x.add(1, 2, 3, "a")

	if x.remove(2, 2, 3, "a") {
		t.Fatal("remove with wrong hour returned true")
	}
	if x.remove(1, 3, 3, "a") {
		t.Fatal("remove with wrong minute returned true")
	}
	if x.remove(1, 2, 4, "a") {
		t.Fatal("remove with wrong second returned true")
	}
	if x.remove(1, 2, 3, "b") {
		t.Fatal("remove with wrong id returned true")
	}
	if x.size != 1 {
		t.Fatalf("size = %d, want 1", x.size)
	}
}

func TestIndexSlotsAndPerHour(t *testing.T) {
	x := newTimeIndex()
	x.add(17, 0, 0, "a")
	x.add(17, 0, 0, "b")
	x.add(17, 30, 0, "c")
	x.add(3, 15, 45, "d")

	if got := x.slots(); got != 3 {
		t.Fatalf("slots = %d, want 3", got)
	}
	ph := x.perHour()
	if ph[17] != 3 || ph[3] != 1 {
		t.Fatalf("perHour = %v, want 3 at hour 17 and 1 at hour 3", ph)
	}

	x.clear()
	if x.size != 0 || x.slots() != 0 {
		t.Fatalf("clear left size=%d slots=%d", x.size, x.slots())
	}
}
