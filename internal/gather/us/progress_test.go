package us

import (
	"testing"
)

func TestProgressTrackerMarkDone(t *testing.T) {
	dir := t.TempDir()

	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := pt.MarkDone("SPY", "QQQ", "SPY"); err != nil {
		t.Fatal(err)
	}
	pt.Close()

	// Reload and verify.
	pt2, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer pt2.Close()

	for _, sym := range []string{"SPY", "QQQ"} {
		if !pt2.IsDone(sym) {
			t.Errorf("expected %q to be done after reload", sym)
		}
	}
	if pt2.IsDone("IWM") {
		t.Error("IWM should not be done")
	}
}

func TestProgressTrackerCompleted(t *testing.T) {
	pt, err := newProgressTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	if got := pt.LastCompleted(); got != "" {
		t.Errorf("LastCompleted() = %q before marking, want empty", got)
	}
	if err := pt.MarkCompleted("2025-02-10"); err != nil {
		t.Fatal(err)
	}
	if got := pt.LastCompleted(); got != "2025-02-10" {
		t.Errorf("LastCompleted() = %q, want %q", got, "2025-02-10")
	}
}

func TestProgressTrackerReset(t *testing.T) {
	dir := t.TempDir()
	pt, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := pt.MarkDone("SPY"); err != nil {
		t.Fatal(err)
	}
	if err := pt.Reset(); err != nil {
		t.Fatal(err)
	}
	if pt.IsDone("SPY") {
		t.Error("SPY should not be done after Reset")
	}
	if err := pt.MarkDone("QQQ"); err != nil {
		t.Fatal(err)
	}
	pt.Close()

	pt2, err := newProgressTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer pt2.Close()
	if pt2.IsDone("SPY") || !pt2.IsDone("QQQ") {
		t.Error("reload after Reset should only contain QQQ")
	}
}
