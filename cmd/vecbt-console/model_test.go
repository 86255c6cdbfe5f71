package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"vecbt/pkg/vecbt"
)

type fakeLister struct {
	runs []vecbt.Run
	err  error
}

func (f *fakeLister) ListRuns(context.Context, vecbt.RunFilter) ([]vecbt.Run, error) {
	return f.runs, f.err
}

func ptr(v float64) *float64 { return &v }

func sampleRuns() []vecbt.Run {
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return []vecbt.Run{
		{ID: "a", Symbol: "SPY", Strategy: "sma-cross", CreatedAt: t0,
			Metrics: vecbt.Metrics{TotalReturn: 0.10, Sharpe: ptr(0.5)}},
		{ID: "b", Symbol: "QQQ", Strategy: "momentum", CreatedAt: t0.Add(time.Hour),
			Metrics: vecbt.Metrics{TotalReturn: 0.30}},
		{ID: "c", Symbol: "IWM", Strategy: "mean-reversion", CreatedAt: t0.Add(2 * time.Hour),
			Metrics: vecbt.Metrics{TotalReturn: -0.05, Sharpe: ptr(1.2)}},
	}
}

func ready(t *testing.T, m model) model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(model)
}

func send(m model, msg tea.Msg) model {
	next, _ := m.Update(msg)
	return next.(model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelLoadsNewestFirst(t *testing.T) {
	m := ready(t, initialModel(&fakeLister{}, vecbt.RunFilter{}))
	m = send(m, runsLoadedMsg{runs: sampleRuns()})

	if len(m.runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(m.runs))
	}
	if got := m.runs[0].ID; got != "c" {
		t.Errorf("first run = %q, want newest %q", got, "c")
	}
	if !strings.Contains(m.View(), "count: 3") {
		t.Error("header should show the run count")
	}
}

func TestModelSortModes(t *testing.T) {
	m := ready(t, initialModel(&fakeLister{}, vecbt.RunFilter{}))
	m = send(m, runsLoadedMsg{runs: sampleRuns()})

	m = send(m, key("s"))
	if m.sortMode != sortReturn || m.runs[0].ID != "b" {
		t.Errorf("return sort: got mode %d first %q, want b", m.sortMode, m.runs[0].ID)
	}
	m = send(m, key("s"))
	ids := []string{m.runs[0].ID, m.runs[1].ID, m.runs[2].ID}
	if strings.Join(ids, "") != "cab" {
		t.Errorf("sharpe sort: got %v, want undefined sharpe last", ids)
	}
	m = send(m, key("s"))
	if m.sortMode != sortNewest {
		t.Errorf("sort mode should wrap, got %d", m.sortMode)
	}
}

func TestModelSelectionAndDetail(t *testing.T) {
	m := ready(t, initialModel(&fakeLister{}, vecbt.RunFilter{}))
	m = send(m, runsLoadedMsg{runs: sampleRuns()})

	m = send(m, key("up"))
	if m.selected != 0 {
		t.Errorf("selection should stay at 0, got %d", m.selected)
	}
	m = send(m, key("down"))
	m = send(m, key("down"))
	m = send(m, key("down"))
	if m.selected != 2 {
		t.Errorf("selection should stop at last row, got %d", m.selected)
	}

	m = send(m, key("enter"))
	if !m.detail {
		t.Fatal("enter should open details")
	}
	if !strings.Contains(m.renderContent(), "Created") {
		t.Error("details should be rendered under the selected run")
	}

	// A reload keeps the selected run selected.
	selected := m.runs[m.selected].ID
	m = send(m, runsLoadedMsg{runs: sampleRuns()})
	if m.runs[m.selected].ID != selected {
		t.Errorf("selection moved from %q to %q", selected, m.runs[m.selected].ID)
	}
}

func TestModelLoadError(t *testing.T) {
	m := ready(t, initialModel(&fakeLister{}, vecbt.RunFilter{}))
	m = send(m, runsLoadedMsg{runs: sampleRuns()})
	m = send(m, runsLoadedMsg{err: errors.New("connection refused")})

	if len(m.runs) != 3 {
		t.Error("a failed reload should keep the previous runs")
	}
	if !strings.Contains(m.renderContent(), "connection refused") {
		t.Error("error should be rendered")
	}
}

func TestLoadRunsCmd(t *testing.T) {
	msg := loadRunsCmd(&fakeLister{runs: sampleRuns()}, vecbt.RunFilter{})()
	loaded, ok := msg.(runsLoadedMsg)
	if !ok {
		t.Fatalf("got %T, want runsLoadedMsg", msg)
	}
	if loaded.err != nil || len(loaded.runs) != 3 {
		t.Errorf("got %+v", loaded)
	}
}

func TestPadOrTrunc(t *testing.T) {
	if got := padOrTrunc("abc", 5); got != "abc  " {
		t.Errorf("pad: got %q", got)
	}
	if got := padOrTrunc("abcdef", 3); got != "abc" {
		t.Errorf("trunc: got %q", got)
	}
}
