package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/planner"
	"github.com/blackwell-systems/distplan/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestListHistoryByPackage(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	plans := []*store.Plan{
		{CreatedAt: base, Outcome: planner.KindSuccess, Changes: []store.Change{{Package: "zsh", Mark: "upgrade"}}},
		{CreatedAt: base.Add(time.Hour), Outcome: planner.KindSuccess, Changes: []store.Change{{Package: "bash", Mark: "upgrade"}}},
		{CreatedAt: base.Add(2 * time.Hour), Outcome: planner.KindSuccess, Changes: []store.Change{{Package: "zsh", Mark: "remove"}}},
	}
	for _, p := range plans {
		if err := st.InsertPlan(p); err != nil {
			t.Fatalf("Failed to insert plan: %v", err)
		}
	}

	got, err := listHistory(st, 0, "zsh")
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(got) != 2 || got[0].ID != plans[2].ID || got[1].ID != plans[0].ID {
		t.Errorf("listHistory(zsh) returned %d plans, want plans %d and %d newest first", len(got), plans[2].ID, plans[0].ID)
	}

	got, err = listHistory(st, 1, "zsh")
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(got) != 1 || got[0].ID != plans[2].ID {
		t.Errorf("limit not applied: %d plans", len(got))
	}

	got, err = listHistory(st, 0, "")
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("listHistory() returned %d plans, want 3", len(got))
	}
}

func TestRenderRecordFailure(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	p := &store.Plan{
		ID:      7,
		Outcome: planner.KindInsufficientSpace,
		Message: "insufficient space: /boot needs 4.0 KiB, short by 3.0 KiB",
		Space:   []store.Space{{MountPoint: "/boot", RequiredBytes: 4096, ShortBy: 3072}},
	}
	var buf bytes.Buffer
	renderRecord(&buf, p)

	out := buf.String()
	if !strings.Contains(out, "Plan #7") || !strings.Contains(out, planner.KindInsufficientSpace) {
		t.Errorf("header missing:\n%s", out)
	}
	if !strings.Contains(out, "short by 3.0 KiB") {
		t.Errorf("deficit missing:\n%s", out)
	}
	if strings.Contains(out, "Nothing to change") {
		t.Errorf("failed plans should not render a change table:\n%s", out)
	}
}

func TestRecordedChanges(t *testing.T) {
	got := recordedChanges([]store.Change{
		{Package: "a", Mark: "purge", FromVersion: "1"},
		{Package: "b", Mark: "bogus"},
	})
	if got[0].Mark != cache.MarkPurge || got[0].From != "1" {
		t.Errorf("recordedChanges()[0] = %+v", got[0])
	}
	if got[1].Mark != cache.MarkKeep {
		t.Errorf("unknown marks should become keep, got %v", got[1].Mark)
	}
}
