package tui

import (
	"testing"

	"github.com/nixlim/sqlsidecar/internal/activity"
)

func boolPtr(b bool) *bool { return &b }

func TestFilterMatchesDefault(t *testing.T) {
	f := NewActivityFilter()

	entries := []activity.Entry{
		{Category: activity.CategoryNotify, Surface: 7},
		{Category: activity.CategoryAnalysis, Surface: 9, OK: boolPtr(true)},
		{Category: activity.CategoryDiscovery, OK: boolPtr(false)},
		{Category: activity.CategorySession},
	}
	for _, e := range entries {
		if !f.Matches(e) {
			t.Errorf("default filter rejected %+v", e)
		}
	}
}

func TestFilterBySurface(t *testing.T) {
	f := NewActivityFilter()
	f.Surface = 7

	if !f.Matches(activity.Entry{Category: activity.CategoryNotify, Surface: 7}) {
		t.Error("expected surface 7 entry to pass")
	}
	if f.Matches(activity.Entry{Category: activity.CategoryNotify, Surface: 9}) {
		t.Error("expected surface 9 entry rejected")
	}
}

func TestFilterByCategory(t *testing.T) {
	f := NewActivityFilter()
	f.Categories[activity.CategoryNotify] = false

	if f.Matches(activity.Entry{Category: activity.CategoryNotify}) {
		t.Error("expected disabled category rejected")
	}
	if !f.Matches(activity.Entry{Category: activity.CategoryAnalysis}) {
		t.Error("expected enabled category to pass")
	}
}

func TestFilterSuccessAndFailureOnly(t *testing.T) {
	f := NewActivityFilter()
	f.SuccessOnly = true

	if f.Matches(activity.Entry{Category: activity.CategoryAnalysis, OK: boolPtr(false)}) {
		t.Error("success-only should reject failures")
	}
	if !f.Matches(activity.Entry{Category: activity.CategoryAnalysis, OK: boolPtr(true)}) {
		t.Error("success-only should pass successes")
	}
	// Entries without a success marker always pass.
	if !f.Matches(activity.Entry{Category: activity.CategoryNotify}) {
		t.Error("success-only should pass unmarked entries")
	}

	f = NewActivityFilter()
	f.FailureOnly = true
	if f.Matches(activity.Entry{Category: activity.CategoryAnalysis, OK: boolPtr(true)}) {
		t.Error("failure-only should reject successes")
	}
	if !f.Matches(activity.Entry{Category: activity.CategoryAnalysis, OK: boolPtr(false)}) {
		t.Error("failure-only should pass failures")
	}
}

func TestFilteredActivityAppliesFilter(t *testing.T) {
	feed := activity.NewFeed(16)
	feed.Add(activity.Entry{Category: activity.CategoryNotify, Surface: 7, Formatted: "n1"})
	feed.Add(activity.Entry{Category: activity.CategoryAnalysis, Surface: 9, Formatted: "a1"})
	feed.Add(activity.Entry{Category: activity.CategoryNotify, Surface: 9, Formatted: "n2"})

	m := newTestModel(t, WithActivityProvider(feed))
	m.filter.Surface = 9

	got := m.filteredActivity()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for surface 9, got %d", len(got))
	}
	if got[0].Formatted != "a1" || got[1].Formatted != "n2" {
		t.Errorf("unexpected order: %q, %q", got[0].Formatted, got[1].Formatted)
	}
}
