package tui

import (
	"github.com/nixlim/sqlsidecar/internal/activity"
	"github.com/nixlim/sqlsidecar/internal/notify"
)

// ActivityFilter holds the current filter state for the activity panel.
type ActivityFilter struct {
	// Surface filters entries to one editor surface. Zero means all.
	Surface notify.Handle

	// Categories is the set of feed categories to display.
	Categories map[string]bool

	// SuccessOnly when true shows only entries marked successful.
	SuccessOnly bool

	// FailureOnly when true shows only entries marked failed.
	FailureOnly bool
}

// AllCategories returns every feed category enabled.
func AllCategories() map[string]bool {
	return map[string]bool{
		activity.CategoryNotify:    true,
		activity.CategoryAnalysis:  true,
		activity.CategoryDiscovery: true,
		activity.CategorySession:   true,
	}
}

// NewActivityFilter returns a filter that shows everything.
func NewActivityFilter() ActivityFilter {
	return ActivityFilter{
		Categories: AllCategories(),
	}
}

// Matches reports whether the entry passes this filter.
func (f *ActivityFilter) Matches(e activity.Entry) bool {
	if f.Surface != 0 && e.Surface != f.Surface {
		return false
	}

	if len(f.Categories) > 0 && !f.Categories[e.Category] {
		return false
	}

	if f.SuccessOnly && e.OK != nil && !*e.OK {
		return false
	}
	if f.FailureOnly && e.OK != nil && *e.OK {
		return false
	}

	return true
}

// FilterMenuState tracks the interactive filter menu.
type FilterMenuState struct {
	Active  bool
	Cursor  int
	Options []FilterOption
}

// FilterOption is one toggleable entry in the filter menu.
type FilterOption struct {
	Label   string
	Key     string
	Enabled bool
}

// NewFilterMenu creates a filter menu with default options.
func NewFilterMenu() FilterMenuState {
	return FilterMenuState{
		Options: []FilterOption{
			{Label: "Notifications", Key: activity.CategoryNotify, Enabled: true},
			{Label: "Analyses", Key: activity.CategoryAnalysis, Enabled: true},
			{Label: "Discovery", Key: activity.CategoryDiscovery, Enabled: true},
			{Label: "Sessions", Key: activity.CategorySession, Enabled: true},
			{Label: "Success Only", Key: "success_only", Enabled: false},
			{Label: "Failure Only", Key: "failure_only", Enabled: false},
		},
	}
}
