package rules_test

import (
	"testing"
	"time"

	"stratline/internal/domain"
	"stratline/internal/rules"
)

var (
	now      = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	past     = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	future   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	zeroDate = time.Time{}
)

func TestClassifyDefaults(t *testing.T) {
	set := rules.Defaults("plan-1")
	cases := []struct {
		name     string
		progress float64
		endDate  time.Time
		want     string
	}{
		{"zero is not started", 0, future, rules.StatusNotStarted},
		{"zero without deadline", 0, zeroDate, rules.StatusNotStarted},
		{"low progress delayed", 30, future, rules.StatusDelayed},
		{"upper delayed boundary", 69.99, future, rules.StatusDelayed},
		{"lower on-track boundary", 70, future, rules.StatusOnTrack},
		{"upper on-track boundary", 99.99, future, rules.StatusOnTrack},
		{"complete", 100, future, rules.StatusCompleted},
		{"complete past deadline", 100, past, rules.StatusCompleted},
		{"overdue beats range", 50, past, rules.StatusOverdue},
		{"overdue beats not started", 0, past, rules.StatusOverdue},
		{"no deadline never overdue", 50, zeroDate, rules.StatusDelayed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rules.Classify(tc.progress, tc.endDate, now, set)
			if got != tc.want {
				t.Fatalf("Classify(%v) = %q, want %q", tc.progress, got, tc.want)
			}
		})
	}
}

func TestClassifyEmptySet(t *testing.T) {
	if got := rules.Classify(42, future, now, nil); got != rules.Unclassified {
		t.Fatalf("expected %q, got %q", rules.Unclassified, got)
	}
}

func TestClassifyGapFallsThrough(t *testing.T) {
	set := []domain.Rule{
		{ID: "r1", Status: "Low", Min: 0, Max: 40, Position: 1},
		{ID: "r2", Status: "High", Min: 60, Max: 100, Position: 2},
	}
	if got := rules.Classify(50, future, now, set); got != rules.Unclassified {
		t.Fatalf("expected gap to be %q, got %q", rules.Unclassified, got)
	}
}

func TestClassifyOverlapAscendingMinWins(t *testing.T) {
	// Overlapping ranges resolve by ascending min, position breaking ties.
	set := []domain.Rule{
		{ID: "wide", Status: "Wide", Min: 0, Max: 100, Position: 2},
		{ID: "narrow", Status: "Narrow", Min: 40, Max: 60, Position: 1},
	}
	if got := rules.Classify(50, future, now, set); got != "Wide" {
		t.Fatalf("expected lower-min rule to win, got %q", got)
	}
}

func TestClassifyUnboundedRule(t *testing.T) {
	set := []domain.Rule{
		{ID: "done", Status: "Done", Min: 100, Unbounded: true, Position: 1},
	}
	if got := rules.Classify(150, future, now, set); got != "Done" {
		t.Fatalf("unbounded rule should match above min, got %q", got)
	}
	if got := rules.Classify(99, future, now, set); got != rules.Unclassified {
		t.Fatalf("below min should not match, got %q", got)
	}
}

func TestKnownCondition(t *testing.T) {
	if !rules.KnownCondition("") || !rules.KnownCondition(rules.ConditionOverdue) {
		t.Fatalf("empty and overdue must be known")
	}
	if rules.KnownCondition("behind_schedule") {
		t.Fatalf("unknown condition accepted")
	}
}
