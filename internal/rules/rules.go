package rules

import (
	"sort"
	"time"

	"stratline/internal/domain"
)

// Unclassified is returned when no rule matches. Classification never fails.
const Unclassified = "Unclassified"

// ConditionOverdue is the only built-in named condition: the deadline has
// passed and the activity is not complete.
const ConditionOverdue = "overdue"

// KnownCondition reports whether kind names a condition the classifier can
// evaluate. The empty string means a plain range rule.
func KnownCondition(kind string) bool {
	return kind == "" || kind == ConditionOverdue
}

// Classify maps a progress/deadline pair to a status label using the supplied
// rule set. Conditional rules are evaluated first in position order; then the
// exact-zero rule; then range rules by ascending min, first match wins.
func Classify(progress float64, endDate, now time.Time, set []domain.Rule) string {
	for _, r := range sortedByPosition(set) {
		if r.Condition == "" {
			continue
		}
		if conditionHolds(r.Condition, progress, endDate, now) {
			return r.Status
		}
	}

	ranged := rangeRules(set)
	if progress == 0 {
		for _, r := range ranged {
			if r.Min == 0 && r.Max == 0 && !r.Unbounded {
				return r.Status
			}
		}
	}
	for _, r := range ranged {
		if r.Min == 0 && r.Max == 0 && !r.Unbounded {
			continue
		}
		if r.Min <= progress && (r.Unbounded || progress <= r.Max) {
			return r.Status
		}
	}
	return Unclassified
}

func conditionHolds(kind string, progress float64, endDate, now time.Time) bool {
	switch kind {
	case ConditionOverdue:
		return !endDate.IsZero() && endDate.Before(now) && progress < 100
	default:
		return false
	}
}

func sortedByPosition(set []domain.Rule) []domain.Rule {
	out := make([]domain.Rule, len(set))
	copy(out, set)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// rangeRules returns the non-conditional rules ordered by ascending min,
// position breaking ties so overlap resolution stays user-visible.
func rangeRules(set []domain.Rule) []domain.Rule {
	var out []domain.Rule
	for _, r := range set {
		if r.Condition == "" {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Min != out[j].Min {
			return out[i].Min < out[j].Min
		}
		return out[i].Position < out[j].Position
	})
	return out
}

// System rule labels. These four are seeded with IsSystem set and cannot be
// renamed, re-ranged, or deleted.
const (
	StatusNotStarted = "Not Started"
	StatusOnTrack    = "On Track"
	StatusCompleted  = "Completed As Per Target"
	StatusOverdue    = "Overdue"
	StatusDelayed    = "Delayed"
)

// Defaults returns the seed rule set for a new plan: the four system rules
// plus the editable "Delayed" rule that keeps the default partition of [0,100]
// contiguous.
func Defaults(planID string) []domain.Rule {
	return []domain.Rule{
		{ID: "rule-overdue", PlanID: planID, Status: StatusOverdue, Description: "Past deadline and not complete", Condition: ConditionOverdue, IsSystem: true, Position: 1},
		{ID: "rule-not-started", PlanID: planID, Status: StatusNotStarted, Description: "No progress recorded", Min: 0, Max: 0, IsSystem: true, Position: 2},
		{ID: "rule-delayed", PlanID: planID, Status: StatusDelayed, Description: "Progress behind expectations", Min: 0, Max: 69.99, Position: 3},
		{ID: "rule-on-track", PlanID: planID, Status: StatusOnTrack, Description: "Progress within expectations", Min: 70, Max: 99.99, IsSystem: true, Position: 4},
		{ID: "rule-completed", PlanID: planID, Status: StatusCompleted, Description: "Target reached", Min: 100, Unbounded: true, IsSystem: true, Position: 5},
	}
}
