package engine

import (
	"context"

	"stratline/internal/domain"
	"stratline/internal/repo"
	"stratline/internal/rollup"
	"stratline/internal/rules"
)

// ReportNode is one rendered row of the rolled-up tree.
type ReportNode struct {
	ID             string  `json:"id"`
	ParentID       string  `json:"parent_id,omitempty"`
	Kind           string  `json:"kind"`
	Code           string  `json:"code,omitempty"`
	Title          string  `json:"title"`
	Depth          int     `json:"depth"`
	Weight         float64 `json:"weight"`
	Progress       int     `json:"progress"`
	Status         string  `json:"status,omitempty"`
	ApprovalStatus string  `json:"approval_status,omitempty"`
	ResponsibleID  string  `json:"responsible_id,omitempty"`
}

// Report is a read-time snapshot of one plan: derived progress per node plus
// each activity's classified status.
type Report struct {
	Plan        domain.Plan  `json:"plan"`
	GeneratedAt string       `json:"generated_at"`
	Progress    int          `json:"progress"`
	Nodes       []ReportNode `json:"nodes"`
}

// PlanReport assembles the plan's hierarchy, rolls progress up level by level
// and classifies every activity against the plan's current rule set.
func (e Engine) PlanReport(ctx context.Context, planID string) (Report, error) {
	plan, err := e.Repo.GetPlan(ctx, planID)
	if err != nil {
		return Report{}, notFound("plan", planID, err)
	}
	pillars, err := e.Repo.ListPillars(ctx, planID)
	if err != nil {
		return Report{}, err
	}
	objectives, err := e.Repo.ListObjectives(ctx, planID)
	if err != nil {
		return Report{}, err
	}
	initiatives, err := e.Repo.ListInitiatives(ctx, planID)
	if err != nil {
		return Report{}, err
	}
	activities, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{PlanID: planID})
	if err != nil {
		return Report{}, err
	}
	set, err := e.Repo.ListRules(ctx, planID)
	if err != nil {
		return Report{}, err
	}

	tree := rollup.NewTree(plan.ID)
	tree.Add(&rollup.Node{ID: plan.ID, Kind: rollup.KindPlan, Title: plan.Title})
	for _, p := range pillars {
		tree.Add(&rollup.Node{ID: p.ID, ParentID: plan.ID, Kind: rollup.KindPillar, Title: p.Title, Position: p.Position})
	}
	for _, o := range objectives {
		tree.Add(&rollup.Node{ID: o.ID, ParentID: o.PillarID, Kind: rollup.KindObjective, Title: o.Title, Position: o.Position, Weight: o.Weight})
	}
	for _, i := range initiatives {
		tree.Add(&rollup.Node{ID: i.ID, ParentID: i.ObjectiveID, Kind: rollup.KindInitiative, Title: i.Title, Position: i.Position, Weight: i.Weight})
	}
	now := e.now()
	byID := map[string]domain.Activity{}
	for idx, a := range activities {
		if a.InitiativeID == nil {
			continue
		}
		byID[a.ID] = a
		tree.Add(&rollup.Node{ID: a.ID, ParentID: *a.InitiativeID, Kind: rollup.KindActivity, Title: a.Title, Position: idx + 1, Weight: a.Weight, Progress: a.Progress})
	}

	r := Report{
		Plan:        plan,
		GeneratedAt: e.nowString(),
		Progress:    tree.Progress(plan.ID),
	}
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		for _, c := range tree.Children(id) {
			row := ReportNode{
				ID:       c.ID,
				ParentID: id,
				Kind:     c.Kind,
				Code:     tree.Code(c.ID),
				Title:    c.Title,
				Depth:    depth,
				Weight:   c.Weight,
				Progress: tree.Progress(c.ID),
			}
			if c.Kind == rollup.KindActivity {
				a := byID[c.ID]
				row.Status = rules.Classify(a.Progress, parseDate(a.EndDate), now, set)
				row.ApprovalStatus = a.ApprovalStatus
				if a.ResponsibleID != nil {
					row.ResponsibleID = *a.ResponsibleID
				}
			}
			r.Nodes = append(r.Nodes, row)
			walk(c.ID, depth+1)
		}
	}
	walk(plan.ID, 0)
	return r, nil
}
