package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stratline/internal/apperr"
	"stratline/internal/config"
	"stratline/internal/db"
	"stratline/internal/domain"
	"stratline/internal/engine"
	"stratline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("plan-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitPlan(ctx, "plan-1", "Test Plan", "", "", "", "tester"); err != nil {
		t.Fatalf("init plan: %v", err)
	}
	if _, err := eng.CreateUser(ctx, "admin-1", "Admin", "administrator", "tester"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := eng.CreateUser(ctx, "approver-1", "Approver", "approver", "admin-1"); err != nil {
		t.Fatalf("create approver: %v", err)
	}
	if _, err := eng.CreateUser(ctx, "contrib-1", "Contributor", "contributor", "admin-1"); err != nil {
		t.Fatalf("create contributor: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

// newActivity builds the minimal hierarchy and returns an initiative-attached
// activity.
func newActivity(t *testing.T, env testEnv, endDate string) domain.Activity {
	t.Helper()
	pillar, err := env.Engine.AddPillar(env.Ctx, "plan-1", "Pillar", "admin-1")
	if err != nil {
		t.Fatalf("add pillar: %v", err)
	}
	obj, err := env.Engine.AddObjective(env.Ctx, "plan-1", pillar.ID, "Objective", 1, "admin-1")
	if err != nil {
		t.Fatalf("add objective: %v", err)
	}
	init, err := env.Engine.AddInitiative(env.Ctx, "plan-1", obj.ID, "Initiative", 1, "admin-1")
	if err != nil {
		t.Fatalf("add initiative: %v", err)
	}
	a, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		PlanID:       "plan-1",
		InitiativeID: init.ID,
		Title:        "Activity",
		Weight:       1,
		EndDate:      endDate,
		ActorID:      "contrib-1",
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	return a
}

func TestSubmitLeavesRecordedProgress(t *testing.T) {
	env := newTestEnv(t)
	a := newActivity(t, env, "")

	u, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 50, "halfway", "contrib-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if u.ApprovalState != engine.ApprovalPending {
		t.Fatalf("update state %s, want pending", u.ApprovalState)
	}
	if u.Status != "Delayed" {
		t.Fatalf("prospective status %s, want Delayed", u.Status)
	}

	got, err := env.Engine.Repo.GetActivity(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("get activity: %v", err)
	}
	if got.Progress != 0 {
		t.Fatalf("recorded progress moved to %v before approval", got.Progress)
	}
	if got.Status != "Not Started" {
		t.Fatalf("recorded status moved to %s before approval", got.Status)
	}
	if got.ApprovalStatus != engine.ApprovalPending {
		t.Fatalf("approval status %s, want pending", got.ApprovalStatus)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	a := newActivity(t, env, "")
	var ve apperr.ValidationError
	if _, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 50, "", "contrib-1"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for empty comment, got %v", err)
	}
	if _, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 101, "too much", "contrib-1"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for progress > 100, got %v", err)
	}
	if _, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, -1, "negative", "contrib-1"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for negative progress, got %v", err)
	}
}

func TestApproveCopiesPendingFigures(t *testing.T) {
	env := newTestEnv(t)
	a := newActivity(t, env, "")
	if _, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 80, "nearly there", "contrib-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, err := env.Engine.ApproveUpdate(env.Ctx, a.ID, "approver-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Progress != 80 {
		t.Fatalf("progress %v, want 80", got.Progress)
	}
	if got.Status != "On Track" {
		t.Fatalf("status %s, want On Track", got.Status)
	}
	if got.ApprovalStatus != engine.ApprovalApproved {
		t.Fatalf("approval status %s, want approved", got.ApprovalStatus)
	}
	if got.DeclineReason != nil {
		t.Fatalf("decline reason should be cleared")
	}

	history, err := env.Engine.UpdateHistory(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ApprovalState != engine.ApprovalApproved {
		t.Fatalf("history row not settled approved: %+v", history)
	}
	if history[0].DecidedAt == nil {
		t.Fatalf("decided_at not set")
	}
}

func TestDeclineKeepsRecordedProgress(t *testing.T) {
	env := newTestEnv(t)
	a := newActivity(t, env, "")
	if _, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 60, "optimistic", "contrib-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var ve apperr.ValidationError
	if _, err := env.Engine.DeclineUpdate(env.Ctx, a.ID, "", "approver-1"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for empty reason, got %v", err)
	}

	got, err := env.Engine.DeclineUpdate(env.Ctx, a.ID, "no evidence", "approver-1")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.Progress != 0 {
		t.Fatalf("recorded progress moved to %v on decline", got.Progress)
	}
	if got.ApprovalStatus != engine.ApprovalDeclined {
		t.Fatalf("approval status %s, want declined", got.ApprovalStatus)
	}
	if got.DeclineReason == nil || *got.DeclineReason != "no evidence" {
		t.Fatalf("decline reason not stored: %v", got.DeclineReason)
	}

	history, _ := env.Engine.UpdateHistory(env.Ctx, a.ID)
	if len(history) != 1 || history[0].ApprovalState != engine.ApprovalDeclined {
		t.Fatalf("history row not settled declined: %+v", history)
	}
	if history[0].DeclineReason == nil || *history[0].DeclineReason != "no evidence" {
		t.Fatalf("history decline reason not stored")
	}
}

func TestResubmitSupersedesPending(t *testing.T) {
	env := newTestEnv(t)
	a := newActivity(t, env, "")
	first, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 30, "first", "contrib-1")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 40, "second", "contrib-1")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	history, err := env.Engine.UpdateHistory(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	pendingCount := 0
	for _, u := range history {
		if u.ApprovalState == engine.ApprovalPending {
			pendingCount++
			if u.ID != second.ID {
				t.Fatalf("wrong row left pending")
			}
		}
		if u.ID == first.ID {
			if u.ApprovalState != engine.ApprovalDeclined {
				t.Fatalf("superseded row state %s, want declined", u.ApprovalState)
			}
			if u.DeclineReason == nil || *u.DeclineReason != "superseded by newer update" {
				t.Fatalf("superseded row reason %v", u.DeclineReason)
			}
		}
	}
	if pendingCount != 1 {
		t.Fatalf("expected exactly one pending row, got %d", pendingCount)
	}

	// Approving now takes the newest figures.
	got, err := env.Engine.ApproveUpdate(env.Ctx, a.ID, "admin-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Progress != 40 {
		t.Fatalf("approved progress %v, want 40", got.Progress)
	}
}

func TestContributorCannotDecide(t *testing.T) {
	env := newTestEnv(t)
	a := newActivity(t, env, "")
	if _, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 20, "try", "contrib-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	var pe apperr.PermissionError
	if _, err := env.Engine.ApproveUpdate(env.Ctx, a.ID, "contrib-1"); !errors.As(err, &pe) {
		t.Fatalf("expected permission error on approve, got %v", err)
	}
	if _, err := env.Engine.DeclineUpdate(env.Ctx, a.ID, "nope", "contrib-1"); !errors.As(err, &pe) {
		t.Fatalf("expected permission error on decline, got %v", err)
	}
	// Unknown actors default to contributor.
	if _, err := env.Engine.ApproveUpdate(env.Ctx, a.ID, "nobody"); !errors.As(err, &pe) {
		t.Fatalf("expected permission error for unknown actor, got %v", err)
	}
}

func TestApproveWithoutPendingIsTolerated(t *testing.T) {
	env := newTestEnv(t)
	a := newActivity(t, env, "")
	got, err := env.Engine.ApproveUpdate(env.Ctx, a.ID, "approver-1")
	if err != nil {
		t.Fatalf("approve without pending: %v", err)
	}
	if got.ApprovalStatus != engine.ApprovalApproved {
		t.Fatalf("approval status %s, want approved", got.ApprovalStatus)
	}
	if got.Progress != 0 {
		t.Fatalf("progress changed without a pending update")
	}
}

func TestActivityApprovalOnCreate(t *testing.T) {
	env := newTestEnv(t)
	attached := newActivity(t, env, "")
	if attached.ApprovalStatus != engine.ApprovalApproved {
		t.Fatalf("attached activity approval %s, want approved", attached.ApprovalStatus)
	}

	byAdmin, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		PlanID: "plan-1", Title: "Standalone by admin", Weight: 1, ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("create standalone: %v", err)
	}
	if byAdmin.ApprovalStatus != engine.ApprovalApproved {
		t.Fatalf("admin standalone approval %s, want approved", byAdmin.ApprovalStatus)
	}

	byContrib, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		PlanID: "plan-1", Title: "Standalone by contributor", Weight: 1, ActorID: "contrib-1",
	})
	if err != nil {
		t.Fatalf("create standalone: %v", err)
	}
	if byContrib.ApprovalStatus != engine.ApprovalPending {
		t.Fatalf("contributor standalone approval %s, want pending", byContrib.ApprovalStatus)
	}
}

func TestSystemRuleImmutable(t *testing.T) {
	env := newTestEnv(t)
	var pe apperr.PermissionError
	status := "Renamed"
	if _, err := env.Engine.UpdateRule(env.Ctx, engine.RuleUpdateOptions{
		ID: "rule-on-track", Status: &status, ActorID: "admin-1",
	}); !errors.As(err, &pe) {
		t.Fatalf("expected permission error editing system rule, got %v", err)
	}
	if err := env.Engine.DeleteRule(env.Ctx, "rule-on-track", "admin-1"); !errors.As(err, &pe) {
		t.Fatalf("expected permission error deleting system rule, got %v", err)
	}

	// The Delayed rule is the one editable seed rule.
	desc := "tightened"
	max := 59.99
	ru, err := env.Engine.UpdateRule(env.Ctx, engine.RuleUpdateOptions{
		ID: "rule-delayed", Description: &desc, Max: &max, ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("update custom rule: %v", err)
	}
	if ru.Max != 59.99 {
		t.Fatalf("rule max %v, want 59.99", ru.Max)
	}
}

func TestRuleLifecycle(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.Engine.CreateRule(env.Ctx, "plan-1", domain.Rule{
		Status: "At Risk", Min: 60, Max: 69.99,
	}, "admin-1")
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if created.IsSystem {
		t.Fatalf("created rule must not be a system rule")
	}
	if created.Position != 6 {
		t.Fatalf("new rule position %d, want 6", created.Position)
	}

	moved, err := env.Engine.MoveRule(env.Ctx, created.ID, 3, "admin-1")
	if err != nil {
		t.Fatalf("move rule: %v", err)
	}
	for i, ru := range moved {
		if ru.Position != i+1 {
			t.Fatalf("positions not contiguous after move: %+v", moved)
		}
		if ru.ID == created.ID && ru.Position != 3 {
			t.Fatalf("moved rule at position %d, want 3", ru.Position)
		}
	}

	if err := env.Engine.DeleteRule(env.Ctx, created.ID, "admin-1"); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	remaining, err := env.Engine.ListRules(env.Ctx, "plan-1")
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	for i, ru := range remaining {
		if ru.Position != i+1 {
			t.Fatalf("positions not resequenced after delete: %+v", remaining)
		}
	}
}

func TestPlanReport(t *testing.T) {
	env := newTestEnv(t)
	pillar, _ := env.Engine.AddPillar(env.Ctx, "plan-1", "Pillar", "admin-1")
	obj, _ := env.Engine.AddObjective(env.Ctx, "plan-1", pillar.ID, "Objective", 1, "admin-1")
	init, _ := env.Engine.AddInitiative(env.Ctx, "plan-1", obj.ID, "Initiative", 1, "admin-1")

	heavy, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		PlanID: "plan-1", InitiativeID: init.ID, Title: "Heavy", Weight: 3, ActorID: "contrib-1",
	})
	if err != nil {
		t.Fatalf("create heavy: %v", err)
	}
	light, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		PlanID: "plan-1", InitiativeID: init.ID, Title: "Light", Weight: 1, ActorID: "contrib-1",
	})
	if err != nil {
		t.Fatalf("create light: %v", err)
	}
	if _, err := env.Engine.SubmitUpdate(env.Ctx, heavy.ID, 100, "done", "contrib-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ApproveUpdate(env.Ctx, heavy.ID, "approver-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	rep, err := env.Engine.PlanReport(env.Ctx, "plan-1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	// (100*3 + 0*1) / 4 = 75 at every level of this single chain.
	if rep.Progress != 75 {
		t.Fatalf("plan progress %d, want 75", rep.Progress)
	}
	byID := map[string]engine.ReportNode{}
	for _, n := range rep.Nodes {
		byID[n.ID] = n
	}
	if byID[init.ID].Progress != 75 || byID[obj.ID].Progress != 75 || byID[pillar.ID].Progress != 75 {
		t.Fatalf("container progress wrong: %+v", rep.Nodes)
	}
	if byID[heavy.ID].Status != "Completed As Per Target" {
		t.Fatalf("heavy status %s", byID[heavy.ID].Status)
	}
	if byID[light.ID].Status != "Not Started" {
		t.Fatalf("light status %s", byID[light.ID].Status)
	}
	if byID[pillar.ID].Code != "P1" || byID[heavy.ID].Code == "" {
		t.Fatalf("codes not rendered: %+v", byID[pillar.ID])
	}
}

func TestReportClassifiesOverdueAtReadTime(t *testing.T) {
	env := newTestEnv(t)
	// Deadline before the stubbed clock (2024-06-01).
	a := newActivity(t, env, "2024-05-01")
	if _, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 50, "late", "contrib-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ApproveUpdate(env.Ctx, a.ID, "approver-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	rep, err := env.Engine.PlanReport(env.Ctx, "plan-1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	for _, n := range rep.Nodes {
		if n.ID == a.ID && n.Status != "Overdue" {
			t.Fatalf("activity status %s, want Overdue", n.Status)
		}
	}
}

func TestStandaloneExcludedFromRollup(t *testing.T) {
	env := newTestEnv(t)
	newActivity(t, env, "")
	standalone, err := env.Engine.CreateActivity(env.Ctx, engine.ActivityCreateOptions{
		PlanID: "plan-1", Title: "Standalone", Weight: 5, ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("create standalone: %v", err)
	}
	if _, err := env.Engine.SubmitUpdate(env.Ctx, standalone.ID, 100, "done", "contrib-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ApproveUpdate(env.Ctx, standalone.ID, "approver-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	rep, err := env.Engine.PlanReport(env.Ctx, "plan-1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Progress != 0 {
		t.Fatalf("standalone activity leaked into rollup: plan progress %d", rep.Progress)
	}
	for _, n := range rep.Nodes {
		if n.ID == standalone.ID {
			t.Fatalf("standalone activity present in report tree")
		}
	}
}

func TestEventAppendOnWorkflow(t *testing.T) {
	env := newTestEnv(t)
	a := newActivity(t, env, "")
	if _, err := env.Engine.SubmitUpdate(env.Ctx, a.ID, 10, "start", "contrib-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ApproveUpdate(env.Ctx, a.ID, "approver-1"); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, a.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	types := map[string]bool{}
	for rows.Next() {
		var typ string
		rows.Scan(&typ)
		types[typ] = true
	}
	for _, want := range []string{"activity.created", "activity.update.submitted", "activity.update.approved"} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}
}
