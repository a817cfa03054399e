package engine

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"stratline/internal/apperr"
	"stratline/internal/domain"
	"stratline/internal/events"
	"stratline/internal/rules"
)

func (e Engine) ListRules(ctx context.Context, planID string) ([]domain.Rule, error) {
	if _, err := e.Repo.GetPlan(ctx, planID); err != nil {
		return nil, notFound("plan", planID, err)
	}
	return e.Repo.ListRules(ctx, planID)
}

// CreateRule appends a custom rule at the end of the plan's evaluation order.
// Overlaps with existing ranges are allowed; position decides.
func (e Engine) CreateRule(ctx context.Context, planID string, ru domain.Rule, actorID string) (domain.Rule, error) {
	if err := validateRule(ru); err != nil {
		return domain.Rule{}, err
	}
	if _, err := e.Repo.GetPlan(ctx, planID); err != nil {
		return domain.Rule{}, notFound("plan", planID, err)
	}
	existing, err := e.Repo.ListRules(ctx, planID)
	if err != nil {
		return domain.Rule{}, err
	}
	ru.PlanID = planID
	ru.IsSystem = false
	ru.Position = len(existing) + 1
	if ru.ID == "" {
		ru.ID = uuid.New().String()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ru, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRule(ctx, tx, ru); err != nil {
		return ru, err
	}
	if err := e.Events.Append(ctx, tx, "rule.created", planID, "rule", ru.ID, actorID, events.EventPayload{"status": ru.Status}); err != nil {
		return ru, err
	}
	return ru, tx.Commit()
}

// RuleUpdateOptions are editable rule fields. System rules reject all of them.
type RuleUpdateOptions struct {
	ID          string
	Status      *string
	Description *string
	Min         *float64
	Max         *float64
	Unbounded   *bool
	Condition   *string
	ActorID     string
}

func (e Engine) UpdateRule(ctx context.Context, opts RuleUpdateOptions) (domain.Rule, error) {
	ru, err := e.Repo.GetRule(ctx, opts.ID)
	if err != nil {
		return ru, notFound("rule", opts.ID, err)
	}
	if ru.IsSystem {
		return ru, apperr.PermissionError{Reason: "system rule " + ru.Status + " cannot be modified"}
	}
	if opts.Status != nil {
		ru.Status = *opts.Status
	}
	if opts.Description != nil {
		ru.Description = *opts.Description
	}
	if opts.Min != nil {
		ru.Min = *opts.Min
	}
	if opts.Max != nil {
		ru.Max = *opts.Max
	}
	if opts.Unbounded != nil {
		ru.Unbounded = *opts.Unbounded
	}
	if opts.Condition != nil {
		ru.Condition = *opts.Condition
	}
	if err := validateRule(ru); err != nil {
		return ru, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ru, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRule(ctx, tx, ru); err != nil {
		return ru, notFound("rule", opts.ID, err)
	}
	if err := e.Events.Append(ctx, tx, "rule.updated", ru.PlanID, "rule", ru.ID, opts.ActorID, events.EventPayload{"status": ru.Status}); err != nil {
		return ru, err
	}
	return ru, tx.Commit()
}

func (e Engine) DeleteRule(ctx context.Context, id, actorID string) error {
	ru, err := e.Repo.GetRule(ctx, id)
	if err != nil {
		return notFound("rule", id, err)
	}
	if ru.IsSystem {
		return apperr.PermissionError{Reason: "system rule " + ru.Status + " cannot be deleted"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteRule(ctx, tx, id); err != nil {
		return notFound("rule", id, err)
	}
	if err := e.resequenceRules(ctx, tx, ru.PlanID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rule.deleted", ru.PlanID, "rule", id, actorID, events.EventPayload{"status": ru.Status}); err != nil {
		return err
	}
	return tx.Commit()
}

// MoveRule places a rule at the given 1-based position within its plan's
// evaluation order and resequences the rest.
func (e Engine) MoveRule(ctx context.Context, id string, position int, actorID string) ([]domain.Rule, error) {
	ru, err := e.Repo.GetRule(ctx, id)
	if err != nil {
		return nil, notFound("rule", id, err)
	}
	if position < 1 {
		return nil, apperr.ValidationError{Field: "position", Reason: "must be at least 1"}
	}
	set, err := e.Repo.ListRules(ctx, ru.PlanID)
	if err != nil {
		return nil, err
	}
	ordered := make([]domain.Rule, 0, len(set))
	for _, r := range set {
		if r.ID != id {
			ordered = append(ordered, r)
		}
	}
	if position > len(ordered)+1 {
		position = len(ordered) + 1
	}
	ordered = append(ordered[:position-1], append([]domain.Rule{ru}, ordered[position-1:]...)...)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	for i, r := range ordered {
		if r.Position == i+1 {
			continue
		}
		if err := e.Repo.SetRulePosition(ctx, tx, r.ID, i+1); err != nil {
			return nil, err
		}
		ordered[i].Position = i + 1
	}
	if err := e.Events.Append(ctx, tx, "rule.moved", ru.PlanID, "rule", id, actorID, events.EventPayload{"position": position}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ordered, nil
}

func (e Engine) resequenceRules(ctx context.Context, tx *sql.Tx, planID string) error {
	set, err := e.Repo.ListRulesTx(ctx, tx, planID)
	if err != nil {
		return err
	}
	for i, r := range set {
		if r.Position == i+1 {
			continue
		}
		if err := e.Repo.SetRulePosition(ctx, tx, r.ID, i+1); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(ru domain.Rule) error {
	if ru.Status == "" {
		return apperr.ValidationError{Field: "status", Reason: "is required"}
	}
	if !rules.KnownCondition(ru.Condition) {
		return apperr.ValidationError{Field: "condition", Reason: "unknown condition " + ru.Condition}
	}
	if ru.Condition == "" && !ru.Unbounded && ru.Min > ru.Max {
		return apperr.ValidationError{Field: "min", Reason: "must not exceed max"}
	}
	if ru.Min < 0 {
		return apperr.ValidationError{Field: "min", Reason: "must not be negative"}
	}
	return nil
}
