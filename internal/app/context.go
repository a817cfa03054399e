package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stratline/internal/config"
	"stratline/internal/domain"
	"stratline/internal/repo"
)

// ResolvePlanAndConfig picks the active plan and ensures a plan + config exist
// in the DB, seeding defaults if missing. It prefers the override, then the
// single plan in the workspace. A missing plan is created on the fly.
func ResolvePlanAndConfig(ctx context.Context, planOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	planID := planOverride
	if planID == "" {
		if p, err := r.SinglePlan(ctx); err == nil {
			planID = p.ID
		} else {
			return "", nil, fmt.Errorf("plan not specified; use --plan")
		}
	}
	seedCfg := config.Default(planID)

	if _, err := r.GetPlan(ctx, planID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createPlan(ctx, r, planID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetPlanConfig(ctx, planID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertPlanConfig(ctx, planID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed plan config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Plan.ID = planID
	return planID, cfg, nil
}

// createPlan inserts a minimal plan footprint plus the seed rule set.
func createPlan(ctx context.Context, r repo.Repo, planID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(planID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p := domain.Plan{
		ID:        planID,
		Title:     planID,
		Status:    "active",
		CreatedAt: now,
	}
	if err := r.InsertPlan(ctx, tx, p); err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	if err := r.UpsertPlanConfigTx(ctx, tx, planID, seedCfg); err != nil {
		return fmt.Errorf("insert plan config: %w", err)
	}
	for _, ru := range seedCfg.SeedRules(planID) {
		if err := r.InsertRule(ctx, tx, ru); err != nil {
			return fmt.Errorf("seed rule %s: %w", ru.ID, err)
		}
	}
	return tx.Commit()
}
