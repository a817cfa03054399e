package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"stratline/internal/apperr"
	"stratline/internal/config"
	"stratline/internal/domain"
	"stratline/internal/events"
	"stratline/internal/repo"
)

// Approval states shared by activities and their update-history rows.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDeclined = "declined"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// notFound translates the repo sentinel into the typed error callers match on.
func notFound(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}

// InitPlan creates a plan together with its default config and seed rule set.
func (e Engine) InitPlan(ctx context.Context, id, title, description, startDate, endDate, actorID string) (domain.Plan, error) {
	if title == "" {
		return domain.Plan{}, apperr.ValidationError{Field: "title", Reason: "is required"}
	}
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Plan{
		ID:          id,
		Title:       title,
		Description: description,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      "active",
		CreatedAt:   e.nowString(),
	}
	cfg := config.Default(p.ID)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Plan{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertPlan(ctx, tx, p); err != nil {
		return domain.Plan{}, err
	}
	if err := e.Repo.UpsertPlanConfigTx(ctx, tx, p.ID, cfg); err != nil {
		return domain.Plan{}, err
	}
	for _, ru := range cfg.SeedRules(p.ID) {
		if err := e.Repo.InsertRule(ctx, tx, ru); err != nil {
			return domain.Plan{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "plan.init", p.ID, "plan", p.ID, actorID, events.EventPayload{"title": p.Title}); err != nil {
		return domain.Plan{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Plan{}, err
	}
	return p, nil
}

func (e Engine) UpdatePlan(ctx context.Context, id string, title, description, startDate, endDate, status *string, actorID string) (domain.Plan, error) {
	if err := e.Repo.UpdatePlan(ctx, id, title, description, startDate, endDate, status); err != nil {
		return domain.Plan{}, notFound("plan", id, err)
	}
	p, err := e.Repo.GetPlan(ctx, id)
	if err != nil {
		return domain.Plan{}, notFound("plan", id, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "plan.updated", p.ID, "plan", p.ID, actorID, events.EventPayload{"title": p.Title}); err != nil {
		return p, err
	}
	return p, tx.Commit()
}

func (e Engine) DeletePlan(ctx context.Context, id, actorID string) error {
	if err := e.Repo.DeletePlan(ctx, id); err != nil {
		return notFound("plan", id, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "plan.deleted", id, "plan", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddPillar(ctx context.Context, planID, title, actorID string) (domain.Pillar, error) {
	if title == "" {
		return domain.Pillar{}, apperr.ValidationError{Field: "title", Reason: "is required"}
	}
	if _, err := e.Repo.GetPlan(ctx, planID); err != nil {
		return domain.Pillar{}, notFound("plan", planID, err)
	}
	siblings, err := e.Repo.ListPillars(ctx, planID)
	if err != nil {
		return domain.Pillar{}, err
	}
	p := domain.Pillar{
		ID:        uuid.New().String(),
		PlanID:    planID,
		Title:     title,
		Position:  len(siblings) + 1,
		CreatedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPillar(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "pillar.created", planID, "pillar", p.ID, actorID, events.EventPayload{"title": p.Title}); err != nil {
		return p, err
	}
	return p, tx.Commit()
}

func (e Engine) UpdatePillar(ctx context.Context, id string, title *string, position *int, actorID string) (domain.Pillar, error) {
	p, err := e.Repo.GetPillar(ctx, id)
	if err != nil {
		return p, notFound("pillar", id, err)
	}
	if title != nil {
		if *title == "" {
			return p, apperr.ValidationError{Field: "title", Reason: "is required"}
		}
		p.Title = *title
	}
	if position != nil {
		p.Position = *position
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdatePillar(ctx, tx, p); err != nil {
		return p, notFound("pillar", id, err)
	}
	if err := e.Events.Append(ctx, tx, "pillar.updated", p.PlanID, "pillar", p.ID, actorID, events.EventPayload{"title": p.Title}); err != nil {
		return p, err
	}
	return p, tx.Commit()
}

func (e Engine) DeletePillar(ctx context.Context, id, actorID string) error {
	p, err := e.Repo.GetPillar(ctx, id)
	if err != nil {
		return notFound("pillar", id, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeletePillar(ctx, tx, id); err != nil {
		return notFound("pillar", id, err)
	}
	if err := e.Events.Append(ctx, tx, "pillar.deleted", p.PlanID, "pillar", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddObjective(ctx context.Context, planID, pillarID, title string, weight float64, actorID string) (domain.Objective, error) {
	if title == "" {
		return domain.Objective{}, apperr.ValidationError{Field: "title", Reason: "is required"}
	}
	if weight < 0 {
		return domain.Objective{}, apperr.ValidationError{Field: "weight", Reason: "must not be negative"}
	}
	pillar, err := e.Repo.GetPillar(ctx, pillarID)
	if err != nil {
		return domain.Objective{}, notFound("pillar", pillarID, err)
	}
	if pillar.PlanID != planID {
		return domain.Objective{}, apperr.ValidationError{Field: "pillar_id", Reason: "belongs to a different plan"}
	}
	siblings, err := e.Repo.ListObjectives(ctx, planID)
	if err != nil {
		return domain.Objective{}, err
	}
	position := 1
	for _, s := range siblings {
		if s.PillarID == pillarID {
			position++
		}
	}
	o := domain.Objective{
		ID:        uuid.New().String(),
		PlanID:    planID,
		PillarID:  pillarID,
		Title:     title,
		Weight:    weight,
		Position:  position,
		CreatedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertObjective(ctx, tx, o); err != nil {
		return o, err
	}
	if err := e.Events.Append(ctx, tx, "objective.created", planID, "objective", o.ID, actorID, events.EventPayload{"title": o.Title, "weight": o.Weight}); err != nil {
		return o, err
	}
	return o, tx.Commit()
}

func (e Engine) UpdateObjective(ctx context.Context, id string, title *string, weight *float64, position *int, actorID string) (domain.Objective, error) {
	o, err := e.Repo.GetObjective(ctx, id)
	if err != nil {
		return o, notFound("objective", id, err)
	}
	if title != nil {
		if *title == "" {
			return o, apperr.ValidationError{Field: "title", Reason: "is required"}
		}
		o.Title = *title
	}
	if weight != nil {
		if *weight < 0 {
			return o, apperr.ValidationError{Field: "weight", Reason: "must not be negative"}
		}
		o.Weight = *weight
	}
	if position != nil {
		o.Position = *position
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateObjective(ctx, tx, o); err != nil {
		return o, notFound("objective", id, err)
	}
	if err := e.Events.Append(ctx, tx, "objective.updated", o.PlanID, "objective", o.ID, actorID, events.EventPayload{"title": o.Title, "weight": o.Weight}); err != nil {
		return o, err
	}
	return o, tx.Commit()
}

func (e Engine) DeleteObjective(ctx context.Context, id, actorID string) error {
	o, err := e.Repo.GetObjective(ctx, id)
	if err != nil {
		return notFound("objective", id, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteObjective(ctx, tx, id); err != nil {
		return notFound("objective", id, err)
	}
	if err := e.Events.Append(ctx, tx, "objective.deleted", o.PlanID, "objective", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddInitiative(ctx context.Context, planID, objectiveID, title string, weight float64, actorID string) (domain.Initiative, error) {
	if title == "" {
		return domain.Initiative{}, apperr.ValidationError{Field: "title", Reason: "is required"}
	}
	if weight < 0 {
		return domain.Initiative{}, apperr.ValidationError{Field: "weight", Reason: "must not be negative"}
	}
	obj, err := e.Repo.GetObjective(ctx, objectiveID)
	if err != nil {
		return domain.Initiative{}, notFound("objective", objectiveID, err)
	}
	if obj.PlanID != planID {
		return domain.Initiative{}, apperr.ValidationError{Field: "objective_id", Reason: "belongs to a different plan"}
	}
	siblings, err := e.Repo.ListInitiatives(ctx, planID)
	if err != nil {
		return domain.Initiative{}, err
	}
	position := 1
	for _, s := range siblings {
		if s.ObjectiveID == objectiveID {
			position++
		}
	}
	i := domain.Initiative{
		ID:          uuid.New().String(),
		PlanID:      planID,
		ObjectiveID: objectiveID,
		Title:       title,
		Weight:      weight,
		Position:    position,
		CreatedAt:   e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return i, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertInitiative(ctx, tx, i); err != nil {
		return i, err
	}
	if err := e.Events.Append(ctx, tx, "initiative.created", planID, "initiative", i.ID, actorID, events.EventPayload{"title": i.Title, "weight": i.Weight}); err != nil {
		return i, err
	}
	return i, tx.Commit()
}

func (e Engine) UpdateInitiative(ctx context.Context, id string, title *string, weight *float64, position *int, actorID string) (domain.Initiative, error) {
	i, err := e.Repo.GetInitiative(ctx, id)
	if err != nil {
		return i, notFound("initiative", id, err)
	}
	if title != nil {
		if *title == "" {
			return i, apperr.ValidationError{Field: "title", Reason: "is required"}
		}
		i.Title = *title
	}
	if weight != nil {
		if *weight < 0 {
			return i, apperr.ValidationError{Field: "weight", Reason: "must not be negative"}
		}
		i.Weight = *weight
	}
	if position != nil {
		i.Position = *position
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return i, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateInitiative(ctx, tx, i); err != nil {
		return i, notFound("initiative", id, err)
	}
	if err := e.Events.Append(ctx, tx, "initiative.updated", i.PlanID, "initiative", i.ID, actorID, events.EventPayload{"title": i.Title, "weight": i.Weight}); err != nil {
		return i, err
	}
	return i, tx.Commit()
}

func (e Engine) DeleteInitiative(ctx context.Context, id, actorID string) error {
	i, err := e.Repo.GetInitiative(ctx, id)
	if err != nil {
		return notFound("initiative", id, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteInitiative(ctx, tx, id); err != nil {
		return notFound("initiative", id, err)
	}
	if err := e.Events.Append(ctx, tx, "initiative.deleted", i.PlanID, "initiative", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// actorRole resolves the acting user's role, defaulting to contributor for
// actors without a user record (legacy header auth).
func (e Engine) actorRole(ctx context.Context, actorID string) string {
	u, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return "contributor"
	}
	return u.Role
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
