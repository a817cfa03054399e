package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stratline/internal/apperr"
	"stratline/internal/domain"
	"stratline/internal/events"
	"stratline/internal/rules"
)

// ActivityCreateOptions are parameters for creating an activity.
type ActivityCreateOptions struct {
	ID            string
	PlanID        string
	InitiativeID  string
	Title         string
	Weight        float64
	StartDate     string
	EndDate       string
	ResponsibleID string
	ActorID       string
}

// CreateActivity inserts a new activity at zero progress. Activities attached
// to an initiative are approved immediately, as are standalone activities
// created by an administrator; other standalone activities wait for approval.
func (e Engine) CreateActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	if opts.Title == "" {
		return domain.Activity{}, apperr.ValidationError{Field: "title", Reason: "is required"}
	}
	if opts.Weight < 0 {
		return domain.Activity{}, apperr.ValidationError{Field: "weight", Reason: "must not be negative"}
	}
	if _, err := e.Repo.GetPlan(ctx, opts.PlanID); err != nil {
		return domain.Activity{}, notFound("plan", opts.PlanID, err)
	}
	if opts.InitiativeID != "" {
		init, err := e.Repo.GetInitiative(ctx, opts.InitiativeID)
		if err != nil {
			return domain.Activity{}, notFound("initiative", opts.InitiativeID, err)
		}
		if init.PlanID != opts.PlanID {
			return domain.Activity{}, apperr.ValidationError{Field: "initiative_id", Reason: "belongs to a different plan"}
		}
	}
	if opts.ResponsibleID != "" {
		if _, err := e.Repo.GetUser(ctx, opts.ResponsibleID); err != nil {
			return domain.Activity{}, notFound("user", opts.ResponsibleID, err)
		}
	}

	now := e.nowString()
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.PlanID+"|"+opts.Title+"|"+now)).String()
	}
	approval := ApprovalApproved
	if opts.InitiativeID == "" && e.actorRole(ctx, opts.ActorID) != "administrator" {
		approval = ApprovalPending
	}
	a := domain.Activity{
		ID:             id,
		PlanID:         opts.PlanID,
		InitiativeID:   optionalString(opts.InitiativeID),
		Title:          opts.Title,
		Weight:         opts.Weight,
		Progress:       0,
		StartDate:      opts.StartDate,
		EndDate:        opts.EndDate,
		Status:         rules.StatusNotStarted,
		ApprovalStatus: approval,
		ResponsibleID:  optionalString(opts.ResponsibleID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertActivity(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "activity.created", a.PlanID, "activity", a.ID, opts.ActorID, events.EventPayload{
		"title":           a.Title,
		"approval_status": a.ApprovalStatus,
	}); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

// ActivityEditOptions are direct field edits outside the approval workflow.
type ActivityEditOptions struct {
	ID            string
	Title         *string
	Weight        *float64
	StartDate     *string
	EndDate       *string
	ResponsibleID *string
	InitiativeID  *string
	ActorID       string
}

// EditActivity changes descriptive fields only. Progress and status move
// exclusively through the submit/approve workflow.
func (e Engine) EditActivity(ctx context.Context, opts ActivityEditOptions) (domain.Activity, error) {
	a, err := e.Repo.GetActivity(ctx, opts.ID)
	if err != nil {
		return a, notFound("activity", opts.ID, err)
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return a, apperr.ValidationError{Field: "title", Reason: "is required"}
		}
		a.Title = *opts.Title
	}
	if opts.Weight != nil {
		if *opts.Weight < 0 {
			return a, apperr.ValidationError{Field: "weight", Reason: "must not be negative"}
		}
		a.Weight = *opts.Weight
	}
	if opts.StartDate != nil {
		a.StartDate = *opts.StartDate
	}
	if opts.EndDate != nil {
		a.EndDate = *opts.EndDate
	}
	if opts.ResponsibleID != nil {
		if *opts.ResponsibleID == "" {
			a.ResponsibleID = nil
		} else {
			if _, err := e.Repo.GetUser(ctx, *opts.ResponsibleID); err != nil {
				return a, notFound("user", *opts.ResponsibleID, err)
			}
			a.ResponsibleID = opts.ResponsibleID
		}
	}
	if opts.InitiativeID != nil {
		if *opts.InitiativeID == "" {
			a.InitiativeID = nil
		} else {
			init, err := e.Repo.GetInitiative(ctx, *opts.InitiativeID)
			if err != nil {
				return a, notFound("initiative", *opts.InitiativeID, err)
			}
			if init.PlanID != a.PlanID {
				return a, apperr.ValidationError{Field: "initiative_id", Reason: "belongs to a different plan"}
			}
			a.InitiativeID = opts.InitiativeID
		}
	}
	a.UpdatedAt = e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateActivity(ctx, tx, a); err != nil {
		return a, notFound("activity", opts.ID, err)
	}
	if err := e.Events.Append(ctx, tx, "activity.updated", a.PlanID, "activity", a.ID, opts.ActorID, events.EventPayload{"title": a.Title}); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

func (e Engine) DeleteActivity(ctx context.Context, id, actorID string) error {
	a, err := e.Repo.GetActivity(ctx, id)
	if err != nil {
		return notFound("activity", id, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteActivity(ctx, tx, id); err != nil {
		return notFound("activity", id, err)
	}
	if err := e.Events.Append(ctx, tx, "activity.deleted", a.PlanID, "activity", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

const supersededReason = "superseded by newer update"

// SubmitUpdate records a proposed progress figure as a pending history row.
// The activity's authoritative progress and status are untouched until an
// approver decides. A prior pending row is declined as superseded in the same
// transaction, so at most one pending row exists per activity.
func (e Engine) SubmitUpdate(ctx context.Context, activityID string, progress float64, comment, userID string) (domain.ActivityUpdate, error) {
	if comment == "" {
		return domain.ActivityUpdate{}, apperr.ValidationError{Field: "comment", Reason: "is required"}
	}
	if progress < 0 || progress > 100 {
		return domain.ActivityUpdate{}, apperr.ValidationError{Field: "progress", Reason: "must be between 0 and 100"}
	}
	a, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		return domain.ActivityUpdate{}, notFound("activity", activityID, err)
	}

	set, err := e.Repo.ListRules(ctx, a.PlanID)
	if err != nil {
		return domain.ActivityUpdate{}, err
	}
	// Prospective status: what the activity would read as if approved now.
	status := rules.Classify(progress, parseDate(a.EndDate), e.now(), set)

	now := e.nowString()
	u := domain.ActivityUpdate{
		ID:            uuid.New().String(),
		ActivityID:    a.ID,
		UserID:        userID,
		Progress:      progress,
		Comment:       comment,
		Status:        status,
		ApprovalState: ApprovalPending,
		CreatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()

	prior, err := e.Repo.PendingUpdateTx(ctx, tx, a.ID)
	if err == nil {
		reason := supersededReason
		if err := e.Repo.SettleUpdateTx(ctx, tx, prior.ID, ApprovalDeclined, &reason, now); err != nil {
			return u, err
		}
	} else if err != nil && !errorsIsNotFound(err) {
		return u, err
	}

	if err := e.Repo.InsertActivityUpdate(ctx, tx, u); err != nil {
		return u, err
	}
	a.ApprovalStatus = ApprovalPending
	a.DeclineReason = nil
	a.UpdatedAt = now
	if err := e.Repo.UpdateActivity(ctx, tx, a); err != nil {
		return u, err
	}
	if err := e.Events.Append(ctx, tx, "activity.update.submitted", a.PlanID, "activity", a.ID, userID, events.EventPayload{
		"update_id": u.ID,
		"progress":  u.Progress,
		"status":    u.Status,
	}); err != nil {
		return u, err
	}
	return u, tx.Commit()
}

// ApproveUpdate copies the pending progress and status into the activity. With
// no pending row the approval simply settles the activity as approved.
func (e Engine) ApproveUpdate(ctx context.Context, activityID, approverID string) (domain.Activity, error) {
	if err := e.requireApprover(ctx, approverID); err != nil {
		return domain.Activity{}, err
	}
	a, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		return a, notFound("activity", activityID, err)
	}
	now := e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	payload := events.EventPayload{}
	pending, err := e.Repo.PendingUpdateTx(ctx, tx, a.ID)
	if err == nil {
		if err := e.Repo.SettleUpdateTx(ctx, tx, pending.ID, ApprovalApproved, nil, now); err != nil {
			return a, err
		}
		a.Progress = pending.Progress
		a.Status = pending.Status
		payload["update_id"] = pending.ID
		payload["progress"] = pending.Progress
	} else if !errorsIsNotFound(err) {
		return a, err
	}
	a.ApprovalStatus = ApprovalApproved
	a.DeclineReason = nil
	a.UpdatedAt = now
	if err := e.Repo.UpdateActivity(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "activity.update.approved", a.PlanID, "activity", a.ID, approverID, payload); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

// DeclineUpdate rejects the pending row, keeping the activity's authoritative
// progress and status. The decline reason is stored for the submitter.
func (e Engine) DeclineUpdate(ctx context.Context, activityID, reason, approverID string) (domain.Activity, error) {
	if reason == "" {
		return domain.Activity{}, apperr.ValidationError{Field: "reason", Reason: "is required"}
	}
	if err := e.requireApprover(ctx, approverID); err != nil {
		return domain.Activity{}, err
	}
	a, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		return a, notFound("activity", activityID, err)
	}
	now := e.nowString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	payload := events.EventPayload{"reason": reason}
	pending, err := e.Repo.PendingUpdateTx(ctx, tx, a.ID)
	if err == nil {
		if err := e.Repo.SettleUpdateTx(ctx, tx, pending.ID, ApprovalDeclined, &reason, now); err != nil {
			return a, err
		}
		payload["update_id"] = pending.ID
	} else if !errorsIsNotFound(err) {
		return a, err
	}
	a.ApprovalStatus = ApprovalDeclined
	a.DeclineReason = &reason
	a.UpdatedAt = now
	if err := e.Repo.UpdateActivity(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "activity.update.declined", a.PlanID, "activity", a.ID, approverID, payload); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

// UpdateHistory returns the activity's full update trail, newest first.
func (e Engine) UpdateHistory(ctx context.Context, activityID string) ([]domain.ActivityUpdate, error) {
	if _, err := e.Repo.GetActivity(ctx, activityID); err != nil {
		return nil, notFound("activity", activityID, err)
	}
	return e.Repo.ListActivityUpdates(ctx, activityID)
}

func (e Engine) requireApprover(ctx context.Context, actorID string) error {
	role := e.actorRole(ctx, actorID)
	cfg := e.Config
	if cfg == nil {
		if role == "administrator" || role == "approver" {
			return nil
		}
		return apperr.PermissionError{Reason: "role " + role + " may not decide approvals"}
	}
	if !cfg.CanApprove(role) {
		return apperr.PermissionError{Reason: "role " + role + " may not decide approvals"}
	}
	return nil
}

func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		t, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
