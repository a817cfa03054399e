package repo

import (
	"context"
	"database/sql"

	"stratline/internal/domain"
)

const activityColumns = `id,plan_id,initiative_id,title,weight,progress,COALESCE(start_date,''),COALESCE(end_date,''),status,approval_status,decline_reason,responsible_id,created_at,updated_at`

func scanActivity(scan func(dest ...any) error) (domain.Activity, error) {
	var a domain.Activity
	var initiativeID, declineReason, responsibleID sql.NullString
	err := scan(&a.ID, &a.PlanID, &initiativeID, &a.Title, &a.Weight, &a.Progress,
		&a.StartDate, &a.EndDate, &a.Status, &a.ApprovalStatus, &declineReason, &responsibleID, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if initiativeID.Valid {
		a.InitiativeID = &initiativeID.String
	}
	if declineReason.Valid {
		a.DeclineReason = &declineReason.String
	}
	if responsibleID.Valid {
		a.ResponsibleID = &responsibleID.String
	}
	return a, nil
}

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO activities(id,plan_id,initiative_id,title,weight,progress,start_date,end_date,status,approval_status,decline_reason,responsible_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.PlanID, nullableStringPtr(a.InitiativeID), a.Title, a.Weight, a.Progress,
		nullable(a.StartDate), nullable(a.EndDate), a.Status, a.ApprovalStatus,
		nullableStringPtr(a.DeclineReason), nullableStringPtr(a.ResponsibleID), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	res, err := tx.ExecContext(ctx, `UPDATE activities SET initiative_id=?, title=?, weight=?, progress=?, start_date=?, end_date=?, status=?, approval_status=?, decline_reason=?, responsible_id=?, updated_at=? WHERE id=?`,
		nullableStringPtr(a.InitiativeID), a.Title, a.Weight, a.Progress,
		nullable(a.StartDate), nullable(a.EndDate), a.Status, a.ApprovalStatus,
		nullableStringPtr(a.DeclineReason), nullableStringPtr(a.ResponsibleID), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id)
	return scanActivity(row.Scan)
}

func (r Repo) GetActivityTx(ctx context.Context, tx *sql.Tx, id string) (domain.Activity, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id)
	return scanActivity(row.Scan)
}

type ActivityFilters struct {
	PlanID         string
	InitiativeID   string
	Standalone     bool
	ApprovalStatus string
	ResponsibleID  string
}

func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE 1=1`
	var args []any
	if f.PlanID != "" {
		query += ` AND plan_id=?`
		args = append(args, f.PlanID)
	}
	if f.InitiativeID != "" {
		query += ` AND initiative_id=?`
		args = append(args, f.InitiativeID)
	}
	if f.Standalone {
		query += ` AND initiative_id IS NULL`
	}
	if f.ApprovalStatus != "" {
		query += ` AND approval_status=?`
		args = append(args, f.ApprovalStatus)
	}
	if f.ResponsibleID != "" {
		query += ` AND responsible_id=?`
		args = append(args, f.ResponsibleID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteActivity(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const updateColumns = `id,activity_id,user_id,progress,comment,status,approval_state,decline_reason,created_at,decided_at`

func scanUpdate(scan func(dest ...any) error) (domain.ActivityUpdate, error) {
	var u domain.ActivityUpdate
	var declineReason, decidedAt sql.NullString
	err := scan(&u.ID, &u.ActivityID, &u.UserID, &u.Progress, &u.Comment, &u.Status, &u.ApprovalState, &declineReason, &u.CreatedAt, &decidedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if declineReason.Valid {
		u.DeclineReason = &declineReason.String
	}
	if decidedAt.Valid {
		u.DecidedAt = &decidedAt.String
	}
	return u, nil
}

func (r Repo) InsertActivityUpdate(ctx context.Context, tx *sql.Tx, u domain.ActivityUpdate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO activity_updates(id,activity_id,user_id,progress,comment,status,approval_state,decline_reason,created_at,decided_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.ActivityID, u.UserID, u.Progress, u.Comment, u.Status, u.ApprovalState,
		nullableStringPtr(u.DeclineReason), u.CreatedAt, nullableStringPtr(u.DecidedAt))
	return err
}

// PendingUpdateTx returns the most recent pending history row for an activity.
func (r Repo) PendingUpdateTx(ctx context.Context, tx *sql.Tx, activityID string) (domain.ActivityUpdate, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+updateColumns+` FROM activity_updates WHERE activity_id=? AND approval_state='pending' ORDER BY created_at DESC, id DESC LIMIT 1`, activityID)
	return scanUpdate(row.Scan)
}

func (r Repo) PendingUpdate(ctx context.Context, activityID string) (domain.ActivityUpdate, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+updateColumns+` FROM activity_updates WHERE activity_id=? AND approval_state='pending' ORDER BY created_at DESC, id DESC LIMIT 1`, activityID)
	return scanUpdate(row.Scan)
}

// SettleUpdateTx moves a history row out of the pending state.
func (r Repo) SettleUpdateTx(ctx context.Context, tx *sql.Tx, id, state string, declineReason *string, decidedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE activity_updates SET approval_state=?, decline_reason=?, decided_at=? WHERE id=?`,
		state, nullableStringPtr(declineReason), decidedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListActivityUpdates(ctx context.Context, activityID string) ([]domain.ActivityUpdate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+updateColumns+` FROM activity_updates WHERE activity_id=? ORDER BY created_at DESC, id DESC`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityUpdate
	for rows.Next() {
		u, err := scanUpdate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
