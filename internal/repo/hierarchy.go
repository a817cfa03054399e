package repo

import (
	"context"
	"database/sql"

	"stratline/internal/domain"
)

func (r Repo) InsertPillar(ctx context.Context, tx *sql.Tx, p domain.Pillar) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO pillars(id,plan_id,title,position,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.PlanID, p.Title, p.Position, p.CreatedAt)
	return err
}

func (r Repo) GetPillar(ctx context.Context, id string) (domain.Pillar, error) {
	var p domain.Pillar
	err := r.DB.QueryRowContext(ctx, `SELECT id,plan_id,title,position,created_at FROM pillars WHERE id=?`, id).
		Scan(&p.ID, &p.PlanID, &p.Title, &p.Position, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListPillars(ctx context.Context, planID string) ([]domain.Pillar, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,plan_id,title,position,created_at FROM pillars WHERE plan_id=? ORDER BY position ASC, id ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Pillar
	for rows.Next() {
		var p domain.Pillar
		if err := rows.Scan(&p.ID, &p.PlanID, &p.Title, &p.Position, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePillar(ctx context.Context, tx *sql.Tx, p domain.Pillar) error {
	res, err := tx.ExecContext(ctx, `UPDATE pillars SET title=?, position=? WHERE id=?`, p.Title, p.Position, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePillar(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM pillars WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertObjective(ctx context.Context, tx *sql.Tx, o domain.Objective) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO objectives(id,plan_id,pillar_id,title,weight,position,created_at) VALUES (?,?,?,?,?,?,?)`,
		o.ID, o.PlanID, o.PillarID, o.Title, o.Weight, o.Position, o.CreatedAt)
	return err
}

func (r Repo) GetObjective(ctx context.Context, id string) (domain.Objective, error) {
	var o domain.Objective
	err := r.DB.QueryRowContext(ctx, `SELECT id,plan_id,pillar_id,title,weight,position,created_at FROM objectives WHERE id=?`, id).
		Scan(&o.ID, &o.PlanID, &o.PillarID, &o.Title, &o.Weight, &o.Position, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) ListObjectives(ctx context.Context, planID string) ([]domain.Objective, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,plan_id,pillar_id,title,weight,position,created_at FROM objectives WHERE plan_id=? ORDER BY position ASC, id ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Objective
	for rows.Next() {
		var o domain.Objective
		if err := rows.Scan(&o.ID, &o.PlanID, &o.PillarID, &o.Title, &o.Weight, &o.Position, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) UpdateObjective(ctx context.Context, tx *sql.Tx, o domain.Objective) error {
	res, err := tx.ExecContext(ctx, `UPDATE objectives SET title=?, weight=?, position=? WHERE id=?`, o.Title, o.Weight, o.Position, o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteObjective(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM objectives WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertInitiative(ctx context.Context, tx *sql.Tx, i domain.Initiative) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO initiatives(id,plan_id,objective_id,title,weight,position,created_at) VALUES (?,?,?,?,?,?,?)`,
		i.ID, i.PlanID, i.ObjectiveID, i.Title, i.Weight, i.Position, i.CreatedAt)
	return err
}

func (r Repo) GetInitiative(ctx context.Context, id string) (domain.Initiative, error) {
	var i domain.Initiative
	err := r.DB.QueryRowContext(ctx, `SELECT id,plan_id,objective_id,title,weight,position,created_at FROM initiatives WHERE id=?`, id).
		Scan(&i.ID, &i.PlanID, &i.ObjectiveID, &i.Title, &i.Weight, &i.Position, &i.CreatedAt)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	return i, err
}

func (r Repo) ListInitiatives(ctx context.Context, planID string) ([]domain.Initiative, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,plan_id,objective_id,title,weight,position,created_at FROM initiatives WHERE plan_id=? ORDER BY position ASC, id ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Initiative
	for rows.Next() {
		var i domain.Initiative
		if err := rows.Scan(&i.ID, &i.PlanID, &i.ObjectiveID, &i.Title, &i.Weight, &i.Position, &i.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

func (r Repo) UpdateInitiative(ctx context.Context, tx *sql.Tx, i domain.Initiative) error {
	res, err := tx.ExecContext(ctx, `UPDATE initiatives SET title=?, weight=?, position=? WHERE id=?`, i.Title, i.Weight, i.Position, i.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteInitiative(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM initiatives WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
