package repo

import (
	"context"
	"database/sql"

	"stratline/internal/domain"
)

const ruleColumns = `id,plan_id,status,COALESCE(description,''),min,max,unbounded,COALESCE(condition,''),is_system,position`

func scanRule(scan func(dest ...any) error) (domain.Rule, error) {
	var ru domain.Rule
	err := scan(&ru.ID, &ru.PlanID, &ru.Status, &ru.Description, &ru.Min, &ru.Max, &ru.Unbounded, &ru.Condition, &ru.IsSystem, &ru.Position)
	if err == sql.ErrNoRows {
		return ru, ErrNotFound
	}
	return ru, err
}

func (r Repo) InsertRule(ctx context.Context, tx *sql.Tx, ru domain.Rule) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO rules(id,plan_id,status,description,min,max,unbounded,condition,is_system,position)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		ru.ID, ru.PlanID, ru.Status, nullable(ru.Description), ru.Min, ru.Max, ru.Unbounded, nullable(ru.Condition), ru.IsSystem, ru.Position)
	return err
}

func (r Repo) GetRule(ctx context.Context, id string) (domain.Rule, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id=?`, id)
	return scanRule(row.Scan)
}

func (r Repo) GetRuleTx(ctx context.Context, tx *sql.Tx, id string) (domain.Rule, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id=?`, id)
	return scanRule(row.Scan)
}

func (r Repo) ListRules(ctx context.Context, planID string) ([]domain.Rule, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE plan_id=? ORDER BY position ASC, id ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Rule
	for rows.Next() {
		ru, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, ru)
	}
	return res, rows.Err()
}

func (r Repo) ListRulesTx(ctx context.Context, tx *sql.Tx, planID string) ([]domain.Rule, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE plan_id=? ORDER BY position ASC, id ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Rule
	for rows.Next() {
		ru, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, ru)
	}
	return res, rows.Err()
}

func (r Repo) UpdateRule(ctx context.Context, tx *sql.Tx, ru domain.Rule) error {
	res, err := tx.ExecContext(ctx, `UPDATE rules SET status=?, description=?, min=?, max=?, unbounded=?, condition=?, position=? WHERE id=?`,
		ru.Status, nullable(ru.Description), ru.Min, ru.Max, ru.Unbounded, nullable(ru.Condition), ru.Position, ru.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteRule(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRulePosition writes one rule's position without touching its range.
func (r Repo) SetRulePosition(ctx context.Context, tx *sql.Tx, id string, position int) error {
	res, err := tx.ExecContext(ctx, `UPDATE rules SET position=? WHERE id=?`, position, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
