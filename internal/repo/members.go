package repo

import (
	"context"
	"database/sql"

	"boardline/internal/domain"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

func (r Repo) EnsureOrg(ctx context.Context, tx *sql.Tx, orgID, name, now string) error {
	if name == "" {
		name = orgID
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO organizations(id, name, status, created_at) VALUES (?,?,'active',?)`, orgID, name, now)
	return err
}

// UpsertMember adds an actor to an organization or changes their role.
func (r Repo) UpsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO org_members(org_id, actor_id, role, created_at) VALUES (?,?,?,?)
ON CONFLICT(org_id, actor_id) DO UPDATE SET role=excluded.role`, m.OrgID, m.ActorID, m.Role, m.CreatedAt)
	return err
}

func (r Repo) RemoveMember(ctx context.Context, tx *sql.Tx, orgID, actorID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM org_members WHERE org_id=? AND actor_id=?`, orgID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMember(ctx context.Context, orgID, actorID string) (domain.Member, error) {
	var m domain.Member
	err := r.DB.QueryRowContext(ctx, `SELECT org_id, actor_id, role, created_at FROM org_members WHERE org_id=? AND actor_id=?`, orgID, actorID).
		Scan(&m.OrgID, &m.ActorID, &m.Role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMembers(ctx context.Context, orgID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT org_id, actor_id, role, created_at FROM org_members WHERE org_id=? ORDER BY created_at ASC, actor_id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.OrgID, &m.ActorID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

func (r Repo) CountMembersWithRole(ctx context.Context, tx *sql.Tx, orgID, role string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM org_members WHERE org_id=? AND role=?`, orgID, role).Scan(&n)
	return n, err
}
