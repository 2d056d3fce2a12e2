package repo

import (
	"context"
	"database/sql"
	"strings"

	"boardline/internal/domain"
)

func (r Repo) UpsertFavorite(ctx context.Context, tx *sql.Tx, f domain.Favorite) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO favorites(actor_id, entity_kind, entity_id, created_at) VALUES (?,?,?,?)`,
		f.ActorID, f.EntityKind, f.EntityID, f.CreatedAt)
	return err
}

func (r Repo) DeleteFavorite(ctx context.Context, tx *sql.Tx, actorID, entityKind, entityID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM favorites WHERE actor_id=? AND entity_kind=? AND entity_id=?`, actorID, entityKind, entityID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListFavorites(ctx context.Context, actorID, entityKind string) ([]domain.Favorite, error) {
	clauses := []string{"actor_id=?"}
	args := []any{actorID}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	query := `SELECT actor_id, entity_kind, entity_id, created_at FROM favorites WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, entity_id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Favorite
	for rows.Next() {
		var f domain.Favorite
		if err := rows.Scan(&f.ActorID, &f.EntityKind, &f.EntityID, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, nil
}

func (r Repo) InsertNotificationTx(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id, actor_id, board_id, task_id, kind, message, read_at, created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.ActorID, n.BoardID, nullableStringPtr(n.TaskID), n.Kind, n.Message, nullableStringPtr(n.ReadAt), n.CreatedAt)
	return err
}

type NotificationFilters struct {
	ActorID    string
	Kind       string
	UnreadOnly bool
	Limit      int
}

func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
	clauses := []string{"actor_id=?"}
	args := []any{f.ActorID}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.UnreadOnly {
		clauses = append(clauses, "read_at IS NULL")
	}
	query := `SELECT id, actor_id, board_id, task_id, kind, message, read_at, created_at FROM notifications WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var taskID, readAt sql.NullString
		if err := rows.Scan(&n.ID, &n.ActorID, &n.BoardID, &taskID, &n.Kind, &n.Message, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		if taskID.Valid {
			n.TaskID = &taskID.String
		}
		if readAt.Valid {
			n.ReadAt = &readAt.String
		}
		res = append(res, n)
	}
	return res, nil
}

func (r Repo) MarkNotificationRead(ctx context.Context, tx *sql.Tx, id, actorID, readAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE id=? AND actor_id=? AND read_at IS NULL`, readAt, id, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasDueNotification reports whether a reminder already exists for the task so
// the scanner does not notify twice for the same due date.
func (r Repo) HasDueNotification(ctx context.Context, actorID, taskID, kind string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE actor_id=? AND task_id=? AND kind=?`, actorID, taskID, kind).Scan(&n)
	return n > 0, err
}
