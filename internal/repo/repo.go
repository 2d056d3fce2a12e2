package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"boardline/internal/config"
	"boardline/internal/domain"
	"boardline/internal/order"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertOrg(ctx context.Context, o domain.Org) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO organizations(id,name,status,created_at) VALUES (?,?,?,?)`,
		o.ID, o.Name, o.Status, o.CreatedAt)
	return err
}

func (r Repo) GetOrg(ctx context.Context, id string) (domain.Org, error) {
	var o domain.Org
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM organizations WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &o.Status, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) SingleOrg(ctx context.Context) (domain.Org, error) {
	orgs, err := r.ListOrgs(ctx)
	if err != nil {
		return domain.Org{}, err
	}
	if len(orgs) == 0 {
		return domain.Org{}, ErrNotFound
	}
	if len(orgs) > 1 {
		return domain.Org{}, fmt.Errorf("multiple organizations exist; specify --org")
	}
	return orgs[0], nil
}

func (r Repo) ListOrgs(ctx context.Context) ([]domain.Org, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM organizations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Org
	for rows.Next() {
		var o domain.Org
		if err := rows.Scan(&o.ID, &o.Name, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, nil
}

func (r Repo) UpdateOrg(ctx context.Context, id string, name, status string) error {
	var (
		fields []string
		args   []any
	)
	if name != "" {
		fields = append(fields, "name=?")
		args = append(args, name)
	}
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE organizations SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertOrgConfig(ctx context.Context, orgID string, cfg *config.Config) error {
	return upsertOrgConfig(ctx, r.DB, nil, orgID, cfg)
}

func (r Repo) UpsertOrgConfigTx(ctx context.Context, tx *sql.Tx, orgID string, cfg *config.Config) error {
	return upsertOrgConfig(ctx, nil, tx, orgID, cfg)
}

func upsertOrgConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, orgID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Org.ID = orgID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO org_configs(org_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(org_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, orgID, string(payload), now, now)
	return err
}

func (r Repo) GetOrgConfig(ctx context.Context, orgID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM org_configs WHERE org_id=?`, orgID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Org.ID == "" {
		cfg.Org.ID = orgID
	}
	return &cfg, cfg.Validate()
}

func scanBoard(scan func(dest ...any) error) (domain.Board, error) {
	var b domain.Board
	var desc sql.NullString
	err := scan(&b.ID, &b.OrgID, &b.Name, &desc, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if desc.Valid {
		b.Description = desc.String
	}
	return b, err
}

const boardCols = `id,org_id,name,description,status,created_at,updated_at`

func (r Repo) InsertBoardTx(ctx context.Context, tx *sql.Tx, b domain.Board) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO boards(id,org_id,name,description,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		b.ID, b.OrgID, b.Name, nullable(b.Description), b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r Repo) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	return scanBoard(r.DB.QueryRowContext(ctx, `SELECT `+boardCols+` FROM boards WHERE id=?`, id).Scan)
}

func (r Repo) GetBoardTx(ctx context.Context, tx *sql.Tx, id string) (domain.Board, error) {
	return scanBoard(tx.QueryRowContext(ctx, `SELECT `+boardCols+` FROM boards WHERE id=?`, id).Scan)
}

type BoardFilters struct {
	OrgID           string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListBoards(ctx context.Context, f BoardFilters) ([]domain.Board, error) {
	var clauses []string
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + boardCols + ` FROM boards ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Board
	for rows.Next() {
		b, err := scanBoard(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

func (r Repo) UpdateBoard(ctx context.Context, tx *sql.Tx, id string, name, status string, description *string, updatedAt string) error {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if name != "" {
		fields = append(fields, "name=?")
		args = append(args, name)
	}
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE boards SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteBoard(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertStatusOptionTx(ctx context.Context, tx *sql.Tx, o domain.StatusOption) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO status_options(id,board_id,label,color,position,is_terminal) VALUES (?,?,?,?,?,?)`,
		o.ID, o.BoardID, o.Label, nullable(o.Color), o.Position, boolInt(o.IsTerminal))
	return err
}

func (r Repo) GetStatusOption(ctx context.Context, id string) (domain.StatusOption, error) {
	return scanStatusOption(r.DB.QueryRowContext(ctx, `SELECT id,board_id,label,color,position,is_terminal FROM status_options WHERE id=?`, id).Scan)
}

func (r Repo) GetStatusOptionTx(ctx context.Context, tx *sql.Tx, id string) (domain.StatusOption, error) {
	return scanStatusOption(tx.QueryRowContext(ctx, `SELECT id,board_id,label,color,position,is_terminal FROM status_options WHERE id=?`, id).Scan)
}

func scanStatusOption(scan func(dest ...any) error) (domain.StatusOption, error) {
	var o domain.StatusOption
	var color sql.NullString
	var terminal int
	err := scan(&o.ID, &o.BoardID, &o.Label, &color, &o.Position, &terminal)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if color.Valid {
		o.Color = color.String
	}
	o.IsTerminal = terminal != 0
	return o, err
}

func (r Repo) ListStatusOptions(ctx context.Context, boardID string) ([]domain.StatusOption, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,board_id,label,color,position,is_terminal FROM status_options WHERE board_id=? ORDER BY position ASC, id ASC`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusOption
	for rows.Next() {
		o, err := scanStatusOption(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, nil
}

// DefaultStatusOptionTx returns the lowest-positioned option of a board, the
// status that newly created and template-expanded tasks land in.
func (r Repo) DefaultStatusOptionTx(ctx context.Context, tx *sql.Tx, boardID string) (domain.StatusOption, error) {
	return scanStatusOption(tx.QueryRowContext(ctx, `SELECT id,board_id,label,color,position,is_terminal FROM status_options WHERE board_id=? ORDER BY position ASC, id ASC LIMIT 1`, boardID).Scan)
}

func (r Repo) UpdateStatusOption(ctx context.Context, tx *sql.Tx, id string, label, color string, isTerminal *bool) error {
	var (
		fields []string
		args   []any
	)
	if label != "" {
		fields = append(fields, "label=?")
		args = append(args, label)
	}
	if color != "" {
		fields = append(fields, "color=?")
		args = append(args, color)
	}
	if isTerminal != nil {
		fields = append(fields, "is_terminal=?")
		args = append(args, boolInt(*isTerminal))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE status_options SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteStatusOption(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM status_options WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasksInStatusTx(ctx context.Context, tx *sql.Tx, statusID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE status_id=?`, statusID).Scan(&n)
	return n, err
}

func (r Repo) InsertSectionOptionTx(ctx context.Context, tx *sql.Tx, o domain.SectionOption) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO section_options(id,board_id,label,color,position) VALUES (?,?,?,?,?)`,
		o.ID, o.BoardID, o.Label, nullable(o.Color), o.Position)
	return err
}

func (r Repo) GetSectionOption(ctx context.Context, id string) (domain.SectionOption, error) {
	var o domain.SectionOption
	var color sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,board_id,label,color,position FROM section_options WHERE id=?`, id).
		Scan(&o.ID, &o.BoardID, &o.Label, &color, &o.Position)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if color.Valid {
		o.Color = color.String
	}
	return o, err
}

func (r Repo) ListSectionOptions(ctx context.Context, boardID string) ([]domain.SectionOption, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,board_id,label,color,position FROM section_options WHERE board_id=? ORDER BY position ASC, id ASC`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SectionOption
	for rows.Next() {
		var o domain.SectionOption
		var color sql.NullString
		if err := rows.Scan(&o.ID, &o.BoardID, &o.Label, &color, &o.Position); err != nil {
			return nil, err
		}
		if color.Valid {
			o.Color = color.String
		}
		res = append(res, o)
	}
	return res, nil
}

func (r Repo) DeleteSectionOption(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM section_options WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const taskCols = `id,board_id,parent_id,title,description,status_id,section_id,assignee_id,due_date,position,recurring_json,series_id,created_at,updated_at,completed_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var parentID, description, sectionID, assigneeID, dueDate, recurring, seriesID, completedAt sql.NullString
	err := scan(&t.ID, &t.BoardID, &parentID, &t.Title, &description, &t.StatusID, &sectionID, &assigneeID, &dueDate, &t.Position, &recurring, &seriesID, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if parentID.Valid {
		t.ParentID = &parentID.String
	}
	if description.Valid {
		t.Description = description.String
	}
	if sectionID.Valid {
		t.SectionID = &sectionID.String
	}
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if recurring.Valid {
		t.RecurringJSON = &recurring.String
	}
	if seriesID.Valid {
		t.SeriesID = &seriesID.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,board_id,parent_id,title,description,status_id,section_id,assignee_id,due_date,position,recurring_json,series_id,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.BoardID, nullableStringPtr(t.ParentID), t.Title, nullable(t.Description), t.StatusID, nullableStringPtr(t.SectionID),
		nullableStringPtr(t.AssigneeID), nullableStringPtr(t.DueDate), t.Position, nullableStringPtr(t.RecurringJSON), nullableStringPtr(t.SeriesID),
		t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET parent_id=?, title=?, description=?, status_id=?, section_id=?, assignee_id=?, due_date=?, position=?, recurring_json=?, series_id=?, updated_at=?, completed_at=? WHERE id=?`,
		nullableStringPtr(t.ParentID), t.Title, nullable(t.Description), t.StatusID, nullableStringPtr(t.SectionID),
		nullableStringPtr(t.AssigneeID), nullableStringPtr(t.DueDate), t.Position, nullableStringPtr(t.RecurringJSON), nullableStringPtr(t.SeriesID),
		t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id).Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id).Scan)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	BoardID         string
	StatusID        string
	SectionID       string
	AssigneeID      string
	ParentID        string
	SeriesID        string
	DueBefore       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.BoardID != "" {
		clauses = append(clauses, "board_id=?")
		args = append(args, f.BoardID)
	}
	if f.StatusID != "" {
		clauses = append(clauses, "status_id=?")
		args = append(args, f.StatusID)
	}
	if f.SectionID != "" {
		clauses = append(clauses, "section_id=?")
		args = append(args, f.SectionID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.ParentID)
	}
	if f.SeriesID != "" {
		// the root stamps its own id as series_id, so one predicate covers
		// the whole series
		clauses = append(clauses, "series_id=?")
		args = append(args, f.SeriesID)
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "due_date IS NOT NULL AND due_date<=?")
		args = append(args, f.DueBefore)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskCols + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// ListTasksByStatus returns the tasks of one board column ordered the way the
// column displays them.
func (r Repo) ListTasksByStatus(ctx context.Context, boardID, statusID string) ([]domain.Task, error) {
	return r.listTasksByStatus(ctx, r.DB.QueryContext, boardID, statusID)
}

func (r Repo) ListTasksByStatusTx(ctx context.Context, tx *sql.Tx, boardID, statusID string) ([]domain.Task, error) {
	return r.listTasksByStatus(ctx, tx.QueryContext, boardID, statusID)
}

func (r Repo) listTasksByStatus(ctx context.Context, query func(context.Context, string, ...any) (*sql.Rows, error), boardID, statusID string) ([]domain.Task, error) {
	rows, err := query(ctx, `SELECT `+taskCols+` FROM tasks WHERE board_id=? AND status_id=? ORDER BY position ASC, id ASC`, boardID, statusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// MaxTaskPositionTx reports the highest position in a board column and whether
// the column holds any task at all.
func (r Repo) MaxTaskPositionTx(ctx context.Context, tx *sql.Tx, boardID, statusID string) (int, bool, error) {
	var max sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM tasks WHERE board_id=? AND status_id=?`, boardID, statusID).Scan(&max)
	if err != nil {
		return 0, false, err
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

func (r Repo) UpdateTaskPositionsTx(ctx context.Context, tx *sql.Tx, updates []order.Update) error {
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET position=? WHERE id=?`, u.Position, u.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListChildren(ctx context.Context, taskID string) ([]domain.Task, error) {
	return r.listChildren(ctx, r.DB.QueryContext, taskID)
}

func (r Repo) ListChildrenTx(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.Task, error) {
	return r.listChildren(ctx, tx.QueryContext, taskID)
}

func (r Repo) listChildren(ctx context.Context, query func(context.Context, string, ...any) (*sql.Rows, error), taskID string) ([]domain.Task, error) {
	rows, err := query(ctx, `SELECT `+taskCols+` FROM tasks WHERE parent_id=? ORDER BY position ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// CountSeriesOccurrencesTx counts the occurrences spawned under one recurring
// series, completed or not. The series root (the row whose id is the series
// id) is not an occurrence and is excluded.
func (r Repo) CountSeriesOccurrencesTx(ctx context.Context, tx *sql.Tx, seriesID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE series_id=? AND id<>?`, seriesID, seriesID).Scan(&n)
	return n, err
}

// ListDueTasks returns open tasks due on or before the given date, for the
// reminder scanner.
func (r Repo) ListDueTasks(ctx context.Context, dueBefore string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE due_date IS NOT NULL AND due_date<=? AND completed_at IS NULL ORDER BY due_date ASC, id ASC`, dueBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) CountTasksByStatus(ctx context.Context, boardID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status_id, count(*) FROM tasks WHERE board_id=? GROUP BY status_id`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var statusID string
		var count int
		if err := rows.Scan(&statusID, &count); err != nil {
			return nil, err
		}
		res[statusID] = count
	}
	return res, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, orgID, boardID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, orgID, boardID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, orgID, boardID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if orgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, orgID)
	}
	if boardID != "" {
		clauses = append(clauses, "board_id=?")
		args = append(args, boardID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,org_id,board_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

func scanEvent(scan func(dest ...any) error) (domain.Event, error) {
	var e domain.Event
	var orgID, boardID, entityID, payload sql.NullString
	if err := scan(&e.ID, &e.TS, &e.Type, &orgID, &boardID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
		return e, err
	}
	if orgID.Valid {
		e.OrgID = orgID.String
	}
	if boardID.Valid {
		e.BoardID = boardID.String
	}
	if entityID.Valid {
		e.EntityID = entityID.String
	}
	if payload.Valid {
		e.Payload = payload.String
	}
	return e, nil
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, orgID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if orgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, orgID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,org_id,board_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// LatestEventID returns the most recent event ID for an organization.
func (r Repo) LatestEventID(ctx context.Context, orgID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE org_id=?`, orgID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
