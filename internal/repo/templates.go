package repo

import (
	"context"
	"database/sql"

	"boardline/internal/domain"
)

func (r Repo) InsertTemplateTx(ctx context.Context, tx *sql.Tx, t domain.Template) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO templates(id,org_id,name,description,source_board_id,created_at) VALUES (?,?,?,?,?,?)`,
		t.ID, t.OrgID, t.Name, nullable(t.Description), nullableStringPtr(t.SourceBoardID), t.CreatedAt)
	return err
}

func scanTemplate(scan func(dest ...any) error) (domain.Template, error) {
	var t domain.Template
	var desc, sourceBoard sql.NullString
	err := scan(&t.ID, &t.OrgID, &t.Name, &desc, &sourceBoard, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if sourceBoard.Valid {
		t.SourceBoardID = &sourceBoard.String
	}
	return t, err
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	return scanTemplate(r.DB.QueryRowContext(ctx, `SELECT id,org_id,name,description,source_board_id,created_at FROM templates WHERE id=?`, id).Scan)
}

func (r Repo) GetTemplateTx(ctx context.Context, tx *sql.Tx, id string) (domain.Template, error) {
	return scanTemplate(tx.QueryRowContext(ctx, `SELECT id,org_id,name,description,source_board_id,created_at FROM templates WHERE id=?`, id).Scan)
}

func (r Repo) ListTemplates(ctx context.Context, orgID string) ([]domain.Template, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,name,description,source_board_id,created_at FROM templates WHERE org_id=? ORDER BY created_at DESC, id DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) DeleteTemplate(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertTemplateStatusOptionTx(ctx context.Context, tx *sql.Tx, o domain.TemplateStatusOption) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO template_status_options(id,template_id,label,color,position,is_terminal) VALUES (?,?,?,?,?,?)`,
		o.ID, o.TemplateID, o.Label, nullable(o.Color), o.Position, boolInt(o.IsTerminal))
	return err
}

func (r Repo) ListTemplateStatusOptionsTx(ctx context.Context, tx *sql.Tx, templateID string) ([]domain.TemplateStatusOption, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,template_id,label,color,position,is_terminal FROM template_status_options WHERE template_id=? ORDER BY position ASC, id ASC`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TemplateStatusOption
	for rows.Next() {
		var o domain.TemplateStatusOption
		var color sql.NullString
		var terminal int
		if err := rows.Scan(&o.ID, &o.TemplateID, &o.Label, &color, &o.Position, &terminal); err != nil {
			return nil, err
		}
		if color.Valid {
			o.Color = color.String
		}
		o.IsTerminal = terminal != 0
		res = append(res, o)
	}
	return res, nil
}

func (r Repo) InsertTemplateSectionOptionTx(ctx context.Context, tx *sql.Tx, o domain.TemplateSectionOption) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO template_section_options(id,template_id,label,color,position) VALUES (?,?,?,?,?)`,
		o.ID, o.TemplateID, o.Label, nullable(o.Color), o.Position)
	return err
}

func (r Repo) ListTemplateSectionOptionsTx(ctx context.Context, tx *sql.Tx, templateID string) ([]domain.TemplateSectionOption, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,template_id,label,color,position FROM template_section_options WHERE template_id=? ORDER BY position ASC, id ASC`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TemplateSectionOption
	for rows.Next() {
		var o domain.TemplateSectionOption
		var color sql.NullString
		if err := rows.Scan(&o.ID, &o.TemplateID, &o.Label, &color, &o.Position); err != nil {
			return nil, err
		}
		if color.Valid {
			o.Color = color.String
		}
		res = append(res, o)
	}
	return res, nil
}

func (r Repo) InsertTemplateTaskTx(ctx context.Context, tx *sql.Tx, t domain.TemplateTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO template_tasks(id,template_id,parent_id,title,description,status_id,section_id,relative_due_days,recurring_json,position)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TemplateID, nullableStringPtr(t.ParentID), t.Title, nullable(t.Description), nullableStringPtr(t.StatusID),
		nullableStringPtr(t.SectionID), nullableIntPtr(t.RelativeDueDays), nullableStringPtr(t.RecurringJSON), t.Position)
	return err
}

func (r Repo) ListTemplateTasksTx(ctx context.Context, tx *sql.Tx, templateID string) ([]domain.TemplateTask, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,template_id,parent_id,title,description,status_id,section_id,relative_due_days,recurring_json,position FROM template_tasks WHERE template_id=? ORDER BY position ASC, id ASC`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TemplateTask
	for rows.Next() {
		var t domain.TemplateTask
		var parentID, desc, statusID, sectionID, recurring sql.NullString
		var relDue sql.NullInt64
		if err := rows.Scan(&t.ID, &t.TemplateID, &parentID, &t.Title, &desc, &statusID, &sectionID, &relDue, &recurring, &t.Position); err != nil {
			return nil, err
		}
		if parentID.Valid {
			t.ParentID = &parentID.String
		}
		if desc.Valid {
			t.Description = desc.String
		}
		if statusID.Valid {
			t.StatusID = &statusID.String
		}
		if sectionID.Valid {
			t.SectionID = &sectionID.String
		}
		if relDue.Valid {
			d := int(relDue.Int64)
			t.RelativeDueDays = &d
		}
		if recurring.Valid {
			t.RecurringJSON = &recurring.String
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) CountTemplateTasksTx(ctx context.Context, tx *sql.Tx, templateID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM template_tasks WHERE template_id=?`, templateID).Scan(&n)
	return n, err
}
