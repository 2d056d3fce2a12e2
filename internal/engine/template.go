package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"boardline/internal/domain"
	"boardline/internal/events"
	"boardline/internal/order"
	"boardline/internal/recur"
	"boardline/internal/repo"
)

// MaxTemplateTasks caps how many tasks a single template expansion inserts.
const MaxTemplateTasks = 200

// TemplateCapError reports a template whose task count exceeds the expansion
// cap. The surrounding operation still succeeds, without tasks.
type TemplateCapError struct {
	TemplateID string
	Count      int
}

func (e TemplateCapError) Error() string {
	return fmt.Sprintf("template %s has %d tasks, expansion cap is %d", e.TemplateID, e.Count, MaxTemplateTasks)
}

// TemplateCaptureOptions are parameters for capturing a board as a template.
type TemplateCaptureOptions struct {
	BoardID     string
	Name        string
	Description string
	ActorID     string
}

// CaptureTemplate snapshots a board's option sets and tasks into a reusable
// template. Due dates are stored as day offsets from the capture date.
func (e Engine) CaptureTemplate(ctx context.Context, opts TemplateCaptureOptions) (domain.Template, error) {
	if opts.Name == "" {
		return domain.Template{}, errors.New("name is required")
	}
	b, err := e.Repo.GetBoard(ctx, opts.BoardID)
	if err != nil {
		return domain.Template{}, err
	}
	statuses, err := e.Repo.ListStatusOptions(ctx, opts.BoardID)
	if err != nil {
		return domain.Template{}, err
	}
	sections, err := e.Repo.ListSectionOptions(ctx, opts.BoardID)
	if err != nil {
		return domain.Template{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{BoardID: opts.BoardID})
	if err != nil {
		return domain.Template{}, err
	}
	now := e.now().UTC()
	tmpl := domain.Template{
		ID:            uuid.New().String(),
		OrgID:         b.OrgID,
		Name:          opts.Name,
		Description:   opts.Description,
		SourceBoardID: &b.ID,
		CreatedAt:     now.Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return tmpl, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTemplateTx(ctx, tx, tmpl); err != nil {
		return tmpl, err
	}
	statusIDs := map[string]string{}
	for _, s := range statuses {
		snap := domain.TemplateStatusOption{
			ID:         uuid.New().String(),
			TemplateID: tmpl.ID,
			Label:      s.Label,
			Color:      s.Color,
			Position:   s.Position,
			IsTerminal: s.IsTerminal,
		}
		statusIDs[s.ID] = snap.ID
		if err := e.Repo.InsertTemplateStatusOptionTx(ctx, tx, snap); err != nil {
			return tmpl, err
		}
	}
	sectionIDs := map[string]string{}
	for _, s := range sections {
		snap := domain.TemplateSectionOption{
			ID:         uuid.New().String(),
			TemplateID: tmpl.ID,
			Label:      s.Label,
			Color:      s.Color,
			Position:   s.Position,
		}
		sectionIDs[s.ID] = snap.ID
		if err := e.Repo.InsertTemplateSectionOptionTx(ctx, tx, snap); err != nil {
			return tmpl, err
		}
	}

	captureDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	taskIDs := map[string]string{}
	// parents first so children can reference captured ids
	for pass := 0; pass < 2; pass++ {
		for _, t := range tasks {
			child := t.ParentID != nil
			if (pass == 0) == child {
				continue
			}
			tt := domain.TemplateTask{
				ID:            uuid.New().String(),
				TemplateID:    tmpl.ID,
				Title:         t.Title,
				Description:   t.Description,
				RecurringJSON: t.RecurringJSON,
				Position:      t.Position,
			}
			if mapped, ok := statusIDs[t.StatusID]; ok {
				tt.StatusID = &mapped
			}
			if t.SectionID != nil {
				if mapped, ok := sectionIDs[*t.SectionID]; ok {
					tt.SectionID = &mapped
				}
			}
			if child {
				parent, ok := taskIDs[*t.ParentID]
				if !ok {
					continue
				}
				tt.ParentID = &parent
			}
			if t.DueDate != nil {
				if due, err := time.Parse(recur.DateLayout, *t.DueDate); err == nil {
					days := int(math.Round(due.Sub(captureDay).Hours() / 24))
					tt.RelativeDueDays = &days
				}
			}
			taskIDs[t.ID] = tt.ID
			if err := e.Repo.InsertTemplateTaskTx(ctx, tx, tt); err != nil {
				return tmpl, err
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "template.captured", b.OrgID, b.ID, "template", tmpl.ID, opts.ActorID, events.EventPayload{
		"name":  tmpl.Name,
		"tasks": len(taskIDs),
	}); err != nil {
		return tmpl, err
	}
	if err := tx.Commit(); err != nil {
		return tmpl, err
	}
	return tmpl, nil
}

// TemplateApplyOptions are parameters for expanding a template onto a board.
// StatusMap and SectionMap optionally map captured option ids to board option
// ids, overriding the default label match.
type TemplateApplyOptions struct {
	TemplateID string
	BoardID    string
	AnchorDate string
	StatusMap  map[string]string
	SectionMap map[string]string
	ActorID    string
}

// TemplateApplyResult reports the outcome of an expansion. Capped is set when
// the template exceeded the task cap and no tasks were inserted. Warnings name
// the template tasks that were dropped or mapped to defaults.
type TemplateApplyResult struct {
	BoardID  string
	Created  []domain.Task
	Capped   bool
	Warnings []string
}

// ApplyTemplate expands a template's tasks onto an existing board, appended
// after the board's current content.
func (e Engine) ApplyTemplate(ctx context.Context, opts TemplateApplyOptions) (TemplateApplyResult, error) {
	b, err := e.Repo.GetBoard(ctx, opts.BoardID)
	if err != nil {
		return TemplateApplyResult{}, err
	}
	tmpl, err := e.Repo.GetTemplate(ctx, opts.TemplateID)
	if err != nil {
		return TemplateApplyResult{}, err
	}
	if tmpl.OrgID != b.OrgID {
		return TemplateApplyResult{}, errors.New("template in different organization")
	}
	anchor, err := e.anchorDate(opts.AnchorDate)
	if err != nil {
		return TemplateApplyResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TemplateApplyResult{}, err
	}
	defer tx.Rollback()

	res, err := e.expandTemplate(ctx, tx, tmpl, b, anchor, opts.StatusMap, opts.SectionMap, opts.ActorID)
	if err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, "template.applied", b.OrgID, b.ID, "template", tmpl.ID, opts.ActorID, events.EventPayload{
		"tasks":  len(res.Created),
		"capped": res.Capped,
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// BoardFromTemplateOptions are parameters for creating a board out of a
// template.
type BoardFromTemplateOptions struct {
	TemplateID string
	OrgID      string
	Name       string
	AnchorDate string
	ActorID    string
}

// CreateBoardFromTemplate creates a board seeded with the template's option
// snapshots, then expands the template's tasks onto it. When the template
// carries no option snapshots the org config defaults are used.
func (e Engine) CreateBoardFromTemplate(ctx context.Context, opts BoardFromTemplateOptions) (TemplateApplyResult, error) {
	if opts.Name == "" {
		return TemplateApplyResult{}, errors.New("name is required")
	}
	tmpl, err := e.Repo.GetTemplate(ctx, opts.TemplateID)
	if err != nil {
		return TemplateApplyResult{}, err
	}
	orgID := opts.OrgID
	if orgID == "" {
		orgID = tmpl.OrgID
	}
	if orgID != tmpl.OrgID {
		return TemplateApplyResult{}, errors.New("template in different organization")
	}
	if _, err := e.Repo.GetOrg(ctx, orgID); err != nil {
		return TemplateApplyResult{}, err
	}
	anchor, err := e.anchorDate(opts.AnchorDate)
	if err != nil {
		return TemplateApplyResult{}, err
	}
	now := e.nowRFC3339()
	b := domain.Board{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(orgID+"|"+opts.Name+"|"+now)).String(),
		OrgID:     orgID,
		Name:      opts.Name,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TemplateApplyResult{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertBoardTx(ctx, tx, b); err != nil {
		return TemplateApplyResult{}, fmt.Errorf("insert board: %w", err)
	}
	statuses, err := e.Repo.ListTemplateStatusOptionsTx(ctx, tx, tmpl.ID)
	if err != nil {
		return TemplateApplyResult{}, err
	}
	sections, err := e.Repo.ListTemplateSectionOptionsTx(ctx, tx, tmpl.ID)
	if err != nil {
		return TemplateApplyResult{}, err
	}
	if len(statuses) == 0 {
		cfg, err := e.orgConfig(ctx, orgID)
		if err != nil {
			return TemplateApplyResult{}, err
		}
		if err := e.seedBoardOptions(ctx, tx, b.ID, cfg.Boards.StatusOptions, cfg.Boards.SectionOptions); err != nil {
			return TemplateApplyResult{}, err
		}
	} else {
		for _, s := range statuses {
			opt := domain.StatusOption{
				ID:         uuid.New().String(),
				BoardID:    b.ID,
				Label:      s.Label,
				Color:      s.Color,
				Position:   s.Position,
				IsTerminal: s.IsTerminal,
			}
			if err := e.Repo.InsertStatusOptionTx(ctx, tx, opt); err != nil {
				return TemplateApplyResult{}, err
			}
		}
		for _, s := range sections {
			opt := domain.SectionOption{
				ID:       uuid.New().String(),
				BoardID:  b.ID,
				Label:    s.Label,
				Color:    s.Color,
				Position: s.Position,
			}
			if err := e.Repo.InsertSectionOptionTx(ctx, tx, opt); err != nil {
				return TemplateApplyResult{}, err
			}
		}
	}

	res, err := e.expandTemplate(ctx, tx, tmpl, b, anchor, nil, nil, opts.ActorID)
	if err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, "board.created", b.OrgID, b.ID, "board", b.ID, opts.ActorID, events.EventPayload{
		"name":     b.Name,
		"template": tmpl.ID,
	}); err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, "template.applied", b.OrgID, b.ID, "template", tmpl.ID, opts.ActorID, events.EventPayload{
		"tasks":  len(res.Created),
		"capped": res.Capped,
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

func (e Engine) DeleteTemplate(ctx context.Context, id, actorID string) error {
	tmpl, err := e.Repo.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTemplate(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "template.deleted", tmpl.OrgID, "", "template", id, actorID, events.EventPayload{"name": tmpl.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) anchorDate(s string) (time.Time, error) {
	if s == "" {
		now := e.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	anchor, err := time.Parse(recur.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid anchor date %q: %w", s, err)
	}
	return anchor, nil
}

// expandTemplate inserts a template's tasks onto a board inside the caller's
// transaction: top-level tasks first in template order, then children through
// the id mapping. Status and section references resolve by label against the
// board's options, with caller-supplied overrides taking precedence;
// unresolved references fall back to the default column and are reported as
// warnings, as are orphaned children.
func (e Engine) expandTemplate(ctx context.Context, tx *sql.Tx, tmpl domain.Template, b domain.Board, anchor time.Time, statusOverrides, sectionOverrides map[string]string, actorID string) (TemplateApplyResult, error) {
	res := TemplateApplyResult{BoardID: b.ID}
	ttasks, err := e.Repo.ListTemplateTasksTx(ctx, tx, tmpl.ID)
	if err != nil {
		return res, err
	}
	if len(ttasks) > MaxTemplateTasks {
		res.Capped = true
		res.Warnings = append(res.Warnings, TemplateCapError{TemplateID: tmpl.ID, Count: len(ttasks)}.Error())
		return res, nil
	}
	if len(ttasks) == 0 {
		return res, nil
	}

	tmplStatuses, err := e.Repo.ListTemplateStatusOptionsTx(ctx, tx, tmpl.ID)
	if err != nil {
		return res, err
	}
	tmplSections, err := e.Repo.ListTemplateSectionOptionsTx(ctx, tx, tmpl.ID)
	if err != nil {
		return res, err
	}
	boardStatuses, err := e.listStatusOptionsTx(ctx, tx, b.ID)
	if err != nil {
		return res, err
	}
	boardSections, err := e.listSectionOptionsTx(ctx, tx, b.ID)
	if err != nil {
		return res, err
	}
	if len(boardStatuses) == 0 {
		return res, errors.New("board has no status options")
	}
	defaultStatus := boardStatuses[0].ID

	statusByLabel := map[string]string{}
	for _, o := range boardStatuses {
		statusByLabel[normalizeLabel(o.Label)] = o.ID
	}
	sectionByLabel := map[string]string{}
	for _, o := range boardSections {
		sectionByLabel[normalizeLabel(o.Label)] = o.ID
	}
	statusMap := map[string]string{}
	for _, s := range tmplStatuses {
		if id, ok := statusByLabel[normalizeLabel(s.Label)]; ok {
			statusMap[s.ID] = id
		}
	}
	sectionMap := map[string]string{}
	for _, s := range tmplSections {
		if id, ok := sectionByLabel[normalizeLabel(s.Label)]; ok {
			sectionMap[s.ID] = id
		}
	}
	boardStatusIDs := map[string]bool{}
	for _, o := range boardStatuses {
		boardStatusIDs[o.ID] = true
	}
	boardSectionIDs := map[string]bool{}
	for _, o := range boardSections {
		boardSectionIDs[o.ID] = true
	}
	for tmplOptID, boardOptID := range statusOverrides {
		if !boardStatusIDs[boardOptID] {
			return res, fmt.Errorf("status mapping target %s not on board %s", boardOptID, b.ID)
		}
		statusMap[tmplOptID] = boardOptID
	}
	for tmplOptID, boardOptID := range sectionOverrides {
		if !boardSectionIDs[boardOptID] {
			return res, fmt.Errorf("section mapping target %s not on board %s", boardOptID, b.ID)
		}
		sectionMap[tmplOptID] = boardOptID
	}

	// per-column append bases so template order is preserved after existing rows
	nextPos := map[string]int{}
	columnPos := func(statusID string) (int, error) {
		if pos, ok := nextPos[statusID]; ok {
			nextPos[statusID] = pos + order.Step
			return pos, nil
		}
		max, hasAny, err := e.Repo.MaxTaskPositionTx(ctx, tx, b.ID, statusID)
		if err != nil {
			return 0, err
		}
		pos := order.Append(max, hasAny)
		nextPos[statusID] = pos + order.Step
		return pos, nil
	}

	now := e.nowRFC3339()
	idMap := map[string]string{}
	byID := map[string]domain.TemplateTask{}
	for _, tt := range ttasks {
		byID[tt.ID] = tt
	}
	insert := func(tt domain.TemplateTask, parentID *string) error {
		statusID := defaultStatus
		if tt.StatusID != nil {
			if mapped, ok := statusMap[*tt.StatusID]; ok {
				statusID = mapped
			} else {
				res.Warnings = append(res.Warnings, fmt.Sprintf("task %q: status not on board, using default", tt.Title))
			}
		}
		var sectionID *string
		if tt.SectionID != nil {
			if mapped, ok := sectionMap[*tt.SectionID]; ok {
				sectionID = &mapped
			} else {
				res.Warnings = append(res.Warnings, fmt.Sprintf("task %q: section not on board, dropped", tt.Title))
			}
		}
		pos, err := columnPos(statusID)
		if err != nil {
			return err
		}
		t := domain.Task{
			ID:            uuid.New().String(),
			BoardID:       b.ID,
			ParentID:      parentID,
			Title:         tt.Title,
			Description:   tt.Description,
			StatusID:      statusID,
			SectionID:     sectionID,
			Position:      pos,
			RecurringJSON: tt.RecurringJSON,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if tt.RelativeDueDays != nil {
			due := anchor.AddDate(0, 0, *tt.RelativeDueDays).Format(recur.DateLayout)
			t.DueDate = &due
		}
		if t.RecurringJSON != nil {
			t.SeriesID = &t.ID
		}
		idMap[tt.ID] = t.ID
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		res.Created = append(res.Created, t)
		return nil
	}

	for _, tt := range ttasks {
		if tt.ParentID != nil {
			continue
		}
		if err := insert(tt, nil); err != nil {
			return res, err
		}
	}
	for _, tt := range ttasks {
		if tt.ParentID == nil {
			continue
		}
		parentTmpl, ok := byID[*tt.ParentID]
		if !ok || parentTmpl.ParentID != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("task %q: parent missing or nested too deep, dropped", tt.Title))
			continue
		}
		parentID, ok := idMap[*tt.ParentID]
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("task %q: parent missing, dropped", tt.Title))
			continue
		}
		if err := insert(tt, &parentID); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e Engine) listStatusOptionsTx(ctx context.Context, tx *sql.Tx, boardID string) ([]domain.StatusOption, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,board_id,label,color,position,is_terminal FROM status_options WHERE board_id=? ORDER BY position ASC, id ASC`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusOption
	for rows.Next() {
		var o domain.StatusOption
		var color sql.NullString
		var terminal int
		if err := rows.Scan(&o.ID, &o.BoardID, &o.Label, &color, &o.Position, &terminal); err != nil {
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

func (e Engine) listSectionOptionsTx(ctx context.Context, tx *sql.Tx, boardID string) ([]domain.SectionOption, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,board_id,label,color,position FROM section_options WHERE board_id=? ORDER BY position ASC, id ASC`, boardID)
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
