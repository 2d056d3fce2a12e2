package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"boardline/internal/domain"
	"boardline/internal/events"
	"boardline/internal/order"
	"boardline/internal/recur"
)

// SubtasksIncompleteError is returned when a task is moved into a terminal
// status while its subtasks are still open and the caller did not confirm.
type SubtasksIncompleteError struct {
	TaskID     string
	Incomplete []string
}

func (e SubtasksIncompleteError) Error() string {
	return fmt.Sprintf("task %s has %d incomplete subtasks; confirm to complete anyway", e.TaskID, len(e.Incomplete))
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID            string
	BoardID       string
	ParentID      string
	Title         string
	Description   string
	StatusID      string
	SectionID     string
	AssigneeID    string
	DueDate       string
	Recurring     *recur.Config
	RecurringJSON string
	ActorID       string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.BoardID == "" {
		return domain.Task{}, errors.New("board is required")
	}
	b, err := e.Repo.GetBoard(ctx, opts.BoardID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.DueDate != "" {
		if _, err := time.Parse(recur.DateLayout, opts.DueDate); err != nil {
			return domain.Task{}, fmt.Errorf("invalid due date %q: %w", opts.DueDate, err)
		}
	}
	recurringJSON := opts.RecurringJSON
	if opts.Recurring != nil {
		recurringJSON, err = opts.Recurring.JSON()
		if err != nil {
			return domain.Task{}, err
		}
	} else if recurringJSON != "" {
		if _, err := recur.Parse(recurringJSON); err != nil {
			return domain.Task{}, err
		}
	}
	if opts.ParentID != "" {
		parent, err := e.Repo.GetTask(ctx, opts.ParentID)
		if err != nil {
			return domain.Task{}, err
		}
		if parent.BoardID != opts.BoardID {
			return domain.Task{}, errors.New("parent on different board")
		}
		if parent.ParentID != nil {
			return domain.Task{}, errors.New("subtasks cannot have subtasks")
		}
	}
	if opts.SectionID != "" {
		sec, err := e.Repo.GetSectionOption(ctx, opts.SectionID)
		if err != nil {
			return domain.Task{}, err
		}
		if sec.BoardID != opts.BoardID {
			return domain.Task{}, errors.New("section on different board")
		}
	}
	now := e.nowRFC3339()
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.BoardID+"|"+opts.Title+"|"+now)).String()
	}
	t := domain.Task{
		ID:            id,
		BoardID:       opts.BoardID,
		ParentID:      optionalString(opts.ParentID),
		Title:         opts.Title,
		Description:   opts.Description,
		SectionID:     optionalString(opts.SectionID),
		AssigneeID:    optionalString(opts.AssigneeID),
		DueDate:       optionalString(opts.DueDate),
		RecurringJSON: optionalString(recurringJSON),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.RecurringJSON != nil {
		t.SeriesID = &t.ID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	statusID := opts.StatusID
	if statusID == "" {
		def, err := e.Repo.DefaultStatusOptionTx(ctx, tx, opts.BoardID)
		if err != nil {
			return domain.Task{}, fmt.Errorf("board has no status options: %w", err)
		}
		statusID = def.ID
	} else {
		st, err := e.Repo.GetStatusOptionTx(ctx, tx, statusID)
		if err != nil {
			return domain.Task{}, err
		}
		if st.BoardID != opts.BoardID {
			return domain.Task{}, errors.New("status on different board")
		}
	}
	t.StatusID = statusID
	max, hasAny, err := e.Repo.MaxTaskPositionTx(ctx, tx, opts.BoardID, statusID)
	if err != nil {
		return domain.Task{}, err
	}
	t.Position = order.Append(max, hasAny)

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", b.OrgID, b.ID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title, "status_id": t.StatusID}); err != nil {
		return domain.Task{}, err
	}
	if t.AssigneeID != nil && *t.AssigneeID != opts.ActorID {
		if err := e.notifyAssignment(ctx, tx, b, t, opts.ActorID); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates. Status changes go through
// MoveTask so position and completion semantics stay in one place.
type TaskUpdateOptions struct {
	ID           string
	Title        string
	Description  *string
	SetSection   *string
	Assign       *string
	SetDueDate   *string
	SetRecurring *string
	ActorID      string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	b, err := e.Repo.GetBoard(ctx, t.BoardID)
	if err != nil {
		return t, err
	}
	assigneeChanged := false
	if opts.Title != "" {
		t.Title = opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.SetSection != nil {
		if *opts.SetSection == "" {
			t.SectionID = nil
		} else {
			sec, err := e.Repo.GetSectionOption(ctx, *opts.SetSection)
			if err != nil {
				return t, err
			}
			if sec.BoardID != t.BoardID {
				return t, errors.New("section on different board")
			}
			t.SectionID = opts.SetSection
		}
	}
	if opts.Assign != nil {
		if *opts.Assign == "" {
			t.AssigneeID = nil
		} else {
			prev := ""
			if t.AssigneeID != nil {
				prev = *t.AssigneeID
			}
			t.AssigneeID = opts.Assign
			assigneeChanged = prev != *opts.Assign
		}
	}
	if opts.SetDueDate != nil {
		if *opts.SetDueDate == "" {
			t.DueDate = nil
		} else {
			if _, err := time.Parse(recur.DateLayout, *opts.SetDueDate); err != nil {
				return t, fmt.Errorf("invalid due date %q: %w", *opts.SetDueDate, err)
			}
			t.DueDate = opts.SetDueDate
		}
	}
	if opts.SetRecurring != nil {
		if *opts.SetRecurring == "" {
			t.RecurringJSON = nil
		} else {
			if _, err := recur.Parse(*opts.SetRecurring); err != nil {
				return t, err
			}
			t.RecurringJSON = opts.SetRecurring
			if t.SeriesID == nil {
				t.SeriesID = &t.ID
			}
		}
	}
	t.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", b.OrgID, b.ID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title}); err != nil {
		return t, err
	}
	if assigneeChanged && t.AssigneeID != nil && *t.AssigneeID != opts.ActorID {
		if err := e.notifyAssignment(ctx, tx, b, t, opts.ActorID); err != nil {
			return t, err
		}
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) notifyAssignment(ctx context.Context, tx *sql.Tx, b domain.Board, t domain.Task, actorID string) error {
	n := domain.Notification{
		ID:        uuid.New().String(),
		ActorID:   *t.AssigneeID,
		BoardID:   b.ID,
		TaskID:    &t.ID,
		Kind:      "assigned",
		Message:   fmt.Sprintf("%s assigned you %q", actorID, t.Title),
		CreatedAt: e.nowRFC3339(),
	}
	return e.Repo.InsertNotificationTx(ctx, tx, n)
}

// TaskMoveOptions are parameters for moving a task across or within columns.
// Index is the target slot among the column's tasks; nil appends at the end.
type TaskMoveOptions struct {
	ID               string
	ToStatusID       string
	Index            *int
	ConfirmSubtasks  bool
	CompleteSubtasks bool
	ActorID          string
}

// MoveResult reports what a move did, including any occurrence the recurrence
// rule spawned.
type MoveResult struct {
	Task    domain.Task
	Spawned *domain.Task
}

func (e Engine) MoveTask(ctx context.Context, opts TaskMoveOptions) (MoveResult, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return MoveResult{}, err
	}
	b, err := e.Repo.GetBoard(ctx, t.BoardID)
	if err != nil {
		return MoveResult{}, err
	}
	toStatusID := opts.ToStatusID
	if toStatusID == "" {
		toStatusID = t.StatusID
	}
	target, err := e.Repo.GetStatusOption(ctx, toStatusID)
	if err != nil {
		return MoveResult{}, err
	}
	if target.BoardID != t.BoardID {
		return MoveResult{}, errors.New("status on different board")
	}
	from, err := e.Repo.GetStatusOption(ctx, t.StatusID)
	if err != nil {
		return MoveResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MoveResult{}, err
	}
	defer tx.Rollback()

	var incomplete []domain.Task
	if target.IsTerminal {
		children, err := e.Repo.ListChildrenTx(ctx, tx, t.ID)
		if err != nil {
			return MoveResult{}, err
		}
		for _, c := range children {
			if c.CompletedAt == nil {
				incomplete = append(incomplete, c)
			}
		}
		if len(incomplete) > 0 && !opts.ConfirmSubtasks {
			ids := make([]string, len(incomplete))
			for i, c := range incomplete {
				ids[i] = c.ID
			}
			return MoveResult{}, SubtasksIncompleteError{TaskID: t.ID, Incomplete: ids}
		}
	}

	pos, err := e.placeInColumn(ctx, tx, t, target.ID, opts.Index)
	if err != nil {
		return MoveResult{}, err
	}
	now := e.nowRFC3339()
	t.StatusID = target.ID
	t.Position = pos
	t.UpdatedAt = now
	wasTerminal := from.IsTerminal
	if target.IsTerminal && t.CompletedAt == nil {
		t.CompletedAt = &now
	}
	if !target.IsTerminal {
		t.CompletedAt = nil
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return MoveResult{}, err
	}

	if target.IsTerminal && opts.CompleteSubtasks {
		for _, c := range incomplete {
			c.StatusID = target.ID
			c.UpdatedAt = now
			c.CompletedAt = &now
			if err := e.Repo.UpdateTask(ctx, tx, c); err != nil {
				return MoveResult{}, err
			}
			if err := e.Events.Append(ctx, tx, "task.completed", b.OrgID, b.ID, "task", c.ID, opts.ActorID, events.EventPayload{"via_parent": t.ID}); err != nil {
				return MoveResult{}, err
			}
		}
	}

	if err := e.Events.Append(ctx, tx, "task.moved", b.OrgID, b.ID, "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": from.ID,
		"to_status":   target.ID,
	}); err != nil {
		return MoveResult{}, err
	}

	var spawned *domain.Task
	if target.IsTerminal && !wasTerminal {
		if err := e.Events.Append(ctx, tx, "task.completed", b.OrgID, b.ID, "task", t.ID, opts.ActorID, events.EventPayload{}); err != nil {
			return MoveResult{}, err
		}
		spawned, err = e.spawnNextOccurrence(ctx, tx, b, t, opts.ActorID)
		if err != nil {
			return MoveResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Task: t, Spawned: spawned}, nil
}

// placeInColumn computes the moved task's position. The midpoint between
// neighbors is used when it exists; otherwise the whole column is renumbered
// inside the caller's transaction.
func (e Engine) placeInColumn(ctx context.Context, tx *sql.Tx, t domain.Task, statusID string, index *int) (int, error) {
	if index == nil {
		max, hasAny, err := e.Repo.MaxTaskPositionTx(ctx, tx, t.BoardID, statusID)
		if err != nil {
			return 0, err
		}
		return order.Append(max, hasAny), nil
	}
	column, err := e.Repo.ListTasksByStatusTx(ctx, tx, t.BoardID, statusID)
	if err != nil {
		return 0, err
	}
	siblings := column[:0:0]
	for _, c := range column {
		if c.ID != t.ID {
			siblings = append(siblings, c)
		}
	}
	i := *index
	if i < 0 {
		i = 0
	}
	if i > len(siblings) {
		i = len(siblings)
	}
	switch {
	case len(siblings) == 0:
		return 0, nil
	case i == 0:
		if pos, ok := order.Between(-order.Step, siblings[0].Position); ok && pos >= 0 {
			return pos, nil
		}
	case i == len(siblings):
		return siblings[len(siblings)-1].Position + order.Step, nil
	default:
		if pos, ok := order.Between(siblings[i-1].Position, siblings[i].Position); ok {
			return pos, nil
		}
	}
	// no usable gap: renumber the column with the task in its slot
	ids := make([]string, 0, len(siblings)+1)
	for _, c := range siblings[:i] {
		ids = append(ids, c.ID)
	}
	ids = append(ids, t.ID)
	for _, c := range siblings[i:] {
		ids = append(ids, c.ID)
	}
	updates := order.Reindex(ids)
	if err := e.Repo.UpdateTaskPositionsTx(ctx, tx, updates); err != nil {
		return 0, err
	}
	return i * order.Step, nil
}

// CompleteTask moves a task into the board's first terminal column.
func (e Engine) CompleteTask(ctx context.Context, id string, confirmSubtasks bool, actorID string) (MoveResult, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return MoveResult{}, err
	}
	options, err := e.Repo.ListStatusOptions(ctx, t.BoardID)
	if err != nil {
		return MoveResult{}, err
	}
	terminalID := ""
	for _, o := range options {
		if o.IsTerminal {
			terminalID = o.ID
			break
		}
	}
	if terminalID == "" {
		return MoveResult{}, errors.New("board has no terminal status option")
	}
	return e.MoveTask(ctx, TaskMoveOptions{
		ID:              id,
		ToStatusID:      terminalID,
		ConfirmSubtasks: confirmSubtasks,
		ActorID:         actorID,
	})
}

// ReorderTasks renumbers one column to the supplied order. Every id must be a
// task of that column.
func (e Engine) ReorderTasks(ctx context.Context, boardID, statusID string, orderedIDs []string, actorID string) error {
	b, err := e.Repo.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	column, err := e.Repo.ListTasksByStatusTx(ctx, tx, boardID, statusID)
	if err != nil {
		return err
	}
	inColumn := map[string]bool{}
	for _, t := range column {
		inColumn[t.ID] = true
	}
	if len(orderedIDs) != len(column) {
		return fmt.Errorf("expected %d task ids, got %d", len(column), len(orderedIDs))
	}
	seen := map[string]bool{}
	for _, id := range orderedIDs {
		if !inColumn[id] {
			return fmt.Errorf("task %s not in status %s", id, statusID)
		}
		if seen[id] {
			return fmt.Errorf("task %s listed twice", id)
		}
		seen[id] = true
	}
	if err := e.Repo.UpdateTaskPositionsTx(ctx, tx, order.Reindex(orderedIDs)); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "tasks.reordered", b.OrgID, b.ID, "status_option", statusID, actorID, events.EventPayload{"count": len(orderedIDs)}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	b, err := e.Repo.GetBoard(ctx, t.BoardID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", b.OrgID, b.ID, "task", id, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// BulkUpdateOptions apply one edit across a caller-supplied id list in a single
// transaction; any failure rolls the whole batch back.
type BulkUpdateOptions struct {
	IDs             []string
	SetStatusID     string
	SetSectionID    *string
	Assign          *string
	ConfirmSubtasks bool
	ActorID         string
}

func (e Engine) BulkUpdateTasks(ctx context.Context, opts BulkUpdateOptions) ([]domain.Task, error) {
	if len(opts.IDs) == 0 {
		return nil, errors.New("no task ids given")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var target domain.StatusOption
	if opts.SetStatusID != "" {
		target, err = e.Repo.GetStatusOptionTx(ctx, tx, opts.SetStatusID)
		if err != nil {
			return nil, err
		}
	}
	now := e.nowRFC3339()
	var out []domain.Task
	for _, id := range opts.IDs {
		t, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", id, err)
		}
		b, err := e.Repo.GetBoardTx(ctx, tx, t.BoardID)
		if err != nil {
			return nil, err
		}
		if opts.SetSectionID != nil {
			if *opts.SetSectionID == "" {
				t.SectionID = nil
			} else {
				t.SectionID = opts.SetSectionID
			}
		}
		if opts.Assign != nil {
			if *opts.Assign == "" {
				t.AssigneeID = nil
			} else {
				t.AssigneeID = opts.Assign
			}
		}
		if opts.SetStatusID != "" && t.StatusID != opts.SetStatusID {
			if target.BoardID != t.BoardID {
				return nil, fmt.Errorf("task %s: status on different board", id)
			}
			if target.IsTerminal {
				children, err := e.Repo.ListChildrenTx(ctx, tx, t.ID)
				if err != nil {
					return nil, err
				}
				var open []string
				for _, c := range children {
					if c.CompletedAt == nil {
						open = append(open, c.ID)
					}
				}
				if len(open) > 0 && !opts.ConfirmSubtasks {
					return nil, SubtasksIncompleteError{TaskID: t.ID, Incomplete: open}
				}
				t.CompletedAt = &now
			} else {
				t.CompletedAt = nil
			}
			max, hasAny, err := e.Repo.MaxTaskPositionTx(ctx, tx, t.BoardID, opts.SetStatusID)
			if err != nil {
				return nil, err
			}
			wasTerminal := false
			if from, err := e.Repo.GetStatusOptionTx(ctx, tx, t.StatusID); err == nil {
				wasTerminal = from.IsTerminal
			}
			t.StatusID = opts.SetStatusID
			t.Position = order.Append(max, hasAny)
			t.UpdatedAt = now
			if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
				return nil, err
			}
			if target.IsTerminal && !wasTerminal {
				if err := e.Events.Append(ctx, tx, "task.completed", b.OrgID, b.ID, "task", t.ID, opts.ActorID, events.EventPayload{}); err != nil {
					return nil, err
				}
				if _, err := e.spawnNextOccurrence(ctx, tx, b, t, opts.ActorID); err != nil {
					return nil, err
				}
			}
		} else {
			t.UpdatedAt = now
			if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
				return nil, err
			}
		}
		if err := e.Events.Append(ctx, tx, "task.updated", b.OrgID, b.ID, "task", t.ID, opts.ActorID, events.EventPayload{"bulk": true}); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// BulkDeleteTasks removes a batch of tasks in one transaction.
func (e Engine) BulkDeleteTasks(ctx context.Context, ids []string, actorID string) error {
	if len(ids) == 0 {
		return errors.New("no task ids given")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ids {
		t, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("task %s: %w", id, err)
		}
		b, err := e.Repo.GetBoardTx(ctx, tx, t.BoardID)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "task.deleted", b.OrgID, b.ID, "task", id, actorID, events.EventPayload{"bulk": true}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// BulkDuplicateTasks copies a batch of tasks, appending each copy at the bottom
// of its column. Recurring configs are not carried over so copies do not spawn
// parallel series.
func (e Engine) BulkDuplicateTasks(ctx context.Context, ids []string, actorID string) ([]domain.Task, error) {
	if len(ids) == 0 {
		return nil, errors.New("no task ids given")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	now := e.nowRFC3339()
	var out []domain.Task
	for _, id := range ids {
		src, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", id, err)
		}
		b, err := e.Repo.GetBoardTx(ctx, tx, src.BoardID)
		if err != nil {
			return nil, err
		}
		max, hasAny, err := e.Repo.MaxTaskPositionTx(ctx, tx, src.BoardID, src.StatusID)
		if err != nil {
			return nil, err
		}
		dup := src
		dup.ID = uuid.New().String()
		dup.Title = duplicateTitle(src.Title)
		dup.Position = order.Append(max, hasAny)
		dup.RecurringJSON = nil
		dup.SeriesID = nil
		dup.CompletedAt = nil
		dup.CreatedAt = now
		dup.UpdatedAt = now
		if err := e.Repo.InsertTask(ctx, tx, dup); err != nil {
			return nil, err
		}
		if err := e.Events.Append(ctx, tx, "task.duplicated", b.OrgID, b.ID, "task", dup.ID, actorID, events.EventPayload{"source": src.ID}); err != nil {
			return nil, err
		}
		out = append(out, dup)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func duplicateTitle(title string) string {
	if strings.HasSuffix(title, " (copy)") {
		return title
	}
	return title + " (copy)"
}
