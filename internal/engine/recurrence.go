package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"boardline/internal/domain"
	"boardline/internal/events"
	"boardline/internal/order"
	"boardline/internal/recur"
)

// spawnNextOccurrence inserts the next occurrence of a recurring task inside
// the transaction that completed the current one, so a crash can never leave a
// completed occurrence without its successor. Returns nil when the task is not
// recurring, has no due date, or the series has ended.
func (e Engine) spawnNextOccurrence(ctx context.Context, tx *sql.Tx, b domain.Board, t domain.Task, actorID string) (*domain.Task, error) {
	if t.RecurringJSON == nil || t.DueDate == nil {
		return nil, nil
	}
	cfg, err := recur.Parse(*t.RecurringJSON)
	if err != nil {
		return nil, fmt.Errorf("task %s recurring config: %w", t.ID, err)
	}
	due, err := time.Parse(recur.DateLayout, *t.DueDate)
	if err != nil {
		return nil, fmt.Errorf("task %s due date: %w", t.ID, err)
	}
	seriesID := t.ID
	if t.SeriesID != nil {
		seriesID = *t.SeriesID
	}
	if cfg.EndAfterOccurrences != nil {
		spawned, err := e.Repo.CountSeriesOccurrencesTx(ctx, tx, seriesID)
		if err != nil {
			return nil, err
		}
		if spawned >= *cfg.EndAfterOccurrences {
			return nil, nil
		}
	}
	next, ok := recur.Next(cfg, due)
	if !ok {
		return nil, nil
	}
	if cfg.EndDate != nil {
		end, err := time.Parse(recur.DateLayout, *cfg.EndDate)
		if err == nil && next.After(end) {
			return nil, nil
		}
	}

	def, err := e.Repo.DefaultStatusOptionTx(ctx, tx, t.BoardID)
	if err != nil {
		return nil, fmt.Errorf("board %s has no status options: %w", t.BoardID, err)
	}
	max, hasAny, err := e.Repo.MaxTaskPositionTx(ctx, tx, t.BoardID, def.ID)
	if err != nil {
		return nil, err
	}
	now := e.nowRFC3339()
	nextDue := next.Format(recur.DateLayout)
	occ := domain.Task{
		ID:            uuid.New().String(),
		BoardID:       t.BoardID,
		Title:         t.Title,
		Description:   t.Description,
		StatusID:      def.ID,
		SectionID:     t.SectionID,
		AssigneeID:    t.AssigneeID,
		DueDate:       &nextDue,
		Position:      order.Append(max, hasAny),
		RecurringJSON: t.RecurringJSON,
		SeriesID:      &seriesID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.Repo.InsertTask(ctx, tx, occ); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "task.spawned", b.OrgID, b.ID, "task", occ.ID, actorID, events.EventPayload{
		"series_id": seriesID,
		"due_date":  nextDue,
		"source":    t.ID,
	}); err != nil {
		return nil, err
	}
	return &occ, nil
}
