package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"boardline/internal/config"
	"boardline/internal/domain"
	"boardline/internal/engine"
	"boardline/internal/repo"
)

// Reminders periodically scans open tasks and notifies assignees whose due
// dates are close or already past. Each (actor, task, kind) pair is notified
// at most once.
type Reminders struct {
	Engine   engine.Engine
	Interval time.Duration
	Logger   *log.Logger

	cron *cron.Cron
}

func (r *Reminders) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

// Start schedules the scan and returns immediately. Call Stop to drain.
func (r *Reminders) Start() error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	r.cron = cron.New()
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %ds", int(interval.Seconds())), func() {
		if err := r.Scan(context.Background()); err != nil {
			r.logger().Printf("ERROR reminder scan: %v", err)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Reminders) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Scan runs one pass over every organization's open tasks.
func (r *Reminders) Scan(ctx context.Context) error {
	e := r.Engine
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	today := now.UTC().Format("2006-01-02")

	// The widest horizon any org's config can ask for bounds the query; the
	// per-org horizon is applied when deciding the notification kind.
	configs := map[string]*config.Config{}
	orgs, err := e.Repo.ListOrgs(ctx)
	if err != nil {
		return err
	}
	maxDays := 0
	for _, org := range orgs {
		cfg, err := e.Repo.GetOrgConfig(ctx, org.ID)
		if errors.Is(err, repo.ErrNotFound) {
			cfg = config.Default(org.ID)
		} else if err != nil {
			return err
		}
		configs[org.ID] = cfg
		if cfg.RemindersEnabled() && cfg.DueSoonDays() > maxDays {
			maxDays = cfg.DueSoonDays()
		}
	}
	horizon := now.UTC().AddDate(0, 0, maxDays).Format("2006-01-02")

	tasks, err := e.Repo.ListDueTasks(ctx, horizon)
	if err != nil {
		return err
	}
	boards := map[string]domain.Board{}
	for _, t := range tasks {
		if t.AssigneeID == nil || t.DueDate == nil {
			continue
		}
		b, ok := boards[t.BoardID]
		if !ok {
			b, err = e.Repo.GetBoard(ctx, t.BoardID)
			if err != nil {
				return err
			}
			boards[t.BoardID] = b
		}
		cfg := configs[b.OrgID]
		if cfg == nil || !cfg.RemindersEnabled() {
			continue
		}
		kind := "due_soon"
		if *t.DueDate < today {
			kind = "overdue"
		} else if *t.DueDate > now.UTC().AddDate(0, 0, cfg.DueSoonDays()).Format("2006-01-02") {
			continue
		}
		sent, err := e.Repo.HasDueNotification(ctx, *t.AssigneeID, t.ID, kind)
		if err != nil {
			return err
		}
		if sent {
			continue
		}
		if err := r.notify(ctx, b, t, kind); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reminders) notify(ctx context.Context, b domain.Board, t domain.Task, kind string) error {
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	message := fmt.Sprintf("%q is due %s", t.Title, *t.DueDate)
	if kind == "overdue" {
		message = fmt.Sprintf("%q was due %s", t.Title, *t.DueDate)
	}
	n := domain.Notification{
		ID:        uuid.New().String(),
		ActorID:   *t.AssigneeID,
		BoardID:   b.ID,
		TaskID:    &t.ID,
		Kind:      kind,
		Message:   message,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertNotificationTx(ctx, tx, n); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task."+kind, b.OrgID, b.ID, "task", t.ID, "system", map[string]any{
		"assignee_id": *t.AssigneeID,
		"due_date":    *t.DueDate,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
