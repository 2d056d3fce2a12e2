package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"boardline/internal/config"
	"boardline/internal/db"
	"boardline/internal/engine"
	"boardline/internal/migrate"
	"boardline/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	BoardID string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateOrg(ctx, "org-1", "Test Org", "tester"); err != nil {
		t.Fatalf("create org: %v", err)
	}
	board, err := eng.CreateBoard(ctx, engine.BoardCreateOptions{OrgID: "org-1", Name: "Main", ActorID: "tester"})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, BoardID: board.ID}
}

func (env testEnv) statusByLabel(t *testing.T, label string) string {
	t.Helper()
	options, err := env.Engine.Repo.ListStatusOptions(env.Ctx, env.BoardID)
	if err != nil {
		t.Fatalf("list status options: %v", err)
	}
	for _, o := range options {
		if o.Label == label {
			return o.ID
		}
	}
	t.Fatalf("no status option %q", label)
	return ""
}

func TestBoardSeededFromConfig(t *testing.T) {
	env := newTestEnv(t)
	options, err := env.Engine.Repo.ListStatusOptions(env.Ctx, env.BoardID)
	if err != nil {
		t.Fatal(err)
	}
	if len(options) != 3 {
		t.Fatalf("expected 3 seeded columns, got %d", len(options))
	}
	if options[0].IsTerminal {
		t.Fatalf("first column must not be terminal")
	}
	if !options[len(options)-1].IsTerminal {
		t.Fatalf("expected last seeded column to be terminal")
	}
}

func TestCreateTaskLandsInDefaultColumn(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID: env.BoardID,
		Title:   "First",
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.StatusID != env.statusByLabel(t, "To Do") {
		t.Fatalf("expected default column")
	}
	if task.Position != 0 {
		t.Fatalf("expected first position 0, got %d", task.Position)
	}
	second, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "Second", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Position != 1000 {
		t.Fatalf("expected appended position 1000, got %d", second.Position)
	}
}

func TestOneLevelNesting(t *testing.T) {
	env := newTestEnv(t)
	parent, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "parent", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "child", ParentID: parent.ID, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "grandchild", ParentID: child.ID, ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected nesting rejection")
	}
}

func TestMoveToTerminalRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	done := env.statusByLabel(t, "Done")
	parent, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "parent", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "child", ParentID: parent.ID, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.MoveTask(env.Ctx, engine.TaskMoveOptions{ID: parent.ID, ToStatusID: done, ActorID: "tester"})
	var incomplete engine.SubtasksIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected SubtasksIncompleteError, got %v", err)
	}
	if len(incomplete.Incomplete) != 1 {
		t.Fatalf("expected 1 incomplete subtask, got %d", len(incomplete.Incomplete))
	}
	res, err := env.Engine.MoveTask(env.Ctx, engine.TaskMoveOptions{ID: parent.ID, ToStatusID: done, ConfirmSubtasks: true, ActorID: "tester"})
	if err != nil {
		t.Fatalf("confirmed move: %v", err)
	}
	if res.Task.CompletedAt == nil {
		t.Fatalf("expected completed_at stamped")
	}
	// the child stays open unless the caller asked to complete it too
	child, err := env.Engine.Repo.ListChildren(env.Ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if child[0].CompletedAt != nil {
		t.Fatalf("expected child left open")
	}
}

func TestCompleteSubtasksWithParent(t *testing.T) {
	env := newTestEnv(t)
	done := env.statusByLabel(t, "Done")
	parent, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "parent", ActorID: "tester"})
	_, _ = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "child", ParentID: parent.ID, ActorID: "tester"})
	_, err := env.Engine.MoveTask(env.Ctx, engine.TaskMoveOptions{
		ID: parent.ID, ToStatusID: done, ConfirmSubtasks: true, CompleteSubtasks: true, ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	children, err := env.Engine.Repo.ListChildren(env.Ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if children[0].CompletedAt == nil {
		t.Fatalf("expected child completed with parent")
	}
}

func TestReopenClearsCompletedAt(t *testing.T) {
	env := newTestEnv(t)
	task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "t", ActorID: "tester"})
	res, err := env.Engine.CompleteTask(env.Ctx, task.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Task.CompletedAt == nil {
		t.Fatalf("expected completion stamp")
	}
	back, err := env.Engine.MoveTask(env.Ctx, engine.TaskMoveOptions{ID: task.ID, ToStatusID: env.statusByLabel(t, "To Do"), ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if back.Task.CompletedAt != nil {
		t.Fatalf("expected completed_at cleared on reopen")
	}
}

func TestMoveWithinColumnUsesMidpoint(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: title, ActorID: "tester"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, task.ID)
	}
	// move c between a and b
	idx := 1
	res, err := env.Engine.MoveTask(env.Ctx, engine.TaskMoveOptions{ID: ids[2], Index: &idx, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Task.Position != 500 {
		t.Fatalf("expected midpoint 500, got %d", res.Task.Position)
	}
}

func TestMoveRenumbersWhenNoGap(t *testing.T) {
	env := newTestEnv(t)
	todo := env.statusByLabel(t, "To Do")
	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: title, ActorID: "tester"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, task.ID)
	}
	// collapse the gap between a and b
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE tasks SET position=1 WHERE id=?`, ids[1]); err != nil {
		t.Fatal(err)
	}
	idx := 1
	if _, err := env.Engine.MoveTask(env.Ctx, engine.TaskMoveOptions{ID: ids[2], Index: &idx, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	column, err := env.Engine.Repo.ListTasksByStatus(env.Ctx, env.BoardID, todo)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{ids[0], ids[2], ids[1]}
	for i, task := range column {
		if task.ID != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, task.ID, want[i])
		}
		if task.Position != i*1000 {
			t.Fatalf("expected renumbered position %d, got %d", i*1000, task.Position)
		}
	}
}

func TestReorderTasks(t *testing.T) {
	env := newTestEnv(t)
	todo := env.statusByLabel(t, "To Do")
	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: title, ActorID: "tester"})
		ids = append(ids, task.ID)
	}
	reordered := []string{ids[2], ids[0], ids[1]}
	if err := env.Engine.ReorderTasks(env.Ctx, env.BoardID, todo, reordered, "tester"); err != nil {
		t.Fatal(err)
	}
	column, err := env.Engine.Repo.ListTasksByStatus(env.Ctx, env.BoardID, todo)
	if err != nil {
		t.Fatal(err)
	}
	for i, task := range column {
		if task.ID != reordered[i] {
			t.Fatalf("order[%d] = %s, want %s", i, task.ID, reordered[i])
		}
	}
	// foreign id rejected
	if err := env.Engine.ReorderTasks(env.Ctx, env.BoardID, todo, []string{ids[0], ids[1], "nope"}, "tester"); err == nil {
		t.Fatalf("expected unknown id rejection")
	}
}

func TestBulkUpdateAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	done := env.statusByLabel(t, "Done")
	a, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "a", ActorID: "tester"})
	b, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "b", ActorID: "tester"})
	_, err := env.Engine.BulkUpdateTasks(env.Ctx, engine.BulkUpdateOptions{
		IDs:         []string{a.ID, "missing", b.ID},
		SetStatusID: done,
		ActorID:     "tester",
	})
	if err == nil {
		t.Fatalf("expected batch failure")
	}
	// nothing moved
	got, err := env.Engine.Repo.GetTask(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StatusID == done {
		t.Fatalf("expected rollback of the whole batch")
	}
	moved, err := env.Engine.BulkUpdateTasks(env.Ctx, engine.BulkUpdateOptions{
		IDs:         []string{a.ID, b.ID},
		SetStatusID: done,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range moved {
		if task.StatusID != done || task.CompletedAt == nil {
			t.Fatalf("expected task completed in bulk move")
		}
	}
}

func TestBulkDuplicateDropsRecurrence(t *testing.T) {
	env := newTestEnv(t)
	due := "2024-01-08"
	src, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:       env.BoardID,
		Title:         "weekly",
		DueDate:       due,
		RecurringJSON: `{"frequency":"weekly","interval":1,"days_of_week":[1]}`,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	dups, err := env.Engine.BulkDuplicateTasks(env.Ctx, []string{src.ID}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(dups) != 1 {
		t.Fatalf("expected one copy")
	}
	if dups[0].RecurringJSON != nil || dups[0].SeriesID != nil {
		t.Fatalf("expected copy detached from the series")
	}
	if dups[0].Title != "weekly (copy)" {
		t.Fatalf("unexpected copy title %q", dups[0].Title)
	}
}

func TestStatusOptionGuards(t *testing.T) {
	env := newTestEnv(t)
	done := env.statusByLabel(t, "Done")
	// the only terminal column cannot be deleted
	if err := env.Engine.DeleteStatusOption(env.Ctx, done, "tester"); err == nil {
		t.Fatalf("expected last terminal guard")
	}
	extra, err := env.Engine.AddStatusOption(env.Ctx, engine.StatusOptionOptions{BoardID: env.BoardID, Label: "Archived", IsTerminal: true, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	// now the original terminal can go, but not while it holds tasks
	task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "t", StatusID: done, ActorID: "tester"})
	if err := env.Engine.DeleteStatusOption(env.Ctx, done, "tester"); err == nil {
		t.Fatalf("expected non-empty column guard")
	}
	if _, err := env.Engine.MoveTask(env.Ctx, engine.TaskMoveOptions{ID: task.ID, ToStatusID: extra.ID, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteStatusOption(env.Ctx, done, "tester"); err != nil {
		t.Fatalf("delete emptied column: %v", err)
	}
}

func TestFirstStatusOptionCannotTurnTerminal(t *testing.T) {
	env := newTestEnv(t)
	options, err := env.Engine.Repo.ListStatusOptions(env.Ctx, env.BoardID)
	if err != nil {
		t.Fatal(err)
	}
	terminal := true
	if _, err := env.Engine.UpdateStatusOption(env.Ctx, options[0].ID, "", "", &terminal, "tester"); err == nil {
		t.Fatalf("expected first-column terminal rejection")
	}
	// middle columns may still flip
	updated, err := env.Engine.UpdateStatusOption(env.Ctx, options[1].ID, "", "", &terminal, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if !updated.IsTerminal {
		t.Fatalf("expected middle column flipped terminal")
	}
	// with the default column intact, completing a recurring task still spawns
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:       env.BoardID,
		Title:         "daily",
		DueDate:       "2024-01-01",
		RecurringJSON: `{"frequency":"daily","interval":1}`,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.CompleteTask(env.Ctx, task.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Spawned == nil {
		t.Fatalf("expected spawn into the non-terminal default column")
	}
	if res.Spawned.CompletedAt != nil {
		t.Fatalf("spawned occurrence must be open")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "evented", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, false, "tester"); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "org-1", "", "", "task", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, e := range events {
		seen[e.Type] = true
	}
	for _, want := range []string{"task.created", "task.moved", "task.completed"} {
		if !seen[want] {
			t.Fatalf("missing event %s", want)
		}
	}
}

func TestAssignmentWritesNotification(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:    env.BoardID,
		Title:      "for alice",
		AssigneeID: "alice",
		ActorID:    "tester",
	}); err != nil {
		t.Fatal(err)
	}
	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Kind != "assigned" {
		t.Fatalf("expected one assignment notification, got %+v", notes)
	}
	if err := env.Engine.MarkNotificationRead(env.Ctx, notes[0].ID, "alice"); err != nil {
		t.Fatal(err)
	}
	unread, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{ActorID: "alice", UnreadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread notifications")
	}
}

func TestFavorites(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddFavorite(env.Ctx, "tester", "board", env.BoardID); err != nil {
		t.Fatal(err)
	}
	favs, err := env.Engine.Repo.ListFavorites(env.Ctx, "tester", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(favs) != 1 {
		t.Fatalf("expected one favorite")
	}
	if err := env.Engine.RemoveFavorite(env.Ctx, "tester", "board", env.BoardID); err != nil {
		t.Fatal(err)
	}
	favs, _ = env.Engine.Repo.ListFavorites(env.Ctx, "tester", "")
	if len(favs) != 0 {
		t.Fatalf("expected favorite removed")
	}
}

func TestMemberRoles(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddMember(env.Ctx, "org-1", "bob", "viewer", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Auth.Require(env.Ctx, "org-1", "bob", "write"); err == nil {
		t.Fatalf("expected viewer denied write")
	}
	if err := env.Engine.Auth.Require(env.Ctx, "org-1", "bob", "read"); err != nil {
		t.Fatalf("expected viewer granted read: %v", err)
	}
	// the creating owner cannot be removed while alone
	if err := env.Engine.RemoveMember(env.Ctx, "org-1", "tester", "tester"); err == nil {
		t.Fatalf("expected last owner guard")
	}
}
