package engine_test

import (
	"testing"

	"boardline/internal/engine"
	"boardline/internal/repo"
)

const weeklyMonday = `{"frequency":"weekly","interval":1,"days_of_week":[1]}`

func TestCompletionSpawnsNextOccurrence(t *testing.T) {
	env := newTestEnv(t)
	due := "2024-01-01" // a Monday
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:       env.BoardID,
		Title:         "standup notes",
		DueDate:       due,
		RecurringJSON: weeklyMonday,
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
		t.Fatalf("expected spawned occurrence")
	}
	next := res.Spawned
	if next.DueDate == nil || *next.DueDate != "2024-01-08" {
		t.Fatalf("expected next due 2024-01-08, got %v", next.DueDate)
	}
	if next.SeriesID == nil || *next.SeriesID != task.ID {
		t.Fatalf("expected series anchored at the first occurrence")
	}
	if next.StatusID != env.statusByLabel(t, "To Do") {
		t.Fatalf("expected spawn in the default column")
	}
	if next.CompletedAt != nil {
		t.Fatalf("spawned occurrence must be open")
	}
	// completing again continues the chain with the same series id
	res2, err := env.Engine.CompleteTask(env.Ctx, next.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res2.Spawned == nil || *res2.Spawned.SeriesID != task.ID {
		t.Fatalf("expected chained occurrence in same series")
	}
	if *res2.Spawned.DueDate != "2024-01-15" {
		t.Fatalf("expected due 2024-01-15, got %s", *res2.Spawned.DueDate)
	}
}

func TestNoSpawnWithoutDueDate(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:       env.BoardID,
		Title:         "no due",
		RecurringJSON: weeklyMonday,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.CompleteTask(env.Ctx, task.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Spawned != nil {
		t.Fatalf("expected no spawn without a due date")
	}
}

func TestNoSpawnWithoutConfig(t *testing.T) {
	env := newTestEnv(t)
	task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID: env.BoardID,
		Title:   "plain",
		DueDate: "2024-01-01",
		ActorID: "tester",
	})
	res, err := env.Engine.CompleteTask(env.Ctx, task.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Spawned != nil {
		t.Fatalf("expected no spawn for non-recurring task")
	}
}

func TestEndAfterOccurrencesStopsSeries(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:       env.BoardID,
		Title:         "twice more",
		DueDate:       "2024-01-01",
		RecurringJSON: `{"frequency":"daily","interval":1,"end_after_occurrences":2}`,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	// the root is not an occurrence: end_after_occurrences=2 means two spawns
	res, err := env.Engine.CompleteTask(env.Ctx, task.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Spawned == nil {
		t.Fatalf("expected first spawned occurrence")
	}
	res2, err := env.Engine.CompleteTask(env.Ctx, res.Spawned.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res2.Spawned == nil {
		t.Fatalf("expected second spawned occurrence")
	}
	res3, err := env.Engine.CompleteTask(env.Ctx, res2.Spawned.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res3.Spawned != nil {
		t.Fatalf("expected series to end after 2 spawned occurrences")
	}
	series, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{SeriesID: task.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 3 {
		t.Fatalf("expected root plus 2 occurrences, got %d rows", len(series))
	}
}

func TestEndAfterOneSpawnsOne(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:       env.BoardID,
		Title:         "once more",
		DueDate:       "2024-01-01",
		RecurringJSON: `{"frequency":"daily","interval":1,"end_after_occurrences":1}`,
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
		t.Fatalf("end_after_occurrences=1 must still emit one occurrence")
	}
	res2, err := env.Engine.CompleteTask(env.Ctx, res.Spawned.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res2.Spawned != nil {
		t.Fatalf("expected no spawn after the single allowed occurrence")
	}
}

func TestEndDateStopsSeries(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:       env.BoardID,
		Title:         "until friday",
		DueDate:       "2024-01-04",
		RecurringJSON: `{"frequency":"daily","interval":1,"end_date":"2024-01-05"}`,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.CompleteTask(env.Ctx, task.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res.Spawned == nil || *res.Spawned.DueDate != "2024-01-05" {
		t.Fatalf("expected final occurrence on 2024-01-05")
	}
	res2, err := env.Engine.CompleteTask(env.Ctx, res.Spawned.ID, false, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if res2.Spawned != nil {
		t.Fatalf("expected no spawn past end_date")
	}
}

func TestSpawnSharedWithStatusMoveTransaction(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:       env.BoardID,
		Title:         "atomic",
		DueDate:       "2024-01-01",
		RecurringJSON: weeklyMonday,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	// moving to terminal with an open subtask and no confirmation must roll
	// everything back: no completion, no spawn
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "sub", ParentID: task.ID, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, false, "tester"); err == nil {
		t.Fatalf("expected confirmation error")
	}
	series, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{SeriesID: task.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 1 {
		t.Fatalf("expected no spawn on failed move, series has %d rows", len(series))
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.CompletedAt != nil {
		t.Fatalf("expected task still open")
	}
}
