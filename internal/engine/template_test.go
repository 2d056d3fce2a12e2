package engine_test

import (
	"fmt"
	"strings"
	"testing"

	"boardline/internal/config"
	"boardline/internal/domain"
	"boardline/internal/engine"
	"boardline/internal/repo"
)

func TestCaptureAndCreateBoardFromTemplate(t *testing.T) {
	env := newTestEnv(t)
	sections, err := env.Engine.Repo.ListSectionOptions(env.Ctx, env.BoardID)
	if err != nil {
		t.Fatal(err)
	}
	parent, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:   env.BoardID,
		Title:     "kickoff",
		DueDate:   "2024-01-03", // capture runs on 2024-01-01
		SectionID: sections[0].ID,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		BoardID:  env.BoardID,
		Title:    "agenda",
		ParentID: parent.ID,
		DueDate:  "2024-01-02",
		ActorID:  "tester",
	}); err != nil {
		t.Fatal(err)
	}
	tmpl, err := env.Engine.CaptureTemplate(env.Ctx, engine.TemplateCaptureOptions{
		BoardID: env.BoardID,
		Name:    "Project Kickoff",
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	res, err := env.Engine.CreateBoardFromTemplate(env.Ctx, engine.BoardFromTemplateOptions{
		TemplateID: tmpl.ID,
		Name:       "Q2 Kickoff",
		AnchorDate: "2024-04-01",
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create from template: %v", err)
	}
	if res.Capped {
		t.Fatalf("unexpected cap")
	}
	if len(res.Created) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(res.Created))
	}
	byTitle := map[string]domain.Task{}
	for _, task := range res.Created {
		byTitle[task.Title] = task
	}
	top := byTitle["kickoff"]
	if top.DueDate == nil || *top.DueDate != "2024-04-03" {
		t.Fatalf("expected anchored due 2024-04-03, got %v", top.DueDate)
	}
	if top.SectionID == nil {
		t.Fatalf("expected section mapped by label")
	}
	child := byTitle["agenda"]
	if child.ParentID == nil || *child.ParentID != top.ID {
		t.Fatalf("expected child remapped to new parent id")
	}
	if child.DueDate == nil || *child.DueDate != "2024-04-02" {
		t.Fatalf("expected anchored due 2024-04-02, got %v", child.DueDate)
	}
	// new board carries the captured columns
	options, err := env.Engine.Repo.ListStatusOptions(env.Ctx, res.BoardID)
	if err != nil {
		t.Fatal(err)
	}
	if len(options) != 3 || !options[2].IsTerminal {
		t.Fatalf("expected captured columns on new board")
	}
}

func TestApplyTemplateAppendsAfterExistingTasks(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "tmpl task", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	tmpl, err := env.Engine.CaptureTemplate(env.Ctx, engine.TemplateCaptureOptions{BoardID: env.BoardID, Name: "one", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	target, err := env.Engine.CreateBoard(env.Ctx, engine.BoardCreateOptions{OrgID: "org-1", Name: "Target", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	existing, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: target.ID, Title: "already here", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.ApplyTemplate(env.Ctx, engine.TemplateApplyOptions{
		TemplateID: tmpl.ID,
		BoardID:    target.ID,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 1 {
		t.Fatalf("expected 1 task, got %d", len(res.Created))
	}
	if res.Created[0].Position <= existing.Position {
		t.Fatalf("expected template task appended after existing rows")
	}
}

func TestApplyTemplateWarnsOnUnmappedOptions(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "stage item", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	tmpl, err := env.Engine.CaptureTemplate(env.Ctx, engine.TemplateCaptureOptions{BoardID: env.BoardID, Name: "stages", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	// target board's columns share no labels with the captured ones
	odd, err := env.Engine.CreateBoard(env.Ctx, engine.BoardCreateOptions{
		OrgID: "org-1",
		Name:  "Odd",
		StatusOptions: []config.OptionConfig{
			{Label: "Inbox"},
			{Label: "Archived", Terminal: true},
		},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.ApplyTemplate(env.Ctx, engine.TemplateApplyOptions{
		TemplateID: tmpl.ID,
		BoardID:    odd.ID,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 1 {
		t.Fatalf("expected 1 task, got %d", len(res.Created))
	}
	if res.Created[0].StatusID == "" {
		t.Fatalf("expected fallback to default column")
	}
	options, err := env.Engine.Repo.ListStatusOptions(env.Ctx, odd.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created[0].StatusID != options[0].ID {
		t.Fatalf("expected task in first column, got %s", res.Created[0].StatusID)
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected warning about unmatched status label")
	}
}

func TestApplyTemplateExplicitStatusMapping(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{BoardID: env.BoardID, Title: "mapped item", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	tmpl, err := env.Engine.CaptureTemplate(env.Ctx, engine.TemplateCaptureOptions{BoardID: env.BoardID, Name: "mapped", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	captured, err := env.Engine.Repo.ListTemplateStatusOptionsTx(env.Ctx, tx, tmpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	var capturedTodo string
	for _, o := range captured {
		if o.Label == "To Do" {
			capturedTodo = o.ID
		}
	}
	if capturedTodo == "" {
		t.Fatalf("expected captured To Do column")
	}
	// target board shares no labels, so only an explicit mapping can place
	// the task anywhere but the default column
	odd, err := env.Engine.CreateBoard(env.Ctx, engine.BoardCreateOptions{
		OrgID: "org-1",
		Name:  "Odd Mapped",
		StatusOptions: []config.OptionConfig{
			{Label: "Inbox"},
			{Label: "Later"},
			{Label: "Archived", Terminal: true},
		},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	options, err := env.Engine.Repo.ListStatusOptions(env.Ctx, odd.ID)
	if err != nil {
		t.Fatal(err)
	}
	later := options[1].ID
	res, err := env.Engine.ApplyTemplate(env.Ctx, engine.TemplateApplyOptions{
		TemplateID: tmpl.ID,
		BoardID:    odd.ID,
		StatusMap:  map[string]string{capturedTodo: later},
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 1 {
		t.Fatalf("expected 1 task, got %d", len(res.Created))
	}
	if res.Created[0].StatusID != later {
		t.Fatalf("expected explicit mapping into %s, got %s", later, res.Created[0].StatusID)
	}
	// a mapping target that is not on the board is rejected
	if _, err := env.Engine.ApplyTemplate(env.Ctx, engine.TemplateApplyOptions{
		TemplateID: tmpl.ID,
		BoardID:    odd.ID,
		StatusMap:  map[string]string{capturedTodo: "bogus"},
		ActorID:    "tester",
	}); err == nil {
		t.Fatalf("expected rejection of unknown mapping target")
	}
}

func TestTemplateCapSkipsTasks(t *testing.T) {
	env := newTestEnv(t)
	tmpl, err := env.Engine.CaptureTemplate(env.Ctx, engine.TemplateCaptureOptions{BoardID: env.BoardID, Name: "big", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	// pad the template past the cap directly
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i <= engine.MaxTemplateTasks; i++ {
		tt := domain.TemplateTask{
			ID:         fmt.Sprintf("tt-%03d", i),
			TemplateID: tmpl.ID,
			Title:      fmt.Sprintf("task %d", i),
			Position:   i * 1000,
		}
		if err := env.Engine.Repo.InsertTemplateTaskTx(env.Ctx, tx, tt); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.CreateBoardFromTemplate(env.Ctx, engine.BoardFromTemplateOptions{
		TemplateID: tmpl.ID,
		Name:       "Capped",
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create should still succeed: %v", err)
	}
	if !res.Capped {
		t.Fatalf("expected cap indicator")
	}
	if len(res.Created) != 0 {
		t.Fatalf("expected no tasks inserted, got %d", len(res.Created))
	}
	// the board itself exists
	if _, err := env.Engine.Repo.GetBoard(env.Ctx, res.BoardID); err != nil {
		t.Fatalf("expected board created despite cap: %v", err)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "expansion cap") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cap warning, got %v", res.Warnings)
	}
}

func TestTemplateExactlyAtCapExpands(t *testing.T) {
	env := newTestEnv(t)
	tmpl, err := env.Engine.CaptureTemplate(env.Ctx, engine.TemplateCaptureOptions{BoardID: env.BoardID, Name: "full", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < engine.MaxTemplateTasks; i++ {
		tt := domain.TemplateTask{
			ID:         fmt.Sprintf("tt-%03d", i),
			TemplateID: tmpl.ID,
			Title:      fmt.Sprintf("task %d", i),
			Position:   i * 1000,
		}
		if err := env.Engine.Repo.InsertTemplateTaskTx(env.Ctx, tx, tt); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.CreateBoardFromTemplate(env.Ctx, engine.BoardFromTemplateOptions{
		TemplateID: tmpl.ID,
		Name:       "Full",
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Capped {
		t.Fatalf("a template exactly at the cap must expand")
	}
	if len(res.Created) != engine.MaxTemplateTasks {
		t.Fatalf("expected %d tasks, got %d", engine.MaxTemplateTasks, len(res.Created))
	}
}

func TestApplyTemplateDropsOrphans(t *testing.T) {
	env := newTestEnv(t)
	tmpl, err := env.Engine.CaptureTemplate(env.Ctx, engine.TemplateCaptureOptions{BoardID: env.BoardID, Name: "orphan", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	missing := "never-captured"
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.InsertTemplateTaskTx(env.Ctx, tx, domain.TemplateTask{
		ID:         "tt-orphan",
		TemplateID: tmpl.ID,
		ParentID:   &missing,
		Title:      "dangling child",
	}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.CreateBoardFromTemplate(env.Ctx, engine.BoardFromTemplateOptions{
		TemplateID: tmpl.ID,
		Name:       "NoOrphans",
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 0 {
		t.Fatalf("expected orphan dropped, got %d tasks", len(res.Created))
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected orphan warning")
	}
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{BoardID: res.BoardID})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty board, got %d tasks", len(tasks))
	}
}
