package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"boardline/internal/engine"
	"boardline/internal/engine/auth"
	"boardline/internal/repo"
)

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/boards/{board_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string            `path:"board_id"`
		Body    CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskCreateOptions{
			BoardID:     input.BoardID,
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			ParentID:    stringOrEmpty(input.Body.ParentID),
			StatusID:    stringOrEmpty(input.Body.StatusID),
			SectionID:   stringOrEmpty(input.Body.SectionID),
			AssigneeID:  stringOrEmpty(input.Body.AssigneeID),
			DueDate:     stringOrEmpty(input.Body.DueDate),
			ActorID:     actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if len(input.Body.Recurring) > 0 {
			raw, err := json.Marshal(input.Body.Recurring)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid recurring rule", map[string]any{"error": err.Error()})
			}
			opts.RecurringJSON = string(raw)
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/boards/{board_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BoardID    string `path:"board_id"`
		StatusID   string `query:"status_id"`
		SectionID  string `query:"section_id"`
		AssigneeID string `query:"assignee_id"`
		ParentID   string `query:"parent_id"`
		SeriesID   string `query:"series_id"`
		DueBefore  string `query:"due_before" format:"date"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			BoardID:         input.BoardID,
			StatusID:        input.StatusID,
			SectionID:       input.SectionID,
			AssigneeID:      input.AssigneeID,
			ParentID:        input.ParentID,
			SeriesID:        input.SeriesID,
			DueBefore:       input.DueBefore,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(tasks) > limit {
			resp.NextCursor = composeCursor(tasks[limit].CreatedAt, tasks[limit].ID)
			tasks = tasks[:limit]
		}
		resp.Items = mapTasks(tasks)
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := taskForPermission(ctx, e, input.ID, auth.PermRead)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := taskForPermission(ctx, e, input.ID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bodyMap := rawBodyMap(ctx)
		opts := engine.TaskUpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			ActorID:     actorID,
		}
		if _, ok := bodyMap["section_id"]; ok {
			opts.SetSection = strPtr(stringOrEmpty(input.Body.SectionID))
		}
		if _, ok := bodyMap["assignee_id"]; ok {
			opts.Assign = strPtr(stringOrEmpty(input.Body.AssigneeID))
		}
		if _, ok := bodyMap["due_date"]; ok {
			opts.SetDueDate = strPtr(stringOrEmpty(input.Body.DueDate))
		}
		if raw, ok := bodyMap["recurring"]; ok {
			if isNullRaw(raw) || (input.Body.Recurring != nil && len(*input.Body.Recurring) == 0) {
				opts.SetRecurring = strPtr("")
			} else if input.Body.Recurring != nil {
				encoded, err := json.Marshal(*input.Body.Recurring)
				if err != nil {
					return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid recurring rule", map[string]any{"error": err.Error()})
				}
				opts.SetRecurring = strPtr(string(encoded))
			}
		}
		t, err := e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, err := taskForPermission(ctx, e, input.ID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/move",
		Summary:     "Move task within or across columns",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body MoveTaskRequest `json:"body"`
	}) (*struct {
		Body MoveTaskResponse `json:"body"`
	}, error) {
		if _, err := taskForPermission(ctx, e, input.ID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.MoveTask(ctx, engine.TaskMoveOptions{
			ID:               input.ID,
			ToStatusID:       input.Body.StatusID,
			Index:            input.Body.Index,
			ConfirmSubtasks:  input.Body.ConfirmSubtasks,
			CompleteSubtasks: input.Body.CompleteSubtasks,
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MoveTaskResponse `json:"body"`
		}{Body: moveResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Move task to the board's first terminal column",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body CompleteTaskRequest `json:"body"`
	}) (*struct {
		Body MoveTaskResponse `json:"body"`
	}, error) {
		if _, err := taskForPermission(ctx, e, input.ID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CompleteTask(ctx, input.ID, input.Body.ConfirmSubtasks, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MoveTaskResponse `json:"body"`
		}{Body: moveResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-tasks",
		Method:      http.MethodPost,
		Path:        "/boards/{board_id}/tasks/reorder",
		Summary:     "Reorder one column's tasks",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string              `path:"board_id"`
		Body    ReorderTasksRequest `json:"body"`
	}) (*struct{}, error) {
		if input.Body.StatusID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status_id is required", nil)
		}
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ReorderTasks(ctx, input.BoardID, input.Body.StatusID, input.Body.IDs, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-series",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/series",
		Summary:     "List the recurrence series a task belongs to",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		t, err := taskForPermission(ctx, e, input.ID, auth.PermRead)
		if err != nil {
			return nil, handleError(err)
		}
		seriesID := t.ID
		if t.SeriesID != nil {
			seriesID = *t.SeriesID
		}
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{SeriesID: seriesID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-update-tasks",
		Method:      http.MethodPost,
		Path:        "/boards/{board_id}/tasks/bulk-update",
		Summary:     "Apply one edit to many tasks atomically",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string            `path:"board_id"`
		Body    BulkUpdateRequest `json:"body"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		if len(input.Body.IDs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "ids are required", nil)
		}
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		updated, err := e.BulkUpdateTasks(ctx, engine.BulkUpdateOptions{
			IDs:             input.Body.IDs,
			SetStatusID:     input.Body.StatusID,
			SetSectionID:    input.Body.SectionID,
			Assign:          input.Body.AssigneeID,
			ConfirmSubtasks: input.Body.ConfirmSubtasks,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(updated)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-delete-tasks",
		Method:      http.MethodPost,
		Path:        "/boards/{board_id}/tasks/bulk-delete",
		Summary:     "Delete many tasks atomically",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string         `path:"board_id"`
		Body    BulkIDsRequest `json:"body"`
	}) (*struct{}, error) {
		if len(input.Body.IDs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "ids are required", nil)
		}
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.BulkDeleteTasks(ctx, input.Body.IDs, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-duplicate-tasks",
		Method:      http.MethodPost,
		Path:        "/boards/{board_id}/tasks/bulk-duplicate",
		Summary:     "Duplicate many tasks atomically",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string         `path:"board_id"`
		Body    BulkIDsRequest `json:"body"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		if len(input.Body.IDs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "ids are required", nil)
		}
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		copies, err := e.BulkDuplicateTasks(ctx, input.Body.IDs, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(copies)}, nil
	})
}

func moveResponse(res engine.MoveResult) MoveTaskResponse {
	out := MoveTaskResponse{Task: taskResponse(res.Task)}
	if res.Spawned != nil {
		spawned := taskResponse(*res.Spawned)
		out.Spawned = &spawned
	}
	return out
}

func registerTemplates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "capture-template",
		Method:        http.MethodPost,
		Path:          "/boards/{board_id}/template",
		Summary:       "Capture board as a template",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		BoardID string                 `path:"board_id"`
		Body    CaptureTemplateRequest `json:"body"`
	}) (*struct {
		Body TemplateResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if _, err := boardForPermission(ctx, e, input.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tmpl, err := e.CaptureTemplate(ctx, engine.TemplateCaptureOptions{
			BoardID:     input.BoardID,
			Name:        input.Body.Name,
			Description: stringOrEmpty(input.Body.Description),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateResponse `json:"body"`
		}{Body: templateResponse(tmpl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/templates",
		Summary:     "List templates",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []TemplateResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.OrgID, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTemplates(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]TemplateResponse, 0, len(items))
		for _, t := range items {
			res = append(res, templateResponse(t))
		}
		return &struct {
			Body []TemplateResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Get template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TemplateResponse `json:"body"`
	}, error) {
		tmpl, err := e.Repo.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requirePermission(ctx, e, tmpl.OrgID, auth.PermRead); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateResponse `json:"body"`
		}{Body: templateResponse(tmpl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-template",
		Method:      http.MethodDelete,
		Path:        "/templates/{id}",
		Summary:     "Delete template",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		tmpl, err := e.Repo.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requirePermission(ctx, e, tmpl.OrgID, auth.PermManage); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTemplate(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-template",
		Method:      http.MethodPost,
		Path:        "/templates/{id}/apply",
		Summary:     "Expand template onto an existing board",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body ApplyTemplateRequest `json:"body"`
	}) (*struct {
		Body TemplateApplyResponse `json:"body"`
	}, error) {
		if input.Body.BoardID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "board_id is required", nil)
		}
		if _, err := boardForPermission(ctx, e, input.Body.BoardID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ApplyTemplate(ctx, engine.TemplateApplyOptions{
			TemplateID: input.ID,
			BoardID:    input.Body.BoardID,
			AnchorDate: input.Body.AnchorDate,
			StatusMap:  input.Body.StatusMap,
			SectionMap: input.Body.SectionMap,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateApplyResponse `json:"body"`
		}{Body: templateApplyResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-board-from-template",
		Method:        http.MethodPost,
		Path:          "/templates/{id}/board",
		Summary:       "Create a board from a template",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body BoardFromTemplateRequest `json:"body"`
	}) (*struct {
		Body TemplateApplyResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		tmpl, err := e.Repo.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		orgID := input.Body.OrgID
		if orgID == "" {
			orgID = tmpl.OrgID
		}
		if err := requirePermission(ctx, e, orgID, auth.PermWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CreateBoardFromTemplate(ctx, engine.BoardFromTemplateOptions{
			TemplateID: input.ID,
			OrgID:      input.Body.OrgID,
			Name:       input.Body.Name,
			AnchorDate: input.Body.AnchorDate,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateApplyResponse `json:"body"`
		}{Body: templateApplyResponse(res)}, nil
	})
}

func registerFavorites(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "add-favorite",
		Method:      http.MethodPut,
		Path:        "/favorites/{entity_kind}/{entity_id}",
		Summary:     "Mark a board or task as favorite",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		EntityKind string `path:"entity_kind" enum:"board,task"`
		EntityID   string `path:"entity_id"`
	}) (*struct {
		Body FavoriteResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.AddFavorite(ctx, actorID, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FavoriteResponse `json:"body"`
		}{Body: favoriteResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-favorite",
		Method:      http.MethodDelete,
		Path:        "/favorites/{entity_kind}/{entity_id}",
		Summary:     "Remove a favorite",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EntityKind string `path:"entity_kind" enum:"board,task"`
		EntityID   string `path:"entity_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveFavorite(ctx, actorID, input.EntityKind, input.EntityID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-favorites",
		Method:      http.MethodGet,
		Path:        "/favorites",
		Summary:     "List the current actor's favorites",
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind" enum:",board,task"`
	}) (*struct {
		Body []FavoriteResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListFavorites(ctx, actorID, input.EntityKind)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]FavoriteResponse, 0, len(items))
		for _, f := range items {
			res = append(res, favoriteResponse(f))
		}
		return &struct {
			Body []FavoriteResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List the current actor's notifications",
	}, func(ctx context.Context, input *struct {
		Kind   string `query:"kind" enum:",assigned,due_soon,overdue"`
		Unread bool   `query:"unread"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []NotificationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, repo.NotificationFilters{
			ActorID:    actorID,
			Kind:       input.Kind,
			UnreadOnly: input.Unread,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]NotificationResponse, 0, len(items))
		for _, n := range items {
			res = append(res, notificationResponse(n))
		}
		return &struct {
			Body []NotificationResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark a notification read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MarkNotificationRead(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
