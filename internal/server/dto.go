package server

import (
	"encoding/json"

	"boardline/internal/config"
	"boardline/internal/domain"
	"boardline/internal/engine"
)

// Request payloads

type CreateOrgRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AddMemberRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"owner,editor,viewer"`
}

type OptionSeedRequest struct {
	Label    string `json:"label"`
	Color    string `json:"color,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

type CreateBoardRequest struct {
	ID             string              `json:"id,omitempty"`
	OrgID          string              `json:"org_id"`
	Name           string              `json:"name"`
	Description    *string             `json:"description,omitempty"`
	StatusOptions  []OptionSeedRequest `json:"status_options,omitempty"`
	SectionOptions []OptionSeedRequest `json:"section_options,omitempty"`
}

type UpdateBoardRequest struct {
	Name        string  `json:"name,omitempty"`
	Status      string  `json:"status,omitempty" enum:"active,archived"`
	Description *string `json:"description,omitempty"`
}

type AddStatusOptionRequest struct {
	Label    string `json:"label"`
	Color    string `json:"color,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

type UpdateStatusOptionRequest struct {
	Label    string `json:"label,omitempty"`
	Color    string `json:"color,omitempty"`
	Terminal *bool  `json:"terminal,omitempty"`
}

type AddSectionOptionRequest struct {
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

type ReorderRequest struct {
	IDs []string `json:"ids"`
}

type CreateTaskRequest struct {
	ID          *string        `json:"id,omitempty"`
	ParentID    *string        `json:"parent_id,omitempty"`
	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	StatusID    *string        `json:"status_id,omitempty"`
	SectionID   *string        `json:"section_id,omitempty"`
	AssigneeID  *string        `json:"assignee_id,omitempty"`
	DueDate     *string        `json:"due_date,omitempty" format:"date"`
	Recurring   map[string]any `json:"recurring,omitempty"`
}

type UpdateTaskRequest struct {
	Title       string          `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	SectionID   *string         `json:"section_id,omitempty"`
	AssigneeID  *string         `json:"assignee_id,omitempty"`
	DueDate     *string         `json:"due_date,omitempty" format:"date"`
	Recurring   *map[string]any `json:"recurring,omitempty"`
}

type MoveTaskRequest struct {
	StatusID         string `json:"status_id,omitempty"`
	Index            *int   `json:"index,omitempty"`
	ConfirmSubtasks  bool   `json:"confirm_subtasks,omitempty"`
	CompleteSubtasks bool   `json:"complete_subtasks,omitempty"`
}

type CompleteTaskRequest struct {
	ConfirmSubtasks bool `json:"confirm_subtasks,omitempty"`
}

type ReorderTasksRequest struct {
	StatusID string   `json:"status_id"`
	IDs      []string `json:"ids"`
}

type BulkUpdateRequest struct {
	IDs             []string `json:"ids"`
	StatusID        string   `json:"status_id,omitempty"`
	SectionID       *string  `json:"section_id,omitempty"`
	AssigneeID      *string  `json:"assignee_id,omitempty"`
	ConfirmSubtasks bool     `json:"confirm_subtasks,omitempty"`
}

type BulkIDsRequest struct {
	IDs []string `json:"ids"`
}

type CaptureTemplateRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type ApplyTemplateRequest struct {
	BoardID    string            `json:"board_id"`
	AnchorDate string            `json:"anchor_date,omitempty" format:"date"`
	StatusMap  map[string]string `json:"status_map,omitempty"`
	SectionMap map[string]string `json:"section_map,omitempty"`
}

type BoardFromTemplateRequest struct {
	OrgID      string `json:"org_id,omitempty"`
	Name       string `json:"name"`
	AnchorDate string `json:"anchor_date,omitempty" format:"date"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	OrgID   string   `json:"org_id"`
	Roles   []string `json:"roles,omitempty"`
	Scopes  []string `json:"scopes,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type OrgResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MemberResponse struct {
	OrgID     string `json:"org_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"owner,editor,viewer"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type BoardResponse struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"active,archived"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type StatusOptionResponse struct {
	ID         string `json:"id"`
	BoardID    string `json:"board_id"`
	Label      string `json:"label"`
	Color      string `json:"color,omitempty"`
	Position   int    `json:"position"`
	IsTerminal bool   `json:"is_terminal"`
}

type SectionOptionResponse struct {
	ID       string `json:"id"`
	BoardID  string `json:"board_id"`
	Label    string `json:"label"`
	Color    string `json:"color,omitempty"`
	Position int    `json:"position"`
}

type TaskResponse struct {
	ID          string         `json:"id"`
	BoardID     string         `json:"board_id"`
	ParentID    *string        `json:"parent_id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	StatusID    string         `json:"status_id"`
	SectionID   *string        `json:"section_id,omitempty"`
	AssigneeID  *string        `json:"assignee_id,omitempty"`
	DueDate     *string        `json:"due_date,omitempty" format:"date"`
	Position    int            `json:"position"`
	Recurring   map[string]any `json:"recurring,omitempty"`
	SeriesID    *string        `json:"series_id,omitempty"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
	UpdatedAt   string         `json:"updated_at" format:"date-time"`
	CompletedAt *string        `json:"completed_at,omitempty" format:"date-time"`
}

type MoveTaskResponse struct {
	Task    TaskResponse  `json:"task"`
	Spawned *TaskResponse `json:"spawned,omitempty"`
}

type TemplateResponse struct {
	ID            string  `json:"id"`
	OrgID         string  `json:"org_id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	SourceBoardID *string `json:"source_board_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type TemplateApplyResponse struct {
	BoardID  string         `json:"board_id"`
	Created  []TaskResponse `json:"created"`
	Capped   bool           `json:"capped"`
	Warnings []string       `json:"warnings"`
}

type FavoriteResponse struct {
	ActorID    string `json:"actor_id"`
	EntityKind string `json:"entity_kind" enum:"board,task"`
	EntityID   string `json:"entity_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type NotificationResponse struct {
	ID        string  `json:"id"`
	ActorID   string  `json:"actor_id"`
	BoardID   string  `json:"board_id"`
	TaskID    *string `json:"task_id,omitempty"`
	Kind      string  `json:"kind"`
	Message   string  `json:"message"`
	ReadAt    *string `json:"read_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id,omitempty"`
	BoardID    string         `json:"board_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	OrgID       string   `json:"org_id,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type BoardStatusResponse struct {
	BoardID    string         `json:"board_id"`
	Status     string         `json:"status" enum:"active,archived"`
	TaskCounts map[string]int `json:"task_counts"`
}

type OrgConfigResponse struct {
	Org struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"org"`
	Boards struct {
		StatusOptions  []OptionSeedRequest `json:"status_options"`
		SectionOptions []OptionSeedRequest `json:"section_options"`
	} `json:"boards"`
	Reminders struct {
		Enabled     bool `json:"enabled"`
		DueSoonDays int  `json:"due_soon_days"`
	} `json:"reminders"`
}

type paginatedBoards struct {
	Items      []BoardResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func orgResponse(o domain.Org) OrgResponse {
	return OrgResponse(o)
}

func memberResponse(m domain.Member) MemberResponse {
	return MemberResponse(m)
}

func boardResponse(b domain.Board) BoardResponse {
	return BoardResponse(b)
}

func statusOptionResponse(o domain.StatusOption) StatusOptionResponse {
	return StatusOptionResponse(o)
}

func sectionOptionResponse(o domain.SectionOption) SectionOptionResponse {
	return SectionOptionResponse(o)
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		BoardID:     t.BoardID,
		ParentID:    t.ParentID,
		Title:       t.Title,
		Description: t.Description,
		StatusID:    t.StatusID,
		SectionID:   t.SectionID,
		AssigneeID:  t.AssigneeID,
		DueDate:     t.DueDate,
		Position:    t.Position,
		Recurring:   decodeJSONMap(t.RecurringJSON),
		SeriesID:    t.SeriesID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func templateResponse(t domain.Template) TemplateResponse {
	return TemplateResponse(t)
}

func favoriteResponse(f domain.Favorite) FavoriteResponse {
	return FavoriteResponse(f)
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse(n)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		OrgID:      e.OrgID,
		BoardID:    e.BoardID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

func configResponse(cfg *config.Config) OrgConfigResponse {
	var res OrgConfigResponse
	res.Org.ID = cfg.Org.ID
	res.Org.Name = cfg.Org.Name
	res.Boards.StatusOptions = mapOptionSeeds(cfg.Boards.StatusOptions)
	res.Boards.SectionOptions = mapOptionSeeds(cfg.Boards.SectionOptions)
	res.Reminders.Enabled = cfg.RemindersEnabled()
	res.Reminders.DueSoonDays = cfg.DueSoonDays()
	return res
}

func mapOptionSeeds(opts []config.OptionConfig) []OptionSeedRequest {
	res := make([]OptionSeedRequest, 0, len(opts))
	for _, o := range opts {
		res = append(res, OptionSeedRequest{Label: o.Label, Color: o.Color, Terminal: o.Terminal})
	}
	return res
}

func optionSeeds(in []OptionSeedRequest) []config.OptionConfig {
	res := make([]config.OptionConfig, 0, len(in))
	for _, o := range in {
		res = append(res, config.OptionConfig{Label: o.Label, Color: o.Color, Terminal: o.Terminal})
	}
	return res
}

func templateApplyResponse(res engine.TemplateApplyResult) TemplateApplyResponse {
	return TemplateApplyResponse{
		BoardID:  res.BoardID,
		Created:  mapTasks(res.Created),
		Capped:   res.Capped,
		Warnings: nonNilSlice(res.Warnings),
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapBoards(items []domain.Board) []BoardResponse {
	res := make([]BoardResponse, 0, len(items))
	for _, b := range items {
		res = append(res, boardResponse(b))
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
