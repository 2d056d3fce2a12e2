package domain

type Org struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Board struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"active,archived"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// StatusOption is one column of a board. Terminal options mark completion;
// moving a task into one completes it (and may spawn the next occurrence).
type StatusOption struct {
	ID         string `json:"id"`
	BoardID    string `json:"board_id"`
	Label      string `json:"label"`
	Color      string `json:"color,omitempty"`
	Position   int    `json:"position"`
	IsTerminal bool   `json:"is_terminal"`
}

type SectionOption struct {
	ID       string `json:"id"`
	BoardID  string `json:"board_id"`
	Label    string `json:"label"`
	Color    string `json:"color,omitempty"`
	Position int    `json:"position"`
}

type Task struct {
	ID            string  `json:"id"`
	BoardID       string  `json:"board_id"`
	ParentID      *string `json:"parent_id,omitempty"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	StatusID      string  `json:"status_id"`
	SectionID     *string `json:"section_id,omitempty"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
	DueDate       *string `json:"due_date,omitempty" format:"date"`
	Position      int     `json:"position"`
	RecurringJSON *string `json:"recurring_json,omitempty"`
	SeriesID      *string `json:"series_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
	CompletedAt   *string `json:"completed_at,omitempty" format:"date-time"`
}

type Template struct {
	ID            string  `json:"id"`
	OrgID         string  `json:"org_id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	SourceBoardID *string `json:"source_board_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

// TemplateTask references template-local status/section identifiers, not board
// identifiers; they are resolved through a mapping at apply time.
type TemplateTask struct {
	ID              string  `json:"id"`
	TemplateID      string  `json:"template_id"`
	ParentID        *string `json:"parent_id,omitempty"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	StatusID        *string `json:"status_id,omitempty"`
	SectionID       *string `json:"section_id,omitempty"`
	RelativeDueDays *int    `json:"relative_due_days,omitempty"`
	RecurringJSON   *string `json:"recurring_json,omitempty"`
	Position        int     `json:"position"`
}

type TemplateStatusOption struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	Label      string `json:"label"`
	Color      string `json:"color,omitempty"`
	Position   int    `json:"position"`
	IsTerminal bool   `json:"is_terminal"`
}

type TemplateSectionOption struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	Label      string `json:"label"`
	Color      string `json:"color,omitempty"`
	Position   int    `json:"position"`
}

type Favorite struct {
	ActorID    string `json:"actor_id"`
	EntityKind string `json:"entity_kind" enum:"board,task"`
	EntityID   string `json:"entity_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string  `json:"id"`
	ActorID   string  `json:"actor_id"`
	BoardID   string  `json:"board_id"`
	TaskID    *string `json:"task_id,omitempty"`
	Kind      string  `json:"kind"`
	Message   string  `json:"message"`
	ReadAt    *string `json:"read_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Member struct {
	OrgID     string `json:"org_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"owner,editor,viewer"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	BoardID    string `json:"board_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
