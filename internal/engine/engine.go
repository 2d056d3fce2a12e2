package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"boardline/internal/config"
	"boardline/internal/domain"
	"boardline/internal/engine/auth"
	"boardline/internal/events"
	"boardline/internal/order"
	"boardline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateOrg initializes an organization with its config seeded and the creating
// actor as owner.
func (e Engine) CreateOrg(ctx context.Context, orgID, name, actorID string) (domain.Org, error) {
	if name == "" {
		return domain.Org{}, errors.New("name is required")
	}
	if actorID == "" {
		return domain.Org{}, errors.New("actor is required")
	}
	if orgID == "" {
		orgID = uuid.New().String()
	}
	now := e.nowRFC3339()
	o := domain.Org{
		ID:        orgID,
		Name:      name,
		Status:    "active",
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Org{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertOrg(ctx, o); err != nil {
		return domain.Org{}, fmt.Errorf("insert organization: %w", err)
	}
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default(orgID)
	}
	if err := e.Repo.UpsertOrgConfigTx(ctx, tx, orgID, cfg); err != nil {
		return domain.Org{}, fmt.Errorf("insert org config: %w", err)
	}
	if err := e.Auth.EnsureActor(ctx, tx, actorID); err != nil {
		return domain.Org{}, err
	}
	if err := e.Repo.UpsertMember(ctx, tx, domain.Member{OrgID: orgID, ActorID: actorID, Role: auth.RoleOwner, CreatedAt: now}); err != nil {
		return domain.Org{}, err
	}
	if err := e.Events.Append(ctx, tx, "org.created", orgID, "", "org", orgID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Org{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Org{}, err
	}
	return o, nil
}

// AddMember grants an actor a role in an organization, or changes the role.
func (e Engine) AddMember(ctx context.Context, orgID, memberID, role, actorID string) (domain.Member, error) {
	switch role {
	case auth.RoleOwner, auth.RoleEditor, auth.RoleViewer:
	default:
		return domain.Member{}, fmt.Errorf("unknown role %q", role)
	}
	if _, err := e.Repo.GetOrg(ctx, orgID); err != nil {
		return domain.Member{}, err
	}
	m := domain.Member{OrgID: orgID, ActorID: memberID, Role: role, CreatedAt: e.nowRFC3339()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Auth.EnsureActor(ctx, tx, memberID); err != nil {
		return m, err
	}
	if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, "member.added", orgID, "", "member", memberID, actorID, events.EventPayload{"role": role}); err != nil {
		return m, err
	}
	return m, tx.Commit()
}

// RemoveMember drops an actor from an organization. The last owner cannot be
// removed.
func (e Engine) RemoveMember(ctx context.Context, orgID, memberID, actorID string) error {
	m, err := e.Repo.GetMember(ctx, orgID, memberID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if m.Role == auth.RoleOwner {
		owners, err := e.Repo.CountMembersWithRole(ctx, tx, orgID, auth.RoleOwner)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return errors.New("cannot remove the last owner")
		}
	}
	if err := e.Repo.RemoveMember(ctx, tx, orgID, memberID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "member.removed", orgID, "", "member", memberID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// BoardCreateOptions are parameters for creating a board. When StatusOptions is
// empty the org config's defaults are seeded.
type BoardCreateOptions struct {
	ID             string
	OrgID          string
	Name           string
	Description    string
	StatusOptions  []config.OptionConfig
	SectionOptions []config.OptionConfig
	ActorID        string
}

func (e Engine) CreateBoard(ctx context.Context, opts BoardCreateOptions) (domain.Board, error) {
	if opts.Name == "" {
		return domain.Board{}, errors.New("name is required")
	}
	if opts.OrgID == "" {
		return domain.Board{}, errors.New("org is required")
	}
	if _, err := e.Repo.GetOrg(ctx, opts.OrgID); err != nil {
		return domain.Board{}, err
	}
	statuses := opts.StatusOptions
	sections := opts.SectionOptions
	if len(statuses) == 0 {
		cfg, err := e.orgConfig(ctx, opts.OrgID)
		if err != nil {
			return domain.Board{}, err
		}
		statuses = cfg.Boards.StatusOptions
		if len(sections) == 0 {
			sections = cfg.Boards.SectionOptions
		}
	}
	if err := validateStatusSeed(statuses); err != nil {
		return domain.Board{}, err
	}
	now := e.nowRFC3339()
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.OrgID+"|"+opts.Name+"|"+now)).String()
	}
	b := domain.Board{
		ID:          id,
		OrgID:       opts.OrgID,
		Name:        opts.Name,
		Description: opts.Description,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Board{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertBoardTx(ctx, tx, b); err != nil {
		return domain.Board{}, fmt.Errorf("insert board: %w", err)
	}
	if err := e.seedBoardOptions(ctx, tx, b.ID, statuses, sections); err != nil {
		return domain.Board{}, err
	}
	if err := e.Events.Append(ctx, tx, "board.created", b.OrgID, b.ID, "board", b.ID, opts.ActorID, events.EventPayload{"name": b.Name}); err != nil {
		return domain.Board{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

func (e Engine) orgConfig(ctx context.Context, orgID string) (*config.Config, error) {
	cfg, err := e.Repo.GetOrgConfig(ctx, orgID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if e.Config != nil {
		return e.Config, nil
	}
	return config.Default(orgID), nil
}

// validateStatusSeed mirrors config.Validate for explicitly supplied option
// sets: at least one terminal column, and the first column (the default for new
// tasks) must not be terminal.
func validateStatusSeed(statuses []config.OptionConfig) error {
	if len(statuses) == 0 {
		return errors.New("at least one status option is required")
	}
	if statuses[0].Terminal {
		return errors.New("first status option cannot be terminal")
	}
	hasTerminal := false
	for _, s := range statuses {
		if s.Label == "" {
			return errors.New("status option label required")
		}
		if s.Terminal {
			hasTerminal = true
		}
	}
	if !hasTerminal {
		return errors.New("a terminal status option is required")
	}
	return nil
}

func (e Engine) seedBoardOptions(ctx context.Context, tx *sql.Tx, boardID string, statuses, sections []config.OptionConfig) error {
	for i, s := range statuses {
		opt := domain.StatusOption{
			ID:         uuid.New().String(),
			BoardID:    boardID,
			Label:      s.Label,
			Color:      s.Color,
			Position:   i * order.Step,
			IsTerminal: s.Terminal,
		}
		if err := e.Repo.InsertStatusOptionTx(ctx, tx, opt); err != nil {
			return fmt.Errorf("seed status option %q: %w", s.Label, err)
		}
	}
	for i, s := range sections {
		opt := domain.SectionOption{
			ID:       uuid.New().String(),
			BoardID:  boardID,
			Label:    s.Label,
			Color:    s.Color,
			Position: i * order.Step,
		}
		if err := e.Repo.InsertSectionOptionTx(ctx, tx, opt); err != nil {
			return fmt.Errorf("seed section option %q: %w", s.Label, err)
		}
	}
	return nil
}

// BoardUpdateOptions encapsulates allowed board updates.
type BoardUpdateOptions struct {
	ID          string
	Name        string
	Status      string
	Description *string
	ActorID     string
}

func (e Engine) UpdateBoard(ctx context.Context, opts BoardUpdateOptions) (domain.Board, error) {
	b, err := e.Repo.GetBoard(ctx, opts.ID)
	if err != nil {
		return b, err
	}
	if opts.Status != "" && opts.Status != "active" && opts.Status != "archived" {
		return b, fmt.Errorf("unknown board status %q", opts.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return b, err
	}
	defer tx.Rollback()
	now := e.nowRFC3339()
	if err := e.Repo.UpdateBoard(ctx, tx, opts.ID, opts.Name, opts.Status, opts.Description, now); err != nil {
		return b, err
	}
	if err := e.Events.Append(ctx, tx, "board.updated", b.OrgID, b.ID, "board", b.ID, opts.ActorID, events.EventPayload{
		"from_status": b.Status,
		"to_status":   opts.Status,
	}); err != nil {
		return b, err
	}
	if err := tx.Commit(); err != nil {
		return b, err
	}
	return e.Repo.GetBoard(ctx, opts.ID)
}

func (e Engine) DeleteBoard(ctx context.Context, id, actorID string) error {
	b, err := e.Repo.GetBoard(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteBoard(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "board.deleted", b.OrgID, b.ID, "board", b.ID, actorID, events.EventPayload{"name": b.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// StatusOptionOptions are parameters for adding a board column.
type StatusOptionOptions struct {
	BoardID    string
	Label      string
	Color      string
	IsTerminal bool
	ActorID    string
}

func (e Engine) AddStatusOption(ctx context.Context, opts StatusOptionOptions) (domain.StatusOption, error) {
	if opts.Label == "" {
		return domain.StatusOption{}, errors.New("label is required")
	}
	b, err := e.Repo.GetBoard(ctx, opts.BoardID)
	if err != nil {
		return domain.StatusOption{}, err
	}
	existing, err := e.Repo.ListStatusOptions(ctx, opts.BoardID)
	if err != nil {
		return domain.StatusOption{}, err
	}
	pos := 0
	if len(existing) > 0 {
		pos = existing[len(existing)-1].Position + order.Step
	}
	opt := domain.StatusOption{
		ID:         uuid.New().String(),
		BoardID:    opts.BoardID,
		Label:      opts.Label,
		Color:      opts.Color,
		Position:   pos,
		IsTerminal: opts.IsTerminal,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return opt, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStatusOptionTx(ctx, tx, opt); err != nil {
		return opt, err
	}
	if err := e.Events.Append(ctx, tx, "status_option.added", b.OrgID, b.ID, "status_option", opt.ID, opts.ActorID, events.EventPayload{"label": opt.Label, "is_terminal": opt.IsTerminal}); err != nil {
		return opt, err
	}
	return opt, tx.Commit()
}

func (e Engine) UpdateStatusOption(ctx context.Context, id, label, color string, isTerminal *bool, actorID string) (domain.StatusOption, error) {
	opt, err := e.Repo.GetStatusOption(ctx, id)
	if err != nil {
		return opt, err
	}
	b, err := e.Repo.GetBoard(ctx, opt.BoardID)
	if err != nil {
		return opt, err
	}
	if isTerminal != nil && !*isTerminal && opt.IsTerminal {
		if err := e.ensureAnotherTerminal(ctx, opt); err != nil {
			return opt, err
		}
	}
	if isTerminal != nil && *isTerminal {
		all, err := e.Repo.ListStatusOptions(ctx, opt.BoardID)
		if err != nil {
			return opt, err
		}
		if len(all) > 0 && all[0].ID == opt.ID {
			return opt, errors.New("first status option cannot be terminal")
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return opt, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateStatusOption(ctx, tx, id, label, color, isTerminal); err != nil {
		return opt, err
	}
	if err := e.Events.Append(ctx, tx, "status_option.updated", b.OrgID, b.ID, "status_option", id, actorID, events.EventPayload{"label": label}); err != nil {
		return opt, err
	}
	if err := tx.Commit(); err != nil {
		return opt, err
	}
	return e.Repo.GetStatusOption(ctx, id)
}

// DeleteStatusOption removes an empty column. Tasks must be moved out first,
// and a board keeps at least one terminal column.
func (e Engine) DeleteStatusOption(ctx context.Context, id, actorID string) error {
	opt, err := e.Repo.GetStatusOption(ctx, id)
	if err != nil {
		return err
	}
	b, err := e.Repo.GetBoard(ctx, opt.BoardID)
	if err != nil {
		return err
	}
	if opt.IsTerminal {
		if err := e.ensureAnotherTerminal(ctx, opt); err != nil {
			return err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	n, err := e.Repo.CountTasksInStatusTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("status option %s holds %d tasks; move them first", id, n)
	}
	if err := e.Repo.DeleteStatusOption(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "status_option.deleted", b.OrgID, b.ID, "status_option", id, actorID, events.EventPayload{"label": opt.Label}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ensureAnotherTerminal(ctx context.Context, opt domain.StatusOption) error {
	all, err := e.Repo.ListStatusOptions(ctx, opt.BoardID)
	if err != nil {
		return err
	}
	for _, o := range all {
		if o.ID != opt.ID && o.IsTerminal {
			return nil
		}
	}
	return errors.New("board needs at least one terminal status option")
}

// ReorderStatusOptions renumbers a board's columns to the supplied order. The
// list must name every column of the board exactly once, and the first column
// must stay non-terminal.
func (e Engine) ReorderStatusOptions(ctx context.Context, boardID string, orderedIDs []string, actorID string) error {
	b, err := e.Repo.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	existing, err := e.Repo.ListStatusOptions(ctx, boardID)
	if err != nil {
		return err
	}
	byID := map[string]domain.StatusOption{}
	for _, o := range existing {
		byID[o.ID] = o
	}
	if len(orderedIDs) != len(existing) {
		return fmt.Errorf("expected %d option ids, got %d", len(existing), len(orderedIDs))
	}
	seen := map[string]bool{}
	for i, id := range orderedIDs {
		o, ok := byID[id]
		if !ok {
			return fmt.Errorf("status option %s not on board %s", id, boardID)
		}
		if seen[id] {
			return fmt.Errorf("status option %s listed twice", id)
		}
		seen[id] = true
		if i == 0 && o.IsTerminal {
			return errors.New("first status option cannot be terminal")
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, u := range order.Reindex(orderedIDs) {
		if _, err := tx.ExecContext(ctx, `UPDATE status_options SET position=? WHERE id=?`, u.Position, u.ID); err != nil {
			return err
		}
	}
	if err := e.Events.Append(ctx, tx, "status_options.reordered", b.OrgID, b.ID, "board", b.ID, actorID, events.EventPayload{"count": len(orderedIDs)}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddSectionOption(ctx context.Context, boardID, label, color, actorID string) (domain.SectionOption, error) {
	if label == "" {
		return domain.SectionOption{}, errors.New("label is required")
	}
	b, err := e.Repo.GetBoard(ctx, boardID)
	if err != nil {
		return domain.SectionOption{}, err
	}
	existing, err := e.Repo.ListSectionOptions(ctx, boardID)
	if err != nil {
		return domain.SectionOption{}, err
	}
	pos := 0
	if len(existing) > 0 {
		pos = existing[len(existing)-1].Position + order.Step
	}
	opt := domain.SectionOption{
		ID:       uuid.New().String(),
		BoardID:  boardID,
		Label:    label,
		Color:    color,
		Position: pos,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return opt, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSectionOptionTx(ctx, tx, opt); err != nil {
		return opt, err
	}
	if err := e.Events.Append(ctx, tx, "section_option.added", b.OrgID, b.ID, "section_option", opt.ID, actorID, events.EventPayload{"label": label}); err != nil {
		return opt, err
	}
	return opt, tx.Commit()
}

// DeleteSectionOption removes a section; tasks in it fall back to no section
// via the schema's ON DELETE SET NULL.
func (e Engine) DeleteSectionOption(ctx context.Context, id, actorID string) error {
	opt, err := e.Repo.GetSectionOption(ctx, id)
	if err != nil {
		return err
	}
	b, err := e.Repo.GetBoard(ctx, opt.BoardID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteSectionOption(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "section_option.deleted", b.OrgID, b.ID, "section_option", id, actorID, events.EventPayload{"label": opt.Label}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
