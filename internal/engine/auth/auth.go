package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Permissions checked by the engine and the HTTP handlers.
const (
	PermRead   = "read"
	PermWrite  = "write"
	PermManage = "manage"

	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// NotMemberError indicates the actor does not belong to the organization.
type NotMemberError struct {
	OrgID string
}

func (e NotMemberError) Error() string {
	return fmt.Sprintf("not a member of organization %s", e.OrgID)
}

var rolePermissions = map[string][]string{
	RoleOwner:  {PermRead, PermWrite, PermManage},
	RoleEditor: {PermRead, PermWrite},
	RoleViewer: {PermRead},
}

// RoleGrants reports whether a role carries a permission.
func RoleGrants(role, perm string) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Service provides membership checks backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string) error {
	if actorID == "" {
		return errors.New("actor_id required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

func (s Service) ActorRole(ctx context.Context, orgID, actorID string) (string, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT role FROM org_members WHERE org_id=? AND actor_id=? LIMIT 1`, orgID, actorID)
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", NotMemberError{OrgID: orgID}
	}
	return role, err
}

// Require returns ForbiddenError (or NotMemberError) unless the actor's role in
// the organization grants the permission.
func (s Service) Require(ctx context.Context, orgID, actorID, perm string) error {
	role, err := s.ActorRole(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	if !RoleGrants(role, perm) {
		return ForbiddenError{Permission: perm}
	}
	return nil
}

func (s Service) ActorPermissions(ctx context.Context, orgID, actorID string) ([]string, error) {
	role, err := s.ActorRole(ctx, orgID, actorID)
	if err != nil {
		return nil, err
	}
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out, nil
}
