package app

import (
	"context"
	"errors"
	"fmt"

	"boardline/internal/config"
	"boardline/internal/engine"
	"boardline/internal/repo"
)

// DefaultOrgID is used when a workspace has no organization yet and none was
// named on the command line.
const DefaultOrgID = "default-org"

// ResolveOrgAndConfig picks the active organization and ensures it exists in
// the DB with a config, seeding defaults if missing. It prefers the override,
// then the single-org fallback; a brand-new workspace gets DefaultOrgID
// created on the fly with the actor as owner.
func ResolveOrgAndConfig(ctx context.Context, orgOverride, actorID string, e engine.Engine) (string, *config.Config, error) {
	orgID := orgOverride
	if orgID == "" {
		o, err := e.Repo.SingleOrg(ctx)
		switch {
		case err == nil:
			orgID = o.ID
		case errors.Is(err, repo.ErrNotFound):
			orgID = DefaultOrgID
		default:
			return "", nil, err
		}
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if _, err := e.Repo.GetOrg(ctx, orgID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		name := orgID
		if orgID == DefaultOrgID {
			name = "Default Org"
		}
		if _, err := e.CreateOrg(ctx, orgID, name, actorID); err != nil {
			return "", nil, fmt.Errorf("create organization: %w", err)
		}
	}
	cfg, err := e.Repo.GetOrgConfig(ctx, orgID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(orgID)
		if err := e.Repo.UpsertOrgConfig(ctx, orgID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed organization config: %w", err)
		}
	}
	cfg.Org.ID = orgID
	return orgID, cfg, nil
}
