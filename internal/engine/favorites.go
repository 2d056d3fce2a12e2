package engine

import (
	"context"
	"errors"
	"fmt"

	"boardline/internal/domain"
	"boardline/internal/events"
	"boardline/internal/repo"
)

// AddFavorite stars a board or task for an actor. Starring twice is a no-op.
func (e Engine) AddFavorite(ctx context.Context, actorID, entityKind, entityID string) (domain.Favorite, error) {
	orgID, boardID, err := e.resolveFavoriteEntity(ctx, entityKind, entityID)
	if err != nil {
		return domain.Favorite{}, err
	}
	f := domain.Favorite{
		ActorID:    actorID,
		EntityKind: entityKind,
		EntityID:   entityID,
		CreatedAt:  e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return f, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertFavorite(ctx, tx, f); err != nil {
		return f, err
	}
	if err := e.Events.Append(ctx, tx, "favorite.added", orgID, boardID, entityKind, entityID, actorID, events.EventPayload{}); err != nil {
		return f, err
	}
	return f, tx.Commit()
}

func (e Engine) RemoveFavorite(ctx context.Context, actorID, entityKind, entityID string) error {
	orgID, boardID, err := e.resolveFavoriteEntity(ctx, entityKind, entityID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteFavorite(ctx, tx, actorID, entityKind, entityID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "favorite.removed", orgID, boardID, entityKind, entityID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) resolveFavoriteEntity(ctx context.Context, entityKind, entityID string) (orgID, boardID string, err error) {
	switch entityKind {
	case "board":
		b, err := e.Repo.GetBoard(ctx, entityID)
		if err != nil {
			return "", "", err
		}
		return b.OrgID, b.ID, nil
	case "task":
		t, err := e.Repo.GetTask(ctx, entityID)
		if err != nil {
			return "", "", err
		}
		b, err := e.Repo.GetBoard(ctx, t.BoardID)
		if err != nil {
			return "", "", err
		}
		return b.OrgID, b.ID, nil
	default:
		return "", "", fmt.Errorf("unknown favorite kind %q", entityKind)
	}
}

// MarkNotificationRead stamps a notification's read time for its owner.
func (e Engine) MarkNotificationRead(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkNotificationRead(ctx, tx, id, actorID, e.nowRFC3339()); err != nil {
		return err
	}
	return tx.Commit()
}
