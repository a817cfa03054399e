package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"

	"stratline/internal/apperr"
	"stratline/internal/domain"
	"stratline/internal/events"
	"stratline/internal/repo"
)

func validRole(role string) bool {
	switch role {
	case "administrator", "approver", "contributor":
		return true
	}
	return false
}

func (e Engine) CreateUser(ctx context.Context, id, name, role, actorID string) (domain.User, error) {
	if name == "" {
		return domain.User{}, apperr.ValidationError{Field: "name", Reason: "is required"}
	}
	if role == "" {
		role = "contributor"
	}
	if !validRole(role) {
		return domain.User{}, apperr.ValidationError{Field: "role", Reason: "unknown role " + role}
	}
	if id == "" {
		id = uuid.New().String()
	}
	u := domain.User{ID: id, Name: name, Role: role, CreatedAt: e.nowString()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return u, err
	}
	if err := e.Events.Append(ctx, tx, "user.created", "", "user", u.ID, actorID, events.EventPayload{"name": u.Name, "role": u.Role}); err != nil {
		return u, err
	}
	return u, tx.Commit()
}

func (e Engine) SetUserRole(ctx context.Context, id, role, actorID string) (domain.User, error) {
	if !validRole(role) {
		return domain.User{}, apperr.ValidationError{Field: "role", Reason: "unknown role " + role}
	}
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return u, notFound("user", id, err)
	}
	u.Role = role
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return u, notFound("user", id, err)
	}
	if err := e.Events.Append(ctx, tx, "user.role.changed", "", "user", u.ID, actorID, events.EventPayload{"role": u.Role}); err != nil {
		return u, err
	}
	return u, tx.Commit()
}

// CreateAPIKey mints a raw key, stores only its hash and returns the raw key
// once. It cannot be recovered later.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", notFound("user", userID, err)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := "slk_" + hex.EncodeToString(buf)
	k := domain.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return k, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, k); err != nil {
		return k, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "", "apikey", k.ID, actorID, events.EventPayload{"user_id": userID}); err != nil {
		return k, "", err
	}
	if err := tx.Commit(); err != nil {
		return k, "", err
	}
	return k, raw, nil
}

func (e Engine) RevokeAPIKey(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
		return notFound("apikey", id, err)
	}
	if err := e.Events.Append(ctx, tx, "apikey.revoked", "", "apikey", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}
