package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dayplan/internal/models"
)

const credentialColumns = `id, user_id, provider, access_token, refresh_token, expires_at, scopes, created_at, updated_at`

// UpsertCredential stores the (already encrypted) tokens for (user, provider).
func (db *DB) UpsertCredential(ctx context.Context, cred *models.Credential) error {
	now := time.Now().UTC()
	if cred.Scopes == "" {
		cred.Scopes = "[]"
	}

	query := db.Rebind(`INSERT INTO credentials (user_id, provider, access_token, refresh_token, expires_at, scopes,
        created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(user_id, provider) DO UPDATE SET
            access_token = excluded.access_token,
            refresh_token = excluded.refresh_token,
            expires_at = excluded.expires_at,
            scopes = excluded.scopes,
            updated_at = excluded.updated_at
        RETURNING id`)

	row := db.QueryRowxContext(ctx, query,
		cred.UserID, cred.Provider, cred.AccessToken, cred.RefreshToken, utc(cred.ExpiresAt), cred.Scopes, now, now)
	if err := row.Scan(&cred.ID); err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	return nil
}

func (db *DB) GetCredential(ctx context.Context, userID int64, provider string) (*models.Credential, error) {
	var cred models.Credential
	err := db.GetContext(ctx, &cred,
		db.Rebind(`SELECT `+credentialColumns+` FROM credentials WHERE user_id = ? AND provider = ?`), userID, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

func (db *DB) DeleteCredential(ctx context.Context, userID int64, provider string) error {
	result, err := db.ExecContext(ctx,
		db.Rebind(`DELETE FROM credentials WHERE user_id = ? AND provider = ?`), userID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return expectRows(result)
}

// ListCredentialUsers returns every user holding a credential for provider.
func (db *DB) ListCredentialUsers(ctx context.Context, provider string) ([]int64, error) {
	var users []int64
	err := db.SelectContext(ctx, &users,
		db.Rebind(`SELECT user_id FROM credentials WHERE provider = ? ORDER BY user_id`), provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list credential users: %w", err)
	}
	return users, nil
}
