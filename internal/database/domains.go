package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dayplan/internal/models"
)

func (db *DB) CreateDomain(ctx context.Context, domain *models.Domain) error {
	if domain.CreatedAt.IsZero() {
		domain.CreatedAt = time.Now().UTC()
	}
	if domain.Category == "" {
		domain.Category = models.CategoryWantTo
	}

	id, err := insertReturningID(ctx, db.DB,
		db.Rebind(`INSERT INTO domains (user_id, name, category, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		domain.UserID, domain.Name, domain.Category, utc(domain.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create domain: %w", err)
	}
	domain.ID = id
	return nil
}

func (db *DB) GetDomain(ctx context.Context, id int64) (*models.Domain, error) {
	var domain models.Domain
	err := db.GetContext(ctx, &domain,
		db.Rebind(`SELECT id, user_id, name, category, created_at FROM domains WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain %d: %w", id, err)
	}
	return &domain, nil
}

func (db *DB) ListDomains(ctx context.Context, userID int64) ([]models.Domain, error) {
	var domains []models.Domain
	err := db.SelectContext(ctx, &domains,
		db.Rebind(`SELECT id, user_id, name, category, created_at FROM domains WHERE user_id = ? ORDER BY name`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	return domains, nil
}
