package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kehsibha/walter/internal/models"
)

// GetPreferences returns the owner's weighted topic preferences.
func (db *DB) GetPreferences(ctx context.Context, owner uuid.UUID) ([]models.Preference, error) {
	query := `
		SELECT topic, category, geographic_scope, priority
		FROM user_preferences
		WHERE owner_id = $1
		ORDER BY priority DESC
	`

	rows, err := db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	var prefs []models.Preference
	for rows.Next() {
		var p models.Preference
		if err := rows.Scan(&p.Topic, &p.Category, &p.GeographicScope, &p.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	return prefs, nil
}

// ReplacePreferences swaps the owner's preference set in one transaction,
// the write path for onboarding and settings updates.
func (db *DB) ReplacePreferences(ctx context.Context, owner uuid.UUID, prefs []models.Preference) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_preferences WHERE owner_id = $1`, owner); err != nil {
		return fmt.Errorf("failed to clear preferences: %w", err)
	}

	query := `
		INSERT INTO user_preferences (owner_id, topic, category, geographic_scope, priority)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, p := range prefs {
		if _, err := tx.ExecContext(ctx, query, owner, p.Topic, p.Category, p.GeographicScope, p.Priority); err != nil {
			return fmt.Errorf("failed to insert preference %q: %w", p.Topic, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit preferences: %w", err)
	}
	return nil
}
