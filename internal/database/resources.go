package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotkeeper/internal/models"

	"github.com/Masterminds/squirrel"
)

var resourceColumns = []string{"id", "display_name", "active", "sort_order", "created_at", "updated_at"}

func scanResource(row rowScanner) (*models.Resource, error) {
	var r models.Resource
	if err := row.Scan(&r.ID, &r.DisplayName, &r.Active, &r.SortOrder, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) listResources(ctx context.Context, onlyActive bool) ([]*models.Resource, error) {
	sb := db.builder.Select(resourceColumns...).
		From("resources").
		OrderBy("sort_order", "id")
	if onlyActive {
		sb = sb.Where(squirrel.Eq{"active": true})
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build resources query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", classify(err))
	}
	defer rows.Close()

	var resources []*models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// GetActiveResources returns resources eligible for assignment, in display order.
func (db *DB) GetActiveResources(ctx context.Context) ([]*models.Resource, error) {
	return db.listResources(ctx, true)
}

func (db *DB) GetResources(ctx context.Context) ([]*models.Resource, error) {
	return db.listResources(ctx, false)
}

func (db *DB) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	query, args, err := db.builder.Select(resourceColumns...).
		From("resources").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build resource query: %w", err)
	}

	r, err := scanResource(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", classify(err))
	}
	return r, nil
}

func (db *DB) CreateResource(ctx context.Context, r *models.Resource) error {
	now := time.Now().UTC()
	query, args, err := db.builder.Insert("resources").
		Columns(resourceColumns...).
		Values(r.ID, r.DisplayName, r.Active, r.SortOrder, now, now).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		err = classify(err)
		if errors.Is(err, ErrDuplicateKey) {
			return fmt.Errorf("%w: %s", ErrResourceExists, r.ID)
		}
		return fmt.Errorf("failed to create resource: %w", err)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (db *DB) UpdateResource(ctx context.Context, r *models.Resource) error {
	now := time.Now().UTC()
	query, args, err := db.builder.Update("resources").
		Set("display_name", r.DisplayName).
		Set("active", r.Active).
		Set("sort_order", r.SortOrder).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": r.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, r.ID)
	}
	r.UpdatedAt = now
	return nil
}

// DeactivateResource hides the resource from assignment. Existing bookings keep it.
func (db *DB) DeactivateResource(ctx context.Context, id string) error {
	query, args, err := db.builder.Update("resources").
		Set("active", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build deactivate query: %w", err)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to deactivate resource: %w", classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	return nil
}

// SyncResources upserts the given resources, e.g. from the seed file.
// Resources missing from the list are left untouched.
func (db *DB) SyncResources(ctx context.Context, resources []models.Resource) error {
	tx, err := db.beginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, r := range resources {
		query, args, err := db.builder.Insert("resources").
			Columns(resourceColumns...).
			Values(r.ID, r.DisplayName, r.Active, r.SortOrder, now, now).
			Suffix("ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, active = excluded.active, sort_order = excluded.sort_order, updated_at = excluded.updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build upsert query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to sync resource %s: %w", r.ID, classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resource sync: %w", classify(err))
	}
	db.logger.Info().Int("count", len(resources)).Msg("resources synced")
	return nil
}
