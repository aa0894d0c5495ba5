package routing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for assignment persistence.
type Repository interface {
	// Save inserts or updates an assignment. Timestamps are managed here.
	Save(ctx context.Context, a *Assignment) error

	// Get returns the assignment for one device/output pair.
	Get(ctx context.Context, deviceAddress, outputID string) (*Assignment, error)

	// ListForDevice returns all assignments for a device.
	ListForDevice(ctx context.Context, deviceAddress string) ([]Assignment, error)

	// ListAll returns every stored assignment.
	ListAll(ctx context.Context) ([]Assignment, error)

	// SetVolume updates the preferred volume for an existing assignment.
	SetVolume(ctx context.Context, deviceAddress, outputID string, volume float64) error

	// Delete removes one assignment. Deleting a missing assignment
	// returns ErrNotFound.
	Delete(ctx context.Context, deviceAddress, outputID string) error

	// DeleteForDevice removes all assignments for a device and returns
	// how many were removed.
	DeleteForDevice(ctx context.Context, deviceAddress string) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed assignment repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts or updates an assignment.
func (r *SQLiteRepository) Save(ctx context.Context, a *Assignment) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	const query = `INSERT INTO output_assignments (device_address, output_id, volume, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (device_address, output_id)
		DO UPDATE SET volume = excluded.volume, updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		a.DeviceAddress, a.OutputID, a.Volume,
		a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving assignment %s -> %s: %w", a.DeviceAddress, a.OutputID, err)
	}
	return nil
}

// Get returns the assignment for one device/output pair.
func (r *SQLiteRepository) Get(ctx context.Context, deviceAddress, outputID string) (*Assignment, error) {
	const query = `SELECT device_address, output_id, volume, created_at, updated_at
		FROM output_assignments WHERE device_address = ? AND output_id = ?`
	row := r.db.QueryRowContext(ctx, query, deviceAddress, outputID)

	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying assignment %s -> %s: %w", deviceAddress, outputID, err)
	}
	return a, nil
}

// ListForDevice returns all assignments for a device.
func (r *SQLiteRepository) ListForDevice(ctx context.Context, deviceAddress string) ([]Assignment, error) {
	const query = `SELECT device_address, output_id, volume, created_at, updated_at
		FROM output_assignments WHERE device_address = ? ORDER BY output_id`
	return r.queryAssignments(ctx, query, deviceAddress)
}

// ListAll returns every stored assignment.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]Assignment, error) {
	const query = `SELECT device_address, output_id, volume, created_at, updated_at
		FROM output_assignments ORDER BY device_address, output_id`
	return r.queryAssignments(ctx, query)
}

// SetVolume updates the preferred volume for an existing assignment.
func (r *SQLiteRepository) SetVolume(ctx context.Context, deviceAddress, outputID string, volume float64) error {
	const query = `UPDATE output_assignments SET volume = ?, updated_at = ?
		WHERE device_address = ? AND output_id = ?`
	result, err := r.db.ExecContext(ctx, query,
		volume, time.Now().UTC().Format(time.RFC3339), deviceAddress, outputID)
	if err != nil {
		return fmt.Errorf("updating volume for %s -> %s: %w", deviceAddress, outputID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking volume update for %s -> %s: %w", deviceAddress, outputID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one assignment.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceAddress, outputID string) error {
	const query = `DELETE FROM output_assignments WHERE device_address = ? AND output_id = ?`
	result, err := r.db.ExecContext(ctx, query, deviceAddress, outputID)
	if err != nil {
		return fmt.Errorf("deleting assignment %s -> %s: %w", deviceAddress, outputID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking assignment delete for %s -> %s: %w", deviceAddress, outputID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForDevice removes all assignments for a device.
func (r *SQLiteRepository) DeleteForDevice(ctx context.Context, deviceAddress string) (int64, error) {
	const query = `DELETE FROM output_assignments WHERE device_address = ?`
	result, err := r.db.ExecContext(ctx, query, deviceAddress)
	if err != nil {
		return 0, fmt.Errorf("deleting assignments for %s: %w", deviceAddress, err)
	}
	return result.RowsAffected()
}

// queryAssignments executes a query and returns a slice of Assignment.
func (r *SQLiteRepository) queryAssignments(ctx context.Context, query string, args ...any) ([]Assignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignmentRows(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return assignments, nil
}

// scanAssignment scans a single-row query result.
func scanAssignment(row *sql.Row) (*Assignment, error) {
	var a Assignment
	var createdAt, updatedAt string
	if err := row.Scan(&a.DeviceAddress, &a.OutputID, &a.Volume, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	parseTimestamps(&a, createdAt, updatedAt)
	return &a, nil
}

// scanAssignmentRows scans the current row of a multi-row result.
func scanAssignmentRows(rows *sql.Rows) (*Assignment, error) {
	var a Assignment
	var createdAt, updatedAt string
	if err := rows.Scan(&a.DeviceAddress, &a.OutputID, &a.Volume, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning assignment: %w", err)
	}
	parseTimestamps(&a, createdAt, updatedAt)
	return &a, nil
}

// parseTimestamps converts stored RFC3339 strings. Unparseable values
// are left as zero times rather than failing the read.
func parseTimestamps(a *Assignment, createdAt, updatedAt string) {
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		a.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		a.UpdatedAt = t
	}
}
