// Package store owns the persistent user roster in PostgreSQL and applies
// previewed imports as single transactions.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

// SyncTimeout is the maximum duration for a roster sync transaction.
var SyncTimeout = 2 * time.Minute

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DB is the pool-level surface the Store needs: plain queries plus
// transactions and liveness. Satisfied by *pgxpool.Pool.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store provides roster persistence and the preview/sync operations.
type Store struct {
	db DB
}

// New creates a Store over an established connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// BlockedError is returned when a sync is refused because the recomputed
// preview carries validation errors or unknown roles. The preview is
// attached so callers can surface every problem at once.
type BlockedError struct {
	Preview *roster.ImportPreview
}

func (e *BlockedError) Error() string {
	n := len(e.Preview.ValidationErrors) + len(e.Preview.InvalidRoles)
	return fmt.Sprintf("preview blocked: %d validation problem(s)", n)
}

// Preview computes the import diff against the authoritative roster.
// Read-only and idempotent: calling it any number of times with the same
// upload and an unchanged roster yields an identical result.
func (s *Store) Preview(ctx context.Context, records []roster.UserRecord) (*roster.ImportPreview, error) {
	current, err := s.users(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	known, err := s.roleSet(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}

	return roster.Plan(records, current, known), nil
}

// Sync applies a roster replacement in one transaction. The diff is
// recomputed against the roster as read inside the transaction, never
// trusted from an earlier preview, so commit always means "replace with
// latest snapshot". Any failure rolls the entire operation back.
func (s *Store) Sync(ctx context.Context, records []roster.UserRecord, actor string) (*roster.ImportSummary, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, SyncTimeout)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.users(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	known, err := s.roleSet(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}

	preview := roster.Plan(records, current, known)
	if preview.Blocked() {
		return nil, &BlockedError{Preview: preview}
	}

	byEmail := make(map[string]roster.User, len(current))
	for _, u := range current {
		byEmail[roster.NormalizeEmail(u.Email)] = u
	}

	for _, c := range preview.ToAdd {
		if err := s.insertUser(ctx, tx, c); err != nil {
			return nil, fmt.Errorf("add %s: %w", c.Email, err)
		}
	}
	for _, c := range preview.ToUpdate {
		u, ok := byEmail[c.Email]
		if !ok {
			return nil, fmt.Errorf("update %s: user vanished mid-plan", c.Email)
		}
		if err := s.updateUser(ctx, tx, u.ID, c); err != nil {
			return nil, fmt.Errorf("update %s: %w", c.Email, err)
		}
	}
	for _, c := range preview.ToDeactivate {
		u, ok := byEmail[c.Email]
		if !ok {
			return nil, fmt.Errorf("deactivate %s: user vanished mid-plan", c.Email)
		}
		if err := s.deactivateUser(ctx, tx, u.ID); err != nil {
			return nil, fmt.Errorf("deactivate %s: %w", c.Email, err)
		}
	}

	summary := &roster.ImportSummary{
		UsersAdded:       len(preview.ToAdd),
		UsersUpdated:     len(preview.ToUpdate),
		UsersDeactivated: len(preview.ToDeactivate),
		Errors:           []string{},
		Warnings:         []string{},
	}
	for _, admin := range roster.ExemptAdministrators(records, current) {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("administrator %s is absent from the upload but was not deactivated", admin.Email))
	}

	event := roster.ImportEvent{
		ID:               uuid.New(),
		Actor:            actor,
		UsersAdded:       summary.UsersAdded,
		UsersUpdated:     summary.UsersUpdated,
		UsersDeactivated: summary.UsersDeactivated,
		DurationMs:       time.Since(start).Milliseconds(),
	}
	if err := s.insertImportEvent(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("record import event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return summary, nil
}

// Users returns the full roster, active and inactive, ordered by email.
func (s *Store) Users(ctx context.Context) ([]roster.User, error) {
	return s.users(ctx, s.db)
}

// RoleNames returns the configured role names, sorted.
func (s *Store) RoleNames(ctx context.Context) ([]string, error) {
	set, err := s.roleSet(ctx, s.db)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ImportHistory returns committed import events, newest first.
func (s *Store) ImportHistory(ctx context.Context, limit int) ([]roster.ImportEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, actor, users_added, users_updated, users_deactivated, duration_ms, created_at
		FROM import_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import events: %w", err)
	}
	defer rows.Close()

	var events []roster.ImportEvent
	for rows.Next() {
		var e roster.ImportEvent
		if err := rows.Scan(&e.ID, &e.Actor, &e.UsersAdded, &e.UsersUpdated,
			&e.UsersDeactivated, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan import event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) users(ctx context.Context, db DBTX) ([]roster.User, error) {
	rows, err := db.Query(ctx, `
		SELECT u.id, u.email, u.firstname, u.lastname, u.is_active, u.created_at,
		       COALESCE(array_agg(ur.role_name ORDER BY ur.role_name)
		                FILTER (WHERE ur.role_name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		GROUP BY u.id
		ORDER BY lower(u.email)
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []roster.User
	for rows.Next() {
		var u roster.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Firstname, &u.Lastname,
			&u.IsActive, &u.CreatedAt, &u.Roles); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func (s *Store) roleSet(ctx context.Context, db DBTX) (map[string]bool, error) {
	rows, err := db.Query(ctx, `SELECT name FROM roles`)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		set[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return set, nil
}

func (s *Store) insertUser(ctx context.Context, db DBTX, c roster.UserChange) error {
	id := uuid.New()
	_, err := db.Exec(ctx, `
		INSERT INTO users (id, email, firstname, lastname, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, id, c.Email, c.Firstname, c.Lastname)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return s.replaceRoles(ctx, db, id, c.Roles)
}

func (s *Store) updateUser(ctx context.Context, db DBTX, id uuid.UUID, c roster.UserChange) error {
	_, err := db.Exec(ctx, `
		UPDATE users
		SET firstname = $2, lastname = $3, is_active = TRUE, updated_at = now()
		WHERE id = $1
	`, id, c.Firstname, c.Lastname)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return s.replaceRoles(ctx, db, id, c.Roles)
}

func (s *Store) deactivateUser(ctx context.Context, db DBTX, id uuid.UUID) error {
	_, err := db.Exec(ctx, `
		UPDATE users SET is_active = FALSE, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

func (s *Store) replaceRoles(ctx context.Context, db DBTX, id uuid.UUID, roles []string) error {
	if _, err := db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}
	for _, role := range roles {
		if _, err := db.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_name) VALUES ($1, $2)
		`, id, role); err != nil {
			return fmt.Errorf("assign role %q: %w", role, err)
		}
	}
	return nil
}

func (s *Store) insertImportEvent(ctx context.Context, db DBTX, e roster.ImportEvent) error {
	_, err := db.Exec(ctx, `
		INSERT INTO import_events (id, actor, users_added, users_updated, users_deactivated, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.Actor, e.UsersAdded, e.UsersUpdated, e.UsersDeactivated, e.DurationMs)
	if err != nil {
		return fmt.Errorf("insert import event: %w", err)
	}
	return nil
}
