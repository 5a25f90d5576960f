// Package profiles keeps the directory of registered tenant profiles in
// SQLite.
package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

// DefaultFileName is used when the directory is opened on a data dir.
const DefaultFileName = "profiles.db"

// ErrNotFound is returned when no profile is registered for a tenant.
var ErrNotFound = errors.New("profile not found")

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	organization TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	contact      TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	domain       TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	PRIMARY KEY (organization, user_id)
)`

// Entry is a registered profile with the tenant it belongs to.
type Entry struct {
	Organization string         `json:"organization"`
	UserID       string         `json:"user_id"`
	Profile      tenant.Profile `json:"profile"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Directory is a SQLite-backed profile directory.
type Directory struct {
	db   *sql.DB
	path string
}

// Open opens or creates the directory database at path. A path naming an
// existing directory gets DefaultFileName appended.
func Open(path string) (*Directory, error) {
	if path == "" {
		return nil, errors.New("profile database path is required")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating profile directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating profiles table: %w", err)
	}
	return &Directory{db: db, path: path}, nil
}

// Close closes the database connection.
func (d *Directory) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Directory) Path() string {
	return d.path
}

// Upsert registers or updates the profile of key's organization and user.
// Empty attributes keep their stored value.
func (d *Directory) Upsert(ctx context.Context, key tenant.Key, p tenant.Profile) (Entry, error) {
	if err := key.Validate(); err != nil {
		return Entry{}, err
	}
	n := key.Normalized()

	existing, err := d.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		existing = Entry{Organization: n.Organization, UserID: n.UserID}
	case err != nil:
		return Entry{}, err
	}

	now := time.Now().UTC()
	merged := p.Merge(existing.Profile)
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO profiles (organization, user_id, name, contact, email, domain, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization, user_id) DO UPDATE SET
			name = excluded.name,
			contact = excluded.contact,
			email = excluded.email,
			domain = excluded.domain,
			updated_at = excluded.updated_at
	`, n.Organization, n.UserID, merged.Name, merged.Contact, merged.Email, merged.Domain, now, now)
	if err != nil {
		return Entry{}, fmt.Errorf("saving profile: %w", err)
	}

	existing.Profile = merged
	existing.UpdatedAt = now
	if existing.CreatedAt.IsZero() {
		existing.CreatedAt = now
	}
	return existing, nil
}

// Get returns the profile registered for key's organization and user.
func (d *Directory) Get(ctx context.Context, key tenant.Key) (Entry, error) {
	if err := key.Validate(); err != nil {
		return Entry{}, err
	}
	n := key.Normalized()

	row := d.db.QueryRowContext(ctx, `
		SELECT organization, user_id, name, contact, email, domain, created_at, updated_at
		FROM profiles WHERE organization = ? AND user_id = ?
	`, n.Organization, n.UserID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s/%s", ErrNotFound, n.Organization, n.UserID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("loading profile: %w", err)
	}
	return e, nil
}

// List returns the profiles of an organization ordered by user id. An
// empty organization lists every profile.
func (d *Directory) List(ctx context.Context, org string) ([]Entry, error) {
	query := `SELECT organization, user_id, name, contact, email, domain, created_at, updated_at FROM profiles`
	var args []any
	if org != "" {
		query += ` WHERE organization = ?`
		args = append(args, tenant.Key{Organization: org}.Normalized().Organization)
	}
	query += ` ORDER BY organization, user_id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	err := s.Scan(&e.Organization, &e.UserID,
		&e.Profile.Name, &e.Profile.Contact, &e.Profile.Email, &e.Profile.Domain,
		&e.CreatedAt, &e.UpdatedAt)
	return e, err
}
