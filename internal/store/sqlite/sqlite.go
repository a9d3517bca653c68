package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/lounge-server/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.IdentityStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also serializes our transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates all tables if they do not exist.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== identities ====

// CreateIdentity inserts an identity inside one transaction. The owner_claim row decides
// which identity receives the owner badges.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, in store.NewIdentity) (*store.Identity, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM bans WHERE name = ?`, in.Name).Scan(&one)
		switch {
		case err == nil:
			return store.ErrBanned
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("query bans: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO identities (name, email, password_hash, created_at, last_login)
			VALUES (?, ?, ?, ?, ?)
		`, in.Name, in.Email, in.PasswordHash, in.CreatedAt, in.CreatedAt)
		if err != nil {
			return mapConstraintError(err)
		}

		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO owner_claim (id, name) VALUES (1, ?)`, in.Name)
		if err != nil {
			return fmt.Errorf("claim owner: %w", err)
		}
		claimed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim owner rows: %w", err)
		}

		badges := store.DefaultBadges
		if claimed == 1 {
			badges = store.OwnerBadges
		}
		for _, b := range badges {
			if _, err := tx.ExecContext(ctx, `INSERT INTO identity_badges (name, badge) VALUES (?, ?)`, in.Name, b); err != nil {
				return fmt.Errorf("insert badge: %w", err)
			}
		}

		if in.Address != "" {
			if _, err := tx.ExecContext(ctx, `INSERT INTO identity_addresses (name, address) VALUES (?, ?)`, in.Name, in.Address); err != nil {
				return fmt.Errorf("insert address: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetIdentity(ctx, in.Name)
}

// GetIdentity retrieves an identity by name.
func (s *SQLiteStore) GetIdentity(ctx context.Context, name string) (*store.Identity, error) {
	query := `
		SELECT name, email, password_hash, banned, muted, created_at, last_login, message_count
		FROM identities
		WHERE name = ?
	`
	var ident store.Identity
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&ident.Name,
		&ident.Email,
		&ident.PasswordHash,
		&ident.Banned,
		&ident.Muted,
		&ident.CreatedAt,
		&ident.LastLogin,
		&ident.MessageCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}

	if ident.Badges, err = s.listStrings(ctx, s.db, `SELECT badge FROM identity_badges WHERE name = ? ORDER BY id`, name); err != nil {
		return nil, err
	}
	if ident.Addresses, err = s.listStrings(ctx, s.db, `SELECT address FROM identity_addresses WHERE name = ? ORDER BY id`, name); err != nil {
		return nil, err
	}

	return &ident, nil
}

// RecordLogin updates last login time and records the address.
func (s *SQLiteStore) RecordLogin(ctx context.Context, name, address string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := execAffecting(ctx, tx, name, `UPDATE identities SET last_login = ? WHERE name = ?`, at, name); err != nil {
			return err
		}
		if address == "" {
			return nil
		}
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO identity_addresses (name, address) VALUES (?, ?)`, name, address)
		if err != nil {
			return fmt.Errorf("insert address: %w", err)
		}
		return nil
	})
}

// IncrementMessageCount bumps the message counter.
func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, name string) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := execAffecting(ctx, tx, name, `UPDATE identities SET message_count = message_count + 1 WHERE name = ?`, name); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT message_count FROM identities WHERE name = ?`, name).Scan(&count)
	})
	return count, err
}

// SetBanned toggles the banned flag and maintains the bans table.
func (s *SQLiteStore) SetBanned(ctx context.Context, name string, banned bool, by string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := execAffecting(ctx, tx, name, `UPDATE identities SET banned = ? WHERE name = ?`, banned, name); err != nil {
			return err
		}
		var err error
		if banned {
			_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO bans (name, banned_by, banned_at) VALUES (?, ?, ?)`, name, by, at)
		} else {
			_, err = tx.ExecContext(ctx, `DELETE FROM bans WHERE name = ?`, name)
		}
		if err != nil {
			return fmt.Errorf("update bans: %w", err)
		}
		return nil
	})
}

// SetMuted toggles the muted flag and maintains the mutes table.
func (s *SQLiteStore) SetMuted(ctx context.Context, name string, muted bool, by string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := execAffecting(ctx, tx, name, `UPDATE identities SET muted = ? WHERE name = ?`, muted, name); err != nil {
			return err
		}
		var err error
		if muted {
			_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO mutes (name, muted_by, muted_at) VALUES (?, ?, ?)`, name, by, at)
		} else {
			_, err = tx.ExecContext(ctx, `DELETE FROM mutes WHERE name = ?`, name)
		}
		if err != nil {
			return fmt.Errorf("update mutes: %w", err)
		}
		return nil
	})
}

// AddBadge adds a badge to the identity's set.
func (s *SQLiteStore) AddBadge(ctx context.Context, name, badge string) ([]string, error) {
	return s.mutateBadges(ctx, name, badge, `INSERT OR IGNORE INTO identity_badges (name, badge) VALUES (?, ?)`)
}

// RemoveBadge removes a badge from the identity's set.
func (s *SQLiteStore) RemoveBadge(ctx context.Context, name, badge string) ([]string, error) {
	return s.mutateBadges(ctx, name, badge, `DELETE FROM identity_badges WHERE name = ? AND badge = ?`)
}

func (s *SQLiteStore) mutateBadges(ctx context.Context, name, badge, stmt string) ([]string, error) {
	if err := store.CheckMutableBadge(badge); err != nil {
		return nil, err
	}
	badge = strings.TrimSpace(badge)

	var badges []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireIdentity(ctx, tx, name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, name, badge); err != nil {
			return fmt.Errorf("update badges: %w", err)
		}
		var err error
		badges, err = s.listStrings(ctx, tx, `SELECT badge FROM identity_badges WHERE name = ? ORDER BY id`, name)
		return err
	})
	return badges, err
}

// DeleteIdentity removes the identity with its badges, addresses, carts and reviews, and bans the name.
func (s *SQLiteStore) DeleteIdentity(ctx context.Context, name, by string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := execAffecting(ctx, tx, name, `DELETE FROM identities WHERE name = ?`, name); err != nil {
			return err
		}
		cleanup := []string{
			`DELETE FROM identity_badges WHERE name = ?`,
			`DELETE FROM identity_addresses WHERE name = ?`,
			`DELETE FROM mutes WHERE name = ?`,
			`DELETE FROM carts WHERE name = ?`,
			`DELETE FROM reviews WHERE author = ?`,
		}
		for _, q := range cleanup {
			if _, err := tx.ExecContext(ctx, q, name); err != nil {
				return fmt.Errorf("purge identity data: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO bans (name, banned_by, banned_at) VALUES (?, ?, ?)`, name, by, at); err != nil {
			return fmt.Errorf("insert ban: %w", err)
		}
		return nil
	})
}

// ListBans returns the ban set ordered by time.
func (s *SQLiteStore) ListBans(ctx context.Context) ([]store.Sanction, error) {
	return s.listSanctions(ctx, `SELECT name, banned_by, banned_at FROM bans ORDER BY banned_at, name`)
}

// ListMutes returns the mute set ordered by time.
func (s *SQLiteStore) ListMutes(ctx context.Context) ([]store.Sanction, error) {
	return s.listSanctions(ctx, `SELECT name, muted_by, muted_at FROM mutes ORDER BY muted_at, name`)
}

// ==== helpers ====

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) listStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query list: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate list: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) listSanctions(ctx context.Context, query string) ([]store.Sanction, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sanctions: %w", err)
	}
	defer rows.Close()

	out := make([]store.Sanction, 0)
	for rows.Next() {
		var sc store.Sanction
		if err := rows.Scan(&sc.Name, &sc.By, &sc.At); err != nil {
			return nil, fmt.Errorf("scan sanction: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sanctions: %w", err)
	}
	return out, nil
}

func requireIdentity(ctx context.Context, tx *sql.Tx, name string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM identities WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query identity: %w", err)
	}
	return nil
}

func execAffecting(ctx context.Context, tx *sql.Tx, name, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update %q: %w", name, store.ErrNotFound)
	}
	return nil
}

func mapConstraintError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		if strings.Contains(sqliteErr.Error(), "identities.email") {
			return store.ErrEmailTaken
		}
		return store.ErrNameTaken
	}
	return fmt.Errorf("insert identity: %w", err)
}
