package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"save-go/internal/database/migrations"
	"save-go/internal/save"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase persists record store contents in a single SQLite file.
// It holds exactly one connection so PRAGMA data_version reflects only
// commits made by other processes.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

var _ save.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens the database at path and migrates it to the
// latest schema. path can be ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		// Readers in other processes must not block on our writes.
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}

// LoadRecords returns every stored record ordered by collection and seq.
func (s *SQLiteDatabase) LoadRecords(ctx context.Context) ([]save.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, key, type_tag, type_version, seq, data FROM records ORDER BY collection, seq`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []save.StoredRecord
	for rows.Next() {
		var r save.StoredRecord
		var seq int64
		if err := rows.Scan(&r.Collection, &r.Key, &r.TypeTag, &r.TypeVersion, &seq, &r.Data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Seq = uint64(seq)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return out, nil
}

// ApplyMutations writes a committed batch in one SQL transaction and bumps
// the commit counter.
func (s *SQLiteDatabase) ApplyMutations(ctx context.Context, batch []save.RecordMutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO records (collection, key, type_tag, type_version, seq, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, key) DO UPDATE SET
			type_tag = excluded.type_tag,
			type_version = excluded.type_version,
			seq = excluded.seq,
			data = excluded.data,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer upsert.Close()

	now := time.Now().UTC()
	for _, m := range batch {
		r := m.Record
		if m.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND key = ?`, r.Collection, r.Key); err != nil {
				return fmt.Errorf("deleting %s/%s: %w", r.Collection, r.Key, err)
			}
			continue
		}
		if _, err := upsert.ExecContext(ctx, r.Collection, r.Key, r.TypeTag, r.TypeVersion, int64(r.Seq), r.Data, now); err != nil {
			return fmt.Errorf("writing %s/%s: %w", r.Collection, r.Key, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (name, value) VALUES ('commits', '1')
		ON CONFLICT (name) DO UPDATE SET value = CAST(value AS INTEGER) + 1`); err != nil {
		return fmt.Errorf("updating commit counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Commits returns how many batches have been written to this database by
// any process.
func (s *SQLiteDatabase) Commits(ctx context.Context) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = 'commits'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading commit counter: %w", err)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing commit counter: %w", err)
	}
	return n, nil
}

// CountRecords returns the number of stored records per collection.
func (s *SQLiteDatabase) CountRecords(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, COUNT(*) FROM records GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		out[c] = n
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) DataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading data_version: %w", err)
	}
	return v, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up to date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
