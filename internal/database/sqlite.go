package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"serac-go/internal/database/migrations"
	"serac-go/internal/model"
	"serac-go/internal/serac"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements serac.Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteDatabase opens the cache at path, or ":memory:" for an in-memory
// cache, and brings its schema up to date.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDatabase{db: db, path: path, now: time.Now}, nil
}

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Manifest cache

func (s *SQLiteDatabase) FindManifest(id model.ChunkID) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(context.Background(),
		"SELECT body FROM manifests WHERE chunk_id = ?", string(id)).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not cached
		}
		return nil, fmt.Errorf("finding manifest %s: %w", id, err)
	}
	return body, nil
}

func (s *SQLiteDatabase) InsertManifest(id model.ChunkID, body []byte) error {
	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO manifests (chunk_id, body, fetched_at) VALUES (?, ?, ?) ON CONFLICT (chunk_id) DO NOTHING",
		string(id), body, s.now().UTC())
	if err != nil {
		return fmt.Errorf("inserting manifest %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListManifestIDs() ([]model.ChunkID, error) {
	rows, err := s.db.QueryContext(context.Background(), "SELECT chunk_id FROM manifests ORDER BY chunk_id")
	if err != nil {
		return nil, fmt.Errorf("listing manifests: %w", err)
	}
	defer rows.Close()

	var ids []model.ChunkID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning manifest id: %w", err)
		}
		ids = append(ids, model.ChunkID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing manifests: %w", err)
	}
	return ids, nil
}

// Run history

func (s *SQLiteDatabase) CreateRun(run *serac.Run) error {
	if run.Status == "" {
		run.Status = serac.RunStatusRunning
	}
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO runs (run_id, destination, root, started_at, status)
		 VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.Destination, run.Root, run.StartedAt.UTC(), run.Status)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading run id: %w", err)
	}
	run.ID = id
	return nil
}

func (s *SQLiteDatabase) FinishRun(run *serac.Run) error {
	if !run.FinishedAt.Valid {
		run.FinishedAt = sql.NullTime{Time: s.now().UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(context.Background(),
		`UPDATE runs SET finished_at = ?, status = ?, chunks = ?, files = ?, warnings = ?
		 WHERE id = ?`,
		run.FinishedAt, run.Status, run.Chunks, run.Files, run.Warnings, run.ID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run: no run with id %d", run.ID)
	}
	return nil
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*serac.Run, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, run_id, destination, root, started_at, finished_at, status, chunks, files, warnings
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*serac.Run
	for rows.Next() {
		r := &serac.Run{}
		if err := rows.Scan(&r.ID, &r.RunID, &r.Destination, &r.Root, &r.StartedAt,
			&r.FinishedAt, &r.Status, &r.Chunks, &r.Files, &r.Warnings); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Path returns the database file path, or ":memory:".
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements serac.Database
var _ serac.Database = (*SQLiteDatabase)(nil)
