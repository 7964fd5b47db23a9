package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的运行历史存储
// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化数据库
// NewSQLiteStore creates and initializes the database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		instruction TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'running',
		error       TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS instructions (
		id     TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		text   TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		result TEXT NOT NULL DEFAULT '',
		error  TEXT NOT NULL DEFAULT '',
		PRIMARY KEY(run_id, id)
	);

	CREATE TABLE IF NOT EXISTS actions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		iteration   INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		success     INTEGER NOT NULL DEFAULT 1,
		warning     TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_instructions_run ON instructions(run_id);
	CREATE INDEX IF NOT EXISTS idx_actions_run ON actions(run_id, iteration);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(meta RunMeta) error {
	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := meta.Status
	if status == "" {
		status = "running"
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, instruction, status, error, created_at) VALUES (?, ?, ?, ?, ?)`,
		meta.ID, meta.Instruction, status, meta.Error, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(id, status, errText string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errText, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(limit int) ([]RunMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, instruction, status, error, created_at, finished_at FROM runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunMeta
	for rows.Next() {
		var meta RunMeta
		var createdAt, finished string
		if err := rows.Scan(&meta.ID, &meta.Instruction, &meta.Status, &meta.Error, &createdAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		meta.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if finished != "" {
			meta.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) SaveInstruction(entry InstructionEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO instructions (id, run_id, text, status, result, error) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, id) DO UPDATE SET status = excluded.status, result = excluded.result, error = excluded.error`,
		entry.ID, entry.RunID, entry.Text, entry.Status, entry.Result, entry.Error,
	)
	if err != nil {
		return fmt.Errorf("save instruction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LogAction(entry ActionEntry) error {
	success := 0
	if entry.Success {
		success = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO actions (run_id, iteration, description, success, warning, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Iteration, entry.Description, success, entry.Warning, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActions(runID string) ([]ActionEntry, error) {
	rows, err := s.db.Query(
		`SELECT run_id, iteration, description, success, warning FROM actions WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var entries []ActionEntry
	for rows.Next() {
		var (
			entry   ActionEntry
			success int
		)
		if err := rows.Scan(&entry.RunID, &entry.Iteration, &entry.Description, &success, &entry.Warning); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		entry.Success = success == 1
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
