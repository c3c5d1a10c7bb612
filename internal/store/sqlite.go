package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/thruflo/orchcore/internal/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	document TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	task_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	document TEXT NOT NULL,
	PRIMARY KEY (task_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`

// SQLiteStore is the reference Store backend, backed by modernc.org/sqlite
// (a CGo-free pure-Go driver). SQLite's own single-writer serialization
// guards the database file; a per-task in-process mutex additionally
// guarantees event-append order is preserved even when two goroutines race
// to append for the same task, since SQLite alone only serializes
// statements, not the read-modify-write of "next seq" across them.
type SQLiteStore struct {
	db *sql.DB

	mu        sync.Mutex
	taskLocks map[string]*sync.Mutex
}

// Open creates or opens a SQLite database at path and ensures the schema
// exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is single-connection-safe for writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &SQLiteStore{db: db, taskLocks: make(map[string]*sync.Mutex)}, nil
}

func (s *SQLiteStore) lockFor(taskID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.taskLocks[taskID]
	if !ok {
		l = &sync.Mutex{}
		s.taskLocks[taskID] = l
	}
	return l
}

func (s *SQLiteStore) CreateTask(ctx context.Context, t *task.Task) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("store: marshal task: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks (id, status, document) VALUES (?, ?, ?)`, t.ID, string(t.Status), doc)
	if err != nil {
		return fmt.Errorf("store: create task %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM tasks WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task %s: %w", id, err)
	}
	var t task.Task
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("store: unmarshal task %s: %w", id, err)
	}
	return &t, nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t *task.Task, expectedStatus task.Status) error {
	lock := s.lockFor(t.ID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("store: marshal task: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, document = ? WHERE id = ? AND status = ?`,
		string(t.Status), doc, t.ID, string(expectedStatus))
	if err != nil {
		return fmt.Errorf("store: update task %s: %w", t.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update task %s: %w", t.ID, err)
	}
	if affected == 0 {
		if _, getErr := s.GetTask(ctx, t.ID); getErr == ErrNotFound {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, taskID string, ev task.Event) (uint64, error) {
	lock := s.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	var maxSeq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events WHERE task_id = ?`, taskID).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("store: append event for %s: %w", taskID, err)
	}
	nextSeq := uint64(1)
	if maxSeq.Valid {
		nextSeq = uint64(maxSeq.Int64) + 1
	}
	ev.TaskID = taskID
	ev.Seq = nextSeq

	doc, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("store: marshal event: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO events (task_id, seq, document) VALUES (?, ?, ?)`, taskID, nextSeq, doc); err != nil {
		return 0, fmt.Errorf("store: append event for %s: %w", taskID, err)
	}
	return nextSeq, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, taskID string) ([]task.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM events WHERE task_id = ? ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: list events for %s: %w", taskID, err)
	}
	defer rows.Close()

	var events []task.Event
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan event for %s: %w", taskID, err)
		}
		var ev task.Event
		if err := json.Unmarshal([]byte(doc), &ev); err != nil {
			return nil, fmt.Errorf("store: unmarshal event for %s: %w", taskID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter ListFilter) ([]*task.Task, error) {
	query := `SELECT document FROM tasks`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY rowid DESC`
	// Label filtering happens after unmarshalling, so only push LIMIT/OFFSET
	// into SQL when there's no post-filter to invalidate the row count.
	pushPaging := filter.Label == ""
	if pushPaging && filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET %d`, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		var t task.Task
		if err := json.Unmarshal([]byte(doc), &t); err != nil {
			return nil, fmt.Errorf("store: unmarshal task: %w", err)
		}
		if filter.Label != "" {
			if _, ok := t.Labels[filter.Label]; !ok {
				continue
			}
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !pushPaging {
		if filter.Offset > 0 {
			if filter.Offset >= len(tasks) {
				return []*task.Task{}, nil
			}
			tasks = tasks[filter.Offset:]
		}
		if filter.Limit > 0 && len(tasks) > filter.Limit {
			tasks = tasks[:filter.Limit]
		}
	}
	return tasks, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
