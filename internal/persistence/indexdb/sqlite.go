// Package indexdb keeps an optional sqlite read model of the terrain
// service's remesh/edit activity. It is a secondary index for admin and
// debugging queries; losing it never affects the terrain state, and it
// stores no chunk cell data.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"terramesh.dev/internal/terrain"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqRemesh reqKind = iota + 1
	reqEdit
	reqFlush
)

type req struct {
	kind   reqKind
	remesh terrain.RemeshEvent
	edit   terrain.EditEvent
	ack    chan struct{}
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Buffered: bursty remesh ticks must not stall the loop.
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS remeshes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			vertices INTEGER NOT NULL,
			indices INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_remeshes_chunk_tick ON remeshes(cx, cy, cz, tick);`,
		`CREATE TABLE IF NOT EXISTS edits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			value INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_agent_tick ON edits(agent_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_chunk_tick ON edits(cx, cy, cz, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRemesh satisfies terrain.Recorder. Drops the event when the
// writer backlog is full.
func (s *SQLiteIndex) RecordRemesh(ev terrain.RemeshEvent) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqRemesh, remesh: ev}:
	default:
	}
}

// RecordEdit satisfies terrain.Recorder.
func (s *SQLiteIndex) RecordEdit(ev terrain.EditEvent) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqEdit, edit: ev}:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqRemesh:
			ev := r.remesh
			_, _ = s.db.Exec(
				`INSERT INTO remeshes (tick, cx, cy, cz, vertices, indices, duration_us, recorded_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				ev.Tick, ev.Chunk[0], ev.Chunk[1], ev.Chunk[2],
				ev.Vertices, ev.Indices, ev.DurationUS,
				time.Now().UTC().Format(time.RFC3339Nano),
			)
		case reqEdit:
			ev := r.edit
			_, _ = s.db.Exec(
				`INSERT INTO edits (tick, agent_id, cx, cy, cz, x, y, z, value)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ev.Tick, ev.AgentID, ev.Chunk[0], ev.Chunk[1], ev.Chunk[2],
				ev.Cell[0], ev.Cell[1], ev.Cell[2], ev.Value,
			)
		case reqFlush:
			close(r.ack)
		}
	}
}

// Flush blocks until every event recorded before the call has been
// written. Intended for tests and shutdown.
func (s *SQLiteIndex) Flush() {
	if s.closed.Load() {
		return
	}
	ack := make(chan struct{})
	s.ch <- req{kind: reqFlush, ack: ack}
	<-ack
}

// RemeshCount reports how many extractions the index has seen for one
// chunk coordinate.
func (s *SQLiteIndex) RemeshCount(cx, cy, cz int) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM remeshes WHERE cx = ? AND cy = ? AND cz = ?`,
		cx, cy, cz,
	).Scan(&n)
	return n, err
}

// EditCount reports how many cell mutations the index has seen for one
// agent.
func (s *SQLiteIndex) EditCount(agentID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM edits WHERE agent_id = ?`,
		agentID,
	).Scan(&n)
	return n, err
}

// SetMeta stores a key/value pair in the meta table.
func (s *SQLiteIndex) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMeta reads a key from the meta table; ok is false when absent.
func (s *SQLiteIndex) GetMeta(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
