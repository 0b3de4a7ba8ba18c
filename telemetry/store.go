// Package telemetry is the mission flight recorder: every navigation cycle and
// room sweep is written to a SQLite file tagged with a per-run ID.
package telemetry

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"firefighter-core/navigation"
	"firefighter-core/utils"
)

//go:embed schema.sql
var schemaSQL string

var ErrNoRun = errors.New("telemetry: no run started")

// Store records telemetry for one run at a time. It implements
// navigation.Recorder; write failures are logged and dropped so the robot
// keeps driving.
type Store struct {
	db  *sql.DB
	log *utils.Logger

	mu     sync.Mutex
	run    string
	failed int
}

// Open creates or opens the database at path and applies the schema.
func Open(path string, log *utils.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Debug("telemetry database ready at %s", path)
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RunID is the current run, empty before StartRun.
func (s *Store) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Dropped counts records that could not be written.
func (s *Store) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// StartRun opens a new run and returns its ID.
func (s *Store) StartRun(mission string, wallSide navigation.Direction, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, mission, wall_side, started_ns) VALUES (?, ?, ?, ?)`,
		id, mission, wallSide.String(), at.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	s.mu.Lock()
	s.run = id
	s.mu.Unlock()
	s.log.Info("telemetry run %s", id)
	return id, nil
}

// FinishRun stores the mission report. runErr is the error Run returned, if any.
func (s *Store) FinishRun(rep navigation.Report, runErr error, at time.Time) error {
	run := s.RunID()
	if run == "" {
		return ErrNoRun
	}
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE runs SET finished_ns = ?, room = ?, outcome = ?, cycles = ?, error = ? WHERE run_id = ?`,
		at.UnixNano(), rep.Room, rep.Outcome.String(), int64(rep.Cycles), msg, run,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *Store) RecordCycle(c navigation.CycleRecord) {
	run := s.RunID()
	if run == "" {
		return
	}
	_, err := s.db.Exec(
		`INSERT INTO cycles (run_id, cycle, at_ns, room, ideal, distance, reading, action)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run, int64(c.Cycle), c.At.UnixNano(), c.Room, c.Ideal, c.Distance, c.Reading, c.Action.String(),
	)
	if err != nil {
		s.drop("cycle %d: %v", c.Cycle, err)
	}
}

// RecordSweep stores the sweep and all of its samples in one transaction.
func (s *Store) RecordSweep(r navigation.SweepRecord) {
	run := s.RunID()
	if run == "" {
		return
	}
	if err := s.insertSweep(run, r); err != nil {
		s.drop("sweep in room %d: %v", r.Room, err)
	}
}

func (s *Store) insertSweep(run string, r navigation.SweepRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO sweeps (run_id, at_ns, room, outcome, localized, flame_index, head_angle)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run, r.At.UnixNano(), r.Room, r.Outcome.String(), r.Sweep.Localized, r.Sweep.Index, r.Sweep.Angle,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO sweep_samples (sweep_id, idx, angle, intensity) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, v := range r.Sweep.Samples {
		if _, err := stmt.Exec(id, i, r.Sweep.Angles[i], v); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) drop(format string, args ...any) {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
	s.log.Warn("telemetry dropped "+format, args...)
}
