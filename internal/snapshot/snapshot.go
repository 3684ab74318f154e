// Package snapshot remembers the last counts fetched for every student, so the next
// refresh can tell how many cards were completed in between.
package snapshot

import (
	"ankiboard/internal/components/assert"
	"ankiboard/internal/components/chrono"
	"ankiboard/internal/components/telemetry"
	"ankiboard/internal/decks"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

const (
	report_db_query = "db.query"
	report_save     = "store.save"
)

// Counts maps a student to their per-course counters.
type Counts = map[string]map[string]decks.Counters

type Snapshot struct {
	Student string
	TakenAt time.Time
	Counts  map[string]decks.Counters
}

type Store struct {
	db   *sql.DB
	time chrono.TimeAPI
	tel  telemetry.API
}

// OpenMemory opens a private in-memory sqlite database. It is limited to a single
// connection since every new connection to ":memory:" is a new, empty database.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Open opens the sqlite database at path, an empty path opens a private in-memory
// database.
func Open(path string) (*sql.DB, error) {
	if path == "" || path == ":memory:" {
		return OpenMemory()
	}
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

// NewStore creates the schema in db if it is missing.
func NewStore(ctx context.Context, db *sql.DB, time chrono.TimeAPI, tel telemetry.API) (Store, error) {
	assert.NotNil(db)
	assert.NotNil(time)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("snapshot", tel)

	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		tel.ReportBroken(report_db_query, fmt.Errorf("create schema: %w", err))
		return Store{}, err
	}

	return Store{db: db, time: time, tel: tel}, nil
}

// Previous returns the most recent snapshot of a student, ok is false when there is none.
func (s Store) Previous(ctx context.Context, student string) (snap Snapshot, ok bool, err error) {
	var id int64
	var takenAt int64
	err = s.db.QueryRowContext(
		ctx,
		"select id, taken_at from snapshot where student = ? order by taken_at desc, id desc limit 1",
		student,
	).Scan(&id, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "latest snapshot", student)
		return Snapshot{}, false, err
	}

	rows, err := s.db.QueryContext(
		ctx,
		"select course, due, learning, new from snapshot_count where snapshot_id = ?",
		id,
	)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "snapshot counts", id)
		return Snapshot{}, false, err
	}
	defer rows.Close()

	counts := map[string]decks.Counters{}
	for rows.Next() {
		var course string
		var due, learning, newCards int64
		err = rows.Scan(&course, &due, &learning, &newCards)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "scan snapshot count", id)
			return Snapshot{}, false, err
		}
		counts[course] = decks.Counters{
			Due:      uint64(due),
			Learning: uint64(learning),
			New:      uint64(newCards),
		}
	}
	if err = rows.Err(); err != nil {
		s.tel.ReportBroken(report_db_query, err, "snapshot counts", id)
		return Snapshot{}, false, err
	}

	return Snapshot{
		Student: student,
		TakenAt: time.UnixMilli(takenAt).In(s.time.Location()),
		Counts:  counts,
	}, true, nil
}

// PreviousAll returns the most recent counts of every given student that has a snapshot.
func (s Store) PreviousAll(ctx context.Context, students []string) (Counts, error) {
	out := Counts{}
	for _, student := range students {
		snap, ok, err := s.Previous(ctx, student)
		if err != nil {
			return nil, err
		}
		if ok {
			out[student] = snap.Counts
		}
	}
	return out, nil
}

// Save records the current counts of every student in counts, all with the same
// timestamp. Nothing is saved when any insert fails.
func (s Store) Save(ctx context.Context, counts Counts) error {
	takenAt := s.time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("begin tx: %w", err))
		return err
	}
	defer tx.Rollback()

	for student, courses := range counts {
		res, err := tx.ExecContext(
			ctx,
			"insert into snapshot(student, taken_at) values (?, ?)",
			student, takenAt,
		)
		if err != nil {
			s.tel.ReportBroken(report_save, fmt.Errorf("insert snapshot: %w", err), student)
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			s.tel.ReportBroken(report_save, fmt.Errorf("snapshot id: %w", err), student)
			return err
		}

		for course, c := range courses {
			_, err = tx.ExecContext(
				ctx,
				"insert into snapshot_count(snapshot_id, course, due, learning, new) values (?, ?, ?, ?, ?)",
				id, course, int64(c.Due), int64(c.Learning), int64(c.New),
			)
			if err != nil {
				s.tel.ReportBroken(report_save, fmt.Errorf("insert count: %w", err), student, course)
				return err
			}
		}
	}

	err = tx.Commit()
	if err != nil {
		s.tel.ReportBroken(report_save, fmt.Errorf("commit: %w", err))
		return err
	}
	s.tel.ReportCount(report_save, int64(len(counts)))
	return nil
}
