package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cxd309/movingblock/internal/engine"
	"github.com/cxd309/movingblock/internal/train"
)

var ErrNoRun = errors.New("no run in progress")

// Store keeps run summaries and per-train samples in SQLite. A Store records
// one run at a time; it implements engine.Recorder between BeginRun and
// FinishRun.
type Store struct {
	db  *sql.DB
	run int64
}

// Run is one row of the runs table.
type Run struct {
	ID           int64
	SimulationID string
	MaxTicks     int64
	Ticks        int64
	StartedAt    time.Time
	FinishedAt   time.Time // zero while the run is open
}

// Sample is the telemetry of one train at one tick.
type Sample struct {
	Tick                int64
	TrainID             int
	State               train.State
	HardBrake           bool
	Distance            float64
	ReservationDistance float64
	Velocity            float64
	Acceleration        float64
	MaxVelocity         float64
	TractiveEffort      float64
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
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
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
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
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			simulation_id TEXT NOT NULL,
			max_ticks INTEGER NOT NULL,
			ticks INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS samples (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			tick INTEGER NOT NULL,
			train_id INTEGER NOT NULL,
			state TEXT NOT NULL,
			hard_brake INTEGER NOT NULL,
			distance REAL NOT NULL,
			reservation_distance REAL NOT NULL,
			velocity REAL NOT NULL,
			acceleration REAL NOT NULL,
			max_velocity REAL NOT NULL,
			tractive_effort REAL NOT NULL,
			PRIMARY KEY (run_id, train_id, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS samples_tick ON samples(run_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// BeginRun opens a new run and returns its id.
func (s *Store) BeginRun(meta engine.SimulationMeta) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO runs(simulation_id, max_ticks, started_at) VALUES(?, ?, ?)`,
		meta.SimulationID, meta.MaxTicks, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.run = id
	return id, nil
}

// Record writes every train of row in one transaction.
func (s *Store) Record(row engine.SimulationLogRow) error {
	if s.run == 0 {
		return ErrNoRun
	}
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO samples(
		run_id, tick, train_id, state, hard_brake, distance, reservation_distance,
		velocity, acceleration, max_velocity, tractive_effort)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range row.Trains {
		if _, err := stmt.Exec(s.run, row.Tick, l.ID, string(l.State), boolInt(l.HardBrake),
			l.Distance, l.ReservationDistance, l.Velocity, l.Acceleration,
			l.MaxVelocity, l.TractiveEffort); err != nil {
			return fmt.Errorf("tick %d train %d: %w", row.Tick, l.ID, err)
		}
	}
	if _, err := tx.Exec(`UPDATE runs SET ticks = ? WHERE id = ?`, row.Tick, s.run); err != nil {
		return err
	}
	return tx.Commit()
}

// FinishRun closes the current run.
func (s *Store) FinishRun() error {
	if s.run == 0 {
		return ErrNoRun
	}
	_, err := s.db.Exec(`UPDATE runs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), s.run)
	s.run = 0
	return err
}

// Runs lists every run, oldest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, simulation_id, max_ticks, ticks, started_at,
		COALESCE(finished_at, '') FROM runs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.SimulationID, &r.MaxTicks, &r.Ticks, &started, &finished); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, err
		}
		if finished != "" {
			if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Samples returns the time series of one train in a run, ordered by tick.
func (s *Store) Samples(runID int64, trainID int) ([]Sample, error) {
	rows, err := s.db.Query(`SELECT tick, train_id, state, hard_brake, distance,
		reservation_distance, velocity, acceleration, max_velocity, tractive_effort
		FROM samples WHERE run_id = ? AND train_id = ? ORDER BY tick`, runID, trainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var sm Sample
		var state string
		var hb int
		if err := rows.Scan(&sm.Tick, &sm.TrainID, &state, &hb, &sm.Distance,
			&sm.ReservationDistance, &sm.Velocity, &sm.Acceleration,
			&sm.MaxVelocity, &sm.TractiveEffort); err != nil {
			return nil, err
		}
		sm.State = train.State(state)
		sm.HardBrake = hb != 0
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
