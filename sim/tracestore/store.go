// Package tracestore persists warm-up access traces so later runs of the same
// workload can skip warm-up, and exports them for offline inspection.
package tracestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/inference-sim/chunksim/sim"
)

// Store keeps one warm-up trace per workload name in a SQLite database.
type Store struct {
	db *sql.DB
}

// Summary describes one stored trace.
type Summary struct {
	Workload    string
	TotalMoment sim.Moment
	Streams     int
	Accesses    int
	CreatedAt   time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening trace store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating trace store: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS warmup_traces (
  workload TEXT PRIMARY KEY,
  total_moment INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trace_moments (
  workload TEXT NOT NULL,
  chunk_id INTEGER NOT NULL,
  device TEXT NOT NULL,
  seq INTEGER NOT NULL,
  moment INTEGER NOT NULL,
  PRIMARY KEY (workload, chunk_id, device, seq)
);
`)
	return err
}

// Save replaces the stored trace for workload.
func (s *Store) Save(ctx context.Context, workload string, snap sim.Snapshot) error {
	if snap.TotalMoment <= 0 {
		return fmt.Errorf("saving trace %q: total moment must be > 0, got %d", workload, snap.TotalMoment)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM trace_moments WHERE workload=?;", workload); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO warmup_traces(workload, total_moment, created_at) VALUES(?, ?, ?)
ON CONFLICT(workload) DO UPDATE SET total_moment=excluded.total_moment, created_at=excluded.created_at;`,
		workload, int64(snap.TotalMoment), time.Now().Unix()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO trace_moments(workload, chunk_id, device, seq, moment) VALUES(?, ?, ?, ?, ?);")
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range snap.Entries {
		for seq, mom := range e.Moments {
			if _, err := stmt.ExecContext(ctx, workload, int(e.Chunk), e.Device.String(), seq, int64(mom)); err != nil {
				return fmt.Errorf("saving chunk %d on %s: %w", e.Chunk, e.Device, err)
			}
		}
	}
	return tx.Commit()
}

// Load returns the stored trace for workload; ok is false when none exists.
func (s *Store) Load(ctx context.Context, workload string) (snap sim.Snapshot, ok bool, err error) {
	var total int64
	err = s.db.QueryRowContext(ctx, "SELECT total_moment FROM warmup_traces WHERE workload=?;", workload).Scan(&total)
	if err == sql.ErrNoRows {
		return sim.Snapshot{}, false, nil
	}
	if err != nil {
		return sim.Snapshot{}, false, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, device, moment FROM trace_moments
WHERE workload=? ORDER BY chunk_id, device, seq;`, workload)
	if err != nil {
		return sim.Snapshot{}, false, err
	}
	defer func() { _ = rows.Close() }()

	snap.TotalMoment = sim.Moment(total)
	for rows.Next() {
		var (
			chunkID int
			device  string
			moment  int64
		)
		if err := rows.Scan(&chunkID, &device, &moment); err != nil {
			return sim.Snapshot{}, false, err
		}
		dev, err := sim.ParseDevice(device)
		if err != nil {
			return sim.Snapshot{}, false, fmt.Errorf("stored trace %q: %w", workload, err)
		}
		n := len(snap.Entries)
		if n == 0 || snap.Entries[n-1].Chunk != sim.ChunkID(chunkID) || snap.Entries[n-1].Device != dev {
			snap.Entries = append(snap.Entries, sim.TraceEntry{Chunk: sim.ChunkID(chunkID), Device: dev})
			n++
		}
		snap.Entries[n-1].Moments = append(snap.Entries[n-1].Moments, sim.Moment(moment))
	}
	return snap, true, rows.Err()
}

// Delete removes the stored trace for workload, if any.
func (s *Store) Delete(ctx context.Context, workload string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM trace_moments WHERE workload=?;", workload); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM warmup_traces WHERE workload=?;", workload)
	return err
}

// List summarizes every stored trace, ordered by workload name.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT t.workload, t.total_moment, t.created_at,
       COUNT(DISTINCT m.chunk_id || '/' || m.device), COUNT(m.moment)
FROM warmup_traces t LEFT JOIN trace_moments m ON m.workload = t.workload
GROUP BY t.workload ORDER BY t.workload;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			total   int64
			created int64
		)
		if err := rows.Scan(&sum.Workload, &total, &created, &sum.Streams, &sum.Accesses); err != nil {
			return nil, err
		}
		sum.TotalMoment = sim.Moment(total)
		sum.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}
