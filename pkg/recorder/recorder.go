// Package recorder persists applied randomizations for later analysis. The
// engine and containers know nothing about it; callers attach it where they
// need a trail.
package recorder

import (
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"gostim/pkg/container"
)

const schema = `
CREATE TABLE IF NOT EXISTS stimulus (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id  TEXT NOT NULL,
	container  TEXT NOT NULL,
	field      TEXT NOT NULL,
	width      INTEGER NOT NULL,
	value      TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_stimulus_report ON stimulus(report_id);
`

// Recorder writes one row per field per applied randomization into sqlite.
type Recorder struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open stimulus database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create stimulus schema")
	}
	return &Recorder{db: db}, nil
}

// Close releases the database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record stores the container's current field values under the report ID of
// its last randomization. All rows of one call commit together.
func (r *Recorder) Record(c *container.Container) error {
	rep := c.LastReport()
	if rep == nil {
		return errors.Errorf("container %q has no randomization to record", c.Name())
	}

	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin record transaction")
	}
	stmt, err := tx.Prepare(
		"INSERT INTO stimulus (report_id, container, field, width, value) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare stimulus insert")
	}
	defer stmt.Close()

	for _, fv := range c.Snapshot() {
		if _, err := stmt.Exec(rep.ID.String(), c.Name(), fv.Name, fv.Width, fv.Value); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert field %q", fv.Name)
		}
	}
	return errors.Wrap(tx.Commit(), "commit stimulus record")
}

// Count returns the number of recorded rows.
func (r *Recorder) Count() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM stimulus").Scan(&n)
	return n, errors.Wrap(err, "count stimulus rows")
}

// Reports returns the distinct report IDs in insertion order.
func (r *Recorder) Reports() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT report_id FROM stimulus ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "query report ids")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan report id")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "iterate report ids")
}
