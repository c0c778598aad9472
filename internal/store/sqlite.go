package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/srg/scorelink/internal/device"
)

const deviceColumns = `device_id, device_name, device_type, device_status, score, heart_rate,
	is_mine, is_paired, is_synced, color`

// SQLite implements Store on a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dbPath and runs the schema
// migration.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open device db: %w", err)
	}
	// WAL lets the monitor write heart rates while the CLI reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate device db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS device_table (
			device_id     TEXT PRIMARY KEY,
			device_name   TEXT NOT NULL DEFAULT '',
			device_type   TEXT NOT NULL,
			device_status TEXT NOT NULL DEFAULT 'disconnected',
			score         REAL NOT NULL DEFAULT 0,
			heart_rate    REAL NOT NULL DEFAULT 0,
			is_mine       INTEGER NOT NULL DEFAULT 0,
			is_paired     INTEGER NOT NULL DEFAULT 0,
			is_synced     INTEGER NOT NULL DEFAULT 0,
			color         INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) List(ctx context.Context, class device.Class) ([]device.Peripheral, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM device_table WHERE device_type = ? ORDER BY rowid", class.String())
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	list := make([]device.Peripheral, 0)
	for rows.Next() {
		p, err := scanPeripheral(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *SQLite) Get(ctx context.Context, id string) (device.Peripheral, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM device_table WHERE device_id = ?", id)
	return scanPeripheral(row)
}

func (s *SQLite) Insert(ctx context.Context, p device.Peripheral) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO device_table ("+deviceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(device_id) DO NOTHING",
		p.ID, p.Name, p.Class.String(), p.Status.String(), p.Score, p.HeartRate,
		boolInt(p.Owned), boolInt(p.Paired), boolInt(p.Synced), int64(p.Color),
	)
	if err != nil {
		return fmt.Errorf("insert device %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	return s.execOne(ctx, "DELETE FROM device_table WHERE device_id = ?", id)
}

func (s *SQLite) UpdateScore(ctx context.Context, id string, score float64) error {
	return s.execOne(ctx, "UPDATE device_table SET score = ? WHERE device_id = ?", score, id)
}

func (s *SQLite) UpdateHeartRate(ctx context.Context, id string, heartRate float64) error {
	return s.execOne(ctx, "UPDATE device_table SET heart_rate = ? WHERE device_id = ?", heartRate, id)
}

func (s *SQLite) MyWatch(ctx context.Context) (device.Peripheral, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM device_table WHERE is_mine = 1 AND device_type = ? ORDER BY rowid LIMIT 1",
		device.Watch.String())
	return scanPeripheral(row)
}

// execOne runs a statement that must affect exactly one device.
func (s *SQLite) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPeripheral(row scanner) (device.Peripheral, error) {
	var (
		p                    device.Peripheral
		class, status        string
		mine, paired, synced int
		color                int64
	)
	err := row.Scan(&p.ID, &p.Name, &class, &status, &p.Score, &p.HeartRate, &mine, &paired, &synced, &color)
	if errors.Is(err, sql.ErrNoRows) {
		return device.Peripheral{}, ErrNotFound
	}
	if err != nil {
		return device.Peripheral{}, err
	}

	if p.Class, err = device.ParseClass(class); err != nil {
		return device.Peripheral{}, fmt.Errorf("device %s: %w", p.ID, err)
	}
	p.Status = device.ParseStatus(status)
	p.Owned = mine == 1
	p.Paired = paired == 1
	p.Synced = synced == 1
	p.Color = device.ARGB(uint32(color))
	return p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLite)(nil)
