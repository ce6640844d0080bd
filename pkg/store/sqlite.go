package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"robot-telemetry/pkg/model"
)

const sqliteOpTimeout = 3 * time.Second

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS robots(
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	current_command TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS telemetry(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	robot_id TEXT NOT NULL DEFAULT 'robot_001',
	temperature REAL NOT NULL,
	battery INTEGER NOT NULL,
	motor_rpm INTEGER NOT NULL,
	status TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_telemetry_robot_ts ON telemetry(robot_id, ts);
CREATE TABLE IF NOT EXISTS commands(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	robot_id TEXT NOT NULL DEFAULT 'robot_001',
	command TEXT NOT NULL,
	success INTEGER NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	executed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_commands_executed ON commands(executed_at);`

// SQLiteStore keeps everything in a single SQLite file through database/sql.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite init schema: %w", err)
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) EnsureRobot(ctx context.Context, r model.Robot) (model.Robot, error) {
	created, err := s.CreateRobot(ctx, r)
	if errors.Is(err, ErrExists) {
		return s.GetRobot(ctx, r.ID)
	}
	return created, err
}

func (s *SQLiteStore) CreateRobot(ctx context.Context, r model.Robot) (model.Robot, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	res, err := s.db.ExecContext(ctx, `INSERT INTO robots(id, name, description, location, is_active, current_command, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		r.ID, r.Name, r.Description, r.Location, r.IsActive, string(r.CurrentCommand), now.UnixNano(), now.UnixNano())
	if err != nil {
		return model.Robot{}, fmt.Errorf("insert robot %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Robot{}, ErrExists
	}
	return r, nil
}

func (s *SQLiteStore) UpdateRobot(ctx context.Context, r model.Robot) (model.Robot, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()
	r.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `UPDATE robots SET name=?, description=?, location=?, is_active=?, current_command=?, updated_at=? WHERE id=?`,
		r.Name, r.Description, r.Location, r.IsActive, string(r.CurrentCommand), r.UpdatedAt.UnixNano(), r.ID)
	if err != nil {
		return model.Robot{}, fmt.Errorf("update robot %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Robot{}, ErrNotFound
	}
	return s.GetRobot(ctx, r.ID)
}

func (s *SQLiteStore) GetRobot(ctx context.Context, id string) (model.Robot, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, location, is_active, current_command, created_at, updated_at FROM robots WHERE id=?`, id)
	r, err := scanRobot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Robot{}, ErrNotFound
	}
	if err != nil {
		return model.Robot{}, fmt.Errorf("get robot %s: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteStore) ListRobots(ctx context.Context, activeOnly bool) ([]model.Robot, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()
	query := `SELECT id, name, description, location, is_active, current_command, created_at, updated_at FROM robots`
	if activeOnly {
		query += ` WHERE is_active=1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list robots: %w", err)
	}
	defer rows.Close()
	out := make([]model.Robot, 0)
	for rows.Next() {
		r, err := scanRobot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan robot: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertSample(ctx context.Context, t model.TelemetrySample) (model.TelemetrySample, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()
	t.RobotID = robotIDOrDefault(t.RobotID)
	res, err := s.db.ExecContext(ctx, `INSERT INTO telemetry(robot_id, temperature, battery, motor_rpm, status, ts) VALUES(?,?,?,?,?,?)`,
		t.RobotID, t.Temperature, t.Battery, t.MotorRPM, string(t.Status), t.Timestamp.UnixNano())
	if err != nil {
		return t, fmt.Errorf("insert telemetry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = uint(id)
	}
	return t, nil
}

func (s *SQLiteStore) LatestSample(ctx context.Context, robotID string) (model.TelemetrySample, error) {
	rows, err := s.RecentSamples(ctx, SampleQuery{RobotID: robotID, Limit: 1})
	if err != nil {
		return model.TelemetrySample{}, err
	}
	if len(rows) == 0 {
		return model.TelemetrySample{}, ErrNotFound
	}
	return rows[0], nil
}

func (s *SQLiteStore) RecentSamples(ctx context.Context, q SampleQuery) ([]model.TelemetrySample, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()
	query := `SELECT id, robot_id, temperature, battery, motor_rpm, status, ts FROM telemetry WHERE robot_id=?`
	args := []any{robotIDOrDefault(q.RobotID)}
	if !q.Since.IsZero() {
		query += ` AND ts>=?`
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		query += ` AND ts<=?`
		args = append(args, q.Until.UnixNano())
	}
	query += ` ORDER BY ts DESC, id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}
	defer rows.Close()
	out := make([]model.TelemetrySample, 0)
	for rows.Next() {
		var (
			t      model.TelemetrySample
			id     int64
			status string
			ts     int64
		)
		if err := rows.Scan(&id, &t.RobotID, &t.Temperature, &t.Battery, &t.MotorRPM, &status, &ts); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		t.ID = uint(id)
		t.Status = model.Status(status)
		t.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertCommand(ctx context.Context, c model.CommandRecord) (model.CommandRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()
	c.RobotID = robotIDOrDefault(c.RobotID)
	if c.ExecutedAt.IsZero() {
		c.ExecutedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO commands(robot_id, command, success, message, executed_at) VALUES(?,?,?,?,?)`,
		c.RobotID, c.Command, c.Success, c.Message, c.ExecutedAt.UnixNano())
	if err != nil {
		return c, fmt.Errorf("insert command: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		c.ID = uint(id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCommands(ctx context.Context, robotID string, limit int) ([]model.CommandRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteOpTimeout)
	defer cancel()
	query := `SELECT id, robot_id, command, success, message, executed_at FROM commands`
	var args []any
	if robotID != "" {
		query += ` WHERE robot_id=?`
		args = append(args, robotID)
	}
	query += ` ORDER BY executed_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()
	out := make([]model.CommandRecord, 0)
	for rows.Next() {
		var (
			c  model.CommandRecord
			id int64
			at int64
		)
		if err := rows.Scan(&id, &c.RobotID, &c.Command, &c.Success, &c.Message, &at); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		c.ID = uint(id)
		c.ExecutedAt = time.Unix(0, at).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRobot(row rowScanner) (model.Robot, error) {
	var (
		r       model.Robot
		cmd     string
		created int64
		updated int64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Location, &r.IsActive, &cmd, &created, &updated); err != nil {
		return model.Robot{}, err
	}
	r.CurrentCommand = model.Command(cmd)
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	return r, nil
}
