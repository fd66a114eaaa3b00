// Package store keeps the history of monitoring samples in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Uranury/bme680mon/monitor"
)

const schema = `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		temperature REAL NOT NULL,
		humidity REAL NOT NULL,
		received_at INTEGER NOT NULL
	)
`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serialises writers anyway, and every extra
	// connection to ":memory:" would see its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one sample.
func (s *Store) Record(ctx context.Context, sample monitor.Sample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (temperature, humidity, received_at) VALUES (?, ?, ?)`,
		sample.Temperature, sample.Humidity, sample.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// Latest returns the most recent sample, or nil when nothing was recorded.
func (s *Store) Latest(ctx context.Context) (*monitor.Sample, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT temperature, humidity, received_at FROM readings ORDER BY id DESC LIMIT 1`)
	sample, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return &sample, nil
}

// Recent returns up to limit samples, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]monitor.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT temperature, humidity, received_at FROM readings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent readings: %w", err)
	}
	defer rows.Close()

	samples := []monitor.Sample{}
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (monitor.Sample, error) {
	var (
		sample monitor.Sample
		nanos  int64
	)
	if err := row.Scan(&sample.Temperature, &sample.Humidity, &nanos); err != nil {
		return monitor.Sample{}, err
	}
	sample.Timestamp = time.Unix(0, nanos).UTC()
	return sample, nil
}
