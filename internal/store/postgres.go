package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore implements both QuotaStore and DedupStore on top of
// Postgres. The file stores are fine for a single runner process; this
// backend exists for deployments where several runner processes share the
// daily caps and a mutex around a JSON file no longer cuts it. Row-level
// locking makes the read-modify-write exact across processes.
type PostgresStore struct {
	db *sql.DB
}

// Schema holds the DDL for the two store tables, executed by cmd/seeder.
const Schema = `
CREATE TABLE IF NOT EXISTS outreach_quota (
    day       date NOT NULL,
    sender_id text NOT NULL,
    used      integer NOT NULL DEFAULT 0,
    PRIMARY KEY (day, sender_id)
);

CREATE TABLE IF NOT EXISTS outreach_sent_leads (
    day     date NOT NULL,
    lead_id text NOT NULL,
    PRIMARY KEY (day, lead_id)
);
`

// NewPostgresStore connects and pings the database.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Used(senderID, day string) (int, error) {
	var used int
	err := s.db.QueryRow(
		`SELECT used FROM outreach_quota WHERE day=$1 AND sender_id=$2`,
		day, senderID,
	).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return used, nil
}

func (s *PostgresStore) GlobalUsed(day string) (int, error) {
	var used int
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(used), 0) FROM outreach_quota WHERE day=$1`,
		day,
	).Scan(&used)
	if err != nil {
		return 0, err
	}
	return used, nil
}

func (s *PostgresStore) Increment(senderID, day string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
        INSERT INTO outreach_quota (day, sender_id, used)
        VALUES ($1, $2, 1)
        ON CONFLICT (day, sender_id) DO UPDATE SET used = outreach_quota.used + 1
    `, day, senderID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM outreach_quota WHERE day < $1`, cutoff(day)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) HasSent(leadID, day string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM outreach_sent_leads WHERE day=$1 AND lead_id=$2)`,
		day, leadID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostgresStore) MarkSent(leadID, day string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
        INSERT INTO outreach_sent_leads (day, lead_id)
        VALUES ($1, $2)
        ON CONFLICT (day, lead_id) DO NOTHING
    `, day, leadID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM outreach_sent_leads WHERE day < $1`, cutoff(day)); err != nil {
		return err
	}

	return tx.Commit()
}

var (
	_ QuotaStore = (*PostgresStore)(nil)
	_ DedupStore = (*PostgresStore)(nil)
)
