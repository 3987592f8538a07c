// Package store persists scan history using SQLite. The history
// powers the stats command; it is never consulted by the acquisition
// cache, which works on path existence alone.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite scan-history database
type Store struct {
	db     *sql.DB
	dbPath string
}

// ScanRecord is one row of scan history: the outcome of scanning one
// package version.
type ScanRecord struct {
	ID           int64     `json:"id"`
	PackageName  string    `json:"package_name"`
	Version      string    `json:"version"`
	Ecosystem    string    `json:"ecosystem"`
	ScannedAt    time.Time `json:"scanned_at"`
	FindingCount int       `json:"finding_count"`
	MaxSeverity  string    `json:"max_severity"` // empty when no findings
	ErrorKind    string    `json:"error_kind"`   // empty when the scan ran
}

// New creates a new store, initializing the database if needed
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package_name TEXT NOT NULL,
		version TEXT NOT NULL,
		ecosystem TEXT NOT NULL,
		scanned_at DATETIME NOT NULL,
		finding_count INTEGER DEFAULT 0,
		max_severity TEXT,
		error_kind TEXT,
		UNIQUE(package_name, version, ecosystem)
	);

	CREATE INDEX IF NOT EXISTS idx_scans_package
		ON scans(package_name, ecosystem);

	CREATE INDEX IF NOT EXISTS idx_scans_findings
		ON scans(finding_count DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecord stores a scan outcome, replacing any previous record for
// the same package version.
func (s *Store) SaveRecord(rec *ScanRecord) error {
	query := `
	INSERT INTO scans (
		package_name, version, ecosystem, scanned_at,
		finding_count, max_severity, error_kind
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(package_name, version, ecosystem) DO UPDATE SET
		scanned_at = excluded.scanned_at,
		finding_count = excluded.finding_count,
		max_severity = excluded.max_severity,
		error_kind = excluded.error_kind
	`

	result, err := s.db.Exec(query,
		rec.PackageName, rec.Version, rec.Ecosystem, rec.ScannedAt,
		rec.FindingCount, rec.MaxSeverity, rec.ErrorKind,
	)
	if err != nil {
		return fmt.Errorf("failed to save scan record: %w", err)
	}

	id, _ := result.LastInsertId()
	rec.ID = id
	return nil
}

// GetRecord retrieves a scan record by package name and version
func (s *Store) GetRecord(packageName, version, ecosystem string) (*ScanRecord, error) {
	query := `
	SELECT id, package_name, version, ecosystem, scanned_at,
		finding_count, max_severity, error_kind
	FROM scans
	WHERE package_name = ? AND version = ? AND ecosystem = ?
	`

	var rec ScanRecord
	var maxSeverity, errorKind sql.NullString

	err := s.db.QueryRow(query, packageName, version, ecosystem).Scan(
		&rec.ID, &rec.PackageName, &rec.Version, &rec.Ecosystem, &rec.ScannedAt,
		&rec.FindingCount, &maxSeverity, &errorKind,
	)

	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan record: %w", err)
	}

	rec.MaxSeverity = maxSeverity.String
	rec.ErrorKind = errorKind.String
	return &rec, nil
}

// GetFlagged returns scans with at least minFindings findings
func (s *Store) GetFlagged(minFindings int) ([]*ScanRecord, error) {
	query := `
	SELECT id, package_name, version, ecosystem, scanned_at,
		finding_count, max_severity, error_kind
	FROM scans
	WHERE finding_count >= ?
	ORDER BY finding_count DESC
	`

	rows, err := s.db.Query(query, minFindings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var maxSeverity, errorKind sql.NullString

		err := rows.Scan(
			&rec.ID, &rec.PackageName, &rec.Version, &rec.Ecosystem, &rec.ScannedAt,
			&rec.FindingCount, &maxSeverity, &errorKind,
		)
		if err != nil {
			return nil, err
		}

		rec.MaxSeverity = maxSeverity.String
		rec.ErrorKind = errorKind.String
		results = append(results, &rec)
	}

	return results, rows.Err()
}

// Stats returns database statistics
type Stats struct {
	TotalPackages int
	TotalScans    int
	WithFindings  int
	FailedScans   int
	LastScanned   time.Time
}

// GetStats returns statistics about the scan history
func (s *Store) GetStats() (*Stats, error) {
	var stats Stats

	s.db.QueryRow(`SELECT COUNT(DISTINCT package_name) FROM scans`).Scan(&stats.TotalPackages)
	s.db.QueryRow(`SELECT COUNT(*) FROM scans`).Scan(&stats.TotalScans)
	s.db.QueryRow(`SELECT COUNT(*) FROM scans WHERE finding_count > 0`).Scan(&stats.WithFindings)
	s.db.QueryRow(`SELECT COUNT(*) FROM scans WHERE error_kind != '' AND error_kind IS NOT NULL`).Scan(&stats.FailedScans)

	var last sql.NullTime
	s.db.QueryRow(`SELECT MAX(scanned_at) FROM scans`).Scan(&last)
	stats.LastScanned = last.Time

	return &stats, nil
}

// DefaultDBPath returns the default database path
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".ossgadget", "scans.db")
}
