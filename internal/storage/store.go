package storage

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EffSample is one persisted efficiency snapshot. Immutable once written:
// the store offers no update or delete path.
type EffSample struct {
	Time       time.Time
	Efficiency float64
	Rhythm     int // the raw cadence reading at capture time
	Prompt     string
}

// SampleStore is an append-only SQLite store for EffSample records
type SampleStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *log.Logger
}

// Open opens (or creates) the sample database at path and brings its schema
// up to the current version without dropping existing records.
func Open(path string, logger *log.Logger) (*SampleStore, error) {
	if logger == nil {
		panic("SampleStore: logger cannot be nil")
	}
	if path == "" {
		return nil, fmt.Errorf("sample store path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dsn := path + "?_journal=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample database: %w", err)
	}

	if err := validateAndMigrate(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare sample schema: %w", err)
	}

	logger.Printf("SampleStore: opened %s (schema version %d)", path, SchemaVersion)
	return &SampleStore{db: db, logger: logger}, nil
}

// Append writes one sample. Failures are returned to the caller; nothing is
// dropped silently. Repeated identical samples are legal and produce
// repeated records.
func (s *SampleStore) Append(sample EffSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(insertSampleSQL,
		sample.Time.UnixNano(),
		sample.Efficiency,
		int64(sample.Rhythm),
		sample.Prompt,
	)
	if err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}
	return nil
}

// All returns every stored sample in insertion order
func (s *SampleStore) All() ([]EffSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(selectSamplesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	result := make([]EffSample, 0)
	for rows.Next() {
		var (
			ts     int64
			sample EffSample
			rhythm int64
		)
		if err := rows.Scan(&ts, &sample.Efficiency, &rhythm, &sample.Prompt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.Time = time.Unix(0, ts)
		sample.Rhythm = int(rhythm)
		result = append(result, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading samples: %w", err)
	}
	return result, nil
}

// Count returns the number of stored samples
func (s *SampleStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM eff_samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL and closes the database
func (s *SampleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("SampleStore: WAL checkpoint failed: %v", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close sample database: %w", err)
	}
	s.logger.Printf("SampleStore: closed")
	return nil
}
