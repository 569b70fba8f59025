package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/jit-bench/dashboard/config"
)

// PostgresStore keeps cache entries in a single key/value table, for
// deployments where several dashboard processes share one cache. The store
// stays a dumb shared surface: whole-entry upserts, last writer wins.
type PostgresStore struct {
	db  *sql.DB
	cfg *config.PostgresConfig
	log logrus.FieldLogger
}

// NewPostgresStore creates a store around the given configuration. Connect
// must be called before use.
func NewPostgresStore(cfg *config.PostgresConfig, log logrus.FieldLogger) *PostgresStore {
	return &PostgresStore{
		cfg: cfg,
		log: log.WithField("component", "postgres-store"),
	}
}

// Connect establishes the database connection and applies migrations.
func (s *PostgresStore) Connect() error {
	db, err := sql.Open("postgres", s.cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	s.db = db
	s.log.Info("Connected to PostgreSQL cache store")
	return nil
}

func (s *PostgresStore) Get(key string) (string, error) {
	if s.db == nil {
		return "", ErrUnavailable
	}

	var value string
	err := s.db.QueryRow(`SELECT value FROM cache_entries WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get entry %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(key, value string) error {
	if s.db == nil {
		return ErrUnavailable
	}

	query := `
		INSERT INTO cache_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()`

	if _, err := s.db.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to set entry %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(key string) error {
	if s.db == nil {
		return ErrUnavailable
	}

	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Keys(prefix string) ([]string, error) {
	if s.db == nil {
		return nil, ErrUnavailable
	}

	rows, err := s.db.Query(
		`SELECT key FROM cache_entries WHERE key LIKE $1 ORDER BY key`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// escapeLike escapes LIKE wildcards so a prefix matches literally.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
