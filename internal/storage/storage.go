// Package storage provides SQLite-backed persistence for price history and
// resolved item metadata.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rewired-gh/runesync/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database holding the price history.
type Storage struct {
	db     *sql.DB
	bucket time.Duration
	// writers are serialised here; readers use their own connections
	mu sync.Mutex
}

// New opens or creates the SQLite database at dbPath. Samples whose
// timestamps fall in the same bucket (normally the refresh interval) replace
// each other. An empty dbPath defaults to $TMPDIR/runesync/data.db and
// ":memory:" opens a private in-memory database on a single connection.
func New(dbPath string, bucket time.Duration) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "runesync", "data.db")
	}

	var db *sql.DB
	var err error
	if dbPath == ":memory:" {
		db, err = sql.Open("sqlite", dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(1) // each connection would get its own database
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		// pragmas are applied on every pooled connection
		dsn := "file:" + dbPath +
			"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db, bucket: bucket}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_samples (
			item_id  TEXT    NOT NULL,
			bucket   INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			price    INTEGER NOT NULL CHECK (price >= 0),
			PRIMARY KEY (item_id, bucket)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_samples_item_ts ON price_samples(item_id, ts)`,
		`CREATE TABLE IF NOT EXISTS items (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			icon       TEXT,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS item_aliases (
			alias   TEXT PRIMARY KEY,
			item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) bucketOf(ts time.Time) int64 {
	if s.bucket <= 0 {
		return ts.UnixNano()
	}
	return ts.Truncate(s.bucket).UnixNano()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsert keeps one row per bucket; the later timestamp wins and an equal
// timestamp is overwritten by the newer write.
func (s *Storage) upsert(ctx context.Context, ex execer, sample *models.PriceSample) error {
	ts := sample.Timestamp.UTC()
	_, err := ex.ExecContext(ctx, `
		INSERT INTO price_samples (item_id, bucket, ts, price)
		VALUES (?,?,?,?)
		ON CONFLICT(item_id, bucket) DO UPDATE SET
			ts = excluded.ts,
			price = excluded.price
		WHERE excluded.ts >= price_samples.ts`,
		sample.ItemID, s.bucketOf(ts), ts.UnixNano(), sample.Price,
	)
	return err
}

// Append stores one sample. Invalid samples are rejected with
// models.ErrInvalidSample and nothing is written.
func (s *Storage) Append(ctx context.Context, sample *models.PriceSample) error {
	if err := sample.Validate(); err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.upsert(ctx, s.db, sample); err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// AppendAll stores samples in one transaction. If any sample is invalid
// nothing is written.
func (s *Storage) AppendAll(ctx context.Context, samples []models.PriceSample) error {
	for i := range samples {
		if err := samples[i].Validate(); err != nil {
			return fmt.Errorf("failed to append sample %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range samples {
		if err := s.upsert(ctx, tx, &samples[i]); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}
	return tx.Commit()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func querySince(ctx context.Context, q queryer, itemID string, since time.Time) ([]models.PriceSample, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_id, ts, price FROM price_samples
		WHERE item_id = ? AND ts >= ?
		ORDER BY ts ASC`, itemID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := []models.PriceSample{}
	for rows.Next() {
		sample, err := scanSample(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, *sample)
	}
	return samples, rows.Err()
}

// Query returns samples with timestamp >= since in ascending order. An empty
// history yields an empty slice, not an error.
func (s *Storage) Query(ctx context.Context, itemID string, since time.Time) ([]models.PriceSample, error) {
	return querySince(ctx, s.db, itemID, since)
}

func latest(ctx context.Context, q queryer, itemID string) (*models.PriceSample, error) {
	row := q.QueryRowContext(ctx, `
		SELECT item_id, ts, price FROM price_samples
		WHERE item_id = ?
		ORDER BY ts DESC LIMIT 1`, itemID)
	sample, err := scanSample(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}
	return sample, nil
}

// Latest returns the most recent sample, or nil when the history is empty.
func (s *Storage) Latest(ctx context.Context, itemID string) (*models.PriceSample, error) {
	return latest(ctx, s.db, itemID)
}

// ReadWindow returns, from a single read transaction, every sample from the
// newest one at or before latest-window up to and including the latest
// sample. The last element is the latest sample. An empty history yields an
// empty slice.
func (s *Storage) ReadWindow(ctx context.Context, itemID string, window time.Duration) ([]models.PriceSample, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	last, err := latest(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return []models.PriceSample{}, nil
	}

	cutoff := last.Timestamp.Add(-window)
	since := cutoff
	var anchorNano int64
	err = tx.QueryRowContext(ctx, `
		SELECT ts FROM price_samples
		WHERE item_id = ? AND ts <= ?
		ORDER BY ts DESC LIMIT 1`, itemID, cutoff.UnixNano()).Scan(&anchorNano)
	switch {
	case err == nil:
		since = time.Unix(0, anchorNano)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to find window anchor: %w", err)
	}

	return querySince(ctx, tx, itemID, since)
}

// Prune deletes samples older than olderThan. The most recent sample of each
// item is always kept, so Latest stays defined once a fetch has succeeded.
func (s *Storage) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM price_samples
		WHERE ts < ?
		  AND ts < (SELECT MAX(p.ts) FROM price_samples p WHERE p.item_id = price_samples.item_id)`,
		olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveItem records resolved item metadata and maps alias to it.
func (s *Storage) SaveItem(ctx context.Context, alias string, item models.Item) error {
	if alias == "" || item.ID == "" {
		return errors.New("alias and item ID must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO items (id, name, icon, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, icon = excluded.icon, updated_at = excluded.updated_at`,
		item.ID, item.Name, item.Icon, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO item_aliases (alias, item_id) VALUES (?,?)`,
		alias, item.ID,
	); err != nil {
		return fmt.Errorf("failed to save item alias: %w", err)
	}
	return tx.Commit()
}

// ItemByAlias returns the item an alias was resolved to, or nil if the alias
// has never been resolved.
func (s *Storage) ItemByAlias(ctx context.Context, alias string) (*models.Item, error) {
	var item models.Item
	var icon sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT i.id, i.name, i.icon FROM item_aliases a
		JOIN items i ON i.id = a.item_id
		WHERE a.alias = ?`, alias).Scan(&item.ID, &item.Name, &icon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	item.Icon = icon.String
	return &item, nil
}

func scanSample(scan func(...any) error) (*models.PriceSample, error) {
	var sample models.PriceSample
	var tsNano int64
	if err := scan(&sample.ItemID, &tsNano, &sample.Price); err != nil {
		return nil, err
	}
	sample.Timestamp = time.Unix(0, tsNano).UTC()
	return &sample, nil
}
