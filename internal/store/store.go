package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"promo-console-api/internal/models"
)

var (
	// ErrNotFound is returned when a referenced promotion or content item
	// is absent from the aggregate.
	ErrNotFound = errors.New("store: not found")
	// ErrWriteConflict is returned when an optimistic write lost a race
	// and the bounded retries were exhausted.
	ErrWriteConflict = errors.New("store: write conflict")
	// ErrUnavailable is returned when the backing store did not answer
	// within the configured timeout.
	ErrUnavailable = errors.New("store: upstream unavailable")
)

// Options tunes the store's timeout and retry behavior.
type Options struct {
	// CallTimeout bounds every individual store call.
	CallTimeout time.Duration
	// MaxRetries bounds the CAS retry loop in Mutate.
	MaxRetries int
	// RetryBackoff is the base delay between retries.
	RetryBackoff time.Duration
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CallTimeout:  10 * time.Second,
		MaxRetries:   5,
		RetryBackoff: 25 * time.Millisecond,
	}
}

// DB holds the per-account aggregate documents. Each account maps to a
// single row carrying the JSON document and a version stamp; every write
// is a compare-and-swap against that stamp.
type DB struct {
	conn *sql.DB
	opts Options
}

// New opens the database and initializes the schema.
func New(dbPath string, opts Options) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultOptions().CallTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultOptions().RetryBackoff
	}

	db := &DB{conn: conn, opts: opts}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	query := `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := db.conn.Exec(query); err != nil {
		return fmt.Errorf("failed to execute schema query: %w", err)
	}

	return nil
}

// GetAccount returns the aggregate document for an account together with
// its version stamp. An account with no row yet reads as an empty
// aggregate at version 0; the first successful write creates the row.
func (db *DB) GetAccount(ctx context.Context, accountID string) (*models.Account, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, db.opts.CallTimeout)
	defer cancel()

	var doc string
	var version int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT doc, version FROM accounts WHERE id = ?`, accountID,
	).Scan(&doc, &version)
	if err == sql.ErrNoRows {
		return &models.Account{}, 0, nil
	}
	if err != nil {
		return nil, 0, db.wrapErr(ctx, err)
	}

	var acct models.Account
	if err := json.Unmarshal([]byte(doc), &acct); err != nil {
		return nil, 0, fmt.Errorf("failed to decode aggregate for %s: %w", accountID, err)
	}

	return &acct, version, nil
}

// writeAccount persists the aggregate guarded by the version stamp read
// earlier. It fails with ErrWriteConflict if the document changed since.
func (db *DB) writeAccount(ctx context.Context, accountID string, acct *models.Account, expectedVersion int64) error {
	doc, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate for %s: %w", accountID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, db.opts.CallTimeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)

	var res sql.Result
	if expectedVersion == 0 {
		res, err = db.conn.ExecContext(ctx,
			`INSERT INTO accounts (id, doc, version, updated_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT(id) DO NOTHING`,
			accountID, string(doc), now,
		)
	} else {
		res, err = db.conn.ExecContext(ctx,
			`UPDATE accounts SET doc = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ?`,
			string(doc), now, accountID, expectedVersion,
		)
	}
	if err != nil {
		return db.wrapErr(ctx, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return db.wrapErr(ctx, err)
	}
	if n == 0 {
		return ErrWriteConflict
	}

	return nil
}

// Mutate runs a read-modify-write cycle on the account aggregate under
// optimistic concurrency. fn transforms the aggregate in place and reports
// whether anything changed; an unchanged aggregate is never written back.
// Conflicting writes are retried with backoff up to the configured bound.
func (db *DB) Mutate(ctx context.Context, accountID string, fn func(*models.Account) (bool, error)) error {
	var lastErr error
	for attempt := 0; attempt < db.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(db.opts.RetryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		acct, version, err := db.GetAccount(ctx, accountID)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				lastErr = err
				continue
			}
			return err
		}

		changed, err := fn(acct)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		err = db.writeAccount(ctx, accountID, acct, version)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrWriteConflict) || errors.Is(err, ErrUnavailable) {
			lastErr = err
			continue
		}
		return err
	}

	return lastErr
}

// AddContentItem appends an item to the account's image array. This is the
// value-addressed add primitive: an element equal to an existing one (same
// storage path) is not added twice.
func (db *DB) AddContentItem(ctx context.Context, accountID string, item models.ContentItem) error {
	return db.Mutate(ctx, accountID, func(acct *models.Account) (bool, error) {
		for _, existing := range acct.Images {
			if existing.StoragePath == item.StoragePath {
				return false, nil
			}
		}
		acct.Images = append(acct.Images, item)
		return true, nil
	})
}

// RemoveContentItem removes the item with the given storage path from the
// account's image array. Removing an absent element is not an error.
func (db *DB) RemoveContentItem(ctx context.Context, accountID, storagePath string) error {
	return db.Mutate(ctx, accountID, func(acct *models.Account) (bool, error) {
		for i, existing := range acct.Images {
			if existing.StoragePath == storagePath {
				acct.Images = append(acct.Images[:i], acct.Images[i+1:]...)
				return true, nil
			}
		}
		return false, nil
	})
}

// AddPromotion appends a promotion to the account's promotions array.
func (db *DB) AddPromotion(ctx context.Context, accountID string, promo models.Promotion) error {
	return db.Mutate(ctx, accountID, func(acct *models.Account) (bool, error) {
		if acct.FindPromotion(promo.ID) != nil {
			return false, nil
		}
		acct.Promotions = append(acct.Promotions, promo)
		return true, nil
	})
}

// wrapErr maps driver and timeout failures onto the retryable taxonomy.
func (db *DB) wrapErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: call timed out after %s", ErrUnavailable, db.opts.CallTimeout)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
