package data

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MinisiteRepository defines the persistence operations for the live
// minisite projection. All mutating operations take the site_version the
// caller read; a mismatch yields ErrOptimisticLock.
type MinisiteRepository interface {
	FindByID(ctx context.Context, id string) (*Minisite, error)
	FindBySlugs(ctx context.Context, slugs SlugPair) (*Minisite, error)
	ListByOwner(ctx context.Context, userID int64, limit, offset int) ([]*Minisite, error)
	CountByOwner(ctx context.Context, userID int64) (int, error)
	Insert(ctx context.Context, m *Minisite) (*Minisite, error)
	Save(ctx context.Context, m *Minisite, expectedSiteVersion int) (*Minisite, error)
	UpdateTitle(ctx context.Context, id, title string, updatedBy int64, expectedSiteVersion int) error
	UpdateCoordinates(ctx context.Context, id string, geo *GeoPoint, updatedBy int64, expectedSiteVersion int) error
	UpdateBusinessInfo(ctx context.Context, id string, info BusinessInfo, updatedBy int64, expectedSiteVersion int) error
	UpdateFields(ctx context.Context, id string, fields FieldUpdates, updatedBy int64, expectedSiteVersion int) error
	ReserveSlugs(ctx context.Context, id string, slugs SlugPair, updatedBy int64, expectedSiteVersion int) error
}

// VersionRepository defines the persistence operations for the append-only
// version history of a minisite.
type VersionRepository interface {
	NextVersionNumber(ctx context.Context, minisiteID string) (int, error)
	FindByID(ctx context.Context, id int64) (*Version, error)
	// FindPublished returns the currently live version, or (nil, nil) when
	// the minisite has never been published.
	FindPublished(ctx context.Context, minisiteID string) (*Version, error)
	FindLatestVersion(ctx context.Context, minisiteID string) (*Version, error)
	FindLatestDraft(ctx context.Context, minisiteID string) (*Version, error)
	Save(ctx context.Context, v *Version) (*Version, error)
	ListByMinisite(ctx context.Context, minisiteID string, limit, offset int) ([]*Version, error)
	CountByMinisite(ctx context.Context, minisiteID string) (int, error)
}

// Store groups the repositories with a transactional unit of work. InTx
// hands the callback a Store whose repositories share one transaction; the
// transaction commits when the callback returns nil and rolls back
// otherwise.
type Store interface {
	Minisites() MinisiteRepository
	Versions() VersionRepository
	InTx(ctx context.Context, fn func(Store) error) error
}

// SQLStore is the sqlx-backed Store. The zero value is not usable; create
// one with NewSQLStore.
type SQLStore struct {
	db        *sqlx.DB
	minisites *SQLMinisiteRepository
	versions  *SQLVersionRepository
}

// NewSQLStore creates a Store over the given connection pool.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		db:        db,
		minisites: NewSQLMinisiteRepository(db),
		versions:  NewSQLVersionRepository(db),
	}
}

func (s *SQLStore) Minisites() MinisiteRepository { return s.minisites }

func (s *SQLStore) Versions() VersionRepository { return s.versions }

// InTx runs fn inside a database transaction. Nested calls reuse the
// enclosing transaction rather than opening a second one.
func (s *SQLStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already transaction-bound.
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &SQLStore{
		minisites: s.minisites.withExec(tx),
		versions:  s.versions.withExec(tx),
	}

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
