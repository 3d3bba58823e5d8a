package data

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// Error taxonomy for the versioning core. Repositories translate driver
// errors into these; callers branch with errors.Is.
var (
	// ErrNotFound: minisite or version absent, or a version does not belong
	// to the minisite it was addressed under. Not retryable.
	ErrNotFound = errors.New("not found")

	// ErrOptimisticLock: a conditional update on the live projection matched
	// no row because a concurrent writer incremented site_version first.
	// Retryable: re-read and resubmit.
	ErrOptimisticLock = errors.New("concurrent modification detected (optimistic lock failed)")

	// ErrVersionNumberConflict: two drafts raced for the same
	// (minisite_id, version_number). Retryable, same remedy.
	ErrVersionNumberConflict = errors.New("version number already taken")

	// ErrSlugConflict: the public slug pair is already claimed by another
	// minisite. Not retryable with the same pair.
	ErrSlugConflict = errors.New("slug pair already taken")

	// ErrDataIntegrity: the stored state violates a versioning invariant,
	// e.g. current_version_id referencing a row of another minisite. Fatal;
	// never silently repaired.
	ErrDataIntegrity = errors.New("versioning data integrity violation")
)

const mysqlDupEntry = 1062

// isUniqueViolation reports whether err is a unique-constraint violation
// from either supported driver (MySQL in production, SQLite in tests).
func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDupEntry
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
