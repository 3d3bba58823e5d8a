package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const versionColumns = `id, minisite_id, version_number, status, label, comment, created_by,
	created_at, published_at, source_version_id, business_slug, location_slug, title, name,
	city, region, country_code, postal_code, location_lat, location_lng, site_template,
	palette, industry, default_locale, schema_version, site_version, site_json, search_terms`

// versionRow adds the physical geo columns to the entity for scanning.
type versionRow struct {
	Version
	LocationLat sql.NullFloat64 `db:"location_lat"`
	LocationLng sql.NullFloat64 `db:"location_lng"`
}

func (r *versionRow) entity() *Version {
	v := r.Version
	if r.LocationLat.Valid && r.LocationLng.Valid {
		v.Geo = &GeoPoint{Lat: r.LocationLat.Float64, Lng: r.LocationLng.Float64}
	}
	return &v
}

// SQLVersionRepository is a concrete implementation of the
// VersionRepository interface using sqlx.
type SQLVersionRepository struct {
	db sqlx.ExtContext
}

// NewSQLVersionRepository creates a new SQLVersionRepository.
func NewSQLVersionRepository(db *sqlx.DB) *SQLVersionRepository {
	return &SQLVersionRepository{db: db}
}

// withExec returns a copy of the repository bound to the given executor,
// typically a transaction.
func (r *SQLVersionRepository) withExec(ext sqlx.ExtContext) *SQLVersionRepository {
	return &SQLVersionRepository{db: ext}
}

// NextVersionNumber returns max(version_number)+1 for the minisite, or 1
// when no versions exist. Callers must run this inside the same transaction
// as the subsequent insert; the unique (minisite_id, version_number)
// constraint catches the race when two drafts claim the same number anyway.
func (r *SQLVersionRepository) NextVersionNumber(ctx context.Context, minisiteID string) (int, error) {
	var highest sql.NullInt64
	query := `SELECT MAX(version_number) FROM minisite_versions WHERE minisite_id = ?`
	if err := sqlx.GetContext(ctx, r.db, &highest, query, minisiteID); err != nil {
		return 0, fmt.Errorf("failed to get next version number: %w", err)
	}
	if !highest.Valid {
		return 1, nil
	}
	return int(highest.Int64) + 1, nil
}

// FindByID retrieves a single version by its id.
func (r *SQLVersionRepository) FindByID(ctx context.Context, id int64) (*Version, error) {
	var row versionRow
	query := `SELECT ` + versionColumns + ` FROM minisite_versions WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.db, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("version %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get version by id: %w", err)
	}
	return row.entity(), nil
}

// FindPublished returns the currently live version of the minisite, or
// (nil, nil) if it has never been published. Superseded versions keep their
// historical published status, so liveness is resolved through
// minisites.current_version_id; a dangling or mismatched reference is
// reported as ErrDataIntegrity.
func (r *SQLVersionRepository) FindPublished(ctx context.Context, minisiteID string) (*Version, error) {
	var currentVersionID sql.NullInt64
	query := `SELECT current_version_id FROM minisites WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.db, &currentVersionID, query, minisiteID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("minisite %s: %w", minisiteID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to resolve current version: %w", err)
	}
	if !currentVersionID.Valid {
		return nil, nil
	}

	v, err := r.FindByID(ctx, currentVersionID.Int64)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("minisite %s references missing version %d: %w",
				minisiteID, currentVersionID.Int64, ErrDataIntegrity)
		}
		return nil, err
	}
	if v.MinisiteID != minisiteID || !v.IsPublished() {
		return nil, fmt.Errorf("minisite %s references version %d of wrong minisite or status: %w",
			minisiteID, v.ID, ErrDataIntegrity)
	}
	return v, nil
}

// FindLatestVersion returns the highest-numbered version of the minisite,
// or (nil, nil) when none exist.
func (r *SQLVersionRepository) FindLatestVersion(ctx context.Context, minisiteID string) (*Version, error) {
	return r.findNewest(ctx, minisiteID, "")
}

// FindLatestDraft returns the highest-numbered draft of the minisite, or
// (nil, nil) when none exist.
func (r *SQLVersionRepository) FindLatestDraft(ctx context.Context, minisiteID string) (*Version, error) {
	return r.findNewest(ctx, minisiteID, VersionStatusDraft)
}

func (r *SQLVersionRepository) findNewest(ctx context.Context, minisiteID, status string) (*Version, error) {
	var row versionRow
	query := `SELECT ` + versionColumns + ` FROM minisite_versions WHERE minisite_id = ?`
	args := []interface{}{minisiteID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY version_number DESC LIMIT 1`
	if err := sqlx.GetContext(ctx, r.db, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get newest version: %w", err)
	}
	return row.entity(), nil
}

// Save inserts the version when it has no id yet, or applies the
// publication stamp (status, published_at) to an existing row. Version
// content is immutable after insert; no other update path exists. A race on
// the (minisite_id, version_number) constraint yields
// ErrVersionNumberConflict.
func (r *SQLVersionRepository) Save(ctx context.Context, v *Version) (*Version, error) {
	if v.ID == 0 {
		return r.insert(ctx, v)
	}

	query := `UPDATE minisite_versions SET status = ?, published_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, v.Status, v.PublishedAt, v.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update version status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("version %d: %w", v.ID, ErrNotFound)
	}
	return r.FindByID(ctx, v.ID)
}

func (r *SQLVersionRepository) insert(ctx context.Context, v *Version) (*Version, error) {
	var lat, lng interface{}
	if v.Geo != nil {
		lat, lng = v.Geo.Lat, v.Geo.Lng
	}
	query := `INSERT INTO minisite_versions (minisite_id, version_number, status, label, comment,
		created_by, created_at, published_at, source_version_id, business_slug, location_slug,
		title, name, city, region, country_code, postal_code, location_lat, location_lng,
		site_template, palette, industry, default_locale, schema_version, site_version,
		site_json, search_terms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		v.MinisiteID, v.VersionNumber, v.Status, v.Label, v.Comment,
		v.CreatedBy, v.CreatedAt, v.PublishedAt, v.SourceVersionID, v.BusinessSlug, v.LocationSlug,
		v.Title, v.Name, v.City, v.Region, v.CountryCode, v.PostalCode, lat, lng,
		v.SiteTemplate, v.Palette, v.Industry, v.DefaultLocale, v.SchemaVersion, v.SiteVersion,
		v.SiteJSON, v.SearchTerms)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("minisite %s version %d: %w",
				v.MinisiteID, v.VersionNumber, ErrVersionNumberConflict)
		}
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get inserted version id: %w", err)
	}
	return r.FindByID(ctx, id)
}

// ListByMinisite retrieves the version history of a minisite, newest
// version number first.
func (r *SQLVersionRepository) ListByMinisite(ctx context.Context, minisiteID string, limit, offset int) ([]*Version, error) {
	var rows []versionRow
	query := `SELECT ` + versionColumns + ` FROM minisite_versions
		WHERE minisite_id = ? ORDER BY version_number DESC LIMIT ? OFFSET ?`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, minisiteID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	versions := make([]*Version, len(rows))
	for i := range rows {
		versions[i] = rows[i].entity()
	}
	return versions, nil
}

// CountByMinisite counts the versions of a minisite.
func (r *SQLVersionRepository) CountByMinisite(ctx context.Context, minisiteID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM minisite_versions WHERE minisite_id = ?`
	if err := sqlx.GetContext(ctx, r.db, &count, query, minisiteID); err != nil {
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}
	return count, nil
}
