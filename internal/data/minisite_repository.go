package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

// BusinessInfo carries the subset of live-projection fields edited on the
// business-info form. Nil members are left unchanged.
type BusinessInfo struct {
	Name        *string
	City        *string
	Region      *string
	CountryCode *string
	PostalCode  *string
}

// FieldUpdates lists optional field-level changes to the live projection.
// Nil members are left unchanged.
type FieldUpdates struct {
	Title         *string
	Name          *string
	City          *string
	Region        *string
	CountryCode   *string
	PostalCode    *string
	SiteTemplate  *string
	Palette       *string
	Industry      *string
	DefaultLocale *string
	SearchTerms   *string
	SiteJSON      types.JSONText
	Geo           *GeoPoint
}

const minisiteColumns = `id, slug, business_slug, location_slug, title, name, city, region,
	country_code, postal_code, location_lat, location_lng, site_template, palette, industry,
	default_locale, schema_version, site_version, site_json, search_terms, status,
	publish_status, created_at, updated_at, published_at, created_by, updated_by,
	current_version_id`

// minisiteRow adds the physical geo columns to the entity for scanning.
type minisiteRow struct {
	Minisite
	LocationLat sql.NullFloat64 `db:"location_lat"`
	LocationLng sql.NullFloat64 `db:"location_lng"`
}

func (r *minisiteRow) entity() *Minisite {
	m := r.Minisite
	if r.LocationLat.Valid && r.LocationLng.Valid {
		m.Geo = &GeoPoint{Lat: r.LocationLat.Float64, Lng: r.LocationLng.Float64}
	}
	return &m
}

// SQLMinisiteRepository is a concrete implementation of the
// MinisiteRepository interface using sqlx.
type SQLMinisiteRepository struct {
	db sqlx.ExtContext
}

// NewSQLMinisiteRepository creates a new SQLMinisiteRepository.
func NewSQLMinisiteRepository(db *sqlx.DB) *SQLMinisiteRepository {
	return &SQLMinisiteRepository{db: db}
}

// withExec returns a copy of the repository bound to the given executor,
// typically a transaction.
func (r *SQLMinisiteRepository) withExec(ext sqlx.ExtContext) *SQLMinisiteRepository {
	return &SQLMinisiteRepository{db: ext}
}

// FindByID retrieves a single minisite by its opaque id.
func (r *SQLMinisiteRepository) FindByID(ctx context.Context, id string) (*Minisite, error) {
	var row minisiteRow
	query := `SELECT ` + minisiteColumns + ` FROM minisites WHERE id = ?`
	if err := sqlx.GetContext(ctx, r.db, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("minisite %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get minisite by id: %w", err)
	}
	return row.entity(), nil
}

// FindBySlugs retrieves a single minisite by its public slug pair.
func (r *SQLMinisiteRepository) FindBySlugs(ctx context.Context, slugs SlugPair) (*Minisite, error) {
	var row minisiteRow
	query := `SELECT ` + minisiteColumns + ` FROM minisites WHERE business_slug = ? AND location_slug = ?`
	if err := sqlx.GetContext(ctx, r.db, &row, query, slugs.Business, slugs.Location); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("minisite %s/%s: %w", slugs.Business, slugs.Location, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get minisite by slugs: %w", err)
	}
	return row.entity(), nil
}

// ListByOwner retrieves minisites created by the given user, most recently
// updated first.
func (r *SQLMinisiteRepository) ListByOwner(ctx context.Context, userID int64, limit, offset int) ([]*Minisite, error) {
	var rows []minisiteRow
	query := `SELECT ` + minisiteColumns + ` FROM minisites
		WHERE created_by = ? ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list minisites by owner: %w", err)
	}
	sites := make([]*Minisite, len(rows))
	for i := range rows {
		sites[i] = rows[i].entity()
	}
	return sites, nil
}

// CountByOwner counts minisites created by the given user.
func (r *SQLMinisiteRepository) CountByOwner(ctx context.Context, userID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM minisites WHERE created_by = ?`
	if err := sqlx.GetContext(ctx, r.db, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count minisites by owner: %w", err)
	}
	return count, nil
}

// Insert creates a new minisite row and returns the stored entity.
func (r *SQLMinisiteRepository) Insert(ctx context.Context, m *Minisite) (*Minisite, error) {
	if m.SearchTerms == "" {
		m.SearchTerms = buildSearchTerms(m)
	}
	var lat, lng interface{}
	if m.Geo != nil {
		lat, lng = m.Geo.Lat, m.Geo.Lng
	}
	query := `INSERT INTO minisites (id, slug, business_slug, location_slug, title, name, city,
		region, country_code, postal_code, location_lat, location_lng, site_template, palette,
		industry, default_locale, schema_version, site_version, site_json, search_terms, status,
		publish_status, created_at, updated_at, published_at, created_by, updated_by, current_version_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.Slug, m.BusinessSlug, m.LocationSlug, m.Title, m.Name, m.City,
		m.Region, m.CountryCode, m.PostalCode, lat, lng, m.SiteTemplate, m.Palette,
		m.Industry, m.DefaultLocale, m.SchemaVersion, m.SiteVersion, m.SiteJSON, m.SearchTerms,
		m.Status, m.PublishStatus, m.CreatedAt, m.UpdatedAt, m.PublishedAt, m.CreatedBy,
		m.UpdatedBy, m.CurrentVersionID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("minisite %s: %w", m.ID, ErrSlugConflict)
		}
		return nil, fmt.Errorf("failed to insert minisite: %w", err)
	}
	return r.FindByID(ctx, m.ID)
}

// Save updates the live projection under the optimistic lock: the row is
// written only if site_version still equals expectedSiteVersion, and the
// token is incremented in the same statement. On success the row is re-read
// so the caller observes the fresh token.
func (r *SQLMinisiteRepository) Save(ctx context.Context, m *Minisite, expectedSiteVersion int) (*Minisite, error) {
	if m.SearchTerms == "" {
		m.SearchTerms = buildSearchTerms(m)
	}
	var lat, lng interface{}
	if m.Geo != nil {
		lat, lng = m.Geo.Lat, m.Geo.Lng
	}
	query := `UPDATE minisites
		SET title = ?, name = ?, city = ?, region = ?, country_code = ?, postal_code = ?,
			location_lat = ?, location_lng = ?, site_template = ?, palette = ?, industry = ?,
			default_locale = ?, schema_version = ?, site_json = ?, search_terms = ?, status = ?,
			publish_status = ?, published_at = ?, current_version_id = ?, updated_by = ?,
			updated_at = ?, site_version = site_version + 1
		WHERE id = ? AND site_version = ?`
	res, err := r.db.ExecContext(ctx, query,
		m.Title, m.Name, m.City, m.Region, m.CountryCode, m.PostalCode,
		lat, lng, m.SiteTemplate, m.Palette, m.Industry,
		m.DefaultLocale, m.SchemaVersion, m.SiteJSON, m.SearchTerms, m.Status,
		m.PublishStatus, m.PublishedAt, m.CurrentVersionID, m.UpdatedBy,
		time.Now().UTC(), m.ID, expectedSiteVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to save minisite: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return nil, fmt.Errorf("minisite %s: %w", m.ID, err)
	}
	return r.FindByID(ctx, m.ID)
}

// UpdateTitle changes only the title, under the optimistic lock.
func (r *SQLMinisiteRepository) UpdateTitle(ctx context.Context, id, title string, updatedBy int64, expectedSiteVersion int) error {
	return r.UpdateFields(ctx, id, FieldUpdates{Title: &title}, updatedBy, expectedSiteVersion)
}

// UpdateCoordinates changes only the geo location, under the optimistic
// lock. A nil geo clears the stored point.
func (r *SQLMinisiteRepository) UpdateCoordinates(ctx context.Context, id string, geo *GeoPoint, updatedBy int64, expectedSiteVersion int) error {
	var lat, lng interface{}
	if geo != nil {
		lat, lng = geo.Lat, geo.Lng
	}
	query := `UPDATE minisites
		SET location_lat = ?, location_lng = ?, updated_by = ?, updated_at = ?,
			site_version = site_version + 1
		WHERE id = ? AND site_version = ?`
	res, err := r.db.ExecContext(ctx, query, lat, lng, updatedBy, time.Now().UTC(), id, expectedSiteVersion)
	if err != nil {
		return fmt.Errorf("failed to update minisite coordinates: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return fmt.Errorf("minisite %s: %w", id, err)
	}
	return nil
}

// UpdateBusinessInfo changes the business-info fields, under the optimistic
// lock.
func (r *SQLMinisiteRepository) UpdateBusinessInfo(ctx context.Context, id string, info BusinessInfo, updatedBy int64, expectedSiteVersion int) error {
	return r.UpdateFields(ctx, id, FieldUpdates{
		Name:        info.Name,
		City:        info.City,
		Region:      info.Region,
		CountryCode: info.CountryCode,
		PostalCode:  info.PostalCode,
	}, updatedBy, expectedSiteVersion)
}

// UpdateFields applies the non-nil members of fields in a single
// conditional update, under the optimistic lock.
func (r *SQLMinisiteRepository) UpdateFields(ctx context.Context, id string, fields FieldUpdates, updatedBy int64, expectedSiteVersion int) error {
	set := make([]string, 0, 16)
	args := make([]interface{}, 0, 18)
	add := func(column string, value interface{}) {
		set = append(set, column+" = ?")
		args = append(args, value)
	}
	if fields.Title != nil {
		add("title", *fields.Title)
	}
	if fields.Name != nil {
		add("name", *fields.Name)
	}
	if fields.City != nil {
		add("city", *fields.City)
	}
	if fields.Region != nil {
		add("region", *fields.Region)
	}
	if fields.CountryCode != nil {
		add("country_code", *fields.CountryCode)
	}
	if fields.PostalCode != nil {
		add("postal_code", *fields.PostalCode)
	}
	if fields.SiteTemplate != nil {
		add("site_template", *fields.SiteTemplate)
	}
	if fields.Palette != nil {
		add("palette", *fields.Palette)
	}
	if fields.Industry != nil {
		add("industry", *fields.Industry)
	}
	if fields.DefaultLocale != nil {
		add("default_locale", *fields.DefaultLocale)
	}
	if fields.SearchTerms != nil {
		add("search_terms", *fields.SearchTerms)
	}
	if fields.SiteJSON != nil {
		add("site_json", fields.SiteJSON)
	}
	if fields.Geo != nil {
		add("location_lat", fields.Geo.Lat)
		add("location_lng", fields.Geo.Lng)
	}
	add("updated_by", updatedBy)
	add("updated_at", time.Now().UTC())
	set = append(set, "site_version = site_version + 1")

	query := "UPDATE minisites SET " + strings.Join(set, ", ") + " WHERE id = ? AND site_version = ?"
	args = append(args, id, expectedSiteVersion)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update minisite fields: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return fmt.Errorf("minisite %s: %w", id, err)
	}
	return nil
}

// ReserveSlugs claims a public slug pair for the minisite and marks it
// reserved, under the optimistic lock. A pair already claimed by another
// minisite yields ErrSlugConflict.
func (r *SQLMinisiteRepository) ReserveSlugs(ctx context.Context, id string, slugs SlugPair, updatedBy int64, expectedSiteVersion int) error {
	query := `UPDATE minisites
		SET business_slug = ?, location_slug = ?, publish_status = ?, updated_by = ?,
			updated_at = ?, site_version = site_version + 1
		WHERE id = ? AND site_version = ?`
	res, err := r.db.ExecContext(ctx, query,
		slugs.Business, slugs.Location, PublishStatusReserved, updatedBy,
		time.Now().UTC(), id, expectedSiteVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("slugs %s/%s: %w", slugs.Business, slugs.Location, ErrSlugConflict)
		}
		return fmt.Errorf("failed to reserve slugs: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return fmt.Errorf("minisite %s: %w", id, err)
	}
	return nil
}

// requireRowAffected maps a zero affected-row count on a conditional update
// to ErrOptimisticLock.
func requireRowAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// buildSearchTerms derives the normalized searchable text for a minisite.
func buildSearchTerms(m *Minisite) string {
	parts := []string{m.Name, m.City, m.Industry, m.Palette, m.Title}
	return strings.TrimSpace(strings.ToLower(strings.Join(parts, " ")))
}
