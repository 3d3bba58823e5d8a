package data

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Minisite lifecycle status values.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Publish status values, used during slug reservation and go-live.
const (
	PublishStatusDraft     = "draft"
	PublishStatusReserved  = "reserved"
	PublishStatusPublished = "published"
)

// Version status values. A version's status is a historical label: once a
// version has been published it keeps that label even after a newer version
// goes live. Liveness is tracked by Minisite.CurrentVersionID alone.
const (
	VersionStatusDraft     = "draft"
	VersionStatusPublished = "published"
)

// GeoPoint is the geographic location of a minisite. The repositories decide
// the physical encoding (two nullable columns); callers only see this type.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// SlugPair is the (business, location) tuple that identifies a minisite's
// public URL. Unique across all minisites.
type SlugPair struct {
	Business string
	Location string
}

// Minisite is the live projection of a business microsite: the denormalized
// copy of whichever version is currently published (or of the latest draft
// while the minisite has never been published).
type Minisite struct {
	ID           string `db:"id"`
	Slug         string `db:"slug"`
	BusinessSlug string `db:"business_slug"`
	LocationSlug string `db:"location_slug"`

	Title         string         `db:"title"`
	Name          string         `db:"name"`
	City          string         `db:"city"`
	Region        string         `db:"region"`
	CountryCode   string         `db:"country_code"`
	PostalCode    string         `db:"postal_code"`
	SiteTemplate  string         `db:"site_template"`
	Palette       string         `db:"palette"`
	Industry      string         `db:"industry"`
	DefaultLocale string         `db:"default_locale"`
	SchemaVersion int            `db:"schema_version"`
	SiteJSON      types.JSONText `db:"site_json"`
	SearchTerms   string         `db:"search_terms"`

	// SiteVersion is the optimistic-concurrency token. Every write to the
	// live projection must supply the value it read; the repository
	// increments it atomically.
	SiteVersion int `db:"site_version"`

	Status        string `db:"status"`
	PublishStatus string `db:"publish_status"`

	// CurrentVersionID points at the Version row that is live. Nil until the
	// first publish.
	CurrentVersionID *int64 `db:"current_version_id"`

	Geo *GeoPoint `db:"-"`

	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	PublishedAt *time.Time `db:"published_at"`
	CreatedBy   int64      `db:"created_by"`
	UpdatedBy   int64      `db:"updated_by"`
}

// Slugs returns the minisite's slug pair.
func (m *Minisite) Slugs() SlugPair {
	return SlugPair{Business: m.BusinessSlug, Location: m.LocationSlug}
}

// HasBeenPublished reports whether any version of this minisite has ever
// gone live.
func (m *Minisite) HasBeenPublished() bool {
	return m.CurrentVersionID != nil
}

// Version is an immutable, fully self-contained snapshot of a minisite's
// content. Rows are only ever inserted, except for the draft -> published
// status transition which stamps PublishedAt.
type Version struct {
	ID            int64      `db:"id"`
	MinisiteID    string     `db:"minisite_id"`
	VersionNumber int        `db:"version_number"`
	Status        string     `db:"status"`
	Label         string     `db:"label"`
	Comment       string     `db:"comment"`
	CreatedBy     int64      `db:"created_by"`
	CreatedAt     time.Time  `db:"created_at"`
	PublishedAt   *time.Time `db:"published_at"`

	// SourceVersionID is set exactly when this version was produced by
	// copying content forward from another version (rollback or a draft
	// copy); it points at the version the content came from.
	SourceVersionID *int64 `db:"source_version_id"`

	// Full content snapshot, mirroring the Minisite fields.
	BusinessSlug  string         `db:"business_slug"`
	LocationSlug  string         `db:"location_slug"`
	Title         string         `db:"title"`
	Name          string         `db:"name"`
	City          string         `db:"city"`
	Region        string         `db:"region"`
	CountryCode   string         `db:"country_code"`
	PostalCode    string         `db:"postal_code"`
	SiteTemplate  string         `db:"site_template"`
	Palette       string         `db:"palette"`
	Industry      string         `db:"industry"`
	DefaultLocale string         `db:"default_locale"`
	SchemaVersion int            `db:"schema_version"`
	SiteVersion   int            `db:"site_version"`
	SiteJSON      types.JSONText `db:"site_json"`
	SearchTerms   string         `db:"search_terms"`

	Geo *GeoPoint `db:"-"`
}

// Slugs returns the snapshot's slug pair.
func (v *Version) Slugs() SlugPair {
	return SlugPair{Business: v.BusinessSlug, Location: v.LocationSlug}
}

func (v *Version) IsDraft() bool {
	return v.Status == VersionStatusDraft
}

func (v *Version) IsPublished() bool {
	return v.Status == VersionStatusPublished
}

// IsRollback reports whether this version was created by a rollback.
func (v *Version) IsRollback() bool {
	return v.SourceVersionID != nil
}

// ApplyTo copies the snapshot's content fields onto the live projection.
// Identity, audit and concurrency fields are left alone.
func (v *Version) ApplyTo(m *Minisite) {
	m.Title = v.Title
	m.Name = v.Name
	m.City = v.City
	m.Region = v.Region
	m.CountryCode = v.CountryCode
	m.PostalCode = v.PostalCode
	m.SiteTemplate = v.SiteTemplate
	m.Palette = v.Palette
	m.Industry = v.Industry
	m.DefaultLocale = v.DefaultLocale
	m.SchemaVersion = v.SchemaVersion
	m.SiteJSON = v.SiteJSON
	m.SearchTerms = v.SearchTerms
	if v.Geo != nil {
		geo := *v.Geo
		m.Geo = &geo
	} else {
		m.Geo = nil
	}
}

// SnapshotFrom fills the snapshot's content fields from the live projection.
func (v *Version) SnapshotFrom(m *Minisite) {
	v.BusinessSlug = m.BusinessSlug
	v.LocationSlug = m.LocationSlug
	v.Title = m.Title
	v.Name = m.Name
	v.City = m.City
	v.Region = m.Region
	v.CountryCode = m.CountryCode
	v.PostalCode = m.PostalCode
	v.SiteTemplate = m.SiteTemplate
	v.Palette = m.Palette
	v.Industry = m.Industry
	v.DefaultLocale = m.DefaultLocale
	v.SchemaVersion = m.SchemaVersion
	v.SiteVersion = m.SiteVersion
	v.SiteJSON = m.SiteJSON
	v.SearchTerms = m.SearchTerms
	if m.Geo != nil {
		geo := *m.Geo
		v.Geo = &geo
	} else {
		v.Geo = nil
	}
}

// CopyContentFrom copies the full content snapshot from another version,
// leaving identity, numbering and audit fields alone. Used by rollback and
// draft-copy creation.
func (v *Version) CopyContentFrom(src *Version) {
	v.BusinessSlug = src.BusinessSlug
	v.LocationSlug = src.LocationSlug
	v.Title = src.Title
	v.Name = src.Name
	v.City = src.City
	v.Region = src.Region
	v.CountryCode = src.CountryCode
	v.PostalCode = src.PostalCode
	v.SiteTemplate = src.SiteTemplate
	v.Palette = src.Palette
	v.Industry = src.Industry
	v.DefaultLocale = src.DefaultLocale
	v.SchemaVersion = src.SchemaVersion
	v.SiteVersion = src.SiteVersion
	v.SiteJSON = append(types.JSONText(nil), src.SiteJSON...)
	v.SearchTerms = src.SearchTerms
	if src.Geo != nil {
		geo := *src.Geo
		v.Geo = &geo
	} else {
		v.Geo = nil
	}
}
