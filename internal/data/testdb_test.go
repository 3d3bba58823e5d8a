//go:build integration

package data

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "github.com/mattn/go-sqlite3"
)

// setupStoreTest creates a new in-memory SQLite database with the minisite
// schema and returns a store over it plus a teardown function to be
// deferred.
func setupStoreTest(t *testing.T) (*SQLStore, func()) {
	t.Helper()

	// Use a non-shared in-memory database for complete test isolation.
	dsn := "file::memory:"
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to sqlite test database: %v", err)
	}

	// Enable foreign keys
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	schema := `
	CREATE TABLE minisites (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL DEFAULT '',
		business_slug TEXT NOT NULL DEFAULT '',
		location_slug TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		country_code TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		location_lat REAL,
		location_lng REAL,
		site_template TEXT NOT NULL DEFAULT 'v2025',
		palette TEXT NOT NULL DEFAULT 'blue',
		industry TEXT NOT NULL DEFAULT 'services',
		default_locale TEXT NOT NULL DEFAULT 'en-US',
		schema_version INTEGER NOT NULL DEFAULT 1,
		site_json TEXT NOT NULL,
		search_terms TEXT NOT NULL DEFAULT '',
		site_version INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'draft',
		publish_status TEXT NOT NULL DEFAULT 'draft',
		current_version_id INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		published_at DATETIME,
		created_by INTEGER NOT NULL DEFAULT 0,
		updated_by INTEGER NOT NULL DEFAULT 0,
		UNIQUE (business_slug, location_slug)
	);

	CREATE TABLE minisite_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		minisite_id TEXT NOT NULL,
		version_number INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		label TEXT NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		created_by INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		published_at DATETIME,
		source_version_id INTEGER,
		business_slug TEXT NOT NULL DEFAULT '',
		location_slug TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		country_code TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		location_lat REAL,
		location_lng REAL,
		site_template TEXT NOT NULL DEFAULT '',
		palette TEXT NOT NULL DEFAULT '',
		industry TEXT NOT NULL DEFAULT '',
		default_locale TEXT NOT NULL DEFAULT '',
		schema_version INTEGER NOT NULL DEFAULT 1,
		site_version INTEGER NOT NULL DEFAULT 1,
		site_json TEXT NOT NULL,
		search_terms TEXT NOT NULL DEFAULT '',
		UNIQUE (minisite_id, version_number),
		FOREIGN KEY (minisite_id) REFERENCES minisites(id)
	);`
	db.MustExec(schema)

	store := NewSQLStore(db)

	teardown := func() {
		db.Close()
	}

	return store, teardown
}

// newTestMinisite builds an unsaved draft minisite with sensible defaults.
func newTestMinisite(userID int64) *Minisite {
	id := NewMinisiteID()
	now := time.Now().UTC().Truncate(time.Second)
	return &Minisite{
		ID:            id,
		Slug:          TempSlug(id),
		BusinessSlug:  "draft",
		LocationSlug:  id,
		Title:         "Coffee Corner",
		Name:          "Coffee Corner Ltd",
		City:          "Lisbon",
		CountryCode:   "PT",
		SiteTemplate:  "v2025",
		Palette:       "blue",
		Industry:      "services",
		DefaultLocale: "en-US",
		SchemaVersion: 1,
		SiteJSON:      types.JSONText(`{"hero":{"heading":"Welcome"}}`),
		SiteVersion:   1,
		Status:        StatusDraft,
		PublishStatus: PublishStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     userID,
		UpdatedBy:     userID,
	}
}

// newTestVersion builds an unsaved draft version snapshotting the minisite.
func newTestVersion(m *Minisite, number int) *Version {
	v := &Version{
		MinisiteID:    m.ID,
		VersionNumber: number,
		Status:        VersionStatusDraft,
		Label:         "Test draft",
		CreatedBy:     m.CreatedBy,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	v.SnapshotFrom(m)
	return v
}
