package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"minisite-manager/internal/cache"
	"minisite-manager/internal/data"
	"minisite-manager/internal/logger"

	"github.com/jmoiron/sqlx/types"
)

// Defaults applied to a freshly created minisite when the command leaves
// the corresponding field empty.
const (
	defaultSiteTemplate  = "v2025"
	defaultPalette       = "blue"
	defaultIndustry      = "services"
	defaultLocale        = "en-US"
	defaultSchemaVersion = 1
)

// CreateMinisiteCommand creates a new minisite in draft state together with
// its initial version.
type CreateMinisiteCommand struct {
	UserID        int64
	Title         string
	Name          string
	City          string
	Region        string
	CountryCode   string
	PostalCode    string
	SiteTemplate  string
	Palette       string
	Industry      string
	DefaultLocale string
	SiteJSON      types.JSONText
	Geo           *data.GeoPoint
}

// MinisiteService provides the management operations around the versioning
// core: creating minisites, reserving public slugs, listing, and the
// cache-fronted public read path.
type MinisiteService struct {
	store data.Store
	cache *cache.Cache
	log   logger.Logger
}

// NewMinisiteService creates a new MinisiteService with the given
// dependencies.
func NewMinisiteService(store data.Store, c *cache.Cache, log logger.Logger) *MinisiteService {
	return &MinisiteService{store: store, cache: c, log: log}
}

// CreateMinisite inserts a new draft minisite under a temporary slug and
// records version 1 as its first draft, in one transaction.
func (s *MinisiteService) CreateMinisite(ctx context.Context, cmd CreateMinisiteCommand) (*data.Minisite, *data.Version, error) {
	var problems []string
	if cmd.UserID == 0 {
		problems = append(problems, "user id is required")
	}
	if cmd.Name == "" {
		problems = append(problems, "business name is required")
	}
	if len(problems) > 0 {
		return nil, nil, &ValidationError{Problems: problems}
	}

	siteJSON := cmd.SiteJSON
	if len(siteJSON) == 0 {
		siteJSON = types.JSONText("{}")
	} else if !json.Valid(siteJSON) {
		return nil, nil, validationError("site json is not valid JSON")
	}

	id := data.NewMinisiteID()
	now := time.Now().UTC()
	minisite := &data.Minisite{
		ID:           id,
		Slug:         data.TempSlug(id),
		BusinessSlug: "draft",
		LocationSlug: id,

		Title:         cmd.Title,
		Name:          cmd.Name,
		City:          cmd.City,
		Region:        cmd.Region,
		CountryCode:   cmd.CountryCode,
		PostalCode:    cmd.PostalCode,
		SiteTemplate:  orDefault(cmd.SiteTemplate, defaultSiteTemplate),
		Palette:       orDefault(cmd.Palette, defaultPalette),
		Industry:      orDefault(cmd.Industry, defaultIndustry),
		DefaultLocale: orDefault(cmd.DefaultLocale, defaultLocale),
		SchemaVersion: defaultSchemaVersion,
		SiteJSON:      siteJSON,
		SiteVersion:   1,
		Status:        data.StatusDraft,
		PublishStatus: data.PublishStatusDraft,
		Geo:           cmd.Geo,

		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: cmd.UserID,
		UpdatedBy: cmd.UserID,
	}

	var initial *data.Version
	err := s.store.InTx(ctx, func(tx data.Store) error {
		inserted, err := tx.Minisites().Insert(ctx, minisite)
		if err != nil {
			return err
		}
		minisite = inserted

		version := &data.Version{
			MinisiteID:    minisite.ID,
			VersionNumber: 1,
			Status:        data.VersionStatusDraft,
			Label:         "Initial draft",
			CreatedBy:     cmd.UserID,
			CreatedAt:     now,
		}
		version.SnapshotFrom(minisite)

		initial, err = tx.Versions().Save(ctx, version)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.With(map[string]interface{}{"minisite_id": minisite.ID}).Info("Minisite created")
	return minisite, initial, nil
}

// GetMinisite loads a minisite by id.
func (s *MinisiteService) GetMinisite(ctx context.Context, id string) (*data.Minisite, error) {
	if id == "" {
		return nil, validationError("minisite id is required")
	}
	return s.store.Minisites().FindByID(ctx, id)
}

// ListMinisites returns a page of minisites owned by the user, newest
// update first, with the owner's total count.
func (s *MinisiteService) ListMinisites(ctx context.Context, userID int64, limit, offset int) ([]*data.Minisite, int, error) {
	if userID == 0 {
		return nil, 0, validationError("user id is required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	sites, err := s.store.Minisites().ListByOwner(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Minisites().CountByOwner(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return sites, total, nil
}

// ReserveSlugs claims the public slug pair for a minisite ahead of its
// first publish and marks the record reserved.
func (s *MinisiteService) ReserveSlugs(ctx context.Context, minisiteID string, slugs data.SlugPair, userID int64) (*data.Minisite, error) {
	var problems []string
	if minisiteID == "" {
		problems = append(problems, "minisite id is required")
	}
	if slugs.Business == "" || slugs.Location == "" {
		problems = append(problems, "business and location slugs are required")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	var fresh *data.Minisite
	err := s.store.InTx(ctx, func(tx data.Store) error {
		minisite, err := tx.Minisites().FindByID(ctx, minisiteID)
		if err != nil {
			return err
		}
		if err := tx.Minisites().ReserveSlugs(ctx, minisiteID, slugs, userID, minisite.SiteVersion); err != nil {
			return err
		}
		fresh, err = tx.Minisites().FindByID(ctx, minisiteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// UpdateProfile applies field-level changes directly to the live
// projection. The caller supplies the site_version it read; a concurrent
// writer surfaces as data.ErrOptimisticLock and the caller re-reads and
// retries. Intended for minisites that have not been published yet, where
// the projection is the working copy.
func (s *MinisiteService) UpdateProfile(ctx context.Context, minisiteID string, fields data.FieldUpdates, userID int64, expectedSiteVersion int) (*data.Minisite, error) {
	var problems []string
	if minisiteID == "" {
		problems = append(problems, "minisite id is required")
	}
	if expectedSiteVersion <= 0 {
		problems = append(problems, "expected site version is required")
	}
	if len(fields.SiteJSON) > 0 && !json.Valid(fields.SiteJSON) {
		problems = append(problems, "site json is not valid JSON")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	var fresh *data.Minisite
	err := s.store.InTx(ctx, func(tx data.Store) error {
		if err := tx.Minisites().UpdateFields(ctx, minisiteID, fields, userID, expectedSiteVersion); err != nil {
			return err
		}
		var err error
		fresh, err = tx.Minisites().FindByID(ctx, minisiteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// GetPublishedBySlugs resolves a published minisite by its public slug
// pair, serving from the read cache when possible. Unpublished minisites
// are reported as not found on this path.
func (s *MinisiteService) GetPublishedBySlugs(ctx context.Context, slugs data.SlugPair) (*data.Minisite, error) {
	key := cache.SlugKey(slugs.Business, slugs.Location)
	if s.cache != nil {
		cached, err := s.cache.Get(key)
		if err != nil {
			s.log.Error(err, "Minisite cache read failed")
		} else if cached != nil {
			var m data.Minisite
			if err := json.Unmarshal(cached, &m); err == nil {
				return &m, nil
			}
			// A corrupt entry is dropped and served from the store.
			_ = s.cache.Delete(key)
		}
	}

	minisite, err := s.store.Minisites().FindBySlugs(ctx, slugs)
	if err != nil {
		return nil, err
	}
	if minisite.Status != data.StatusPublished {
		return nil, fmt.Errorf("minisite %s/%s is not published: %w",
			slugs.Business, slugs.Location, data.ErrNotFound)
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(minisite); err == nil {
			if err := s.cache.Set(key, encoded); err != nil {
				s.log.Error(err, "Minisite cache write failed")
			}
		}
	}
	return minisite, nil
}

// InvalidatePublished drops the cached copy of a minisite's public
// document. Called after a publish so the next public read sees the new
// live version.
func (s *MinisiteService) InvalidatePublished(slugs data.SlugPair) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(cache.SlugKey(slugs.Business, slugs.Location)); err != nil {
		s.log.Error(err, "Minisite cache invalidation failed")
	}
}

// MergeProfile overlays the snapshot's non-empty content fields on a copy
// of the live projection, producing the values an edit form should show.
func MergeProfile(m *data.Minisite, v *data.Version) *data.Minisite {
	merged := *m
	if v == nil {
		return &merged
	}
	overlay := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	overlay(&merged.Title, v.Title)
	overlay(&merged.Name, v.Name)
	overlay(&merged.City, v.City)
	overlay(&merged.Region, v.Region)
	overlay(&merged.CountryCode, v.CountryCode)
	overlay(&merged.PostalCode, v.PostalCode)
	overlay(&merged.SiteTemplate, v.SiteTemplate)
	overlay(&merged.Palette, v.Palette)
	overlay(&merged.Industry, v.Industry)
	overlay(&merged.DefaultLocale, v.DefaultLocale)
	overlay(&merged.SearchTerms, v.SearchTerms)
	if len(v.SiteJSON) > 0 {
		merged.SiteJSON = v.SiteJSON
	}
	if v.Geo != nil {
		geo := *v.Geo
		merged.Geo = &geo
	}
	return &merged
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
