package handler

import (
	"encoding/json"
	"time"

	"minisite-manager/internal/data"
)

// geoResponse is the wire form of a geographic point.
type geoResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// minisiteResponse is the wire form of the live projection.
type minisiteResponse struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	BusinessSlug string `json:"business_slug"`
	LocationSlug string `json:"location_slug"`

	Title         string          `json:"title"`
	Name          string          `json:"name"`
	City          string          `json:"city"`
	Region        string          `json:"region"`
	CountryCode   string          `json:"country_code"`
	PostalCode    string          `json:"postal_code"`
	SiteTemplate  string          `json:"site_template"`
	Palette       string          `json:"palette"`
	Industry      string          `json:"industry"`
	DefaultLocale string          `json:"default_locale"`
	SchemaVersion int             `json:"schema_version"`
	SiteJSON      json.RawMessage `json:"site_json"`
	SearchTerms   string          `json:"search_terms"`

	SiteVersion      int          `json:"site_version"`
	Status           string       `json:"status"`
	PublishStatus    string       `json:"publish_status"`
	CurrentVersionID *int64       `json:"current_version_id"`
	Geo              *geoResponse `json:"geo"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedBy   int64      `json:"created_by"`
	UpdatedBy   int64      `json:"updated_by"`
}

// versionResponse is the wire form of a version snapshot.
type versionResponse struct {
	ID              int64      `json:"id"`
	MinisiteID      string     `json:"minisite_id"`
	VersionNumber   int        `json:"version_number"`
	Status          string     `json:"status"`
	Label           string     `json:"label"`
	Comment         string     `json:"comment"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	PublishedAt     *time.Time `json:"published_at"`
	SourceVersionID *int64     `json:"source_version_id"`

	Title         string          `json:"title"`
	Name          string          `json:"name"`
	City          string          `json:"city"`
	Region        string          `json:"region"`
	CountryCode   string          `json:"country_code"`
	PostalCode    string          `json:"postal_code"`
	SiteTemplate  string          `json:"site_template"`
	Palette       string          `json:"palette"`
	Industry      string          `json:"industry"`
	DefaultLocale string          `json:"default_locale"`
	SchemaVersion int             `json:"schema_version"`
	SiteJSON      json.RawMessage `json:"site_json"`
	SearchTerms   string          `json:"search_terms"`
	Geo           *geoResponse    `json:"geo"`
}

func toGeoResponse(g *data.GeoPoint) *geoResponse {
	if g == nil {
		return nil
	}
	return &geoResponse{Lat: g.Lat, Lng: g.Lng}
}

func toMinisiteResponse(m *data.Minisite) *minisiteResponse {
	return &minisiteResponse{
		ID:               m.ID,
		Slug:             m.Slug,
		BusinessSlug:     m.BusinessSlug,
		LocationSlug:     m.LocationSlug,
		Title:            m.Title,
		Name:             m.Name,
		City:             m.City,
		Region:           m.Region,
		CountryCode:      m.CountryCode,
		PostalCode:       m.PostalCode,
		SiteTemplate:     m.SiteTemplate,
		Palette:          m.Palette,
		Industry:         m.Industry,
		DefaultLocale:    m.DefaultLocale,
		SchemaVersion:    m.SchemaVersion,
		SiteJSON:         json.RawMessage(m.SiteJSON),
		SearchTerms:      m.SearchTerms,
		SiteVersion:      m.SiteVersion,
		Status:           m.Status,
		PublishStatus:    m.PublishStatus,
		CurrentVersionID: m.CurrentVersionID,
		Geo:              toGeoResponse(m.Geo),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		PublishedAt:      m.PublishedAt,
		CreatedBy:        m.CreatedBy,
		UpdatedBy:        m.UpdatedBy,
	}
}

func toVersionResponse(v *data.Version) *versionResponse {
	return &versionResponse{
		ID:              v.ID,
		MinisiteID:      v.MinisiteID,
		VersionNumber:   v.VersionNumber,
		Status:          v.Status,
		Label:           v.Label,
		Comment:         v.Comment,
		CreatedBy:       v.CreatedBy,
		CreatedAt:       v.CreatedAt,
		PublishedAt:     v.PublishedAt,
		SourceVersionID: v.SourceVersionID,
		Title:           v.Title,
		Name:            v.Name,
		City:            v.City,
		Region:          v.Region,
		CountryCode:     v.CountryCode,
		PostalCode:      v.PostalCode,
		SiteTemplate:    v.SiteTemplate,
		Palette:         v.Palette,
		Industry:        v.Industry,
		DefaultLocale:   v.DefaultLocale,
		SchemaVersion:   v.SchemaVersion,
		SiteJSON:        json.RawMessage(v.SiteJSON),
		SearchTerms:     v.SearchTerms,
		Geo:             toGeoResponse(v.Geo),
	}
}

func toVersionResponses(versions []*data.Version) []*versionResponse {
	out := make([]*versionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, toVersionResponse(v))
	}
	return out
}

func toMinisiteResponses(sites []*data.Minisite) []*minisiteResponse {
	out := make([]*minisiteResponse, 0, len(sites))
	for _, m := range sites {
		out = append(out, toMinisiteResponse(m))
	}
	return out
}
