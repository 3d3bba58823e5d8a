package handler

import (
	"net/http"

	"minisite-manager/internal/data"
	"minisite-manager/internal/logger"
	"minisite-manager/internal/middleware"
	"minisite-manager/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx/types"
)

// MinisiteHandler holds the dependencies for the minisite management
// handlers.
type MinisiteHandler struct {
	minisites *service.MinisiteService
	versions  *service.VersionService
	log       logger.Logger
}

// NewMinisiteHandler creates a new MinisiteHandler with the given
// dependencies.
func NewMinisiteHandler(ms *service.MinisiteService, vs *service.VersionService, log logger.Logger) *MinisiteHandler {
	return &MinisiteHandler{minisites: ms, versions: vs, log: log}
}

type createMinisiteRequest struct {
	Title         string         `json:"title"`
	Name          string         `json:"name"`
	City          string         `json:"city"`
	Region        string         `json:"region"`
	CountryCode   string         `json:"country_code"`
	PostalCode    string         `json:"postal_code"`
	SiteTemplate  string         `json:"site_template"`
	Palette       string         `json:"palette"`
	Industry      string         `json:"industry"`
	DefaultLocale string         `json:"default_locale"`
	SiteJSON      types.JSONText `json:"site_json"`
	Geo           *geoResponse   `json:"geo"`
}

type reserveSlugsRequest struct {
	BusinessSlug string `json:"business_slug"`
	LocationSlug string `json:"location_slug"`
}

// createHandler creates a new draft minisite with its initial version.
func (h *MinisiteHandler) createHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	userInfo := middleware.GetUserInfo(r.Context())

	var req createMinisiteRequest
	if appErr := decode(r, &req); appErr != nil {
		return appErr
	}

	cmd := service.CreateMinisiteCommand{
		UserID:        userInfo.ID,
		Title:         req.Title,
		Name:          req.Name,
		City:          req.City,
		Region:        req.Region,
		CountryCode:   req.CountryCode,
		PostalCode:    req.PostalCode,
		SiteTemplate:  req.SiteTemplate,
		Palette:       req.Palette,
		Industry:      req.Industry,
		DefaultLocale: req.DefaultLocale,
		SiteJSON:      req.SiteJSON,
	}
	if req.Geo != nil {
		cmd.Geo = &data.GeoPoint{Lat: req.Geo.Lat, Lng: req.Geo.Lng}
	}

	minisite, initial, err := h.minisites.CreateMinisite(r.Context(), cmd)
	if err != nil {
		return middleware.Fail(err, "Failed to create minisite")
	}
	return respond(w, http.StatusCreated, map[string]interface{}{
		"minisite": toMinisiteResponse(minisite),
		"version":  toVersionResponse(initial),
	})
}

// listHandler returns a page of the caller's minisites.
func (h *MinisiteHandler) listHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	userInfo := middleware.GetUserInfo(r.Context())

	sites, total, err := h.minisites.ListMinisites(r.Context(), userInfo.ID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		return middleware.Fail(err, "Failed to list minisites")
	}
	return respond(w, http.StatusOK, map[string]interface{}{
		"minisites": toMinisiteResponses(sites),
		"total":     total,
	})
}

// getHandler returns one minisite's live projection.
func (h *MinisiteHandler) getHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	minisite, err := h.minisites.GetMinisite(r.Context(), chi.URLParam(r, "minisiteID"))
	if err != nil {
		return middleware.Fail(err, "Minisite not found")
	}
	return respond(w, http.StatusOK, toMinisiteResponse(minisite))
}

// reserveSlugsHandler claims the public slug pair ahead of first publish.
func (h *MinisiteHandler) reserveSlugsHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	userInfo := middleware.GetUserInfo(r.Context())

	var req reserveSlugsRequest
	if appErr := decode(r, &req); appErr != nil {
		return appErr
	}
	minisite, err := h.minisites.ReserveSlugs(r.Context(), chi.URLParam(r, "minisiteID"),
		data.SlugPair{Business: req.BusinessSlug, Location: req.LocationSlug}, userInfo.ID)
	if err != nil {
		return middleware.Fail(err, "Failed to reserve slugs")
	}
	return respond(w, http.StatusOK, toMinisiteResponse(minisite))
}

type updateProfileRequest struct {
	ExpectedSiteVersion int `json:"expected_site_version"`

	Title         *string        `json:"title"`
	Name          *string        `json:"name"`
	City          *string        `json:"city"`
	Region        *string        `json:"region"`
	CountryCode   *string        `json:"country_code"`
	PostalCode    *string        `json:"postal_code"`
	SiteTemplate  *string        `json:"site_template"`
	Palette       *string        `json:"palette"`
	Industry      *string        `json:"industry"`
	DefaultLocale *string        `json:"default_locale"`
	SearchTerms   *string        `json:"search_terms"`
	SiteJSON      types.JSONText `json:"site_json"`
	Geo           *geoResponse   `json:"geo"`
}

// updateProfileHandler patches the live projection under the caller's
// optimistic-lock token.
func (h *MinisiteHandler) updateProfileHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	userInfo := middleware.GetUserInfo(r.Context())

	var req updateProfileRequest
	if appErr := decode(r, &req); appErr != nil {
		return appErr
	}
	fields := data.FieldUpdates{
		Title:         req.Title,
		Name:          req.Name,
		City:          req.City,
		Region:        req.Region,
		CountryCode:   req.CountryCode,
		PostalCode:    req.PostalCode,
		SiteTemplate:  req.SiteTemplate,
		Palette:       req.Palette,
		Industry:      req.Industry,
		DefaultLocale: req.DefaultLocale,
		SearchTerms:   req.SearchTerms,
		SiteJSON:      req.SiteJSON,
	}
	if req.Geo != nil {
		fields.Geo = &data.GeoPoint{Lat: req.Geo.Lat, Lng: req.Geo.Lng}
	}

	minisite, err := h.minisites.UpdateProfile(r.Context(), chi.URLParam(r, "minisiteID"),
		fields, userInfo.ID, req.ExpectedSiteVersion)
	if err != nil {
		return middleware.Fail(err, "Failed to update minisite")
	}
	return respond(w, http.StatusOK, toMinisiteResponse(minisite))
}

// editHandler assembles what an edit form needs: the live projection, the
// version being edited, and the merged profile the form should display.
// With no version_id query parameter the newest draft is used, creating one
// from the newest published version when necessary.
func (h *MinisiteHandler) editHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	minisiteID := chi.URLParam(r, "minisiteID")
	userInfo := middleware.GetUserInfo(r.Context())

	minisite, err := h.minisites.GetMinisite(r.Context(), minisiteID)
	if err != nil {
		return middleware.Fail(err, "Minisite not found")
	}

	var version *data.Version
	if versionID := int64(queryInt(r, "version_id")); versionID > 0 {
		version, err = h.versions.GetVersion(r.Context(), minisiteID, versionID)
	} else {
		version, err = h.versions.LatestDraftForEditing(r.Context(), minisiteID, userInfo.ID)
	}
	if err != nil {
		return middleware.Fail(err, "Failed to resolve editing version")
	}

	profile := service.MergeProfile(minisite, version)
	return respond(w, http.StatusOK, map[string]interface{}{
		"minisite": toMinisiteResponse(minisite),
		"version":  toVersionResponse(version),
		"profile":  toMinisiteResponse(profile),
	})
}

// publicHandler serves a published minisite by its public slug pair.
func (h *MinisiteHandler) publicHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	slugs := data.SlugPair{
		Business: chi.URLParam(r, "businessSlug"),
		Location: chi.URLParam(r, "locationSlug"),
	}
	minisite, err := h.minisites.GetPublishedBySlugs(r.Context(), slugs)
	if err != nil {
		return middleware.Fail(err, "Minisite not found")
	}
	return respond(w, http.StatusOK, toMinisiteResponse(minisite))
}
