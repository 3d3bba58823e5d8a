package handler

import (
	"errors"
	"net/http"
	"strconv"

	"minisite-manager/internal/data"
	"minisite-manager/internal/logger"
	"minisite-manager/internal/middleware"
	"minisite-manager/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx/types"
)

// VersionHandler holds the dependencies for the version workflow handlers.
type VersionHandler struct {
	versions  *service.VersionService
	minisites *service.MinisiteService
	log       logger.Logger
}

// NewVersionHandler creates a new VersionHandler with the given dependencies.
func NewVersionHandler(vs *service.VersionService, ms *service.MinisiteService, log logger.Logger) *VersionHandler {
	return &VersionHandler{versions: vs, minisites: ms, log: log}
}

// createDraftRequest is the body of POST .../versions. Optional members
// override the corresponding live-projection fields in the new snapshot.
type createDraftRequest struct {
	Label   string `json:"label"`
	Comment string `json:"comment"`

	SiteJSON      types.JSONText `json:"site_json"`
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
	Geo           *geoResponse   `json:"geo"`
}

type rollbackRequest struct {
	SourceVersionID int64  `json:"source_version_id"`
	Label           string `json:"label"`
	Comment         string `json:"comment"`
}

// createDraftHandler appends a new draft version to the minisite.
func (h *VersionHandler) createDraftHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	minisiteID := chi.URLParam(r, "minisiteID")
	userInfo := middleware.GetUserInfo(r.Context())

	var req createDraftRequest
	if appErr := decode(r, &req); appErr != nil {
		return appErr
	}

	cmd := service.CreateDraftCommand{
		MinisiteID: minisiteID,
		UserID:     userInfo.ID,
		Label:      req.Label,
		Comment:    req.Comment,
		Content: service.DraftContent{
			SiteJSON:      req.SiteJSON,
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
		},
	}
	if req.Geo != nil {
		cmd.Content.Geo = &data.GeoPoint{Lat: req.Geo.Lat, Lng: req.Geo.Lng}
	}

	version, err := h.versions.CreateDraft(r.Context(), cmd)
	if err != nil {
		return middleware.Fail(err, "Failed to create draft")
	}
	return respond(w, http.StatusCreated, toVersionResponse(version))
}

// listHandler returns a page of the minisite's version history.
func (h *VersionHandler) listHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	cmd := service.ListVersionsCommand{
		MinisiteID: chi.URLParam(r, "minisiteID"),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	}
	versions, total, err := h.versions.ListVersions(r.Context(), cmd)
	if err != nil {
		return middleware.Fail(err, "Failed to list versions")
	}
	return respond(w, http.StatusOK, map[string]interface{}{
		"versions": toVersionResponses(versions),
		"total":    total,
	})
}

// getHandler returns a single version of the minisite.
func (h *VersionHandler) getHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	versionID, appErr := versionParam(r)
	if appErr != nil {
		return appErr
	}
	version, err := h.versions.GetVersion(r.Context(), chi.URLParam(r, "minisiteID"), versionID)
	if err != nil {
		return middleware.Fail(err, "Version not found")
	}
	return respond(w, http.StatusOK, toVersionResponse(version))
}

// publishHandler makes the target version live and drops the cached public
// document so the next read sees the new content.
func (h *VersionHandler) publishHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	versionID, appErr := versionParam(r)
	if appErr != nil {
		return appErr
	}
	userInfo := middleware.GetUserInfo(r.Context())

	minisite, err := h.versions.Publish(r.Context(), service.PublishVersionCommand{
		MinisiteID: chi.URLParam(r, "minisiteID"),
		VersionID:  versionID,
		UserID:     userInfo.ID,
	})
	if err != nil {
		return middleware.Fail(err, "Failed to publish version")
	}
	h.minisites.InvalidatePublished(minisite.Slugs())
	return respond(w, http.StatusOK, toMinisiteResponse(minisite))
}

// rollbackHandler stages a draft copied from an earlier version.
func (h *VersionHandler) rollbackHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	userInfo := middleware.GetUserInfo(r.Context())

	var req rollbackRequest
	if appErr := decode(r, &req); appErr != nil {
		return appErr
	}
	version, err := h.versions.Rollback(r.Context(), service.RollbackVersionCommand{
		MinisiteID:      chi.URLParam(r, "minisiteID"),
		SourceVersionID: req.SourceVersionID,
		UserID:          userInfo.ID,
		Label:           req.Label,
		Comment:         req.Comment,
	})
	if err != nil {
		return middleware.Fail(err, "Failed to create rollback draft")
	}
	return respond(w, http.StatusCreated, toVersionResponse(version))
}

// latestDraftHandler returns the newest draft, creating one from the newest
// published version when necessary.
func (h *VersionHandler) latestDraftHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	userInfo := middleware.GetUserInfo(r.Context())
	draft, err := h.versions.LatestDraftForEditing(r.Context(), chi.URLParam(r, "minisiteID"), userInfo.ID)
	if err != nil {
		return middleware.Fail(err, "Failed to resolve latest draft")
	}
	return respond(w, http.StatusOK, toVersionResponse(draft))
}

func versionParam(r *http.Request) (int64, *middleware.AppError) {
	raw := chi.URLParam(r, "versionID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &middleware.AppError{
			Error:   errors.New("invalid version id: " + raw),
			Message: "Invalid version id",
			Code:    http.StatusBadRequest,
		}
	}
	return id, nil
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
