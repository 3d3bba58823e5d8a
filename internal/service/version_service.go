package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"minisite-manager/internal/data"
	"minisite-manager/internal/logger"

	"github.com/jmoiron/sqlx/types"
)

// DraftContent carries the editable content for a new draft. SiteJSON is
// the full form document; the remaining members override the corresponding
// live-projection fields and fall back to the minisite's current values
// when nil.
type DraftContent struct {
	SiteJSON      types.JSONText
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
	Geo           *data.GeoPoint
}

// CreateDraftCommand captures a new immutable draft of a minisite's content.
type CreateDraftCommand struct {
	MinisiteID string
	UserID     int64
	Label      string
	Comment    string
	Content    DraftContent
}

// PublishVersionCommand makes an existing version the live content of its
// minisite.
type PublishVersionCommand struct {
	MinisiteID string
	VersionID  int64
	UserID     int64
}

// RollbackVersionCommand stages a new draft whose content is copied from an
// earlier version. It does not publish; the caller issues a separate
// publish to make the rollback live.
type RollbackVersionCommand struct {
	MinisiteID      string
	SourceVersionID int64
	UserID          int64
	Label           string
	Comment         string
}

// ListVersionsCommand pages through a minisite's version history.
type ListVersionsCommand struct {
	MinisiteID string
	Limit      int
	Offset     int
}

const defaultPageSize = 50

// VersionService owns the draft/publish/rollback state machine. It is
// stateless between calls; every transition runs inside one database
// transaction obtained from the injected store.
type VersionService struct {
	store data.Store
	log   logger.Logger
}

// NewVersionService creates a new VersionService with the given store.
func NewVersionService(store data.Store, log logger.Logger) *VersionService {
	return &VersionService{store: store, log: log}
}

// CreateDraft appends a new draft version with the supplied content. While
// the minisite has never been published the live projection mirrors the new
// draft, so previews of an unpublished minisite always show its latest
// edit. Once published, the live projection changes only at publish time.
func (s *VersionService) CreateDraft(ctx context.Context, cmd CreateDraftCommand) (*data.Version, error) {
	if err := validateDraftCommand(cmd); err != nil {
		return nil, err
	}

	var created *data.Version
	err := s.store.InTx(ctx, func(tx data.Store) error {
		minisite, err := tx.Minisites().FindByID(ctx, cmd.MinisiteID)
		if err != nil {
			return err
		}

		published, err := tx.Versions().FindPublished(ctx, cmd.MinisiteID)
		if err != nil {
			return err
		}

		number, err := tx.Versions().NextVersionNumber(ctx, cmd.MinisiteID)
		if err != nil {
			return err
		}

		version := &data.Version{
			MinisiteID:    cmd.MinisiteID,
			VersionNumber: number,
			Status:        data.VersionStatusDraft,
			Label:         cmd.Label,
			Comment:       cmd.Comment,
			CreatedBy:     cmd.UserID,
			CreatedAt:     time.Now().UTC(),
		}
		version.SnapshotFrom(minisite)
		applyDraftContent(version, cmd.Content)

		created, err = tx.Versions().Save(ctx, version)
		if err != nil {
			return err
		}

		if published == nil {
			created.ApplyTo(minisite)
			minisite.UpdatedBy = cmd.UserID
			if _, err := tx.Minisites().Save(ctx, minisite, minisite.SiteVersion); err != nil {
				return fmt.Errorf("failed to mirror draft onto unpublished minisite: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.With(map[string]interface{}{
		"minisite_id":    created.MinisiteID,
		"version_number": created.VersionNumber,
	}).Info("Draft version created")
	return created, nil
}

// Publish makes the target version live: the version is stamped published,
// its snapshot is copied onto the live projection and
// Minisite.CurrentVersionID is repointed. The previously live version keeps
// its historical published status; it is not touched. The whole transition
// is one transaction, protected by the projection's optimistic lock.
func (s *VersionService) Publish(ctx context.Context, cmd PublishVersionCommand) (*data.Minisite, error) {
	if cmd.MinisiteID == "" || cmd.VersionID == 0 {
		return nil, validationError("minisite id and version id are required")
	}

	var fresh *data.Minisite
	err := s.store.InTx(ctx, func(tx data.Store) error {
		minisite, err := tx.Minisites().FindByID(ctx, cmd.MinisiteID)
		if err != nil {
			return err
		}

		version, err := tx.Versions().FindByID(ctx, cmd.VersionID)
		if err != nil {
			return err
		}
		if version.MinisiteID != cmd.MinisiteID {
			return fmt.Errorf("version %d does not belong to minisite %s: %w",
				cmd.VersionID, cmd.MinisiteID, data.ErrNotFound)
		}

		// Surfaces ErrDataIntegrity before we touch anything.
		if _, err := tx.Versions().FindPublished(ctx, cmd.MinisiteID); err != nil {
			return err
		}

		now := time.Now().UTC()
		version.Status = data.VersionStatusPublished
		if version.PublishedAt == nil {
			version.PublishedAt = &now
		}
		version, err = tx.Versions().Save(ctx, version)
		if err != nil {
			return err
		}

		version.ApplyTo(minisite)
		minisite.CurrentVersionID = &version.ID
		minisite.Status = data.StatusPublished
		minisite.PublishStatus = data.PublishStatusPublished
		if minisite.PublishedAt == nil {
			minisite.PublishedAt = &now
		}
		minisite.UpdatedBy = cmd.UserID

		fresh, err = tx.Minisites().Save(ctx, minisite, minisite.SiteVersion)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.With(map[string]interface{}{
		"minisite_id": fresh.ID,
		"version_id":  cmd.VersionID,
	}).Info("Version published")
	return fresh, nil
}

// Rollback stages a new draft whose content is a full copy of the source
// version's snapshot. The source version itself is untouched and the live
// projection does not change; publishing the returned draft is a separate
// transition.
func (s *VersionService) Rollback(ctx context.Context, cmd RollbackVersionCommand) (*data.Version, error) {
	if cmd.MinisiteID == "" || cmd.SourceVersionID == 0 {
		return nil, validationError("minisite id and source version id are required")
	}

	var created *data.Version
	err := s.store.InTx(ctx, func(tx data.Store) error {
		if _, err := tx.Minisites().FindByID(ctx, cmd.MinisiteID); err != nil {
			return err
		}

		source, err := tx.Versions().FindByID(ctx, cmd.SourceVersionID)
		if err != nil {
			return err
		}
		if source.MinisiteID != cmd.MinisiteID {
			return fmt.Errorf("version %d does not belong to minisite %s: %w",
				cmd.SourceVersionID, cmd.MinisiteID, data.ErrNotFound)
		}

		number, err := tx.Versions().NextVersionNumber(ctx, cmd.MinisiteID)
		if err != nil {
			return err
		}

		label := cmd.Label
		if label == "" {
			label = fmt.Sprintf("Rollback to v%d", source.VersionNumber)
		}
		comment := cmd.Comment
		if comment == "" {
			comment = fmt.Sprintf("Rollback from version %d", source.VersionNumber)
		}

		rollback := &data.Version{
			MinisiteID:      cmd.MinisiteID,
			VersionNumber:   number,
			Status:          data.VersionStatusDraft,
			Label:           label,
			Comment:         comment,
			CreatedBy:       cmd.UserID,
			CreatedAt:       time.Now().UTC(),
			SourceVersionID: &source.ID,
		}
		rollback.CopyContentFrom(source)

		created, err = tx.Versions().Save(ctx, rollback)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.With(map[string]interface{}{
		"minisite_id":       created.MinisiteID,
		"version_number":    created.VersionNumber,
		"source_version_id": cmd.SourceVersionID,
	}).Info("Rollback draft created")
	return created, nil
}

// ListVersions returns a page of the minisite's history, newest first,
// together with the total version count.
func (s *VersionService) ListVersions(ctx context.Context, cmd ListVersionsCommand) ([]*data.Version, int, error) {
	if cmd.MinisiteID == "" {
		return nil, 0, validationError("minisite id is required")
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := cmd.Offset
	if offset < 0 {
		offset = 0
	}

	if _, err := s.store.Minisites().FindByID(ctx, cmd.MinisiteID); err != nil {
		return nil, 0, err
	}
	versions, err := s.store.Versions().ListByMinisite(ctx, cmd.MinisiteID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Versions().CountByMinisite(ctx, cmd.MinisiteID)
	if err != nil {
		return nil, 0, err
	}
	return versions, total, nil
}

// LatestDraftForEditing returns the newest draft of the minisite, creating
// a draft copy of the newest version first when that version is already
// published. Editing therefore never mutates published history.
func (s *VersionService) LatestDraftForEditing(ctx context.Context, minisiteID string, userID int64) (*data.Version, error) {
	if minisiteID == "" {
		return nil, validationError("minisite id is required")
	}

	var draft *data.Version
	err := s.store.InTx(ctx, func(tx data.Store) error {
		latest, err := tx.Versions().FindLatestVersion(ctx, minisiteID)
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("minisite %s has no versions: %w", minisiteID, data.ErrNotFound)
		}
		if latest.IsDraft() {
			draft = latest
			return nil
		}

		number, err := tx.Versions().NextVersionNumber(ctx, minisiteID)
		if err != nil {
			return err
		}
		clone := &data.Version{
			MinisiteID:      minisiteID,
			VersionNumber:   number,
			Status:          data.VersionStatusDraft,
			Label:           fmt.Sprintf("Draft from v%d", latest.VersionNumber),
			Comment:         fmt.Sprintf("Created from version %d for editing", latest.VersionNumber),
			CreatedBy:       userID,
			CreatedAt:       time.Now().UTC(),
			SourceVersionID: &latest.ID,
		}
		clone.CopyContentFrom(latest)

		draft, err = tx.Versions().Save(ctx, clone)
		return err
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// GetVersion loads a single version and verifies it belongs to the given
// minisite.
func (s *VersionService) GetVersion(ctx context.Context, minisiteID string, versionID int64) (*data.Version, error) {
	if minisiteID == "" || versionID == 0 {
		return nil, validationError("minisite id and version id are required")
	}
	version, err := s.store.Versions().FindByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.MinisiteID != minisiteID {
		return nil, fmt.Errorf("version %d does not belong to minisite %s: %w",
			versionID, minisiteID, data.ErrNotFound)
	}
	return version, nil
}

func validateDraftCommand(cmd CreateDraftCommand) error {
	var problems []string
	if cmd.MinisiteID == "" {
		problems = append(problems, "minisite id is required")
	}
	if cmd.UserID == 0 {
		problems = append(problems, "user id is required")
	}
	if len(cmd.Content.SiteJSON) == 0 {
		problems = append(problems, "site json is required")
	} else if !json.Valid(cmd.Content.SiteJSON) {
		problems = append(problems, "site json is not valid JSON")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func applyDraftContent(v *data.Version, c DraftContent) {
	if len(c.SiteJSON) > 0 {
		v.SiteJSON = append(types.JSONText(nil), c.SiteJSON...)
	}
	if c.Title != nil {
		v.Title = *c.Title
	}
	if c.Name != nil {
		v.Name = *c.Name
	}
	if c.City != nil {
		v.City = *c.City
	}
	if c.Region != nil {
		v.Region = *c.Region
	}
	if c.CountryCode != nil {
		v.CountryCode = *c.CountryCode
	}
	if c.PostalCode != nil {
		v.PostalCode = *c.PostalCode
	}
	if c.SiteTemplate != nil {
		v.SiteTemplate = *c.SiteTemplate
	}
	if c.Palette != nil {
		v.Palette = *c.Palette
	}
	if c.Industry != nil {
		v.Industry = *c.Industry
	}
	if c.DefaultLocale != nil {
		v.DefaultLocale = *c.DefaultLocale
	}
	if c.SearchTerms != nil {
		v.SearchTerms = *c.SearchTerms
	}
	if c.Geo != nil {
		geo := *c.Geo
		v.Geo = &geo
	}
}
