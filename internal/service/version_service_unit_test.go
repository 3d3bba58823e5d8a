//go:build unit

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"minisite-manager/internal/config"
	"minisite-manager/internal/data"
	"minisite-manager/internal/logger"

	"github.com/jmoiron/sqlx/types"
)

func newTestLogger() logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "json"}, io.Discard)
}

// mockMinisiteRepository is a mock implementation of the
// data.MinisiteRepository interface.
type mockMinisiteRepository struct {
	minisite     *data.Minisite
	findErr      error
	saveCalled   bool
	savedExpect  int
	lastSaved    *data.Minisite
	saveErr      error
	insertCalled bool
	lastInserted *data.Minisite
}

var _ data.MinisiteRepository = (*mockMinisiteRepository)(nil)

func (m *mockMinisiteRepository) FindByID(ctx context.Context, id string) (*data.Minisite, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.minisite != nil && m.minisite.ID == id {
		copied := *m.minisite
		return &copied, nil
	}
	return nil, fmt.Errorf("minisite %s: %w", id, data.ErrNotFound)
}

func (m *mockMinisiteRepository) FindBySlugs(ctx context.Context, slugs data.SlugPair) (*data.Minisite, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.minisite != nil && m.minisite.Slugs() == slugs {
		copied := *m.minisite
		return &copied, nil
	}
	return nil, fmt.Errorf("minisite %s/%s: %w", slugs.Business, slugs.Location, data.ErrNotFound)
}

func (m *mockMinisiteRepository) ListByOwner(ctx context.Context, userID int64, limit, offset int) ([]*data.Minisite, error) {
	if m.minisite != nil && m.minisite.CreatedBy == userID {
		return []*data.Minisite{m.minisite}, nil
	}
	return nil, nil
}

func (m *mockMinisiteRepository) CountByOwner(ctx context.Context, userID int64) (int, error) {
	if m.minisite != nil && m.minisite.CreatedBy == userID {
		return 1, nil
	}
	return 0, nil
}

func (m *mockMinisiteRepository) Insert(ctx context.Context, site *data.Minisite) (*data.Minisite, error) {
	m.insertCalled = true
	m.lastInserted = site
	m.minisite = site
	copied := *site
	return &copied, nil
}

func (m *mockMinisiteRepository) Save(ctx context.Context, site *data.Minisite, expectedSiteVersion int) (*data.Minisite, error) {
	m.saveCalled = true
	m.savedExpect = expectedSiteVersion
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	copied := *site
	copied.SiteVersion = expectedSiteVersion + 1
	m.lastSaved = &copied
	m.minisite = &copied
	return &copied, nil
}

func (m *mockMinisiteRepository) UpdateTitle(ctx context.Context, id, title string, updatedBy int64, expectedSiteVersion int) error {
	return nil
}

func (m *mockMinisiteRepository) UpdateCoordinates(ctx context.Context, id string, geo *data.GeoPoint, updatedBy int64, expectedSiteVersion int) error {
	return nil
}

func (m *mockMinisiteRepository) UpdateBusinessInfo(ctx context.Context, id string, info data.BusinessInfo, updatedBy int64, expectedSiteVersion int) error {
	return nil
}

func (m *mockMinisiteRepository) UpdateFields(ctx context.Context, id string, fields data.FieldUpdates, updatedBy int64, expectedSiteVersion int) error {
	return nil
}

func (m *mockMinisiteRepository) ReserveSlugs(ctx context.Context, id string, slugs data.SlugPair, updatedBy int64, expectedSiteVersion int) error {
	if m.minisite != nil && m.minisite.ID == id {
		m.minisite.BusinessSlug = slugs.Business
		m.minisite.LocationSlug = slugs.Location
		m.minisite.PublishStatus = data.PublishStatusReserved
		m.minisite.SiteVersion = expectedSiteVersion + 1
	}
	return nil
}

// mockVersionRepository is a mock implementation of the
// data.VersionRepository interface.
type mockVersionRepository struct {
	versions   map[int64]*data.Version
	published  *data.Version
	nextNumber int
	nextID     int64
	saved      []*data.Version
	saveErr    error
}

var _ data.VersionRepository = (*mockVersionRepository)(nil)

func newMockVersionRepository() *mockVersionRepository {
	return &mockVersionRepository{versions: map[int64]*data.Version{}, nextNumber: 1, nextID: 1}
}

func (m *mockVersionRepository) add(v *data.Version) *data.Version {
	if v.ID == 0 {
		v.ID = m.nextID
		m.nextID++
	} else if v.ID >= m.nextID {
		m.nextID = v.ID + 1
	}
	m.versions[v.ID] = v
	if v.VersionNumber >= m.nextNumber {
		m.nextNumber = v.VersionNumber + 1
	}
	return v
}

func (m *mockVersionRepository) NextVersionNumber(ctx context.Context, minisiteID string) (int, error) {
	return m.nextNumber, nil
}

func (m *mockVersionRepository) FindByID(ctx context.Context, id int64) (*data.Version, error) {
	if v, ok := m.versions[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, fmt.Errorf("version %d: %w", id, data.ErrNotFound)
}

func (m *mockVersionRepository) FindPublished(ctx context.Context, minisiteID string) (*data.Version, error) {
	if m.published == nil {
		return nil, nil
	}
	copied := *m.published
	return &copied, nil
}

func (m *mockVersionRepository) FindLatestVersion(ctx context.Context, minisiteID string) (*data.Version, error) {
	var newest *data.Version
	for _, v := range m.versions {
		if v.MinisiteID != minisiteID {
			continue
		}
		if newest == nil || v.VersionNumber > newest.VersionNumber {
			newest = v
		}
	}
	if newest == nil {
		return nil, nil
	}
	copied := *newest
	return &copied, nil
}

func (m *mockVersionRepository) FindLatestDraft(ctx context.Context, minisiteID string) (*data.Version, error) {
	var newest *data.Version
	for _, v := range m.versions {
		if v.MinisiteID != minisiteID || !v.IsDraft() {
			continue
		}
		if newest == nil || v.VersionNumber > newest.VersionNumber {
			newest = v
		}
	}
	if newest == nil {
		return nil, nil
	}
	copied := *newest
	return &copied, nil
}

func (m *mockVersionRepository) Save(ctx context.Context, v *data.Version) (*data.Version, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	copied := *v
	stored := m.add(&copied)
	m.saved = append(m.saved, stored)
	result := *stored
	return &result, nil
}

func (m *mockVersionRepository) ListByMinisite(ctx context.Context, minisiteID string, limit, offset int) ([]*data.Version, error) {
	var out []*data.Version
	for _, v := range m.versions {
		if v.MinisiteID == minisiteID {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockVersionRepository) CountByMinisite(ctx context.Context, minisiteID string) (int, error) {
	count := 0
	for _, v := range m.versions {
		if v.MinisiteID == minisiteID {
			count++
		}
	}
	return count, nil
}

// mockStore hands both mocks back and runs InTx callbacks directly against
// itself, mirroring the nested-transaction reuse of the real store.
type mockStore struct {
	minisites *mockMinisiteRepository
	versions  *mockVersionRepository
	inTxErr   error
}

var _ data.Store = (*mockStore)(nil)

func newMockStore() *mockStore {
	return &mockStore{
		minisites: &mockMinisiteRepository{},
		versions:  newMockVersionRepository(),
	}
}

func (s *mockStore) Minisites() data.MinisiteRepository { return s.minisites }
func (s *mockStore) Versions() data.VersionRepository   { return s.versions }

func (s *mockStore) InTx(ctx context.Context, fn func(data.Store) error) error {
	if s.inTxErr != nil {
		return s.inTxErr
	}
	return fn(s)
}

func draftMinisite(id string) *data.Minisite {
	now := time.Now().UTC()
	return &data.Minisite{
		ID:            id,
		Slug:          data.TempSlug(id),
		BusinessSlug:  "draft",
		LocationSlug:  id,
		Title:         "Old Title",
		Name:          "Coffee Corner Ltd",
		City:          "Lisbon",
		CountryCode:   "PT",
		SiteTemplate:  "v2025",
		Palette:       "blue",
		Industry:      "services",
		DefaultLocale: "en-US",
		SchemaVersion: 1,
		SiteJSON:      types.JSONText(`{"hero":{"heading":"Old"}}`),
		SiteVersion:   1,
		Status:        data.StatusDraft,
		PublishStatus: data.PublishStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     7,
		UpdatedBy:     7,
	}
}

func TestVersionService_CreateDraft_AssignsNextNumber(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	store.minisites.minisite = draftMinisite(minisiteID)
	store.versions.nextNumber = 4
	// A published minisite does not mirror drafts onto the projection.
	published := &data.Version{ID: 3, MinisiteID: minisiteID, VersionNumber: 3, Status: data.VersionStatusPublished}
	store.versions.published = published
	store.versions.add(published)

	svc := NewVersionService(store, newTestLogger())
	created, err := svc.CreateDraft(context.Background(), CreateDraftCommand{
		MinisiteID: minisiteID,
		UserID:     7,
		Label:      "Menu update",
		Content:    DraftContent{SiteJSON: types.JSONText(`{"hero":{"heading":"New"}}`)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.VersionNumber != 4 {
		t.Errorf("expected version number 4, got %d", created.VersionNumber)
	}
	if !created.IsDraft() {
		t.Errorf("expected draft status, got %q", created.Status)
	}
	if created.Name != "Coffee Corner Ltd" {
		t.Errorf("expected snapshot of the live projection, got name %q", created.Name)
	}
	if string(created.SiteJSON) != `{"hero":{"heading":"New"}}` {
		t.Errorf("expected draft content, got %s", created.SiteJSON)
	}
	if store.minisites.saveCalled {
		t.Error("projection must not change when a draft is added to a published minisite")
	}
}

func TestVersionService_CreateDraft_MirrorsUnpublishedMinisite(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	store.minisites.minisite = draftMinisite(minisiteID)

	title := "Fresh Title"
	svc := NewVersionService(store, newTestLogger())
	created, err := svc.CreateDraft(context.Background(), CreateDraftCommand{
		MinisiteID: minisiteID,
		UserID:     7,
		Content: DraftContent{
			SiteJSON: types.JSONText(`{"hero":{"heading":"New"}}`),
			Title:    &title,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Title != title {
		t.Errorf("expected draft title override, got %q", created.Title)
	}
	if !store.minisites.saveCalled {
		t.Fatal("expected the projection to mirror the draft while unpublished")
	}
	if store.minisites.lastSaved.Title != title {
		t.Errorf("expected mirrored title %q, got %q", title, store.minisites.lastSaved.Title)
	}
	if store.minisites.lastSaved.CurrentVersionID != nil {
		t.Error("mirroring a draft must not mark the minisite published")
	}
}

func TestVersionService_CreateDraft_Validation(t *testing.T) {
	svc := NewVersionService(newMockStore(), newTestLogger())

	var validation *ValidationError
	_, err := svc.CreateDraft(context.Background(), CreateDraftCommand{MinisiteID: "x"})
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	_, err = svc.CreateDraft(context.Background(), CreateDraftCommand{
		MinisiteID: "x",
		UserID:     7,
		Content:    DraftContent{SiteJSON: types.JSONText(`{not json`)},
	})
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for malformed json, got %v", err)
	}
}

func TestVersionService_Publish(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	store.minisites.minisite = draftMinisite(minisiteID)
	draft := store.versions.add(&data.Version{
		MinisiteID:    minisiteID,
		VersionNumber: 2,
		Status:        data.VersionStatusDraft,
		Title:         "Published Title",
		Name:          "Coffee Corner Ltd",
		SiteJSON:      types.JSONText(`{"hero":{"heading":"Live"}}`),
		SchemaVersion: 1,
	})

	svc := NewVersionService(store, newTestLogger())
	fresh, err := svc.Publish(context.Background(), PublishVersionCommand{
		MinisiteID: minisiteID,
		VersionID:  draft.ID,
		UserID:     9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stamped := store.versions.versions[draft.ID]
	if !stamped.IsPublished() {
		t.Errorf("expected version stamped published, got %q", stamped.Status)
	}
	if stamped.PublishedAt == nil {
		t.Error("expected published_at to be stamped")
	}

	if fresh.CurrentVersionID == nil || *fresh.CurrentVersionID != draft.ID {
		t.Errorf("expected current_version_id %d, got %v", draft.ID, fresh.CurrentVersionID)
	}
	if fresh.Status != data.StatusPublished || fresh.PublishStatus != data.PublishStatusPublished {
		t.Errorf("expected published projection, got %q/%q", fresh.Status, fresh.PublishStatus)
	}
	if fresh.Title != "Published Title" {
		t.Errorf("expected snapshot applied to projection, got title %q", fresh.Title)
	}
	if fresh.PublishedAt == nil {
		t.Error("expected first-publish timestamp on the projection")
	}
	if store.minisites.savedExpect != 1 {
		t.Errorf("expected save under the read token 1, got %d", store.minisites.savedExpect)
	}
	if fresh.UpdatedBy != 9 {
		t.Errorf("expected updated_by 9, got %d", fresh.UpdatedBy)
	}
}

func TestVersionService_Publish_KeepsOriginalPublishStamp(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	store.minisites.minisite = draftMinisite(minisiteID)

	firstStamp := time.Now().UTC().Add(-time.Hour)
	old := store.versions.add(&data.Version{
		MinisiteID:    minisiteID,
		VersionNumber: 1,
		Status:        data.VersionStatusPublished,
		PublishedAt:   &firstStamp,
	})

	svc := NewVersionService(store, newTestLogger())
	if _, err := svc.Publish(context.Background(), PublishVersionCommand{
		MinisiteID: minisiteID,
		VersionID:  old.ID,
		UserID:     9,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stamped := store.versions.versions[old.ID]
	if stamped.PublishedAt == nil || !stamped.PublishedAt.Equal(firstStamp) {
		t.Errorf("republishing must keep the original stamp, got %v", stamped.PublishedAt)
	}
}

func TestVersionService_Publish_WrongMinisite(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	store.minisites.minisite = draftMinisite(minisiteID)
	stray := store.versions.add(&data.Version{
		MinisiteID:    data.NewMinisiteID(),
		VersionNumber: 1,
		Status:        data.VersionStatusDraft,
	})

	svc := NewVersionService(store, newTestLogger())
	_, err := svc.Publish(context.Background(), PublishVersionCommand{
		MinisiteID: minisiteID,
		VersionID:  stray.ID,
		UserID:     9,
	})
	if !errors.Is(err, data.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign version, got %v", err)
	}
}

func TestVersionService_Publish_OptimisticLockPassedThrough(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	store.minisites.minisite = draftMinisite(minisiteID)
	store.minisites.saveErr = data.ErrOptimisticLock
	draft := store.versions.add(&data.Version{
		MinisiteID:    minisiteID,
		VersionNumber: 1,
		Status:        data.VersionStatusDraft,
	})

	svc := NewVersionService(store, newTestLogger())
	_, err := svc.Publish(context.Background(), PublishVersionCommand{
		MinisiteID: minisiteID,
		VersionID:  draft.ID,
		UserID:     9,
	})
	if !errors.Is(err, data.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}
}

func TestVersionService_Rollback(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	store.minisites.minisite = draftMinisite(minisiteID)
	source := store.versions.add(&data.Version{
		MinisiteID:    minisiteID,
		VersionNumber: 2,
		Status:        data.VersionStatusPublished,
		Title:         "Golden Title",
		SiteJSON:      types.JSONText(`{"hero":{"heading":"Golden"}}`),
	})
	store.versions.add(&data.Version{
		MinisiteID:    minisiteID,
		VersionNumber: 3,
		Status:        data.VersionStatusPublished,
	})

	svc := NewVersionService(store, newTestLogger())
	rollback, err := svc.Rollback(context.Background(), RollbackVersionCommand{
		MinisiteID:      minisiteID,
		SourceVersionID: source.ID,
		UserID:          7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rollback.VersionNumber != 4 {
		t.Errorf("expected rollback draft numbered 4, got %d", rollback.VersionNumber)
	}
	if !rollback.IsDraft() {
		t.Errorf("rollback must stage a draft, got %q", rollback.Status)
	}
	if rollback.SourceVersionID == nil || *rollback.SourceVersionID != source.ID {
		t.Errorf("expected lineage to source %d, got %v", source.ID, rollback.SourceVersionID)
	}
	if rollback.Title != "Golden Title" {
		t.Errorf("expected copied content, got title %q", rollback.Title)
	}
	if rollback.Label != "Rollback to v2" {
		t.Errorf("expected default label, got %q", rollback.Label)
	}
	if store.minisites.saveCalled {
		t.Error("rollback must not touch the live projection")
	}
}

func TestVersionService_Rollback_WrongMinisite(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	store.minisites.minisite = draftMinisite(minisiteID)
	stray := store.versions.add(&data.Version{
		MinisiteID:    data.NewMinisiteID(),
		VersionNumber: 1,
		Status:        data.VersionStatusPublished,
	})

	svc := NewVersionService(store, newTestLogger())
	_, err := svc.Rollback(context.Background(), RollbackVersionCommand{
		MinisiteID:      minisiteID,
		SourceVersionID: stray.ID,
		UserID:          7,
	})
	if !errors.Is(err, data.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign source, got %v", err)
	}
}

func TestVersionService_LatestDraftForEditing_ReturnsExistingDraft(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	draft := store.versions.add(&data.Version{
		MinisiteID:    minisiteID,
		VersionNumber: 2,
		Status:        data.VersionStatusDraft,
	})

	svc := NewVersionService(store, newTestLogger())
	got, err := svc.LatestDraftForEditing(context.Background(), minisiteID, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != draft.ID {
		t.Errorf("expected existing draft %d, got %d", draft.ID, got.ID)
	}
	if len(store.versions.saved) != 0 {
		t.Error("no new version should be created when a draft exists")
	}
}

func TestVersionService_LatestDraftForEditing_ClonesPublished(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	published := store.versions.add(&data.Version{
		MinisiteID:    minisiteID,
		VersionNumber: 3,
		Status:        data.VersionStatusPublished,
		Title:         "Live Title",
	})

	svc := NewVersionService(store, newTestLogger())
	got, err := svc.LatestDraftForEditing(context.Background(), minisiteID, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsDraft() {
		t.Errorf("expected draft, got %q", got.Status)
	}
	if got.VersionNumber != 4 {
		t.Errorf("expected new version number 4, got %d", got.VersionNumber)
	}
	if got.SourceVersionID == nil || *got.SourceVersionID != published.ID {
		t.Errorf("expected lineage to %d, got %v", published.ID, got.SourceVersionID)
	}
	if got.Title != "Live Title" {
		t.Errorf("expected copied content, got %q", got.Title)
	}
}

func TestVersionService_LatestDraftForEditing_NoVersions(t *testing.T) {
	svc := NewVersionService(newMockStore(), newTestLogger())
	_, err := svc.LatestDraftForEditing(context.Background(), data.NewMinisiteID(), 7)
	if !errors.Is(err, data.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVersionService_GetVersion_BelongsCheck(t *testing.T) {
	store := newMockStore()
	minisiteID := data.NewMinisiteID()
	v := store.versions.add(&data.Version{
		MinisiteID:    minisiteID,
		VersionNumber: 1,
		Status:        data.VersionStatusDraft,
	})

	svc := NewVersionService(store, newTestLogger())
	got, err := svc.GetVersion(context.Background(), minisiteID, v.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != v.ID {
		t.Errorf("expected version %d, got %d", v.ID, got.ID)
	}

	_, err = svc.GetVersion(context.Background(), data.NewMinisiteID(), v.ID)
	if !errors.Is(err, data.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign minisite, got %v", err)
	}
}
