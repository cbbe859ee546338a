package portfolio

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"gorm.io/gorm"

	"noirkit/internal/database"
)

// fakeRepo 是内存版 Repository，按 id 自增并记录调用，便于验证
// 「先远端确认、后并入本地」的折叠语义。
type fakeRepo struct {
	ownerID uint
	snap    Snapshot

	nextID uint

	failCreate  bool
	failReorder bool
	failLoad    bool

	// updateMiss 模拟更新未命中任何行（id 不存在或属于他人）。
	updateMiss bool

	reorderCalls [][]uint
}

var errRepo = errors.New("repository failure")

func newFakeRepo() *fakeRepo {
	return &fakeRepo{ownerID: 1, nextID: 100}
}

func (f *fakeRepo) allocID() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) FirstOwnerID(context.Context) (uint, error) {
	return f.ownerID, nil
}

func (f *fakeRepo) LoadSnapshot(context.Context, uint) (Snapshot, error) {
	if f.failLoad {
		return Snapshot{}, errRepo
	}
	return f.snap, nil
}

func (f *fakeRepo) CreateSocialLink(_ context.Context, link *database.SocialLink) error {
	if f.failCreate {
		return errRepo
	}
	link.ID = f.allocID()
	return nil
}

func (f *fakeRepo) UpdateSocialLink(_ context.Context, _, id uint, fields map[string]any) (*database.SocialLink, error) {
	if f.updateMiss {
		return nil, nil
	}
	link := &database.SocialLink{Model: gorm.Model{ID: id}}
	if platform, ok := fields["platform"].(string); ok {
		link.Platform = platform
	}
	if url, ok := fields["url"].(string); ok {
		link.URL = url
	}
	return link, nil
}

func (f *fakeRepo) DeleteSocialLink(context.Context, uint, uint) error { return nil }

func (f *fakeRepo) ReorderSocialLinks(_ context.Context, _ uint, ids []uint) error {
	if f.failReorder {
		return errRepo
	}
	f.reorderCalls = append(f.reorderCalls, ids)
	return nil
}

func (f *fakeRepo) CreateProject(_ context.Context, project *database.Project) error {
	if f.failCreate {
		return errRepo
	}
	project.ID = f.allocID()
	return nil
}

func (f *fakeRepo) UpdateProject(_ context.Context, _, id uint, _ map[string]any) (*database.Project, error) {
	if f.updateMiss {
		return nil, nil
	}
	return &database.Project{Model: gorm.Model{ID: id}}, nil
}

func (f *fakeRepo) DeleteProject(context.Context, uint, uint) error { return nil }

func (f *fakeRepo) ReorderProjects(_ context.Context, _ uint, ids []uint) error {
	if f.failReorder {
		return errRepo
	}
	f.reorderCalls = append(f.reorderCalls, ids)
	return nil
}

func (f *fakeRepo) CreateTechStackItem(_ context.Context, item *database.TechStackItem) error {
	if f.failCreate {
		return errRepo
	}
	item.ID = f.allocID()
	return nil
}

func (f *fakeRepo) UpdateTechStackItem(_ context.Context, _, id uint, _ map[string]any) (*database.TechStackItem, error) {
	if f.updateMiss {
		return nil, nil
	}
	return &database.TechStackItem{Model: gorm.Model{ID: id}}, nil
}

func (f *fakeRepo) DeleteTechStackItem(context.Context, uint, uint) error { return nil }

func (f *fakeRepo) ReorderTechStackItems(_ context.Context, _ uint, ids []uint) error {
	if f.failReorder {
		return errRepo
	}
	f.reorderCalls = append(f.reorderCalls, ids)
	return nil
}

func (f *fakeRepo) CreateAchievement(_ context.Context, achievement *database.Achievement) error {
	if f.failCreate {
		return errRepo
	}
	achievement.ID = f.allocID()
	return nil
}

func (f *fakeRepo) UpdateAchievement(_ context.Context, _, id uint, _ map[string]any) (*database.Achievement, error) {
	if f.updateMiss {
		return nil, nil
	}
	return &database.Achievement{Model: gorm.Model{ID: id}}, nil
}

func (f *fakeRepo) DeleteAchievement(context.Context, uint, uint) error { return nil }

func (f *fakeRepo) ReorderAchievements(_ context.Context, _ uint, ids []uint) error {
	if f.failReorder {
		return errRepo
	}
	f.reorderCalls = append(f.reorderCalls, ids)
	return nil
}

func (f *fakeRepo) SavePersonalInfo(_ context.Context, ownerID uint, fields map[string]any) (*database.PersonalInfo, error) {
	info := &database.PersonalInfo{Model: gorm.Model{ID: f.allocID()}, UserID: ownerID}
	if name, ok := fields["name"].(string); ok {
		info.Name = name
	}
	return info, nil
}

func (f *fakeRepo) SaveContactForm(_ context.Context, ownerID uint, fields map[string]any) (*database.ContactForm, error) {
	form := &database.ContactForm{Model: gorm.Model{ID: f.allocID()}, UserID: ownerID, Fields: []database.ContactField{}}
	if title, ok := fields["title"].(string); ok {
		form.Title = title
	}
	return form, nil
}

func (f *fakeRepo) EnsureContactForm(_ context.Context, ownerID uint) (*database.ContactForm, error) {
	return &database.ContactForm{
		Model:           gorm.Model{ID: f.allocID()},
		UserID:          ownerID,
		Title:           "Get in touch",
		ShowContactInfo: true,
		Fields:          []database.ContactField{},
	}, nil
}

func (f *fakeRepo) CreateContactField(_ context.Context, field *database.ContactField) error {
	if f.failCreate {
		return errRepo
	}
	field.ID = f.allocID()
	return nil
}

func (f *fakeRepo) UpdateContactField(_ context.Context, _, id uint, _ map[string]any) (*database.ContactField, error) {
	if f.updateMiss {
		return nil, nil
	}
	return &database.ContactField{Model: gorm.Model{ID: id}}, nil
}

func (f *fakeRepo) DeleteContactField(context.Context, uint, uint) error { return nil }

func (f *fakeRepo) ReorderContactFields(_ context.Context, _ uint, ids []uint) error {
	if f.failReorder {
		return errRepo
	}
	f.reorderCalls = append(f.reorderCalls, ids)
	return nil
}

func socialLink(id uint, platform string, order int) database.SocialLink {
	return database.SocialLink{Model: gorm.Model{ID: id}, UserID: 1, Platform: platform, OrderIndex: order}
}

func TestFetchAllPublicWithoutOwner(t *testing.T) {
	repo := newFakeRepo()
	repo.ownerID = 0

	store := NewPublicStore(repo)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if !store.Loaded() {
		t.Fatal("store should be loaded")
	}
	if store.Err() != "" {
		t.Fatalf("unexpected error: %q", store.Err())
	}
	if store.PersonalInfo != nil {
		t.Fatal("personal info should be nil")
	}
	if store.SocialLinks == nil || len(store.SocialLinks) != 0 {
		t.Fatalf("social links should be empty slice, got %v", store.SocialLinks)
	}
}

func TestFetchAllFailureKeepsPreviousState(t *testing.T) {
	repo := newFakeRepo()
	repo.snap = Snapshot{SocialLinks: []database.SocialLink{socialLink(1, "github", 0)}}

	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	repo.failLoad = true
	if err := store.FetchAll(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}

	if store.Err() == "" {
		t.Fatal("error message should be recorded")
	}
	if len(store.SocialLinks) != 1 {
		t.Fatalf("previous state should survive, got %d links", len(store.SocialLinks))
	}
}

func TestFetchAllTwiceYieldsIdenticalCollections(t *testing.T) {
	repo := newFakeRepo()
	repo.snap = Snapshot{
		SocialLinks: []database.SocialLink{
			socialLink(1, "github", 0),
			socialLink(2, "twitter", 1),
		},
		Projects: []database.Project{
			{Model: gorm.Model{ID: 7}, UserID: 1, Name: "noirkit", OrderIndex: 0},
		},
	}

	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("first FetchAll: %v", err)
	}
	firstLinks := append([]database.SocialLink(nil), store.SocialLinks...)
	firstProjects := append([]database.Project(nil), store.Projects...)

	// 无中间写操作的第二次读取：集合内容替换为等价结果，而不是累加。
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("second FetchAll: %v", err)
	}

	if !reflect.DeepEqual(store.SocialLinks, firstLinks) {
		t.Fatalf("social links diverged: %+v vs %+v", store.SocialLinks, firstLinks)
	}
	if !reflect.DeepEqual(store.Projects, firstProjects) {
		t.Fatalf("projects diverged: %+v vs %+v", store.Projects, firstProjects)
	}
}

func TestAddAssignsNextOrderIndex(t *testing.T) {
	repo := newFakeRepo()
	repo.snap = Snapshot{SocialLinks: []database.SocialLink{
		socialLink(1, "github", 0),
		socialLink(2, "twitter", 1),
	}}

	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	link, err := store.AddSocialLink(context.Background(), database.SocialLink{Platform: "mastodon"})
	if err != nil {
		t.Fatalf("AddSocialLink: %v", err)
	}
	if link.OrderIndex != 2 {
		t.Fatalf("order index = %d, want 2", link.OrderIndex)
	}
	if len(store.SocialLinks) != 3 {
		t.Fatalf("local collection has %d links, want 3", len(store.SocialLinks))
	}
}

func TestAddFailureLeavesCollectionUntouched(t *testing.T) {
	repo := newFakeRepo()
	repo.failCreate = true

	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if _, err := store.AddProject(context.Background(), database.Project{Name: "x"}); err == nil {
		t.Fatal("expected create error")
	}
	if len(store.Projects) != 0 {
		t.Fatalf("failed add must not touch local state, got %d projects", len(store.Projects))
	}
	if store.Err() == "" {
		t.Fatal("error message should be recorded")
	}
}

func TestUpdateUnknownIDIsNotAnError(t *testing.T) {
	repo := newFakeRepo()
	repo.updateMiss = true
	repo.snap = Snapshot{SocialLinks: []database.SocialLink{socialLink(1, "github", 0)}}

	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	updated, err := store.UpdateSocialLink(context.Background(), 999, map[string]any{"platform": "gitlab"})
	if err != nil {
		t.Fatalf("update miss must not error: %v", err)
	}
	if updated != nil {
		t.Fatal("miss should yield nil entity")
	}
	if store.SocialLinks[0].Platform != "github" {
		t.Fatalf("local entry changed to %q", store.SocialLinks[0].Platform)
	}
}

func TestUpdateFoldsConfirmedEntity(t *testing.T) {
	repo := newFakeRepo()
	repo.snap = Snapshot{SocialLinks: []database.SocialLink{socialLink(1, "github", 0)}}

	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	updated, err := store.UpdateSocialLink(context.Background(), 1, map[string]any{"platform": "gitlab"})
	if err != nil {
		t.Fatalf("UpdateSocialLink: %v", err)
	}
	if updated == nil || updated.Platform != "gitlab" {
		t.Fatalf("unexpected updated entity: %+v", updated)
	}
	if store.SocialLinks[0].Platform != "gitlab" {
		t.Fatalf("local entry = %q, want gitlab", store.SocialLinks[0].Platform)
	}
}

func TestReorderAppliesListedThenUnlisted(t *testing.T) {
	repo := newFakeRepo()
	repo.snap = Snapshot{SocialLinks: []database.SocialLink{
		socialLink(1, "github", 0),
		socialLink(2, "twitter", 1),
		socialLink(3, "mastodon", 2),
	}}

	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	// 只给出部分 id，外加一个未知 id：未知被忽略，未列出的追加在尾部。
	if err := store.ReorderSocialLinks(context.Background(), []uint{3, 999, 1}); err != nil {
		t.Fatalf("ReorderSocialLinks: %v", err)
	}

	wantIDs := []uint{3, 1, 2}
	for i, want := range wantIDs {
		if store.SocialLinks[i].ID != want {
			t.Fatalf("position %d = id %d, want %d", i, store.SocialLinks[i].ID, want)
		}
	}
	if store.SocialLinks[0].OrderIndex != 0 || store.SocialLinks[1].OrderIndex != 1 {
		t.Fatal("listed entries should get positional order indexes")
	}
}

func TestReorderFailureKeepsLocalOrder(t *testing.T) {
	repo := newFakeRepo()
	repo.snap = Snapshot{SocialLinks: []database.SocialLink{
		socialLink(1, "github", 0),
		socialLink(2, "twitter", 1),
	}}

	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	repo.failReorder = true
	if err := store.ReorderSocialLinks(context.Background(), []uint{2, 1}); err == nil {
		t.Fatal("expected reorder error")
	}

	if store.SocialLinks[0].ID != 1 || store.SocialLinks[1].ID != 2 {
		t.Fatal("failed reorder must keep local order")
	}
	if store.Err() == "" {
		t.Fatal("error message should be recorded")
	}
}

func TestWritesRequireAuthenticatedOwner(t *testing.T) {
	repo := newFakeRepo()
	store := NewPublicStore(repo)

	if _, err := store.AddSocialLink(context.Background(), database.SocialLink{Platform: "github"}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if err := store.ReorderProjects(context.Background(), []uint{1}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if _, err := store.UpdatePersonalInfo(context.Background(), map[string]any{"name": "x"}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestUpdatePersonalInfoCreatesImplicitly(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if store.PersonalInfo != nil {
		t.Fatal("precondition: no personal info yet")
	}

	info, err := store.UpdatePersonalInfo(context.Background(), map[string]any{"name": "Nadia"})
	if err != nil {
		t.Fatalf("UpdatePersonalInfo: %v", err)
	}
	if info.Name != "Nadia" {
		t.Fatalf("name = %q", info.Name)
	}
	if store.PersonalInfo == nil || store.PersonalInfo.Name != "Nadia" {
		t.Fatal("local personal info should hold the confirmed record")
	}
}

func TestAddContactFieldCreatesDefaultForm(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	field, err := store.AddContactField(context.Background(), database.ContactField{Name: "name", Label: "Name", Type: database.ContactFieldTypeText})
	if err != nil {
		t.Fatalf("AddContactField: %v", err)
	}
	if store.ContactForm == nil {
		t.Fatal("default form should have been created")
	}
	if store.ContactForm.Title != "Get in touch" {
		t.Fatalf("default title = %q", store.ContactForm.Title)
	}
	if field.ContactFormID != store.ContactForm.ID {
		t.Fatal("field should be attached to the new form")
	}
	if field.OrderIndex != 0 {
		t.Fatalf("order index = %d, want 0", field.OrderIndex)
	}
}

func TestAddContactFieldRejectsDuplicateName(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo, 1)
	if err := store.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if _, err := store.AddContactField(context.Background(), database.ContactField{Name: "email", Type: database.ContactFieldTypeEmail}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := store.AddContactField(context.Background(), database.ContactField{Name: "email", Type: database.ContactFieldTypeText}); !errors.Is(err, ErrDuplicateFieldName) {
		t.Fatalf("err = %v, want ErrDuplicateFieldName", err)
	}
	if len(store.ContactForm.Fields) != 1 {
		t.Fatalf("duplicate add must not grow local fields, got %d", len(store.ContactForm.Fields))
	}
}
