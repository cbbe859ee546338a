package portfolio

import (
	"context"
	"errors"

	"noirkit/internal/database"
)

// ErrUnauthenticated 表示会话没有可解析的作品集所有者，写操作被拒绝。
var ErrUnauthenticated = errors.New("no authenticated portfolio owner")

// ErrDuplicateFieldName 表示同一联系表单下已存在同名字段。
var ErrDuplicateFieldName = errors.New("contact field name already in use")

// Store 是一次会话内作品集数据的唯一事实来源。
//
// 每个写操作只发出一次远端调用，成功后才把确认结果并入本地状态；失败时
// 本地状态保持不变，错误原样返回给调用方。没有乐观更新，也没有重试。
//
// Store 不做并发保护：它建模的是单操作者会话里顺序到达的 UI 调用，
// 并发的两次 Reorder 以后写者为准。
type Store struct {
	repo    Repository
	ownerID uint

	loaded  bool
	loading bool
	lastErr string

	PersonalInfo *database.PersonalInfo
	SocialLinks  []database.SocialLink
	Projects     []database.Project
	TechStack    []database.TechStackItem
	Achievements []database.Achievement
	ContactForm  *database.ContactForm
}

// NewStore 构造绑定到已认证所有者的 Store。
func NewStore(repo Repository, ownerID uint) *Store {
	return &Store{repo: repo, ownerID: ownerID}
}

// NewPublicStore 构造公开视图的 Store：FetchAll 时解析第一个可用的所有者，
// 所有写操作返回 ErrUnauthenticated。
func NewPublicStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Loaded 报告是否已完成首次 FetchAll。
func (s *Store) Loaded() bool { return s.loaded }

// Loading 报告当前是否有操作在途。
func (s *Store) Loading() bool { return s.loading }

// Err 返回最近一次操作的错误信息；每次操作开始时清空。
func (s *Store) Err() string { return s.lastErr }

// OwnerID 返回会话绑定的所有者 ID（公开会话为 0）。
func (s *Store) OwnerID() uint { return s.ownerID }

func (s *Store) begin() {
	s.loading = true
	s.lastErr = ""
}

func (s *Store) finish(err error) error {
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
	}
	return err
}

// FetchAll 读取当前会话可见的作品集并原子地替换全部本地集合。
// 「还没有任何作品集」不是错误：集合清空、个人信息置空后正常返回。
func (s *Store) FetchAll(ctx context.Context) error {
	s.begin()

	ownerID := s.ownerID
	if ownerID == 0 {
		resolved, err := s.repo.FirstOwnerID(ctx)
		if err != nil {
			return s.finish(err)
		}
		if resolved == 0 {
			s.replace(Snapshot{})
			return s.finish(nil)
		}
		ownerID = resolved
	}

	snap, err := s.repo.LoadSnapshot(ctx, ownerID)
	if err != nil {
		return s.finish(err)
	}

	s.replace(snap)
	return s.finish(nil)
}

func (s *Store) replace(snap Snapshot) {
	s.PersonalInfo = snap.PersonalInfo
	s.SocialLinks = emptyIfNil(snap.SocialLinks)
	s.Projects = emptyIfNil(snap.Projects)
	s.TechStack = emptyIfNil(snap.TechStack)
	s.Achievements = emptyIfNil(snap.Achievements)
	s.ContactForm = snap.ContactForm
	if s.ContactForm != nil && s.ContactForm.Fields == nil {
		s.ContactForm.Fields = []database.ContactField{}
	}
	s.loaded = true
}

// UpdatePersonalInfo 更新个人信息，首次保存时隐式创建记录。
func (s *Store) UpdatePersonalInfo(ctx context.Context, fields map[string]any) (*database.PersonalInfo, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	info, err := s.repo.SavePersonalInfo(ctx, s.ownerID, fields)
	if err != nil {
		return nil, s.finish(err)
	}

	s.PersonalInfo = info
	return info, s.finish(nil)
}

// AddSocialLink 追加社交链接，顺序号取当前集合长度。
func (s *Store) AddSocialLink(ctx context.Context, link database.SocialLink) (*database.SocialLink, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	link.UserID = s.ownerID
	link.OrderIndex = len(s.SocialLinks)
	if err := s.repo.CreateSocialLink(ctx, &link); err != nil {
		return nil, s.finish(err)
	}

	s.SocialLinks = append(s.SocialLinks, link)
	return &link, s.finish(nil)
}

// UpdateSocialLink 按 id 做部分更新。远端调用总会发出；本地只在该 id
// 存在于集合中时替换对应条目，否则静默跳过。
func (s *Store) UpdateSocialLink(ctx context.Context, id uint, fields map[string]any) (*database.SocialLink, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	updated, err := s.repo.UpdateSocialLink(ctx, s.ownerID, id, fields)
	if err != nil {
		return nil, s.finish(err)
	}

	if updated != nil {
		if i := indexByID(s.SocialLinks, id, socialLinkID); i >= 0 {
			s.SocialLinks[i] = *updated
		}
	}
	return updated, s.finish(nil)
}

// DeleteSocialLink 删除社交链接。
func (s *Store) DeleteSocialLink(ctx context.Context, id uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.DeleteSocialLink(ctx, s.ownerID, id); err != nil {
		return s.finish(err)
	}

	s.SocialLinks = removeByID(s.SocialLinks, id, socialLinkID)
	return s.finish(nil)
}

// ReorderSocialLinks 按给定 id 顺序持久化新的显示顺序。
// 远端写入全部成功后才调整本地顺序，失败时本地保持原样。
func (s *Store) ReorderSocialLinks(ctx context.Context, ids []uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.ReorderSocialLinks(ctx, s.ownerID, ids); err != nil {
		return s.finish(err)
	}

	s.SocialLinks = applyOrder(s.SocialLinks, ids, socialLinkID, func(l *database.SocialLink, i int) {
		l.OrderIndex = i
	})
	return s.finish(nil)
}

// AddProject 追加作品条目。
func (s *Store) AddProject(ctx context.Context, project database.Project) (*database.Project, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	project.UserID = s.ownerID
	project.OrderIndex = len(s.Projects)
	if err := s.repo.CreateProject(ctx, &project); err != nil {
		return nil, s.finish(err)
	}

	s.Projects = append(s.Projects, project)
	return &project, s.finish(nil)
}

// UpdateProject 按 id 做部分更新。
func (s *Store) UpdateProject(ctx context.Context, id uint, fields map[string]any) (*database.Project, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	updated, err := s.repo.UpdateProject(ctx, s.ownerID, id, fields)
	if err != nil {
		return nil, s.finish(err)
	}

	if updated != nil {
		if i := indexByID(s.Projects, id, projectID); i >= 0 {
			s.Projects[i] = *updated
		}
	}
	return updated, s.finish(nil)
}

// DeleteProject 删除作品条目。
func (s *Store) DeleteProject(ctx context.Context, id uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.DeleteProject(ctx, s.ownerID, id); err != nil {
		return s.finish(err)
	}

	s.Projects = removeByID(s.Projects, id, projectID)
	return s.finish(nil)
}

// ReorderProjects 持久化作品的新顺序。
func (s *Store) ReorderProjects(ctx context.Context, ids []uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.ReorderProjects(ctx, s.ownerID, ids); err != nil {
		return s.finish(err)
	}

	s.Projects = applyOrder(s.Projects, ids, projectID, func(p *database.Project, i int) {
		p.OrderIndex = i
	})
	return s.finish(nil)
}

// AddTechStackItem 追加技术栈条目。
func (s *Store) AddTechStackItem(ctx context.Context, item database.TechStackItem) (*database.TechStackItem, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	item.UserID = s.ownerID
	item.OrderIndex = len(s.TechStack)
	if err := s.repo.CreateTechStackItem(ctx, &item); err != nil {
		return nil, s.finish(err)
	}

	s.TechStack = append(s.TechStack, item)
	return &item, s.finish(nil)
}

// UpdateTechStackItem 按 id 做部分更新。
func (s *Store) UpdateTechStackItem(ctx context.Context, id uint, fields map[string]any) (*database.TechStackItem, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	updated, err := s.repo.UpdateTechStackItem(ctx, s.ownerID, id, fields)
	if err != nil {
		return nil, s.finish(err)
	}

	if updated != nil {
		if i := indexByID(s.TechStack, id, techStackItemID); i >= 0 {
			s.TechStack[i] = *updated
		}
	}
	return updated, s.finish(nil)
}

// DeleteTechStackItem 删除技术栈条目。
// 引用它的 Project.TechStack 字符串保持不变：名称联结容忍悬空引用。
func (s *Store) DeleteTechStackItem(ctx context.Context, id uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.DeleteTechStackItem(ctx, s.ownerID, id); err != nil {
		return s.finish(err)
	}

	s.TechStack = removeByID(s.TechStack, id, techStackItemID)
	return s.finish(nil)
}

// ReorderTechStackItems 持久化技术栈的新顺序。
func (s *Store) ReorderTechStackItems(ctx context.Context, ids []uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.ReorderTechStackItems(ctx, s.ownerID, ids); err != nil {
		return s.finish(err)
	}

	s.TechStack = applyOrder(s.TechStack, ids, techStackItemID, func(t *database.TechStackItem, i int) {
		t.OrderIndex = i
	})
	return s.finish(nil)
}

// AddAchievement 追加成就条目。
func (s *Store) AddAchievement(ctx context.Context, achievement database.Achievement) (*database.Achievement, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	achievement.UserID = s.ownerID
	achievement.OrderIndex = len(s.Achievements)
	if err := s.repo.CreateAchievement(ctx, &achievement); err != nil {
		return nil, s.finish(err)
	}

	s.Achievements = append(s.Achievements, achievement)
	return &achievement, s.finish(nil)
}

// UpdateAchievement 按 id 做部分更新。
func (s *Store) UpdateAchievement(ctx context.Context, id uint, fields map[string]any) (*database.Achievement, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	updated, err := s.repo.UpdateAchievement(ctx, s.ownerID, id, fields)
	if err != nil {
		return nil, s.finish(err)
	}

	if updated != nil {
		if i := indexByID(s.Achievements, id, achievementID); i >= 0 {
			s.Achievements[i] = *updated
		}
	}
	return updated, s.finish(nil)
}

// DeleteAchievement 删除成就条目。
func (s *Store) DeleteAchievement(ctx context.Context, id uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.DeleteAchievement(ctx, s.ownerID, id); err != nil {
		return s.finish(err)
	}

	s.Achievements = removeByID(s.Achievements, id, achievementID)
	return s.finish(nil)
}

// ReorderAchievements 持久化成就的新顺序。
func (s *Store) ReorderAchievements(ctx context.Context, ids []uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.ReorderAchievements(ctx, s.ownerID, ids); err != nil {
		return s.finish(err)
	}

	s.Achievements = applyOrder(s.Achievements, ids, achievementID, func(a *database.Achievement, i int) {
		a.OrderIndex = i
	})
	return s.finish(nil)
}

// UpdateContactForm 更新联系表单配置；表单不存在时先隐式创建。
func (s *Store) UpdateContactForm(ctx context.Context, fields map[string]any) (*database.ContactForm, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	form, err := s.repo.SaveContactForm(ctx, s.ownerID, fields)
	if err != nil {
		return nil, s.finish(err)
	}

	s.ContactForm = form
	return form, s.finish(nil)
}

// AddContactField 追加表单字段；没有表单时先创建默认表单再挂接字段。
// 同名字段在本地即被拒绝，数据库的唯一索引兜底并发场景。
func (s *Store) AddContactField(ctx context.Context, field database.ContactField) (*database.ContactField, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	if s.ContactForm == nil {
		form, err := s.repo.EnsureContactForm(ctx, s.ownerID)
		if err != nil {
			return nil, s.finish(err)
		}
		s.ContactForm = form
	}

	for _, existing := range s.ContactForm.Fields {
		if existing.Name == field.Name {
			return nil, s.finish(ErrDuplicateFieldName)
		}
	}

	field.UserID = s.ownerID
	field.ContactFormID = s.ContactForm.ID
	field.OrderIndex = len(s.ContactForm.Fields)
	if err := s.repo.CreateContactField(ctx, &field); err != nil {
		return nil, s.finish(err)
	}

	s.ContactForm.Fields = append(s.ContactForm.Fields, field)
	return &field, s.finish(nil)
}

// UpdateContactField 按 id 做部分更新。
func (s *Store) UpdateContactField(ctx context.Context, id uint, fields map[string]any) (*database.ContactField, error) {
	s.begin()
	if s.ownerID == 0 {
		return nil, s.finish(ErrUnauthenticated)
	}

	updated, err := s.repo.UpdateContactField(ctx, s.ownerID, id, fields)
	if err != nil {
		return nil, s.finish(err)
	}

	if updated != nil && s.ContactForm != nil {
		if i := indexByID(s.ContactForm.Fields, id, contactFieldID); i >= 0 {
			s.ContactForm.Fields[i] = *updated
		}
	}
	return updated, s.finish(nil)
}

// DeleteContactField 删除表单字段。
func (s *Store) DeleteContactField(ctx context.Context, id uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.DeleteContactField(ctx, s.ownerID, id); err != nil {
		return s.finish(err)
	}

	if s.ContactForm != nil {
		s.ContactForm.Fields = removeByID(s.ContactForm.Fields, id, contactFieldID)
	}
	return s.finish(nil)
}

// ReorderContactFields 持久化表单字段的新顺序。
func (s *Store) ReorderContactFields(ctx context.Context, ids []uint) error {
	s.begin()
	if s.ownerID == 0 {
		return s.finish(ErrUnauthenticated)
	}

	if err := s.repo.ReorderContactFields(ctx, s.ownerID, ids); err != nil {
		return s.finish(err)
	}

	if s.ContactForm != nil {
		s.ContactForm.Fields = applyOrder(s.ContactForm.Fields, ids, contactFieldID, func(f *database.ContactField, i int) {
			f.OrderIndex = i
		})
	}
	return s.finish(nil)
}

func socialLinkID(l database.SocialLink) uint       { return l.ID }
func projectID(p database.Project) uint             { return p.ID }
func techStackItemID(t database.TechStackItem) uint { return t.ID }
func achievementID(a database.Achievement) uint     { return a.ID }
func contactFieldID(f database.ContactField) uint   { return f.ID }

func emptyIfNil[E any](list []E) []E {
	if list == nil {
		return []E{}
	}
	return list
}

func indexByID[E any](list []E, id uint, idOf func(E) uint) int {
	for i, item := range list {
		if idOf(item) == id {
			return i
		}
	}
	return -1
}

func removeByID[E any](list []E, id uint, idOf func(E) uint) []E {
	out := make([]E, 0, len(list))
	for _, item := range list {
		if idOf(item) != id {
			out = append(out, item)
		}
	}
	return out
}

// applyOrder 把本地集合重排成 ids 给定的顺序并回写顺序号。
// ids 中未提及的条目保持原有相对顺序、附加在尾部；未知 id 被忽略。
func applyOrder[E any](list []E, ids []uint, idOf func(E) uint, setIdx func(*E, int)) []E {
	byID := make(map[uint]E, len(list))
	for _, item := range list {
		byID[idOf(item)] = item
	}

	out := make([]E, 0, len(list))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			continue
		}
		seen[id] = struct{}{}
		setIdx(&item, len(out))
		out = append(out, item)
	}
	for _, item := range list {
		if _, ok := seen[idOf(item)]; !ok {
			out = append(out, item)
		}
	}
	return out
}
