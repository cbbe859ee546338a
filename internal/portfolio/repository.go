package portfolio

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"noirkit/internal/database"
)

// Snapshot 是一次 FetchAll 读出的全部作品集数据。
type Snapshot struct {
	PersonalInfo *database.PersonalInfo
	SocialLinks  []database.SocialLink
	Projects     []database.Project
	TechStack    []database.TechStackItem
	Achievements []database.Achievement
	ContactForm  *database.ContactForm
}

// Repository 定义 Store 依赖的远端数据服务。
// 每个写操作都以所有者 ID 作用域限定，对应后端的行级安全约束：
// 调用方只能改动 user_id 与自己一致的行。
type Repository interface {
	// FirstOwnerID 返回最早注册的所有者 ID；没有任何所有者时返回 (0, nil)。
	FirstOwnerID(ctx context.Context) (uint, error)
	LoadSnapshot(ctx context.Context, ownerID uint) (Snapshot, error)

	CreateSocialLink(ctx context.Context, link *database.SocialLink) error
	UpdateSocialLink(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.SocialLink, error)
	DeleteSocialLink(ctx context.Context, ownerID, id uint) error
	ReorderSocialLinks(ctx context.Context, ownerID uint, ids []uint) error

	CreateProject(ctx context.Context, project *database.Project) error
	UpdateProject(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.Project, error)
	DeleteProject(ctx context.Context, ownerID, id uint) error
	ReorderProjects(ctx context.Context, ownerID uint, ids []uint) error

	CreateTechStackItem(ctx context.Context, item *database.TechStackItem) error
	UpdateTechStackItem(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.TechStackItem, error)
	DeleteTechStackItem(ctx context.Context, ownerID, id uint) error
	ReorderTechStackItems(ctx context.Context, ownerID uint, ids []uint) error

	CreateAchievement(ctx context.Context, achievement *database.Achievement) error
	UpdateAchievement(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.Achievement, error)
	DeleteAchievement(ctx context.Context, ownerID, id uint) error
	ReorderAchievements(ctx context.Context, ownerID uint, ids []uint) error

	// SavePersonalInfo / SaveContactForm 在记录不存在时隐式创建（upsert-by-absence）。
	SavePersonalInfo(ctx context.Context, ownerID uint, fields map[string]any) (*database.PersonalInfo, error)
	SaveContactForm(ctx context.Context, ownerID uint, fields map[string]any) (*database.ContactForm, error)
	// EnsureContactForm 返回所有者的联系表单，不存在时创建默认表单。
	EnsureContactForm(ctx context.Context, ownerID uint) (*database.ContactForm, error)

	CreateContactField(ctx context.Context, field *database.ContactField) error
	UpdateContactField(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.ContactField, error)
	DeleteContactField(ctx context.Context, ownerID, id uint) error
	ReorderContactFields(ctx context.Context, ownerID uint, ids []uint) error
}

// GormRepository 是 Repository 的 GORM 实现。
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository 构造 GormRepository。
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) FirstOwnerID(ctx context.Context) (uint, error) {
	var user database.User
	err := r.db.WithContext(ctx).Order("id asc").First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	default:
		return user.ID, nil
	}
}

func (r *GormRepository) LoadSnapshot(ctx context.Context, ownerID uint) (Snapshot, error) {
	var snap Snapshot

	var info database.PersonalInfo
	err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).First(&info).Error
	switch {
	case err == nil:
		snap.PersonalInfo = &info
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Snapshot{}, err
	}

	if snap.SocialLinks, err = listOwned[database.SocialLink](ctx, r.db, ownerID); err != nil {
		return Snapshot{}, err
	}
	if snap.Projects, err = listOwned[database.Project](ctx, r.db, ownerID); err != nil {
		return Snapshot{}, err
	}
	if snap.TechStack, err = listOwned[database.TechStackItem](ctx, r.db, ownerID); err != nil {
		return Snapshot{}, err
	}
	if snap.Achievements, err = listOwned[database.Achievement](ctx, r.db, ownerID); err != nil {
		return Snapshot{}, err
	}

	form, err := r.loadContactForm(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.ContactForm = form

	return snap, nil
}

func (r *GormRepository) loadContactForm(ctx context.Context, ownerID uint) (*database.ContactForm, error) {
	var form database.ContactForm
	err := r.db.WithContext(ctx).
		Preload("Fields", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index asc, id asc")
		}).
		Where("user_id = ?", ownerID).
		First(&form).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return &form, nil
	}
}

func (r *GormRepository) CreateSocialLink(ctx context.Context, link *database.SocialLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *GormRepository) UpdateSocialLink(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.SocialLink, error) {
	return updateOwned[database.SocialLink](ctx, r.db, ownerID, id, fields)
}

func (r *GormRepository) DeleteSocialLink(ctx context.Context, ownerID, id uint) error {
	return deleteOwned[database.SocialLink](ctx, r.db, ownerID, id)
}

func (r *GormRepository) ReorderSocialLinks(ctx context.Context, ownerID uint, ids []uint) error {
	return reorderOwned[database.SocialLink](ctx, r.db, ownerID, ids)
}

func (r *GormRepository) CreateProject(ctx context.Context, project *database.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *GormRepository) UpdateProject(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.Project, error) {
	return updateOwned[database.Project](ctx, r.db, ownerID, id, fields)
}

func (r *GormRepository) DeleteProject(ctx context.Context, ownerID, id uint) error {
	return deleteOwned[database.Project](ctx, r.db, ownerID, id)
}

func (r *GormRepository) ReorderProjects(ctx context.Context, ownerID uint, ids []uint) error {
	return reorderOwned[database.Project](ctx, r.db, ownerID, ids)
}

func (r *GormRepository) CreateTechStackItem(ctx context.Context, item *database.TechStackItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *GormRepository) UpdateTechStackItem(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.TechStackItem, error) {
	return updateOwned[database.TechStackItem](ctx, r.db, ownerID, id, fields)
}

func (r *GormRepository) DeleteTechStackItem(ctx context.Context, ownerID, id uint) error {
	return deleteOwned[database.TechStackItem](ctx, r.db, ownerID, id)
}

func (r *GormRepository) ReorderTechStackItems(ctx context.Context, ownerID uint, ids []uint) error {
	return reorderOwned[database.TechStackItem](ctx, r.db, ownerID, ids)
}

func (r *GormRepository) CreateAchievement(ctx context.Context, achievement *database.Achievement) error {
	return r.db.WithContext(ctx).Create(achievement).Error
}

func (r *GormRepository) UpdateAchievement(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.Achievement, error) {
	return updateOwned[database.Achievement](ctx, r.db, ownerID, id, fields)
}

func (r *GormRepository) DeleteAchievement(ctx context.Context, ownerID, id uint) error {
	return deleteOwned[database.Achievement](ctx, r.db, ownerID, id)
}

func (r *GormRepository) ReorderAchievements(ctx context.Context, ownerID uint, ids []uint) error {
	return reorderOwned[database.Achievement](ctx, r.db, ownerID, ids)
}

func (r *GormRepository) SavePersonalInfo(ctx context.Context, ownerID uint, fields map[string]any) (*database.PersonalInfo, error) {
	var info database.PersonalInfo
	err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		info = database.PersonalInfo{UserID: ownerID}
		if err := r.db.WithContext(ctx).Create(&info).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		if err := r.db.WithContext(ctx).Model(&info).Updates(fields).Error; err != nil {
			return nil, err
		}
	}

	if err := r.db.WithContext(ctx).First(&info, info.ID).Error; err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *GormRepository) SaveContactForm(ctx context.Context, ownerID uint, fields map[string]any) (*database.ContactForm, error) {
	if _, err := r.EnsureContactForm(ctx, ownerID); err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		if err := r.db.WithContext(ctx).
			Model(&database.ContactForm{}).
			Where("user_id = ?", ownerID).
			Updates(fields).Error; err != nil {
			return nil, err
		}
	}

	return r.loadContactForm(ctx, ownerID)
}

func (r *GormRepository) EnsureContactForm(ctx context.Context, ownerID uint) (*database.ContactForm, error) {
	form, err := r.loadContactForm(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if form != nil {
		return form, nil
	}

	created := database.ContactForm{
		UserID:          ownerID,
		Title:           "Get in touch",
		ShowContactInfo: true,
	}
	if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, err
	}
	created.Fields = []database.ContactField{}
	return &created, nil
}

func (r *GormRepository) CreateContactField(ctx context.Context, field *database.ContactField) error {
	return r.db.WithContext(ctx).Create(field).Error
}

func (r *GormRepository) UpdateContactField(ctx context.Context, ownerID, id uint, fields map[string]any) (*database.ContactField, error) {
	return updateOwned[database.ContactField](ctx, r.db, ownerID, id, fields)
}

func (r *GormRepository) DeleteContactField(ctx context.Context, ownerID, id uint) error {
	return deleteOwned[database.ContactField](ctx, r.db, ownerID, id)
}

func (r *GormRepository) ReorderContactFields(ctx context.Context, ownerID uint, ids []uint) error {
	return reorderOwned[database.ContactField](ctx, r.db, ownerID, ids)
}

func listOwned[E any](ctx context.Context, db *gorm.DB, ownerID uint) ([]E, error) {
	out := make([]E, 0)
	err := db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("order_index asc, id asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// updateOwned 以 id+所有者作用域做部分更新。
// 没有命中任何行时返回 (nil, nil)：更新一个不存在（或不属于该所有者）的
// 记录不是错误，调用方据此决定是否合并本地状态。
func updateOwned[E any](ctx context.Context, db *gorm.DB, ownerID, id uint, fields map[string]any) (*E, error) {
	res := db.WithContext(ctx).
		Model(new(E)).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var out E
	if err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func deleteOwned[E any](ctx context.Context, db *gorm.DB, ownerID, id uint) error {
	return db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(new(E)).Error
}

// reorderOwned 在单个事务内逐行写入新的 order_index。
// 每条 UPDATE 仍按 id+所有者限定（行级安全允许的形态），事务保证不会留下
// 部分重排的远端状态：任何一行失败都会整体回滚。
func reorderOwned[E any](ctx context.Context, db *gorm.DB, ownerID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			res := tx.Model(new(E)).
				Where("id = ? AND user_id = ?", id, ownerID).
				Update("order_index", i)
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
}
