package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示作品集的所有者账号。
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool   `gorm:"default:false"`
}

// PersonalInfo 是每个所有者唯一的个人信息记录。
// 首次保存时隐式创建，之后只更新、不删除（字段可清空）。
type PersonalInfo struct {
	gorm.Model
	UserID          uint   `gorm:"uniqueIndex"`
	Name            string `gorm:"size:255"`
	JobTitle        string `gorm:"size:255"`
	Bio             string `gorm:"type:text"`
	ProfileImageKey string `gorm:"size:512"`
	Email           string `gorm:"size:255"`
	Phone           string `gorm:"size:64"`
	Location        string `gorm:"size:255"`
	CVKey           string `gorm:"column:cv_key;size:512"`
}

// SocialLink 是展示在作品集上的社交链接，OrderIndex 决定显示顺序。
type SocialLink struct {
	gorm.Model
	UserID     uint   `gorm:"index"`
	Platform   string `gorm:"size:64"`
	URL        string `gorm:"size:512"`
	IconKey    string `gorm:"size:512"`
	OrderIndex int    `gorm:"default:0"`
}

// Project 表示一个作品条目。
// TechStack 存放自由文本的技术名称列表（JSON 字符串数组），按名称与
// TechStackItem 做大小写不敏感的展示联结，没有外键约束。
type Project struct {
	gorm.Model
	UserID      uint           `gorm:"index"`
	Name        string         `gorm:"size:255"`
	Description string         `gorm:"type:text"`
	DeployURL   string         `gorm:"size:512"`
	SourceURL   string         `gorm:"size:512"`
	TechStack   datatypes.JSON `gorm:"type:jsonb"`
	ImageKeys   datatypes.JSON `gorm:"type:jsonb"`
	OrderIndex  int            `gorm:"default:0"`
}

// TechStackItem 是技术栈目录中的一项，Icon 存放原始 SVG 标记。
type TechStackItem struct {
	gorm.Model
	UserID     uint   `gorm:"index"`
	Name       string `gorm:"size:128"`
	Icon       string `gorm:"type:text"`
	OrderIndex int    `gorm:"default:0"`
}

// Achievement 类型枚举。
const (
	AchievementTypeEducation   = "education"
	AchievementTypeAchievement = "achievement"
)

// Achievement 表示一条成就或教育经历。
// Date 是自由文本（年份、年月或区间均可），不做严格日期解析。
type Achievement struct {
	gorm.Model
	UserID      uint   `gorm:"index"`
	Title       string `gorm:"size:255"`
	Description string `gorm:"size:512"`
	Date        string `gorm:"size:64"`
	Type        string `gorm:"size:16"`
	OrderIndex  int    `gorm:"default:0"`
}

// ContactForm 是每个所有者唯一的联系表单配置。
type ContactForm struct {
	gorm.Model
	UserID          uint           `gorm:"uniqueIndex"`
	Title           string         `gorm:"size:255"`
	Description     string         `gorm:"type:text"`
	ShowContactInfo bool           `gorm:"default:true"`
	Fields          []ContactField `gorm:"constraint:OnDelete:CASCADE"`
}

// ContactField 字段类型枚举。
const (
	ContactFieldTypeText     = "text"
	ContactFieldTypeEmail    = "email"
	ContactFieldTypeTextarea = "textarea"
)

// ContactField 是联系表单中的一个输入项。
// Name 是机器键（小写字母数字），同一表单内不可重复。
type ContactField struct {
	gorm.Model
	ContactFormID uint   `gorm:"index;uniqueIndex:idx_contact_form_field_name"`
	UserID        uint   `gorm:"index"`
	Name          string `gorm:"size:64;uniqueIndex:idx_contact_form_field_name"`
	Label         string `gorm:"size:255"`
	Type          string `gorm:"size:16"`
	Required      bool   `gorm:"default:false"`
	Placeholder   string `gorm:"size:255"`
	OrderIndex    int    `gorm:"default:0"`
}

// ContactSubmission 是访客提交的联系表单内容，只写入、不更新。
type ContactSubmission struct {
	gorm.Model
	UserID      uint           `gorm:"index"`
	FormData    datatypes.JSON `gorm:"type:jsonb"`
	SubmitterIP string         `gorm:"size:64"`
	UserAgent   string         `gorm:"size:512"`
	SubmittedAt time.Time      `gorm:"index"`
}

// Asset 记录所有者上传到对象存储的文件（头像、项目图、图标、CV）。
type Asset struct {
	gorm.Model
	UserID      uint   `gorm:"index"`
	ObjectKey   string `gorm:"uniqueIndex;size:512"`
	ContentType string `gorm:"size:128"`
	Size        int64
}

// AllModels 返回 AutoMigrate 所需的全部模型。
func AllModels() []any {
	return []any{
		&User{},
		&PersonalInfo{},
		&SocialLink{},
		&Project{},
		&TechStackItem{},
		&Achievement{},
		&ContactForm{},
		&ContactField{},
		&ContactSubmission{},
		&Asset{},
	}
}
