package api

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"noirkit/internal/database"
	"noirkit/internal/portfolio"
)

// 面向前端的作品集 JSON 形状。字段名与持久层一致（snake_case），
// tech_stack/image_keys 从 JSONB 还原为字符串数组。

type personalInfoResponse struct {
	ID              uint      `json:"id"`
	Name            string    `json:"name"`
	JobTitle        string    `json:"job_title"`
	Bio             string    `json:"bio"`
	ProfileImageKey string    `json:"profile_image_key"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Location        string    `json:"location"`
	CVKey           string    `json:"cv_key"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type socialLinkResponse struct {
	ID         uint   `json:"id"`
	Platform   string `json:"platform"`
	URL        string `json:"url"`
	IconKey    string `json:"icon_key"`
	OrderIndex int    `json:"order_index"`
}

type projectResponse struct {
	ID          uint     `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	DeployURL   string   `json:"deploy_url"`
	SourceURL   string   `json:"source_url"`
	TechStack   []string `json:"tech_stack"`
	ImageKeys   []string `json:"image_keys"`
	OrderIndex  int      `json:"order_index"`
}

type techStackItemResponse struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Icon       string `json:"icon"`
	OrderIndex int    `json:"order_index"`
}

type achievementResponse struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	OrderIndex  int    `json:"order_index"`
}

type contactFieldResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder"`
	OrderIndex  int    `json:"order_index"`
}

type contactFormResponse struct {
	ID              uint                   `json:"id"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	ShowContactInfo bool                   `json:"show_contact_info"`
	Fields          []contactFieldResponse `json:"fields"`
}

type portfolioResponse struct {
	OwnerID      uint                    `json:"owner_id"`
	PersonalInfo *personalInfoResponse   `json:"personal_info"`
	SocialLinks  []socialLinkResponse    `json:"social_links"`
	Projects     []projectResponse       `json:"projects"`
	TechStack    []techStackItemResponse `json:"tech_stack"`
	Achievements []achievementResponse   `json:"achievements"`
	ContactForm  *contactFormResponse    `json:"contact_form"`
}

func newPersonalInfoResponse(info *database.PersonalInfo) *personalInfoResponse {
	if info == nil {
		return nil
	}
	return &personalInfoResponse{
		ID:              info.ID,
		Name:            info.Name,
		JobTitle:        info.JobTitle,
		Bio:             info.Bio,
		ProfileImageKey: info.ProfileImageKey,
		Email:           info.Email,
		Phone:           info.Phone,
		Location:        info.Location,
		CVKey:           info.CVKey,
		UpdatedAt:       info.UpdatedAt,
	}
}

func newSocialLinkResponse(link database.SocialLink) socialLinkResponse {
	return socialLinkResponse{
		ID:         link.ID,
		Platform:   link.Platform,
		URL:        link.URL,
		IconKey:    link.IconKey,
		OrderIndex: link.OrderIndex,
	}
}

func newProjectResponse(project database.Project) projectResponse {
	return projectResponse{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		DeployURL:   project.DeployURL,
		SourceURL:   project.SourceURL,
		TechStack:   decodeStringList(project.TechStack),
		ImageKeys:   decodeStringList(project.ImageKeys),
		OrderIndex:  project.OrderIndex,
	}
}

func newTechStackItemResponse(item database.TechStackItem) techStackItemResponse {
	return techStackItemResponse{
		ID:         item.ID,
		Name:       item.Name,
		Icon:       item.Icon,
		OrderIndex: item.OrderIndex,
	}
}

func newAchievementResponse(achievement database.Achievement) achievementResponse {
	return achievementResponse{
		ID:          achievement.ID,
		Title:       achievement.Title,
		Description: achievement.Description,
		Date:        achievement.Date,
		Type:        achievement.Type,
		OrderIndex:  achievement.OrderIndex,
	}
}

func newContactFieldResponse(field database.ContactField) contactFieldResponse {
	return contactFieldResponse{
		ID:          field.ID,
		Name:        field.Name,
		Label:       field.Label,
		Type:        field.Type,
		Required:    field.Required,
		Placeholder: field.Placeholder,
		OrderIndex:  field.OrderIndex,
	}
}

func newContactFormResponse(form *database.ContactForm) *contactFormResponse {
	if form == nil {
		return nil
	}
	fields := make([]contactFieldResponse, 0, len(form.Fields))
	for _, f := range form.Fields {
		fields = append(fields, newContactFieldResponse(f))
	}
	return &contactFormResponse{
		ID:              form.ID,
		Title:           form.Title,
		Description:     form.Description,
		ShowContactInfo: form.ShowContactInfo,
		Fields:          fields,
	}
}

func newPortfolioResponse(ownerID uint, store *portfolio.Store) portfolioResponse {
	socialLinks := make([]socialLinkResponse, 0, len(store.SocialLinks))
	for _, l := range store.SocialLinks {
		socialLinks = append(socialLinks, newSocialLinkResponse(l))
	}
	projects := make([]projectResponse, 0, len(store.Projects))
	for _, p := range store.Projects {
		projects = append(projects, newProjectResponse(p))
	}
	techStack := make([]techStackItemResponse, 0, len(store.TechStack))
	for _, t := range store.TechStack {
		techStack = append(techStack, newTechStackItemResponse(t))
	}
	achievements := make([]achievementResponse, 0, len(store.Achievements))
	for _, a := range store.Achievements {
		achievements = append(achievements, newAchievementResponse(a))
	}

	return portfolioResponse{
		OwnerID:      ownerID,
		PersonalInfo: newPersonalInfoResponse(store.PersonalInfo),
		SocialLinks:  socialLinks,
		Projects:     projects,
		TechStack:    techStack,
		Achievements: achievements,
		ContactForm:  newContactFormResponse(store.ContactForm),
	}
}

func decodeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}

func encodeStringList(list []string) datatypes.JSON {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}
