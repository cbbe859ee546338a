package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"noirkit/internal/database"
	"noirkit/internal/portfolio"
)

// PortfolioHandler 负责仪表盘侧的作品集维护接口。
// 每个请求构造一个绑定到当前所有者的 Store，先 FetchAll 再执行操作，
// 这样 add 的顺序号、字段重名检查都基于刚确认过的远端状态。
type PortfolioHandler struct {
	repo portfolio.Repository
}

// NewPortfolioHandler 构造 PortfolioHandler。
func NewPortfolioHandler(repo portfolio.Repository) *PortfolioHandler {
	return &PortfolioHandler{repo: repo}
}

func (h *PortfolioHandler) storeForOwner(c *gin.Context) (*portfolio.Store, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}

	store := portfolio.NewStore(h.repo, userID)
	if err := store.FetchAll(c.Request.Context()); err != nil {
		Internal(c, "failed to load portfolio")
		return nil, false
	}
	return store, true
}

func (h *PortfolioHandler) storeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, portfolio.ErrUnauthenticated):
		AbortUnauthorized(c)
	case errors.Is(err, portfolio.ErrDuplicateFieldName):
		Conflict(c, err.Error())
	default:
		Internal(c, fallback)
	}
}

func idFromParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

type reorderRequest struct {
	IDs []uint `json:"ids" binding:"required,min=1"`
}

// GetPortfolio 返回当前所有者的完整作品集。
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newPortfolioResponse(store.OwnerID(), store))
}

type personalInfoRequest struct {
	Name            *string `json:"name"`
	JobTitle        *string `json:"job_title"`
	Bio             *string `json:"bio"`
	ProfileImageKey *string `json:"profile_image_key"`
	Email           *string `json:"email" binding:"omitempty,email"`
	Phone           *string `json:"phone"`
	Location        *string `json:"location"`
	CVKey           *string `json:"cv_key"`
}

func (r personalInfoRequest) updates() map[string]any {
	u := map[string]any{}
	if r.Name != nil {
		u["name"] = *r.Name
	}
	if r.JobTitle != nil {
		u["job_title"] = *r.JobTitle
	}
	if r.Bio != nil {
		u["bio"] = *r.Bio
	}
	if r.ProfileImageKey != nil {
		u["profile_image_key"] = *r.ProfileImageKey
	}
	if r.Email != nil {
		u["email"] = *r.Email
	}
	if r.Phone != nil {
		u["phone"] = *r.Phone
	}
	if r.Location != nil {
		u["location"] = *r.Location
	}
	if r.CVKey != nil {
		u["cv_key"] = *r.CVKey
	}
	return u
}

// UpdatePersonalInfo 更新个人信息；记录不存在时首次保存会隐式创建。
func (h *PortfolioHandler) UpdatePersonalInfo(c *gin.Context) {
	var req personalInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	info, err := store.UpdatePersonalInfo(c.Request.Context(), req.updates())
	if err != nil {
		h.storeError(c, err, "failed to update personal info")
		return
	}
	c.JSON(http.StatusOK, newPersonalInfoResponse(info))
}

type socialLinkCreateRequest struct {
	Platform string `json:"platform" binding:"required,max=64"`
	URL      string `json:"url" binding:"required,url"`
	IconKey  string `json:"icon_key"`
}

type socialLinkUpdateRequest struct {
	Platform *string `json:"platform" binding:"omitempty,max=64"`
	URL      *string `json:"url" binding:"omitempty,url"`
	IconKey  *string `json:"icon_key"`
}

func (r socialLinkUpdateRequest) updates() map[string]any {
	u := map[string]any{}
	if r.Platform != nil {
		u["platform"] = *r.Platform
	}
	if r.URL != nil {
		u["url"] = *r.URL
	}
	if r.IconKey != nil {
		u["icon_key"] = *r.IconKey
	}
	return u
}

// CreateSocialLink 追加社交链接。
func (h *PortfolioHandler) CreateSocialLink(c *gin.Context) {
	var req socialLinkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	link, err := store.AddSocialLink(c.Request.Context(), database.SocialLink{
		Platform: req.Platform,
		URL:      req.URL,
		IconKey:  req.IconKey,
	})
	if err != nil {
		h.storeError(c, err, "failed to create social link")
		return
	}
	c.JSON(http.StatusCreated, newSocialLinkResponse(*link))
}

// UpdateSocialLink 部分更新社交链接。
func (h *PortfolioHandler) UpdateSocialLink(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}
	var req socialLinkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	updates := req.updates()
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	link, err := store.UpdateSocialLink(c.Request.Context(), id, updates)
	if err != nil {
		h.storeError(c, err, "failed to update social link")
		return
	}
	if link == nil {
		NotFound(c, "social link not found")
		return
	}
	c.JSON(http.StatusOK, newSocialLinkResponse(*link))
}

// DeleteSocialLink 删除社交链接。
func (h *PortfolioHandler) DeleteSocialLink(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.DeleteSocialLink(c.Request.Context(), id); err != nil {
		h.storeError(c, err, "failed to delete social link")
		return
	}
	c.Status(http.StatusNoContent)
}

// ReorderSocialLinks 按请求给定的 id 顺序持久化新的显示顺序。
func (h *PortfolioHandler) ReorderSocialLinks(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.ReorderSocialLinks(c.Request.Context(), req.IDs); err != nil {
		h.storeError(c, err, "failed to reorder social links")
		return
	}

	links := make([]socialLinkResponse, 0, len(store.SocialLinks))
	for _, l := range store.SocialLinks {
		links = append(links, newSocialLinkResponse(l))
	}
	c.JSON(http.StatusOK, links)
}

type projectCreateRequest struct {
	Name        string   `json:"name" binding:"required,max=255"`
	Description string   `json:"description"`
	DeployURL   string   `json:"deploy_url" binding:"omitempty,url"`
	SourceURL   string   `json:"source_url" binding:"omitempty,url"`
	TechStack   []string `json:"tech_stack"`
	ImageKeys   []string `json:"image_keys"`
}

type projectUpdateRequest struct {
	Name        *string   `json:"name" binding:"omitempty,max=255"`
	Description *string   `json:"description"`
	DeployURL   *string   `json:"deploy_url" binding:"omitempty,url"`
	SourceURL   *string   `json:"source_url" binding:"omitempty,url"`
	TechStack   *[]string `json:"tech_stack"`
	ImageKeys   *[]string `json:"image_keys"`
}

func (r projectUpdateRequest) updates() map[string]any {
	u := map[string]any{}
	if r.Name != nil {
		u["name"] = *r.Name
	}
	if r.Description != nil {
		u["description"] = *r.Description
	}
	if r.DeployURL != nil {
		u["deploy_url"] = *r.DeployURL
	}
	if r.SourceURL != nil {
		u["source_url"] = *r.SourceURL
	}
	if r.TechStack != nil {
		u["tech_stack"] = encodeStringList(*r.TechStack)
	}
	if r.ImageKeys != nil {
		u["image_keys"] = encodeStringList(*r.ImageKeys)
	}
	return u
}

// CreateProject 追加作品条目。tech_stack 是自由文本名称，允许引用
// 不存在于技术栈目录的名称（前端回退为首字母图标）。
func (h *PortfolioHandler) CreateProject(c *gin.Context) {
	var req projectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	project, err := store.AddProject(c.Request.Context(), database.Project{
		Name:        req.Name,
		Description: req.Description,
		DeployURL:   req.DeployURL,
		SourceURL:   req.SourceURL,
		TechStack:   encodeStringList(req.TechStack),
		ImageKeys:   encodeStringList(req.ImageKeys),
	})
	if err != nil {
		h.storeError(c, err, "failed to create project")
		return
	}
	c.JSON(http.StatusCreated, newProjectResponse(*project))
}

// UpdateProject 部分更新作品条目。
func (h *PortfolioHandler) UpdateProject(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}
	var req projectUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	updates := req.updates()
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	project, err := store.UpdateProject(c.Request.Context(), id, updates)
	if err != nil {
		h.storeError(c, err, "failed to update project")
		return
	}
	if project == nil {
		NotFound(c, "project not found")
		return
	}
	c.JSON(http.StatusOK, newProjectResponse(*project))
}

// DeleteProject 删除作品条目。
func (h *PortfolioHandler) DeleteProject(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.DeleteProject(c.Request.Context(), id); err != nil {
		h.storeError(c, err, "failed to delete project")
		return
	}
	c.Status(http.StatusNoContent)
}

// ReorderProjects 持久化作品的新顺序。
func (h *PortfolioHandler) ReorderProjects(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.ReorderProjects(c.Request.Context(), req.IDs); err != nil {
		h.storeError(c, err, "failed to reorder projects")
		return
	}

	projects := make([]projectResponse, 0, len(store.Projects))
	for _, p := range store.Projects {
		projects = append(projects, newProjectResponse(p))
	}
	c.JSON(http.StatusOK, projects)
}

type techStackCreateRequest struct {
	Name string `json:"name" binding:"required,max=128"`
	Icon string `json:"icon"`
}

type techStackUpdateRequest struct {
	Name *string `json:"name" binding:"omitempty,max=128"`
	Icon *string `json:"icon"`
}

func (r techStackUpdateRequest) updates() map[string]any {
	u := map[string]any{}
	if r.Name != nil {
		u["name"] = *r.Name
	}
	if r.Icon != nil {
		u["icon"] = *r.Icon
	}
	return u
}

// CreateTechStackItem 追加技术栈条目。
func (h *PortfolioHandler) CreateTechStackItem(c *gin.Context) {
	var req techStackCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	item, err := store.AddTechStackItem(c.Request.Context(), database.TechStackItem{
		Name: req.Name,
		Icon: req.Icon,
	})
	if err != nil {
		h.storeError(c, err, "failed to create tech stack item")
		return
	}
	c.JSON(http.StatusCreated, newTechStackItemResponse(*item))
}

// UpdateTechStackItem 部分更新技术栈条目。
func (h *PortfolioHandler) UpdateTechStackItem(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}
	var req techStackUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	updates := req.updates()
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	item, err := store.UpdateTechStackItem(c.Request.Context(), id, updates)
	if err != nil {
		h.storeError(c, err, "failed to update tech stack item")
		return
	}
	if item == nil {
		NotFound(c, "tech stack item not found")
		return
	}
	c.JSON(http.StatusOK, newTechStackItemResponse(*item))
}

// DeleteTechStackItem 删除技术栈条目；引用它的项目保持原有自由文本。
func (h *PortfolioHandler) DeleteTechStackItem(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.DeleteTechStackItem(c.Request.Context(), id); err != nil {
		h.storeError(c, err, "failed to delete tech stack item")
		return
	}
	c.Status(http.StatusNoContent)
}

// ReorderTechStackItems 持久化技术栈的新顺序。
func (h *PortfolioHandler) ReorderTechStackItems(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.ReorderTechStackItems(c.Request.Context(), req.IDs); err != nil {
		h.storeError(c, err, "failed to reorder tech stack")
		return
	}

	items := make([]techStackItemResponse, 0, len(store.TechStack))
	for _, t := range store.TechStack {
		items = append(items, newTechStackItemResponse(t))
	}
	c.JSON(http.StatusOK, items)
}

type achievementCreateRequest struct {
	Title string `json:"title" binding:"required,max=255"`
	// 描述软上限 140 字符：只在录入时约束，存量数据不回溯。
	Description string `json:"description" binding:"max=140"`
	Date        string `json:"date" binding:"max=64"`
	Type        string `json:"type" binding:"required,oneof=education achievement"`
}

type achievementUpdateRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=255"`
	Description *string `json:"description" binding:"omitempty,max=140"`
	Date        *string `json:"date" binding:"omitempty,max=64"`
	Type        *string `json:"type" binding:"omitempty,oneof=education achievement"`
}

func (r achievementUpdateRequest) updates() map[string]any {
	u := map[string]any{}
	if r.Title != nil {
		u["title"] = *r.Title
	}
	if r.Description != nil {
		u["description"] = *r.Description
	}
	if r.Date != nil {
		u["date"] = *r.Date
	}
	if r.Type != nil {
		u["type"] = *r.Type
	}
	return u
}

// CreateAchievement 追加成就条目。
func (h *PortfolioHandler) CreateAchievement(c *gin.Context) {
	var req achievementCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	achievement, err := store.AddAchievement(c.Request.Context(), database.Achievement{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Type:        req.Type,
	})
	if err != nil {
		h.storeError(c, err, "failed to create achievement")
		return
	}
	c.JSON(http.StatusCreated, newAchievementResponse(*achievement))
}

// UpdateAchievement 部分更新成就条目。
func (h *PortfolioHandler) UpdateAchievement(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}
	var req achievementUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	updates := req.updates()
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	achievement, err := store.UpdateAchievement(c.Request.Context(), id, updates)
	if err != nil {
		h.storeError(c, err, "failed to update achievement")
		return
	}
	if achievement == nil {
		NotFound(c, "achievement not found")
		return
	}
	c.JSON(http.StatusOK, newAchievementResponse(*achievement))
}

// DeleteAchievement 删除成就条目。
func (h *PortfolioHandler) DeleteAchievement(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.DeleteAchievement(c.Request.Context(), id); err != nil {
		h.storeError(c, err, "failed to delete achievement")
		return
	}
	c.Status(http.StatusNoContent)
}

// ReorderAchievements 持久化成就的新顺序。
func (h *PortfolioHandler) ReorderAchievements(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.ReorderAchievements(c.Request.Context(), req.IDs); err != nil {
		h.storeError(c, err, "failed to reorder achievements")
		return
	}

	achievements := make([]achievementResponse, 0, len(store.Achievements))
	for _, a := range store.Achievements {
		achievements = append(achievements, newAchievementResponse(a))
	}
	c.JSON(http.StatusOK, achievements)
}

type contactFormUpdateRequest struct {
	Title           *string `json:"title" binding:"omitempty,max=255"`
	Description     *string `json:"description"`
	ShowContactInfo *bool   `json:"show_contact_info"`
}

func (r contactFormUpdateRequest) updates() map[string]any {
	u := map[string]any{}
	if r.Title != nil {
		u["title"] = *r.Title
	}
	if r.Description != nil {
		u["description"] = *r.Description
	}
	if r.ShowContactInfo != nil {
		u["show_contact_info"] = *r.ShowContactInfo
	}
	return u
}

// UpdateContactForm 更新联系表单配置；表单不存在时首次更新会创建它。
func (h *PortfolioHandler) UpdateContactForm(c *gin.Context) {
	var req contactFormUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	form, err := store.UpdateContactForm(c.Request.Context(), req.updates())
	if err != nil {
		h.storeError(c, err, "failed to update contact form")
		return
	}
	c.JSON(http.StatusOK, newContactFormResponse(form))
}

type contactFieldCreateRequest struct {
	// Name 是机器键：小写字母数字，创建后不可修改。
	Name        string `json:"name" binding:"required,lowercase,alphanum,max=64"`
	Label       string `json:"label" binding:"required,max=255"`
	Type        string `json:"type" binding:"required,oneof=text email textarea"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder" binding:"max=255"`
}

type contactFieldUpdateRequest struct {
	Label       *string `json:"label" binding:"omitempty,max=255"`
	Type        *string `json:"type" binding:"omitempty,oneof=text email textarea"`
	Required    *bool   `json:"required"`
	Placeholder *string `json:"placeholder" binding:"omitempty,max=255"`
}

func (r contactFieldUpdateRequest) updates() map[string]any {
	u := map[string]any{}
	if r.Label != nil {
		u["label"] = *r.Label
	}
	if r.Type != nil {
		u["type"] = *r.Type
	}
	if r.Required != nil {
		u["required"] = *r.Required
	}
	if r.Placeholder != nil {
		u["placeholder"] = *r.Placeholder
	}
	return u
}

// CreateContactField 追加表单字段；没有表单时先创建默认表单。
func (h *PortfolioHandler) CreateContactField(c *gin.Context) {
	var req contactFieldCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	field, err := store.AddContactField(c.Request.Context(), database.ContactField{
		Name:        req.Name,
		Label:       req.Label,
		Type:        req.Type,
		Required:    req.Required,
		Placeholder: req.Placeholder,
	})
	if err != nil {
		h.storeError(c, err, "failed to create contact field")
		return
	}
	c.JSON(http.StatusCreated, newContactFieldResponse(*field))
}

// UpdateContactField 部分更新表单字段。
func (h *PortfolioHandler) UpdateContactField(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}
	var req contactFieldUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	updates := req.updates()
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	field, err := store.UpdateContactField(c.Request.Context(), id, updates)
	if err != nil {
		h.storeError(c, err, "failed to update contact field")
		return
	}
	if field == nil {
		NotFound(c, "contact field not found")
		return
	}
	c.JSON(http.StatusOK, newContactFieldResponse(*field))
}

// DeleteContactField 删除表单字段。
func (h *PortfolioHandler) DeleteContactField(c *gin.Context) {
	id, ok := idFromParam(c)
	if !ok {
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.DeleteContactField(c.Request.Context(), id); err != nil {
		h.storeError(c, err, "failed to delete contact field")
		return
	}
	c.Status(http.StatusNoContent)
}

// ReorderContactFields 持久化表单字段的新顺序。
func (h *PortfolioHandler) ReorderContactFields(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	store, ok := h.storeForOwner(c)
	if !ok {
		return
	}

	if err := store.ReorderContactFields(c.Request.Context(), req.IDs); err != nil {
		h.storeError(c, err, "failed to reorder contact fields")
		return
	}

	c.JSON(http.StatusOK, newContactFormResponse(store.ContactForm))
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}
