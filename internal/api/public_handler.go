package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"noirkit/internal/api/middleware"
	"noirkit/internal/portfolio"
)

// PublicHandler 暴露无需登录的作品集读取接口。
type PublicHandler struct {
	repo portfolio.Repository
}

// NewPublicHandler 构造公共读取处理器。
func NewPublicHandler(repo portfolio.Repository) *PublicHandler {
	return &PublicHandler{repo: repo}
}

// GetPortfolio 返回站点所有者的作品集。
// 尚未创建任何内容时返回空快照而不是 404，前端据此渲染占位页。
func (h *PublicHandler) GetPortfolio(c *gin.Context) {
	store := portfolio.NewPublicStore(h.repo)
	if err := store.FetchAll(c.Request.Context()); err != nil {
		middleware.LoggerFromContext(c).Error("load public portfolio failed", slog.Any("error", err))
		Internal(c, "failed to load portfolio")
		return
	}

	c.JSON(http.StatusOK, newPortfolioResponse(store.OwnerID(), store))
}
