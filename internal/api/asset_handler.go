package api

import (
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"noirkit/internal/config"
	"noirkit/internal/database"
	"noirkit/internal/storage"
)

// AssetHandler 负责所有者资产（头像、项目图、图标、CV）的上传与访问。
type AssetHandler struct {
	db      *gorm.DB
	storage *storage.Client
	redis   redis.UniversalClient
	logger  *slog.Logger
	cfg     config.AssetConfig
}

// NewAssetHandler 返回 AssetHandler 实例。
func NewAssetHandler(db *gorm.DB, storageClient *storage.Client, redisClient redis.UniversalClient, logger *slog.Logger, cfg config.AssetConfig) *AssetHandler {
	return &AssetHandler{
		db:      db,
		storage: storageClient,
		redis:   redisClient,
		logger:  logger,
		cfg:     cfg,
	}
}

var extensionByMIME = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
}

// UploadAsset 处理受保护的文件上传：类型白名单 → 大小限制 →
// 配额检查 → 病毒扫描 → 写对象存储 → 落库。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !h.mimeAllowed(contentType) {
		BadRequest(c, "unsupported file type")
		return
	}
	if h.cfg.MaxBytes > 0 && file.Size > h.cfg.MaxBytes {
		BadRequest(c, "file too large")
		return
	}

	ctx := c.Request.Context()

	if h.cfg.MaxPerUser > 0 {
		var count int64
		if err := h.db.WithContext(ctx).Model(&database.Asset{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			h.logger.Error("count assets", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		if count >= int64(h.cfg.MaxPerUser) {
			BadRequest(c, "asset quota exceeded")
			return
		}
	}

	if h.cfg.MaxUploadsPerDay > 0 {
		dayKey := fmt.Sprintf("rate:asset-upload:%d:%s", userID, time.Now().UTC().Format("20060102"))
		count, err := incrWithTTL(ctx, h.redis, dayKey, 24*time.Hour)
		if err != nil {
			count = 0
		}
		if count > int64(h.cfg.MaxUploadsPerDay) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily upload limit exceeded"})
			return
		}
	}

	if err := h.scanFile(c, file); err != nil {
		return
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer fileReader.Close()

	ext := extensionByMIME[strings.ToLower(strings.TrimSpace(contentType))]
	if ext == "" {
		ext = strings.ToLower(path.Ext(file.Filename))
	}
	objectKey := fmt.Sprintf("portfolio-assets/%d/%s%s", userID, uuid.NewString(), ext)

	if _, err := h.storage.UploadFile(ctx, objectKey, fileReader, file.Size, contentType); err != nil {
		h.logger.Error("upload file", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	asset := database.Asset{
		UserID:      userID,
		ObjectKey:   objectKey,
		ContentType: contentType,
		Size:        file.Size,
	}
	if err := h.db.WithContext(ctx).Create(&asset).Error; err != nil {
		h.logger.Error("record asset", slog.Any("error", err))
		// 对象已写入，删除它避免留下孤儿。
		_ = h.storage.DeleteObject(ctx, objectKey)
		Internal(c, "failed to record asset")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey})
}

// scanFile 在上传前扫描病毒。未配置 clamd 地址时跳过扫描。
// 返回非 nil 表示响应已写出。
func (h *AssetHandler) scanFile(c *gin.Context, file *multipart.FileHeader) error {
	if strings.TrimSpace(h.cfg.ClamdAddr) == "" {
		return nil
	}

	clamdClient := clamd.NewClamd(h.cfg.ClamdAddr)

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return err
	}

	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
	fileReader.Close()
	if err != nil {
		h.logger.Error("scan file", slog.String("error", err.Error()))
		Internal(c, "failed to scan file")
		return err
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			BadRequest(c, "malicious file detected")
			return fmt.Errorf("malicious file detected")
		}
	}
	return nil
}

// ListAssets 列出用户上传的资产，附带限时预览链接。
func (h *AssetHandler) ListAssets(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	assets := make([]database.Asset, 0)
	if err := h.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&assets).Error; err != nil {
		h.logger.Error("list assets", slog.Any("error", err))
		Internal(c, "failed to list assets")
		return
	}

	items := make([]gin.H, 0, len(assets))
	for _, asset := range assets {
		url, err := h.storage.GeneratePresignedURL(ctx, asset.ObjectKey, 10*time.Minute)
		if err != nil {
			h.logger.Error("generate asset url", slog.String("objectKey", asset.ObjectKey), slog.String("error", err.Error()))
			continue
		}
		items = append(items, gin.H{
			"objectKey":   asset.ObjectKey,
			"previewUrl":  url,
			"contentType": asset.ContentType,
			"size":        asset.Size,
			"uploadedAt":  asset.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetAssetURL 返回资产的临时预签名 URL。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}

	if !isValidOwnerAssetObjectKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(c.Request.Context(), objectKey, 15*time.Minute)
	if err != nil {
		h.logger.Error("generate presigned url", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// DeleteAsset 删除对象与记录。对象不存在时幂等成功。
func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !isValidOwnerAssetObjectKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	ctx := c.Request.Context()
	if err := h.storage.DeleteObject(ctx, objectKey); err != nil && !storage.IsNoSuchKey(err) {
		h.logger.Error("delete object", slog.Any("error", err))
		Internal(c, "failed to delete asset")
		return
	}
	if err := h.db.WithContext(ctx).
		Where("user_id = ? AND object_key = ?", userID, objectKey).
		Delete(&database.Asset{}).Error; err != nil {
		h.logger.Error("delete asset record", slog.Any("error", err))
		Internal(c, "failed to delete asset")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AssetHandler) mimeAllowed(contentType string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if normalized == "" {
		return false
	}
	for _, allowed := range h.cfg.MIMEWhitelist {
		if normalized == strings.ToLower(strings.TrimSpace(allowed)) {
			return true
		}
	}
	return false
}
