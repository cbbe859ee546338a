package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"noirkit/internal/database"
	"noirkit/internal/tasks"
)

const previewMaxRunes = 120

// SubmissionNotifyHandler 消费新留言通知任务，把摘要推送到所有者的
// WebSocket 通道。提交本身在 API 侧已落库，这里失败只影响实时提醒。
type SubmissionNotifyHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewSubmissionNotifyHandler 创建任务处理器。
func NewSubmissionNotifyHandler(db *gorm.DB, redisClient *redis.Client, logger *slog.Logger) *SubmissionNotifyHandler {
	return &SubmissionNotifyHandler{
		db:          db,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *SubmissionNotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SubmissionNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("submission_id", uint64(payload.SubmissionID)),
		slog.Uint64("owner_id", uint64(payload.OwnerID)),
	)

	var submission database.ContactSubmission
	if err := h.db.WithContext(ctx).First(&submission, payload.SubmissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("submission not found, skipping notification")
			return nil
		}
		log.Error("query submission failed", slog.Any("error", err))
		return err
	}

	senderName, preview := extractPreview(submission.FormData)
	notify := SubmissionNotifyMessage{
		Type:          "contact_submission",
		SubmissionID:  submission.ID,
		SenderName:    senderName,
		Preview:       preview,
		SubmittedAt:   submission.SubmittedAt.UTC().Format(time.RFC3339),
		CorrelationID: payload.CorrelationID,
	}

	if err := h.publishNotify(ctx, submission.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("submission notification published")
	return nil
}

func (h *SubmissionNotifyHandler) publishNotify(ctx context.Context, userID uint, notify SubmissionNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

// extractPreview 从表单数据里取发送者与消息摘要，超长时截断。
func extractPreview(raw []byte) (senderName, preview string) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", ""
	}
	if name, ok := data["name"].(string); ok {
		senderName = strings.TrimSpace(name)
	}
	message, _ := data["message"].(string)
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > previewMaxRunes {
		runes := []rune(message)
		message = string(runes[:previewMaxRunes]) + "…"
	}
	return senderName, message
}
