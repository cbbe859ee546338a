package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"noirkit/internal/api/middleware"
	"noirkit/internal/contact"
	"noirkit/internal/database"
	"noirkit/internal/tasks"
)

// ContactHandler 暴露访客提交入口与所有者的收件箱。
type ContactHandler struct {
	pipeline    *contact.Pipeline
	asynqClient *asynq.Client
	logger      *slog.Logger
}

// NewContactHandler 构造联系表单处理器。asynqClient 可为 nil（不发通知）。
func NewContactHandler(pipeline *contact.Pipeline, asynqClient *asynq.Client, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{
		pipeline:    pipeline,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

type submissionResponse struct {
	ID          uint           `json:"id"`
	FormData    map[string]any `json:"form_data"`
	SubmitterIP string         `json:"submitter_ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

func newSubmissionResponse(s database.ContactSubmission, includeMeta bool) submissionResponse {
	formData := map[string]any{}
	if len(s.FormData) > 0 {
		// 落库前已校验可序列化，这里失败只会得到空 map。
		_ = json.Unmarshal(s.FormData, &formData)
	}
	resp := submissionResponse{
		ID:          s.ID,
		FormData:    formData,
		SubmittedAt: s.SubmittedAt,
	}
	if includeMeta {
		resp.SubmitterIP = s.SubmitterIP
		resp.UserAgent = s.UserAgent
	}
	return resp
}

// Submit 处理访客提交。流水线内部完成限流、来源检查与校验，
// 这里只负责请求头提取、错误映射与成功响应。
func (h *ContactHandler) Submit(c *gin.Context) {
	var req contact.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}

	meta := contact.RequestMeta{
		ForwardedFor: c.GetHeader("X-Forwarded-For"),
		RealIP:       c.GetHeader("X-Real-IP"),
		Origin:       c.GetHeader("Origin"),
		Referer:      c.GetHeader("Referer"),
	}

	logger := middleware.LoggerFromContext(c)

	submission, remaining, err := h.pipeline.Submit(c.Request.Context(), req, meta)
	if err != nil {
		var rejection *contact.Rejection
		if errors.As(err, &rejection) {
			logger.Info("contact submission rejected",
				slog.Int("status", rejection.Status),
				slog.String("reason", rejection.Message),
			)
			Error(c, rejection.Status, rejection.Message)
			return
		}
		logger.Error("contact submission failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.enqueueNotify(c, submission)

	c.JSON(http.StatusOK, gin.H{
		"message":            "submission received",
		"data":               newSubmissionResponse(*submission, false),
		"rateLimitRemaining": remaining,
	})
}

// enqueueNotify 尽力而为地投递新留言通知任务；失败只记日志，不影响提交结果。
func (h *ContactHandler) enqueueNotify(c *gin.Context, submission *database.ContactSubmission) {
	if h.asynqClient == nil {
		return
	}

	logger := middleware.LoggerFromContext(c)
	task, err := tasks.NewSubmissionNotifyTask(submission.ID, submission.UserID, middleware.GetCorrelationID(c))
	if err != nil {
		logger.Error("build notify task failed", slog.Any("error", err))
		return
	}
	if _, err := h.asynqClient.EnqueueContext(c.Request.Context(), task); err != nil {
		logger.Error("enqueue notify task failed", slog.Any("error", err))
	}
}

// ListSubmissions 返回当前所有者收到的全部留言，含提交者 IP 与 UA。
func (h *ContactHandler) ListSubmissions(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	submissions, err := h.pipeline.ListSubmissions(c.Request.Context(), userID)
	if err != nil {
		middleware.LoggerFromContext(c).Error("list submissions failed", slog.Any("error", err))
		Internal(c, "failed to list submissions")
		return
	}

	items := make([]submissionResponse, 0, len(submissions))
	for _, s := range submissions {
		items = append(items, newSubmissionResponse(s, true))
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
