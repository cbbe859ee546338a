package contact

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"noirkit/internal/database"
)

const (
	rateKeyPrefix = "rate:contact:"

	minMessageLength = 10
	maxMessageLength = 1000
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RateCounter 是限流所需的 Redis 客户端子集。
type RateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Rejection 表示流水线某一阶段的终止性拒绝，携带等价的 HTTP 状态码。
type Rejection struct {
	Status  int
	Message string
}

func (r *Rejection) Error() string { return r.Message }

func reject(status int, format string, args ...any) *Rejection {
	return &Rejection{Status: status, Message: fmt.Sprintf(format, args...)}
}

// SubmitRequest 是访客提交联系表单的请求体。
type SubmitRequest struct {
	PortfolioOwnerID string         `json:"portfolioOwnerId"`
	FormData         map[string]any `json:"formData"`
	Timestamp        string         `json:"timestamp"`
	UserAgent        string         `json:"userAgent"`
}

// RequestMeta 携带从 HTTP 请求头里提取的来源信息。
type RequestMeta struct {
	ForwardedFor string
	RealIP       string
	Origin       string
	Referer      string
}

// Pipeline 按固定顺序处理访客联系表单提交：
// 限流 → Origin/Referer 检查 → 结构校验 → 重放窗口 → 清洗 → 字段校验 → 落库。
// 任一阶段失败即终止，不影响限流计数（限流永远第一个执行）。
//
// 限流计数存放在 Redis（固定窗口，INCR + EXPIRE），多实例部署下计数一致。
type Pipeline struct {
	db             *gorm.DB
	counter        RateCounter
	limit          int
	window         time.Duration
	replayWindow   time.Duration
	allowedOrigins []string

	// now 可注入，便于测试重放窗口与时间戳。
	now func() time.Time
}

// NewPipeline 构造联系表单提交流水线。
func NewPipeline(db *gorm.DB, counter RateCounter, limit int, window, replayWindow time.Duration, allowedOrigins []string) *Pipeline {
	return &Pipeline{
		db:             db,
		counter:        counter,
		limit:          limit,
		window:         window,
		replayWindow:   replayWindow,
		allowedOrigins: allowedOrigins,
		now:            time.Now,
	}
}

// ClientIP 推导客户端 IP：X-Forwarded-For 首项 → X-Real-IP → "unknown"。
func ClientIP(meta RequestMeta) string {
	if meta.ForwardedFor != "" {
		first := strings.TrimSpace(strings.Split(meta.ForwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}
	if trimmed := strings.TrimSpace(meta.RealIP); trimmed != "" {
		return trimmed
	}
	return "unknown"
}

// Submit 执行完整流水线。成功时返回已落库的提交记录与剩余限流额度；
// 失败时返回 *Rejection（调用方据其 Status 映射 HTTP 响应）。
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest, meta RequestMeta) (*database.ContactSubmission, int, error) {
	ip := ClientIP(meta)

	count, err := incrWithTTL(ctx, p.counter, rateKeyPrefix+ip, p.window)
	if err != nil {
		// 计数器不可用时放行：限流是防滥用手段，不应让 Redis 故障拖垮提交。
		count = 0
	}
	if count > int64(p.limit) {
		return nil, 0, reject(http.StatusTooManyRequests, "rate limit exceeded, try again later")
	}
	remaining := p.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if err := p.checkOrigin(meta); err != nil {
		return nil, remaining, err
	}

	if strings.TrimSpace(req.PortfolioOwnerID) == "" || req.FormData == nil {
		return nil, remaining, reject(http.StatusBadRequest, "portfolio owner and form data are required")
	}
	ownerID, err := strconv.ParseUint(strings.TrimSpace(req.PortfolioOwnerID), 10, 64)
	if err != nil || ownerID == 0 {
		return nil, remaining, reject(http.StatusBadRequest, "invalid portfolio owner")
	}

	if err := p.checkReplayWindow(req.Timestamp); err != nil {
		return nil, remaining, err
	}

	sanitized := SanitizeFormData(req.FormData)

	if err := validateRequiredFields(sanitized); err != nil {
		return nil, remaining, err
	}

	payload, err := json.Marshal(sanitized)
	if err != nil {
		return nil, remaining, reject(http.StatusBadRequest, "form data is not serializable")
	}

	userAgent := strings.TrimSpace(req.UserAgent)
	if userAgent == "" {
		userAgent = "unknown"
	}

	submission := database.ContactSubmission{
		UserID:      uint(ownerID),
		FormData:    datatypes.JSON(payload),
		SubmitterIP: ip,
		UserAgent:   userAgent,
		SubmittedAt: p.now().UTC(),
	}
	if err := p.db.WithContext(ctx).Create(&submission).Error; err != nil {
		return nil, remaining, reject(http.StatusInternalServerError, "failed to store submission")
	}

	return &submission, remaining, nil
}

// ListSubmissions 返回某所有者的全部提交，按提交时间倒序。
func (p *Pipeline) ListSubmissions(ctx context.Context, ownerID uint) ([]database.ContactSubmission, error) {
	submissions := make([]database.ContactSubmission, 0)
	err := p.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("submitted_at desc").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

// checkOrigin 校验 Origin/Referer：头存在但不含任何白名单子串时拒绝。
// 两个头都缺失视为可接受——这是弱防御而非严格的 CSRF 方案，按原样保留。
func (p *Pipeline) checkOrigin(meta RequestMeta) error {
	for _, header := range []string{meta.Origin, meta.Referer} {
		if header == "" {
			continue
		}
		if !p.originAllowed(header) {
			return reject(http.StatusForbidden, "origin not allowed")
		}
	}
	return nil
}

func (p *Pipeline) originAllowed(header string) bool {
	for _, allowed := range p.allowedOrigins {
		if allowed != "" && strings.Contains(header, allowed) {
			return true
		}
	}
	return false
}

// checkReplayWindow 校验客户端时间戳与服务器时间的偏差。
// 闭区间边界：偏差恰好等于窗口时接受，超过才拒绝。
// 信任客户端时钟是已知弱点，为保持外部可见行为不变而保留。
func (p *Pipeline) checkReplayWindow(timestamp string) error {
	if strings.TrimSpace(timestamp) == "" {
		return reject(http.StatusBadRequest, "timestamp is required")
	}
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return reject(http.StatusBadRequest, "invalid timestamp")
	}

	diff := p.now().Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > p.replayWindow {
		return reject(http.StatusBadRequest, "request timestamp outside accepted window")
	}
	return nil
}

func validateRequiredFields(data map[string]any) error {
	for _, field := range []string{"name", "email", "message"} {
		value, ok := data[field].(string)
		if !ok || value == "" {
			return reject(http.StatusBadRequest, "field %q is required", field)
		}
	}

	email := data["email"].(string)
	if !emailPattern.MatchString(email) {
		return reject(http.StatusBadRequest, "field %q must be a valid email address", "email")
	}

	message := data["message"].(string)
	if length := utf8.RuneCountInString(message); length < minMessageLength || length > maxMessageLength {
		return reject(http.StatusBadRequest, "field %q must be between %d and %d characters", "message", minMessageLength, maxMessageLength)
	}
	return nil
}

func incrWithTTL(ctx context.Context, client RateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}
