package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"noirkit/internal/auth"
)

const (
	wsWriteWait    = 5 * time.Second
	wsAuthWait     = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WsHandler 维护所有者仪表盘的实时通道：连接建立后第一条消息必须是
// 带访问令牌的 auth，鉴权通过才开始转发 user_notify:<id> 上的留言通知。
type WsHandler struct {
	redisClient    *redis.Client
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(redisClient *redis.Client, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		redisClient:    redisClient,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(h.allowedOrigins) == 0 {
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// 带内协议：客户端发 auth（携带令牌）与 ping，服务端回 auth_ok 与 pong，
// 留言通知由 worker 侧构造后原样转发。
type wsInboundMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type wsOutboundMessage struct {
	Type string `json:"type"`
}

// wsSession 串行化单个连接上的全部写操作（gorilla 要求单一写者）。
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) sendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSession) sendRaw(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSession) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait))
}

func (s *wsSession) close(code int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(wsWriteWait)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

// HandleConnection 升级连接、完成带内鉴权并启动读写循环。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	session := &wsSession{conn: conn}
	baseLog := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(session)
	if err != nil {
		baseLog.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}

	userLog := baseLog.With(slog.Uint64("user_id", uint64(userID)))
	if err := session.sendJSON(wsOutboundMessage{Type: "auth_ok"}); err != nil {
		userLog.Info("websocket auth ack failed", slog.Any("error", err))
		return
	}
	userLog.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go h.readLoop(ctx, session, errCh, cancel)
	go h.notifyLoop(ctx, session, userID, errCh, cancel, userLog)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			userLog.Info("websocket connection closed", slog.Any("error", err))
		} else {
			userLog.Info("websocket connection closed")
		}
	}
}

// authenticate 读取首条消息并校验令牌。auth 必须在限定时间内到达。
func (h *WsHandler) authenticate(session *wsSession) (uint, error) {
	_ = session.conn.SetReadDeadline(time.Now().Add(wsAuthWait))
	defer session.conn.SetReadDeadline(time.Time{})

	_, message, err := session.conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}

	var msg wsInboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		session.close(websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, fmt.Errorf("decode auth payload: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		session.close(websocket.ClosePolicyViolation, "auth required")
		return 0, fmt.Errorf("first message must be auth")
	}

	claims, err := h.authService.ValidateToken(msg.Token)
	if err != nil {
		session.close(websocket.ClosePolicyViolation, "unauthorized")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	if claims.TokenType != "access" {
		session.close(websocket.ClosePolicyViolation, "access token required")
		return 0, fmt.Errorf("invalid token type: %s", claims.TokenType)
	}
	if claims.MustChangePassword {
		session.close(websocket.ClosePolicyViolation, "password change required")
		return 0, fmt.Errorf("password change required")
	}

	return claims.UserID, nil
}

// readLoop 在鉴权后处理客户端消息：ping 回 pong，其余忽略；
// 同时借读取错误感知客户端断开。
func (h *WsHandler) readLoop(ctx context.Context, session *wsSession, errCh chan<- error, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := session.conn.ReadMessage()
		if err != nil {
			errCh <- fmt.Errorf("read message: %w", err)
			cancel()
			return
		}

		var msg wsInboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := session.sendJSON(wsOutboundMessage{Type: "pong"}); err != nil {
				errCh <- fmt.Errorf("write pong: %w", err)
				cancel()
				return
			}
		}
	}
}

// notifyLoop 订阅该所有者的通知通道，把合法的通知消息转发给客户端。
func (h *WsHandler) notifyLoop(
	ctx context.Context,
	session *wsSession,
	userID uint,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	channel := fmt.Sprintf("user_notify:%d", userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Info("subscribed to redis channel", slog.String("channel", channel))

	ch := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				errCh <- fmt.Errorf("pubsub channel closed")
				cancel()
				return
			}

			payload := []byte(msg.Payload)
			if !forwardableNotification(payload) {
				log.Warn("dropping malformed notification", slog.String("channel", channel))
				continue
			}
			if err := session.sendRaw(payload); err != nil {
				errCh <- fmt.Errorf("write message: %w", err)
				cancel()
				return
			}
		case <-ticker.C:
			if err := session.ping(); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				cancel()
				return
			}
		}
	}
}

// forwardableNotification 只放行带有 type 字段的 JSON 对象，
// 避免误发布到通道的内容原样到达前端。
func forwardableNotification(payload []byte) bool {
	var msg wsOutboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return false
	}
	return msg.Type != ""
}
