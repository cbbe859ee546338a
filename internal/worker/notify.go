package worker

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type SubmissionNotifyMessage struct {
	Type          string `json:"type"`
	SubmissionID  uint   `json:"submission_id"`
	SenderName    string `json:"sender_name"`
	Preview       string `json:"preview"`
	SubmittedAt   string `json:"submitted_at"`
	CorrelationID string `json:"correlation_id"`
}
