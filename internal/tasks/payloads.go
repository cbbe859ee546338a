package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeSubmissionNotify = "contact:notify"
)

// SubmissionNotifyPayload 描述通知所有者新留言所需的最小信息。
type SubmissionNotifyPayload struct {
	SubmissionID  uint   `json:"submission_id"`
	OwnerID       uint   `json:"owner_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewSubmissionNotifyTask 构造一个新留言通知任务。
func NewSubmissionNotifyTask(submissionID, ownerID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SubmissionNotifyPayload{
		SubmissionID:  submissionID,
		OwnerID:       ownerID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSubmissionNotify, payload), nil
}
