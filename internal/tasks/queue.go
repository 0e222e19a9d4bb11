package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/encryption"
	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

const (
	TopicResendConfirmations = "account.confirmations.resend"
	TopicSendConfirmation    = "account.confirmations.send"
)

// Producer is the slice of the Kafka producer the queue uses.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// ResendConfirmationsTask asks a worker to resend the mails behind a set of
// existing confirmation keys. One task covers the whole selection.
type ResendConfirmationsTask struct {
	Keys        []string  `json:"keys"`
	RequestedAt time.Time `json:"requested_at"`
}

// SendConfirmationTask asks a worker to send a freshly created confirmation.
// The destination address is envelope-encrypted; workers hold the decrypt
// path.
type SendConfirmationTask struct {
	Key         string                    `json:"key"`
	Username    string                    `json:"username"`
	Purpose     string                    `json:"purpose"`
	To          *encryption.EncryptedData `json:"to"`
	Locale      string                    `json:"locale"`
	BaseURL     string                    `json:"base_url"`
	RequestedAt time.Time                 `json:"requested_at"`
}

// Queue publishes background mail tasks to Kafka. Fire and forget: callers
// get an error only when the message never reached the broker.
type Queue struct {
	producer Producer
	crypto   *encryption.Manager
}

func NewQueue(producer Producer, crypto *encryption.Manager) *Queue {
	return &Queue{
		producer: producer,
		crypto:   crypto,
	}
}

// EnqueueResendConfirmations publishes a single task carrying every selected
// confirmation key.
func (q *Queue) EnqueueResendConfirmations(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	task := ResendConfirmationsTask{
		Keys:        keys,
		RequestedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal resend task: %w", err)
	}

	taskID := uuid.New().String()
	err = q.producer.ProduceMessage(ctx, TopicResendConfirmations, []byte(taskID), payload, map[string]string{
		"task_id": taskID,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue resend task: %w", err)
	}

	util.Info("Resend confirmations task enqueued",
		zap.String("task_id", taskID),
		zap.Int("key_count", len(keys)))
	return nil
}

// EnqueueSendConfirmation publishes a send task for one confirmation. The
// address is encrypted before it hits the wire.
func (q *Queue) EnqueueSendConfirmation(ctx context.Context, c *models.Confirmation) error {
	to, err := q.crypto.EncryptField(ctx, c.To)
	if err != nil {
		return fmt.Errorf("failed to encrypt destination address: %w", err)
	}

	task := SendConfirmationTask{
		Key:         c.Key,
		Username:    c.Username,
		Purpose:     c.Purpose,
		To:          to,
		Locale:      c.Locale,
		BaseURL:     c.BaseURL,
		RequestedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal send task: %w", err)
	}

	err = q.producer.ProduceMessage(ctx, TopicSendConfirmation, []byte(c.Username), payload, map[string]string{
		"purpose": c.Purpose,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue send task: %w", err)
	}

	util.Info("Send confirmation task enqueued",
		zap.String("username", c.Username),
		zap.String("purpose", c.Purpose))
	return nil
}
