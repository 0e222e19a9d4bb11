package tasks

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dd-repo/hp/internal/config"
	"github.com/dd-repo/hp/internal/encryption"
	"github.com/dd-repo/hp/internal/models"
)

type capturedMessage struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	messages []capturedMessage
}

func (f *fakeProducer) ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.messages = append(f.messages, capturedMessage{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func newTestQueue() (*Queue, *fakeProducer, *encryption.Manager) {
	producer := &fakeProducer{}
	crypto := encryption.NewManager(&config.Config{}, nil)
	return NewQueue(producer, crypto), producer, crypto
}

func TestEnqueueResendConfirmationsSingleTask(t *testing.T) {
	q, producer, _ := newTestQueue()

	keys := []string{"key-a", "key-b", "key-c"}
	if err := q.EnqueueResendConfirmations(context.Background(), keys); err != nil {
		t.Fatalf("EnqueueResendConfirmations: %v", err)
	}

	// All keys ride in one message, not one message per key.
	if len(producer.messages) != 1 {
		t.Fatalf("produced %d messages, want 1", len(producer.messages))
	}

	msg := producer.messages[0]
	if msg.topic != TopicResendConfirmations {
		t.Errorf("topic = %q", msg.topic)
	}

	var task ResendConfirmationsTask
	if err := json.Unmarshal(msg.value, &task); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(task.Keys) != 3 || task.Keys[0] != "key-a" {
		t.Errorf("task keys = %v", task.Keys)
	}
}

func TestEnqueueResendConfirmationsEmptySelection(t *testing.T) {
	q, producer, _ := newTestQueue()

	if err := q.EnqueueResendConfirmations(context.Background(), nil); err != nil {
		t.Fatalf("EnqueueResendConfirmations: %v", err)
	}
	if len(producer.messages) != 0 {
		t.Errorf("produced %d messages for empty selection", len(producer.messages))
	}
}

func TestEnqueueSendConfirmationEncryptsAddress(t *testing.T) {
	q, producer, crypto := newTestQueue()

	c := &models.Confirmation{
		Key:      "conf-1",
		Username: "alice",
		Purpose:  models.PurposeRegistration,
		To:       "alice@example.com",
		Locale:   "en",
		BaseURL:  "https://example.com",
		Created:  time.Now().UTC(),
	}
	if err := q.EnqueueSendConfirmation(context.Background(), c); err != nil {
		t.Fatalf("EnqueueSendConfirmation: %v", err)
	}

	if len(producer.messages) != 1 {
		t.Fatalf("produced %d messages, want 1", len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.topic != TopicSendConfirmation {
		t.Errorf("topic = %q", msg.topic)
	}

	// The plaintext address must not appear anywhere in the payload.
	if strings.Contains(string(msg.value), "alice@example.com") {
		t.Error("plaintext address leaked into task payload")
	}

	var task SendConfirmationTask
	if err := json.Unmarshal(msg.value, &task); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if task.Username != "alice" || task.Purpose != models.PurposeRegistration {
		t.Errorf("task = %+v", task)
	}

	got, err := crypto.DecryptField(context.Background(), task.To)
	if err != nil {
		t.Fatalf("DecryptField: %v", err)
	}
	if got != "alice@example.com" {
		t.Errorf("decrypted address = %q", got)
	}
}
