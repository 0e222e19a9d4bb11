package audit

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/dd-repo/hp/internal/models"
)

// Recorder persists user log entries.
type Recorder interface {
	Record(ctx context.Context, entry *models.UserLogEntry) error
}

// Scope stamps a fixed actor and comment onto every entry it records, so a
// batch of related writes (a block cascade, a bulk resend) carries uniform
// attribution.
type Scope struct {
	recorder Recorder
	actor    string
	comment  string
}

func NewScope(recorder Recorder, actor, comment string) *Scope {
	return &Scope{
		recorder: recorder,
		actor:    actor,
		comment:  comment,
	}
}

// Log records a message against a user within this scope.
func (s *Scope) Log(ctx context.Context, username, message string, addr net.IP) error {
	entry := &models.UserLogEntry{
		EntryID:   uuid.New().String(),
		Username:  username,
		Actor:     s.actor,
		Message:   message,
		Comment:   s.comment,
		IPAddress: addr,
		Created:   time.Now().UTC(),
	}
	return s.recorder.Record(ctx, entry)
}
