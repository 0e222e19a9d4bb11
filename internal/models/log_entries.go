package models

import (
	"fmt"
	"net"
	"time"
)

// UserLogEntry is one line in a user's audit trail. Entries are append-only
// and attributed to the operator (or system) that caused them.
type UserLogEntry struct {
	EventBucket int       `db:"event_bucket"`
	EntryID     string    `db:"entry_id"`
	Username    string    `db:"username"`
	Actor       string    `db:"actor"`
	Message     string    `db:"message"`
	Comment     string    `db:"comment"`
	IPAddress   net.IP    `db:"ip_address"`
	Created     time.Time `db:"created"`
}

func (e *UserLogEntry) String() string {
	return fmt.Sprintf("%s: %s", e.Username, e.Message)
}
