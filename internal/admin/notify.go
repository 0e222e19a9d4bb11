package admin

import "fmt"

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a user-facing message produced by an admin action, in place
// of raising: bulk actions collect these instead of aborting.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

type Notifications []Notification

func (n *Notifications) Infof(format string, args ...interface{}) {
	*n = append(*n, Notification{Level: LevelInfo, Message: fmt.Sprintf(format, args...)})
}

func (n *Notifications) Successf(format string, args ...interface{}) {
	*n = append(*n, Notification{Level: LevelSuccess, Message: fmt.Sprintf(format, args...)})
}

func (n *Notifications) Errorf(format string, args ...interface{}) {
	*n = append(*n, Notification{Level: LevelError, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any collected notification is an error.
func (n Notifications) HasErrors() bool {
	for _, note := range n {
		if note.Level == LevelError {
			return true
		}
	}
	return false
}
