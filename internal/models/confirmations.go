package models

import "time"

// Confirmation purposes. A confirmation proves control of an email address
// for exactly one of these.
const (
	PurposeRegistration = "registration"
	PurposeSetEmail     = "set-email"
	PurposeSetPassword  = "set-password"
)

type Confirmation struct {
	Key      string    `db:"key"`
	Username string    `db:"username"`
	Purpose  string    `db:"purpose"`
	To       string    `db:"to_address"`
	Locale   string    `db:"locale"`
	BaseURL  string    `db:"base_url"`
	Created  time.Time `db:"created"`
	Expires  time.Time `db:"expires"`
}

func (c *Confirmation) Expired(now time.Time) bool {
	return !c.Expires.After(now)
}
