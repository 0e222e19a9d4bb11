package models

import "time"

// Registration methods. Accounts created through the admin backend never
// receive registration confirmations.
const (
	RegistrationWebsite = "website"
	RegistrationBackend = "backend"
)

type User struct {
	UserBucket         int        `db:"user_bucket"`
	Username           string     `db:"username"`
	Email              string     `db:"email"`
	NormalizedEmail    string     `db:"normalized_email"`
	GPGFingerprint     string     `db:"gpg_fingerprint"`
	RegistrationMethod string     `db:"registration_method"`
	Locale             string     `db:"locale"`
	Registered         time.Time  `db:"registered"`
	Confirmed          *time.Time `db:"confirmed"`
	Blocked            *time.Time `db:"blocked"`
}

func (u *User) IsConfirmed() bool {
	return u.Confirmed != nil
}

func (u *User) IsBlocked() bool {
	return u.Blocked != nil
}

func (u *User) IsBackendCreated() bool {
	return u.RegistrationMethod == RegistrationBackend
}
