package models

import "time"

type GpgKey struct {
	Fingerprint string     `db:"fingerprint"`
	Username    string     `db:"username"`
	Email       string     `db:"email"`
	Created     time.Time  `db:"created"`
	Expires     *time.Time `db:"expires"`
	Revoked     bool       `db:"revoked"`
	Refreshed   *time.Time `db:"refreshed"`
}

// Valid is the inverse of Revoked, which reads better in list views.
func (k *GpgKey) Valid() bool {
	return !k.Revoked
}

// Usable reports whether the key can still be used for encryption: not
// revoked and not past its expiry. Keys without an expiry never expire.
func (k *GpgKey) Usable(now time.Time) bool {
	if k.Revoked {
		return false
	}
	if k.Expires != nil {
		return k.Expires.After(now)
	}
	return true
}
