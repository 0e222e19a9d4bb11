package admin

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

const logViewLimit = 100

// Per-object actions offered in the user list.
const (
	ActionSendRegistration = "send-registration"
	ActionBlock            = "block"
)

// ListQuery carries the search term and filter values of a list request.
// Filter values "1" and "0" keep matching and non-matching rows respectively;
// any other value leaves the view unfiltered.
type ListQuery struct {
	Search  string
	Filters map[string]string
}

func (q ListQuery) filter(name string) string {
	return q.Filters[name]
}

// binaryFilter interprets a filter value; ok is false for unknown values,
// which means no filtering.
func binaryFilter(value string) (want, ok bool) {
	switch value {
	case "1":
		return true, true
	case "0":
		return false, true
	}
	return false, false
}

type UserRow struct {
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	RegistrationMethod string    `json:"registration_method"`
	Locale             string    `json:"locale"`
	Registered         time.Time `json:"registered"`
	Confirmed          bool      `json:"confirmed"`
	Blocked            bool      `json:"blocked"`
	Actions            []string  `json:"actions"`
}

type KeyRow struct {
	Fingerprint string     `json:"fingerprint"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Created     time.Time  `json:"created"`
	Expires     *time.Time `json:"expires,omitempty"`
	Refreshed   *time.Time `json:"refreshed,omitempty"`
	Revoked     bool       `json:"revoked"`
	Valid       bool       `json:"valid"`
	Usable      bool       `json:"usable"`
}

type ConfirmationRow struct {
	Key      string    `json:"key"`
	Username string    `json:"username"`
	Purpose  string    `json:"purpose"`
	To       string    `json:"to"`
	Created  time.Time `json:"created"`
	Expires  time.Time `json:"expires"`
	Expired  bool      `json:"expired"`
}

type LogRow struct {
	Username  string    `json:"username"`
	Actor     string    `json:"actor"`
	Message   string    `json:"message"`
	Comment   string    `json:"comment,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Created   time.Time `json:"created"`
}

// AvailableUserActions returns the per-object actions offered for a user.
// Sending a registration confirmation makes no sense for confirmed or blocked
// accounts; blocking is only offered for confirmed, not-yet-blocked accounts.
func AvailableUserActions(u *models.User) []string {
	var actions []string
	if !u.IsConfirmed() && !u.IsBlocked() {
		actions = append(actions, ActionSendRegistration)
	}
	if u.IsConfirmed() && !u.IsBlocked() {
		actions = append(actions, ActionBlock)
	}
	return actions
}

// ListUsers returns user rows matching the query, newest registration first.
func (p *Panel) ListUsers(ctx context.Context, q ListQuery) ([]UserRow, error) {
	var users []*models.User
	var err error

	if q.Search != "" {
		usernames, serr := p.searcher.SearchUsers(ctx, q.Search)
		if serr != nil {
			return nil, serr
		}
		for _, username := range usernames {
			user, gerr := p.users.Get(ctx, username)
			if gerr != nil {
				if errors.Is(gerr, models.ErrUserNotFound) {
					// Index document outlived the row.
					util.Warn("Search hit without backing user", zap.String("username", username))
					continue
				}
				return nil, gerr
			}
			users = append(users, user)
		}
	} else {
		users, err = p.users.List(ctx)
		if err != nil {
			return nil, err
		}
	}

	if want, ok := binaryFilter(q.filter("confirmed")); ok {
		users = filterUsers(users, func(u *models.User) bool { return u.IsConfirmed() == want })
	}
	if want, ok := binaryFilter(q.filter("backend")); ok {
		users = filterUsers(users, func(u *models.User) bool { return u.IsBackendCreated() == want })
	}

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Registered.After(users[j].Registered)
	})

	rows := make([]UserRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, UserRow{
			Username:           u.Username,
			Email:              u.Email,
			RegistrationMethod: u.RegistrationMethod,
			Locale:             u.Locale,
			Registered:         u.Registered,
			Confirmed:          u.IsConfirmed(),
			Blocked:            u.IsBlocked(),
			Actions:            AvailableUserActions(u),
		})
	}
	return rows, nil
}

// ListGpgKeys returns key rows matching the query, newest first, with the
// computed validity columns.
func (p *Panel) ListGpgKeys(ctx context.Context, q ListQuery) ([]KeyRow, error) {
	var keys []*models.GpgKey
	var err error

	if q.Search != "" {
		fingerprints, serr := p.searcher.SearchGpgKeys(ctx, q.Search)
		if serr != nil {
			return nil, serr
		}
		for _, fingerprint := range fingerprints {
			key, gerr := p.keys.Get(ctx, fingerprint)
			if gerr != nil {
				if errors.Is(gerr, models.ErrGpgKeyNotFound) {
					continue
				}
				return nil, gerr
			}
			keys = append(keys, key)
		}
	} else {
		keys, err = p.keys.List(ctx)
		if err != nil {
			return nil, err
		}
	}

	if want, ok := binaryFilter(q.filter("revoked")); ok {
		filtered := keys[:0]
		for _, k := range keys {
			if k.Revoked == want {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].Created.After(keys[j].Created)
	})

	now := p.now()
	rows := make([]KeyRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, KeyRow{
			Fingerprint: k.Fingerprint,
			Username:    k.Username,
			Email:       k.Email,
			Created:     k.Created,
			Expires:     k.Expires,
			Refreshed:   k.Refreshed,
			Revoked:     k.Revoked,
			Valid:       k.Valid(),
			Usable:      k.Usable(now),
		})
	}
	return rows, nil
}

// ListConfirmations returns confirmation rows matching the query. The purpose
// filter is an exact match over the known purposes; unknown values leave the
// view unfiltered.
func (p *Panel) ListConfirmations(ctx context.Context, q ListQuery) ([]ConfirmationRow, error) {
	var confirmations []*models.Confirmation
	var err error

	if q.Search != "" {
		keys, serr := p.searcher.SearchConfirmations(ctx, q.Search)
		if serr != nil {
			return nil, serr
		}
		byKey := make(map[string]bool, len(keys))
		for _, key := range keys {
			byKey[key] = true
		}
		all, lerr := p.confirmations.List(ctx)
		if lerr != nil {
			return nil, lerr
		}
		for _, c := range all {
			if byKey[c.Key] {
				confirmations = append(confirmations, c)
			}
		}
	} else {
		confirmations, err = p.confirmations.List(ctx)
		if err != nil {
			return nil, err
		}
	}

	if purpose := q.filter("purpose"); knownPurpose(purpose) {
		filtered := confirmations[:0]
		for _, c := range confirmations {
			if c.Purpose == purpose {
				filtered = append(filtered, c)
			}
		}
		confirmations = filtered
	}

	now := p.now()
	rows := make([]ConfirmationRow, 0, len(confirmations))
	for _, c := range confirmations {
		rows = append(rows, ConfirmationRow{
			Key:      c.Key,
			Username: c.Username,
			Purpose:  c.Purpose,
			To:       c.To,
			Created:  c.Created,
			Expires:  c.Expires,
			Expired:  c.Expired(now),
		})
	}
	return rows, nil
}

func knownPurpose(purpose string) bool {
	switch purpose {
	case models.PurposeRegistration, models.PurposeSetEmail, models.PurposeSetPassword:
		return true
	}
	return false
}

// ListLog returns the most recent audit log rows, newest first.
func (p *Panel) ListLog(ctx context.Context, q ListQuery) ([]LogRow, error) {
	entries, err := p.log.List(ctx, q.Search, logViewLimit)
	if err != nil {
		return nil, err
	}

	rows := make([]LogRow, 0, len(entries))
	for _, e := range entries {
		row := LogRow{
			Username: e.Username,
			Actor:    e.Actor,
			Message:  e.Message,
			Comment:  e.Comment,
			Created:  e.Created,
		}
		if e.IPAddress != nil {
			row.IPAddress = e.IPAddress.String()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func filterUsers(users []*models.User, keep func(*models.User) bool) []*models.User {
	filtered := users[:0]
	for _, u := range users {
		if keep(u) {
			filtered = append(filtered, u)
		}
	}
	return filtered
}
