package admin

import (
	"context"
	"testing"
	"time"

	"github.com/dd-repo/hp/internal/models"
)

func TestListUsersSortedByRegistration(t *testing.T) {
	p, deps := newTestPanel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deps.users.users["old"] = confirmedUser("old", "old@example.com", base)
	deps.users.users["mid"] = confirmedUser("mid", "mid@example.com", base.AddDate(0, 1, 0))
	deps.users.users["new"] = confirmedUser("new", "new@example.com", base.AddDate(0, 2, 0))

	rows, err := p.ListUsers(context.Background(), ListQuery{})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].Username != "new" || rows[2].Username != "old" {
		t.Errorf("order = %s, %s, %s", rows[0].Username, rows[1].Username, rows[2].Username)
	}
}

func TestListUsersConfirmedFilter(t *testing.T) {
	p, deps := newTestPanel()

	now := time.Now()
	deps.users.users["yes"] = confirmedUser("yes", "yes@example.com", now)
	deps.users.users["no"] = unconfirmedUser("no", "no@example.com", now)

	cases := []struct {
		value string
		want  []string
	}{
		{"1", []string{"yes"}},
		{"0", []string{"no"}},
		{"2", []string{"no", "yes"}}, // unknown value: unfiltered
		{"", []string{"no", "yes"}},
	}

	for _, tc := range cases {
		rows, err := p.ListUsers(context.Background(), ListQuery{
			Filters: map[string]string{"confirmed": tc.value},
		})
		if err != nil {
			t.Fatalf("ListUsers(%q): %v", tc.value, err)
		}
		if len(rows) != len(tc.want) {
			t.Errorf("filter %q: got %d rows, want %d", tc.value, len(rows), len(tc.want))
			continue
		}
		seen := make(map[string]bool)
		for _, row := range rows {
			seen[row.Username] = true
		}
		for _, username := range tc.want {
			if !seen[username] {
				t.Errorf("filter %q: missing %s", tc.value, username)
			}
		}
	}
}

func TestListUsersBackendFilter(t *testing.T) {
	p, deps := newTestPanel()

	now := time.Now()
	backend := unconfirmedUser("robot", "robot@example.com", now)
	backend.RegistrationMethod = models.RegistrationBackend
	deps.users.users["robot"] = backend
	deps.users.users["human"] = unconfirmedUser("human", "human@example.com", now)

	rows, err := p.ListUsers(context.Background(), ListQuery{
		Filters: map[string]string{"backend": "1"},
	})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(rows) != 1 || rows[0].Username != "robot" {
		t.Errorf("rows = %v", rows)
	}
}

func TestListUsersSearchUsesIndex(t *testing.T) {
	p, deps := newTestPanel()

	now := time.Now()
	deps.users.users["alice"] = confirmedUser("alice", "alice@example.com", now)
	deps.users.users["bob"] = confirmedUser("bob", "bob@example.com", now)
	deps.searcher.users = map[string][]string{
		"ali": {"alice", "ghost"}, // stale index entry is skipped
	}

	rows, err := p.ListUsers(context.Background(), ListQuery{Search: "ali"})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(rows) != 1 || rows[0].Username != "alice" {
		t.Errorf("rows = %v", rows)
	}
}

func TestListGpgKeysComputedColumns(t *testing.T) {
	p, deps := newTestPanel()

	now := time.Now().UTC()
	p.now = func() time.Time { return now }

	expired := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	deps.keys.keys["good"] = &models.GpgKey{Fingerprint: "good", Created: now, Expires: &future}
	deps.keys.keys["expired"] = &models.GpgKey{Fingerprint: "expired", Created: now, Expires: &expired}
	deps.keys.keys["revoked"] = &models.GpgKey{Fingerprint: "revoked", Created: now, Revoked: true}

	rows, err := p.ListGpgKeys(context.Background(), ListQuery{})
	if err != nil {
		t.Fatalf("ListGpgKeys: %v", err)
	}

	byFingerprint := make(map[string]KeyRow)
	for _, row := range rows {
		byFingerprint[row.Fingerprint] = row
	}

	if row := byFingerprint["good"]; !row.Valid || !row.Usable {
		t.Errorf("good key: valid=%v usable=%v", row.Valid, row.Usable)
	}
	if row := byFingerprint["expired"]; !row.Valid || row.Usable {
		t.Errorf("expired key: valid=%v usable=%v", row.Valid, row.Usable)
	}
	if row := byFingerprint["revoked"]; row.Valid || row.Usable {
		t.Errorf("revoked key: valid=%v usable=%v", row.Valid, row.Usable)
	}
}

func TestListGpgKeysRevokedFilter(t *testing.T) {
	p, deps := newTestPanel()

	now := time.Now()
	deps.keys.keys["a"] = &models.GpgKey{Fingerprint: "a", Created: now, Revoked: true}
	deps.keys.keys["b"] = &models.GpgKey{Fingerprint: "b", Created: now}

	rows, err := p.ListGpgKeys(context.Background(), ListQuery{
		Filters: map[string]string{"revoked": "0"},
	})
	if err != nil {
		t.Fatalf("ListGpgKeys: %v", err)
	}
	if len(rows) != 1 || rows[0].Fingerprint != "b" {
		t.Errorf("rows = %v", rows)
	}
}

func TestListConfirmationsPurposeFilter(t *testing.T) {
	p, deps := newTestPanel()

	now := time.Now()
	deps.confirmations.items = []*models.Confirmation{
		{Key: "r1", Username: "a", Purpose: models.PurposeRegistration, Created: now, Expires: now.Add(time.Hour)},
		{Key: "e1", Username: "b", Purpose: models.PurposeSetEmail, Created: now, Expires: now.Add(time.Hour)},
	}

	rows, err := p.ListConfirmations(context.Background(), ListQuery{
		Filters: map[string]string{"purpose": models.PurposeRegistration},
	})
	if err != nil {
		t.Fatalf("ListConfirmations: %v", err)
	}
	if len(rows) != 1 || rows[0].Key != "r1" {
		t.Errorf("rows = %v", rows)
	}

	// An unknown purpose value applies no filtering.
	rows, err = p.ListConfirmations(context.Background(), ListQuery{
		Filters: map[string]string{"purpose": "no-such-purpose"},
	})
	if err != nil {
		t.Fatalf("ListConfirmations: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("unknown purpose filtered rows: %d", len(rows))
	}
}

func TestListConfirmationsExpiredColumn(t *testing.T) {
	p, deps := newTestPanel()

	now := time.Now().UTC()
	p.now = func() time.Time { return now }

	deps.confirmations.items = []*models.Confirmation{
		{Key: "live", Created: now.Add(-time.Hour), Expires: now.Add(time.Hour)},
		{Key: "dead", Created: now.Add(-2 * time.Hour), Expires: now.Add(-time.Hour)},
	}

	rows, err := p.ListConfirmations(context.Background(), ListQuery{})
	if err != nil {
		t.Fatalf("ListConfirmations: %v", err)
	}
	for _, row := range rows {
		if row.Key == "live" && row.Expired {
			t.Error("live confirmation marked expired")
		}
		if row.Key == "dead" && !row.Expired {
			t.Error("expired confirmation not marked")
		}
	}
}

func TestListLogPassesSearch(t *testing.T) {
	p, deps := newTestPanel()

	deps.log.entries = []*models.UserLogEntry{
		{Username: "alice", Actor: "admin", Message: "Account blocked", Created: time.Now()},
	}

	rows, err := p.ListLog(context.Background(), ListQuery{Search: "blocked"})
	if err != nil {
		t.Fatalf("ListLog: %v", err)
	}
	if deps.log.lastSearch != "blocked" {
		t.Errorf("search term not forwarded: %q", deps.log.lastSearch)
	}
	if deps.log.lastLimit != logViewLimit {
		t.Errorf("limit = %d", deps.log.lastLimit)
	}
	if len(rows) != 1 || rows[0].Message != "Account blocked" {
		t.Errorf("rows = %v", rows)
	}
}
