package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/admin"
	"github.com/dd-repo/hp/internal/models"
)

// Minimal in-memory panel dependencies for routing tests.

type stubUsers struct {
	users map[string]*models.User
}

func (s *stubUsers) Get(ctx context.Context, username string) (*models.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, username)
	}
	return u, nil
}

func (s *stubUsers) List(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *stubUsers) Save(ctx context.Context, user *models.User) error {
	s.users[user.Username] = user
	return nil
}

func (s *stubUsers) SetBlocked(ctx context.Context, username string, at time.Time) error {
	u, ok := s.users[username]
	if !ok {
		return models.ErrUserNotFound
	}
	u.Blocked = &at
	return nil
}

func (s *stubUsers) FindByNormalizedEmail(ctx context.Context, normalizedEmail string) ([]*models.User, error) {
	var users []*models.User
	for _, u := range s.users {
		if u.NormalizedEmail == normalizedEmail {
			users = append(users, u)
		}
	}
	return users, nil
}

type stubKeys struct{}

func (stubKeys) Get(ctx context.Context, fingerprint string) (*models.GpgKey, error) {
	return nil, models.ErrGpgKeyNotFound
}
func (stubKeys) List(ctx context.Context) ([]*models.GpgKey, error)   { return nil, nil }
func (stubKeys) Update(ctx context.Context, key *models.GpgKey) error { return nil }

type stubConfirmations struct{}

func (stubConfirmations) Create(ctx context.Context, c *models.Confirmation) error { return nil }
func (stubConfirmations) List(ctx context.Context) ([]*models.Confirmation, error) { return nil, nil }
func (stubConfirmations) FindForUser(ctx context.Context, username, purpose string) ([]*models.Confirmation, error) {
	return nil, nil
}

type stubLog struct {
	entries []*models.UserLogEntry
}

func (s *stubLog) Record(ctx context.Context, entry *models.UserLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLog) List(ctx context.Context, search string, limit int) ([]*models.UserLogEntry, error) {
	return s.entries, nil
}

type stubSearcher struct{}

func (stubSearcher) SearchUsers(ctx context.Context, term string) ([]string, error) { return nil, nil }
func (stubSearcher) SearchGpgKeys(ctx context.Context, term string) ([]string, error) {
	return nil, nil
}
func (stubSearcher) SearchConfirmations(ctx context.Context, term string) ([]string, error) {
	return nil, nil
}

type stubReindexer struct{}

func (stubReindexer) ReindexUsers(ctx context.Context, users []*models.User) error { return nil }
func (stubReindexer) ReindexGpgKeys(ctx context.Context, keys []*models.GpgKey) error {
	return nil
}

type stubRefresher struct{}

func (stubRefresher) Refresh(ctx context.Context, key *models.GpgKey) error { return nil }

type stubQueue struct{}

func (stubQueue) EnqueueResendConfirmations(ctx context.Context, keys []string) error { return nil }
func (stubQueue) EnqueueSendConfirmation(ctx context.Context, c *models.Confirmation) error {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubUsers, *stubLog) {
	t.Helper()

	users := &stubUsers{users: make(map[string]*models.User)}
	log := &stubLog{}

	panel := admin.NewPanel(admin.Deps{
		Users:         users,
		Keys:          stubKeys{},
		Confirmations: stubConfirmations{},
		Log:           log,
		Searcher:      stubSearcher{},
		Reindexer:     stubReindexer{},
		Refresher:     stubRefresher{},
		Queue:         stubQueue{},
		Recorder:      log,
	})

	logger := zap.NewNop()
	router := NewRouter(NewAdminHandler(panel, logger), logger, false)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, users, log
}

func decodeResponse(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestListUsersEndpoint(t *testing.T) {
	srv, users, _ := newTestServer(t)

	confirmed := time.Now().Add(-time.Hour)
	users.users["alice"] = &models.User{
		Username:        "alice",
		Email:           "alice@example.com",
		NormalizedEmail: "alice@example.com",
		Registered:      time.Now().Add(-2 * time.Hour),
		Confirmed:       &confirmed,
	}

	resp, err := http.Get(srv.URL + "/admin/users/?confirmed=1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	out := decodeResponse(t, resp)

	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("status=%d success=%v", resp.StatusCode, out.Success)
	}

	rows, ok := out.Data.([]interface{})
	if !ok || len(rows) != 1 {
		t.Fatalf("data = %v", out.Data)
	}
	row := rows[0].(map[string]interface{})
	if row["username"] != "alice" {
		t.Errorf("row = %v", row)
	}
	actions, _ := row["actions"].([]interface{})
	if len(actions) != 1 || actions[0] != admin.ActionBlock {
		t.Errorf("actions = %v", actions)
	}
}

func TestBlockUserEndpoint(t *testing.T) {
	srv, users, log := newTestServer(t)

	confirmed := time.Now().Add(-time.Hour)
	users.users["alice"] = &models.User{
		Username:        "alice",
		Email:           "alice@example.com",
		NormalizedEmail: "alice@example.com",
		Registered:      time.Now().Add(-2 * time.Hour),
		Confirmed:       &confirmed,
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/admin/users/alice/block", nil)
	req.Header.Set("X-Admin-User", "operator")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	out := decodeResponse(t, resp)

	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("status=%d success=%v notifications=%v", resp.StatusCode, out.Success, out.Notifications)
	}
	if !users.users["alice"].IsBlocked() {
		t.Error("alice not blocked")
	}
	if len(log.entries) != 1 || log.entries[0].Actor != "operator" {
		t.Errorf("log entries = %v", log.entries)
	}
}

func TestBlockUnknownUserReportsNotification(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/admin/users/ghost/block", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	out := decodeResponse(t, resp)

	// Bulk actions report failures as notifications, not HTTP errors.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.Success {
		t.Error("success despite failed item")
	}
	if len(out.Notifications) != 1 || out.Notifications[0].Level != admin.LevelError {
		t.Errorf("notifications = %v", out.Notifications)
	}
}

func TestUpdateUnknownUserReturns404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := strings.NewReader(`{"email":"new@example.com"}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/admin/users/ghost", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRebuildSearchIndexEndpoint(t *testing.T) {
	srv, users, _ := newTestServer(t)

	users.users["alice"] = &models.User{
		Username:   "alice",
		Email:      "alice@example.com",
		Registered: time.Now(),
	}

	resp, err := http.Post(srv.URL+"/admin/search/reindex", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	out := decodeResponse(t, resp)

	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("status=%d success=%v notifications=%v", resp.StatusCode, out.Success, out.Notifications)
	}
}

func TestBaseURLFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://admin.example.com/admin/users/actions/send-registration", nil)
	if got := baseURLFromRequest(r); got != "http://admin.example.com" {
		t.Errorf("baseURL = %q", got)
	}

	r.Header.Set("X-Forwarded-Proto", "https")
	if got := baseURLFromRequest(r); got != "https://admin.example.com" {
		t.Errorf("forwarded baseURL = %q", got)
	}
}

func TestListQueryFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/admin/users/?q=ali&confirmed=1&ignored=1", nil)
	q := listQueryFromRequest(r, "confirmed", "backend")

	if q.Search != "ali" {
		t.Errorf("search = %q", q.Search)
	}
	if q.Filters["confirmed"] != "1" {
		t.Errorf("confirmed filter = %q", q.Filters["confirmed"])
	}
	if _, ok := q.Filters["ignored"]; ok {
		t.Error("undeclared filter captured")
	}
}
