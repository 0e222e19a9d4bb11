package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

// In-memory doubles for the panel's storage and queue surfaces.

type fakeUsers struct {
	users map[string]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*models.User)}
	for _, u := range users {
		f.users[u.Username] = u
	}
	return f
}

func (f *fakeUsers) Get(ctx context.Context, username string) (*models.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, username)
	}
	return u, nil
}

func (f *fakeUsers) List(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	for _, u := range f.users {
		users = append(users, u)
	}
	return users, nil
}

func (f *fakeUsers) Save(ctx context.Context, user *models.User) error {
	f.users[user.Username] = user
	return nil
}

func (f *fakeUsers) SetBlocked(ctx context.Context, username string, at time.Time) error {
	u, ok := f.users[username]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUserNotFound, username)
	}
	u.Blocked = &at
	return nil
}

func (f *fakeUsers) FindByNormalizedEmail(ctx context.Context, normalizedEmail string) ([]*models.User, error) {
	var users []*models.User
	for _, u := range f.users {
		if u.NormalizedEmail == normalizedEmail {
			users = append(users, u)
		}
	}
	return users, nil
}

type fakeKeys struct {
	keys map[string]*models.GpgKey
}

func newFakeKeys(keys ...*models.GpgKey) *fakeKeys {
	f := &fakeKeys{keys: make(map[string]*models.GpgKey)}
	for _, k := range keys {
		f.keys[k.Fingerprint] = k
	}
	return f
}

func (f *fakeKeys) Get(ctx context.Context, fingerprint string) (*models.GpgKey, error) {
	k, ok := f.keys[fingerprint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrGpgKeyNotFound, fingerprint)
	}
	return k, nil
}

func (f *fakeKeys) List(ctx context.Context) ([]*models.GpgKey, error) {
	var keys []*models.GpgKey
	for _, k := range f.keys {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeKeys) Update(ctx context.Context, key *models.GpgKey) error {
	f.keys[key.Fingerprint] = key
	return nil
}

type fakeRefresher struct {
	fail  map[string]error
	calls []string
}

func (f *fakeRefresher) Refresh(ctx context.Context, key *models.GpgKey) error {
	f.calls = append(f.calls, key.Fingerprint)
	if err, ok := f.fail[key.Fingerprint]; ok {
		return err
	}
	now := time.Now().UTC()
	key.Refreshed = &now
	return nil
}

type fakeConfirmations struct {
	items []*models.Confirmation
}

func (f *fakeConfirmations) Create(ctx context.Context, c *models.Confirmation) error {
	f.items = append(f.items, c)
	return nil
}

func (f *fakeConfirmations) List(ctx context.Context) ([]*models.Confirmation, error) {
	return f.items, nil
}

func (f *fakeConfirmations) FindForUser(ctx context.Context, username, purpose string) ([]*models.Confirmation, error) {
	var found []*models.Confirmation
	for _, c := range f.items {
		if c.Username == username && c.Purpose == purpose {
			found = append(found, c)
		}
	}
	return found, nil
}

type fakeLog struct {
	entries    []*models.UserLogEntry
	lastSearch string
	lastLimit  int
}

func (f *fakeLog) Record(ctx context.Context, entry *models.UserLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLog) List(ctx context.Context, search string, limit int) ([]*models.UserLogEntry, error) {
	f.lastSearch = search
	f.lastLimit = limit
	return f.entries, nil
}

type fakeSearcher struct {
	users         map[string][]string
	keys          map[string][]string
	confirmations map[string][]string
}

func (f *fakeSearcher) SearchUsers(ctx context.Context, term string) ([]string, error) {
	return f.users[term], nil
}

func (f *fakeSearcher) SearchGpgKeys(ctx context.Context, term string) ([]string, error) {
	return f.keys[term], nil
}

func (f *fakeSearcher) SearchConfirmations(ctx context.Context, term string) ([]string, error) {
	return f.confirmations[term], nil
}

type fakeReindexer struct {
	users     int
	keys      int
	failUsers error
}

func (f *fakeReindexer) ReindexUsers(ctx context.Context, users []*models.User) error {
	if f.failUsers != nil {
		return f.failUsers
	}
	f.users += len(users)
	return nil
}

func (f *fakeReindexer) ReindexGpgKeys(ctx context.Context, keys []*models.GpgKey) error {
	f.keys += len(keys)
	return nil
}

type fakeQueue struct {
	resends    [][]string
	sends      []*models.Confirmation
	failResend error
}

func (f *fakeQueue) EnqueueResendConfirmations(ctx context.Context, keys []string) error {
	if f.failResend != nil {
		return f.failResend
	}
	f.resends = append(f.resends, keys)
	return nil
}

func (f *fakeQueue) EnqueueSendConfirmation(ctx context.Context, c *models.Confirmation) error {
	f.sends = append(f.sends, c)
	return nil
}

type testDeps struct {
	users         *fakeUsers
	keys          *fakeKeys
	confirmations *fakeConfirmations
	log           *fakeLog
	searcher      *fakeSearcher
	reindexer     *fakeReindexer
	refresher     *fakeRefresher
	queue         *fakeQueue
}

func newTestPanel() (*Panel, *testDeps) {
	deps := &testDeps{
		users:         newFakeUsers(),
		keys:          newFakeKeys(),
		confirmations: &fakeConfirmations{},
		log:           &fakeLog{},
		searcher:      &fakeSearcher{},
		reindexer:     &fakeReindexer{},
		refresher:     &fakeRefresher{},
		queue:         &fakeQueue{},
	}
	p := NewPanel(Deps{
		Users:         deps.users,
		Keys:          deps.keys,
		Confirmations: deps.confirmations,
		Log:           deps.log,
		Searcher:      deps.searcher,
		Reindexer:     deps.reindexer,
		Refresher:     deps.refresher,
		Queue:         deps.queue,
		Recorder:      deps.log,
	})
	return p, deps
}

func confirmedUser(username, email string, registered time.Time) *models.User {
	confirmed := registered.Add(time.Hour)
	return &models.User{
		Username:           username,
		Email:              email,
		NormalizedEmail:    util.NormalizeEmail(email),
		RegistrationMethod: models.RegistrationWebsite,
		Registered:         registered,
		Confirmed:          &confirmed,
	}
}

func unconfirmedUser(username, email string, registered time.Time) *models.User {
	return &models.User{
		Username:           username,
		Email:              email,
		NormalizedEmail:    util.NormalizeEmail(email),
		RegistrationMethod: models.RegistrationWebsite,
		Registered:         registered,
	}
}
