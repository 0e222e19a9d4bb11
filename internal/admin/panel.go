package admin

import (
	"context"
	"time"

	"github.com/dd-repo/hp/internal/audit"
	"github.com/dd-repo/hp/internal/models"
)

// UserStore is the user account storage surface the panel operates on.
type UserStore interface {
	Get(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Save(ctx context.Context, user *models.User) error
	SetBlocked(ctx context.Context, username string, at time.Time) error
	FindByNormalizedEmail(ctx context.Context, normalizedEmail string) ([]*models.User, error)
}

// KeyStore stores the GPG keys shown in the key view.
type KeyStore interface {
	Get(ctx context.Context, fingerprint string) (*models.GpgKey, error)
	List(ctx context.Context) ([]*models.GpgKey, error)
	Update(ctx context.Context, key *models.GpgKey) error
}

// ConfirmationStore stores outstanding confirmation keys.
type ConfirmationStore interface {
	Create(ctx context.Context, c *models.Confirmation) error
	List(ctx context.Context) ([]*models.Confirmation, error)
	FindForUser(ctx context.Context, username, purpose string) ([]*models.Confirmation, error)
}

// LogStore reads the audit log shown in the log view.
type LogStore interface {
	List(ctx context.Context, search string, limit int) ([]*models.UserLogEntry, error)
}

// Searcher resolves a free-text term to matching entity IDs.
type Searcher interface {
	SearchUsers(ctx context.Context, term string) ([]string, error)
	SearchGpgKeys(ctx context.Context, term string) ([]string, error)
	SearchConfirmations(ctx context.Context, term string) ([]string, error)
}

// IndexRebuilder rebuilds the search documents from the primary store.
type IndexRebuilder interface {
	ReindexUsers(ctx context.Context, users []*models.User) error
	ReindexGpgKeys(ctx context.Context, keys []*models.GpgKey) error
}

// KeyRefresher re-fetches key metadata from the keyserver.
type KeyRefresher interface {
	Refresh(ctx context.Context, key *models.GpgKey) error
}

// TaskQueue hands mail work off to background workers.
type TaskQueue interface {
	EnqueueResendConfirmations(ctx context.Context, keys []string) error
	EnqueueSendConfirmation(ctx context.Context, c *models.Confirmation) error
}

// Deps collects everything the panel needs.
type Deps struct {
	Users         UserStore
	Keys          KeyStore
	Confirmations ConfirmationStore
	Log           LogStore
	Searcher      Searcher
	Reindexer     IndexRebuilder
	Refresher     KeyRefresher
	Queue         TaskQueue
	Recorder      audit.Recorder

	DefaultLocale      string
	ConfirmationExpiry time.Duration
}

// Panel implements the account administration operations: entity listings
// with search and filters, and the bulk actions on them.
type Panel struct {
	users         UserStore
	keys          KeyStore
	confirmations ConfirmationStore
	log           LogStore
	searcher      Searcher
	reindexer     IndexRebuilder
	refresher     KeyRefresher
	queue         TaskQueue
	recorder      audit.Recorder

	defaultLocale      string
	confirmationExpiry time.Duration

	now func() time.Time
}

func NewPanel(deps Deps) *Panel {
	locale := deps.DefaultLocale
	if locale == "" {
		locale = "en"
	}
	expiry := deps.ConfirmationExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	return &Panel{
		users:              deps.Users,
		keys:               deps.Keys,
		confirmations:      deps.Confirmations,
		log:                deps.Log,
		searcher:           deps.Searcher,
		reindexer:          deps.Reindexer,
		refresher:          deps.Refresher,
		queue:              deps.Queue,
		recorder:           deps.Recorder,
		defaultLocale:      locale,
		confirmationExpiry: expiry,
		now:                func() time.Time { return time.Now().UTC() },
	}
}
