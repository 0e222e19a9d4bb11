package admin

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/audit"
	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

// blockComment is stamped on every log entry written by a block action.
const blockComment = "Blocked by an administrator."

// RefreshKeys re-fetches each selected key from the keyserver and persists
// the result. A failing key is logged and reported, the rest still run.
func (p *Panel) RefreshKeys(ctx context.Context, fingerprints []string) Notifications {
	var notes Notifications
	refreshed := 0

	for _, fingerprint := range fingerprints {
		key, err := p.keys.Get(ctx, fingerprint)
		if err != nil {
			util.Error("Failed to load key for refresh",
				zap.String("fingerprint", fingerprint),
				zap.Error(err))
			notes.Errorf("Could not load key %s: %v", fingerprint, err)
			continue
		}

		if err := p.refresher.Refresh(ctx, key); err != nil {
			util.Error("Keyserver refresh failed",
				zap.String("fingerprint", fingerprint),
				zap.Error(err))
			notes.Errorf("Could not refresh key %s: %v", fingerprint, err)
			continue
		}

		if err := p.keys.Update(ctx, key); err != nil {
			util.Error("Failed to store refreshed key",
				zap.String("fingerprint", fingerprint),
				zap.Error(err))
			notes.Errorf("Could not store refreshed key %s: %v", fingerprint, err)
			continue
		}

		refreshed++
	}

	if refreshed > 0 {
		notes.Successf("Refreshed %d of %d keys.", refreshed, len(fingerprints))
	}
	return notes
}

// ResendConfirmations enqueues one background task carrying every selected
// confirmation key. There is no synchronous per-item result.
func (p *Panel) ResendConfirmations(ctx context.Context, keys []string) Notifications {
	var notes Notifications

	if err := p.queue.EnqueueResendConfirmations(ctx, keys); err != nil {
		util.Error("Failed to enqueue confirmation resend", zap.Error(err))
		notes.Errorf("Could not schedule resend: %v", err)
		return notes
	}

	notes.Infof("Resending %d confirmations in the background.", len(keys))
	return notes
}

// SendRegistration sends (or resends) registration confirmations for the
// selected users. Backend-created accounts have no self-service registration
// mail and are skipped. Existing registration confirmations across the whole
// selection are resent in a single task.
func (p *Panel) SendRegistration(ctx context.Context, usernames []string, baseURL string) Notifications {
	var notes Notifications
	var resendKeys []string

	for _, username := range usernames {
		keys, err := p.sendRegistrationOne(ctx, username, baseURL, &notes)
		if err != nil {
			util.Error("Failed to send registration confirmation",
				zap.String("username", username),
				zap.Error(err))
			notes.Errorf("Could not send registration mail to %s: %v", username, err)
			continue
		}
		resendKeys = append(resendKeys, keys...)
	}

	if len(resendKeys) > 0 {
		if err := p.queue.EnqueueResendConfirmations(ctx, resendKeys); err != nil {
			util.Error("Failed to enqueue registration resend", zap.Error(err))
			notes.Errorf("Could not schedule resend: %v", err)
		}
	}
	return notes
}

// sendRegistrationOne handles one user and returns the existing confirmation
// keys that should be resent, if any. A nil, nil return means a fresh
// confirmation was created and enqueued (or the user was skipped).
func (p *Panel) sendRegistrationOne(ctx context.Context, username, baseURL string, notes *Notifications) ([]string, error) {
	user, err := p.users.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	// The list view hides the action for these; recheck here so a direct
	// request cannot mail a confirmed or blocked account.
	if user.IsBlocked() {
		return nil, fmt.Errorf("%w: %s", models.ErrUserBlocked, username)
	}
	if user.IsConfirmed() {
		notes.Infof("Skipped %s: already confirmed.", username)
		return nil, nil
	}

	if user.IsBackendCreated() {
		notes.Infof("Skipped %s: backend-created account.", username)
		return nil, nil
	}

	existing, err := p.confirmations.FindForUser(ctx, username, models.PurposeRegistration)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		keys := make([]string, 0, len(existing))
		for _, c := range existing {
			keys = append(keys, c.Key)
		}
		notes.Successf("Resending registration mail to %s.", username)
		return keys, nil
	}

	locale := user.Locale
	if locale == "" {
		locale = p.defaultLocale
	}

	now := p.now()
	confirmation := &models.Confirmation{
		Key:      uuid.New().String(),
		Username: username,
		Purpose:  models.PurposeRegistration,
		To:       user.Email,
		Locale:   locale,
		BaseURL:  baseURL,
		Created:  now,
		Expires:  now.Add(p.confirmationExpiry),
	}

	if err := p.confirmations.Create(ctx, confirmation); err != nil {
		return nil, err
	}
	if err := p.queue.EnqueueSendConfirmation(ctx, confirmation); err != nil {
		return nil, err
	}

	notes.Successf("Sending registration mail to %s.", username)
	return nil, nil
}

// BlockUser blocks a single account and every other account registered under
// the same normalized email address.
func (p *Panel) BlockUser(ctx context.Context, username, actor string, addr net.IP) Notifications {
	return p.BlockUsers(ctx, []string{username}, actor, addr)
}

// BlockUsers blocks a selection of accounts. All log entries of one
// invocation share the acting operator and a fixed comment.
func (p *Panel) BlockUsers(ctx context.Context, usernames []string, actor string, addr net.IP) Notifications {
	var notes Notifications
	scope := audit.NewScope(p.recorder, actor, blockComment)

	for _, username := range usernames {
		if err := p.blockOne(ctx, username, scope, addr, &notes); err != nil {
			util.Error("Failed to block user",
				zap.String("username", username),
				zap.String("actor", actor),
				zap.Error(err))
			notes.Errorf("Could not block %s: %v", username, err)
		}
	}
	return notes
}

func (p *Panel) blockOne(ctx context.Context, username string, scope *audit.Scope, addr net.IP, notes *Notifications) error {
	user, err := p.users.Get(ctx, username)
	if err != nil {
		return err
	}

	targetBlocked := false
	if !user.IsBlocked() {
		if err := p.block(ctx, user.Username, scope, addr); err != nil {
			return err
		}
		targetBlocked = true
	}

	// Duplicate accounts under the same normalized address go with it.
	siblings, err := p.users.FindByNormalizedEmail(ctx, user.NormalizedEmail)
	if err != nil {
		return err
	}
	cascaded := 0
	for _, sibling := range siblings {
		if sibling.Username == user.Username || sibling.IsBlocked() {
			continue
		}
		if err := p.block(ctx, sibling.Username, scope, addr); err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				continue
			}
			return err
		}
		cascaded++
	}

	switch {
	case targetBlocked && cascaded > 0:
		notes.Successf("Blocked %s and %d accounts sharing its address.", username, cascaded)
	case targetBlocked:
		notes.Successf("Blocked %s.", username)
	case cascaded > 0:
		notes.Successf("Blocked %d accounts sharing %s's address.", cascaded, username)
	default:
		notes.Infof("%s is already blocked.", username)
	}
	return nil
}

func (p *Panel) block(ctx context.Context, username string, scope *audit.Scope, addr net.IP) error {
	if err := p.users.SetBlocked(ctx, username, p.now()); err != nil {
		return err
	}
	if err := scope.Log(ctx, username, "Account blocked", addr); err != nil {
		// The block itself stuck; a missing log line is not worth failing
		// the action over.
		util.Warn("Failed to record block in audit log",
			zap.String("username", username),
			zap.Error(err))
	}
	return nil
}

// RebuildSearchIndex re-populates the search documents for users and keys
// from the primary store. Confirmations are indexed on creation and need no
// rebuild path. The two entity types are rebuilt independently: a failure in
// one is reported and does not stop the other.
func (p *Panel) RebuildSearchIndex(ctx context.Context) Notifications {
	var notes Notifications

	if p.reindexer == nil {
		notes.Errorf("Search indexing is not available.")
		return notes
	}

	if users, err := p.users.List(ctx); err != nil {
		util.Error("Failed to list users for reindex", zap.Error(err))
		notes.Errorf("Could not reindex users: %v", err)
	} else if err := p.reindexer.ReindexUsers(ctx, users); err != nil {
		util.Error("User reindex failed", zap.Error(err))
		notes.Errorf("Could not reindex users: %v", err)
	} else {
		notes.Successf("Reindexed %d users.", len(users))
	}

	if keys, err := p.keys.List(ctx); err != nil {
		util.Error("Failed to list keys for reindex", zap.Error(err))
		notes.Errorf("Could not reindex keys: %v", err)
	} else if err := p.reindexer.ReindexGpgKeys(ctx, keys); err != nil {
		util.Error("Key reindex failed", zap.Error(err))
		notes.Errorf("Could not reindex keys: %v", err)
	} else {
		notes.Successf("Reindexed %d keys.", len(keys))
	}

	return notes
}

// SaveUser persists a user edit. The normalized email is recomputed from the
// submitted address before the row is written.
func (p *Panel) SaveUser(ctx context.Context, user *models.User) error {
	user.NormalizedEmail = util.NormalizeEmail(user.Email)
	return p.users.Save(ctx, user)
}

// UserEdit is the editable portion of a user row.
type UserEdit struct {
	Email          string `json:"email"`
	Locale         string `json:"locale"`
	GPGFingerprint string `json:"gpg_fingerprint"`
}

// UpdateUser applies an edit to an existing account and saves it. Status
// fields (confirmed, blocked, registration) are not editable this way.
func (p *Panel) UpdateUser(ctx context.Context, username string, edit UserEdit) (*models.User, error) {
	user, err := p.users.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	user.Email = edit.Email
	user.Locale = edit.Locale
	user.GPGFingerprint = edit.GPGFingerprint

	if err := p.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
