package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/search"
	"github.com/dd-repo/hp/internal/util"
)

// GpgKeyRepository stores the GPG keys attached to user accounts.
type GpgKeyRepository struct {
	client  *ScyllaClient
	indexer *search.Indexer
}

func NewGpgKeyRepository(client *ScyllaClient, indexer *search.Indexer) *GpgKeyRepository {
	return &GpgKeyRepository{client: client, indexer: indexer}
}

func (r *GpgKeyRepository) Get(ctx context.Context, fingerprint string) (*models.GpgKey, error) {
	query := r.client.Prepared.GetGpgKey.Bind(fingerprint).WithContext(ctx)

	key, err := scanGpgKey(func(dest ...interface{}) error {
		return r.client.ScanWithRetry(query, dest...)
	})
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrGpgKeyNotFound, fingerprint)
		}
		util.Error("Failed to get gpg key", zap.String("fingerprint", fingerprint), zap.Error(err))
		return nil, fmt.Errorf("failed to get gpg key: %w", err)
	}
	return key, nil
}

func (r *GpgKeyRepository) List(ctx context.Context) ([]*models.GpgKey, error) {
	iter := r.client.Query(`
        SELECT fingerprint, username, email, created, expires, revoked, refreshed
        FROM gpg_keys`).WithContext(ctx).Iter()

	var keys []*models.GpgKey
	for {
		key, err := scanGpgKey(func(dest ...interface{}) error {
			if !iter.Scan(dest...) {
				return gocql.ErrNotFound
			}
			return nil
		})
		if err != nil {
			break
		}
		keys = append(keys, key)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list gpg keys: %w", err)
	}
	return keys, nil
}

// Update persists the refreshable portion of a key: expiry, revocation and
// the refresh timestamp.
func (r *GpgKeyRepository) Update(ctx context.Context, key *models.GpgKey) error {
	query := r.client.Prepared.UpdateGpgKey.
		Bind(key.Expires, key.Revoked, key.Refreshed, key.Fingerprint).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to update gpg key", zap.String("fingerprint", key.Fingerprint), zap.Error(err))
		return fmt.Errorf("failed to update gpg key: %w", err)
	}

	if r.indexer != nil {
		if err := r.indexer.IndexGpgKey(ctx, key); err != nil {
			util.Warn("Failed to index gpg key", zap.String("fingerprint", key.Fingerprint), zap.Error(err))
		}
	}

	util.Debug("GPG key updated",
		zap.String("fingerprint", key.Fingerprint),
		zap.Bool("revoked", key.Revoked))
	return nil
}

func scanGpgKey(scan func(dest ...interface{}) error) (*models.GpgKey, error) {
	key := &models.GpgKey{}
	var expires, refreshed time.Time

	err := scan(
		&key.Fingerprint, &key.Username, &key.Email,
		&key.Created, &expires, &key.Revoked, &refreshed)
	if err != nil {
		return nil, err
	}

	if !expires.IsZero() {
		key.Expires = &expires
	}
	if !refreshed.IsZero() {
		key.Refreshed = &refreshed
	}
	return key, nil
}
