package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/bucketing"
	"github.com/dd-repo/hp/internal/models"
	redisrepo "github.com/dd-repo/hp/internal/repository/redis"
	"github.com/dd-repo/hp/internal/search"
	"github.com/dd-repo/hp/internal/util"
)

// UserRepository stores user accounts in Scylla, with a Redis cache-aside
// layer and an Elasticsearch document kept in step on writes. The cache and
// indexer are optional; a nil value disables that layer.
type UserRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
	cache   *redisrepo.UserCache
	indexer *search.Indexer
}

func NewUserRepository(client *ScyllaClient, buckets *bucketing.Manager, cache *redisrepo.UserCache, indexer *search.Indexer) *UserRepository {
	return &UserRepository{
		client:  client,
		buckets: buckets,
		cache:   cache,
		indexer: indexer,
	}
}

func (r *UserRepository) Get(ctx context.Context, username string) (*models.User, error) {
	if r.cache != nil {
		if user, err := r.cache.GetUser(ctx, username); err == nil && user != nil {
			return user, nil
		} else if err != nil {
			util.Warn("User cache read failed", zap.String("username", username), zap.Error(err))
		}
	}

	bucket := r.buckets.UserBucket(username)
	query := r.client.Prepared.GetUser.Bind(bucket, username).WithContext(ctx)

	user, err := scanUser(func(dest ...interface{}) error {
		return r.client.ScanWithRetry(query, dest...)
	})
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, username)
		}
		util.Error("Failed to get user", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.SetUser(ctx, user); err != nil {
			util.Warn("User cache write failed", zap.String("username", username), zap.Error(err))
		}
	}

	return user, nil
}

// List returns every user account. Admin listings are the only caller; the
// scan pages through the table rather than loading it in one shot.
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	iter := r.client.Query(`
        SELECT user_bucket, username, email, normalized_email, gpg_fingerprint,
            registration_method, locale, registered, confirmed, blocked
        FROM users`).WithContext(ctx).Iter()

	var users []*models.User
	for {
		user, err := scanUser(func(dest ...interface{}) error {
			if !iter.Scan(dest...) {
				return gocql.ErrNotFound
			}
			return nil
		})
		if err != nil {
			break
		}
		users = append(users, user)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Save writes the user row and keeps the normalized-email index, the cache
// and the search document consistent with it.
func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	user.UserBucket = r.buckets.UserBucket(user.Username)
	user.NormalizedEmail = util.NormalizeEmail(user.Email)

	// The old email mapping has to go if the address changed.
	var staleEmail string
	if existing, err := r.Get(ctx, user.Username); err == nil {
		if existing.NormalizedEmail != user.NormalizedEmail {
			staleEmail = existing.NormalizedEmail
		}
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return err
	}

	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(r.client.Prepared.InsertUser.Statement(),
		user.UserBucket, user.Username, user.Email, user.NormalizedEmail,
		user.GPGFingerprint, user.RegistrationMethod, user.Locale,
		user.Registered, user.Confirmed, user.Blocked)
	batch.Query(r.client.Prepared.InsertEmailIndex.Statement(),
		user.NormalizedEmail, user.Username)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to save user", zap.String("username", user.Username), zap.Error(err))
		return fmt.Errorf("failed to save user: %w", err)
	}

	if staleEmail != "" {
		query := r.client.Prepared.DeleteEmailIndex.Bind(staleEmail, user.Username).WithContext(ctx)
		if err := r.client.ExecuteWithRetry(query, 3); err != nil {
			util.Error("Failed to drop stale email mapping",
				zap.String("username", user.Username),
				zap.Error(err))
			return fmt.Errorf("failed to drop stale email mapping: %w", err)
		}
	}

	r.invalidate(ctx, user.Username, staleEmail, user.NormalizedEmail)

	if r.indexer != nil {
		if err := r.indexer.IndexUser(ctx, user); err != nil {
			util.Warn("Failed to index user", zap.String("username", user.Username), zap.Error(err))
		}
	}

	util.Info("User saved", zap.String("username", user.Username))
	return nil
}

// SetBlocked marks an account blocked as of the given time.
func (r *UserRepository) SetBlocked(ctx context.Context, username string, at time.Time) error {
	bucket := r.buckets.UserBucket(username)
	query := r.client.Prepared.SetUserBlocked.Bind(at, bucket, username).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to block user", zap.String("username", username), zap.Error(err))
		return fmt.Errorf("failed to block user: %w", err)
	}

	r.invalidate(ctx, username, "", "")
	return nil
}

// FindByNormalizedEmail returns all accounts registered under the same
// normalized email address.
func (r *UserRepository) FindByNormalizedEmail(ctx context.Context, normalizedEmail string) ([]*models.User, error) {
	var usernames []string

	if r.cache != nil {
		cached, err := r.cache.GetEmailUsers(ctx, normalizedEmail)
		if err != nil {
			util.Warn("Email cache read failed", zap.String("email", normalizedEmail), zap.Error(err))
		} else {
			usernames = cached
		}
	}

	if usernames == nil {
		iter := r.client.Prepared.GetUsersByEmail.Bind(normalizedEmail).WithContext(ctx).Iter()
		var username string
		for iter.Scan(&username) {
			usernames = append(usernames, username)
		}
		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("failed to look up users by email: %w", err)
		}

		if r.cache != nil && len(usernames) > 0 {
			if err := r.cache.SetEmailUsers(ctx, normalizedEmail, usernames); err != nil {
				util.Warn("Email cache write failed", zap.String("email", normalizedEmail), zap.Error(err))
			}
		}
	}

	users := make([]*models.User, 0, len(usernames))
	for _, username := range usernames {
		user, err := r.Get(ctx, username)
		if err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				continue
			}
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (r *UserRepository) invalidate(ctx context.Context, username string, emails ...string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.DeleteUser(ctx, username); err != nil {
		util.Warn("User cache invalidation failed", zap.String("username", username), zap.Error(err))
	}
	for _, email := range emails {
		if email == "" {
			continue
		}
		if err := r.cache.DeleteEmail(ctx, email); err != nil {
			util.Warn("Email cache invalidation failed", zap.String("email", email), zap.Error(err))
		}
	}
}

// scanUser reads one user row. Null timestamps come back as zero values from
// gocql, so confirmed/blocked are mapped to nil pointers here.
func scanUser(scan func(dest ...interface{}) error) (*models.User, error) {
	user := &models.User{}
	var confirmed, blocked time.Time

	err := scan(
		&user.UserBucket, &user.Username, &user.Email, &user.NormalizedEmail,
		&user.GPGFingerprint, &user.RegistrationMethod, &user.Locale,
		&user.Registered, &confirmed, &blocked)
	if err != nil {
		return nil, err
	}

	if !confirmed.IsZero() {
		user.Confirmed = &confirmed
	}
	if !blocked.IsZero() {
		user.Blocked = &blocked
	}
	return user, nil
}
