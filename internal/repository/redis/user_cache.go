package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/client"
	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

const (
	userKeyPrefix  = "user:"
	emailKeyPrefix = "email:"

	userTTL  = 15 * time.Minute
	emailTTL = 15 * time.Minute
)

// UserCache is a cache-aside layer in front of the Scylla user store. It holds
// user rows keyed by username and the set of usernames sharing a normalized
// email address. A miss returns (nil, nil); callers fall through to Scylla.
type UserCache struct {
	redis *client.RedisClient
}

func NewUserCache(redisClient *client.RedisClient) *UserCache {
	return &UserCache{redis: redisClient}
}

func (c *UserCache) GetUser(ctx context.Context, username string) (*models.User, error) {
	data, err := c.redis.Get(ctx, userKeyPrefix+username)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read user from cache: %w", err)
	}

	user := &models.User{}
	if err := json.Unmarshal([]byte(data), user); err != nil {
		// Treat a corrupt entry as a miss and drop it.
		util.Warn("Dropping malformed cached user",
			zap.String("username", username),
			zap.Error(err))
		_ = c.redis.Del(ctx, userKeyPrefix+username)
		return nil, nil
	}

	return user, nil
}

func (c *UserCache) SetUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user for cache: %w", err)
	}
	return c.redis.Set(ctx, userKeyPrefix+user.Username, data, userTTL)
}

func (c *UserCache) DeleteUser(ctx context.Context, username string) error {
	return c.redis.Del(ctx, userKeyPrefix+username)
}

// GetEmailUsers returns the cached set of usernames registered under a
// normalized email address, or nil on a miss.
func (c *UserCache) GetEmailUsers(ctx context.Context, normalizedEmail string) ([]string, error) {
	members, err := c.redis.SMembers(ctx, emailKeyPrefix+normalizedEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to read email set from cache: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members, nil
}

func (c *UserCache) SetEmailUsers(ctx context.Context, normalizedEmail string, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	key := emailKeyPrefix + normalizedEmail
	members := make([]interface{}, len(usernames))
	for i, u := range usernames {
		members[i] = u
	}
	if err := c.redis.SAdd(ctx, key, members...); err != nil {
		return err
	}
	return c.redis.Expire(ctx, key, emailTTL)
}

func (c *UserCache) DeleteEmail(ctx context.Context, normalizedEmail string) error {
	if normalizedEmail == "" {
		return nil
	}
	return c.redis.Del(ctx, emailKeyPrefix+normalizedEmail)
}
