package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// PublishedCache remembers which post ids this process has published, per
// profile. It only suppresses duplicate optimistic transitions in the
// operator view; the status cell in the sheet stays authoritative.
type PublishedCache interface {
	Add(ctx context.Context, profileID, postID string) (bool, error)
	Members(ctx context.Context, profileID string) ([]string, error)
}

type publishedCache struct {
	rdb    *redis.Client
	prefix string
}

func NewPublishedCache(rdb *redis.Client) PublishedCache {
	return &publishedCache{rdb: rdb, prefix: "sheetflow:published"}
}

func (c *publishedCache) key(profileID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, profileID)
}

// Add reports whether postID was new for the profile.
func (c *publishedCache) Add(ctx context.Context, profileID, postID string) (bool, error) {
	n, err := c.rdb.SAdd(ctx, c.key(profileID), postID).Result()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return n == 1, nil
}

// Members returns every post id published for the profile.
func (c *publishedCache) Members(ctx context.Context, profileID string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, c.key(profileID)).Result()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return ids, nil
}
