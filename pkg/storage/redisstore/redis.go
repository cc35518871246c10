// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package redisstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/pkg/assignment"
)

const (
	// BadgeSetPrefix is the prefix of the per-user badge set keys
	BadgeSetPrefix = "user_badges:"
	// GrantedAtPrefix is the prefix of the per-user grant time hashes
	GrantedAtPrefix = "user_badges_granted_at:"
)

// Config holds the Redis connection settings
type Config struct {
	Host       string
	Port       string
	Password   string
	DB         int
	MaxRetries uint64
}

// InitRedisClient initializes and returns a Redis client with retry logic
func InitRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	addr := cfg.Host + ":" + cfg.Port
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}

	attempt := 0
	err := backoff.Retry(
		func() error {
			attempt++
			if _, err := client.Ping(ctx).Result(); err != nil {
				logrus.Warnf("Redis connection failed (attempt %d): %v, retrying...", attempt, err)
				return err
			}
			return nil
		},
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s after %d attempts: %w", addr, attempt, err)
	}

	logrus.Infof("connected to Redis at %s (attempt %d)", addr, attempt)
	return client, nil
}

// BadgeSet stores each user's badge set as a Redis set. SADD is the atomic
// add-if-absent: it returns 1 only for the call that inserted the member.
type BadgeSet struct {
	client *redis.Client
}

// NewBadgeSet creates a badge set store on client
func NewBadgeSet(client *redis.Client) *BadgeSet {
	return &BadgeSet{client: client}
}

func badgeSetKey(userID string) string {
	return BadgeSetPrefix + userID
}

func grantedAtKey(userID string) string {
	return GrantedAtPrefix + userID
}

// Assign adds badgeID to the user's set
func (s *BadgeSet) Assign(ctx context.Context, userID, badgeID string) (assignment.Result, error) {
	var added *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, badgeSetKey(userID), badgeID)
		pipe.HSetNX(ctx, grantedAtKey(userID), badgeID, time.Now().UTC().Format(time.RFC3339Nano))
		return nil
	})
	if err != nil {
		logrus.Errorf("failed to assign badge %s to user %s: %v", badgeID, userID, err)
		return assignment.Result{}, assignment.Fail(userID, badgeID, err)
	}

	return assignment.Result{Granted: added.Val() == 1}, nil
}

// BadgesOf returns the user's badges ordered by grant time
func (s *BadgeSet) BadgesOf(ctx context.Context, userID string) ([]assignment.Held, error) {
	members, err := s.client.SMembers(ctx, badgeSetKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read badge set: %w", err)
	}

	times, err := s.client.HGetAll(ctx, grantedAtKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read grant times: %w", err)
	}

	out := make([]assignment.Held, 0, len(members))
	for _, id := range members {
		held := assignment.Held{BadgeID: id}
		if raw, ok := times[id]; ok {
			if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				held.GrantedAt = t
			}
		}
		out = append(out, held)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].BadgeID < out[j].BadgeID
		}
		return out[i].GrantedAt.Before(out[j].GrantedAt)
	})
	return out, nil
}
