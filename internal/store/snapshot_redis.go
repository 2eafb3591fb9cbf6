package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

const defaultSnapshotTTL = 24 * time.Hour

// SnapshotStore keeps the latest snapshot of every live session in Redis so
// a presenter that reconnects can catch up without replaying inputs.
type SnapshotStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSnapshotStore(rdb *redis.Client, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotStore{rdb: rdb, ttl: ttl}
}

// OpenSnapshotStore dials redisURL and pings it.
func OpenSnapshotStore(ctx context.Context, redisURL string, ttl time.Duration) (*SnapshotStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for snapshot store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewSnapshotStore(rdb, ttl), nil
}

func (s *SnapshotStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func snapshotKey(sessionID string) string { return "arena:snapshot:" + strings.TrimSpace(sessionID) }
func sessionsKey() string                 { return "arena:sessions" }

// Save overwrites the session's snapshot. Snapshots carry a sequence number,
// and an older one never replaces a newer one.
func (s *SnapshotStore) Save(ctx context.Context, snap arenadto.Snapshot) error {
	if strings.TrimSpace(snap.SessionID) == "" {
		return fmt.Errorf("snapshot without session id")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := snapshotKey(snap.SessionID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var prev struct {
				Seq uint64 `json:"seq"`
			}
			if json.Unmarshal(cur, &prev) == nil && prev.Seq > snap.Seq {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, s.ttl)
			p.SAdd(ctx, sessionsKey(), snap.SessionID)
			p.Expire(ctx, sessionsKey(), s.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

// Load returns nil, nil when nothing is stored for the session.
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (*arenadto.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap arenadto.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Sessions lists session ids whose snapshot has not expired yet. Stale
// index entries are pruned on the way.
func (s *SnapshotStore) Sessions(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, sessionsKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, snapshotKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = s.rdb.SRem(ctx, sessionsKey(), id).Err()
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Forget drops a session's snapshot and index entry.
func (s *SnapshotStore) Forget(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, snapshotKey(sessionID)).Err(); err != nil {
		return err
	}
	return s.rdb.SRem(ctx, sessionsKey(), sessionID).Err()
}

func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Host
	if u.Port() == "" {
		host = u.Hostname() + ":6379"
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
