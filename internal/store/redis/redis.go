package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vovakirdan/lounge-server/internal/store"
)

const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second

	maxTxRetries = 5
)

// Config captures connection options.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore implements store.IdentityStore on top of Redis.
//
// Layout (all keys carry the configured prefix):
//
//	identity:{name}   hash of scalar fields
//	badges:{name}     sorted set, score is a global sequence so insertion order is kept
//	addresses:{name}  sorted set, same scoring
//	emails            hash lower(email) -> name
//	bans, mutes       hash name -> JSON {by, at}
//	owner             name of the identity that claimed the owner badge
type RedisStore struct {
	client *goredis.Client
	prefix string
}

// createScript performs the whole check-and-create atomically.
var createScript = goredis.NewScript(`
if redis.call('HEXISTS', KEYS[6], ARGV[1]) == 1 then return 'banned' end
if redis.call('EXISTS', KEYS[1]) == 1 then return 'name' end
if redis.call('HEXISTS', KEYS[2], ARGV[2]) == 1 then return 'email' end
redis.call('HSET', KEYS[1], 'name', ARGV[1], 'email', ARGV[3], 'password_hash', ARGV[4],
	'banned', '0', 'muted', '0', 'created_at', ARGV[5], 'last_login', ARGV[5], 'message_count', '0')
redis.call('HSET', KEYS[2], ARGV[2], ARGV[1])
local badges = {ARGV[8]}
if redis.call('SETNX', KEYS[3], ARGV[1]) == 1 then badges = {ARGV[7], ARGV[9]} end
for _, b in ipairs(badges) do
	redis.call('ZADD', KEYS[4], redis.call('INCR', KEYS[7]), b)
end
if ARGV[6] ~= '' then
	redis.call('ZADD', KEYS[5], 'NX', redis.call('INCR', KEYS[7]), ARGV[6])
end
return 'ok'
`)

// incrScript bumps the counter only when the identity exists.
var incrScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('HINCRBY', KEYS[1], 'message_count', 1)
`)

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, cfg Config) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "lounge:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) identityKey(name string) string  { return s.prefix + "identity:" + name }
func (s *RedisStore) badgesKey(name string) string    { return s.prefix + "badges:" + name }
func (s *RedisStore) addressesKey(name string) string { return s.prefix + "addresses:" + name }
func (s *RedisStore) cartKey(name string) string      { return s.prefix + "cart:" + name }
func (s *RedisStore) reviewsKey(name string) string   { return s.prefix + "reviews:" + name }
func (s *RedisStore) emailsKey() string               { return s.prefix + "emails" }
func (s *RedisStore) bansKey() string                 { return s.prefix + "bans" }
func (s *RedisStore) mutesKey() string                { return s.prefix + "mutes" }
func (s *RedisStore) ownerKey() string                { return s.prefix + "owner" }
func (s *RedisStore) seqKey() string                  { return s.prefix + "seq" }

// CreateIdentity runs the create script.
func (s *RedisStore) CreateIdentity(ctx context.Context, in store.NewIdentity) (*store.Identity, error) {
	keys := []string{
		s.identityKey(in.Name),
		s.emailsKey(),
		s.ownerKey(),
		s.badgesKey(in.Name),
		s.addressesKey(in.Name),
		s.bansKey(),
		s.seqKey(),
	}
	args := []any{
		in.Name,
		strings.ToLower(in.Email),
		in.Email,
		in.PasswordHash,
		formatTime(in.CreatedAt),
		in.Address,
		store.OwnerBadges[0],
		store.DefaultBadges[0],
		store.OwnerBadges[1],
	}

	res, err := createScript.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	switch res {
	case "banned":
		return nil, store.ErrBanned
	case "name":
		return nil, store.ErrNameTaken
	case "email":
		return nil, store.ErrEmailTaken
	}

	return s.GetIdentity(ctx, in.Name)
}

// GetIdentity reads the identity hash and its sets in one pipeline.
func (s *RedisStore) GetIdentity(ctx context.Context, name string) (*store.Identity, error) {
	var (
		fields    *goredis.MapStringStringCmd
		badges    *goredis.StringSliceCmd
		addresses *goredis.StringSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, s.identityKey(name))
		badges = pipe.ZRange(ctx, s.badgesKey(name), 0, -1)
		addresses = pipe.ZRange(ctx, s.addressesKey(name), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}

	m := fields.Val()
	if len(m) == 0 {
		return nil, fmt.Errorf("get %q: %w", name, store.ErrNotFound)
	}

	count, _ := strconv.ParseInt(m["message_count"], 10, 64)
	return &store.Identity{
		Name:         m["name"],
		Email:        m["email"],
		PasswordHash: m["password_hash"],
		Badges:       badges.Val(),
		Banned:       m["banned"] == "1",
		Muted:        m["muted"] == "1",
		CreatedAt:    parseTime(m["created_at"]),
		LastLogin:    parseTime(m["last_login"]),
		Addresses:    addresses.Val(),
		MessageCount: count,
	}, nil
}

// RecordLogin updates last login and adds the address.
func (s *RedisStore) RecordLogin(ctx context.Context, name, address string, at time.Time) error {
	return s.guarded(ctx, name, func(tx *goredis.Tx, pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.identityKey(name), "last_login", formatTime(at))
		if address == "" {
			return nil
		}
		seq, err := tx.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return err
		}
		pipe.ZAddNX(ctx, s.addressesKey(name), goredis.Z{Score: float64(seq), Member: address})
		return nil
	})
}

// IncrementMessageCount bumps the message counter.
func (s *RedisStore) IncrementMessageCount(ctx context.Context, name string) (int64, error) {
	n, err := incrScript.Run(ctx, s.client, []string{s.identityKey(name)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment message count: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("increment %q: %w", name, store.ErrNotFound)
	}
	return n, nil
}

// SetBanned toggles the banned flag and the bans hash.
func (s *RedisStore) SetBanned(ctx context.Context, name string, banned bool, by string, at time.Time) error {
	return s.setSanction(ctx, name, "banned", s.bansKey(), banned, by, at)
}

// SetMuted toggles the muted flag and the mutes hash.
func (s *RedisStore) SetMuted(ctx context.Context, name string, muted bool, by string, at time.Time) error {
	return s.setSanction(ctx, name, "muted", s.mutesKey(), muted, by, at)
}

func (s *RedisStore) setSanction(ctx context.Context, name, field, setKey string, on bool, by string, at time.Time) error {
	record, err := json.Marshal(sanctionRecord{By: by, At: at.UnixNano()})
	if err != nil {
		return fmt.Errorf("marshal sanction: %w", err)
	}
	return s.guarded(ctx, name, func(_ *goredis.Tx, pipe goredis.Pipeliner) error {
		if on {
			pipe.HSet(ctx, s.identityKey(name), field, "1")
			pipe.HSet(ctx, setKey, name, record)
		} else {
			pipe.HSet(ctx, s.identityKey(name), field, "0")
			pipe.HDel(ctx, setKey, name)
		}
		return nil
	})
}

// AddBadge adds a badge to the sorted set.
func (s *RedisStore) AddBadge(ctx context.Context, name, badge string) ([]string, error) {
	if err := store.CheckMutableBadge(badge); err != nil {
		return nil, err
	}
	badge = strings.TrimSpace(badge)

	var result *goredis.StringSliceCmd
	err := s.guarded(ctx, name, func(tx *goredis.Tx, pipe goredis.Pipeliner) error {
		seq, err := tx.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return err
		}
		pipe.ZAddNX(ctx, s.badgesKey(name), goredis.Z{Score: float64(seq), Member: badge})
		result = pipe.ZRange(ctx, s.badgesKey(name), 0, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Val(), nil
}

// RemoveBadge removes a badge from the sorted set.
func (s *RedisStore) RemoveBadge(ctx context.Context, name, badge string) ([]string, error) {
	if err := store.CheckMutableBadge(badge); err != nil {
		return nil, err
	}
	badge = strings.TrimSpace(badge)

	var result *goredis.StringSliceCmd
	err := s.guarded(ctx, name, func(_ *goredis.Tx, pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, s.badgesKey(name), badge)
		result = pipe.ZRange(ctx, s.badgesKey(name), 0, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Val(), nil
}

// DeleteIdentity removes every key of the identity and bans the name.
func (s *RedisStore) DeleteIdentity(ctx context.Context, name, by string, at time.Time) error {
	record, err := json.Marshal(sanctionRecord{By: by, At: at.UnixNano()})
	if err != nil {
		return fmt.Errorf("marshal sanction: %w", err)
	}
	return s.guarded(ctx, name, func(tx *goredis.Tx, pipe goredis.Pipeliner) error {
		email, err := tx.HGet(ctx, s.identityKey(name), "email").Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		pipe.Del(ctx,
			s.identityKey(name),
			s.badgesKey(name),
			s.addressesKey(name),
			s.cartKey(name),
			s.reviewsKey(name),
		)
		pipe.HDel(ctx, s.emailsKey(), strings.ToLower(email))
		pipe.HDel(ctx, s.mutesKey(), name)
		pipe.HSet(ctx, s.bansKey(), name, record)
		return nil
	})
}

// ListBans returns the ban set ordered by time.
func (s *RedisStore) ListBans(ctx context.Context) ([]store.Sanction, error) {
	return s.listSanctions(ctx, s.bansKey())
}

// ListMutes returns the mute set ordered by time.
func (s *RedisStore) ListMutes(ctx context.Context) ([]store.Sanction, error) {
	return s.listSanctions(ctx, s.mutesKey())
}

type sanctionRecord struct {
	By string `json:"by"`
	At int64  `json:"at"`
}

func (s *RedisStore) listSanctions(ctx context.Context, key string) ([]store.Sanction, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("query sanctions: %w", err)
	}
	out := make([]store.Sanction, 0, len(m))
	for name, raw := range m {
		var rec sanctionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode sanction %q: %w", name, err)
		}
		out = append(out, store.Sanction{Name: name, By: rec.By, At: time.Unix(0, rec.At)})
	}
	slices.SortFunc(out, func(a, b store.Sanction) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// guarded runs fn inside a WATCH on the identity key, failing with store.ErrNotFound when
// the identity does not exist. fn reads through tx and queues writes on pipe.
func (s *RedisStore) guarded(ctx context.Context, name string, fn func(tx *goredis.Tx, pipe goredis.Pipeliner) error) error {
	key := s.identityKey(name)
	for range maxTxRetries {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("update %q: %w", name, store.ErrNotFound)
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				return fn(tx, pipe)
			})
			return err
		}, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %q: %w", name, goredis.TxFailedErr)
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}
