// Package redisstore persists users and sessions in Redis.
//
// Layout (prefix defaults to "ac"):
//
//	<p>:u:<id>                 JSON user record
//	<p>:e:<email>              user id by lower-cased email
//	<p>:p:<provider>:<subject> user id by provider link
//	<p>:sl:<id>                session hashes, insertion order
//	<p>:s:<id>:<hash>          binary-encoded session
//
// Index writes go through Lua scripts so that uniqueness checks and writes
// happen in one round trip.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	defaultPrefix   = "ac"
	maxWatchRetries = 5
)

// KEYS[1] user key, KEYS[2] email key, KEYS[3..] provider keys. ARGV[1] id,
// ARGV[2] record.
const createUserScript = `
for i = 1, #KEYS do
  if redis.call("EXISTS", KEYS[i]) == 1 then
    return 0
  end
end
redis.call("SET", KEYS[1], ARGV[2])
for i = 2, #KEYS do
  redis.call("SET", KEYS[i], ARGV[1])
end
return 1
`

var createUserLua = redis.NewScript(createUserScript)

// KEYS[1] user key, KEYS[2] session list, KEYS[3] session key. ARGV[1] hash,
// ARGV[2] blob.
const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("EXISTS", KEYS[3]) == 1 then
  return 0
end
redis.call("SET", KEYS[3], ARGV[2])
redis.call("RPUSH", KEYS[2], ARGV[1])
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

// KEYS[1] session list, KEYS[2] session key. ARGV[1] hash.
const deleteSessionScript = `
redis.call("LREM", KEYS[1], 0, ARGV[1])
return redis.call("DEL", KEYS[2])
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store implements authcore.Storage on Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New returns a Store using client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{redis: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ authcore.Storage = (*Store)(nil)

func (s *Store) userKey(id string) string {
	return s.prefix + ":u:" + id
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":e:" + strings.ToLower(email)
}

func (s *Store) providerKey(provider, subject string) string {
	return s.prefix + ":p:" + provider + ":" + subject
}

func (s *Store) sessionListKey(userID string) string {
	return s.prefix + ":sl:" + userID
}

func (s *Store) sessionKey(userID, hash string) string {
	return s.prefix + ":s:" + userID + ":" + hash
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Ping reports whether Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

/*
====================================
USERS
====================================
*/

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	data, err := s.redis.Get(ctx, s.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authcore.ErrRecordNotFound
		}
		return nil, unavailable(err)
	}

	var u authcore.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &u, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	return s.findByIndex(ctx, s.emailKey(email))
}

func (s *Store) FindByProvider(ctx context.Context, provider, subject string) (*authcore.User, error) {
	return s.findByIndex(ctx, s.providerKey(provider, subject))
}

func (s *Store) findByIndex(ctx context.Context, key string) (*authcore.User, error) {
	id, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authcore.ErrRecordNotFound
		}
		return nil, unavailable(err)
	}
	return s.FindByID(ctx, id)
}

func (s *Store) Create(ctx context.Context, u *authcore.User) error {
	stored := u.Clone()
	stored.Email = strings.ToLower(u.Email)
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	keys := []string{s.userKey(u.ID), s.emailKey(stored.Email)}
	for _, p := range u.Providers {
		keys = append(keys, s.providerKey(p.Provider, p.Subject))
	}

	created, err := createUserLua.Run(ctx, s.redis, keys, u.ID, data).Int()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return authcore.ErrRecordExists
	}
	return nil
}

// Update applies patch under WATCH so concurrent patches of the same user do
// not overwrite each other.
func (s *Store) Update(ctx context.Context, id string, patch authcore.UserPatch) error {
	key := s.userKey(id)

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return authcore.ErrRecordNotFound
				}
				return err
			}
			var u authcore.User
			if err := json.Unmarshal(data, &u); err != nil {
				return fmt.Errorf("decode user %s: %w", id, err)
			}

			var added, removed []string
			if patch.Providers != nil {
				added, removed = s.providerDiff(u.Providers, *patch.Providers)
				for _, k := range added {
					owner, err := tx.Get(ctx, k).Result()
					if err != nil && !errors.Is(err, redis.Nil) {
						return err
					}
					if owner != "" && owner != id {
						return authcore.ErrRecordExists
					}
				}
			}

			patch.Apply(&u)
			out, err := json.Marshal(&u)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, 0)
				for _, k := range removed {
					pipe.Del(ctx, k)
				}
				for _, k := range added {
					pipe.Set(ctx, k, id, 0)
				}
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, authcore.ErrRecordNotFound), errors.Is(err, authcore.ErrRecordExists):
			return err
		default:
			return unavailable(err)
		}
	}
	return unavailable(redis.TxFailedErr)
}

func (s *Store) providerDiff(before, after []authcore.ProviderLink) (added, removed []string) {
	old := make(map[string]bool, len(before))
	for _, p := range before {
		old[s.providerKey(p.Provider, p.Subject)] = true
	}
	next := make(map[string]bool, len(after))
	for _, p := range after {
		k := s.providerKey(p.Provider, p.Subject)
		next[k] = true
		if !old[k] {
			added = append(added, k)
		}
	}
	for k := range old {
		if !next[k] {
			removed = append(removed, k)
		}
	}
	return added, removed
}

// Delete removes the user, its indexes and every session.
func (s *Store) Delete(ctx context.Context, id string) error {
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	hashes, err := s.redis.LRange(ctx, s.sessionListKey(id), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err)
	}

	keys := []string{s.userKey(id), s.emailKey(u.Email), s.sessionListKey(id)}
	for _, p := range u.Providers {
		keys = append(keys, s.providerKey(p.Provider, p.Subject))
	}
	for _, h := range hashes {
		keys = append(keys, s.sessionKey(id, h))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

/*
====================================
SESSIONS
====================================
*/

func (s *Store) Sessions(ctx context.Context, userID string) ([]session.Session, error) {
	var (
		exists *redis.IntCmd
		hashes *redis.StringSliceCmd
	)
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, s.userKey(userID))
		hashes = pipe.LRange(ctx, s.sessionListKey(userID), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}
	if exists.Val() == 0 {
		return nil, authcore.ErrRecordNotFound
	}
	if len(hashes.Val()) == 0 {
		return nil, nil
	}

	keys := make([]string, len(hashes.Val()))
	for i, h := range hashes.Val() {
		keys[i] = s.sessionKey(userID, h)
	}
	blobs, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]session.Session, 0, len(blobs))
	for i, v := range blobs {
		raw, ok := v.(string)
		if !ok {
			// Listed but gone: a concurrent delete between LRANGE and MGET.
			continue
		}
		sess, err := session.Decode([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode session %s: %w", keys[i], err)
		}
		out = append(out, *sess)
	}
	return out, nil
}

func (s *Store) CreateSession(ctx context.Context, userID string, sess session.Session) error {
	data, err := session.Encode(&sess)
	if err != nil {
		return err
	}
	keys := []string{s.userKey(userID), s.sessionListKey(userID), s.sessionKey(userID, sess.Hash)}

	res, err := createSessionLua.Run(ctx, s.redis, keys, sess.Hash, data).Int()
	if err != nil {
		return unavailable(err)
	}
	switch res {
	case -1:
		return authcore.ErrRecordNotFound
	case 0:
		return authcore.ErrRecordExists
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, userID string, sess session.Session) error {
	data, err := session.Encode(&sess)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetXX(ctx, s.sessionKey(userID, sess.Hash), data, redis.KeepTTL).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return authcore.ErrRecordNotFound
	}
	return nil
}

// DeleteSession is idempotent.
func (s *Store) DeleteSession(ctx context.Context, userID, hash string) error {
	keys := []string{s.sessionListKey(userID), s.sessionKey(userID, hash)}
	if err := deleteSessionLua.Run(ctx, s.redis, keys, hash).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err)
	}
	return nil
}
