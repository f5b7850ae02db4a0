package kvstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/user"
)

// RedisStore keeps codes in Redis so that every API instance sees them.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ user.CodeStore = (*RedisStore)(nil)

// OpenRedis connects to the configured Redis, retrying while it starts up.
func OpenRedis(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	var err error
	for attempts := 1; attempts <= 5; attempts++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return rdb, nil
		}
		time.Sleep(time.Duration(attempts) * 200 * time.Millisecond)
	}
	_ = rdb.Close()
	return nil, errors.Wrapf(err, "pinging redis at %s", conf.Addr)
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) SaveCode(ctx context.Context, key, code string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.prefix+key, code, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis SET")
	}
	return nil
}

func (s *RedisStore) GetCode(ctx context.Context, key string) (string, error) {
	code, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", user.ErrCodeNotFound
		}
		return "", errors.Wrap(err, "redis GET")
	}
	return code, nil
}

// consumeScript deletes KEYS[1] only while it still holds ARGV[1].
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *RedisStore) ConsumeCode(ctx context.Context, key, code string) error {
	n, err := consumeScript.Run(ctx, s.rdb, []string{s.prefix + key}, code).Int()
	if err != nil {
		return errors.Wrap(err, "redis consume script")
	}
	if n == 0 {
		return user.ErrCodeNotFound
	}
	return nil
}
