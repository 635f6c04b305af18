package redisrepo

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/jrsteele09/vai-agent-server/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ sessions.Repo = (*RedisSessionRepo)(nil)

const (
	maxWriteAttempts = 5
	flushScanCount   = 100
)

var errAlreadyExists = fmt.Errorf("session already exists")

// Options configures the connection to Redis.
type Options struct {
	Host     string
	Port     int
	Password string
	TLS      bool
	DB       int
	// FlushAllowed guards Flush; it is false in production.
	FlushAllowed bool
}

// RedisSessionRepo stores session records as JSON strings under sessions.Key with a
// TTL, plus a connection index under sessions.ConnectionKey sharing the same TTL.
type RedisSessionRepo struct {
	client       *redis.Client
	flushAllowed bool
	now          func() time.Time
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, opts Options) (*RedisSessionRepo, error) {
	redisOpts := &redis.Options{
		Addr:     net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.TLS {
		redisOpts.TLSConfig = &tls.Config{
			ServerName: opts.Host,
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("New", err)
	}

	log.Info().Str("addr", redisOpts.Addr).Bool("tls", opts.TLS).Msg("Connected to redis")
	return NewWithClient(client, opts.FlushAllowed), nil
}

// NewWithClient wraps an existing client. The repo takes ownership and closes it on Close.
func NewWithClient(client *redis.Client, flushAllowed bool) *RedisSessionRepo {
	return &RedisSessionRepo{
		client:       client,
		flushAllowed: flushAllowed,
		now:          time.Now,
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("[RedisSessionRepo %s] %w: %w", op, errors.ErrStoreUnavailable, err)
}

func decode(data []byte) (*sessions.Record, error) {
	var record sessions.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("[RedisSessionRepo decode] corrupt session record: %w", err)
	}
	return &record, nil
}

func (r *RedisSessionRepo) read(ctx context.Context, c redis.Cmdable, phoneNumber string) (*sessions.Record, error) {
	data, err := c.Get(ctx, sessions.Key(phoneNumber)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, unavailable("Get", err)
	}
	return decode(data)
}

func (r *RedisSessionRepo) Get(ctx context.Context, phoneNumber string) (*sessions.Record, error) {
	return r.read(ctx, r.client, phoneNumber)
}

// write runs check against the stored record inside a WATCH transaction and, if it
// passes, stores record with the next version. Returns redis.TxFailedErr when the key
// changed under the watch.
func (r *RedisSessionRepo) write(ctx context.Context, record *sessions.Record, ttl time.Duration, check func(current *sessions.Record) error) error {
	key := sessions.Key(record.PhoneNumber)

	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.read(ctx, tx, record.PhoneNumber)
		if err != nil && !errors.Is(err, errors.ErrSessionNotFound) {
			return err
		}
		if err := check(current); err != nil {
			return err
		}

		next := record.Clone()
		next.Version = 1
		if current != nil {
			next.Version = current.Version + 1
		}
		next.ExpiresAt = r.now().Add(ttl)

		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("[RedisSessionRepo write] encode: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			if next.ConnectionID != "" {
				pipe.Set(ctx, sessions.ConnectionKey(next.ConnectionID), next.PhoneNumber, ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}

		record.Version = next.Version
		record.ExpiresAt = next.ExpiresAt
		return nil
	}, key)
}

func (r *RedisSessionRepo) Set(ctx context.Context, record *sessions.Record, ttl time.Duration) error {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err := r.write(ctx, record, ttl, func(*sessions.Record) error { return nil })
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return r.classify("Set", err)
	}
	return unavailable("Set", redis.TxFailedErr)
}

// SetIfAbsent retries when the watched key changed, since the concurrent writer may
// have been a Delete that left the key absent.
func (r *RedisSessionRepo) SetIfAbsent(ctx context.Context, record *sessions.Record, ttl time.Duration) (bool, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err := r.write(ctx, record, ttl, func(current *sessions.Record) error {
			if current != nil {
				return errAlreadyExists
			}
			return nil
		})
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errAlreadyExists):
			return false, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return false, r.classify("SetIfAbsent", err)
		}
	}
	return false, unavailable("SetIfAbsent", redis.TxFailedErr)
}

func (r *RedisSessionRepo) CompareAndSet(ctx context.Context, record *sessions.Record, ttl time.Duration) error {
	err := r.write(ctx, record, ttl, func(current *sessions.Record) error {
		var version int64
		if current != nil {
			version = current.Version
		}
		if version != record.Version {
			return errors.ErrVersionConflict
		}
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		return errors.ErrVersionConflict
	}
	return r.classify("CompareAndSet", err)
}

// classify passes domain errors through and wraps anything else as unavailable.
func (r *RedisSessionRepo) classify(op string, err error) error {
	if err == nil ||
		errors.Is(err, errors.ErrStoreUnavailable) ||
		errors.Is(err, errors.ErrVersionConflict) ||
		errors.Is(err, errors.ErrSessionNotFound) {
		return err
	}
	return unavailable(op, err)
}

func (r *RedisSessionRepo) Delete(ctx context.Context, phoneNumber string) (int64, error) {
	n, err := r.client.Del(ctx, sessions.Key(phoneNumber)).Result()
	if err != nil {
		return 0, unavailable("Delete", err)
	}
	return n, nil
}

func (r *RedisSessionRepo) IncrementAtomic(ctx context.Context, key string, n int64) (int64, error) {
	v, err := r.client.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, unavailable("IncrementAtomic", err)
	}
	return v, nil
}

func (r *RedisSessionRepo) FindPhoneByConnection(ctx context.Context, connectionID string) (string, error) {
	phoneNumber, err := r.client.Get(ctx, sessions.ConnectionKey(connectionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", errors.ErrSessionNotFound
	}
	if err != nil {
		return "", unavailable("FindPhoneByConnection", err)
	}

	// The index can outlive a rebinding of the phone number to another connection.
	record, err := r.Get(ctx, phoneNumber)
	if err != nil {
		return "", err
	}
	if record.ConnectionID != connectionID {
		return "", errors.ErrSessionNotFound
	}
	return phoneNumber, nil
}

func (r *RedisSessionRepo) Flush(ctx context.Context) (int64, error) {
	if !r.flushAllowed {
		return 0, errors.Wrapf(errors.ErrInvalidRequest, "[RedisSessionRepo Flush] flush is disabled in this environment")
	}

	var removed int64
	iter := r.client.Scan(ctx, 0, sessions.KeyPattern(), flushScanCount).Iterator()
	batch := make([]string, 0, flushScanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == flushScanCount {
			n, err := r.client.Del(ctx, batch...).Result()
			if err != nil {
				return removed, unavailable("Flush", err)
			}
			removed += n
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, unavailable("Flush", err)
	}
	if len(batch) > 0 {
		n, err := r.client.Del(ctx, batch...).Result()
		if err != nil {
			return removed, unavailable("Flush", err)
		}
		removed += n
	}

	log.Info().Int64("removed", removed).Msg("Redis session cleanup complete")
	return removed, nil
}

func (r *RedisSessionRepo) Close() error {
	return r.client.Close()
}
