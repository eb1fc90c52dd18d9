package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired means another worker holds the lease
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld means the lease expired or changed owner mid-run
	ErrLockNotHeld = errors.New("lock not held")
)

// ownerScript deletes (ARGV[2] == "0") or re-arms (ARGV[2] = ttl in ms) the
// key, but only while ARGV[1] still owns it.
var ownerScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) ~= ARGV[1] then
		return 0
	end
	if ARGV[2] == "0" then
		return redis.call("del", KEYS[1])
	end
	return redis.call("pexpire", KEYS[1], ARGV[2])
`)

// lease is one held lock
type lease struct {
	key   string
	owner string
}

// Locker hands out fail-fast leases under a key prefix. Only one worker in
// the cluster runs a given key at a time.
type Locker struct {
	client    *Client
	keyPrefix string
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{client: client, keyPrefix: keyPrefix}
}

// WithLock runs fn while holding key. It returns ErrLockNotAcquired without
// waiting when the key is taken. The lease is renewed every ttl/2 and fn's
// context is cancelled with ErrLockNotHeld if a renewal finds it lost.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	held, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	log := l.client.logger.WithContext(ctx).WithField("lock", held.key)
	log.Debug("Lock acquired")

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stopRenew := make(chan struct{})
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stopRenew:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				err := l.owned(runCtx, held, ttl.Milliseconds())
				if errors.Is(err, ErrLockNotHeld) {
					log.Warn("Lock lost during run")
					cancel(ErrLockNotHeld)
					return
				}
				if err != nil {
					log.WithError(err).Warn("Failed to renew lock")
				}
			}
		}
	}()

	err = fn(runCtx)
	close(stopRenew)
	<-renewDone

	if relErr := l.owned(context.WithoutCancel(ctx), held, 0); relErr != nil && !errors.Is(relErr, ErrLockNotHeld) {
		log.WithError(relErr).Warn("Failed to release lock")
	}
	return err
}

func (l *Locker) acquire(ctx context.Context, key string, ttl time.Duration) (lease, error) {
	held := lease{key: l.keyPrefix + key, owner: uuid.NewString()}
	ok, err := l.client.rdb.SetNX(ctx, held.key, held.owner, ttl).Result()
	if err != nil {
		return lease{}, err
	}
	if !ok {
		return lease{}, ErrLockNotAcquired
	}
	return held, nil
}

// owned renews the lease to ttlMillis, or releases it when ttlMillis is 0.
func (l *Locker) owned(ctx context.Context, held lease, ttlMillis int64) error {
	n, err := ownerScript.Run(ctx, l.client.rdb, []string{held.key}, held.owner, ttlMillis).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
