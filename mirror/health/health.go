// Package health tracks per-mirror failure counts so a multi-process
// deployment of the patcher can share circuit-breaker state instead of
// each process re-learning which mirrors are down.
//
// This is an enrichment beyond the source patcher, which has no shared
// state at all: every process re-sorts and re-tries every mirror on every
// call. A Tracker only ever reorders candidates for efficiency — it never
// removes a mirror outright, so correctness never depends on it.
package health

import (
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/sirupsen/logrus"
)

// Tracker records mirror failures and reports whether a mirror is
// currently considered unhealthy.
type Tracker interface {
	RecordFailure(mirrorName string)
	RecordSuccess(mirrorName string)
	IsUnhealthy(mirrorName string) bool
}

var log = logrus.WithField("pkg", "health")

const (
	failureThreshold = 3
	openDuration     = 2 * time.Minute
)

// MemTracker is an in-process, single-instance Tracker. It's the default
// when no shared backing store is configured.
type MemTracker struct {
	mu       sync.Mutex
	failures map[string]int
	openedAt map[string]time.Time
}

// NewMemTracker returns an empty in-process Tracker.
func NewMemTracker() *MemTracker {
	return &MemTracker{
		failures: make(map[string]int),
		openedAt: make(map[string]time.Time),
	}
}

func (t *MemTracker) RecordFailure(mirrorName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failures[mirrorName]++
	if t.failures[mirrorName] >= failureThreshold {
		t.openedAt[mirrorName] = time.Now()
	}
}

func (t *MemTracker) RecordSuccess(mirrorName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.failures, mirrorName)
	delete(t.openedAt, mirrorName)
}

func (t *MemTracker) IsUnhealthy(mirrorName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	opened, ok := t.openedAt[mirrorName]
	if !ok {
		return false
	}
	if time.Since(opened) > openDuration {
		delete(t.openedAt, mirrorName)
		delete(t.failures, mirrorName)
		return false
	}
	return true
}

// RedisTracker shares mirror health across processes via a Redis instance.
// Failure counters expire on their own (openDuration TTL), so an idle
// mirror's bad history is forgotten without any cleanup pass.
type RedisTracker struct {
	client   *redis.Client
	fallback *MemTracker
}

// NewRedisTracker connects to addr. If the connection cannot be
// established the returned Tracker falls back to in-process tracking
// rather than failing mirror downloads outright.
func NewRedisTracker(addr, password string, db int) *RedisTracker {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
	})

	if err := client.Ping().Err(); err != nil {
		log.WithFields(logrus.Fields{"addr": addr, "err": err}).Warn("redis unreachable, falling back to in-process mirror health tracking")
	}

	return &RedisTracker{client: client, fallback: NewMemTracker()}
}

func (t *RedisTracker) key(mirrorName string) string {
	return "beampatch:mirror_health:" + mirrorName
}

func (t *RedisTracker) RecordFailure(mirrorName string) {
	count, err := t.client.Incr(t.key(mirrorName)).Result()
	if err != nil {
		log.WithFields(logrus.Fields{"mirror": mirrorName, "err": err}).Warn("redis incr failed, recording locally")
		t.fallback.RecordFailure(mirrorName)
		return
	}
	if count == 1 {
		t.client.Expire(t.key(mirrorName), openDuration)
	}
}

func (t *RedisTracker) RecordSuccess(mirrorName string) {
	if err := t.client.Del(t.key(mirrorName)).Err(); err != nil {
		log.WithFields(logrus.Fields{"mirror": mirrorName, "err": err}).Warn("redis del failed, clearing locally")
		t.fallback.RecordSuccess(mirrorName)
	}
}

func (t *RedisTracker) IsUnhealthy(mirrorName string) bool {
	count, err := t.client.Get(t.key(mirrorName)).Int64()
	if err != nil {
		if err != redis.Nil {
			log.WithFields(logrus.Fields{"mirror": mirrorName, "err": err}).Warn("redis get failed, consulting local fallback")
			return t.fallback.IsUnhealthy(mirrorName)
		}
		return false
	}
	return count >= failureThreshold
}
