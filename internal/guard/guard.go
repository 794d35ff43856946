// Package guard serializes writers per session and throttles uploads.
package guard

import (
	"sync"
	"time"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// GuardConfig holds the upload rate limit. Zero disables it.
type GuardConfig struct {
	UploadsPerMinute int
}

// Guard gives each session a single writer and enforces a per-session
// upload rate limit.
type Guard struct {
	Config GuardConfig
	Now    func() time.Time

	mu         sync.Mutex
	locks      map[string]*sessionLock
	rateCounts map[string]*rateBucket
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type rateBucket struct {
	count       int
	windowStart int64
}

// NewGuard creates a Guard with the given limits.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		Config:     cfg,
		Now:        time.Now,
		locks:      make(map[string]*sessionLock),
		rateCounts: make(map[string]*rateBucket),
	}
}

// Acquire checks the rate limit for sessionID and then takes its writer
// lock. The caller must call the returned release func exactly once.
func (g *Guard) Acquire(sessionID string) (release func(), err error) {
	if err := g.CheckRateLimit(sessionID); err != nil {
		return nil, err
	}
	return g.Lock(sessionID), nil
}

// Lock blocks until the caller is the only writer of sessionID and returns
// the matching unlock func. Locks of unused sessions are dropped.
func (g *Guard) Lock(sessionID string) (unlock func()) {
	g.mu.Lock()
	l, ok := g.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		g.locks[sessionID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			g.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(g.locks, sessionID)
			}
			g.mu.Unlock()
		})
	}
}

// CheckRateLimit enforces a per-session fixed window rate limit.
// The window is 60 seconds. If the count exceeds the configured limit,
// ErrRateLimitExceeded is returned.
func (g *Guard) CheckRateLimit(sessionID string) error {
	if g.Config.UploadsPerMinute <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.Now().Unix()
	bucket, ok := g.rateCounts[sessionID]
	if !ok {
		g.rateCounts[sessionID] = &rateBucket{count: 1, windowStart: now}
		return nil
	}

	if now-bucket.windowStart >= 60 {
		bucket.count = 1
		bucket.windowStart = now
		return nil
	}

	if bucket.count >= g.Config.UploadsPerMinute {
		return domain.ErrRateLimitExceeded
	}

	bucket.count++
	return nil
}

// Forget drops the rate window of a session, for example once it is exported.
func (g *Guard) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rateCounts, sessionID)
}

// activeLocks reports the number of sessions with a held or awaited lock.
func (g *Guard) activeLocks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
