package service

import (
	"context"
	"sync"
	"time"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/metrics"
)

// DefaultLockTimeout bounds how long a write waits for its poll's lock.
const DefaultLockTimeout = 5 * time.Second

// PollLocks is an in-process keyed mutex: writes to the same poll run one at
// a time, writes to different polls don't wait on each other. Entries are
// reference counted and removed when nobody holds or waits for them.
//
// A lock is a 1-buffered channel rather than a sync.Mutex so that waiting can
// be abandoned when the context ends.
type PollLocks struct {
	mu      sync.Mutex
	locks   map[string]*pollLock
	timeout time.Duration
}

type pollLock struct {
	sem  chan struct{}
	refs int
}

func NewPollLocks(timeout time.Duration) *PollLocks {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &PollLocks{
		locks:   make(map[string]*pollLock),
		timeout: timeout,
	}
}

// Acquire blocks until the caller holds pollID's lock, the context ends, or
// the lock timeout passes. The last two return a Transient error. On success
// the returned func must be called exactly once.
func (l *PollLocks) Acquire(ctx context.Context, pollID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[pollID]
	if !ok {
		lk = &pollLock{sem: make(chan struct{}, 1)}
		l.locks[pollID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	wait, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	select {
	case lk.sem <- struct{}{}:
		metrics.LockWaitSeconds.Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.sem
				l.unref(pollID, lk)
			})
		}, nil
	case <-wait.Done():
		l.unref(pollID, lk)
		metrics.LockTimeouts.Inc()
		return nil, apperror.Transient("waiting for poll "+pollID, wait.Err())
	}
}

func (l *PollLocks) unref(pollID string, lk *pollLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, pollID)
	}
}

// size reports how many polls currently have holders or waiters.
func (l *PollLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
