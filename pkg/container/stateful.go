package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/beanserver/pkg/commsutil"
)

const statefulLogPrefix = "container:stateful"

type session struct {
	mu       sync.Mutex
	bean     Bean
	lastUsed time.Time
	removed  bool
}

// StatefulContainer holds session-affine instances keyed by a UUID primary key.
// A session is active until it is removed, times out or suffers a system
// failure; afterwards every call reports ErrObjectNotFound.
type StatefulContainer struct {
	id      string
	factory Factory
	timeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
	cancel   context.CancelFunc
}

// NewStatefulContainer creates a container whose sessions expire after timeout
// of inactivity. A zero timeout disables expiry.
func NewStatefulContainer(id string, factory Factory, timeout time.Duration) *StatefulContainer {
	return &StatefulContainer{
		id:       id,
		factory:  factory,
		timeout:  timeout,
		sessions: make(map[string]*session),
	}
}

// Start launches the idle-session reaper when a timeout is configured.
func (c *StatefulContainer) Start(ctx context.Context) error {
	if c.timeout <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	interval := c.timeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	go c.Run(runCtx, interval)
	return nil
}

// Stop halts the reaper and drops all sessions.
func (c *StatefulContainer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.sessions = make(map[string]*session)
}

// Create builds a new session and returns its primary key.
func (c *StatefulContainer) Create(ctx context.Context, args commsutil.Args) (string, error) {
	bean, err := build(c.factory)
	if err != nil {
		return "", err
	}
	if err := create(ctx, bean, args); err != nil {
		return "", err
	}
	pk := uuid.NewString()
	c.mu.Lock()
	c.sessions[pk] = &session{bean: bean, lastUsed: time.Now()}
	c.mu.Unlock()
	return pk, nil
}

// Lookup returns the bean of an active session.
func (c *StatefulContainer) Lookup(pk string) (Bean, error) {
	s, err := c.session(pk)
	if err != nil {
		return nil, err
	}
	return s.bean, nil
}

// Invoke calls method on the session's bean. Calls on one session are
// serialized. A system failure removes the session.
func (c *StatefulContainer) Invoke(ctx context.Context, pk, method string, args commsutil.Args) (interface{}, error) {
	s, err := c.session(pk)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return nil, fmt.Errorf("%s - %s/%s: %w", statefulLogPrefix, c.id, pk, ErrObjectNotFound)
	}

	result, err := invoke(ctx, s.bean, method, args)
	s.lastUsed = time.Now()
	if IsSystemFailure(err) {
		slog.Warn(fmt.Sprintf("%s - %s/%s removed after system failure in %s: %v", statefulLogPrefix, c.id, pk, method, err))
		c.evict(pk, s)
	}
	return result, err
}

// Remove ends a session, calling the bean's Remove hook. An application error
// from the hook keeps the session active.
func (c *StatefulContainer) Remove(ctx context.Context, pk string) error {
	s, err := c.session(pk)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return fmt.Errorf("%s - %s/%s: %w", statefulLogPrefix, c.id, pk, ErrObjectNotFound)
	}
	err = remove(ctx, s.bean)
	if IsApplicationError(err) {
		return err
	}
	c.evict(pk, s)
	return err
}

// Discard removes a session without calling its Remove hook.
func (c *StatefulContainer) Discard(pk string) {
	c.mu.RLock()
	s, ok := c.sessions[pk]
	c.mu.RUnlock()
	if !ok {
		return
	}
	s.mu.Lock()
	c.evict(pk, s)
	s.mu.Unlock()
}

// Sweep removes sessions idle longer than the timeout as of now and returns
// how many were removed. Sessions in use are skipped.
func (c *StatefulContainer) Sweep(now time.Time) int {
	if c.timeout <= 0 {
		return 0
	}
	c.mu.RLock()
	candidates := make(map[string]*session)
	for pk, s := range c.sessions {
		candidates[pk] = s
	}
	c.mu.RUnlock()

	n := 0
	for pk, s := range candidates {
		if !s.mu.TryLock() {
			continue
		}
		if !s.removed && now.Sub(s.lastUsed) > c.timeout {
			c.evict(pk, s)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Run sweeps expired sessions every interval until ctx ends.
func (c *StatefulContainer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := c.Sweep(now); n > 0 {
				slog.Info(fmt.Sprintf("%s - %s expired %d idle sessions", statefulLogPrefix, c.id, n))
			}
		}
	}
}

// Len returns the number of active sessions.
func (c *StatefulContainer) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *StatefulContainer) session(pk string) (*session, error) {
	c.mu.RLock()
	s, ok := c.sessions[pk]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s - %s/%s: %w", statefulLogPrefix, c.id, pk, ErrObjectNotFound)
	}
	return s, nil
}

// evict must be called with s.mu held.
func (c *StatefulContainer) evict(pk string, s *session) {
	s.removed = true
	c.mu.Lock()
	if c.sessions[pk] == s {
		delete(c.sessions, pk)
	}
	c.mu.Unlock()
}
