// Package router implements the message router (spec §4.6): reply
// delivery on the surface of the latest inbound action, proactive delivery
// on a user's default surface, and a persistent retry queue with
// exponential backoff for surfaces that reject delivery. Persistence
// follows the same atomic temp-file-plus-rename discipline as store and
// identity.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flowmesh/workflow/surface"
)

// Backoff schedule per spec §4.6: seconds per attempt, capped at 5 tries.
var backoffSchedule = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	90 * time.Second,
	270 * time.Second,
	810 * time.Second,
}

const (
	maxAttempts        = 5
	maxQueuePerUser    = 100
	sweepInterval      = 30 * time.Second
)

// QueueEntry is a message waiting for redelivery after a transport
// failure.
type QueueEntry struct {
	ID            string               `json:"id"`
	UserID        string               `json:"userId"`
	TargetSurface string               `json:"targetSurface"`
	Message       surface.MessagePayload `json:"message"`
	QueuedAt      time.Time            `json:"queuedAt"`
	Attempts      int                  `json:"attempts"`
	LastAttemptAt *time.Time           `json:"lastAttemptAt,omitempty"`
	MaxAttempts   int                  `json:"maxAttempts"`
}

func (e *QueueEntry) dueAt() time.Time {
	if e.LastAttemptAt == nil {
		return e.QueuedAt
	}
	idx := e.Attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return e.LastAttemptAt.Add(backoffSchedule[idx])
}

// SurfaceResolver looks up where to deliver messages for a user: the
// surface of their latest inbound action (for replies) and their default
// surface (for proactive sends). It also reports whether a surface is
// still linked, so the router can silently drop entries for surfaces a
// user has since unlinked.
type SurfaceResolver interface {
	LastSurface(userID string) (surfaceID string, ok bool)
	DefaultSurface(userID string) (surfaceID string, ok bool)
	IsLinked(userID, surfaceID string) bool
}

// AdapterRegistry resolves a surfaceId to the surface.Adapter responsible
// for delivering to it.
type AdapterRegistry interface {
	Adapter(surfaceID string) (surface.Adapter, bool)
}

// QueueStore persists the retry queue atomically.
type QueueStore interface {
	Load(ctx context.Context) ([]*QueueEntry, error)
	Save(ctx context.Context, entries []*QueueEntry) error
}

// Router is the message router described by spec §4.6.
type Router struct {
	resolver SurfaceResolver
	adapters AdapterRegistry
	qstore   QueueStore
	clock    func() time.Time
	idGen    func() string
	limiter  *rate.Limiter

	mu      sync.Mutex
	byUser  map[string][]*QueueEntry
	sweeper *time.Ticker
	stop    chan struct{}
}

// New constructs a Router, loading any previously persisted queue.
func New(ctx context.Context, resolver SurfaceResolver, adapters AdapterRegistry, qstore QueueStore, idGen func() string) (*Router, error) {
	r := &Router{
		resolver: resolver,
		adapters: adapters,
		qstore:   qstore,
		clock:    time.Now,
		idGen:    idGen,
		limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		byUser:   make(map[string][]*QueueEntry),
		stop:     make(chan struct{}),
	}
	entries, err := qstore.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("router: load queue: %w", err)
	}
	for _, e := range entries {
		r.byUser[e.UserID] = append(r.byUser[e.UserID], e)
	}

	r.sweeper = time.NewTicker(sweepInterval)
	go r.sweepLoop()
	return r, nil
}

// Close stops the background sweeper.
func (r *Router) Close() {
	r.sweeper.Stop()
	close(r.stop)
}

// RouteResponse replies on the surface of the user's latest inbound
// action.
func (r *Router) RouteResponse(ctx context.Context, userID string, payload surface.MessagePayload) error {
	surfaceID, ok := r.resolver.LastSurface(userID)
	if !ok {
		return fmt.Errorf("router: no last surface recorded for user %s", userID)
	}
	return r.deliver(ctx, userID, surfaceID, payload)
}

// RouteProactive emits on the user's default surface.
func (r *Router) RouteProactive(ctx context.Context, userID string, payload surface.MessagePayload) error {
	surfaceID, ok := r.resolver.DefaultSurface(userID)
	if !ok {
		return fmt.Errorf("router: no default surface recorded for user %s", userID)
	}
	return r.deliver(ctx, userID, surfaceID, payload)
}

func (r *Router) deliver(ctx context.Context, userID, surfaceID string, payload surface.MessagePayload) error {
	adapter, ok := r.adapters.Adapter(surfaceID)
	if !ok {
		return fmt.Errorf("router: unknown surface %s", surfaceID)
	}
	target := surface.Ref{SurfaceID: surfaceID, SurfaceUserID: userID}
	if _, err := adapter.SendMessage(ctx, target, payload); err != nil {
		r.enqueue(ctx, userID, surfaceID, payload)
		return nil
	}
	return nil
}

func (r *Router) enqueue(ctx context.Context, userID, surfaceID string, payload surface.MessagePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &QueueEntry{
		ID:            r.idGen(),
		UserID:        userID,
		TargetSurface: surfaceID,
		Message:       payload,
		QueuedAt:      r.clock(),
		MaxAttempts:   maxAttempts,
	}
	queue := append(r.byUser[userID], entry)
	if len(queue) > maxQueuePerUser {
		queue = queue[len(queue)-maxQueuePerUser:] // oldest-drop
	}
	r.byUser[userID] = queue
	_ = r.persistLocked(ctx)
}

func (r *Router) persistLocked(ctx context.Context) error {
	var all []*QueueEntry
	for _, entries := range r.byUser {
		all = append(all, entries...)
	}
	return r.qstore.Save(ctx, all)
}

func (r *Router) sweepLoop() {
	for {
		select {
		case <-r.stop:
			return
		case <-r.sweeper.C:
			r.sweep(context.Background())
		}
	}
}

// sweep retries every due entry; entries are dropped on success, on attempt
// exhaustion, or if the target surface has since been unlinked.
func (r *Router) sweep(ctx context.Context) {
	r.mu.Lock()
	now := r.clock()
	type attempt struct {
		userID string
		entry  *QueueEntry
	}
	var due []attempt
	for userID, entries := range r.byUser {
		for _, e := range entries {
			if now.After(e.dueAt()) || now.Equal(e.dueAt()) {
				due = append(due, attempt{userID: userID, entry: e})
			}
		}
	}
	r.mu.Unlock()

	for _, a := range due {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}
		r.retryOne(ctx, a.userID, a.entry)
	}
}

func (r *Router) retryOne(ctx context.Context, userID string, entry *QueueEntry) {
	r.mu.Lock()
	if !r.resolver.IsLinked(userID, entry.TargetSurface) {
		r.removeLocked(userID, entry.ID)
		_ = r.persistLocked(ctx)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	adapter, ok := r.adapters.Adapter(entry.TargetSurface)
	if !ok {
		r.mu.Lock()
		r.removeLocked(userID, entry.ID)
		_ = r.persistLocked(ctx)
		r.mu.Unlock()
		return
	}

	target := surface.Ref{SurfaceID: entry.TargetSurface, SurfaceUserID: userID}
	_, err := adapter.SendMessage(ctx, target, entry.Message)

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	entry.Attempts++
	entry.LastAttemptAt = &now
	if err == nil || entry.Attempts >= entry.MaxAttempts {
		r.removeLocked(userID, entry.ID)
	}
	_ = r.persistLocked(ctx)
}

func (r *Router) removeLocked(userID, entryID string) {
	entries := r.byUser[userID]
	for i, e := range entries {
		if e.ID == entryID {
			r.byUser[userID] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// PendingCount returns the number of queued entries for userID, for
// admin/inspection tooling.
func (r *Router) PendingCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID])
}
