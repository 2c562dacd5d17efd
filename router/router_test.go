package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flowmesh/workflow/primitive"
	"github.com/flowmesh/workflow/surface"
)

// fakeResolver implements SurfaceResolver for tests.
type fakeResolver struct {
	last    map[string]string
	deflt   map[string]string
	linked  map[string]map[string]bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{last: map[string]string{}, deflt: map[string]string{}, linked: map[string]map[string]bool{}}
}

func (f *fakeResolver) LastSurface(userID string) (string, bool)    { s, ok := f.last[userID]; return s, ok }
func (f *fakeResolver) DefaultSurface(userID string) (string, bool) { s, ok := f.deflt[userID]; return s, ok }
func (f *fakeResolver) IsLinked(userID, surfaceID string) bool      { return f.linked[userID][surfaceID] }

func (f *fakeResolver) link(userID, surfaceID string) {
	if f.linked[userID] == nil {
		f.linked[userID] = map[string]bool{}
	}
	f.linked[userID][surfaceID] = true
	f.last[userID] = surfaceID
	f.deflt[userID] = surfaceID
}

// fakeAdapter lets tests script delivery success/failure per call.
type fakeAdapter struct {
	surfaceID string
	mu        sync.Mutex
	fail      int // number of remaining calls that should fail
	sent      []surface.MessagePayload
}

func (a *fakeAdapter) SurfaceID() string                             { return a.surfaceID }
func (a *fakeAdapter) Version() string                               { return "test" }
func (a *fakeAdapter) Capabilities() primitive.SurfaceCapabilities   { return primitive.SurfaceCapabilities{} }
func (a *fakeAdapter) Render(ctx context.Context, target surface.Ref, workflowID, stepID string, p primitive.Primitive) (surface.RenderedMessage, error) {
	return surface.RenderedMessage{}, nil
}
func (a *fakeAdapter) ParseAction(rawEvent any) (*surface.ParsedUserAction, error) { return nil, nil }
func (a *fakeAdapter) SendMessage(ctx context.Context, target surface.Ref, payload surface.MessagePayload) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, payload)
	if a.fail > 0 {
		a.fail--
		return "", errFakeDeliveryFailed
	}
	return "msg-1", nil
}
func (a *fakeAdapter) UpdateMessage(ctx context.Context, target surface.Ref, messageID string, payload surface.MessagePayload) error {
	return nil
}
func (a *fakeAdapter) DeleteMessage(ctx context.Context, target surface.Ref, messageID string) error {
	return nil
}
func (a *fakeAdapter) AcknowledgeAction(ctx context.Context, rawEvent any, text string) error {
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFakeDeliveryFailed = fakeErr("delivery failed")

type fakeRegistry struct{ adapters map[string]surface.Adapter }

func (r *fakeRegistry) Adapter(surfaceID string) (surface.Adapter, bool) {
	a, ok := r.adapters[surfaceID]
	return a, ok
}

func newTestRouter(t *testing.T, resolver *fakeResolver, reg *fakeRegistry) *Router {
	t.Helper()
	qstore, err := NewFileQueueStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileQueueStore: %v", err)
	}
	n := 0
	r, err := New(context.Background(), resolver, reg, qstore, func() string {
		n++
		return fmtID(n)
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func fmtID(n int) string {
	return "q" + string(rune('0'+n))
}

func TestRouteResponse_DeliversOnLastSurface(t *testing.T) {
	resolver := newFakeResolver()
	resolver.link("u1", "telegram")
	adapter := &fakeAdapter{surfaceID: "telegram"}
	reg := &fakeRegistry{adapters: map[string]surface.Adapter{"telegram": adapter}}
	r := newTestRouter(t, resolver, reg)

	if err := r.RouteResponse(context.Background(), "u1", surface.MessagePayload{Text: "hi"}); err != nil {
		t.Fatalf("RouteResponse: %v", err)
	}
	if len(adapter.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(adapter.sent))
	}
	if r.PendingCount("u1") != 0 {
		t.Fatalf("expected no queued entries on success")
	}
}

func TestRouteResponse_EnqueuesOnFailure(t *testing.T) {
	resolver := newFakeResolver()
	resolver.link("u1", "telegram")
	adapter := &fakeAdapter{surfaceID: "telegram", fail: 1}
	reg := &fakeRegistry{adapters: map[string]surface.Adapter{"telegram": adapter}}
	r := newTestRouter(t, resolver, reg)

	if err := r.RouteResponse(context.Background(), "u1", surface.MessagePayload{Text: "hi"}); err != nil {
		t.Fatalf("RouteResponse: %v", err)
	}
	if r.PendingCount("u1") != 1 {
		t.Fatalf("expected 1 queued entry after failure, got %d", r.PendingCount("u1"))
	}
}

func TestSweep_RetriesDueEntryAndSucceeds(t *testing.T) {
	resolver := newFakeResolver()
	resolver.link("u1", "telegram")
	adapter := &fakeAdapter{surfaceID: "telegram", fail: 1}
	reg := &fakeRegistry{adapters: map[string]surface.Adapter{"telegram": adapter}}
	r := newTestRouter(t, resolver, reg)
	r.clock = func() time.Time { return time.Unix(0, 0) }

	_ = r.RouteResponse(context.Background(), "u1", surface.MessagePayload{Text: "hi"})
	if r.PendingCount("u1") != 1 {
		t.Fatalf("expected queued entry")
	}

	r.clock = func() time.Time { return time.Unix(0, 0).Add(11 * time.Second) }
	r.sweep(context.Background())

	if r.PendingCount("u1") != 0 {
		t.Fatalf("expected entry removed after successful retry, got %d pending", r.PendingCount("u1"))
	}
	if len(adapter.sent) != 2 {
		t.Fatalf("expected 2 send attempts, got %d", len(adapter.sent))
	}
}

func TestSweep_DropsEntryAfterMaxAttempts(t *testing.T) {
	resolver := newFakeResolver()
	resolver.link("u1", "telegram")
	adapter := &fakeAdapter{surfaceID: "telegram", fail: 999}
	reg := &fakeRegistry{adapters: map[string]surface.Adapter{"telegram": adapter}}
	r := newTestRouter(t, resolver, reg)

	base := time.Unix(0, 0)
	r.clock = func() time.Time { return base }
	_ = r.RouteResponse(context.Background(), "u1", surface.MessagePayload{Text: "hi"})

	elapsed := time.Duration(0)
	for i := 0; i < maxAttempts; i++ {
		elapsed += 900 * time.Second
		r.clock = func() time.Time { return base.Add(elapsed) }
		r.sweep(context.Background())
	}

	if r.PendingCount("u1") != 0 {
		t.Fatalf("expected entry dropped after %d attempts, got %d pending", maxAttempts, r.PendingCount("u1"))
	}
}

func TestSweep_DropsEntryIfSurfaceUnlinked(t *testing.T) {
	resolver := newFakeResolver()
	resolver.link("u1", "telegram")
	adapter := &fakeAdapter{surfaceID: "telegram", fail: 999}
	reg := &fakeRegistry{adapters: map[string]surface.Adapter{"telegram": adapter}}
	r := newTestRouter(t, resolver, reg)

	base := time.Unix(0, 0)
	r.clock = func() time.Time { return base }
	_ = r.RouteResponse(context.Background(), "u1", surface.MessagePayload{Text: "hi"})

	resolver.linked["u1"]["telegram"] = false
	r.clock = func() time.Time { return base.Add(time.Hour) }
	r.sweep(context.Background())

	if r.PendingCount("u1") != 0 {
		t.Fatalf("expected entry dropped for unlinked surface, got %d pending", r.PendingCount("u1"))
	}
}
