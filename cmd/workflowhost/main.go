// Command workflowhost is the reference Host Hook Layer: a single HTTP
// listener that accepts inbound webhooks from all four surface transports,
// resolves the unified identity behind each one, dispatches the resulting
// action through the engine, and routes the engine's reply back out via the
// router's retry queue. Wiring follows config.Config; the only environment
// variable read here is WORKFLOWHOST_CONFIG_FILE, the path handed to
// config.Load.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowmesh/workflow/adapter/blockkit"
	"github.com/flowmesh/workflow/adapter/inlinekeyboard"
	"github.com/flowmesh/workflow/adapter/plaintext"
	"github.com/flowmesh/workflow/adapter/voice"
	"github.com/flowmesh/workflow/config"
	"github.com/flowmesh/workflow/engine"
	"github.com/flowmesh/workflow/engine/emit"
	"github.com/flowmesh/workflow/hook"
	"github.com/flowmesh/workflow/identity"
	"github.com/flowmesh/workflow/router"
	"github.com/flowmesh/workflow/store"
	"github.com/flowmesh/workflow/surface"
	"github.com/flowmesh/workflow/tool"
)

func main() {
	configPath := os.Getenv("WORKFLOWHOST_CONFIG_FILE")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("workflowhost: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := newHost(ctx, cfg)
	if err != nil {
		log.Fatalf("workflowhost: %v", err)
	}
	defer h.Close()

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: h.router}
	go func() {
		log.Printf("workflowhost: listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("workflowhost: listen: %v", err)
		}
	}()

	if cfg.MetricsEnabled {
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
		go func() {
			log.Printf("workflowhost: metrics on %s", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("workflowhost: metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	log.Println("workflowhost: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("workflowhost: graceful shutdown: %v", err)
	}
}

// adapterRegistry is a plain map satisfying both hook.AdapterRegistry and
// router.AdapterRegistry, duplicated rather than shared with the engine
// since each Engine keeps its own engine.AdapterRegistry in an unexported
// field (an unshared instance — see engine.New).
type adapterRegistry struct {
	byID map[string]surface.Adapter
}

func (a *adapterRegistry) Adapter(surfaceID string) (surface.Adapter, bool) {
	ad, ok := a.byID[surfaceID]
	return ad, ok
}

// surfaceResolver bridges the engine's per-workflow LastSurface bookkeeping
// and the identity service's DefaultSurface/linked-surface set into the one
// router.SurfaceResolver the router needs; neither engine.Engine nor
// identity.Service implements that interface directly since each only
// knows half of the answer.
type surfaceResolver struct {
	eng      *engine.Engine
	identity *identity.Service
}

func (r *surfaceResolver) LastSurface(userID string) (string, bool) {
	state, err := r.eng.GetActiveWorkflow(context.Background(), userID)
	if err != nil || state == nil {
		return "", false
	}
	return state.LastSurface, state.LastSurface != ""
}

func (r *surfaceResolver) DefaultSurface(userID string) (string, bool) {
	user, ok := r.identity.GetUser(userID)
	if !ok || user.DefaultSurface == "" {
		return "", false
	}
	return user.DefaultSurface, true
}

func (r *surfaceResolver) IsLinked(userID, surfaceID string) bool {
	user, ok := r.identity.GetUser(userID)
	if !ok {
		return false
	}
	_, linked := user.LinkedSurfaces[surfaceID]
	return linked
}

// host bundles the wired-up engine, dispatcher, router, and identity
// service behind the HTTP mux that accepts webhooks.
type host struct {
	router     *mux.Router
	eng        *engine.Engine
	dispatcher *hook.Dispatcher
	identitySvc *identity.Service
	msgRouter  *router.Router
	watcher    *engine.Watcher
}

func (h *host) Close() {
	if h.watcher != nil {
		h.watcher.Close()
	}
	if h.msgRouter != nil {
		h.msgRouter.Close()
	}
	if h.identitySvc != nil {
		h.identitySvc.Close()
	}
}

func newHost(ctx context.Context, cfg *config.Config) (*host, error) {
	stateStore, err := openStateStore(cfg)
	if err != nil {
		return nil, err
	}

	var metricsEmitter emit.Emitter = emit.NewLogEmitter(os.Stdout, true)
	if cfg.MetricsEnabled {
		metricsEmitter = engine.NewPrometheusEmitter(prometheus.DefaultRegisterer, metricsEmitter)
	}

	eng := engine.New(stateStore, buildToolExecutor(metricsEmitter),
		engine.WithEmitter(metricsEmitter),
		engine.WithMaxAutoAdvanceHops(cfg.MaxAutoAdvanceHops),
		engine.WithDefaultToolTimeout(cfg.DefaultToolTimeout),
	)

	adapters := &adapterRegistry{byID: make(map[string]surface.Adapter)}
	for surfaceID, sc := range cfg.Surfaces {
		ad, err := buildAdapter(surfaceID, sc.BaseURL)
		if err != nil {
			return nil, err
		}
		adapters.byID[surfaceID] = ad
		eng.RegisterAdapter(ad)
	}

	if cfg.DefinitionsDir != "" {
		defs, loadErrs := engine.LoadDefinitionsDir(cfg.DefinitionsDir)
		for path, loadErr := range loadErrs {
			log.Printf("workflowhost: skipping definition %s: %v", path, loadErr)
		}
		for _, def := range defs {
			if err := eng.RegisterWorkflow(def); err != nil {
				log.Printf("workflowhost: registering %s: %v", def.ID, err)
			}
		}
	}

	idStore, err := identity.NewFileStore(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("workflowhost: identity store: %w", err)
	}
	manualLinks, err := identity.LoadManualLinkFile(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("workflowhost: manual links: %w", err)
	}
	idSvc, err := identity.NewService(ctx, idStore, manualLinks)
	if err != nil {
		return nil, fmt.Errorf("workflowhost: identity service: %w", err)
	}

	qstore, err := openQueueStore(cfg)
	if err != nil {
		return nil, err
	}
	msgRouter, err := router.New(ctx, &surfaceResolver{eng: eng, identity: idSvc}, adapters, qstore, newID)
	if err != nil {
		return nil, fmt.Errorf("workflowhost: router: %w", err)
	}

	dispatcher := hook.New(eng, adapters)

	var watcher *engine.Watcher
	if cfg.DefinitionsDir != "" {
		watcher, err = engine.WatchDefinitions(eng.Registry(), cfg.DefinitionsDir, metricsEmitter)
		if err != nil {
			log.Printf("workflowhost: definition watcher: %v", err)
		}
	}

	h := &host{
		eng:         eng,
		dispatcher:  dispatcher,
		identitySvc: idSvc,
		msgRouter:   msgRouter,
		watcher:     watcher,
	}
	h.router = h.buildMux()
	return h, nil
}

func (h *host) buildMux() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/inline-keyboard", h.handleInlineKeyboard).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/block-kit", h.handleBlockKit).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/plaintext", h.handlePlaintext).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/voice", h.handleVoice).Methods(http.MethodPost)
	return r
}

func (h *host) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *host) handleInlineKeyboard(w http.ResponseWriter, r *http.Request) {
	var ev inlinekeyboard.CallbackEvent
	if !decodeJSON(w, r, &ev) {
		return
	}
	h.dispatch(w, r, "inline-keyboard", ev.UserID, ev)
}

func (h *host) handleBlockKit(w http.ResponseWriter, r *http.Request) {
	var ev blockkit.InteractionEvent
	if !decodeJSON(w, r, &ev) {
		return
	}
	h.dispatch(w, r, "block-kit", ev.UserID, ev)
}

func (h *host) handlePlaintext(w http.ResponseWriter, r *http.Request) {
	var ev plaintext.InboundMessage
	if !decodeJSON(w, r, &ev) {
		return
	}
	h.dispatch(w, r, "plaintext", ev.From, ev)
}

func (h *host) handleVoice(w http.ResponseWriter, r *http.Request) {
	var ev voice.SpeechEvent
	if !decodeJSON(w, r, &ev) {
		return
	}
	h.dispatch(w, r, "voice", ev.CallID, ev)
}

// dispatch resolves the unified identity behind (surfaceID, surfaceUserID),
// backfills the raw event's WorkflowID/StepID from the user's active
// workflow when the transport didn't already carry them (plaintext and
// voice events are opaque about workflow identity until the host fills it
// in), and hands the event to the dispatcher.
func (h *host) dispatch(w http.ResponseWriter, r *http.Request, surfaceID, surfaceUserID string, rawEvent any) {
	ctx := r.Context()
	user, err := h.identitySvc.ResolveUser(ctx, surfaceID, surfaceUserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rawEvent = h.fillWorkflowContext(ctx, user.ID, rawEvent)

	result, err := h.dispatcher.Dispatch(ctx, surfaceID, user.ID, rawEvent)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !result.Handled {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"handled":false}`))
		return
	}

	if result.State != nil {
		if err := h.msgRouter.RouteResponse(ctx, user.ID, currentStepPayload(result.State)); err != nil {
			log.Printf("workflowhost: route response: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"handled": true, "outcome": result.Outcome})
}

// fillWorkflowContext fills in a plaintext.InboundMessage's or
// voice.SpeechEvent's WorkflowID/StepID from the user's active workflow
// when the transport left them blank. TODO: once the engine exposes a way
// to fetch a step's option list, also fill plaintext.InboundMessage's
// PendingOptions here so bare numeric replies resolve on a fresh process.
func (h *host) fillWorkflowContext(ctx context.Context, userID string, rawEvent any) any {
	state, err := h.eng.GetActiveWorkflow(ctx, userID)
	if err != nil || state == nil {
		return rawEvent
	}
	switch ev := rawEvent.(type) {
	case plaintext.InboundMessage:
		if ev.WorkflowID == "" {
			ev.WorkflowID = state.WorkflowID
			ev.StepID = state.CurrentStep
		}
		return ev
	case voice.SpeechEvent:
		if ev.WorkflowID == "" {
			ev.WorkflowID = state.WorkflowID
			ev.StepID = state.CurrentStep
		}
		return ev
	default:
		return rawEvent
	}
}

// currentStepPayload builds the free-form acknowledgement message routed
// back after a handled action. A production host would instead track the
// RenderedMessage produced while rendering the new current step inside the
// engine; that plumbing isn't exposed outside Engine.HandleAction today, so
// this sends a minimal status line via the router's retry-backed path.
func currentStepPayload(state *engine.WorkflowState) surface.MessagePayload {
	return surface.MessagePayload{Text: fmt.Sprintf("workflow %s is now at step %s", state.WorkflowID, state.CurrentStep)}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func buildAdapter(surfaceID, baseURL string) (surface.Adapter, error) {
	switch surfaceID {
	case "inline-keyboard":
		return inlinekeyboard.New(baseURL), nil
	case "block-kit":
		return blockkit.New(baseURL), nil
	case "plaintext":
		return plaintext.New(baseURL), nil
	case "voice":
		return voice.New(baseURL), nil
	default:
		return nil, fmt.Errorf("workflowhost: unknown surface %q in config", surfaceID)
	}
}

func openStateStore(cfg *config.Config) (engine.StateStore, error) {
	switch cfg.Store.Backend {
	case "file":
		return store.NewFileStore(cfg.Store.DataDir)
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.DSN)
	case "mysql":
		return store.NewMySQLStore(cfg.Store.DSN)
	default:
		return store.NewMemStore(), nil
	}
}

func openQueueStore(cfg *config.Config) (router.QueueStore, error) {
	if cfg.Router.QueueBackend == "redis" {
		return nil, fmt.Errorf("workflowhost: redis queue backend requires a *redis.Client the config layer doesn't construct yet; wire router.NewRedisQueueStore directly in an embedder")
	}
	return router.NewFileQueueStore(cfg.Store.DataDir)
}

func buildToolExecutor(emitter emit.Emitter) tool.Executor {
	mock := tool.NewMock()
	return tool.NewRetrying(mock, 3, 200*time.Millisecond, 2*time.Second, emitter)
}

var idCounter struct {
	mu sync.Mutex
	n  uint64
}

// newID generates router queue-entry ids. Grounded on the router package's
// own idGen dependency-injection point (router.New takes idGen so tests can
// substitute a deterministic generator); production wiring here just needs
// uniqueness, not unpredictability, so a monotonic counter prefixed with
// the current time is enough.
func newID() string {
	idCounter.mu.Lock()
	defer idCounter.mu.Unlock()
	idCounter.n++
	return fmt.Sprintf("q-%d-%d", time.Now().UnixNano(), idCounter.n)
}
