package tool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/singleflight"

	"github.com/flowmesh/workflow/engine/emit"
)

// Retrying wraps an Executor with bounded retries, grounded on the
// bare-metal-manager-rest db.Tx advisory-lock retry pattern
// (retry.Do + retry.BackOffDelay + retry.RandomDelay jitter). A
// network hiccup calling out to a payment gateway or CRM shouldn't
// surface as a tool-error to the user on the first blip.
//
// Retrying also de-duplicates by idempotency key: once a call with a given
// key has returned a successful Result, a concurrent or re-dispatched call
// carrying the same key replays the cached Result instead of re-invoking
// the wrapped Executor. In-flight calls sharing a key are collapsed onto a
// single invocation via singleflight, so a retried non-idempotent side
// effect (charging a card, sending an SMS) never fires twice for the same
// logical attempt even when the duplicate arrives before the first finishes.
type Retrying struct {
	next     Executor
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
	emitter  emit.Emitter

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]Result
}

// NewRetrying wraps next with up to attempts tries (delay..maxDelay
// exponential backoff with jitter between them). emitter receives a
// "tool_retry" event before each retried attempt beyond the first; pass nil
// to skip observability (emit.NewNullEmitter() is used internally).
func NewRetrying(next Executor, attempts uint, delay, maxDelay time.Duration, emitter emit.Emitter) *Retrying {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Retrying{next: next, attempts: attempts, delay: delay, maxDelay: maxDelay, emitter: emitter, cache: make(map[string]Result)}
}

func (r *Retrying) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	key, err := idempotencyKey(name, params)
	if err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (any, error) {
		result, err := r.callWithRetry(ctx, name, params)
		if err != nil {
			return Result{}, err
		}
		if result.Success {
			r.mu.Lock()
			r.cache[key] = result
			r.mu.Unlock()
		}
		return result, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (r *Retrying) callWithRetry(ctx context.Context, name string, params map[string]any) (Result, error) {
	var result Result
	err := retry.Do(
		func() error {
			res, callErr := r.next.Execute(ctx, name, params)
			if callErr != nil {
				return callErr
			}
			result = res
			if !res.Success {
				return toolFailure{message: res.Error}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.MaxDelay(r.maxDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, callErr error) {
			r.emitter.Emit(emit.Event{Msg: "tool_retry", Meta: map[string]any{"tool": name, "attempt": n, "error": callErr.Error()}})
		}),
	)
	if err != nil {
		if tf, ok := err.(toolFailure); ok {
			return Result{Success: false, Error: tf.message}, nil
		}
		return Result{}, err
	}
	return result, nil
}

// toolFailure marks a tool-level failure (Result.Success=false) as
// retryable without conflating it with a transport/Go error.
type toolFailure struct{ message string }

func (f toolFailure) Error() string { return f.message }

func idempotencyKey(name string, params map[string]any) (string, error) {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		h.Write([]byte(k))
		v, err := json.Marshal(params[k])
		if err != nil {
			return "", err
		}
		h.Write(v)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
