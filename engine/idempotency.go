package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// toolCallIdempotencyKey derives a stable key for one tool-call invocation
// from (workflowId, userId, stepId, paramMap), adapted from the
// teacher's computeIdempotencyKey: hashing a deterministic, sorted encoding
// of the call's identifying inputs lets a ToolExecutor wrapped in a retrier
// recognize and skip a duplicate attempt instead of re-firing a
// non-idempotent side effect. Returned as "sha256:<hex>".
func toolCallIdempotencyKey(workflowID, userID, stepID string, params map[string]any) (string, error) {
	h := sha256.New()
	h.Write([]byte(workflowID))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(stepID))
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
