// Package identity implements the identity service: unification of the
// same human across multiple messaging surfaces behind one UnifiedUser,
// link-code issuance/claiming, and the (surfaceId, surfaceUserId) reverse
// index. Persistence follows the teacher's store conventions (atomic
// temp-file-plus-rename JSON), link codes stay in-memory only.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// linkCodeAlphabet excludes visually ambiguous characters (0/O, 1/I).
const linkCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	linkCodeLength  = 6
	linkCodeTTL     = 10 * time.Minute
	maxUnclaimedPer = 3
)

// UnifiedUser merges one human's presence across every surface they've been
// seen on or linked to.
type UnifiedUser struct {
	ID             string            `json:"id"`
	LinkedSurfaces map[string]string `json:"linkedSurfaces"` // surfaceId -> surfaceUserId
	DefaultSurface string            `json:"defaultSurface"`
	LinkedAt       map[string]string `json:"linkedAt"` // surfaceId -> ISO8601
	CreatedAt      time.Time         `json:"createdAt"`
}

// LinkCode is a short-lived, in-memory-only token a user types on a second
// surface to merge it into their existing UnifiedUser.
type LinkCode struct {
	Code      string    `json:"code"`
	IssuedBy  string    `json:"issuedBy"` // "<surfaceId>:<userId>"
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Claimed   bool      `json:"claimed"`
}

// Typed preconditions, per spec §7 — returned to admin-facing callers, never
// surfaced directly to end users.
var (
	ErrCodeNotFound      = errors.New("identity: link code not found")
	ErrCodeExpired       = errors.New("identity: link code expired")
	ErrCodeAlreadyClaimed = errors.New("identity: link code already claimed")
)

// MaxCodesError reports that an issuer already has the maximum number of
// unclaimed, unexpired link codes outstanding.
type MaxCodesError struct {
	Issuer string
	Max    int
}

func (e *MaxCodesError) Error() string {
	return fmt.Sprintf("identity: issuer %s already has %d unclaimed link codes", e.Issuer, e.Max)
}

// LastSurfaceError reports an unlink attempt that would leave a user with
// no linked surfaces at all.
type LastSurfaceError struct{ UserID string }

func (e *LastSurfaceError) Error() string {
	return fmt.Sprintf("identity: cannot unlink the last surface for user %s", e.UserID)
}

// SameSurfaceError reports a link-code claim attempted from the same
// surface that issued it.
type SameSurfaceError struct{ SurfaceID string }

func (e *SameSurfaceError) Error() string {
	return fmt.Sprintf("identity: cannot claim a link code from its issuing surface %s", e.SurfaceID)
}

// SurfaceNotLinkedError reports an operation referencing a surface the
// target user has no link for.
type SurfaceNotLinkedError struct {
	UserID    string
	SurfaceID string
}

func (e *SurfaceNotLinkedError) Error() string {
	return fmt.Sprintf("identity: user %s has no link for surface %s", e.UserID, e.SurfaceID)
}

func newUserID() string {
	return uuid.NewString()
}

func generateCode() (string, error) {
	b := make([]byte, linkCodeLength)
	out := make([]byte, linkCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("identity: generate code: %w", err)
	}
	n := len(linkCodeAlphabet)
	for i, v := range b {
		out[i] = linkCodeAlphabet[int(v)%n]
	}
	return string(out), nil
}
