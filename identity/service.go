package identity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Service is the identity unification service described by spec §4.3: it
// resolves a (surfaceId, surfaceUserId) pair to a UnifiedUser, issues and
// claims link codes, and exposes admin-level manual linking. Persistence
// for UnifiedUser records goes through Store; LinkCode records are
// in-memory only and expire on their own.
type Service struct {
	mu           sync.Mutex
	store        Store
	manualLinks  ManualLinkStore
	clock        func() time.Time
	users        map[string]*UnifiedUser // userID -> user
	reverseIndex map[string]string       // "surfaceId:surfaceUserId" -> userID
	linkCodes    map[string]*LinkCode    // code -> LinkCode

	gcStop chan struct{}
}

// Store persists UnifiedUser records keyed by id.
type Store interface {
	LoadAll(ctx context.Context) ([]*UnifiedUser, error)
	Save(ctx context.Context, user *UnifiedUser) error
	Delete(ctx context.Context, userID string) error
}

// ManualLinkStore resolves admin-configured surface-to-user overrides,
// consulted by resolveUser before a brand new UnifiedUser is minted.
type ManualLinkStore interface {
	// Lookup returns the userId an admin has pre-bound to
	// (surfaceId, surfaceUserId), if any.
	Lookup(surfaceID, surfaceUserID string) (userID string, ok bool)
}

// NewService constructs a Service, rehydrating UnifiedUser records (and
// rebuilding the reverse index) from store. manualLinks may be nil.
func NewService(ctx context.Context, store Store, manualLinks ManualLinkStore) (*Service, error) {
	s := &Service{
		store:        store,
		manualLinks:  manualLinks,
		clock:        time.Now,
		users:        make(map[string]*UnifiedUser),
		reverseIndex: make(map[string]string),
		linkCodes:    make(map[string]*LinkCode),
		gcStop:       make(chan struct{}),
	}

	existing, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: load users: %w", err)
	}
	for _, u := range existing {
		s.users[u.ID] = u
		for surfaceID, surfaceUserID := range u.LinkedSurfaces {
			s.reverseIndex[reverseKey(surfaceID, surfaceUserID)] = u.ID
		}
	}

	go s.gcLoop()
	return s, nil
}

// Close stops the background link-code GC loop.
func (s *Service) Close() { close(s.gcStop) }

func reverseKey(surfaceID, surfaceUserID string) string {
	return surfaceID + ":" + surfaceUserID
}

// gcLoop reaps expired link codes every minute, per spec §5(d).
func (s *Service) gcLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			s.sweepExpiredCodes()
		}
	}
}

func (s *Service) sweepExpiredCodes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for code, lc := range s.linkCodes {
		if lc.Claimed || now.After(lc.ExpiresAt) {
			delete(s.linkCodes, code)
		}
	}
}

// ResolveUser maps a (surfaceId, surfaceUserId) pair to its UnifiedUser,
// consulting manual overrides and the reverse index before lazily creating
// a brand new user with defaultSurface = surfaceId.
func (s *Service) ResolveUser(ctx context.Context, surfaceID, surfaceUserID string) (*UnifiedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reverseKey(surfaceID, surfaceUserID)
	if userID, ok := s.reverseIndex[key]; ok {
		return s.users[userID].clone(), nil
	}

	if s.manualLinks != nil {
		if userID, ok := s.manualLinks.Lookup(surfaceID, surfaceUserID); ok {
			if u, ok := s.users[userID]; ok {
				return s.linkSurfaceLocked(ctx, u, surfaceID, surfaceUserID)
			}
		}
	}

	now := s.clock()
	user := &UnifiedUser{
		ID:             newUserID(),
		LinkedSurfaces: map[string]string{surfaceID: surfaceUserID},
		DefaultSurface: surfaceID,
		LinkedAt:       map[string]string{surfaceID: now.Format(time.RFC3339)},
		CreatedAt:      now,
	}
	s.users[user.ID] = user
	s.reverseIndex[key] = user.ID
	if err := s.store.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("identity: save new user: %w", err)
	}
	return user.clone(), nil
}

// linkSurfaceLocked attaches surfaceID/surfaceUserID to user. Caller must
// hold s.mu.
func (s *Service) linkSurfaceLocked(ctx context.Context, user *UnifiedUser, surfaceID, surfaceUserID string) (*UnifiedUser, error) {
	user.LinkedSurfaces[surfaceID] = surfaceUserID
	user.LinkedAt[surfaceID] = s.clock().Format(time.RFC3339)
	s.reverseIndex[reverseKey(surfaceID, surfaceUserID)] = user.ID
	if err := s.store.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("identity: save linked user: %w", err)
	}
	return user.clone(), nil
}

// GenerateLinkCode issues a fresh code an unauthenticated second surface can
// present to merge itself into issuerUserID's account.
func (s *Service) GenerateLinkCode(surfaceID, issuerUserID string) (*LinkCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issuer := reverseKey(surfaceID, issuerUserID)
	now := s.clock()
	unclaimed := 0
	for _, lc := range s.linkCodes {
		if lc.IssuedBy == issuer && !lc.Claimed && now.Before(lc.ExpiresAt) {
			unclaimed++
		}
	}
	if unclaimed >= maxUnclaimedPer {
		return nil, &MaxCodesError{Issuer: issuer, Max: maxUnclaimedPer}
	}

	var code string
	for {
		c, err := generateCode()
		if err != nil {
			return nil, err
		}
		if _, exists := s.linkCodes[c]; !exists {
			code = c
			break
		}
	}

	lc := &LinkCode{Code: code, IssuedBy: issuer, IssuedAt: now, ExpiresAt: now.Add(linkCodeTTL)}
	s.linkCodes[code] = lc
	return lc, nil
}

// ClaimLinkCode validates code and merges the claiming surface's user
// record into the issuer's, per spec §4.3.
func (s *Service) ClaimLinkCode(ctx context.Context, code, surfaceID, surfaceUserID string) (*UnifiedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, ok := s.linkCodes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	if lc.Claimed {
		return nil, ErrCodeAlreadyClaimed
	}
	if s.clock().After(lc.ExpiresAt) {
		return nil, ErrCodeExpired
	}

	issuerSurfaceID, issuerUserID, err := splitIssuer(lc.IssuedBy)
	if err != nil {
		return nil, err
	}
	if issuerSurfaceID == surfaceID {
		return nil, &SameSurfaceError{SurfaceID: surfaceID}
	}

	issuerUser, ok := s.users[issuerUserID]
	if !ok {
		return nil, fmt.Errorf("identity: issuer user no longer exists")
	}

	claimerKey := reverseKey(surfaceID, surfaceUserID)
	if claimerUserID, ok := s.reverseIndex[claimerKey]; ok && claimerUserID != issuerUser.ID {
		claimer := s.users[claimerUserID]
		for sID, sUID := range claimer.LinkedSurfaces {
			issuerUser.LinkedSurfaces[sID] = sUID
			issuerUser.LinkedAt[sID] = claimer.LinkedAt[sID]
			s.reverseIndex[reverseKey(sID, sUID)] = issuerUser.ID
		}
		delete(s.users, claimer.ID)
		if err := s.store.Delete(ctx, claimer.ID); err != nil {
			return nil, fmt.Errorf("identity: delete merged user: %w", err)
		}
	} else {
		issuerUser.LinkedSurfaces[surfaceID] = surfaceUserID
		issuerUser.LinkedAt[surfaceID] = s.clock().Format(time.RFC3339)
		s.reverseIndex[claimerKey] = issuerUser.ID
	}

	lc.Claimed = true
	if err := s.store.Save(ctx, issuerUser); err != nil {
		return nil, fmt.Errorf("identity: save merged user: %w", err)
	}
	return issuerUser.clone(), nil
}

// LinkManual is an admin operation binding surfaceID/surfaceUserID directly
// onto an existing user, bypassing the link-code flow.
func (s *Service) LinkManual(ctx context.Context, userID, surfaceID, surfaceUserID string) (*UnifiedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("identity: unknown user %s", userID)
	}
	return s.linkSurfaceLocked(ctx, user, surfaceID, surfaceUserID)
}

// SetDefaultSurface changes which surface routeProactive targets for user.
func (s *Service) SetDefaultSurface(ctx context.Context, userID, surfaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("identity: unknown user %s", userID)
	}
	if _, linked := user.LinkedSurfaces[surfaceID]; !linked {
		return &SurfaceNotLinkedError{UserID: userID, SurfaceID: surfaceID}
	}
	user.DefaultSurface = surfaceID
	return s.store.Save(ctx, user)
}

// UnlinkSurface removes surfaceID from userID's account. Fails with
// LastSurfaceError if it would leave the user with no linked surfaces.
func (s *Service) UnlinkSurface(ctx context.Context, userID, surfaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("identity: unknown user %s", userID)
	}
	surfaceUserID, linked := user.LinkedSurfaces[surfaceID]
	if !linked {
		return &SurfaceNotLinkedError{UserID: userID, SurfaceID: surfaceID}
	}
	if len(user.LinkedSurfaces) == 1 {
		return &LastSurfaceError{UserID: userID}
	}

	delete(user.LinkedSurfaces, surfaceID)
	delete(user.LinkedAt, surfaceID)
	delete(s.reverseIndex, reverseKey(surfaceID, surfaceUserID))
	if user.DefaultSurface == surfaceID {
		for remaining := range user.LinkedSurfaces {
			user.DefaultSurface = remaining
			break
		}
	}
	return s.store.Save(ctx, user)
}

// GetUser returns a defensive copy of the UnifiedUser for userID, if known.
func (s *Service) GetUser(userID string) (*UnifiedUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, false
	}
	return u.clone(), true
}

func splitIssuer(issuedBy string) (surfaceID, userID string, err error) {
	for i := 0; i < len(issuedBy); i++ {
		if issuedBy[i] == ':' {
			return issuedBy[:i], issuedBy[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("identity: malformed issuer %q", issuedBy)
}

func (u *UnifiedUser) clone() *UnifiedUser {
	if u == nil {
		return nil
	}
	out := *u
	out.LinkedSurfaces = make(map[string]string, len(u.LinkedSurfaces))
	for k, v := range u.LinkedSurfaces {
		out.LinkedSurfaces[k] = v
	}
	out.LinkedAt = make(map[string]string, len(u.LinkedAt))
	for k, v := range u.LinkedAt {
		out.LinkedAt[k] = v
	}
	return &out
}
