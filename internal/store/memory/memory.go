// Package memory implements the credential store as in-process maps. It is
// the dev/test backend; keys are the lowercase-hex encoding of the binary
// id/hash because raw byte slices are not comparable map keys.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/grantd/internal/scope"
	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

type Store struct {
	mu sync.RWMutex

	maxAccessTTL time.Duration

	clients       map[string]*core.Client
	codes         map[string]*core.Code
	accessTokens  map[string]*core.AccessToken
	refreshTokens map[string]*core.RefreshToken
	developers    map[string]*core.Developer          // keyed by email
	clientDevs    map[string]map[string]struct{}      // developer id -> owned client ids
}

func New(maxAccessTTL time.Duration) *Store {
	return &Store{
		maxAccessTTL:  maxAccessTTL,
		clients:       make(map[string]*core.Client),
		codes:         make(map[string]*core.Code),
		accessTokens:  make(map[string]*core.AccessToken),
		refreshTokens: make(map[string]*core.RefreshToken),
		developers:    make(map[string]*core.Developer),
		clientDevs:    make(map[string]map[string]struct{}),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() {}

// ---- Clients ----

func (s *Store) RegisterClient(ctx context.Context, c *core.Client) error {
	if len(c.ID) != token.ClientIDLen {
		return core.ErrInvalid
	}
	key := token.HexKey(c.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[key]; ok {
		return core.ErrConflict
	}
	cp := *c
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.clients[key] = &cp
	return nil
}

func (s *Store) UpdateClient(ctx context.Context, id []byte, u *core.ClientUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[token.HexKey(id)]
	if !ok {
		return core.ErrNotFound
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.HashedSecret != nil {
		c.HashedSecret = u.HashedSecret
	}
	if u.HashedSecretPrevious != nil {
		c.HashedSecretPrevious = u.HashedSecretPrevious
	}
	if u.RedirectURI != nil {
		c.RedirectURI = *u.RedirectURI
	}
	if u.ImageURI != nil {
		c.ImageURI = *u.ImageURI
	}
	if u.Trusted != nil {
		c.Trusted = *u.Trusted
	}
	if u.CanGrant != nil {
		c.CanGrant = *u.CanGrant
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id []byte) (*core.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[token.HexKey(id)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetClients(ctx context.Context, ownerEmail string) ([]*core.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// An owner with no developer row simply owns nothing; absence is
	// not an error here, matching the relational backend's join.
	dev, ok := s.developers[strings.ToLower(ownerEmail)]
	if !ok {
		return []*core.Client{}, nil
	}
	owned := s.clientDevs[token.HexKey(dev.DeveloperID)]
	out := make([]*core.Client, 0, len(owned))
	for key := range owned {
		if c, ok := s.clients[key]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) RemoveClient(ctx context.Context, id []byte) error {
	key := token.HexKey(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[key]; !ok {
		return core.ErrNotFound
	}
	delete(s.clients, key)
	for h, c := range s.codes {
		if token.HexKey(c.ClientID) == key {
			delete(s.codes, h)
		}
	}
	for h, t := range s.accessTokens {
		if token.HexKey(t.ClientID) == key {
			delete(s.accessTokens, h)
		}
	}
	for h, t := range s.refreshTokens {
		if token.HexKey(t.ClientID) == key {
			delete(s.refreshTokens, h)
		}
	}
	for dev := range s.clientDevs {
		delete(s.clientDevs[dev], key)
	}
	return nil
}

// ---- Codes ----

func (s *Store) GenerateCode(ctx context.Context, spec *core.CodeSpec) (string, error) {
	raw, err := token.Random(token.CodeLen)
	if err != nil {
		return "", err
	}
	c := &core.Code{
		Hash:      token.Hash(raw),
		ClientID:  spec.ClientID,
		UserID:    spec.UserID,
		Email:     spec.Email,
		Scope:     append([]string(nil), spec.Scope...),
		AuthAt:    spec.AuthAt,
		Offline:   spec.Offline,
		Challenge: spec.Challenge,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.codes[token.HexKey(c.Hash)] = c
	s.mu.Unlock()
	return token.HexKey(raw), nil
}

func (s *Store) GetCode(ctx context.Context, hash []byte) (*core.Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[token.HexKey(hash)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// RemoveCode reports ErrNotFound when the code was already gone, so that
// concurrent redemptions of one code produce at most one winner.
func (s *Store) RemoveCode(ctx context.Context, hash []byte) error {
	key := token.HexKey(hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[key]; !ok {
		return core.ErrNotFound
	}
	delete(s.codes, key)
	return nil
}

// ---- Access tokens ----

func (s *Store) GenerateAccessToken(ctx context.Context, spec *core.AccessTokenSpec) (string, *core.AccessToken, error) {
	raw, err := token.Random(token.TokenLen)
	if err != nil {
		return "", nil, err
	}
	ttl := spec.TTL
	if ttl <= 0 || ttl > s.maxAccessTTL {
		ttl = s.maxAccessTTL
	}
	now := time.Now()
	t := &core.AccessToken{
		Hash:      token.Hash(raw),
		ClientID:  spec.ClientID,
		UserID:    spec.UserID,
		Email:     spec.Email,
		Scope:     append([]string(nil), spec.Scope...),
		Type:      "bearer",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.mu.Lock()
	s.accessTokens[token.HexKey(t.Hash)] = t
	s.mu.Unlock()
	cp := *t
	return token.HexKey(raw), &cp, nil
}

func (s *Store) GetAccessToken(ctx context.Context, hash []byte) (*core.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.accessTokens[token.HexKey(hash)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) RemoveAccessToken(ctx context.Context, hash []byte) error {
	key := token.HexKey(hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accessTokens[key]; !ok {
		return core.ErrNotFound
	}
	delete(s.accessTokens, key)
	return nil
}

// ---- Refresh tokens ----

func (s *Store) GenerateRefreshToken(ctx context.Context, spec *core.RefreshTokenSpec) (string, *core.RefreshToken, error) {
	raw, err := token.Random(token.TokenLen)
	if err != nil {
		return "", nil, err
	}
	now := time.Now()
	t := &core.RefreshToken{
		Hash:       token.Hash(raw),
		ClientID:   spec.ClientID,
		UserID:     spec.UserID,
		Email:      spec.Email,
		Scope:      append([]string(nil), spec.Scope...),
		CreatedAt:  now,
		LastUsedAt: now,
	}
	s.mu.Lock()
	s.refreshTokens[token.HexKey(t.Hash)] = t
	s.mu.Unlock()
	cp := *t
	return token.HexKey(raw), &cp, nil
}

func (s *Store) GetRefreshToken(ctx context.Context, hash []byte) (*core.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.refreshTokens[token.HexKey(hash)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UsedRefreshToken(ctx context.Context, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refreshTokens[token.HexKey(hash)]
	if !ok {
		return core.ErrNotFound
	}
	t.LastUsedAt = time.Now()
	return nil
}

func (s *Store) RemoveRefreshToken(ctx context.Context, hash []byte) error {
	key := token.HexKey(hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refreshTokens[key]; !ok {
		return core.ErrNotFound
	}
	delete(s.refreshTokens, key)
	return nil
}

// ---- Per-user grant views ----

func (s *Store) GetActiveClientTokensByUID(ctx context.Context, uid []byte) ([]*core.ActiveClientTokens, error) {
	uidKey := token.HexKey(uid)
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := make(map[string]*core.ActiveClientTokens)
	for _, t := range s.accessTokens {
		if token.HexKey(t.UserID) != uidKey || !t.ExpiresAt.After(now) {
			continue
		}
		clientKey := token.HexKey(t.ClientID)
		c, ok := s.clients[clientKey]
		if !ok || c.CanGrant {
			continue
		}
		a, ok := agg[clientKey]
		if !ok {
			a = &core.ActiveClientTokens{ClientID: c.ID, ClientName: c.Name}
			agg[clientKey] = a
		}
		if t.CreatedAt.After(a.LastAccessTime) {
			a.LastAccessTime = t.CreatedAt
		}
		a.Scope = scope.New(a.Scope...).Union(scope.New(t.Scope...)).Values()
	}

	out := make([]*core.ActiveClientTokens, 0, len(agg))
	for _, a := range agg {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAccessTime.Equal(out[j].LastAccessTime) {
			return out[i].LastAccessTime.After(out[j].LastAccessTime)
		}
		return out[i].ClientName < out[j].ClientName
	})
	return out, nil
}

func (s *Store) DeleteActiveClientTokens(ctx context.Context, clientID, uid []byte) error {
	clientKey, uidKey := token.HexKey(clientID), token.HexKey(uid)
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, t := range s.accessTokens {
		if token.HexKey(t.ClientID) == clientKey && token.HexKey(t.UserID) == uidKey {
			delete(s.accessTokens, h)
		}
	}
	return nil
}

// ---- Account-event support ----

func (s *Store) RemoveUser(ctx context.Context, uid []byte) error {
	uidKey := token.HexKey(uid)
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, c := range s.codes {
		if token.HexKey(c.UserID) == uidKey {
			delete(s.codes, h)
		}
	}
	for h, t := range s.accessTokens {
		if token.HexKey(t.UserID) == uidKey {
			delete(s.accessTokens, h)
		}
	}
	for h, t := range s.refreshTokens {
		if token.HexKey(t.UserID) == uidKey {
			delete(s.refreshTokens, h)
		}
	}
	return nil
}

// RemovePublicAndCanGrantTokens revokes the credentials that could mint or
// manage further credentials for this user: everything owned by a canGrant
// client, plus anything carrying the client-management scope.
func (s *Store) RemovePublicAndCanGrantTokens(ctx context.Context, uid []byte) error {
	uidKey := token.HexKey(uid)
	s.mu.Lock()
	defer s.mu.Unlock()

	revocable := func(clientID []byte, scopes []string) bool {
		if c, ok := s.clients[token.HexKey(clientID)]; ok && c.CanGrant {
			return true
		}
		return scope.New(scopes...).Contains(scope.ClientManagement)
	}

	for h, c := range s.codes {
		if token.HexKey(c.UserID) == uidKey && revocable(c.ClientID, c.Scope) {
			delete(s.codes, h)
		}
	}
	for h, t := range s.accessTokens {
		if token.HexKey(t.UserID) == uidKey && revocable(t.ClientID, t.Scope) {
			delete(s.accessTokens, h)
		}
	}
	for h, t := range s.refreshTokens {
		if token.HexKey(t.UserID) == uidKey && revocable(t.ClientID, t.Scope) {
			delete(s.refreshTokens, h)
		}
	}
	return nil
}

// ---- Purge ----

func (s *Store) PurgeExpiredTokens(ctx context.Context, count int64, delay time.Duration, ignoreClientIDs [][]byte, batchSize int64) (int64, error) {
	if len(ignoreClientIDs) == 0 || batchSize <= 0 || count <= 0 {
		return 0, core.ErrInvalid
	}
	ignored := make(map[string]struct{}, len(ignoreClientIDs))
	for _, id := range ignoreClientIDs {
		ignored[token.HexKey(id)] = struct{}{}
	}

	var deleted int64
	for deleted < count {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		n := s.purgeBatch(ignored, min64(batchSize, count-deleted))
		deleted += n
		if n == 0 {
			break
		}
		if deleted >= count {
			break
		}
		select {
		case <-ctx.Done():
			return deleted, ctx.Err()
		case <-time.After(delay):
		}
	}
	return deleted, nil
}

func (s *Store) purgeBatch(ignored map[string]struct{}, limit int64) int64 {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, t := range s.accessTokens {
		if n >= limit {
			break
		}
		if !t.ExpiresAt.Before(now) {
			continue
		}
		if _, skip := ignored[token.HexKey(t.ClientID)]; skip {
			continue
		}
		delete(s.accessTokens, h)
		n++
	}
	return n
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// ---- Developers ----

func (s *Store) ActivateDeveloper(ctx context.Context, email string) (*core.Developer, error) {
	email = strings.ToLower(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.developers[email]; ok {
		return nil, core.ErrConflict
	}
	id, err := token.Random(token.DeveloperIDLen)
	if err != nil {
		return nil, err
	}
	d := &core.Developer{DeveloperID: id, Email: email, CreatedAt: time.Now()}
	s.developers[email] = d
	dp := *d
	return &dp, nil
}

func (s *Store) GetDeveloper(ctx context.Context, email string) (*core.Developer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.developers[strings.ToLower(email)]
	if !ok {
		return nil, core.ErrNotFound
	}
	dp := *d
	return &dp, nil
}

func (s *Store) RemoveDeveloper(ctx context.Context, email string) error {
	email = strings.ToLower(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.developers[email]
	if !ok {
		return core.ErrNotFound
	}
	delete(s.developers, email)
	delete(s.clientDevs, token.HexKey(d.DeveloperID))
	return nil
}

func (s *Store) RegisterClientDeveloper(ctx context.Context, developerID, clientID []byte) error {
	devKey, clientKey := token.HexKey(developerID), token.HexKey(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[clientKey]; !ok {
		return core.ErrNotFound
	}
	owned, ok := s.clientDevs[devKey]
	if !ok {
		owned = make(map[string]struct{})
		s.clientDevs[devKey] = owned
	}
	owned[clientKey] = struct{}{}
	return nil
}

func (s *Store) GetClientDevelopers(ctx context.Context, clientID []byte) ([]*core.Developer, error) {
	clientKey := token.HexKey(clientID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Developer
	for _, d := range s.developers {
		if _, ok := s.clientDevs[token.HexKey(d.DeveloperID)][clientKey]; ok {
			dp := *d
			out = append(out, &dp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) DeveloperOwnsClient(ctx context.Context, email string, clientID []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.developers[strings.ToLower(email)]
	if !ok {
		return false, nil
	}
	_, owns := s.clientDevs[token.HexKey(d.DeveloperID)][token.HexKey(clientID)]
	return owns, nil
}
