package pg

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

func (s *Store) GenerateAccessToken(ctx context.Context, spec *core.AccessTokenSpec) (string, *core.AccessToken, error) {
	raw, err := token.Random(token.TokenLen)
	if err != nil {
		return "", nil, err
	}
	ttl := spec.TTL
	if ttl <= 0 || ttl > s.maxAccessTTL {
		ttl = s.maxAccessTTL
	}
	t := &core.AccessToken{
		Hash:     token.Hash(raw),
		ClientID: spec.ClientID,
		UserID:   spec.UserID,
		Email:    spec.Email,
		Scope:    append([]string(nil), spec.Scope...),
		Type:     "bearer",
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO tokens (hash, client_id, user_id, email, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, NOW() + $6)
		RETURNING created_at, expires_at`,
		t.Hash, t.ClientID, t.UserID, t.Email, joinScope(t.Scope), ttl).
		Scan(&t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		return "", nil, wrapErr(err)
	}
	return token.HexKey(raw), t, nil
}

func (s *Store) GetAccessToken(ctx context.Context, hash []byte) (*core.AccessToken, error) {
	var (
		t     core.AccessToken
		scope string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT hash, client_id, user_id, email, scope, type, created_at, expires_at
		FROM tokens WHERE hash = $1`, hash).Scan(
		&t.Hash, &t.ClientID, &t.UserID, &t.Email, &scope,
		&t.Type, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		return nil, wrapErr(err)
	}
	t.Scope = splitScope(scope)
	return &t, nil
}

func (s *Store) RemoveAccessToken(ctx context.Context, hash []byte) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tokens WHERE hash = $1`, hash)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) GenerateRefreshToken(ctx context.Context, spec *core.RefreshTokenSpec) (string, *core.RefreshToken, error) {
	raw, err := token.Random(token.TokenLen)
	if err != nil {
		return "", nil, err
	}
	t := &core.RefreshToken{
		Hash:     token.Hash(raw),
		ClientID: spec.ClientID,
		UserID:   spec.UserID,
		Email:    spec.Email,
		Scope:    append([]string(nil), spec.Scope...),
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO refresh_tokens (hash, client_id, user_id, email, scope)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, last_used_at`,
		t.Hash, t.ClientID, t.UserID, t.Email, joinScope(t.Scope)).
		Scan(&t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		return "", nil, wrapErr(err)
	}
	return token.HexKey(raw), t, nil
}

func (s *Store) GetRefreshToken(ctx context.Context, hash []byte) (*core.RefreshToken, error) {
	var (
		t     core.RefreshToken
		scope string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT hash, client_id, user_id, email, scope, created_at, last_used_at
		FROM refresh_tokens WHERE hash = $1`, hash).Scan(
		&t.Hash, &t.ClientID, &t.UserID, &t.Email, &scope,
		&t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		return nil, wrapErr(err)
	}
	t.Scope = splitScope(scope)
	return &t, nil
}

func (s *Store) UsedRefreshToken(ctx context.Context, hash []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET last_used_at = NOW() WHERE hash = $1`, hash)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) RemoveRefreshToken(ctx context.Context, hash []byte) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE hash = $1`, hash)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) GetActiveClientTokensByUID(ctx context.Context, uid []byte) ([]*core.ActiveClientTokens, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, MAX(t.created_at) AS last_access,
			STRING_AGG(t.scope, ' ') AS scopes
		FROM tokens t
		JOIN clients c ON c.id = t.client_id
		WHERE t.user_id = $1 AND t.expires_at > NOW() AND c.can_grant = FALSE
		GROUP BY c.id, c.name
		ORDER BY last_access DESC, c.name ASC`, uid)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []*core.ActiveClientTokens
	for rows.Next() {
		var (
			a      core.ActiveClientTokens
			scopes string
		)
		if err := rows.Scan(&a.ClientID, &a.ClientName, &a.LastAccessTime, &scopes); err != nil {
			return nil, wrapErr(err)
		}
		a.Scope = dedupeScope(scopes)
		out = append(out, &a)
	}
	return out, wrapErr(rows.Err())
}

func (s *Store) DeleteActiveClientTokens(ctx context.Context, clientID, uid []byte) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM tokens WHERE client_id = $1 AND user_id = $2`, clientID, uid)
	return wrapErr(err)
}

func (s *Store) RemoveUser(ctx context.Context, uid []byte) error {
	// Three independent deletes, each safe to retry; account deletion does
	// not need to be atomic across them.
	for _, q := range []string{
		`DELETE FROM codes WHERE user_id = $1`,
		`DELETE FROM tokens WHERE user_id = $1`,
		`DELETE FROM refresh_tokens WHERE user_id = $1`,
	} {
		if _, err := s.pool.Exec(ctx, q, uid); err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

func (s *Store) RemovePublicAndCanGrantTokens(ctx context.Context, uid []byte) error {
	for _, table := range []string{"codes", "tokens", "refresh_tokens"} {
		_, err := s.pool.Exec(ctx, `
			DELETE FROM `+table+` t
			USING clients c
			WHERE t.client_id = c.id AND t.user_id = $1
			AND (c.can_grant OR 'oauth' = ANY(STRING_TO_ARRAY(t.scope, ' ')))`, uid)
		if err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

func (s *Store) PurgeExpiredTokens(ctx context.Context, count int64, delay time.Duration, ignoreClientIDs [][]byte, batchSize int64) (int64, error) {
	if len(ignoreClientIDs) == 0 || batchSize <= 0 || count <= 0 {
		return 0, core.ErrInvalid
	}

	var deleted int64
	for deleted < count {
		limit := batchSize
		if remaining := count - deleted; remaining < limit {
			limit = remaining
		}
		// Postgres DELETE has no LIMIT; bound the batch via a subselect.
		// Each statement borrows and releases its own connection, so no
		// connection is held across the sleep below.
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM tokens WHERE hash IN (
				SELECT hash FROM tokens
				WHERE expires_at < NOW() AND client_id <> ALL($1::bytea[])
				LIMIT $2
			)`, ignoreClientIDs, limit)
		if err != nil {
			return deleted, wrapErr(err)
		}
		n := tag.RowsAffected()
		deleted += n
		if n == 0 || deleted >= count {
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

// dedupeScope splits an aggregated scope string and drops repeats while
// keeping the result sorted.
func dedupeScope(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range splitScope(s) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}
