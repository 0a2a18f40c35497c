package pg

import (
	"context"

	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

func (s *Store) GenerateCode(ctx context.Context, spec *core.CodeSpec) (string, error) {
	raw, err := token.Random(token.CodeLen)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO codes (hash, client_id, user_id, email, scope, auth_at, offline, challenge)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		token.Hash(raw), spec.ClientID, spec.UserID, spec.Email,
		joinScope(spec.Scope), spec.AuthAt, spec.Offline, spec.Challenge)
	if err != nil {
		return "", wrapErr(err)
	}
	return token.HexKey(raw), nil
}

func (s *Store) GetCode(ctx context.Context, hash []byte) (*core.Code, error) {
	var (
		c     core.Code
		scope string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT hash, client_id, user_id, email, scope, auth_at, offline, challenge, created_at
		FROM codes WHERE hash = $1`, hash).Scan(
		&c.Hash, &c.ClientID, &c.UserID, &c.Email, &scope,
		&c.AuthAt, &c.Offline, &c.Challenge, &c.CreatedAt)
	if err != nil {
		return nil, wrapErr(err)
	}
	c.Scope = splitScope(scope)
	return &c, nil
}

// RemoveCode is the at-most-once arbitration point: the delete's affected
// row count decides the winner of concurrent redemptions.
func (s *Store) RemoveCode(ctx context.Context, hash []byte) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM codes WHERE hash = $1`, hash)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
