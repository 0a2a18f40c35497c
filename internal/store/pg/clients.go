package pg

import (
	"context"
	"strings"

	"github.com/dropDatabas3/grantd/internal/store/core"
)

const clientCols = `id, name, hashed_secret, hashed_secret_previous,
	redirect_uri, image_uri, trusted, can_grant, created_at`

func (s *Store) RegisterClient(ctx context.Context, c *core.Client) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clients (id, name, hashed_secret, hashed_secret_previous,
			redirect_uri, image_uri, trusted, can_grant)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.HashedSecret, c.HashedSecretPrevious,
		c.RedirectURI, c.ImageURI, c.Trusted, c.CanGrant)
	return wrapErr(err)
}

// UpdateClient leaves out any field the caller did not supply; COALESCE
// keeps the resident value for nil arguments.
func (s *Store) UpdateClient(ctx context.Context, id []byte, u *core.ClientUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE clients SET
			name                   = COALESCE($2, name),
			hashed_secret          = COALESCE($3, hashed_secret),
			hashed_secret_previous = COALESCE($4, hashed_secret_previous),
			redirect_uri           = COALESCE($5, redirect_uri),
			image_uri              = COALESCE($6, image_uri),
			trusted                = COALESCE($7, trusted),
			can_grant              = COALESCE($8, can_grant)
		WHERE id = $1`,
		id, u.Name, u.HashedSecret, u.HashedSecretPrevious,
		u.RedirectURI, u.ImageURI, u.Trusted, u.CanGrant)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id []byte) (*core.Client, error) {
	var c core.Client
	err := s.pool.QueryRow(ctx,
		`SELECT `+clientCols+` FROM clients WHERE id = $1`, id).Scan(
		&c.ID, &c.Name, &c.HashedSecret, &c.HashedSecretPrevious,
		&c.RedirectURI, &c.ImageURI, &c.Trusted, &c.CanGrant, &c.CreatedAt)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &c, nil
}

func (s *Store) GetClients(ctx context.Context, ownerEmail string) ([]*core.Client, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.hashed_secret, c.hashed_secret_previous,
			c.redirect_uri, c.image_uri, c.trusted, c.can_grant, c.created_at
		FROM clients c
		JOIN client_developers cd ON cd.client_id = c.id
		JOIN developers d ON d.developer_id = cd.developer_id
		WHERE d.email = $1
		ORDER BY c.name ASC`, strings.ToLower(ownerEmail))
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []*core.Client
	for rows.Next() {
		var c core.Client
		if err := rows.Scan(
			&c.ID, &c.Name, &c.HashedSecret, &c.HashedSecretPrevious,
			&c.RedirectURI, &c.ImageURI, &c.Trusted, &c.CanGrant, &c.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, &c)
	}
	return out, wrapErr(rows.Err())
}

// RemoveClient deletes the client and every credential it issued, in one
// transaction. There is no FK cascade; deletions are explicit.
func (s *Store) RemoveClient(ctx context.Context, id []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, q := range []string{
		`DELETE FROM client_developers WHERE client_id = $1`,
		`DELETE FROM codes WHERE client_id = $1`,
		`DELETE FROM tokens WHERE client_id = $1`,
		`DELETE FROM refresh_tokens WHERE client_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return wrapErr(err)
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return wrapErr(tx.Commit(ctx))
}
