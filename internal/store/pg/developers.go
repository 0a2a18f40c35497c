package pg

import (
	"context"
	"strings"

	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

func (s *Store) ActivateDeveloper(ctx context.Context, email string) (*core.Developer, error) {
	id, err := token.Random(token.DeveloperIDLen)
	if err != nil {
		return nil, err
	}
	d := &core.Developer{DeveloperID: id, Email: strings.ToLower(email)}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO developers (developer_id, email)
		VALUES ($1, $2)
		RETURNING created_at`, d.DeveloperID, d.Email).Scan(&d.CreatedAt)
	if err != nil {
		return nil, wrapErr(err)
	}
	return d, nil
}

func (s *Store) GetDeveloper(ctx context.Context, email string) (*core.Developer, error) {
	var d core.Developer
	err := s.pool.QueryRow(ctx, `
		SELECT developer_id, email, created_at
		FROM developers WHERE email = $1`, strings.ToLower(email)).Scan(
		&d.DeveloperID, &d.Email, &d.CreatedAt)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &d, nil
}

func (s *Store) RemoveDeveloper(ctx context.Context, email string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	email = strings.ToLower(email)
	if _, err := tx.Exec(ctx, `
		DELETE FROM client_developers cd
		USING developers d
		WHERE cd.developer_id = d.developer_id AND d.email = $1`, email); err != nil {
		return wrapErr(err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM developers WHERE email = $1`, email)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return wrapErr(tx.Commit(ctx))
}

func (s *Store) RegisterClientDeveloper(ctx context.Context, developerID, clientID []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO client_developers (developer_id, client_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, developerID, clientID)
	return wrapErr(err)
}

func (s *Store) GetClientDevelopers(ctx context.Context, clientID []byte) ([]*core.Developer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.developer_id, d.email, d.created_at
		FROM developers d
		JOIN client_developers cd ON cd.developer_id = d.developer_id
		WHERE cd.client_id = $1
		ORDER BY d.email ASC`, clientID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []*core.Developer
	for rows.Next() {
		var d core.Developer
		if err := rows.Scan(&d.DeveloperID, &d.Email, &d.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, &d)
	}
	return out, wrapErr(rows.Err())
}

func (s *Store) DeveloperOwnsClient(ctx context.Context, email string, clientID []byte) (bool, error) {
	var owns bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM client_developers cd
			JOIN developers d ON d.developer_id = cd.developer_id
			WHERE d.email = $1 AND cd.client_id = $2
		)`, strings.ToLower(email), clientID).Scan(&owns)
	if err != nil {
		return false, wrapErr(err)
	}
	return owns, nil
}
