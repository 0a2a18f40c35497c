package core

import (
	"context"
	"time"
)

// Store is the single persistence contract every other component consumes.
// Two implementations satisfy it with identical semantics: an in-process
// map-based store and a pgx-backed relational store. Generate* operations
// mint the plaintext artifact and persist only its hash; Get*/Remove* on
// codes and tokens take the already-computed hash.
type Store interface {
	Ping(ctx context.Context) error

	// Clients
	RegisterClient(ctx context.Context, c *Client) error
	UpdateClient(ctx context.Context, id []byte, u *ClientUpdate) error
	GetClient(ctx context.Context, id []byte) (*Client, error)
	GetClients(ctx context.Context, ownerEmail string) ([]*Client, error)
	RemoveClient(ctx context.Context, id []byte) error

	// Codes. RemoveCode reports ErrNotFound when nothing was deleted;
	// that is the at-most-once redemption arbitration point.
	GenerateCode(ctx context.Context, spec *CodeSpec) (plaintext string, err error)
	GetCode(ctx context.Context, hash []byte) (*Code, error)
	RemoveCode(ctx context.Context, hash []byte) error

	// Access tokens
	GenerateAccessToken(ctx context.Context, spec *AccessTokenSpec) (plaintext string, t *AccessToken, err error)
	GetAccessToken(ctx context.Context, hash []byte) (*AccessToken, error)
	RemoveAccessToken(ctx context.Context, hash []byte) error

	// Refresh tokens
	GenerateRefreshToken(ctx context.Context, spec *RefreshTokenSpec) (plaintext string, t *RefreshToken, err error)
	GetRefreshToken(ctx context.Context, hash []byte) (*RefreshToken, error)
	UsedRefreshToken(ctx context.Context, hash []byte) error
	RemoveRefreshToken(ctx context.Context, hash []byte) error

	// Per-user grant views
	GetActiveClientTokensByUID(ctx context.Context, uid []byte) ([]*ActiveClientTokens, error)
	DeleteActiveClientTokens(ctx context.Context, clientID, uid []byte) error

	// Account-event support
	RemoveUser(ctx context.Context, uid []byte) error
	RemovePublicAndCanGrantTokens(ctx context.Context, uid []byte) error

	// PurgeExpiredTokens deletes up to count expired access tokens not
	// owned by the ignored clients, batchSize rows at a time, sleeping
	// delay between batches. Returns the number of rows deleted.
	PurgeExpiredTokens(ctx context.Context, count int64, delay time.Duration, ignoreClientIDs [][]byte, batchSize int64) (int64, error)

	// Developers
	ActivateDeveloper(ctx context.Context, email string) (*Developer, error)
	GetDeveloper(ctx context.Context, email string) (*Developer, error)
	RemoveDeveloper(ctx context.Context, email string) error
	RegisterClientDeveloper(ctx context.Context, developerID, clientID []byte) error
	GetClientDevelopers(ctx context.Context, clientID []byte) ([]*Developer, error)
	DeveloperOwnsClient(ctx context.Context, email string, clientID []byte) (bool, error)

	Close()
}
