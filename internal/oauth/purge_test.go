package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

func TestPurgeProtectsIgnoredClient(t *testing.T) {
	f := newFixture(t)

	protectedID, err := token.Random(token.ClientIDLen)
	require.NoError(t, err)
	secret, err := token.Random(token.ClientSecretLen)
	require.NoError(t, err)
	require.NoError(t, f.store.RegisterClient(context.Background(), &core.Client{
		ID:           protectedID,
		Name:         "partner",
		HashedSecret: token.Hash(secret),
		RedirectURI:  "https://partner.example.com/cb",
	}))

	mintExpired := func(clientID []byte, n int) {
		for i := 0; i < n; i++ {
			_, _, err := f.store.GenerateAccessToken(context.Background(), &core.AccessTokenSpec{
				ClientID: clientID, UserID: f.uid, Scope: []string{"profile"},
				TTL: time.Millisecond,
			})
			require.NoError(t, err)
		}
	}
	mintExpired(f.client.ID, 150)
	mintExpired(protectedID, 100)
	time.Sleep(5 * time.Millisecond)

	deleted, err := f.svc.Purge(context.Background(), PurgeParams{
		Count:           10000,
		Delay:           0,
		BatchSize:       200,
		IgnoreClientIDs: []string{token.HexKey(protectedID)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), deleted,
		"deletes exactly the expired tokens outside the ignore list, then terminates")
}

func TestPurgeFailsFastOnUnknownIgnoredClient(t *testing.T) {
	f := newFixture(t)

	unknown, err := token.RandomHex(token.ClientIDLen)
	require.NoError(t, err)
	_, err = f.svc.Purge(context.Background(), PurgeParams{
		Count: 100, BatchSize: 10,
		IgnoreClientIDs: []string{unknown},
	})
	require.Error(t, err)

	_, err = f.svc.Purge(context.Background(), PurgeParams{
		Count: 100, BatchSize: 10,
		IgnoreClientIDs: []string{"nothex"},
	})
	require.Error(t, err)

	_, err = f.svc.Purge(context.Background(), PurgeParams{Count: 100, BatchSize: 10})
	require.Error(t, err, "ignore list must be non-empty")
}

func TestPurgeHonorsCount(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 30; i++ {
		_, _, err := f.store.GenerateAccessToken(context.Background(), &core.AccessTokenSpec{
			ClientID: f.client.ID, UserID: f.uid, Scope: []string{"profile"},
			TTL: time.Millisecond,
		})
		require.NoError(t, err)
	}
	time.Sleep(5 * time.Millisecond)

	protectedID, err := token.Random(token.ClientIDLen)
	require.NoError(t, err)
	secret, err := token.Random(token.ClientSecretLen)
	require.NoError(t, err)
	require.NoError(t, f.store.RegisterClient(context.Background(), &core.Client{
		ID: protectedID, Name: "partner", HashedSecret: token.Hash(secret),
	}))

	deleted, err := f.svc.Purge(context.Background(), PurgeParams{
		Count: 10, BatchSize: 4,
		IgnoreClientIDs: []string{token.HexKey(protectedID)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), deleted, "stops at the run's upper bound")
}
