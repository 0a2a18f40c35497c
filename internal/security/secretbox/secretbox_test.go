package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	k := make([]byte, KeyLen)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(k)
}

func TestSealOpenRoundTrip(t *testing.T) {
	b, err := New(testKey(t))
	require.NoError(t, err)

	sealed, err := b.Seal([]byte("ed25519 private key material"))
	require.NoError(t, err)
	assert.Contains(t, sealed, sep)

	pt, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("ed25519 private key material"), pt)
}

func TestOpenRejectsTamper(t *testing.T) {
	b, err := New(testKey(t))
	require.NoError(t, err)

	sealed, err := b.Seal([]byte("secret"))
	require.NoError(t, err)

	other, err := New(testKey(t))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = b.Open("not-a-box")
	require.Error(t, err)
}

func TestNewRejectsBadKey(t *testing.T) {
	_, err := New("short")
	require.Error(t, err)
	_, err = New(base64.StdEncoding.EncodeToString([]byte("only16byteslong!")))
	require.Error(t, err)
}
