package core

import "time"

// Client is a registered relying application. ID and secret hashes are
// fixed-width binary; they cross JSON boundaries as lowercase hex.
type Client struct {
	ID                   []byte
	Name                 string
	HashedSecret         []byte
	HashedSecretPrevious []byte
	RedirectURI          string
	ImageURI             string
	Trusted              bool
	CanGrant             bool
	CreatedAt            time.Time
}

type Developer struct {
	DeveloperID []byte
	Email       string
	CreatedAt   time.Time
}

// ClientDeveloper joins developers to the clients they may manage.
type ClientDeveloper struct {
	DeveloperID []byte
	ClientID    []byte
	CreatedAt   time.Time
}

// Code is a single-use authorization artifact. Only the sha256 of the
// plaintext is ever stored; redemption deletes the row.
type Code struct {
	Hash      []byte
	ClientID  []byte
	UserID    []byte
	Email     string
	Scope     []string
	AuthAt    int64
	Offline   bool
	Challenge string // PKCE S256 code_challenge, empty for classic codes
	CreatedAt time.Time
}

type AccessToken struct {
	Hash      []byte
	ClientID  []byte
	UserID    []byte
	Email     string
	Scope     []string
	Type      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// RefreshToken never expires by time; LastUsedAt is touched on every
// redemption. Scope is fixed at issuance.
type RefreshToken struct {
	Hash       []byte
	ClientID   []byte
	UserID     []byte
	Email      string
	Scope      []string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// ActiveClientTokens is the per-client aggregate returned by
// GetActiveClientTokensByUID: the most recent grant time plus the union
// of every scope ever granted to this user for this client.
type ActiveClientTokens struct {
	ClientID       []byte
	ClientName     string
	LastAccessTime time.Time
	Scope          []string
}

// CodeSpec carries the attributes of a code to be minted. The store
// generates the plaintext and returns it exactly once.
type CodeSpec struct {
	ClientID  []byte
	UserID    []byte
	Email     string
	Scope     []string
	AuthAt    int64
	Offline   bool
	Challenge string
}

type AccessTokenSpec struct {
	ClientID []byte
	UserID   []byte
	Email    string
	Scope    []string
	TTL      time.Duration // zero or above the cap means use the cap
}

type RefreshTokenSpec struct {
	ClientID []byte
	UserID   []byte
	Email    string
	Scope    []string
}

// ClientUpdate is a partial update: nil fields are left untouched.
type ClientUpdate struct {
	Name                 *string
	HashedSecret         []byte
	HashedSecretPrevious []byte
	RedirectURI          *string
	ImageURI             *string
	Trusted              *bool
	CanGrant             *bool
}
