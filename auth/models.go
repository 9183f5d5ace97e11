package auth

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"findler.com/hubauth/permissions"
)

// TokenType distinguishes client-issued refresh tokens from hub-internal ones.
type TokenType string

const (
	// TokenTypeNormal is a refresh token issued to an external client.
	TokenTypeNormal TokenType = "normal"
	// TokenTypeSystem is a refresh token for hub-internal service access,
	// with no associated client.
	TokenTypeSystem TokenType = "system"
)

// Reserved group ids. These exact strings are an interop contract with any
// tooling that reads the persisted identity document.
const (
	GroupIDAdmin    = "system-admin"
	GroupIDUser     = "system-users"
	GroupIDReadOnly = "system-read-only"
)

// Display names for the reserved groups. The persisted name is never trusted
// for system groups.
const (
	groupNameAdmin    = "Administrators"
	groupNameUser     = "Users"
	groupNameReadOnly = "Read Only"
)

// AccessTokenExpiration is the default lifetime of access tokens minted from
// a refresh token.
const AccessTokenExpiration = 30 * time.Minute

// Group is a named permission bundle.
type Group struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Policy          permissions.Policy `json:"policy"`
	SystemGenerated bool               `json:"system_generated"`
}

// User is an authenticated principal. Credentials and refresh tokens are
// exclusively owned by their user and disappear with it; group membership is
// by reference and does not affect group lifetime.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	IsOwner         bool   `json:"is_owner"`
	IsActive        bool   `json:"is_active"`
	SystemGenerated bool   `json:"system_generated"`

	Groups        []*Group                 `json:"-"`
	Credentials   []*Credentials           `json:"-"`
	RefreshTokens map[string]*RefreshToken `json:"-"`
}

// Credentials links a user to one identity at an auth provider: one
// username/password registration, one OAuth subject, and so on. Data is the
// provider's opaque payload.
type Credentials struct {
	ID               string          `json:"id"`
	AuthProviderType string          `json:"auth_provider_type"`
	AuthProviderID   *string         `json:"auth_provider_id"`
	Data             json.RawMessage `json:"data"`

	// IsNew stays true until the credentials have been linked to a user,
	// so callers can run first-time setup for the identity.
	IsNew bool `json:"-"`
}

// RefreshToken is a long-lived session grant that mints short-lived access
// tokens. Token is the opaque secret the client presents; JWTKey signs the
// access tokens derived from this grant.
type RefreshToken struct {
	ID                    string        `json:"id"`
	User                  *User         `json:"-"`
	ClientID              *string       `json:"client_id"`
	ClientName            string        `json:"client_name,omitempty"`
	ClientIcon            string        `json:"client_icon,omitempty"`
	TokenType             TokenType     `json:"token_type"`
	Token                 string        `json:"-"`
	JWTKey                string        `json:"-"`
	CreatedAt             time.Time     `json:"created_at"`
	AccessTokenExpiration time.Duration `json:"-"`
	LastUsedAt            *time.Time    `json:"last_used_at"`
	LastUsedIP            string        `json:"last_used_ip,omitempty"`
}

// NewUser carries the parameters for Store.CreateUser.
type NewUser struct {
	Name    string
	IsOwner bool
	// Active defaults to true when nil.
	Active          *bool
	SystemGenerated bool
	GroupIDs        []string
	// Credentials, when set, are linked to the user as part of creation.
	Credentials *Credentials
}

// UserUpdate is a sparse update for Store.UpdateUser; nil fields are left
// untouched.
type UserUpdate struct {
	Name     *string
	Active   *bool
	GroupIDs []string
}

// RefreshTokenRequest carries the parameters for Store.CreateRefreshToken.
type RefreshTokenRequest struct {
	ClientID   *string
	ClientName string
	ClientIcon string
	TokenType  TokenType
	// AccessTokenExpiration defaults to the package default when zero.
	AccessTokenExpiration time.Duration
}

// NewCredentials constructs unlinked credentials for a provider.
func NewCredentials(providerType string, providerID *string, data json.RawMessage) *Credentials {
	return &Credentials{
		ID:               uuid.NewString(),
		AuthProviderType: providerType,
		AuthProviderID:   providerID,
		Data:             data,
		IsNew:            true,
	}
}

// systemGroup synthesizes one of the reserved groups.
func systemGroup(id string) *Group {
	g := &Group{ID: id, SystemGenerated: true}
	applySystemGroup(g)
	return g
}

// applySystemGroup forces the hardcoded name and policy onto a reserved
// group, regardless of what was persisted. Returns false for non-reserved ids.
func applySystemGroup(g *Group) bool {
	switch g.ID {
	case GroupIDAdmin:
		g.Name = groupNameAdmin
		g.Policy = permissions.SystemAdminPolicy()
	case GroupIDUser:
		g.Name = groupNameUser
		g.Policy = permissions.SystemUserPolicy()
	case GroupIDReadOnly:
		g.Name = groupNameReadOnly
		g.Policy = permissions.SystemReadOnlyPolicy()
	default:
		return false
	}
	g.SystemGenerated = true
	return true
}
