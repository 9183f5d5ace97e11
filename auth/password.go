package auth

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// PasswordProviderType identifies credentials created by the built-in
// username/password provider.
const PasswordProviderType = "local_password"

// bcryptCost for password hashing.
const bcryptCost = 12

// dummyHash is compared against when a username is unknown, so lookup misses
// cost the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcryptCost)

type passwordInput struct {
	Username string `validate:"required,min=1,max=255"`
	Password string `validate:"required,min=8,max=255"`
}

// passwordData is the opaque credential payload for this provider.
type passwordData struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// PasswordProvider is the hub's built-in login provider. It stores a bcrypt
// hash inside the credential payload and resolves logins against the store.
type PasswordProvider struct {
	store    *Store
	validate *validator.Validate
}

// NewPasswordProvider creates a password provider over the identity store.
func NewPasswordProvider(store *Store) *PasswordProvider {
	return &PasswordProvider{
		store:    store,
		validate: validator.New(),
	}
}

// CreateCredentials builds unlinked credentials for a new username/password
// registration. The caller links them to a user via LinkUser or CreateUser.
func (p *PasswordProvider) CreateCredentials(username, password string) (*Credentials, error) {
	if err := p.validate.Struct(passwordInput{Username: username, Password: password}); err != nil {
		return nil, NewError("INVALID_INPUT", err.Error(), 400)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(passwordData{
		Username:     strings.ToLower(username),
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}
	return NewCredentials(PasswordProviderType, nil, data), nil
}

// Verify resolves a login attempt to the matching credentials. Unknown
// usernames, wrong passwords, and inactive users are indistinguishable to the
// caller except for the inactive case, which is reported explicitly.
func (p *PasswordProvider) Verify(ctx context.Context, username, password string) (*Credentials, error) {
	users, err := p.store.Users(ctx)
	if err != nil {
		return nil, err
	}
	username = strings.ToLower(username)

	for _, user := range users {
		for _, cred := range user.Credentials {
			if cred.AuthProviderType != PasswordProviderType {
				continue
			}
			var data passwordData
			if err := json.Unmarshal(cred.Data, &data); err != nil {
				continue
			}
			if data.Username != username {
				continue
			}
			if !user.IsActive {
				return nil, ErrUserInactive
			}
			if bcrypt.CompareHashAndPassword([]byte(data.PasswordHash), []byte(password)) != nil {
				return nil, ErrInvalidCredentials
			}
			return cred, nil
		}
	}

	// Unknown username still costs one hash comparison, so response time
	// does not reveal which usernames exist.
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return nil, ErrInvalidCredentials
}
