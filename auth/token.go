package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CreateAccessToken mints a short-lived access token from a refresh token,
// signed HS256 with that token's own jwt_key. The issuer claim carries the
// refresh token id so validation can find the right key.
func CreateAccessToken(token *RefreshToken) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    token.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(token.AccessTokenExpiration)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(token.JWTKey))
}

// ValidateAccessToken resolves an access token back to its refresh token.
// The token is first parsed unverified to read the issuer claim, which names
// the refresh token whose jwt_key verifies the signature.
func (s *Store) ValidateAccessToken(ctx context.Context, tokenString string) (*RefreshToken, error) {
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(tokenString, &jwt.RegisteredClaims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	issuer, err := unverified.Claims.GetIssuer()
	if err != nil || issuer == "" {
		return nil, ErrInvalidToken
	}

	refresh, err := s.RefreshTokenByID(ctx, issuer)
	if err != nil {
		return nil, err
	}
	if refresh == nil {
		return nil, ErrInvalidToken
	}

	verified, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(refresh.JWTKey), nil
	})
	if err != nil || !verified.Valid {
		return nil, ErrInvalidToken
	}

	if !refresh.User.IsActive {
		return nil, ErrUserInactive
	}
	return refresh, nil
}
