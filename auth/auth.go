package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenService mints and verifies the short-lived tokens clients present on
// every request. Verification uses the shared HMAC secret by default; when a
// JWKS URL is configured, externally issued asymmetric tokens are accepted
// too.
type TokenService struct {
	secret []byte
	jwks   keyfunc.Keyfunc
}

// NewTokenService creates a token service. jwksURL may be empty, in which
// case only HMAC tokens are accepted.
func NewTokenService(secret, jwksURL string) (*TokenService, error) {
	svc := &TokenService{secret: []byte(secret)}
	if jwksURL != "" {
		jwks, err := keyfunc.NewDefault([]string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("loading JWKS from %s: %w", jwksURL, err)
		}
		svc.jwks = jwks
	}
	return svc, nil
}

// Mint issues an HS256 token identifying userID, valid for 24 hours.
func (s *TokenService) Mint(userID int64) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString(s.secret)
}

// Verify parses tokenString and returns the user id from its subject claim.
func (s *TokenService) Verify(tokenString string) (int64, error) {
	claims, err := s.parseHMAC(tokenString)
	if err != nil && s.jwks != nil {
		claims, err = s.parseJWKS(tokenString)
	}
	if err != nil {
		return 0, err
	}
	return userIDFromClaims(claims)
}

func (s *TokenService) parseHMAC(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	return mapClaims(token)
}

func (s *TokenService) parseJWKS(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, s.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256", "EdDSA"}))
	if err != nil {
		return nil, err
	}
	return mapClaims(token)
}

func mapClaims(token *jwt.Token) (jwt.MapClaims, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// userIDFromClaims reads the numeric user id from "sub" (or legacy "id").
func userIDFromClaims(claims jwt.MapClaims) (int64, error) {
	for _, key := range []string{"sub", "id"} {
		switch v := claims[key].(type) {
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				return id, nil
			}
		case float64:
			return int64(v), nil
		}
	}
	return 0, fmt.Errorf("token carries no usable subject")
}
