package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer identifies the service that issues intake session tokens.
const TokenIssuer = "2nd-opinion-intake"

// SessionTokens issues and checks HS256 tokens that name one intake
// session and the client IP it was opened from.
type SessionTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSessionTokens(key []byte, ttl time.Duration) *SessionTokens {
	return &SessionTokens{key: key, ttl: ttl, now: time.Now}
}

func (t *SessionTokens) TTL() time.Duration { return t.ttl }

func (t *SessionTokens) Issue(sessionID uuid.UUID, clientIP string) (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"sub": sessionID.String(),
		"iss": TokenIssuer,
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
		"ip":  clientIP,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate returns the session id of a well-formed, unexpired token issued
// to clientIP. An expired token yields an error wrapping jwt.ErrTokenExpired.
func (t *SessionTokens) Validate(tokenString, clientIP string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.key, nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, errors.New("invalid token claims")
	}

	ipClaim, _ := claims["ip"].(string)
	if ipClaim != clientIP {
		return uuid.Nil, errors.New("IP address mismatch")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject: %w", err)
	}
	return id, nil
}
