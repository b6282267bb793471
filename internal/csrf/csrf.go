// Package csrf issues and verifies per-action tokens bound to a user.
package csrf

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-faster/errors"
)

// ErrInvalidToken is returned for malformed, expired or mismatching tokens.
var ErrInvalidToken = errors.New("invalid csrf token")

// Manager signs tokens as HS256 JWTs carrying the subject and topic.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager creates a Manager. Tokens expire after ttl.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue returns a token valid for subject performing the action named by topic.
func (m *Manager) Issue(subject, topic string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"topic": topic,
		"iat":   now.Unix(),
		"exp":   now.Add(m.ttl).Unix(),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign csrf token")
	}
	return signed, nil
}

// Validate checks the token signature, expiry, subject and topic.
func (m *Manager) Validate(tokenString, subject, topic string) error {
	if tokenString == "" {
		return errors.Wrap(ErrInvalidToken, "empty token")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return errors.Wrap(ErrInvalidToken, err.Error())
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrInvalidToken
	}
	if sub, _ := claims["sub"].(string); sub != subject {
		return errors.Wrap(ErrInvalidToken, "subject mismatch")
	}
	if t, _ := claims["topic"].(string); t != topic {
		return errors.Wrap(ErrInvalidToken, "topic mismatch")
	}
	return nil
}
