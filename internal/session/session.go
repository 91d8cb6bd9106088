// Package session carries the authenticated caller explicitly through every
// core operation and adapts the external identity provider's tokens into it.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oggyb/matchmaker/internal/clock"
)

var (
	ErrNoSession    = errors.New("session: no authenticated user")
	ErrInvalidToken = errors.New("session: invalid token")
)

// Session identifies the caller. Core services never look up the current user
// any other way.
type Session struct {
	UserID uint64
}

func New(userID uint64) Session { return Session{UserID: userID} }

func (s Session) Valid() bool { return s.UserID != 0 }

type ctxKey struct{}

func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	if !ok || !s.Valid() {
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Identity verifies HS256 tokens issued by the identity provider. The subject
// claim is the opaque user id.
type Identity struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

func NewIdentity(secret, issuer string, ttl time.Duration, clk clock.Clock) *Identity {
	if clk == nil {
		clk = clock.Real()
	}
	return &Identity{secret: []byte(secret), issuer: issuer, ttl: ttl, clock: clk}
}

// Issue mints a token for userID. Production tokens come from the identity
// provider; this exists for the seed tool and tests.
func (i *Identity) Issue(userID uint64) (string, error) {
	now := i.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(userID, 10),
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Identity) Verify(token string) (Session, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return Session{}, fmt.Errorf("%w: subject %q is not a user id", ErrInvalidToken, sub)
	}
	return New(id), nil
}
