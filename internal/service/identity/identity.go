package identity

import (
	"chat_relay/internal/model"
	"chat_relay/internal/utils/log"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrNoToken         = errors.New("no credential token in handshake")
	ErrTokenInvalid    = errors.New("credential token invalid")
	ErrIdentityUnknown = errors.New("token subject is not a known user")
)

type (
	// Claims is the payload the credential issuer signs into each token.
	Claims struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
		jwt.RegisteredClaims
	}

	// UserLookup resolves a user id to its stored user, nil when unknown.
	UserLookup interface {
		GetByID(ctx context.Context, id string) (*model.User, error)
	}

	// ClaimsCache is the optional redis front for the user lookup.
	ClaimsCache interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key string, value any, ttl time.Duration) error
	}

	// Binder turns a raw handshake Cookie header into a bound Identity.
	Binder struct {
		secret   []byte
		users    UserLookup
		cache    ClaimsCache
		cacheTTL time.Duration
	}
)

func NewBinder(secret []byte, users UserLookup, cache ClaimsCache, cacheTTL time.Duration) *Binder {
	return &Binder{
		secret:   secret,
		users:    users,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Bind extracts the token cookie, verifies its signature and expiry, and
// confirms the subject still exists. Any failure leaves the connection
// unbound; there is no retry.
func (b *Binder) Bind(ctx context.Context, cookieHeader string) (model.Identity, error) {
	token := tokenFromCookies(cookieHeader)
	if token == "" {
		return model.Identity{}, ErrNoToken
	}

	claims, err := b.verify(token)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	name, err := b.displayName(ctx, claims.UserID)
	if err != nil {
		return model.Identity{}, err
	}

	return model.Identity{
		ID:          claims.UserID,
		DisplayName: name,
	}, nil
}

func (b *Binder) verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// displayName resolves the user's display name, going to the cache first.
// Cache failures only cost the round trip to mongo.
func (b *Binder) displayName(ctx context.Context, userID string) (string, error) {
	key := "identity:" + userID

	if b.cache != nil {
		if name, err := b.cache.Get(ctx, key); err == nil && name != "" {
			return name, nil
		}
	}

	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("identity lookup: %w", err)
	}
	if user == nil {
		return "", ErrIdentityUnknown
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, user.Username, b.cacheTTL); err != nil {
			log.Debug("identity cache set failed", zap.Error(err))
		}
	}
	return user.Username, nil
}

// tokenFromCookies digs the token value out of a raw Cookie header.
func tokenFromCookies(cookieHeader string) string {
	for _, part := range strings.Split(cookieHeader, ";") {
		if value, ok := strings.CutPrefix(strings.TrimSpace(part), "token="); ok {
			return value
		}
	}
	return ""
}
