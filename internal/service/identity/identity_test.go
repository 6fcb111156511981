package identity_test

import (
	"chat_relay/internal/model"
	"chat_relay/internal/service/identity"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testSecret = []byte("test-secret")

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	lookups int
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.byID[id], nil
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.(string)
	return nil
}

func signToken(t *testing.T, secret []byte, userID, username string, expiresIn time.Duration) string {
	t.Helper()
	claims := &identity.Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-expiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func newTestBinder(cache identity.ClaimsCache) (*identity.Binder, *fakeUsers, string) {
	userID := primitive.NewObjectID().Hex()
	users := &fakeUsers{byID: map[string]*model.User{}}
	oid, _ := primitive.ObjectIDFromHex(userID)
	users.byID[userID] = &model.User{ID: oid, Username: "alice"}
	return identity.NewBinder(testSecret, users, cache, time.Minute), users, userID
}

func TestBindValidToken(t *testing.T) {
	req := require.New(t)
	binder, _, userID := newTestBinder(nil)

	token := signToken(t, testSecret, userID, "alice", time.Hour)
	ident, err := binder.Bind(context.Background(), "token="+token)
	req.NoError(err)
	req.Equal(model.Identity{ID: userID, DisplayName: "alice"}, ident)
}

func TestBindTokenAmongOtherCookies(t *testing.T) {
	req := require.New(t)
	binder, _, userID := newTestBinder(nil)

	token := signToken(t, testSecret, userID, "alice", time.Hour)
	header := "theme=dark; token=" + token + "; lang=en"
	ident, err := binder.Bind(context.Background(), header)
	req.NoError(err)
	req.Equal(userID, ident.ID)
}

func TestBindMissingToken(t *testing.T) {
	binder, _, _ := newTestBinder(nil)

	for name, header := range map[string]string{
		"empty header":  "",
		"other cookies": "theme=dark; lang=en",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := binder.Bind(context.Background(), header)
			require.ErrorIs(t, err, identity.ErrNoToken)
		})
	}
}

func TestBindRejectsBadTokens(t *testing.T) {
	binder, _, userID := newTestBinder(nil)

	for name, token := range map[string]string{
		"garbage":      "not.a.jwt",
		"wrong secret": signToken(t, []byte("other-secret"), userID, "alice", time.Hour),
		"expired":      signToken(t, testSecret, userID, "alice", -time.Hour),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := binder.Bind(context.Background(), "token="+token)
			require.ErrorIs(t, err, identity.ErrTokenInvalid)
		})
	}
}

func TestBindUnknownSubject(t *testing.T) {
	binder, _, _ := newTestBinder(nil)

	stranger := primitive.NewObjectID().Hex()
	token := signToken(t, testSecret, stranger, "ghost", time.Hour)
	_, err := binder.Bind(context.Background(), "token="+token)
	require.ErrorIs(t, err, identity.ErrIdentityUnknown)
}

func TestBindUsesCacheOnRepeatLookups(t *testing.T) {
	req := require.New(t)
	cache := newFakeCache()
	binder, users, userID := newTestBinder(cache)

	token := signToken(t, testSecret, userID, "alice", time.Hour)
	for i := 0; i < 3; i++ {
		ident, err := binder.Bind(context.Background(), "token="+token)
		req.NoError(err)
		req.Equal("alice", ident.DisplayName)
	}

	users.mu.Lock()
	defer users.mu.Unlock()
	req.Equal(1, users.lookups)
}
