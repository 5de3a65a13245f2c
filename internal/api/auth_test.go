package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var testSigningKey = []byte("test-signing-key")

func TestUserId(t *testing.T) {
	id := uuid.New()

	tcases := []struct {
		name     string
		ctx      context.Context
		userId   uuid.UUID
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), id),
			userId:   id,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %s", tc.userId)
		})
	}
}

func Test_parseToken(t *testing.T) {
	userId := uuid.New()

	valid, err := signToken(testSigningKey, userId, time.Hour)
	assert.NoError(t, err)
	expired, err := signToken(testSigningKey, userId, -time.Hour)
	assert.NoError(t, err)
	otherKey, err := signToken([]byte("other-key"), userId, time.Hour)
	assert.NoError(t, err)
	badClaim, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: "not-a-uuid",
		expClaim:    time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSigningKey)
	assert.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		userIdClaim: userId.String(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	assert.NoError(t, err)

	tcases := []struct {
		name  string
		token string
		valid bool
	}{
		{name: "valid token", token: valid, valid: true},
		{name: "expired token", token: expired},
		{name: "wrong signing key", token: otherKey},
		{name: "invalid user id claim", token: badClaim},
		{name: "unsigned token", token: unsigned},
		{name: "garbage", token: "invalid-token"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseToken(testSigningKey, tc.token)
			if tc.valid {
				assert.NoError(t, err)
				assert.Equal(t, userId, got)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, uuid.Nil, got)
		})
	}
}

func Test_tokenFromRequest(t *testing.T) {
	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(createJwtCookie("from-cookie", defaultJwtExpiration))
		req.Header.Set("Authorization", "Bearer from-header")
		assert.Equal(t, "from-cookie", tokenFromRequest(req), "expected cookie to take precedence")
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer from-header")
		assert.Equal(t, "from-header", tokenFromRequest(req))
	})

	t.Run("other scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		assert.Empty(t, tokenFromRequest(req))
	})
}

func Test_hashPassword(t *testing.T) {
	hash, err := hashPassword("password123")
	assert.NoError(t, err)
	assert.NotEqual(t, "password123", hash)
	assert.True(t, verifyPassword(hash, "password123"))
	assert.False(t, verifyPassword(hash, "wrong-password"))
}

func TestTokenResolver_ResolveIdentity(t *testing.T) {
	dbUser := database.User{
		Id:           uuid.New(),
		Username:     "alice",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	token, err := signToken(testSigningKey, dbUser.Id, time.Hour)
	assert.NoError(t, err)

	tcases := []struct {
		name      string
		token     string
		mockErr   error
		lookup    bool
		unauth    bool
		expectErr bool
	}{
		{name: "known user", token: token, lookup: true},
		{name: "invalid token", token: "invalid-token", unauth: true, expectErr: true},
		{name: "deleted user", token: token, lookup: true, mockErr: sql.ErrNoRows, unauth: true, expectErr: true},
		{name: "db error", token: token, lookup: true, mockErr: errors.New("db error"), expectErr: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.lookup {
				ret := dbUser
				if tc.mockErr != nil {
					ret = database.User{}
				}
				mockRepo.On("GetAccountById", mock.Anything, dbUser.Id).Return(ret, tc.mockErr).Once()
			}

			tr := NewTokenResolver(mockRepo, testSigningKey)
			user, err := tr.ResolveIdentity(context.Background(), tc.token)

			if !tc.expectErr {
				assert.NoError(t, err)
				assert.Equal(t, dbUser.Id, user.Id)
				assert.Equal(t, "alice", user.Username)
				assert.Empty(t, user.Password, "expected no password material")
				return
			}

			assert.Error(t, err)
			assert.Equal(t, tc.unauth, errors.Is(err, server.ErrUnauthenticated))
		})
	}
}
