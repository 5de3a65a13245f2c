package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/testutil"
	"github.com/npezzotti/go-chatrooms/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockIdentityResolver struct {
	mock.Mock
}

func (m *mockIdentityResolver) ResolveIdentity(ctx context.Context, token string) (types.User, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(types.User), args.Error(1)
}

func Test_Authorize(t *testing.T) {
	alice := newTestUser("alice")

	tcases := []struct {
		name      string
		token     string
		setup     func(ids *mockIdentityResolver, db *database.MockGoChatRepository)
		expectErr error
		anyErr    bool
	}{
		{
			name:  "valid token and room",
			token: "good",
			setup: func(ids *mockIdentityResolver, db *database.MockGoChatRepository) {
				ids.On("ResolveIdentity", mock.Anything, "good").Return(alice, nil).Once()
				db.On("RoomExists", mock.Anything, "general").Return(true, nil).Once()
			},
		},
		{
			name:      "missing token",
			token:     "",
			setup:     func(ids *mockIdentityResolver, db *database.MockGoChatRepository) {},
			expectErr: ErrUnauthenticated,
		},
		{
			name:  "invalid token",
			token: "bad",
			setup: func(ids *mockIdentityResolver, db *database.MockGoChatRepository) {
				ids.On("ResolveIdentity", mock.Anything, "bad").
					Return(types.User{}, fmt.Errorf("%w: signature is invalid", ErrUnauthenticated)).Once()
			},
			expectErr: ErrUnauthenticated,
		},
		{
			name:  "resolver failure",
			token: "good",
			setup: func(ids *mockIdentityResolver, db *database.MockGoChatRepository) {
				ids.On("ResolveIdentity", mock.Anything, "good").Return(types.User{}, errors.New("db down")).Once()
			},
			anyErr: true,
		},
		{
			name:  "unknown room",
			token: "good",
			setup: func(ids *mockIdentityResolver, db *database.MockGoChatRepository) {
				ids.On("ResolveIdentity", mock.Anything, "good").Return(alice, nil).Once()
				db.On("RoomExists", mock.Anything, "general").Return(false, nil).Once()
			},
			expectErr: ErrRoomNotFound,
		},
		{
			name:  "room lookup failure",
			token: "good",
			setup: func(ids *mockIdentityResolver, db *database.MockGoChatRepository) {
				ids.On("ResolveIdentity", mock.Anything, "good").Return(alice, nil).Once()
				db.On("RoomExists", mock.Anything, "general").Return(false, errors.New("db down")).Once()
			},
			anyErr: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ids := &mockIdentityResolver{}
			db := &database.MockGoChatRepository{}
			tc.setup(ids, db)

			r := NewRegistry()
			bc := NewBroadcaster(r, testutil.TestLogger(t), newStatsMock())
			g := NewGate(ids, db, r, bc, testutil.TestLogger(t), newStatsMock())

			user, err := g.Authorize(context.Background(), tc.token, "general")

			switch {
			case tc.expectErr != nil:
				assert.ErrorIs(t, err, tc.expectErr)
			case tc.anyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ErrUnauthenticated)
				assert.NotErrorIs(t, err, ErrRoomNotFound)
			default:
				assert.NoError(t, err)
				assert.Equal(t, alice, user)
			}
			assert.Empty(t, r.Rooms(), "expected authorization to leave the registry untouched")
			ids.AssertExpectations(t)
			db.AssertExpectations(t)
		})
	}
}

func Test_Admit(t *testing.T) {
	r := NewRegistry()
	su := newStatsMock()
	bc := NewBroadcaster(r, testutil.TestLogger(t), su)
	g := NewGate(&mockIdentityResolver{}, &database.MockGoChatRepository{}, r, bc, testutil.TestLogger(t), su)

	alice := newTestConnection(t, "general", newTestUser("alice"), 4)
	g.Admit(alice)

	events := drain(t, alice)
	if assert.Len(t, events, 1, "expected only the welcome for the first member") {
		assert.Equal(t, SystemWelcome, events[0].Event)
		assert.Equal(t, "welcome, alice! 1 connected", events[0].Message)
	}

	bob := newTestConnection(t, "general", newTestUser("bob"), 4)
	g.Admit(bob)

	bobEvents := drain(t, bob)
	if assert.Len(t, bobEvents, 1, "expected newcomer to receive only its welcome") {
		assert.Equal(t, SystemWelcome, bobEvents[0].Event)
		assert.Equal(t, "welcome, bob! 2 connected", bobEvents[0].Message)
	}

	aliceEvents := drain(t, alice)
	if assert.Len(t, aliceEvents, 1) {
		assert.Equal(t, SystemJoin, aliceEvents[0].Event)
		assert.Equal(t, "bob", aliceEvents[0].Username)
		assert.Equal(t, "general", aliceEvents[0].RoomId)
	}

	assert.ElementsMatch(t, []*Connection{alice, bob}, r.Snapshot("general"))
	su.AssertNumberOfCalls(t, "Incr", 2)
}
