package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authserver/domain"
	serrors "go.pilab.hu/authserver/errors"
	"go.pilab.hu/authserver/log"
)

func newLoginService(users *MockUserRepository, sessions *MockSessionRepository) *LoginService {
	return NewLoginService(users, sessions, LoginConfig{
		SessionTTL:    24 * time.Hour,
		RememberMeTTL: 720 * time.Hour,
	}, log.NewNop())
}

func activeUser() *domain.User {
	return &domain.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		Username:     "alice",
		Roles:        []string{"admin"},
		Status:       domain.UserStatusActive,
		PasswordHash: "$2a$10$hash",
	}
}

func TestLoginService_Login(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		rememberMe bool
		ttl        time.Duration
	}{
		{"default ttl", false, 24 * time.Hour},
		{"remember me", true, 720 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserRepository)
			sessions := new(MockSessionRepository)
			svc := newLoginService(users, sessions)

			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			svc.now = func() time.Time { return now }

			users.On("ValidateCredentials", ctx, "alice", "secret").Return(activeUser(), nil)
			sessions.On("Save", ctx, mock.MatchedBy(func(s *domain.Session) bool {
				return s.UserID == "user-1" && s.ExpiresAt.Equal(now.Add(tt.ttl)) && s.UserAgent == "ua"
			})).Return(nil)

			res, err := svc.Login(ctx, LoginRequest{
				Identifier: " alice ",
				Password:   "secret",
				RememberMe: tt.rememberMe,
				UserAgent:  "ua",
			})
			require.NoError(t, err)

			assert.NotEmpty(t, res.SessionID)
			assert.Equal(t, now.Add(tt.ttl), res.ExpiresAt)
			assert.Equal(t, "alice@example.com", res.User.Email)
			assert.Equal(t, []string{"admin"}, res.User.Roles)

			users.AssertExpectations(t)
			sessions.AssertExpectations(t)
		})
	}
}

func TestLoginService_RejectionsAreIndistinguishable(t *testing.T) {
	ctx := context.Background()

	inactive := activeUser()
	inactive.Status = domain.UserStatusInactive

	tests := []struct {
		name string
		user *domain.User
		err  error
	}{
		{"wrong password", nil, domain.ErrInvalidCredentials},
		{"unknown user", nil, domain.ErrUserNotFound},
		{"inactive", inactive, nil},
	}

	var descriptions []string

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserRepository)
			sessions := new(MockSessionRepository)
			svc := newLoginService(users, sessions)

			users.On("ValidateCredentials", ctx, "alice", "pw").Return(tt.user, tt.err)

			_, err := svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "pw"})

			oauthErr, ok := serrors.AsOAuth2Error(err)
			require.True(t, ok)
			assert.Equal(t, serrors.Unauthorized, oauthErr.Code)
			assert.Equal(t, 401, oauthErr.HTTPStatus())
			descriptions = append(descriptions, oauthErr.Description)

			sessions.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}

	for _, d := range descriptions {
		assert.Equal(t, descriptions[0], d)
	}
}

func TestLoginService_MissingFields(t *testing.T) {
	svc := newLoginService(new(MockUserRepository), new(MockSessionRepository))

	_, err := svc.Login(context.Background(), LoginRequest{Identifier: "   ", Password: "x"})
	assert.True(t, serrors.HasCode(err, serrors.InvalidRequest))
}

func TestLoginService_RepositoryFailure(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	sessions := new(MockSessionRepository)
	svc := newLoginService(users, sessions)

	users.On("ValidateCredentials", ctx, "alice", "pw").Return(activeUser(), nil)
	sessions.On("Save", ctx, mock.Anything).Return(errors.New("connection reset"))

	_, err := svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "pw"})

	oauthErr, ok := serrors.AsOAuth2Error(err)
	require.True(t, ok)
	assert.Equal(t, serrors.ServerError, oauthErr.Code)
	assert.NotContains(t, oauthErr.Description, "connection reset")
}

func TestLoginService_Session(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	svc := newLoginService(new(MockUserRepository), sessions)

	live := domain.NewSession("user-1", time.Now(), time.Hour)
	expired := domain.NewSession("user-1", time.Now().Add(-3*time.Hour), time.Hour)

	sessions.On("FindByID", ctx, live.ID).Return(live, nil)
	sessions.On("FindByID", ctx, expired.ID).Return(expired, nil)
	sessions.On("FindByID", ctx, "missing").Return(nil, domain.ErrSessionNotFound)

	got, err := svc.Session(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, live, got)

	_, err = svc.Session(ctx, expired.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = svc.Session(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = svc.Session(ctx, "")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLoginService_Logout(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	svc := newLoginService(new(MockUserRepository), sessions)

	session := domain.NewSession("user-1", time.Now(), time.Hour)
	sessions.On("FindByID", ctx, session.ID).Return(session, nil)
	sessions.On("Delete", ctx, session.ID).Return(nil)
	sessions.On("FindByID", ctx, "gone").Return(nil, domain.ErrSessionNotFound)

	require.NoError(t, svc.Logout(ctx, session.ID))
	require.NoError(t, svc.Logout(ctx, "gone"))
	require.NoError(t, svc.Logout(ctx, ""))

	sessions.AssertNumberOfCalls(t, "Delete", 1)
}
