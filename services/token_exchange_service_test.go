package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authserver/cache"
	"go.pilab.hu/authserver/cache/redis"
	"go.pilab.hu/authserver/domain"
	serrors "go.pilab.hu/authserver/errors"
	"go.pilab.hu/authserver/log"
)

type exchangeFixture struct {
	codes  *MockCodeRepository
	users  *MockUserRepository
	signer *TokenSigner
	svc    *TokenExchangeService
}

func newExchangeFixture(t *testing.T, cfg ExchangeConfig) *exchangeFixture {
	t.Helper()

	f := &exchangeFixture{
		codes:  new(MockCodeRepository),
		users:  new(MockUserRepository),
		signer: newTestSigner(t),
	}
	f.svc = NewTokenExchangeService(f.codes, f.users, NewPKCEService(), f.signer, cfg, log.NewNop())

	return f
}

func storedCode(t *testing.T, createdAt time.Time) *domain.AuthorizationCode {
	t.Helper()

	clientID, err := domain.NewClientID(testClientID)
	require.NoError(t, err)

	challenge, err := domain.NewCodeChallenge(testChallenge, domain.CodeChallengeMethodS256)
	require.NoError(t, err)

	code, err := domain.NewAuthorizationCode(domain.AuthorizationCodeParams{
		Code:          "the-code",
		UserID:        "user-1",
		ClientID:      clientID,
		RedirectURI:   testRedirectURI,
		CodeChallenge: challenge,
		CreatedAt:     createdAt,
		TTL:           5 * time.Minute,
	})
	require.NoError(t, err)

	return code
}

func validTokenRequest() TokenRequest {
	return TokenRequest{
		Code:         "the-code",
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	}
}

func requireOAuthError(t *testing.T, err error, code, description string) {
	t.Helper()

	oauthErr, ok := serrors.AsOAuth2Error(err)
	require.True(t, ok, "expected OAuth2Error, got %v", err)
	assert.Equal(t, code, oauthErr.Code)
	if description != "" {
		assert.Equal(t, description, oauthErr.Description)
	}
}

func TestTokenExchangeService_Success(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, ExchangeConfig{RejectInactiveUsers: true})

	f.codes.On("FindByCode", ctx, "the-code").Return(storedCode(t, time.Now()), nil)
	f.users.On("FindByID", ctx, "user-1").Return(activeUser(), nil)
	f.codes.On("MarkAsUsed", ctx, "the-code").Return(nil)

	resp, err := f.svc.Exchange(ctx, validTokenRequest())
	require.NoError(t, err)

	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "read", resp.Scope)

	claims, err := f.signer.Verify(resp.AccessToken, "api")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []string{"admin"}, claims.Roles)
	assert.Equal(t, "read", claims.Scope)
	assert.Equal(t, testClientID, claims.ClientID)

	f.codes.AssertExpectations(t)
}

func TestTokenExchangeService_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid at 4:59", func(t *testing.T) {
		f := newExchangeFixture(t, ExchangeConfig{})
		f.svc.now = func() time.Time { return createdAt.Add(4*time.Minute + 59*time.Second) }
		f.signer.now = f.svc.now

		f.codes.On("FindByCode", ctx, "the-code").Return(storedCode(t, createdAt), nil)
		f.users.On("FindByID", ctx, "user-1").Return(activeUser(), nil)
		f.codes.On("MarkAsUsed", ctx, "the-code").Return(nil)

		_, err := f.svc.Exchange(ctx, validTokenRequest())
		assert.NoError(t, err)
	})

	t.Run("expired at 5:01", func(t *testing.T) {
		f := newExchangeFixture(t, ExchangeConfig{})
		f.svc.now = func() time.Time { return createdAt.Add(5*time.Minute + time.Second) }

		f.codes.On("FindByCode", ctx, "the-code").Return(storedCode(t, createdAt), nil)

		_, err := f.svc.Exchange(ctx, validTokenRequest())
		requireOAuthError(t, err, serrors.InvalidGrant, serrors.DescExpiredAuthorizationCode)
		f.codes.AssertNotCalled(t, "MarkAsUsed", mock.Anything, mock.Anything)
	})
}

func TestTokenExchangeService_Failures(t *testing.T) {
	ctx := context.Background()

	used := storedCode(t, time.Now()).MarkAsUsed()

	inactive := activeUser()
	inactive.Status = domain.UserStatusInactive

	tests := []struct {
		name    string
		mutate  func(r *TokenRequest)
		code    *domain.AuthorizationCode
		findErr error
		user    *domain.User
		userErr error
		markErr error
		errCode string
		desc    string
	}{
		{
			name: "unknown code", findErr: domain.ErrAuthCodeNotFound,
			errCode: serrors.InvalidGrant, desc: serrors.DescInvalidAuthorizationCode,
		},
		{
			name: "replayed code", code: used,
			errCode: serrors.InvalidGrant, desc: serrors.DescInvalidAuthorizationCode,
		},
		{
			name:   "client mismatch with correct verifier",
			mutate: func(r *TokenRequest) { r.ClientID = "client-2" },
			code:   storedCode(t, time.Now()), errCode: serrors.InvalidClient,
		},
		{
			name:   "redirect mismatch with correct client",
			mutate: func(r *TokenRequest) { r.RedirectURI = "https://app.example.com/other" },
			code:   storedCode(t, time.Now()), errCode: serrors.InvalidGrant, desc: serrors.DescInvalidAuthorizationCode,
		},
		{
			name:   "wrong verifier",
			mutate: func(r *TokenRequest) { r.CodeVerifier = testVerifier[:42] + "X" },
			code:   storedCode(t, time.Now()), errCode: serrors.InvalidGrant, desc: serrors.DescInvalidAuthorizationCode,
		},
		{
			name:   "malformed verifier",
			mutate: func(r *TokenRequest) { r.CodeVerifier = "verifier-abc" },
			code:   storedCode(t, time.Now()), errCode: serrors.InvalidRequest,
		},
		{
			name:    "unknown code with malformed verifier",
			mutate:  func(r *TokenRequest) { r.CodeVerifier = "verifier-abc" },
			findErr: domain.ErrAuthCodeNotFound,
			errCode: serrors.InvalidGrant, desc: serrors.DescInvalidAuthorizationCode,
		},
		{
			name:   "replayed code with malformed verifier",
			mutate: func(r *TokenRequest) { r.CodeVerifier = "verifier-abc" },
			code:   used, errCode: serrors.InvalidGrant, desc: serrors.DescInvalidAuthorizationCode,
		},
		{
			name:    "missing code",
			mutate:  func(r *TokenRequest) { r.Code = "" },
			errCode: serrors.InvalidRequest,
		},
		{
			name: "user missing", code: storedCode(t, time.Now()), userErr: domain.ErrUserNotFound,
			errCode: serrors.ServerError,
		},
		{
			name: "inactive user rejected", code: storedCode(t, time.Now()), user: inactive,
			errCode: serrors.InvalidGrant, desc: "user account is inactive",
		},
		{
			name: "lost the mark-used race", code: storedCode(t, time.Now()), user: activeUser(),
			markErr: domain.ErrAuthCodeAlreadyUsed,
			errCode: serrors.InvalidGrant, desc: serrors.DescInvalidAuthorizationCode,
		},
		{
			name: "repository failure is hidden", findErr: errors.New("mongo: connection refused"),
			errCode: serrors.InvalidToken, desc: "token exchange failed",
		},
		{
			name: "mark-used failure is hidden", code: storedCode(t, time.Now()), user: activeUser(),
			markErr: errors.New("timeout"),
			errCode: serrors.InvalidToken, desc: "token exchange failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExchangeFixture(t, ExchangeConfig{RejectInactiveUsers: true})

			if tt.code != nil {
				f.codes.On("FindByCode", ctx, "the-code").Return(tt.code, nil)
			} else {
				f.codes.On("FindByCode", ctx, "the-code").Return(nil, tt.findErr)
			}

			if tt.user != nil {
				f.users.On("FindByID", ctx, "user-1").Return(tt.user, nil)
			} else {
				f.users.On("FindByID", ctx, "user-1").Return(nil, tt.userErr)
			}

			f.codes.On("MarkAsUsed", ctx, "the-code").Return(tt.markErr)

			req := validTokenRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			resp, err := f.svc.Exchange(ctx, req)
			assert.Nil(t, resp)
			requireOAuthError(t, err, tt.errCode, tt.desc)

			if tt.markErr == nil {
				f.codes.AssertNotCalled(t, "MarkAsUsed", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestTokenExchangeService_InactiveUserLenient(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, ExchangeConfig{RejectInactiveUsers: false})

	inactive := activeUser()
	inactive.Status = domain.UserStatusInactive

	f.codes.On("FindByCode", ctx, "the-code").Return(storedCode(t, time.Now()), nil)
	f.users.On("FindByID", ctx, "user-1").Return(inactive, nil)
	f.codes.On("MarkAsUsed", ctx, "the-code").Return(nil)

	resp, err := f.svc.Exchange(ctx, validTokenRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

// End to end through a real store: issue, redeem once, then replay.
func TestTokenExchange_IssueRedeemReplay(t *testing.T) {
	ctx := context.Background()

	codes := cache.NewMemoryCodeStore(cache.DefaultCodeRetention)
	defer codes.Close()

	clients := new(MockClientRepository)
	clients.On("GetClient", ctx, testClientID).Return(testClient(), nil)

	users := new(MockUserRepository)
	users.On("FindByID", ctx, "user-1").Return(activeUser(), nil)

	issuer := NewAuthCodeService(codes, clients, AuthCodeConfig{}, log.NewNop())
	exchanger := NewTokenExchangeService(codes, users, NewPKCEService(), newTestSigner(t),
		ExchangeConfig{RejectInactiveUsers: true}, log.NewNop())

	req := validAuthorizeRequest()
	req.Scope = ""
	req.CodeChallenge = S256Challenge(testVerifier)

	issued, err := issuer.Issue(ctx, req, domain.NewSession("user-1", time.Now(), time.Hour))
	require.NoError(t, err)

	tokenReq := TokenRequest{
		Code:         issued.Code,
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	}

	first, err := exchanger.Exchange(ctx, tokenReq)
	require.NoError(t, err)
	assert.Equal(t, "read", first.Scope)

	_, err = exchanger.Exchange(ctx, tokenReq)
	requireOAuthError(t, err, serrors.InvalidGrant, serrors.DescInvalidAuthorizationCode)
}

func TestTokenExchange_ConcurrentRedemptionSingleWinner(t *testing.T) {
	ctx := context.Background()

	codes := cache.NewMemoryCodeStore(cache.DefaultCodeRetention)
	defer codes.Close()
	require.NoError(t, codes.Save(ctx, storedCode(t, time.Now())))

	users := new(MockUserRepository)
	users.On("FindByID", mock.Anything, "user-1").Return(activeUser(), nil)

	exchanger := NewTokenExchangeService(codes, users, NewPKCEService(), newTestSigner(t),
		ExchangeConfig{RejectInactiveUsers: true}, log.NewNop())

	var wins atomic.Int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := exchanger.Exchange(ctx, validTokenRequest()); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

// A stored record that no longer rebuilds is an internal failure, not a
// problem with the caller's request.
func TestTokenExchangeService_CorruptStoredCode(t *testing.T) {
	ctx := context.Background()

	record := cache.NewCodeRecord(storedCode(t, time.Now()))
	record.ClientID = ""
	data, err := json.Marshal(record)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mr.HSet("test:code:"+cache.HashToken("the-code"), "data", string(data), "used", "0")

	users := new(MockUserRepository)
	exchanger := NewTokenExchangeService(redis.NewCodeStore(client, "test", time.Hour), users,
		NewPKCEService(), newTestSigner(t), ExchangeConfig{RejectInactiveUsers: true}, log.NewNop())

	resp, err := exchanger.Exchange(ctx, validTokenRequest())
	assert.Nil(t, resp)
	requireOAuthError(t, err, serrors.InvalidToken, "token exchange failed")

	users.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestTokenExchangeService_CorruptRecordFromRepository(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, ExchangeConfig{RejectInactiveUsers: true})

	record := cache.NewCodeRecord(storedCode(t, time.Now()))
	record.ClientID = ""
	_, corrupt := record.ToDomain()
	require.Error(t, corrupt)

	f.codes.On("FindByCode", ctx, "the-code").Return(nil, corrupt)

	_, err := f.svc.Exchange(ctx, validTokenRequest())
	requireOAuthError(t, err, serrors.InvalidToken, "token exchange failed")
	f.codes.AssertNotCalled(t, "MarkAsUsed", mock.Anything, mock.Anything)
}
