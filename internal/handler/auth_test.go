package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/athlia-api/internal/metrics"
	"github.com/iliyamo/athlia-api/internal/middleware"
	"github.com/iliyamo/athlia-api/internal/model"
	"github.com/iliyamo/athlia-api/internal/queue"
	"github.com/iliyamo/athlia-api/internal/utils"
)

type authFixture struct {
	e        *echo.Echo
	accounts *fakeAccounts
	tokens   *utils.TokenService
	events   chanPublisher
	metrics  *metrics.Metrics
	h        *AuthHandler
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		e:        echo.New(),
		accounts: newFakeAccounts(),
		tokens:   newTokenService(t),
		events:   make(chanPublisher, 16),
		metrics:  metrics.New(),
	}
	h := NewAuthHandler(f.accounts, f.tokens, f.events, f.metrics)
	f.h = h
	f.e.POST("/auth/register", h.Register)
	f.e.POST("/auth/login", h.Login)
	f.e.POST("/auth/refresh", h.Refresh)
	f.e.POST("/auth/password", h.ChangePassword,
		middleware.TokenAuth(f.tokens, f.metrics), middleware.RequireAccount(f.accounts))
	return f
}

func decodeAuth(t *testing.T, body []byte) authResp {
	t.Helper()
	var resp authResp
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func (f *authFixture) register(t *testing.T, mail, password string) authResp {
	t.Helper()
	rec := doJSON(f.e, http.MethodPost, "/auth/register",
		`{"username":"Jane","mail":"`+mail+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAuth(t, rec.Body.Bytes())
}

func TestRegister_CreatesAccount(t *testing.T) {
	f := newAuthFixture(t)

	rec := doJSON(f.e, http.MethodPost, "/auth/register",
		`{"username":"  Jane ","mail":" Jane@Example.COM ","password":"s3cret"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeAuth(t, rec.Body.Bytes())
	assert.Equal(t, "Jane", resp.Account.Username)
	assert.Equal(t, "jane@example.com", resp.Account.Mail)
	require.NotNil(t, resp.Account.StatutAccount)
	assert.Equal(t, "active", *resp.Account.StatutAccount)
	assert.Nil(t, resp.Account.Avatar)
	assert.NotNil(t, resp.Account.LastConnection)

	access, ok := f.tokens.ParseKind(resp.Token, utils.TokenAccess)
	require.True(t, ok)
	assert.Equal(t, resp.Account.ID, access.Sub)
	_, ok = f.tokens.ParseKind(resp.RefreshToken, utils.TokenRefresh)
	assert.True(t, ok)

	stored, err := f.accounts.GetByID(context.Background(), resp.Account.ID)
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(stored.PasswordHash, "s3cret"))
	assert.NotContains(t, rec.Body.String(), stored.PasswordHash)

	ev := waitEvent(t, f.events)
	assert.Equal(t, queue.EventRegistered, ev.Type)
	assert.Equal(t, resp.Account.ID, ev.AccountID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthAttempts.WithLabelValues("register", "success")))
}

func TestRegister_ExistingAccount(t *testing.T) {
	f := newAuthFixture(t)
	first := f.register(t, "jane@example.com", "s3cret")

	rec := doJSON(f.e, http.MethodPost, "/auth/register",
		`{"username":"Other","mail":"JANE@example.com","password":"s3cret"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeAuth(t, rec.Body.Bytes())
	assert.Equal(t, first.Account.ID, again.Account.ID)
	assert.Equal(t, "Jane", again.Account.Username)

	rec = doJSON(f.e, http.MethodPost, "/auth/register",
		`{"username":"Jane","mail":"jane@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"Account already exists"}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthAttempts.WithLabelValues("register", "conflict")))
}

func TestRegister_Validation(t *testing.T) {
	f := newAuthFixture(t)
	for _, body := range []string{
		`{"mail":"a@b.c","password":"x"}`,
		`{"username":"a","password":"x"}`,
		`{"username":"a","mail":"a@b.c"}`,
		`{"username":"  ","mail":"a@b.c","password":"x"}`,
		`{not json`,
	} {
		rec := doJSON(f.e, http.MethodPost, "/auth/register", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestRegister_StoreFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.accounts.err = errors.New("db down")

	rec := doJSON(f.e, http.MethodPost, "/auth/register",
		`{"username":"Jane","mail":"jane@example.com","password":"s3cret"}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	reg := f.register(t, "jane@example.com", "s3cret")

	rec := doJSON(f.e, http.MethodPost, "/auth/login", `{"mail":" Jane@example.com","password":"s3cret"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAuth(t, rec.Body.Bytes())
	assert.Equal(t, reg.Account.ID, resp.Account.ID)
	_, ok := f.tokens.ParseKind(resp.Token, utils.TokenAccess)
	assert.True(t, ok)

	for _, body := range []string{
		`{"mail":"jane@example.com","password":"nope"}`,
		`{"mail":"nobody@example.com","password":"s3cret"}`,
	} {
		rec := doJSON(f.e, http.MethodPost, "/auth/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())
	}

	rec = doJSON(f.e, http.MethodPost, "/auth/login", `{"mail":"jane@example.com"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	f := newAuthFixture(t)
	reg := f.register(t, "jane@example.com", "s3cret")

	rec := doJSON(f.e, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+reg.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pair utils.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	p, ok := f.tokens.ParseKind(pair.Token, utils.TokenAccess)
	require.True(t, ok)
	assert.Equal(t, reg.Account.ID, p.Sub)

	rec = doJSON(f.e, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+reg.Token+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "access token must not refresh")
	assert.JSONEq(t, `{"error":"Invalid refresh token"}`, rec.Body.String())

	rec = doJSON(f.e, http.MethodPost, "/auth/refresh", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.accounts.remove(reg.Account.ID)
	rec = doJSON(f.e, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+reg.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh_Expired(t *testing.T) {
	f := newAuthFixture(t)
	past, err := utils.NewTokenService("handler-secret", time.Hour, time.Hour,
		utils.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	require.NoError(t, err)
	stale, err := past.Issue("acct-1", utils.TokenRefresh, 3600)
	require.NoError(t, err)

	rec := doJSON(f.e, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+stale+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	reg := f.register(t, "jane@example.com", "old-pass")

	rec := doJSON(f.e, http.MethodPost, "/auth/password",
		`{"currentPassword":"wrong","newPassword":"new-pass"}`, reg.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(f.e, http.MethodPost, "/auth/password", `{"currentPassword":"old-pass"}`, reg.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(f.e, http.MethodPost, "/auth/password",
		`{"currentPassword":"old-pass","newPassword":"new-pass"}`, reg.Token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(f.e, http.MethodPost, "/auth/login", `{"mail":"jane@example.com","password":"new-pass"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(f.e, http.MethodPost, "/auth/login", `{"mail":"jane@example.com","password":"old-pass"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(f.e, http.MethodPost, "/auth/password",
		`{"currentPassword":"new-pass","newPassword":"x"}`, reg.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh token must not authorize")
}

func TestLogin_UnknownMailRunsVerifier(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "jane@example.com", "s3cret")

	var hashes []string
	f.h.verify = func(hash, plain string) bool {
		hashes = append(hashes, hash)
		return utils.VerifyPassword(hash, plain)
	}

	rec := doJSON(f.e, http.MethodPost, "/auth/login", `{"mail":"nobody@example.com","password":"s3cret"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, hashes, 1)
	assert.Equal(t, unknownAccountHash, hashes[0])

	rec = doJSON(f.e, http.MethodPost, "/auth/login", `{"mail":"jane@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, hashes, 2)
	assert.NotEqual(t, unknownAccountHash, hashes[1])
}

func TestLogin_UnknownMailMatchingDummyPassword(t *testing.T) {
	f := newAuthFixture(t)

	// The dummy hash is a real credential, so its own plaintext must not sign anyone in.
	require.True(t, utils.VerifyPassword(unknownAccountHash, "athlia-unknown-account"))
	rec := doJSON(f.e, http.MethodPost, "/auth/login", `{"mail":"nobody@example.com","password":"athlia-unknown-account"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_ConcurrentInsert(t *testing.T) {
	hash, err := utils.HashPassword("s3cret")
	require.NoError(t, err)

	cases := []struct {
		name     string
		password string
		want     int
	}{
		{"same password signs in", "s3cret", http.StatusOK},
		{"other password conflicts", "other", http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &racingAccounts{fakeAccounts: newFakeAccounts(), winner: model.Account{
				Username: "Jane", Mail: "jane@example.com", PasswordHash: hash,
			}}
			tokens := newTokenService(t)
			e := echo.New()
			h := NewAuthHandler(store, tokens, make(chanPublisher, 16), metrics.New())
			e.POST("/auth/register", h.Register)

			rec := doJSON(e, http.MethodPost, "/auth/register",
				`{"username":"Jane","mail":"jane@example.com","password":"`+tc.password+`"}`, "")
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
			if tc.want == http.StatusOK {
				resp := decodeAuth(t, rec.Body.Bytes())
				assert.Equal(t, "acct-1", resp.Account.ID)
				_, ok := tokens.ParseKind(resp.Token, utils.TokenAccess)
				assert.True(t, ok)
			}
		})
	}
}
