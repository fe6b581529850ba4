package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/athlia-api/internal/metrics"
	"github.com/iliyamo/athlia-api/internal/middleware"
	"github.com/iliyamo/athlia-api/internal/model"
	"github.com/iliyamo/athlia-api/internal/queue"
	"github.com/iliyamo/athlia-api/internal/repository"
	"github.com/iliyamo/athlia-api/internal/service"
	"github.com/iliyamo/athlia-api/internal/utils"
)

// dbTimeout bounds every repository call made by a handler.
const dbTimeout = 5 * time.Second

// unknownAccountHash is verified against when a login names no account, so
// that path costs one scrypt derivation like a wrong password does.
const unknownAccountHash = "scrypt$ZGVmZ2hpamtsbW5vcHFycw==$HFEwwsH/6l72BYfvPdbZksW0QBEO4O/OgUzmwhK6cg22tBvm4T0OwX25cYXo/FaIdAo4mQ00RYTa4Wciuc8lnA=="

// AccountStore is the account persistence the auth endpoints need.
type AccountStore interface {
	Create(ctx context.Context, a *model.Account) error
	GetByMail(ctx context.Context, mail string) (model.Account, error)
	GetByID(ctx context.Context, id string) (model.Account, error)
	TouchLastConnection(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Accounts AccountStore
	Tokens   *utils.TokenService
	Events   service.EventPublisher
	Metrics  *metrics.Metrics
	now      func() time.Time
	verify   func(hash, plain string) bool
}

func NewAuthHandler(accounts AccountStore, tokens *utils.TokenService, events service.EventPublisher, m *metrics.Metrics) *AuthHandler {
	if events == nil {
		events = service.NopPublisher{}
	}
	return &AuthHandler{Accounts: accounts, Tokens: tokens, Events: events, Metrics: m, now: time.Now, verify: utils.VerifyPassword}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Mail     string `json:"mail"`
	Password string `json:"password"`
}
type loginReq struct {
	Mail     string `json:"mail"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Register creates an account and signs it in. Registering again with the
// mail and password of an existing account signs that account in instead;
// a different password is a conflict.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Mail = repository.NormalizeMail(req.Mail)
	if req.Username == "" || req.Mail == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username, mail and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	existing, err := h.Accounts.GetByMail(ctx, req.Mail)
	switch {
	case err == nil:
		return h.signInExisting(ctx, c, existing, req.Password)
	case !errors.Is(err, repository.ErrNotFound):
		return h.internal(c, "register", "lookup account", err)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return h.internal(c, "register", "hash password", err)
	}
	now := h.now().UTC()
	status := model.AccountStatusActive
	acct := model.Account{
		Username:       req.Username,
		Mail:           req.Mail,
		PasswordHash:   hash,
		StatutAccount:  &status,
		CreatedAt:      now,
		LastConnection: &now,
	}
	if err := h.Accounts.Create(ctx, &acct); err != nil {
		if errors.Is(err, repository.ErrMailExists) {
			// a concurrent registration won the insert
			existing, lookupErr := h.Accounts.GetByMail(ctx, req.Mail)
			if lookupErr != nil {
				return h.internal(c, "register", "lookup account", lookupErr)
			}
			return h.signInExisting(ctx, c, existing, req.Password)
		}
		return h.internal(c, "register", "create account", err)
	}

	pair, err := h.Tokens.IssuePair(acct.ID)
	if err != nil {
		return h.internal(c, "register", "issue tokens", err)
	}
	h.Metrics.RecordAuth("register", metrics.OutcomeSuccess)
	service.PublishAsync(h.Events, queue.NewAccountEvent(queue.EventRegistered, acct.ID, acct.Mail))

	return c.JSON(http.StatusCreated, authResp{Token: pair.Token, RefreshToken: pair.RefreshToken, Account: newAccountView(acct)})
}

func (h *AuthHandler) signInExisting(ctx context.Context, c echo.Context, acct model.Account, password string) error {
	if !h.verify(acct.PasswordHash, password) {
		h.Metrics.RecordAuth("register", metrics.OutcomeConflict)
		return c.JSON(http.StatusConflict, echo.Map{"error": "Account already exists"})
	}
	return h.signIn(ctx, c, "register", acct, http.StatusOK)
}

// Login verifies mail and password and returns a fresh token pair. Unknown
// mail and wrong password are indistinguishable to the client.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	req.Mail = repository.NormalizeMail(req.Mail)
	if req.Mail == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mail and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	acct, err := h.Accounts.GetByMail(ctx, req.Mail)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return h.internal(c, "login", "lookup account", err)
	}
	hash := acct.PasswordHash
	if err != nil {
		hash = unknownAccountHash
	}
	if !h.verify(hash, req.Password) || err != nil {
		h.Metrics.RecordAuth("login", metrics.OutcomeFailure)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
	}
	return h.signIn(ctx, c, "login", acct, http.StatusOK)
}

// Refresh exchanges a valid refresh token for a new pair. The old refresh
// token stays valid until it expires.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken is required"})
	}

	payload, ok := h.Tokens.ParseKind(strings.TrimSpace(req.RefreshToken), utils.TokenRefresh)
	h.Metrics.RecordTokenVerdict(ok)
	if !ok {
		h.Metrics.RecordAuth("refresh", metrics.OutcomeFailure)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid refresh token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if _, err := h.Accounts.GetByID(ctx, payload.Sub); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.Metrics.RecordAuth("refresh", metrics.OutcomeFailure)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid refresh token"})
		}
		return h.internal(c, "refresh", "load account", err)
	}

	pair, err := h.Tokens.IssuePair(payload.Sub)
	if err != nil {
		return h.internal(c, "refresh", "issue tokens", err)
	}
	h.Metrics.RecordAuth("refresh", metrics.OutcomeSuccess)
	return c.JSON(http.StatusOK, pair)
}

// ChangePassword replaces the credential of the authenticated account.
// Tokens issued before the change remain valid.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	acct, ok := middleware.CurrentAccount(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "currentPassword and newPassword are required"})
	}
	if !h.verify(acct.PasswordHash, req.CurrentPassword) {
		h.Metrics.RecordAuth("password", metrics.OutcomeFailure)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return h.internal(c, "password", "hash password", err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
		}
		return h.internal(c, "password", "update password", err)
	}
	h.Metrics.RecordAuth("password", metrics.OutcomeSuccess)
	service.PublishAsync(h.Events, queue.NewAccountEvent(queue.EventPasswordChanged, acct.ID, ""))
	return c.NoContent(http.StatusNoContent)
}

// signIn stamps last_connection and answers with a token pair and the
// account.
func (h *AuthHandler) signIn(ctx context.Context, c echo.Context, op string, acct model.Account, status int) error {
	now := h.now().UTC()
	if err := h.Accounts.TouchLastConnection(ctx, acct.ID, now); err != nil {
		return h.internal(c, op, "touch last_connection", err)
	}
	acct.LastConnection = &now

	pair, err := h.Tokens.IssuePair(acct.ID)
	if err != nil {
		return h.internal(c, op, "issue tokens", err)
	}
	h.Metrics.RecordAuth(op, metrics.OutcomeSuccess)
	service.PublishAsync(h.Events, queue.NewAccountEvent(queue.EventLoggedIn, acct.ID, acct.Mail))

	return c.JSON(status, authResp{Token: pair.Token, RefreshToken: pair.RefreshToken, Account: newAccountView(acct)})
}

func (h *AuthHandler) internal(c echo.Context, op, what string, err error) error {
	h.Metrics.RecordAuth(op, metrics.OutcomeError)
	slog.ErrorContext(c.Request().Context(), op+": "+what, "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
}
