package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/athlia-api/internal/model"
	"github.com/iliyamo/athlia-api/internal/repository"
)

// AccountLookup is the slice of the account repository RequireAccount needs.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
}

// RequireAccount loads the account named by the token subject and stores it
// under ContextAccount. A valid token whose account no longer exists is
// treated as unauthenticated. It must run after TokenAuth.
func RequireAccount(accounts AccountLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := AccountID(c)
			if id == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			acct, err := accounts.GetByID(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
			}
			if err != nil {
				slog.ErrorContext(ctx, "load account", "account_id", id, "error", err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
			}

			c.Set(ContextAccount, acct)
			return next(c)
		}
	}
}

// CurrentAccount returns the account stored by RequireAccount.
func CurrentAccount(c echo.Context) (model.Account, bool) {
	a, ok := c.Get(ContextAccount).(model.Account)
	return a, ok
}
